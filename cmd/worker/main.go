package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-garment/internal/app"
	"github.com/odyssey-erp/odyssey-garment/internal/inventory"
	jobmetrics "github.com/odyssey-erp/odyssey-garment/internal/jobs"
	"github.com/odyssey-erp/odyssey-garment/internal/observability"
	"github.com/odyssey-erp/odyssey-garment/internal/payables"
	"github.com/odyssey-erp/odyssey-garment/internal/platform/bus"
	"github.com/odyssey-erp/odyssey-garment/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-garment/internal/platform/db"
	"github.com/odyssey-erp/odyssey-garment/internal/production"
	"github.com/odyssey-erp/odyssey-garment/internal/shared"
	"github.com/odyssey-erp/odyssey-garment/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()
	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}

	metrics := observability.NewMetrics()
	jobMetrics := jobmetrics.NewMetrics(metrics.Registerer())
	auditLogger := shared.NewAuditLogger(pool)

	inventoryService := inventory.NewService(inventory.NewRepository(pool), auditLogger, logger,
		inventory.ServiceConfig{AllowNegativeStock: cfg.AllowNegativeStock})
	payablesService := payables.NewService(production.NewRepository(pool),
		payables.NewCache(redisClient, cfg.PayablesCacheTTL), auditLogger, logger)

	stockJob := jobs.NewStockEntryJob(inventoryService, logger, jobMetrics)
	overdueJob := jobs.NewOverdueScanJob(payablesService, logger, jobMetrics)

	scanTask, err := jobs.NewOverdueScanTask(time.Time{})
	if err != nil {
		logger.Error("build overdue scan task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   redisOpts,
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskStockEntry, Handler: stockJob.Handle},
			{Type: jobs.TaskPayablesOverdueScan, Handler: overdueJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.OverdueScanSpec, Task: scanTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if cfg.NATSURL != "" {
		conn, err := bus.Connect(cfg.NATSURL, "odyssey-worker")
		if err != nil {
			logger.Error("connect nats", slog.Any("error", err))
			os.Exit(1)
		}
		queue := jobs.NewClient(redisOpts)
		defer func() {
			if err := queue.Close(); err != nil {
				logger.Warn("queue close", slog.Any("error", err))
			}
		}()
		subscriber := bus.NewNATSSubscriber(conn, cfg.NATSGroup, logger)
		defer func() {
			if err := subscriber.Close(); err != nil {
				logger.Warn("nats close", slog.Any("error", err))
			}
		}()
		// Bus deliveries are moved onto the queue, which owns retries.
		if err := subscriber.Subscribe(ctx, production.SubjectStockEntry, jobs.NewStockEntrySink(queue).HandleMessage); err != nil {
			logger.Error("subscribe stock entries", slog.Any("error", err))
			os.Exit(1)
		}
	}

	metricsServer := &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: metrics.Handler(), ReadTimeout: 5 * time.Second}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server", slog.Any("error", err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
