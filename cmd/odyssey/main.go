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
	"github.com/nats-io/nats.go"

	"github.com/odyssey-erp/odyssey-garment/internal/app"
	"github.com/odyssey-erp/odyssey-garment/internal/drafts"
	"github.com/odyssey-erp/odyssey-garment/internal/inventory"
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
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	dbpool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()
	if cfg.PGMigrate {
		if err := db.Migrate(ctx, dbpool); err != nil {
			logger.Error("migrate schema", slog.Any("error", err))
			os.Exit(1)
		}
	}

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
	auditLogger := shared.NewAuditLogger(dbpool)
	draftStore := drafts.NewRedisStore(redisClient, cfg.DraftTTL)
	payablesCache := payables.NewCache(redisClient, cfg.PayablesCacheTTL)

	var (
		stockSink production.StockSink
		events    production.Publisher
	)
	if cfg.NATSURL != "" {
		conn, err := bus.Connect(cfg.NATSURL, "odyssey-api")
		if err != nil {
			logger.Error("connect nats", slog.Any("error", err))
			os.Exit(1)
		}
		publisher := bus.NewNATSPublisher(conn)
		defer func() {
			if err := publisher.Close(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
				logger.Warn("nats close", slog.Any("error", err))
			}
		}()
		stockSink = production.NewPublishingStockSink(publisher, "")
		events = publisher
	} else {
		queue := jobs.NewClient(redisOpts)
		defer func() {
			if err := queue.Close(); err != nil {
				logger.Warn("queue close", slog.Any("error", err))
			}
		}()
		stockSink = jobs.NewStockEntrySink(queue)
	}

	productionRepo := production.NewRepository(dbpool)
	productionService := production.NewService(productionRepo, draftStore, stockSink, auditLogger, logger)
	productionService.SetObserver(metrics.Pipeline())
	productionService.SetChangeNotifier(payablesCache)
	if events != nil {
		productionService.SetEventPublisher(events)
	}
	productionHandler := production.NewHandler(logger, productionService, cfg.WriteRateLimit)

	payablesService := payables.NewService(productionRepo, payablesCache, auditLogger, logger)
	payablesHandler := payables.NewHandler(logger, payablesService)

	inventoryRepo := inventory.NewRepository(dbpool)
	inventoryService := inventory.NewService(inventoryRepo, auditLogger, logger, inventory.ServiceConfig{AllowNegativeStock: cfg.AllowNegativeStock})
	inventoryHandler := inventory.NewHandler(logger, inventoryService)

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		ProductionHandler: productionHandler,
		PayablesHandler:   payablesHandler,
		InventoryHandler:  inventoryHandler,
		JobHandler:        jobHandler,
		Metrics:           metrics,
		ReadyChecks: map[string]app.ReadyCheck{
			"postgres": dbpool.Ping,
			"redis": func(ctx context.Context) error {
				return redisClient.Ping(ctx).Err()
			},
		},
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
