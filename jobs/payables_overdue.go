package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"

	jobmetrics "github.com/odyssey-erp/odyssey-garment/internal/jobs"
	"github.com/odyssey-erp/odyssey-garment/internal/payables"
)

// OverdueSource lists overdue payables; payables.Service satisfies it.
type OverdueSource interface {
	Overdue(ctx context.Context) ([]payables.PayableItem, error)
}

// OverdueScanJob logs overdue payables and publishes their totals as gauges.
type OverdueScanJob struct {
	Source  OverdueSource
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewOverdueScanJob initialises the scan handler.
func NewOverdueScanJob(source OverdueSource, logger *slog.Logger, metrics *jobmetrics.Metrics) *OverdueScanJob {
	return &OverdueScanJob{Source: source, Logger: logger, Metrics: metrics}
}

// Handle executes the scan.
func (j *OverdueScanJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Source == nil {
		return errors.New("overdue scan: handler not configured")
	}
	var payload OverdueScanPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("overdue scan: decode: %v: %w", err, asynq.SkipRetry)
		}
	}
	start := time.Now()
	tracker := j.Metrics.Track(TaskPayablesOverdueScan)
	defer func() { err = tracker.End(err) }()

	logger := j.logger()
	items, err := j.Source.Overdue(ctx)
	if err != nil {
		logger.Error("scan failed", slog.Any("error", err))
		return err
	}
	balance := decimal.Zero
	for _, item := range items {
		balance = balance.Add(item.Balance)
		logger.Warn("payable overdue",
			slog.Int64("shipment_id", item.ShipmentID),
			slog.String("lot_number", item.LotNumber),
			slog.String("partner", item.Partner),
			slog.String("balance", item.Balance.StringFixed(2)),
			slog.Int("days_overdue", item.DaysOverdue),
		)
	}
	j.Metrics.SetOverdue(len(items), balance.InexactFloat64())
	logger.Info("completed overdue scan",
		slog.Int("overdue", len(items)),
		slog.String("balance", balance.StringFixed(2)),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

func (j *OverdueScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskPayablesOverdueScan))
	}
	return slog.Default().With(slog.String("job", TaskPayablesOverdueScan))
}
