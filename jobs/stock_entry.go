package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-garment/internal/inventory"
	jobmetrics "github.com/odyssey-erp/odyssey-garment/internal/jobs"
	"github.com/odyssey-erp/odyssey-garment/internal/production"
)

// StockEntrySink queues stock entries for the worker. It satisfies
// production.StockSink.
type StockEntrySink struct {
	queue Enqueuer
}

// NewStockEntrySink wraps an asynq client.
func NewStockEntrySink(queue Enqueuer) *StockEntrySink {
	return &StockEntrySink{queue: queue}
}

// PublishStockEntry implements production.StockSink.
func (s *StockEntrySink) PublishStockEntry(ctx context.Context, entry production.StockEntry) error {
	task, err := NewStockEntryTask(entry)
	if err != nil {
		return err
	}
	_, err = s.queue.EnqueueContext(ctx, task)
	if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("jobs: enqueue stock entry %s: %w", entry.RefID, err)
	}
	return nil
}

// HandleMessage decodes a stock entry published on the bus and queues it.
// It is the bridge between the NATS subject and the asynq worker.
func (s *StockEntrySink) HandleMessage(ctx context.Context, data []byte) error {
	var entry production.StockEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return fmt.Errorf("jobs: decode stock entry: %w", err)
	}
	return s.PublishStockEntry(ctx, entry)
}

// StockPoster books stock entries; inventory.Service satisfies it.
type StockPoster interface {
	PostStockEntry(ctx context.Context, entry production.StockEntry) (inventory.PostResult, error)
}

// StockEntryJob posts queued stock entries into the inventory ledger.
type StockEntryJob struct {
	Poster  StockPoster
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewStockEntryJob initialises the handler.
func NewStockEntryJob(poster StockPoster, logger *slog.Logger, metrics *jobmetrics.Metrics) *StockEntryJob {
	return &StockEntryJob{Poster: poster, Logger: logger, Metrics: metrics}
}

// Handle processes TaskStockEntry tasks. Malformed payloads and entries the
// ledger refuses are not retried.
func (j *StockEntryJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Poster == nil {
		return errors.New("stock entry: handler not configured")
	}
	var entry production.StockEntry
	if err := json.Unmarshal(t.Payload(), &entry); err != nil {
		return fmt.Errorf("stock entry: decode: %v: %w", err, asynq.SkipRetry)
	}
	tracker := j.Metrics.Track(TaskStockEntry)
	defer func() { err = tracker.End(err) }()

	logger := j.logger().With(slog.String("ref_id", entry.RefID), slog.Int64("order_id", entry.OrderID))
	result, err := j.Poster.PostStockEntry(ctx, entry)
	switch {
	case errors.Is(err, inventory.ErrInvalidEntry), errors.Is(err, inventory.ErrWarehouseRequired), errors.Is(err, inventory.ErrNegativeStock):
		logger.Error("stock entry rejected", slog.Any("error", err))
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	case err != nil:
		logger.Warn("stock entry failed, will retry", slog.Any("error", err))
		return err
	}
	if result.Duplicate {
		j.Metrics.StockEntryPosted("duplicate")
		return nil
	}
	j.Metrics.StockEntryPosted("posted")
	logger.Info("stock entry booked", slog.Int("cells", len(result.Movements)), slog.Bool("reversal", entry.Reversal))
	return nil
}

func (j *StockEntryJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskStockEntry))
	}
	return slog.Default().With(slog.String("job", TaskStockEntry))
}
