package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-garment/internal/production"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueCritical carries stock entries; it is polled more often.
	QueueCritical = "critical"
	// TaskStockEntry posts a packing stock entry into the inventory ledger.
	TaskStockEntry = "production:stock_entry"
	// TaskPayablesOverdueScan reports subcontractor payables past due.
	TaskPayablesOverdueScan = "payables:overdue_scan"
	// DefaultOverdueScanSpec runs the scan every morning.
	DefaultOverdueScanSpec = "0 7 * * *"
)

const stockEntryMaxRetry = 10

// NewStockEntryTask constructs the task for entry. The reference id doubles as
// the task id so a duplicate enqueue is refused while the first is pending.
func NewStockEntryTask(entry production.StockEntry) (*asynq.Task, error) {
	if entry.RefID == "" {
		return nil, fmt.Errorf("jobs: stock entry for order %d has no reference", entry.OrderID)
	}
	body, err := json.Marshal(entry)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskStockEntry, body,
		asynq.Queue(QueueCritical),
		asynq.TaskID("stock:"+entry.RefID),
		asynq.MaxRetry(stockEntryMaxRetry),
	), nil
}

// OverdueScanPayload carries scheduling metadata.
type OverdueScanPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewOverdueScanTask constructs the overdue payable scan task.
func NewOverdueScanTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(OverdueScanPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPayablesOverdueScan, body, asynq.Queue(QueueDefault)), nil
}

// Enqueuer is the part of asynq.Client used to submit tasks.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}
