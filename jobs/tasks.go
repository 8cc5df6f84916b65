package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskStockResync recomputes every product's denormalized stock total.
	TaskStockResync = "stock:resync"
	// TaskLowStockScan refreshes the low/out-of-stock gauges.
	TaskLowStockScan = "stock:lowstock:scan"
)

// StockResyncPayload scopes a resync run. A zero ProductID means all products.
type StockResyncPayload struct {
	ProductID int64 `json:"product_id"`
}

// NewStockResyncTask constructs an Asynq task for a resync run.
func NewStockResyncTask(payload StockResyncPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskStockResync, data), nil
}

// NewLowStockScanTask constructs an Asynq task for a low-stock scan.
func NewLowStockScanTask() *asynq.Task {
	return asynq.NewTask(TaskLowStockScan, nil)
}
