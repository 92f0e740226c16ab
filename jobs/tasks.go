package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskStockSnapshotWarmup pre-populates the derived stock cache.
	TaskStockSnapshotWarmup = "stock:snapshot_warmup"
	// TaskIdempotencyCleanup prunes consumed idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// StockWarmupPayload scopes a warmup run. An empty payload warms the
// global scope only.
type StockWarmupPayload struct {
	WarehouseIDs []int64 `json:"warehouse_ids,omitempty"`
}

// NewStockWarmupTask constructs an Asynq task.
func NewStockWarmupTask(payload StockWarmupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskStockSnapshotWarmup, data), nil
}

// IdempotencyCleanupPayload bounds how far back cleanup reaches.
type IdempotencyCleanupPayload struct {
	OlderThan time.Duration `json:"older_than"`
}

// NewIdempotencyCleanupTask constructs an Asynq task.
func NewIdempotencyCleanupTask(payload IdempotencyCleanupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, data), nil
}
