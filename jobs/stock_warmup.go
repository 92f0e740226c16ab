package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/meridian-erp/meridian-erp/internal/stock"
)

// StockWarmupJob pre-populates the cached bulk stock views so the first
// read after an invalidation does not pay for the ledger fold.
type StockWarmupJob struct {
	Stocks *stock.Service
	Logger *slog.Logger
}

// NewStockWarmupJob wires dependencies for the warmup handler.
func NewStockWarmupJob(stocks *stock.Service, logger *slog.Logger) *StockWarmupJob {
	return &StockWarmupJob{Stocks: stocks, Logger: logger}
}

// Handle processes stock warmup tasks.
func (j *StockWarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Stocks == nil {
		return errors.New("stock warmup: handler not configured")
	}
	var payload StockWarmupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	logger := j.logger()
	started := time.Now()
	logger.Info("starting stock warmup", slog.Int("warehouses", len(payload.WarehouseIDs)))

	if err := j.Stocks.Warm(ctx); err != nil {
		logger.Error("warm global scope", slog.Any("error", err))
		return err
	}
	for _, warehouseID := range payload.WarehouseIDs {
		scopeCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
		_, err := j.Stocks.GetStockBulk(scopeCtx, &warehouseID)
		cancel()
		if err != nil {
			logger.Error("warm warehouse scope", slog.Int64("warehouse_id", warehouseID), slog.Any("error", err))
			return err
		}
	}

	logger.Info("completed stock warmup", slog.Duration("duration", time.Since(started)))
	return nil
}

func (j *StockWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskStockSnapshotWarmup))
	}
	return slog.Default().With(slog.String("job", TaskStockSnapshotWarmup))
}
