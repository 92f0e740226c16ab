package stock

import (
	"context"
	"log/slog"
	"strconv"

	"golang.org/x/sync/singleflight"
)

// RepositoryPort abstracts the direct fold for the service.
type RepositoryPort interface {
	GetStock(ctx context.Context, productID int64, warehouseID *int64) (Snapshot, error)
	GetStockBulk(ctx context.Context, warehouseID *int64) ([]ProductStock, error)
}

// Service serves derived stock views. Bulk reads go through the versioned
// cache and a singleflight group; any cache failure falls back to the
// direct fold so callers always get a first-principles answer.
type Service struct {
	repo   RepositoryPort
	cache  *Cache
	logger *slog.Logger
	group  singleflight.Group
}

// NewService builds Service. Cache may be nil, which disables acceleration.
func NewService(repo RepositoryPort, cache *Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: cache, logger: logger}
}

// GetStock returns the snapshot for one product. Always computed directly;
// single-product reads are cheap and consistency matters more here.
func (s *Service) GetStock(ctx context.Context, productID int64, warehouseID *int64) (Snapshot, error) {
	return s.repo.GetStock(ctx, productID, warehouseID)
}

// GetStockBulk returns per-product snapshots for every product.
func (s *Service) GetStockBulk(ctx context.Context, warehouseID *int64) ([]ProductStock, error) {
	if s.cache == nil {
		return s.repo.GetStockBulk(ctx, warehouseID)
	}

	scope := "all"
	if warehouseID != nil {
		scope = "wh:" + strconv.FormatInt(*warehouseID, 10)
	}
	key, err := s.cache.BuildKey(ctx, "stock", "bulk", scope)
	if err != nil {
		s.logger.Warn("stock cache key failed, using direct query", slog.Any("error", err))
		return s.repo.GetStockBulk(ctx, warehouseID)
	}

	value, err, _ := s.group.Do(key, func() (interface{}, error) {
		var rows []ProductStock
		err := s.cache.FetchJSON(ctx, key, &rows, func(ctx context.Context) (interface{}, error) {
			return s.repo.GetStockBulk(ctx, warehouseID)
		})
		return rows, err
	})
	if err != nil {
		s.logger.Warn("stock cache failed, using direct query", slog.Any("error", err))
		return s.repo.GetStockBulk(ctx, warehouseID)
	}
	return value.([]ProductStock), nil
}

// Warm precomputes the bulk view for the global scope. Used by the
// background warmup job after cache invalidations.
func (s *Service) Warm(ctx context.Context) error {
	_, err := s.GetStockBulk(ctx, nil)
	return err
}
