package port

import (
	"context"

	"github.com/yrcho/time-sale/internal/core/domain"
)

type CacheRepository interface {
	// TryReserve atomically decrements the shared stock counter, returning
	// false when remaining stock is insufficient (counter left unchanged).
	TryReserve(ctx context.Context, saleID string, quantity int64) (bool, error)

	// RestoreStock adds quantity back to the counter, compensating a
	// reservation that was later rejected or never enqueued.
	RestoreStock(ctx context.Context, saleID string, quantity int64) error

	// SetStock overwrites the counter, used at sale creation.
	SetStock(ctx context.Context, saleID string, quantity int64) error

	// GetTimeSale returns the cached sale snapshot, nil when absent.
	GetTimeSale(ctx context.Context, saleID string) (*domain.TimeSale, error)

	// SaveTimeSale writes the sale snapshot for the cache-aside read path.
	SaveTimeSale(ctx context.Context, sale *domain.TimeSale) error
}
