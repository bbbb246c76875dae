package port

import (
	"context"
	"time"

	"github.com/yrcho/time-sale/internal/core/domain"
)

type DatabaseRepository interface {
	CreateTimeSale(ctx context.Context, sale *domain.TimeSale) error

	// GetTimeSale returns domain.ErrSaleNotFound for unknown ids.
	GetTimeSale(ctx context.Context, saleID string) (*domain.TimeSale, error)

	// ListOngoing returns ACTIVE sales whose window contains now.
	ListOngoing(ctx context.Context, now time.Time, limit, offset int) ([]domain.TimeSale, error)

	// ReserveAndDecrement validates the sale and durably decrements its
	// remaining quantity under an exclusive row lock. Remaining quantity
	// never goes negative. Returns the updated sale, or
	// domain.ErrSaleNotFound / domain.ErrNotInWindow / domain.ErrSoldOut.
	// The fulfillment path goes through CreateOrder, which runs this same
	// reservation inside its transaction; this standalone form is the bare
	// decrement for callers that do not produce an order.
	ReserveAndDecrement(ctx context.Context, saleID string, quantity int64) (*domain.TimeSale, error)

	// CreateOrder performs the ReserveAndDecrement reservation and inserts
	// the order in a single transaction. A replayed request id (unique key
	// on the orders table) yields domain.ErrDuplicateRequest without
	// decrementing.
	CreateOrder(ctx context.Context, order *domain.Order) (*domain.TimeSale, error)

	// HasOrderForRequest reports whether a request id already produced an order.
	HasOrderForRequest(ctx context.Context, requestID string) (bool, error)
}
