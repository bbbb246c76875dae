package port

import (
	"context"

	"github.com/yrcho/time-sale/internal/core/domain"
)

type MessageQueue interface {
	// Enqueue publishes a purchase request, keyed by its time-sale id so one
	// sale's requests keep rough arrival order. Delivery is at least once.
	Enqueue(ctx context.Context, req *domain.PurchaseRequest) error
}
