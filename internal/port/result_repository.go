package port

import (
	"context"
	"time"

	"github.com/yrcho/time-sale/internal/core/domain"
)

type ResultRepository interface {
	// SetResult records the status for a request id. Records expire after ttl.
	SetResult(ctx context.Context, requestID string, status domain.ResultStatus, ttl time.Duration) error

	// GetResult returns "" when the record is absent or already expired.
	GetResult(ctx context.Context, requestID string) (domain.ResultStatus, error)

	// AddWaiting registers the request in the sale's waiting set.
	AddWaiting(ctx context.Context, saleID, requestID string, enqueuedAt time.Time) error

	// RemoveWaiting drops the request from the waiting set; unknown ids are a no-op.
	RemoveWaiting(ctx context.Context, saleID, requestID string) error

	// QueuePosition returns the 1-based rank in the waiting set, 0 when the
	// request is not (or no longer) waiting.
	QueuePosition(ctx context.Context, saleID, requestID string) (int64, error)

	TotalWaiting(ctx context.Context, saleID string) (int64, error)
}
