package port

import (
	"context"
	"errors"
	"time"
)

// ErrLockTimeout is returned when the bounded wait elapses without the lock
// being granted. It signals backpressure, not a data error.
var ErrLockTimeout = errors.New("lock wait timed out")

// Lock is a held lease-bound lock.
type Lock interface {
	// Release gives the lock back. Releasing a lease that already expired is
	// a no-op, never an error.
	Release(ctx context.Context) error
}

type LockService interface {
	// TryAcquire blocks up to wait for the lock keyed by key. The grant
	// expires after lease if the holder never releases it, so a crashed
	// holder cannot deadlock other callers.
	TryAcquire(ctx context.Context, key string, wait, lease time.Duration) (Lock, error)
}
