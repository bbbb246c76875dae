package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/yrcho/time-sale/internal/core/domain"
	"github.com/yrcho/time-sale/internal/metrics"
	"github.com/yrcho/time-sale/internal/port"
)

var (
	// ErrLockTimeout means the purchase lock could not be acquired in time.
	// The caller may retry later; nothing was reserved or queued.
	ErrLockTimeout = errors.New("purchase capacity exceeded, try again")

	// ErrQueueUnavailable means the request was admitted but could not be
	// enqueued. The reservation has already been compensated.
	ErrQueueUnavailable = errors.New("purchase queue unavailable")

	ErrInvalidQuantity = errors.New("quantity must be at least 1")
)

const (
	lockKeyPrefix = "time-sale-lock:"

	defaultLockWait  = 3 * time.Second
	defaultLockLease = 3 * time.Second
	defaultResultTTL = 24 * time.Hour
)

type AdmissionConfig struct {
	LockWait  time.Duration
	LockLease time.Duration
	ResultTTL time.Duration
}

func (c *AdmissionConfig) applyDefaults() {
	if c.LockWait <= 0 {
		c.LockWait = defaultLockWait
	}
	if c.LockLease <= 0 {
		c.LockLease = defaultLockLease
	}
	if c.ResultTTL <= 0 {
		c.ResultTTL = defaultResultTTL
	}
}

// AdmissionService is the synchronous purchase entry point. It serializes
// admission per sale with a lease-bound distributed lock, reserves stock
// against the shared counter, and defers the durable decrement to the
// fulfillment worker through the message queue.
type AdmissionService struct {
	cfg     AdmissionConfig
	sales   *TimeSaleService
	cache   port.CacheRepository
	results port.ResultRepository
	locks   port.LockService
	queue   port.MessageQueue
	rec     *metrics.Recorder
	logger  zerolog.Logger
}

func NewAdmissionService(
	cfg AdmissionConfig,
	sales *TimeSaleService,
	cache port.CacheRepository,
	results port.ResultRepository,
	locks port.LockService,
	queue port.MessageQueue,
	rec *metrics.Recorder,
	logger zerolog.Logger,
) *AdmissionService {
	cfg.applyDefaults()
	return &AdmissionService{
		cfg:     cfg,
		sales:   sales,
		cache:   cache,
		results: results,
		locks:   locks,
		queue:   queue,
		rec:     rec,
		logger:  logger,
	}
}

// Purchase admits a purchase attempt. On success the returned request id is
// already recorded PENDING and the caller polls for the terminal result.
// Rejections are terminal except ErrLockTimeout and ErrQueueUnavailable.
func (s *AdmissionService) Purchase(ctx context.Context, saleID, userID string, quantity int64) (string, error) {
	start := time.Now()
	if quantity < 1 {
		return "", ErrInvalidQuantity
	}

	lock, err := s.locks.TryAcquire(ctx, lockKeyPrefix+saleID, s.cfg.LockWait, s.cfg.LockLease)
	if err != nil {
		if errors.Is(err, port.ErrLockTimeout) {
			s.rec.Observe("purchase", "lock_timeout", start)
			return "", ErrLockTimeout
		}
		return "", fmt.Errorf("acquire purchase lock: %w", err)
	}
	defer func() {
		if err := lock.Release(ctx); err != nil {
			s.logger.Error().Err(err).Str("time_sale_id", saleID).Msg("failed to release purchase lock")
		}
	}()

	sale, err := s.sales.GetTimeSale(ctx, saleID)
	if err != nil {
		if errors.Is(err, domain.ErrSaleNotFound) {
			s.rec.Observe("purchase", "not_found", start)
		}
		return "", err
	}

	now := time.Now()
	if sale.Status == domain.TimeSaleStatusDepleted {
		s.rec.Observe("purchase", "sold_out", start)
		return "", domain.ErrSoldOut
	}
	if sale.Status != domain.TimeSaleStatusActive || !sale.InWindow(now) {
		s.rec.Observe("purchase", "not_in_window", start)
		return "", domain.ErrNotInWindow
	}

	ok, err := s.cache.TryReserve(ctx, saleID, quantity)
	if err != nil {
		return "", fmt.Errorf("reserve stock: %w", err)
	}
	if !ok {
		s.rec.Observe("purchase", "sold_out", start)
		return "", domain.ErrSoldOut
	}

	req := &domain.PurchaseRequest{
		RequestID:  uuid.NewString(),
		TimeSaleID: saleID,
		UserID:     userID,
		Quantity:   quantity,
		EnqueuedAt: now,
	}

	if err := s.results.SetResult(ctx, req.RequestID, domain.ResultPending, s.cfg.ResultTTL); err != nil {
		s.compensate(ctx, req)
		return "", fmt.Errorf("record pending result: %w", err)
	}
	if err := s.results.AddWaiting(ctx, saleID, req.RequestID, now); err != nil {
		// position info is best-effort, the purchase itself proceeds
		s.logger.Warn().Err(err).Str("request_id", req.RequestID).Msg("failed to register waiting position")
	}

	if err := s.queue.Enqueue(ctx, req); err != nil {
		s.compensate(ctx, req)
		s.rec.Observe("purchase", "queue_error", start)
		return "", fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
	}

	s.rec.Observe("purchase", "accepted", start)
	s.logger.Info().
		Str("request_id", req.RequestID).
		Str("time_sale_id", saleID).
		Str("user_id", userID).
		Int64("quantity", quantity).
		Msg("purchase request accepted")
	return req.RequestID, nil
}

// compensate undoes the optimistic reservation after an admission-side
// failure: the counter is restored, the result marked FAIL and the waiting
// slot dropped.
func (s *AdmissionService) compensate(ctx context.Context, req *domain.PurchaseRequest) {
	if err := s.cache.RestoreStock(ctx, req.TimeSaleID, req.Quantity); err != nil {
		s.logger.Error().Err(err).
			Str("request_id", req.RequestID).
			Int64("quantity", req.Quantity).
			Msg("CRITICAL: failed to restore stock counter")
	}
	if err := s.results.SetResult(ctx, req.RequestID, domain.ResultFail, s.cfg.ResultTTL); err != nil {
		s.logger.Error().Err(err).Str("request_id", req.RequestID).Msg("failed to record failed result")
	}
	if err := s.results.RemoveWaiting(ctx, req.TimeSaleID, req.RequestID); err != nil {
		s.logger.Warn().Err(err).Str("request_id", req.RequestID).Msg("failed to remove waiting position")
	}
}
