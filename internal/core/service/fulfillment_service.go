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

// FulfillmentService consumes admitted purchase requests and performs the
// authoritative decrement against the record store. Processing is idempotent:
// the queue delivers at least once, and a replayed request that already
// reached a terminal result is a no-op.
type FulfillmentService struct {
	db        port.DatabaseRepository
	cache     port.CacheRepository
	results   port.ResultRepository
	rec       *metrics.Recorder
	logger    zerolog.Logger
	resultTTL time.Duration
}

func NewFulfillmentService(
	db port.DatabaseRepository,
	cache port.CacheRepository,
	results port.ResultRepository,
	rec *metrics.Recorder,
	logger zerolog.Logger,
	resultTTL time.Duration,
) *FulfillmentService {
	if resultTTL <= 0 {
		resultTTL = defaultResultTTL
	}
	return &FulfillmentService{
		db:        db,
		cache:     cache,
		results:   results,
		rec:       rec,
		logger:    logger,
		resultTTL: resultTTL,
	}
}

// Process handles one purchase request to a terminal result. A non-nil error
// means the terminal result could not be recorded and the message must be
// redelivered; every other failure is converted into a FAIL result with
// counter compensation so the pipeline keeps moving.
func (s *FulfillmentService) Process(ctx context.Context, req *domain.PurchaseRequest) error {
	start := time.Now()
	defer s.removeWaiting(ctx, req)

	status, err := s.results.GetResult(ctx, req.RequestID)
	if err != nil {
		// degraded but not fatal, the order uniqueness check below still
		// guards against a double decrement
		s.logger.Warn().Err(err).Str("request_id", req.RequestID).Msg("result lookup failed")
	}
	if status.Terminal() {
		s.rec.Observe("fulfill", "replay", start)
		return nil
	}

	exists, err := s.db.HasOrderForRequest(ctx, req.RequestID)
	if err != nil {
		// transient store failure, not a rejection: nothing has been decided
		// yet, so redeliver rather than failing a request the store never saw
		return fmt.Errorf("check existing order: %w", err)
	}
	if exists {
		return s.succeed(ctx, req, start)
	}

	order := &domain.Order{
		ID:         uuid.NewString(),
		RequestID:  req.RequestID,
		TimeSaleID: req.TimeSaleID,
		UserID:     req.UserID,
		Quantity:   req.Quantity,
		Status:     domain.OrderStatusCompleted,
		CreatedAt:  time.Now(),
	}

	sale, err := s.db.CreateOrder(ctx, order)
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateRequest) {
			// redelivery raced an earlier delivery, the order already exists
			return s.succeed(ctx, req, start)
		}
		return s.reject(ctx, req, start, err)
	}

	if err := s.cache.SaveTimeSale(ctx, sale); err != nil {
		s.logger.Warn().Err(err).Str("time_sale_id", sale.ID).Msg("failed to refresh time sale snapshot")
	}

	if err := s.results.SetResult(ctx, req.RequestID, domain.ResultSuccess, s.resultTTL); err != nil {
		// redelivered message will find the order and replay SUCCESS
		return fmt.Errorf("record success result: %w", err)
	}

	s.rec.Observe("fulfill", "success", start)
	s.logger.Info().
		Str("request_id", req.RequestID).
		Str("time_sale_id", req.TimeSaleID).
		Str("order_id", order.ID).
		Int64("remaining", sale.RemainingQuantity).
		Msg("purchase fulfilled")
	return nil
}

func (s *FulfillmentService) succeed(ctx context.Context, req *domain.PurchaseRequest, start time.Time) error {
	if err := s.results.SetResult(ctx, req.RequestID, domain.ResultSuccess, s.resultTTL); err != nil {
		return fmt.Errorf("record replayed success result: %w", err)
	}
	s.rec.Observe("fulfill", "replay", start)
	return nil
}

// reject records the FAIL result first, then compensates the shared counter.
// Ordering matters: if the result write fails the message is redelivered with
// no compensation applied yet, so the counter is never restored twice.
func (s *FulfillmentService) reject(ctx context.Context, req *domain.PurchaseRequest, start time.Time, cause error) error {
	s.logger.Warn().Err(cause).
		Str("request_id", req.RequestID).
		Str("time_sale_id", req.TimeSaleID).
		Msg("purchase request rejected by record store")

	if err := s.results.SetResult(ctx, req.RequestID, domain.ResultFail, s.resultTTL); err != nil {
		return fmt.Errorf("record fail result: %w", err)
	}
	if err := s.cache.RestoreStock(ctx, req.TimeSaleID, req.Quantity); err != nil {
		s.logger.Error().Err(err).
			Str("request_id", req.RequestID).
			Int64("quantity", req.Quantity).
			Msg("CRITICAL: failed to restore stock counter after rejection")
	}
	s.rec.Observe("fulfill", "fail", start)
	return nil
}

func (s *FulfillmentService) removeWaiting(ctx context.Context, req *domain.PurchaseRequest) {
	if err := s.results.RemoveWaiting(ctx, req.TimeSaleID, req.RequestID); err != nil {
		s.logger.Warn().Err(err).Str("request_id", req.RequestID).Msg("failed to remove waiting position")
	}
}
