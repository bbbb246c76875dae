package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/yrcho/time-sale/internal/core/domain"
	"github.com/yrcho/time-sale/internal/port"
)

var ErrInvalidTimeSale = errors.New("invalid time sale")

// TimeSaleService manages the sale lifecycle and the cache-aside read path.
// Snapshots are written through to the cache so purchase admission can check
// the sale window without touching the database.
type TimeSaleService struct {
	db     port.DatabaseRepository
	cache  port.CacheRepository
	logger zerolog.Logger
}

func NewTimeSaleService(db port.DatabaseRepository, cache port.CacheRepository, logger zerolog.Logger) *TimeSaleService {
	return &TimeSaleService{db: db, cache: cache, logger: logger}
}

type CreateTimeSaleInput struct {
	ProductID     string
	Quantity      int64
	DiscountPrice int64
	StartAt       time.Time
	EndAt         time.Time
}

func (in CreateTimeSaleInput) validate() error {
	if in.ProductID == "" {
		return fmt.Errorf("%w: product id is required", ErrInvalidTimeSale)
	}
	if in.Quantity <= 0 {
		return fmt.Errorf("%w: quantity must be positive", ErrInvalidTimeSale)
	}
	if in.DiscountPrice <= 0 {
		return fmt.Errorf("%w: discount price must be positive", ErrInvalidTimeSale)
	}
	if !in.StartAt.Before(in.EndAt) {
		return fmt.Errorf("%w: start time must be before end time", ErrInvalidTimeSale)
	}
	return nil
}

// CreateTimeSale persists a new sale and seeds both the snapshot and the
// shared stock counter. A missing counter would make every admission attempt
// read as sold out, so a counter seed failure fails the create.
func (s *TimeSaleService) CreateTimeSale(ctx context.Context, in CreateTimeSaleInput) (*domain.TimeSale, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	now := time.Now()
	sale := &domain.TimeSale{
		ID:                uuid.NewString(),
		ProductID:         in.ProductID,
		Quantity:          in.Quantity,
		RemainingQuantity: in.Quantity,
		DiscountPrice:     in.DiscountPrice,
		StartAt:           in.StartAt,
		EndAt:             in.EndAt,
		Status:            domain.TimeSaleStatusActive,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := s.db.CreateTimeSale(ctx, sale); err != nil {
		return nil, fmt.Errorf("create time sale: %w", err)
	}
	if err := s.cache.SetStock(ctx, sale.ID, sale.RemainingQuantity); err != nil {
		return nil, fmt.Errorf("seed stock counter: %w", err)
	}
	if err := s.cache.SaveTimeSale(ctx, sale); err != nil {
		s.logger.Warn().Err(err).Str("time_sale_id", sale.ID).Msg("failed to cache time sale snapshot")
	}

	s.logger.Info().
		Str("time_sale_id", sale.ID).
		Str("product_id", sale.ProductID).
		Int64("quantity", sale.Quantity).
		Msg("time sale created")
	return sale, nil
}

// GetTimeSale reads the cached snapshot first and falls back to the database,
// repopulating the cache on a miss.
func (s *TimeSaleService) GetTimeSale(ctx context.Context, saleID string) (*domain.TimeSale, error) {
	sale, err := s.cache.GetTimeSale(ctx, saleID)
	if err != nil {
		s.logger.Warn().Err(err).Str("time_sale_id", saleID).Msg("snapshot read failed, falling back to database")
	}
	if sale != nil {
		return sale, nil
	}

	sale, err = s.db.GetTimeSale(ctx, saleID)
	if err != nil {
		return nil, err
	}
	if err := s.cache.SaveTimeSale(ctx, sale); err != nil {
		s.logger.Warn().Err(err).Str("time_sale_id", saleID).Msg("failed to repopulate time sale snapshot")
	}
	return sale, nil
}

// ListOngoing returns ACTIVE sales currently inside their sale window.
func (s *TimeSaleService) ListOngoing(ctx context.Context, limit, offset int) ([]domain.TimeSale, error) {
	if limit <= 0 {
		limit = 20
	}
	sales, err := s.db.ListOngoing(ctx, time.Now(), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list ongoing time sales: %w", err)
	}
	return sales, nil
}
