package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/yrcho/time-sale/internal/core/domain"
	"github.com/yrcho/time-sale/internal/port"
)

// StatusService answers purchase result polls. Queue position and total
// waiting are best-effort views over the outstanding backlog and never gate
// correctness.
type StatusService struct {
	results port.ResultRepository
	logger  zerolog.Logger
}

func NewStatusService(results port.ResultRepository, logger zerolog.Logger) *StatusService {
	return &StatusService{results: results, logger: logger}
}

// GetPurchaseResult returns the current status for a request. A request id
// with no record reports PENDING: results are retained for a bounded period
// and admission writes the PENDING record before the caller learns the id.
func (s *StatusService) GetPurchaseResult(ctx context.Context, saleID, requestID string) (*domain.PurchaseResult, error) {
	status, err := s.results.GetResult(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("load purchase result: %w", err)
	}
	if status == "" {
		status = domain.ResultPending
	}

	res := &domain.PurchaseResult{RequestID: requestID, Status: status}
	if status != domain.ResultPending {
		return res, nil
	}

	pos, err := s.results.QueuePosition(ctx, saleID, requestID)
	if err != nil {
		s.logger.Warn().Err(err).Str("request_id", requestID).Msg("queue position lookup failed")
	} else {
		res.QueuePosition = pos
	}
	total, err := s.results.TotalWaiting(ctx, saleID)
	if err != nil {
		s.logger.Warn().Err(err).Str("time_sale_id", saleID).Msg("total waiting lookup failed")
	} else {
		res.TotalWaiting = total
	}
	return res, nil
}
