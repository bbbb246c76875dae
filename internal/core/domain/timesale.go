package domain

import "time"

type TimeSaleStatus string

const (
	TimeSaleStatusActive   TimeSaleStatus = "ACTIVE"
	TimeSaleStatusEnded    TimeSaleStatus = "ENDED"
	TimeSaleStatusDepleted TimeSaleStatus = "DEPLETED"
)

type TimeSale struct {
	ID                string
	ProductID         string
	Quantity          int64 // total allocation, immutable after creation
	RemainingQuantity int64
	DiscountPrice     int64
	StartAt           time.Time
	EndAt             time.Time
	Status            TimeSaleStatus
	Version           int64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// InWindow reports whether now falls inside [StartAt, EndAt).
func (ts *TimeSale) InWindow(now time.Time) bool {
	return !now.Before(ts.StartAt) && now.Before(ts.EndAt)
}

// ValidatePurchase checks status, sale window and remaining quantity without
// mutating the sale.
func (ts *TimeSale) ValidatePurchase(quantity int64, now time.Time) error {
	if ts.Status == TimeSaleStatusDepleted {
		return ErrSoldOut
	}
	if ts.Status != TimeSaleStatusActive || !ts.InWindow(now) {
		return ErrNotInWindow
	}
	if ts.RemainingQuantity < quantity {
		return ErrSoldOut
	}
	return nil
}
