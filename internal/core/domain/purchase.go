package domain

import "time"

// PurchaseRequest is the queue message handed from the admission path to the
// fulfillment worker once the shared stock counter admitted the request.
type PurchaseRequest struct {
	RequestID  string    `json:"request_id"`
	TimeSaleID string    `json:"time_sale_id"`
	UserID     string    `json:"user_id"`
	Quantity   int64     `json:"quantity"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

type ResultStatus string

const (
	ResultPending ResultStatus = "PENDING"
	ResultSuccess ResultStatus = "SUCCESS"
	ResultFail    ResultStatus = "FAIL"
)

// Terminal reports whether the status can no longer change.
func (s ResultStatus) Terminal() bool {
	return s == ResultSuccess || s == ResultFail
}

// PurchaseResult is the pollable view of one purchase request. QueuePosition
// and TotalWaiting are best-effort and only meaningful while PENDING.
type PurchaseResult struct {
	RequestID     string
	Status        ResultStatus
	QueuePosition int64 // 1-based, 0 when unknown
	TotalWaiting  int64
}
