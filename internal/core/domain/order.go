package domain

import "time"

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusCompleted OrderStatus = "completed"
)

type Order struct {
	ID            string
	RequestID     string // purchase request that produced this order, unique
	TimeSaleID    string
	UserID        string
	Quantity      int64
	DiscountPrice int64
	Status        OrderStatus
	CreatedAt     time.Time
}
