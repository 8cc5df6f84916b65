package orders

import (
	"errors"
	"time"
)

// Status tracks an order through its lifecycle.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusFulfilled Status = "fulfilled"
	StatusCancelled Status = "cancelled"
)

// Order is a customer order. RefID is a stable UUID used as the reference on
// stock movements produced when the order is fulfilled.
type Order struct {
	ID        int64      `json:"id"`
	RefID     string     `json:"ref_id"`
	Status    Status     `json:"status"`
	Lines     []Line     `json:"lines"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
}

// Line is one product quantity fulfilled from one warehouse.
type Line struct {
	ID          int64  `json:"id"`
	OrderID     int64  `json:"order_id"`
	ProductID   int64  `json:"product_id"`
	VariantName string `json:"variant_name,omitempty"`
	WarehouseID int64  `json:"warehouse_id"`
	Quantity    int64  `json:"quantity"`
}

// CreateOrderInput carries the lines of a new draft order.
type CreateOrderInput struct {
	Lines   []LineInput
	ActorID int64
}

// LineInput is one requested line.
type LineInput struct {
	ProductID   int64
	VariantName string
	WarehouseID int64
	Quantity    int64
}

var (
	ErrOrderNotFound = errors.New("orders: order not found")
	ErrNotDraft      = errors.New("orders: order is not in draft status")
	ErrInvalidInput  = errors.New("orders: invalid input")
)
