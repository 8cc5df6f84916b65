package stock

import (
	"errors"
	"time"
)

// MovementKind enumerates supported ledger movements.
type MovementKind string

const (
	// MovementPurchase records goods received from a supplier.
	MovementPurchase MovementKind = "purchase"
	// MovementSale records goods leaving through a sale.
	MovementSale MovementKind = "sale"
	// MovementAdjustment records a manual correction.
	MovementAdjustment MovementKind = "adjustment"
	// MovementTransfer records a warehouse-to-warehouse move.
	MovementTransfer MovementKind = "transfer"
	// MovementReturn records goods coming back from a customer.
	MovementReturn MovementKind = "return"
	// MovementDamage records goods written off as damaged.
	MovementDamage MovementKind = "damage"
)

// Valid reports whether the kind is one of the ledgered movement kinds.
func (k MovementKind) Valid() bool {
	switch k {
	case MovementPurchase, MovementSale, MovementAdjustment, MovementTransfer, MovementReturn, MovementDamage:
		return true
	}
	return false
}

// OverdraftPolicy decides what happens when a deduction exceeds the balance.
type OverdraftPolicy string

const (
	// PolicyReject fails the operation with ErrInsufficientStock.
	PolicyReject OverdraftPolicy = "reject"
	// PolicyClampToZero truncates the resulting quantity at zero.
	PolicyClampToZero OverdraftPolicy = "clamp"
)

// BalanceKey identifies one balance cell. An empty VariantName denotes the
// base, non-variant product.
type BalanceKey struct {
	ProductID   int64
	VariantName string
	WarehouseID int64
}

// BalanceRecord is the current quantity on hand for one (product, variant,
// warehouse) triple. Quantity never goes negative; at most one active record
// exists per triple, enforced by a partial unique index.
type BalanceRecord struct {
	ID           int64      `json:"id"`
	ProductID    int64      `json:"product_id"`
	VariantName  string     `json:"variant_name,omitempty"`
	WarehouseID  int64      `json:"warehouse_id"`
	Quantity     int64      `json:"quantity"`
	ReorderPoint int64      `json:"reorder_point"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Key returns the identity triple of the record.
func (b BalanceRecord) Key() BalanceKey {
	return BalanceKey{ProductID: b.ProductID, VariantName: b.VariantName, WarehouseID: b.WarehouseID}
}

// Active reports whether the record is not soft-deleted.
func (b BalanceRecord) Active() bool {
	return b.DeletedAt == nil
}

// MovementRecord is an immutable audit entry describing one quantity change.
// NewQuantity always equals PreviousQuantity + Delta: when a clamped deduction
// truncates at zero the stored delta is the applied delta, and the requested
// amount is noted in Notes.
type MovementRecord struct {
	ID               int64        `json:"id"`
	ProductID        int64        `json:"product_id"`
	VariantName      string       `json:"variant_name,omitempty"`
	WarehouseID      int64        `json:"warehouse_id"`
	Kind             MovementKind `json:"kind"`
	Delta            int64        `json:"delta"`
	PreviousQuantity int64        `json:"previous_quantity"`
	NewQuantity      int64        `json:"new_quantity"`
	Notes            string       `json:"notes,omitempty"`
	ActorID          int64        `json:"actor_id,omitempty"`
	RefID            string       `json:"ref_id,omitempty"`
	CreatedAt        time.Time    `json:"created_at"`
}

// CreateBalanceInput describes a new balance cell.
type CreateBalanceInput struct {
	ProductID    int64
	VariantName  string
	WarehouseID  int64
	Quantity     int64
	ReorderPoint int64
	ActorID      int64
}

// AdjustInput describes a strict deduction: quantity must not exceed the
// current balance.
type AdjustInput struct {
	BalanceID      int64
	Quantity       int64
	Reason         string
	ActorID        int64
	IdempotencyKey string
}

// QuickAdjustOp selects the direction of a quick adjustment.
type QuickAdjustOp string

const (
	// OpAdd increases the balance.
	OpAdd QuickAdjustOp = "add"
	// OpDeduct decreases the balance, clamping at zero.
	OpDeduct QuickAdjustOp = "deduct"
)

// QuickAdjustInput describes a clamped adjustment in either direction.
type QuickAdjustInput struct {
	BalanceID      int64
	Op             QuickAdjustOp
	Quantity       int64
	Notes          string
	ActorID        int64
	IdempotencyKey string
}

// PatchInput updates balance fields directly. A non-nil Quantity is routed
// through the ledger as a correction movement; only ReorderPoint is written
// without a movement.
type PatchInput struct {
	Quantity     *int64
	ReorderPoint *int64
	ActorID      int64
}

// SaleLine describes one deduction requested by the sales integration.
type SaleLine struct {
	ProductID   int64
	VariantName string
	WarehouseID int64
	Quantity    int64
}

// ListFilter narrows balance listings.
type ListFilter struct {
	ProductID   int64
	WarehouseID int64
	Page        int
	Limit       int
}

// WarehouseCell is one warehouse slot in the stock summary.
type WarehouseCell struct {
	WarehouseID  int64 `json:"warehouse_id"`
	Quantity     int64 `json:"quantity"`
	ReorderPoint int64 `json:"reorder_point"`
	IsLowStock   bool  `json:"is_low_stock"`
}

// VariantSummary groups the warehouse cells of one variant.
type VariantSummary struct {
	VariantName string          `json:"variant_name,omitempty"`
	TotalStock  int64           `json:"total_stock"`
	Warehouses  []WarehouseCell `json:"warehouses"`
}

// ProductStockSummary is the per-product roll-up returned by Summarize.
type ProductStockSummary struct {
	ProductID      int64            `json:"product_id"`
	Title          string           `json:"title"`
	TotalStock     int64            `json:"total_stock"`
	VariantCount   int              `json:"variant_count"`
	WarehouseCount int              `json:"warehouse_count"`
	HasLowStock    bool             `json:"has_low_stock"`
	HasOutOfStock  bool             `json:"has_out_of_stock"`
	Variants       []VariantSummary `json:"variants"`
}

// StockStats aggregates the summary into headline numbers.
type StockStats struct {
	TotalProducts   int `json:"total_products"`
	LowStockCount   int `json:"low_stock_count"`
	OutOfStockCount int `json:"out_of_stock_count"`
}

// ErrInsufficientStock is returned when a strict deduction exceeds the balance.
var ErrInsufficientStock = errors.New("stock: insufficient stock")

// ErrBalanceNotFound indicates a missing or soft-deleted balance record.
var ErrBalanceNotFound = errors.New("stock: balance not found")

// ErrBalanceExists indicates an active record already covers the triple.
var ErrBalanceExists = errors.New("stock: balance already exists for product/variant/warehouse")

// ErrInvalidQuantity indicates a non-positive quantity.
var ErrInvalidQuantity = errors.New("stock: quantity must be positive")

// ErrInvalidInput indicates missing identity fields or an unknown operation.
var ErrInvalidInput = errors.New("stock: invalid input")
