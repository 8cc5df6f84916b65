package catalog

import (
	"errors"
	"time"
)

// Product is a sellable item. TotalStock is denormalized and maintained by the
// stock aggregator; catalog never writes it directly.
type Product struct {
	ID         int64     `json:"id"`
	SKU        string    `json:"sku"`
	Title      string    `json:"title"`
	CategoryID int64     `json:"category_id,omitempty"`
	TotalStock int64     `json:"total_stock"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Category groups products for listing filters.
type Category struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateProductInput carries the fields for a new product.
type CreateProductInput struct {
	SKU        string
	Title      string
	CategoryID int64
	ActorID    int64
}

// UpdateProductInput patches mutable product fields.
type UpdateProductInput struct {
	Title      *string
	CategoryID *int64
	ActorID    int64
}

// ListFilter narrows product listings.
type ListFilter struct {
	CategoryID int64
	Search     string
	Page       int
	Limit      int
}

var (
	ErrProductNotFound  = errors.New("catalog: product not found")
	ErrSKUExists        = errors.New("catalog: sku already exists")
	ErrCategoryNotFound = errors.New("catalog: category not found")
	ErrInvalidInput     = errors.New("catalog: invalid input")
)
