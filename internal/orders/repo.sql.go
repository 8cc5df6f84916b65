package orders

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists orders and their lines in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const orderColumns = `id, ref_id, status, created_at, updated_at, closed_at`

// CreateOrder inserts the order and its lines in one transaction.
func (r *Repository) CreateOrder(ctx context.Context, refID string, lines []LineInput) (Order, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Order{}, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var order Order
	err = tx.QueryRow(ctx, `INSERT INTO orders (ref_id, status, created_at, updated_at)
VALUES ($1,$2,NOW(),NOW())
RETURNING `+orderColumns, refID, StatusDraft).
		Scan(&order.ID, &order.RefID, &order.Status, &order.CreatedAt, &order.UpdatedAt, &order.ClosedAt)
	if err != nil {
		return Order{}, err
	}
	for _, input := range lines {
		var line Line
		err = tx.QueryRow(ctx, `INSERT INTO order_lines (order_id, product_id, variant_name, warehouse_id, quantity)
VALUES ($1,$2,$3,$4,$5)
RETURNING id, order_id, product_id, COALESCE(variant_name,''), warehouse_id, quantity`,
			order.ID, input.ProductID, nullStr(input.VariantName), input.WarehouseID, input.Quantity).
			Scan(&line.ID, &line.OrderID, &line.ProductID, &line.VariantName, &line.WarehouseID, &line.Quantity)
		if err != nil {
			return Order{}, err
		}
		order.Lines = append(order.Lines, line)
	}
	if err := tx.Commit(ctx); err != nil {
		return Order{}, err
	}
	return order, nil
}

// GetOrder loads one order with its lines.
func (r *Repository) GetOrder(ctx context.Context, id int64) (Order, error) {
	var order Order
	err := r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id).
		Scan(&order.ID, &order.RefID, &order.Status, &order.CreatedAt, &order.UpdatedAt, &order.ClosedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrOrderNotFound
	}
	if err != nil {
		return Order{}, err
	}

	rows, err := r.pool.Query(ctx, `SELECT id, order_id, product_id, COALESCE(variant_name,''), warehouse_id, quantity
FROM order_lines WHERE order_id=$1 ORDER BY id ASC`, id)
	if err != nil {
		return Order{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var line Line
		if err := rows.Scan(&line.ID, &line.OrderID, &line.ProductID, &line.VariantName, &line.WarehouseID, &line.Quantity); err != nil {
			return Order{}, err
		}
		order.Lines = append(order.Lines, line)
	}
	return order, rows.Err()
}

// ListOrders returns orders newest first, optionally filtered by status.
func (r *Repository) ListOrders(ctx context.Context, status Status, limit int) ([]Order, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	query := `SELECT ` + orderColumns + ` FROM orders`
	args := []any{}
	if status != "" {
		query += ` WHERE status=$1`
		args = append(args, status)
	}
	args = append(args, limit)
	if status != "" {
		query += ` ORDER BY id DESC LIMIT $2`
	} else {
		query += ` ORDER BY id DESC LIMIT $1`
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := []Order{}
	for rows.Next() {
		var order Order
		if err := rows.Scan(&order.ID, &order.RefID, &order.Status, &order.CreatedAt, &order.UpdatedAt, &order.ClosedAt); err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

// CloseOrder moves a draft order to the terminal status. The WHERE guard
// makes the transition race-safe: only one caller wins the draft row.
func (r *Repository) CloseOrder(ctx context.Context, id int64, status Status) (Order, error) {
	var order Order
	err := r.pool.QueryRow(ctx, `UPDATE orders SET status=$2, closed_at=NOW(), updated_at=NOW()
WHERE id=$1 AND status=$3
RETURNING `+orderColumns, id, status, StatusDraft).
		Scan(&order.ID, &order.RefID, &order.Status, &order.CreatedAt, &order.UpdatedAt, &order.ClosedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		// Either the order is missing or it already left draft.
		if _, getErr := r.GetOrder(ctx, id); getErr != nil {
			return Order{}, getErr
		}
		return Order{}, ErrNotDraft
	}
	if err != nil {
		return Order{}, err
	}
	return order, nil
}

func nullStr(value string) any {
	if value == "" {
		return nil
	}
	return value
}
