package stock

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/warewise/warewise/internal/platform/db"
)

// Repository persists ledger data in PostgreSQL. The stock_balances table
// carries a partial unique index on (product_id, COALESCE(variant_name,''),
// warehouse_id) WHERE deleted_at IS NULL; CreateBalance relies on it for the
// one-active-record invariant.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the operations that must run inside one transaction:
// the balance row is locked, updated, and the movement appended atomically.
type TxRepository interface {
	GetBalanceForUpdate(ctx context.Context, id int64) (BalanceRecord, error)
	GetBalanceForUpdateByKey(ctx context.Context, key BalanceKey) (BalanceRecord, error)
	UpdateQuantity(ctx context.Context, id, quantity int64) (BalanceRecord, error)
	InsertMovement(ctx context.Context, m MovementRecord) (MovementRecord, error)
}

type txRepository struct {
	tx pgx.Tx
}

const balanceColumns = `id, product_id, COALESCE(variant_name,''), warehouse_id, quantity, reorder_point, deleted_at, created_at, updated_at`

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("stock repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

// CreateBalance inserts a new balance cell. A duplicate active triple maps to
// ErrBalanceExists via the unique-violation code.
func (r *Repository) CreateBalance(ctx context.Context, input CreateBalanceInput) (BalanceRecord, error) {
	var rec BalanceRecord
	err := r.pool.QueryRow(ctx, `INSERT INTO stock_balances (product_id, variant_name, warehouse_id, quantity, reorder_point, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,NOW(),NOW())
RETURNING `+balanceColumns, input.ProductID, nullStr(input.VariantName), input.WarehouseID, input.Quantity, input.ReorderPoint).
		Scan(&rec.ID, &rec.ProductID, &rec.VariantName, &rec.WarehouseID, &rec.Quantity, &rec.ReorderPoint, &rec.DeletedAt, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return BalanceRecord{}, ErrBalanceExists
		}
		return BalanceRecord{}, err
	}
	return rec, nil
}

// GetBalance loads one active balance record.
func (r *Repository) GetBalance(ctx context.Context, id int64) (BalanceRecord, error) {
	var rec BalanceRecord
	err := r.pool.QueryRow(ctx, `SELECT `+balanceColumns+` FROM stock_balances WHERE id=$1 AND deleted_at IS NULL`, id).
		Scan(&rec.ID, &rec.ProductID, &rec.VariantName, &rec.WarehouseID, &rec.Quantity, &rec.ReorderPoint, &rec.DeletedAt, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return BalanceRecord{}, ErrBalanceNotFound
		}
		return BalanceRecord{}, err
	}
	return rec, nil
}

// ListBalances returns a page of active balance records plus the total count.
func (r *Repository) ListBalances(ctx context.Context, filter ListFilter) ([]BalanceRecord, int, error) {
	where := ` WHERE deleted_at IS NULL`
	args := []any{}
	if filter.ProductID != 0 {
		args = append(args, filter.ProductID)
		where += ` AND product_id = $` + strconv.Itoa(len(args))
	}
	if filter.WarehouseID != 0 {
		args = append(args, filter.WarehouseID)
		where += ` AND warehouse_id = $` + strconv.Itoa(len(args))
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM stock_balances`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	args = append(args, limit)
	query := `SELECT ` + balanceColumns + ` FROM stock_balances` + where + ` ORDER BY product_id ASC, warehouse_id ASC, id ASC LIMIT $` + strconv.Itoa(len(args))
	args = append(args, (page-1)*limit)
	query += ` OFFSET $` + strconv.Itoa(len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	records := []BalanceRecord{}
	for rows.Next() {
		var rec BalanceRecord
		if err := rows.Scan(&rec.ID, &rec.ProductID, &rec.VariantName, &rec.WarehouseID, &rec.Quantity, &rec.ReorderPoint, &rec.DeletedAt, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, 0, err
		}
		records = append(records, rec)
	}
	return records, total, rows.Err()
}

// UpdateReorderPoint patches the reorder point without touching the ledger.
func (r *Repository) UpdateReorderPoint(ctx context.Context, id, point int64) (BalanceRecord, error) {
	var rec BalanceRecord
	err := r.pool.QueryRow(ctx, `UPDATE stock_balances SET reorder_point=$2, updated_at=NOW() WHERE id=$1 AND deleted_at IS NULL
RETURNING `+balanceColumns, id, point).
		Scan(&rec.ID, &rec.ProductID, &rec.VariantName, &rec.WarehouseID, &rec.Quantity, &rec.ReorderPoint, &rec.DeletedAt, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return BalanceRecord{}, ErrBalanceNotFound
		}
		return BalanceRecord{}, err
	}
	return rec, nil
}

// SoftDeleteBalance sets the delete marker, keeping the row for the movement
// history. Returns the record as it was before deletion.
func (r *Repository) SoftDeleteBalance(ctx context.Context, id int64) (BalanceRecord, error) {
	var rec BalanceRecord
	err := r.pool.QueryRow(ctx, `UPDATE stock_balances SET deleted_at=NOW(), updated_at=NOW() WHERE id=$1 AND deleted_at IS NULL
RETURNING `+balanceColumns, id).
		Scan(&rec.ID, &rec.ProductID, &rec.VariantName, &rec.WarehouseID, &rec.Quantity, &rec.ReorderPoint, &rec.DeletedAt, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return BalanceRecord{}, ErrBalanceNotFound
		}
		return BalanceRecord{}, err
	}
	return rec, nil
}

// ListMovements returns the chronological movement history of one triple.
func (r *Repository) ListMovements(ctx context.Context, key BalanceKey, limit int) ([]MovementRecord, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `SELECT id, product_id, COALESCE(variant_name,''), warehouse_id, kind, delta, previous_quantity, new_quantity, COALESCE(notes,''), COALESCE(actor_id,0), COALESCE(ref_id,''), created_at
FROM stock_movements
WHERE product_id=$1 AND COALESCE(variant_name,'')=$2 AND warehouse_id=$3
ORDER BY created_at ASC, id ASC
LIMIT $4`, key.ProductID, key.VariantName, key.WarehouseID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	movements := []MovementRecord{}
	for rows.Next() {
		var m MovementRecord
		if err := rows.Scan(&m.ID, &m.ProductID, &m.VariantName, &m.WarehouseID, &m.Kind, &m.Delta, &m.PreviousQuantity, &m.NewQuantity, &m.Notes, &m.ActorID, &m.RefID, &m.CreatedAt); err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

func (r *txRepository) GetBalanceForUpdate(ctx context.Context, id int64) (BalanceRecord, error) {
	return r.lockBalance(ctx, `SELECT `+balanceColumns+` FROM stock_balances WHERE id=$1 AND deleted_at IS NULL FOR UPDATE`, id)
}

func (r *txRepository) GetBalanceForUpdateByKey(ctx context.Context, key BalanceKey) (BalanceRecord, error) {
	return r.lockBalance(ctx, `SELECT `+balanceColumns+` FROM stock_balances WHERE product_id=$1 AND COALESCE(variant_name,'')=$2 AND warehouse_id=$3 AND deleted_at IS NULL FOR UPDATE`,
		key.ProductID, key.VariantName, key.WarehouseID)
}

func (r *txRepository) lockBalance(ctx context.Context, query string, args ...any) (BalanceRecord, error) {
	var rec BalanceRecord
	err := r.tx.QueryRow(ctx, query, args...).
		Scan(&rec.ID, &rec.ProductID, &rec.VariantName, &rec.WarehouseID, &rec.Quantity, &rec.ReorderPoint, &rec.DeletedAt, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return BalanceRecord{}, ErrBalanceNotFound
		}
		return BalanceRecord{}, err
	}
	return rec, nil
}

func (r *txRepository) UpdateQuantity(ctx context.Context, id, quantity int64) (BalanceRecord, error) {
	var rec BalanceRecord
	err := r.tx.QueryRow(ctx, `UPDATE stock_balances SET quantity=$2, updated_at=NOW() WHERE id=$1 AND deleted_at IS NULL
RETURNING `+balanceColumns, id, quantity).
		Scan(&rec.ID, &rec.ProductID, &rec.VariantName, &rec.WarehouseID, &rec.Quantity, &rec.ReorderPoint, &rec.DeletedAt, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return BalanceRecord{}, ErrBalanceNotFound
		}
		return BalanceRecord{}, err
	}
	return rec, nil
}

func (r *txRepository) InsertMovement(ctx context.Context, m MovementRecord) (MovementRecord, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_movements (product_id, variant_name, warehouse_id, kind, delta, previous_quantity, new_quantity, notes, actor_id, ref_id, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,NOW()) RETURNING id, created_at`,
		m.ProductID, nullStr(m.VariantName), m.WarehouseID, string(m.Kind), m.Delta, m.PreviousQuantity, m.NewQuantity, m.Notes, m.ActorID, nullStr(m.RefID)).
		Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return MovementRecord{}, err
	}
	return m, nil
}

// SumProductQuantity totals the active balances for one product.
func (r *Repository) SumProductQuantity(ctx context.Context, productID int64) (int64, error) {
	var total int64
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(quantity),0) FROM stock_balances WHERE product_id=$1 AND deleted_at IS NULL`, productID).Scan(&total)
	return total, err
}

// UpdateProductTotal writes the denormalized total onto the product row.
func (r *Repository) UpdateProductTotal(ctx context.Context, productID, total int64) error {
	_, err := r.pool.Exec(ctx, `UPDATE products SET total_stock=$2, updated_at=NOW() WHERE id=$1`, productID, total)
	return err
}

// ListProductIDs returns every product with at least one active balance.
func (r *Repository) ListProductIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT product_id FROM stock_balances WHERE deleted_at IS NULL ORDER BY product_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListSummaryRows returns every active balance cell joined with its product title.
func (r *Repository) ListSummaryRows(ctx context.Context) ([]SummaryRow, error) {
	rows, err := r.pool.Query(ctx, `SELECT b.product_id, p.title, COALESCE(b.variant_name,''), b.warehouse_id, b.quantity, b.reorder_point
FROM stock_balances b
JOIN products p ON p.id = b.product_id
WHERE b.deleted_at IS NULL
ORDER BY b.product_id, COALESCE(b.variant_name,''), b.warehouse_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	result := []SummaryRow{}
	for rows.Next() {
		var row SummaryRow
		if err := rows.Scan(&row.ProductID, &row.Title, &row.VariantName, &row.WarehouseID, &row.Quantity, &row.ReorderPoint); err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

func nullStr(value string) any {
	if value == "" {
		return nil
	}
	return value
}
