package catalog

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists products and categories in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const productColumns = `id, sku, title, COALESCE(category_id, 0), total_stock, created_at, updated_at`

// CreateProduct inserts a product. A duplicate SKU maps to ErrSKUExists.
func (r *Repository) CreateProduct(ctx context.Context, input CreateProductInput) (Product, error) {
	var p Product
	err := r.pool.QueryRow(ctx, `INSERT INTO products (sku, title, category_id, total_stock, created_at, updated_at)
VALUES ($1,$2,$3,0,NOW(),NOW())
RETURNING `+productColumns, input.SKU, input.Title, nullID(input.CategoryID)).
		Scan(&p.ID, &p.SKU, &p.Title, &p.CategoryID, &p.TotalStock, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Product{}, ErrSKUExists
		}
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return Product{}, ErrCategoryNotFound
		}
		return Product{}, err
	}
	return p, nil
}

// GetProduct loads one product by id.
func (r *Repository) GetProduct(ctx context.Context, id int64) (Product, error) {
	var p Product
	err := r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id=$1`, id).
		Scan(&p.ID, &p.SKU, &p.Title, &p.CategoryID, &p.TotalStock, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrProductNotFound
	}
	if err != nil {
		return Product{}, err
	}
	return p, nil
}

// ListProducts returns a filtered page of products with the total count.
func (r *Repository) ListProducts(ctx context.Context, filter ListFilter) ([]Product, int, error) {
	where := []string{"1=1"}
	args := []any{}
	if filter.CategoryID != 0 {
		args = append(args, filter.CategoryID)
		where = append(where, "category_id=$"+strconv.Itoa(len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		n := strconv.Itoa(len(args))
		where = append(where, "(title ILIKE $"+n+" OR sku ILIKE $"+n+")")
	}
	clause := strings.Join(where, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM products WHERE `+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	args = append(args, limit, (page-1)*limit)
	query := fmt.Sprintf(`SELECT %s FROM products WHERE %s ORDER BY title ASC, id ASC LIMIT $%d OFFSET $%d`,
		productColumns, clause, len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	products := []Product{}
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.SKU, &p.Title, &p.CategoryID, &p.TotalStock, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, 0, err
		}
		products = append(products, p)
	}
	return products, total, rows.Err()
}

// UpdateProduct patches title and category.
func (r *Repository) UpdateProduct(ctx context.Context, id int64, input UpdateProductInput) (Product, error) {
	set := []string{"updated_at=NOW()"}
	args := []any{}
	if input.Title != nil {
		args = append(args, *input.Title)
		set = append(set, "title=$"+strconv.Itoa(len(args)))
	}
	if input.CategoryID != nil {
		args = append(args, nullID(*input.CategoryID))
		set = append(set, "category_id=$"+strconv.Itoa(len(args)))
	}
	args = append(args, id)
	query := fmt.Sprintf(`UPDATE products SET %s WHERE id=$%d RETURNING %s`, strings.Join(set, ", "), len(args), productColumns)

	var p Product
	err := r.pool.QueryRow(ctx, query, args...).
		Scan(&p.ID, &p.SKU, &p.Title, &p.CategoryID, &p.TotalStock, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrProductNotFound
	}
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return Product{}, ErrCategoryNotFound
		}
		return Product{}, err
	}
	return p, nil
}

// CreateCategory inserts a category.
func (r *Repository) CreateCategory(ctx context.Context, name string) (Category, error) {
	var c Category
	err := r.pool.QueryRow(ctx, `INSERT INTO categories (name, created_at) VALUES ($1, NOW()) RETURNING id, name, created_at`, name).
		Scan(&c.ID, &c.Name, &c.CreatedAt)
	if err != nil {
		return Category{}, err
	}
	return c, nil
}

// ListCategories returns every category by name.
func (r *Repository) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, created_at FROM categories ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	categories := []Category{}
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name, &c.CreatedAt); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

func nullID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}
