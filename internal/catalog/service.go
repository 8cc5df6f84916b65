package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/warewise/warewise/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	CreateProduct(ctx context.Context, input CreateProductInput) (Product, error)
	GetProduct(ctx context.Context, id int64) (Product, error)
	ListProducts(ctx context.Context, filter ListFilter) ([]Product, int, error)
	UpdateProduct(ctx context.Context, id int64, input UpdateProductInput) (Product, error)
	CreateCategory(ctx context.Context, name string) (Category, error)
	ListCategories(ctx context.Context) ([]Category, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service owns catalog business rules.
type Service struct {
	repo   RepositoryPort
	audit  AuditPort
	logger *slog.Logger
}

// NewService builds Service. Audit and logger are optional.
func NewService(repo RepositoryPort, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger}
}

// CreateProduct registers a product. SKUs are stored uppercase.
func (s *Service) CreateProduct(ctx context.Context, input CreateProductInput) (Product, error) {
	input.SKU = strings.ToUpper(strings.TrimSpace(input.SKU))
	input.Title = strings.TrimSpace(input.Title)
	if input.SKU == "" || input.Title == "" {
		return Product{}, fmt.Errorf("%w: sku and title required", ErrInvalidInput)
	}
	p, err := s.repo.CreateProduct(ctx, input)
	if err != nil {
		return Product{}, err
	}
	s.recordAudit(ctx, input.ActorID, "catalog:create", p.ID, map[string]any{"sku": p.SKU})
	return p, nil
}

// GetProduct loads one product.
func (s *Service) GetProduct(ctx context.Context, id int64) (Product, error) {
	return s.repo.GetProduct(ctx, id)
}

// ListProducts returns a filtered page of products.
func (s *Service) ListProducts(ctx context.Context, filter ListFilter) ([]Product, shared.Pagination, error) {
	products, total, err := s.repo.ListProducts(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return products, shared.NewPagination(filter.Page, filter.Limit, total), nil
}

// UpdateProduct patches mutable fields.
func (s *Service) UpdateProduct(ctx context.Context, id int64, input UpdateProductInput) (Product, error) {
	if input.Title == nil && input.CategoryID == nil {
		return Product{}, fmt.Errorf("%w: nothing to update", ErrInvalidInput)
	}
	if input.Title != nil {
		trimmed := strings.TrimSpace(*input.Title)
		if trimmed == "" {
			return Product{}, fmt.Errorf("%w: title cannot be empty", ErrInvalidInput)
		}
		input.Title = &trimmed
	}
	p, err := s.repo.UpdateProduct(ctx, id, input)
	if err != nil {
		return Product{}, err
	}
	s.recordAudit(ctx, input.ActorID, "catalog:update", p.ID, map[string]any{"title": p.Title})
	return p, nil
}

// CreateCategory registers a category.
func (s *Service) CreateCategory(ctx context.Context, name string, actorID int64) (Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Category{}, fmt.Errorf("%w: name required", ErrInvalidInput)
	}
	c, err := s.repo.CreateCategory(ctx, name)
	if err != nil {
		return Category{}, err
	}
	s.recordAudit(ctx, actorID, "catalog:category:create", c.ID, map[string]any{"name": c.Name})
	return c, nil
}

// ListCategories returns every category.
func (s *Service) ListCategories(ctx context.Context) ([]Category, error) {
	return s.repo.ListCategories(ctx)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "product",
		EntityID: fmt.Sprintf("%d", entityID),
		Meta:     meta,
	})
}
