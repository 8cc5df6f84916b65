package orders

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/warewise/warewise/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	CreateOrder(ctx context.Context, refID string, lines []LineInput) (Order, error)
	GetOrder(ctx context.Context, id int64) (Order, error)
	ListOrders(ctx context.Context, status Status, limit int) ([]Order, error)
	CloseOrder(ctx context.Context, id int64, status Status) (Order, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service owns the order lifecycle. Fulfilment notifies the integration
// handler before the status changes; a failing handler keeps the order in
// draft.
type Service struct {
	repo        RepositoryPort
	integration IntegrationHandler
	audit       AuditPort
	logger      *slog.Logger
}

// NewService builds Service. Integration, audit and logger are optional.
func NewService(repo RepositoryPort, integration IntegrationHandler, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, integration: integration, audit: audit, logger: logger}
}

// CreateOrder opens a draft order with a freshly minted reference id.
func (s *Service) CreateOrder(ctx context.Context, input CreateOrderInput) (Order, error) {
	if len(input.Lines) == 0 {
		return Order{}, fmt.Errorf("%w: at least one line required", ErrInvalidInput)
	}
	for _, line := range input.Lines {
		if line.ProductID <= 0 || line.WarehouseID <= 0 {
			return Order{}, fmt.Errorf("%w: product and warehouse required", ErrInvalidInput)
		}
		if line.Quantity <= 0 {
			return Order{}, fmt.Errorf("%w: quantity must be positive", ErrInvalidInput)
		}
	}
	order, err := s.repo.CreateOrder(ctx, uuid.NewString(), input.Lines)
	if err != nil {
		return Order{}, err
	}
	s.recordAudit(ctx, input.ActorID, "orders:create", order, map[string]any{"lines": len(order.Lines)})
	return order, nil
}

// GetOrder loads one order.
func (s *Service) GetOrder(ctx context.Context, id int64) (Order, error) {
	return s.repo.GetOrder(ctx, id)
}

// ListOrders returns recent orders, optionally filtered by status.
func (s *Service) ListOrders(ctx context.Context, status Status, limit int) ([]Order, error) {
	return s.repo.ListOrders(ctx, status, limit)
}

// Fulfill moves a draft order to fulfilled. The integration handler runs
// first, so downstream effects (stock deduction) gate the transition.
func (s *Service) Fulfill(ctx context.Context, id, actorID int64) (Order, error) {
	order, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return Order{}, err
	}
	if order.Status != StatusDraft {
		return Order{}, ErrNotDraft
	}
	if s.integration != nil {
		event := OrderFulfilledEvent{
			OrderID: order.ID,
			RefID:   order.RefID,
			ActorID: actorID,
			Lines:   order.Lines,
		}
		if err := s.integration.OrderFulfilled(ctx, event); err != nil {
			s.logger.Warn("order fulfilment blocked by integration",
				slog.Int64("order_id", order.ID), slog.Any("error", err))
			return Order{}, err
		}
	}
	closed, err := s.repo.CloseOrder(ctx, id, StatusFulfilled)
	if err != nil {
		return Order{}, err
	}
	closed.Lines = order.Lines
	s.recordAudit(ctx, actorID, "orders:fulfill", closed, map[string]any{"ref_id": closed.RefID})
	return closed, nil
}

// Cancel moves a draft order to cancelled. No stock is touched.
func (s *Service) Cancel(ctx context.Context, id, actorID int64) (Order, error) {
	order, err := s.repo.CloseOrder(ctx, id, StatusCancelled)
	if err != nil {
		return Order{}, err
	}
	s.recordAudit(ctx, actorID, "orders:cancel", order, nil)
	return order, nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, order Order, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "order",
		EntityID: fmt.Sprintf("%d", order.ID),
		Meta:     meta,
	})
}
