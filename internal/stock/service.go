package stock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"

	"github.com/warewise/warewise/internal/observability"
	"github.com/warewise/warewise/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	CreateBalance(ctx context.Context, input CreateBalanceInput) (BalanceRecord, error)
	GetBalance(ctx context.Context, id int64) (BalanceRecord, error)
	ListBalances(ctx context.Context, filter ListFilter) ([]BalanceRecord, int, error)
	UpdateReorderPoint(ctx context.Context, id, point int64) (BalanceRecord, error)
	SoftDeleteBalance(ctx context.Context, id int64) (BalanceRecord, error)
	ListMovements(ctx context.Context, key BalanceKey, limit int) ([]MovementRecord, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Resyncer triggers the reconciliation aggregator after mutations.
type Resyncer interface {
	SyncProductTotal(ctx context.Context, productID int64) error
	InvalidateSummary(ctx context.Context)
}

// Service coordinates every ledgered change to stock balances. It is the only
// component allowed to change a balance and append a movement, and it does both
// inside one transaction.
type Service struct {
	repo        RepositoryPort
	aggregator  Resyncer
	audit       AuditPort
	idempotency *shared.IdempotencyStore
	metrics     *observability.StockMetrics
	logger      *slog.Logger
}

// NewService builds Service. Audit, idempotency, metrics and logger are optional.
func NewService(repo RepositoryPort, aggregator Resyncer, audit AuditPort, idem *shared.IdempotencyStore, metrics *observability.StockMetrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, aggregator: aggregator, audit: audit, idempotency: idem, metrics: metrics, logger: logger}
}

// CreateBalance registers a new balance cell. Fails with ErrBalanceExists when
// an active record already covers the triple.
func (s *Service) CreateBalance(ctx context.Context, input CreateBalanceInput) (BalanceRecord, error) {
	if input.ProductID == 0 || input.WarehouseID == 0 {
		return BalanceRecord{}, fmt.Errorf("%w: product and warehouse required", ErrInvalidInput)
	}
	if input.Quantity < 0 || input.ReorderPoint < 0 {
		return BalanceRecord{}, fmt.Errorf("%w: quantity and reorder point must be >= 0", ErrInvalidInput)
	}
	rec, err := s.repo.CreateBalance(ctx, input)
	if err != nil {
		return BalanceRecord{}, err
	}
	s.resync(ctx, rec.ProductID)
	s.recordAudit(ctx, input.ActorID, "stock:create", rec, map[string]any{
		"quantity":      rec.Quantity,
		"reorder_point": rec.ReorderPoint,
	})
	return rec, nil
}

// GetBalance loads one active balance record.
func (s *Service) GetBalance(ctx context.Context, id int64) (BalanceRecord, error) {
	return s.repo.GetBalance(ctx, id)
}

// ListBalances returns a filtered page of balance records.
func (s *Service) ListBalances(ctx context.Context, filter ListFilter) ([]BalanceRecord, shared.Pagination, error) {
	records, total, err := s.repo.ListBalances(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return records, shared.NewPagination(filter.Page, filter.Limit, total), nil
}

// PatchBalance updates balance fields. The reorder point is written directly;
// a quantity target is routed through the ledger as a correction movement so
// no quantity change bypasses the movement log.
func (s *Service) PatchBalance(ctx context.Context, id int64, input PatchInput) (BalanceRecord, error) {
	if input.Quantity == nil && input.ReorderPoint == nil {
		return BalanceRecord{}, fmt.Errorf("%w: nothing to patch", ErrInvalidInput)
	}
	rec, err := s.repo.GetBalance(ctx, id)
	if err != nil {
		return BalanceRecord{}, err
	}
	if input.ReorderPoint != nil {
		if *input.ReorderPoint < 0 {
			return BalanceRecord{}, fmt.Errorf("%w: reorder point must be >= 0", ErrInvalidInput)
		}
		rec, err = s.repo.UpdateReorderPoint(ctx, id, *input.ReorderPoint)
		if err != nil {
			return BalanceRecord{}, err
		}
		s.recordAudit(ctx, input.ActorID, "stock:patch", rec, map[string]any{"reorder_point": rec.ReorderPoint})
	}
	if input.Quantity != nil {
		target := *input.Quantity
		if target < 0 {
			return BalanceRecord{}, fmt.Errorf("%w: quantity must be >= 0", ErrInvalidInput)
		}
		rec, _, err = s.applyAdjustment(ctx, adjustmentParams{
			balanceID: id,
			kind:      MovementAdjustment,
			target:    &target,
			policy:    PolicyReject,
			notes:     fmt.Sprintf("manual correction to %d", target),
			actorID:   input.ActorID,
		})
		if err != nil {
			return BalanceRecord{}, err
		}
	}
	return rec, nil
}

// SoftDelete marks the record deleted, keeping the row for the movement history.
func (s *Service) SoftDelete(ctx context.Context, id, actorID int64) error {
	rec, err := s.repo.SoftDeleteBalance(ctx, id)
	if err != nil {
		return err
	}
	s.resync(ctx, rec.ProductID)
	s.recordAudit(ctx, actorID, "stock:delete", rec, map[string]any{"quantity": rec.Quantity})
	return nil
}

// Adjust performs a strict deduction: removing more than the current quantity
// fails with ErrInsufficientStock and leaves state unchanged.
func (s *Service) Adjust(ctx context.Context, input AdjustInput) (BalanceRecord, error) {
	if input.Quantity <= 0 {
		return BalanceRecord{}, ErrInvalidQuantity
	}
	rec, _, err := s.applyAdjustment(ctx, adjustmentParams{
		balanceID:      input.BalanceID,
		kind:           MovementAdjustment,
		delta:          -input.Quantity,
		policy:         PolicyReject,
		notes:          input.Reason,
		actorID:        input.ActorID,
		idempotencyKey: input.IdempotencyKey,
	})
	return rec, err
}

// QuickAdjust adds or deducts with the clamp policy: deducting more than
// available truncates the balance at zero instead of failing.
func (s *Service) QuickAdjust(ctx context.Context, input QuickAdjustInput) (BalanceRecord, MovementRecord, error) {
	if input.Quantity <= 0 {
		return BalanceRecord{}, MovementRecord{}, ErrInvalidQuantity
	}
	var delta int64
	switch input.Op {
	case OpAdd:
		delta = input.Quantity
	case OpDeduct:
		delta = -input.Quantity
	default:
		return BalanceRecord{}, MovementRecord{}, fmt.Errorf("%w: unknown operation %q", ErrInvalidInput, input.Op)
	}
	return s.applyAdjustment(ctx, adjustmentParams{
		balanceID:      input.BalanceID,
		kind:           MovementAdjustment,
		delta:          delta,
		policy:         PolicyClampToZero,
		notes:          input.Notes,
		actorID:        input.ActorID,
		idempotencyKey: input.IdempotencyKey,
	})
}

// DeductForSale posts one strict "sale" deduction per line inside a single
// transaction, locking balances in deterministic order. Used by the sales
// integration; any failing line rolls back the whole batch.
func (s *Service) DeductForSale(ctx context.Context, lines []SaleLine, refID string, actorID int64) ([]MovementRecord, error) {
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: at least one line required", ErrInvalidInput)
	}
	for _, line := range lines {
		if line.ProductID == 0 || line.WarehouseID == 0 {
			return nil, fmt.Errorf("%w: product and warehouse required", ErrInvalidInput)
		}
		if line.Quantity <= 0 {
			return nil, ErrInvalidQuantity
		}
	}
	if refID != "" {
		if _, err := uuid.Parse(refID); err != nil {
			return nil, fmt.Errorf("%w: invalid ref id", ErrInvalidInput)
		}
	}
	ordered := make([]SaleLine, len(lines))
	copy(ordered, lines)
	sort.Slice(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.ProductID != b.ProductID {
			return a.ProductID < b.ProductID
		}
		if a.VariantName != b.VariantName {
			return a.VariantName < b.VariantName
		}
		return a.WarehouseID < b.WarehouseID
	})

	movements := make([]MovementRecord, 0, len(ordered))
	products := map[int64]struct{}{}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, line := range ordered {
			key := BalanceKey{ProductID: line.ProductID, VariantName: line.VariantName, WarehouseID: line.WarehouseID}
			bal, err := tx.GetBalanceForUpdateByKey(ctx, key)
			if err != nil {
				return err
			}
			newQty := bal.Quantity - line.Quantity
			if newQty < 0 {
				return ErrInsufficientStock
			}
			updated, err := tx.UpdateQuantity(ctx, bal.ID, newQty)
			if err != nil {
				return err
			}
			movement, err := tx.InsertMovement(ctx, MovementRecord{
				ProductID:        updated.ProductID,
				VariantName:      updated.VariantName,
				WarehouseID:      updated.WarehouseID,
				Kind:             MovementSale,
				Delta:            -line.Quantity,
				PreviousQuantity: bal.Quantity,
				NewQuantity:      newQty,
				ActorID:          actorID,
				RefID:            refID,
			})
			if err != nil {
				return err
			}
			movements = append(movements, movement)
			products[updated.ProductID] = struct{}{}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrInsufficientStock) {
			s.metrics.ObserveInsufficient()
		}
		return nil, err
	}
	for productID := range products {
		s.resync(ctx, productID)
	}
	for range movements {
		s.metrics.ObserveAdjustment(string(MovementSale), string(PolicyReject))
	}
	s.recordAuditRaw(ctx, actorID, "stock:sale", fmt.Sprintf("ref:%s", refID), map[string]any{"lines": len(lines)})
	return movements, nil
}

// ListMovements returns the audit trail of one balance, oldest first.
func (s *Service) ListMovements(ctx context.Context, balanceID int64, limit int) ([]MovementRecord, error) {
	rec, err := s.repo.GetBalance(ctx, balanceID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListMovements(ctx, rec.Key(), limit)
}

type adjustmentParams struct {
	balanceID int64
	kind      MovementKind
	delta     int64
	// target overrides delta: the applied delta becomes target minus the
	// locked quantity, so manual corrections land on the requested value even
	// under concurrent writers. A target equal to the current quantity is a
	// no-op and appends no movement.
	target         *int64
	policy         OverdraftPolicy
	notes          string
	actorID        int64
	refID          string
	idempotencyKey string
}

// applyAdjustment is the single mutation path for ledgered quantity changes.
// Balance lock, conditional update and movement append happen in one
// transaction, so concurrent adjustments serialise and every movement's
// previous/new pair reflects commit order.
func (s *Service) applyAdjustment(ctx context.Context, params adjustmentParams) (BalanceRecord, MovementRecord, error) {
	if !params.kind.Valid() {
		return BalanceRecord{}, MovementRecord{}, fmt.Errorf("%w: unknown movement kind %q", ErrInvalidInput, params.kind)
	}
	if params.delta == 0 && params.target == nil {
		return BalanceRecord{}, MovementRecord{}, ErrInvalidQuantity
	}
	if params.refID != "" {
		if _, err := uuid.Parse(params.refID); err != nil {
			return BalanceRecord{}, MovementRecord{}, fmt.Errorf("%w: invalid ref id", ErrInvalidInput)
		}
	}

	insertedKey := false
	if params.idempotencyKey != "" && s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, params.idempotencyKey, "stock"); err != nil {
			return BalanceRecord{}, MovementRecord{}, err
		}
		insertedKey = true
	}

	var (
		updated  BalanceRecord
		movement MovementRecord
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		bal, err := tx.GetBalanceForUpdate(ctx, params.balanceID)
		if err != nil {
			return err
		}
		delta := params.delta
		if params.target != nil {
			delta = *params.target - bal.Quantity
			if delta == 0 {
				updated = bal
				return nil
			}
		}
		newQty := bal.Quantity + delta
		notes := params.notes
		if newQty < 0 {
			if params.policy == PolicyReject {
				return ErrInsufficientStock
			}
			// Clamp: record the applied delta so new = previous + delta holds,
			// and keep the requested amount in the notes.
			if notes != "" {
				notes += "; "
			}
			notes += fmt.Sprintf("requested %d, clamped at zero", delta)
			newQty = 0
		}
		applied := newQty - bal.Quantity
		updated, err = tx.UpdateQuantity(ctx, bal.ID, newQty)
		if err != nil {
			return err
		}
		movement, err = tx.InsertMovement(ctx, MovementRecord{
			ProductID:        updated.ProductID,
			VariantName:      updated.VariantName,
			WarehouseID:      updated.WarehouseID,
			Kind:             params.kind,
			Delta:            applied,
			PreviousQuantity: bal.Quantity,
			NewQuantity:      newQty,
			Notes:            notes,
			ActorID:          params.actorID,
			RefID:            params.refID,
		})
		return err
	})
	if err != nil {
		if insertedKey {
			_ = s.idempotency.Delete(ctx, params.idempotencyKey)
		}
		if errors.Is(err, ErrInsufficientStock) {
			s.metrics.ObserveInsufficient()
		}
		return BalanceRecord{}, MovementRecord{}, err
	}

	if movement.ID == 0 {
		// Correction target matched the current quantity: nothing changed.
		return updated, movement, nil
	}

	s.metrics.ObserveAdjustment(string(params.kind), string(params.policy))
	s.resync(ctx, updated.ProductID)
	s.recordAudit(ctx, params.actorID, fmt.Sprintf("stock:%s", params.kind), updated, map[string]any{
		"delta":    movement.Delta,
		"previous": movement.PreviousQuantity,
		"new":      movement.NewQuantity,
		"policy":   string(params.policy),
	})
	return updated, movement, nil
}

// resync converges the denormalized product total and drops the summary cache.
// The total is eventually consistent; a failed resync is logged and healed by
// the next mutation or the nightly sweep.
func (s *Service) resync(ctx context.Context, productID int64) {
	if s.aggregator == nil {
		return
	}
	if err := s.aggregator.SyncProductTotal(ctx, productID); err != nil {
		s.logger.Warn("product total resync failed", slog.Int64("product_id", productID), slog.Any("error", err))
	}
	s.aggregator.InvalidateSummary(ctx)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, rec BalanceRecord, meta map[string]any) {
	s.recordAuditRaw(ctx, actorID, action, fmt.Sprintf("%d", rec.ID), meta)
}

func (s *Service) recordAuditRaw(ctx context.Context, actorID int64, action, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "stock_balance",
		EntityID: entityID,
		Meta:     meta,
	})
}
