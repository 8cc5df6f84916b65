package integration

import (
	"context"
	"log/slog"

	"github.com/warewise/warewise/internal/orders"
	"github.com/warewise/warewise/internal/stock"
)

// StockLedger exposes the deduction operation the hooks need.
type StockLedger interface {
	DeductForSale(ctx context.Context, lines []stock.SaleLine, refID string, actorID int64) ([]stock.MovementRecord, error)
}

// Hooks wires order lifecycle events into the stock ledger. Deduction is
// controlled by the ORDER_STOCK_DEDUCTION flag: when disabled the event is
// logged and acknowledged without touching stock.
type Hooks struct {
	ledger  StockLedger
	enabled bool
	logger  *slog.Logger
}

// NewHooks constructs integration hooks.
func NewHooks(ledger StockLedger, enabled bool, logger *slog.Logger) *Hooks {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hooks{ledger: ledger, enabled: enabled, logger: logger}
}

// OrderFulfilled deducts the order's lines from stock in one strict batch.
// Any insufficient line fails the whole event, which keeps the order in draft.
func (h *Hooks) OrderFulfilled(ctx context.Context, event orders.OrderFulfilledEvent) error {
	if !h.enabled {
		h.logger.Info("stock deduction disabled, skipping order",
			slog.Int64("order_id", event.OrderID), slog.String("ref_id", event.RefID))
		return nil
	}
	lines := make([]stock.SaleLine, 0, len(event.Lines))
	for _, line := range event.Lines {
		lines = append(lines, stock.SaleLine{
			ProductID:   line.ProductID,
			VariantName: line.VariantName,
			WarehouseID: line.WarehouseID,
			Quantity:    line.Quantity,
		})
	}
	movements, err := h.ledger.DeductForSale(ctx, lines, event.RefID, event.ActorID)
	if err != nil {
		return err
	}
	h.logger.Info("order stock deducted",
		slog.Int64("order_id", event.OrderID),
		slog.String("ref_id", event.RefID),
		slog.Int("movements", len(movements)))
	return nil
}
