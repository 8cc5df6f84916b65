package integration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/warewise/warewise/internal/orders"
	"github.com/warewise/warewise/internal/stock"
)

type fakeLedger struct {
	calls [][]stock.SaleLine
	refs  []string
	err   error
}

func (f *fakeLedger) DeductForSale(ctx context.Context, lines []stock.SaleLine, refID string, actorID int64) ([]stock.MovementRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.calls = append(f.calls, lines)
	f.refs = append(f.refs, refID)
	movements := make([]stock.MovementRecord, len(lines))
	return movements, nil
}

func event() orders.OrderFulfilledEvent {
	return orders.OrderFulfilledEvent{
		OrderID: 10,
		RefID:   "2f1f8a4e-8d3a-4f6e-9ad5-0b6f6f5b7c11",
		ActorID: 3,
		Lines: []orders.Line{
			{ProductID: 1, WarehouseID: 1, Quantity: 2},
			{ProductID: 2, VariantName: "red", WarehouseID: 2, Quantity: 1},
		},
	}
}

func TestOrderFulfilledDisabled(t *testing.T) {
	ledger := &fakeLedger{}
	hooks := NewHooks(ledger, false, nil)

	require.NoError(t, hooks.OrderFulfilled(context.Background(), event()))
	require.Empty(t, ledger.calls)
}

func TestOrderFulfilledDeducts(t *testing.T) {
	ledger := &fakeLedger{}
	hooks := NewHooks(ledger, true, nil)

	require.NoError(t, hooks.OrderFulfilled(context.Background(), event()))
	require.Len(t, ledger.calls, 1)
	require.Len(t, ledger.calls[0], 2)
	require.Equal(t, "red", ledger.calls[0][1].VariantName)
	require.Equal(t, "2f1f8a4e-8d3a-4f6e-9ad5-0b6f6f5b7c11", ledger.refs[0])
}

func TestOrderFulfilledPropagatesFailure(t *testing.T) {
	ledger := &fakeLedger{err: stock.ErrInsufficientStock}
	hooks := NewHooks(ledger, true, nil)

	err := hooks.OrderFulfilled(context.Background(), event())
	require.ErrorIs(t, err, stock.ErrInsufficientStock)
}
