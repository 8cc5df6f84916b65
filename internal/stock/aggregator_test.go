package stock

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSyncProductTotalConverges(t *testing.T) {
	repo := newMemoryRepo()
	svc, agg := newTestService(repo)
	ctx := context.Background()

	_, err := svc.CreateBalance(ctx, CreateBalanceInput{ProductID: 1, WarehouseID: 1, Quantity: 10})
	require.NoError(t, err)
	_, err = svc.CreateBalance(ctx, CreateBalanceInput{ProductID: 1, VariantName: "red", WarehouseID: 2, Quantity: 5})
	require.NoError(t, err)
	require.EqualValues(t, 15, repo.totals[1])

	// Running the sync again changes nothing.
	require.NoError(t, agg.SyncProductTotal(ctx, 1))
	require.NoError(t, agg.SyncProductTotal(ctx, 1))
	require.EqualValues(t, 15, repo.totals[1])

	// A product without balances syncs to zero.
	require.NoError(t, agg.SyncProductTotal(ctx, 99))
	require.EqualValues(t, 0, repo.totals[99])
}

func TestSyncAll(t *testing.T) {
	repo := newMemoryRepo()
	svc, agg := newTestService(repo)
	ctx := context.Background()

	for productID := int64(1); productID <= 3; productID++ {
		_, err := svc.CreateBalance(ctx, CreateBalanceInput{ProductID: productID, WarehouseID: 1, Quantity: productID * 10})
		require.NoError(t, err)
	}
	repo.totals[2] = 999 // drifted total, the sweep must heal it

	count, err := agg.SyncAll(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, count)
	require.EqualValues(t, 20, repo.totals[2])
}

func TestSummarize(t *testing.T) {
	repo := newMemoryRepo()
	svc, agg := newTestService(repo)
	ctx := context.Background()
	repo.titles[1] = "Widget"
	repo.titles[2] = "anvil"

	seed := []CreateBalanceInput{
		{ProductID: 1, WarehouseID: 2, Quantity: 15, ReorderPoint: 10},
		{ProductID: 1, VariantName: "red", WarehouseID: 1, Quantity: 0, ReorderPoint: 3},
		{ProductID: 1, VariantName: "blue", WarehouseID: 1, Quantity: 8, ReorderPoint: 2},
		{ProductID: 2, WarehouseID: 1, Quantity: 50, ReorderPoint: 5},
	}
	for _, input := range seed {
		_, err := svc.CreateBalance(ctx, input)
		require.NoError(t, err)
	}

	summaries, err := agg.Summarize(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	// Case-insensitive title order: "anvil" before "Widget".
	require.Equal(t, "anvil", summaries[0].Title)
	require.Equal(t, "Widget", summaries[1].Title)

	widget := summaries[1]
	require.EqualValues(t, 23, widget.TotalStock)
	require.Equal(t, 3, widget.VariantCount)
	require.Equal(t, 2, widget.WarehouseCount)
	require.True(t, widget.HasOutOfStock)
	require.True(t, widget.HasLowStock) // the red variant sits at zero

	// Base variant leads, named variants alphabetical after it.
	require.Equal(t, "", widget.Variants[0].VariantName)
	require.Equal(t, "blue", widget.Variants[1].VariantName)
	require.Equal(t, "red", widget.Variants[2].VariantName)

	anvil := summaries[0]
	require.False(t, anvil.HasLowStock)
	require.False(t, anvil.HasOutOfStock)
}

func TestSummarizeLowStockThreshold(t *testing.T) {
	repo := newMemoryRepo()
	svc, agg := newTestService(repo)
	ctx := context.Background()

	rec, err := svc.CreateBalance(ctx, CreateBalanceInput{ProductID: 1, WarehouseID: 1, Quantity: 15, ReorderPoint: 10})
	require.NoError(t, err)

	summaries, err := agg.Summarize(ctx)
	require.NoError(t, err)
	require.False(t, summaries[0].HasLowStock)

	// Deduct to 9: at or below the reorder point is low.
	_, err = svc.Adjust(ctx, AdjustInput{BalanceID: rec.ID, Quantity: 6})
	require.NoError(t, err)
	summaries, err = agg.Summarize(ctx)
	require.NoError(t, err)
	require.True(t, summaries[0].HasLowStock)
	require.False(t, summaries[0].HasOutOfStock)

	// Deduct to 0: out of stock, and a further strict deduct fails.
	_, err = svc.Adjust(ctx, AdjustInput{BalanceID: rec.ID, Quantity: 9})
	require.NoError(t, err)
	summaries, err = agg.Summarize(ctx)
	require.NoError(t, err)
	require.True(t, summaries[0].HasOutOfStock)

	_, err = svc.Adjust(ctx, AdjustInput{BalanceID: rec.ID, Quantity: 1})
	require.ErrorIs(t, err, ErrInsufficientStock)
}

func TestStats(t *testing.T) {
	repo := newMemoryRepo()
	svc, agg := newTestService(repo)
	ctx := context.Background()

	seed := []CreateBalanceInput{
		{ProductID: 1, WarehouseID: 1, Quantity: 100, ReorderPoint: 5},
		{ProductID: 2, WarehouseID: 1, Quantity: 3, ReorderPoint: 5},
		{ProductID: 3, WarehouseID: 1, Quantity: 0, ReorderPoint: 5},
	}
	for _, input := range seed {
		_, err := svc.CreateBalance(ctx, input)
		require.NoError(t, err)
	}

	stats, err := agg.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, stats.TotalProducts)
	require.Equal(t, 2, stats.LowStockCount) // quantity 3 and quantity 0
	require.Equal(t, 1, stats.OutOfStockCount)
}
