package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/warewise/warewise/internal/stock"
)

type fakeAggregator struct {
	mu          sync.Mutex
	synced      []int64
	invalidated int
	ids         []int64
	failOn      int64
	stats       stock.StockStats
}

func (f *fakeAggregator) SyncProductTotal(ctx context.Context, productID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOn != 0 && productID == f.failOn {
		return errors.New("sync failed")
	}
	f.synced = append(f.synced, productID)
	return nil
}

func (f *fakeAggregator) ListProductIDs(ctx context.Context) ([]int64, error) {
	return f.ids, nil
}

func (f *fakeAggregator) InvalidateSummary(ctx context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated++
}

func (f *fakeAggregator) Stats(ctx context.Context) (stock.StockStats, error) {
	return f.stats, nil
}

func TestStockResyncSingleProduct(t *testing.T) {
	agg := &fakeAggregator{}
	handler := NewStockResyncHandler(StockResyncDeps{Aggregator: agg})

	payload, err := json.Marshal(StockResyncPayload{ProductID: 7})
	require.NoError(t, err)
	require.NoError(t, handler(context.Background(), asynq.NewTask(TaskStockResync, payload)))
	require.Equal(t, []int64{7}, agg.synced)
	require.Equal(t, 1, agg.invalidated)
}

func TestStockResyncSweep(t *testing.T) {
	agg := &fakeAggregator{ids: []int64{1, 2, 3, 4, 5}}
	handler := NewStockResyncHandler(StockResyncDeps{Aggregator: agg, Parallelism: 2})

	require.NoError(t, handler(context.Background(), asynq.NewTask(TaskStockResync, nil)))
	require.Len(t, agg.synced, 5)
	require.Equal(t, 1, agg.invalidated)
}

func TestStockResyncSweepFailure(t *testing.T) {
	agg := &fakeAggregator{ids: []int64{1, 2, 3}, failOn: 2}
	handler := NewStockResyncHandler(StockResyncDeps{Aggregator: agg})

	err := handler(context.Background(), asynq.NewTask(TaskStockResync, nil))
	require.Error(t, err)
	require.Zero(t, agg.invalidated)
}

func TestStockResyncBadPayload(t *testing.T) {
	agg := &fakeAggregator{}
	handler := NewStockResyncHandler(StockResyncDeps{Aggregator: agg})

	err := handler(context.Background(), asynq.NewTask(TaskStockResync, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}
