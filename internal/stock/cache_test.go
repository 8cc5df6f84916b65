package stock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*SummaryCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewSummaryCache(client, time.Minute), mr
}

func TestSummaryCacheFetch(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	calls := 0
	loader := func(ctx context.Context) (any, error) {
		calls++
		return []ProductStockSummary{{ProductID: 1, Title: "Widget", TotalStock: 12}}, nil
	}

	var first []ProductStockSummary
	require.NoError(t, cache.Fetch(ctx, "stock:summary", &first, loader))
	require.Equal(t, 1, calls)
	require.EqualValues(t, 12, first[0].TotalStock)

	// Second fetch is served from the cache.
	var second []ProductStockSummary
	require.NoError(t, cache.Fetch(ctx, "stock:summary", &second, loader))
	require.Equal(t, 1, calls)
	require.Equal(t, first, second)
}

func TestSummaryCacheBumpInvalidates(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	calls := 0
	loader := func(ctx context.Context) (any, error) {
		calls++
		return StockStats{TotalProducts: calls}, nil
	}

	var stats StockStats
	require.NoError(t, cache.Fetch(ctx, "stock:stats", &stats, loader))
	require.Equal(t, 1, stats.TotalProducts)

	require.NoError(t, cache.Bump(ctx))

	require.NoError(t, cache.Fetch(ctx, "stock:stats", &stats, loader))
	require.Equal(t, 2, calls)
	require.Equal(t, 2, stats.TotalProducts)
}

func TestSummaryCacheNilClient(t *testing.T) {
	var cache *SummaryCache
	ctx := context.Background()

	require.NoError(t, cache.Bump(ctx))

	var stats StockStats
	err := cache.Fetch(ctx, "stock:stats", &stats, func(ctx context.Context) (any, error) {
		return StockStats{TotalProducts: 7}, nil
	})
	require.NoError(t, err)
	require.Equal(t, 7, stats.TotalProducts)
}

func TestSummaryCacheVersionInitialises(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	ver, err := cache.Version(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, ver)
	require.True(t, mr.Exists("stock:summary:version"))

	require.NoError(t, cache.Bump(ctx))
	ver, err = cache.Version(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 2, ver)
}
