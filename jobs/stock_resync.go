package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	jobmetrics "github.com/warewise/warewise/internal/jobs"
)

// StockResyncDeps collects the collaborators of the resync job.
type StockResyncDeps struct {
	Aggregator StockAggregator
	Metrics    *jobmetrics.Metrics
	Logger     *slog.Logger
	// Parallelism bounds concurrent per-product syncs; defaults to 4.
	Parallelism int
}

// StockAggregator is the aggregator surface the jobs need.
type StockAggregator interface {
	SyncProductTotal(ctx context.Context, productID int64) error
	ListProductIDs(ctx context.Context) ([]int64, error)
	InvalidateSummary(ctx context.Context)
}

// NewStockResyncHandler returns the Asynq handler for TaskStockResync. With a
// product id in the payload only that product is recomputed; otherwise every
// product with an active balance is swept.
func NewStockResyncHandler(deps StockResyncDeps) asynq.HandlerFunc {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	limit := deps.Parallelism
	if limit <= 0 {
		limit = 4
	}
	return func(ctx context.Context, t *asynq.Task) error {
		tracker := deps.Metrics.Track("stock_resync")
		var payload StockResyncPayload
		if len(t.Payload()) > 0 {
			if err := json.Unmarshal(t.Payload(), &payload); err != nil {
				_ = tracker.End(err)
				return asynq.SkipRetry
			}
		}

		if payload.ProductID > 0 {
			err := deps.Aggregator.SyncProductTotal(ctx, payload.ProductID)
			if err == nil {
				deps.Aggregator.InvalidateSummary(ctx)
				deps.Metrics.AddResynced("stock_resync", 1)
			}
			return tracker.End(err)
		}

		ids, err := deps.Aggregator.ListProductIDs(ctx)
		if err != nil {
			return tracker.End(err)
		}
		group, groupCtx := errgroup.WithContext(ctx)
		group.SetLimit(limit)
		for _, id := range ids {
			group.Go(func() error {
				return deps.Aggregator.SyncProductTotal(groupCtx, id)
			})
		}
		if err := group.Wait(); err != nil {
			return tracker.End(err)
		}
		deps.Aggregator.InvalidateSummary(ctx)
		deps.Metrics.AddResynced("stock_resync", len(ids))
		logger.Info("stock totals resynced", slog.Int("products", len(ids)))
		return tracker.End(nil)
	}
}
