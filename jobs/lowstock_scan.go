package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/warewise/warewise/internal/jobs"
	"github.com/warewise/warewise/internal/observability"
	"github.com/warewise/warewise/internal/stock"
)

// StockStatser derives the headline stock counters.
type StockStatser interface {
	Stats(ctx context.Context) (stock.StockStats, error)
}

// LowStockScanDeps collects the collaborators of the scan job.
type LowStockScanDeps struct {
	Statser StockStatser
	Stock   *observability.StockMetrics
	Metrics *jobmetrics.Metrics
	Logger  *slog.Logger
}

// NewLowStockScanHandler returns the Asynq handler for TaskLowStockScan. It
// refreshes the low/out-of-stock gauges and logs products needing attention.
func NewLowStockScanHandler(deps LowStockScanDeps) asynq.HandlerFunc {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, t *asynq.Task) error {
		tracker := deps.Metrics.Track("lowstock_scan")
		stats, err := deps.Statser.Stats(ctx)
		if err != nil {
			return tracker.End(err)
		}
		deps.Stock.SetStockLevels(stats.LowStockCount, stats.OutOfStockCount)
		if stats.LowStockCount > 0 || stats.OutOfStockCount > 0 {
			logger.Warn("stock attention needed",
				slog.Int("low_stock", stats.LowStockCount),
				slog.Int("out_of_stock", stats.OutOfStockCount),
				slog.Int("products", stats.TotalProducts))
		}
		return tracker.End(nil)
	}
}
