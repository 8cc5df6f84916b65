package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/warewise/warewise/internal/app"
	jobmetrics "github.com/warewise/warewise/internal/jobs"
	"github.com/warewise/warewise/internal/observability"
	"github.com/warewise/warewise/internal/platform/cache"
	"github.com/warewise/warewise/internal/platform/db"
	"github.com/warewise/warewise/internal/stock"
	"github.com/warewise/warewise/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable", slog.Any("error", err))
	}
	defer func() {
		if redisClient == nil {
			return
		}
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := jobmetrics.NewMetrics(nil)
	stockMetrics := observability.NewStockMetrics(nil)

	stockRepo := stock.NewRepository(pool)
	summaryCache := stock.NewSummaryCache(redisClient, cfg.SummaryCacheTTL)
	aggregator := stock.NewAggregator(stockRepo, summaryCache, logger)

	resyncHandler := jobs.NewStockResyncHandler(jobs.StockResyncDeps{
		Aggregator: jobAggregator{aggregator: aggregator, repo: stockRepo},
		Metrics:    metrics,
		Logger:     logger,
	})
	scanHandler := jobs.NewLowStockScanHandler(jobs.LowStockScanDeps{
		Statser: aggregator,
		Stock:   stockMetrics,
		Metrics: metrics,
		Logger:  logger,
	})

	resyncTask, err := jobs.NewStockResyncTask(jobs.StockResyncPayload{})
	if err != nil {
		logger.Error("build resync task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskStockResync, Handler: resyncHandler},
			{Type: jobs.TaskLowStockScan, Handler: scanHandler},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "0 2 * * *", Task: resyncTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "*/30 * * * *", Task: jobs.NewLowStockScanTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}

// jobAggregator joins the aggregator's sync surface with the repository's
// product listing into the single interface the jobs expect.
type jobAggregator struct {
	aggregator *stock.Aggregator
	repo       *stock.Repository
}

func (j jobAggregator) SyncProductTotal(ctx context.Context, productID int64) error {
	return j.aggregator.SyncProductTotal(ctx, productID)
}

func (j jobAggregator) ListProductIDs(ctx context.Context) ([]int64, error) {
	return j.repo.ListProductIDs(ctx)
}

func (j jobAggregator) InvalidateSummary(ctx context.Context) {
	j.aggregator.InvalidateSummary(ctx)
}
