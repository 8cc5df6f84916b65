package stock

import (
	"context"
	"log/slog"
	"sort"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// SummaryRow is one active balance cell joined with its product title, the
// unit the aggregator groups from.
type SummaryRow struct {
	ProductID    int64
	Title        string
	VariantName  string
	WarehouseID  int64
	Quantity     int64
	ReorderPoint int64
}

// AggregatorRepository abstracts the read/write surface of the aggregator.
type AggregatorRepository interface {
	SumProductQuantity(ctx context.Context, productID int64) (int64, error)
	UpdateProductTotal(ctx context.Context, productID, total int64) error
	ListProductIDs(ctx context.Context) ([]int64, error)
	ListSummaryRows(ctx context.Context) ([]SummaryRow, error)
}

// Aggregator recomputes the denormalized per-product total and derives the
// low/out-of-stock summary. Totals are recomputed from scratch, never
// incremented: redundant syncs always converge on the true sum.
type Aggregator struct {
	repo   AggregatorRepository
	cache  *SummaryCache
	logger *slog.Logger
}

// NewAggregator builds Aggregator. Cache and logger are optional.
func NewAggregator(repo AggregatorRepository, cache *SummaryCache, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{repo: repo, cache: cache, logger: logger}
}

// SyncProductTotal writes the sum of all active balances for the product onto
// its cached total. Idempotent and safe to run concurrently with adjustments:
// a transiently stale total is corrected by the next sync.
func (a *Aggregator) SyncProductTotal(ctx context.Context, productID int64) error {
	total, err := a.repo.SumProductQuantity(ctx, productID)
	if err != nil {
		return err
	}
	return a.repo.UpdateProductTotal(ctx, productID, total)
}

// SyncAll resyncs every product with at least one active balance.
func (a *Aggregator) SyncAll(ctx context.Context) (int, error) {
	ids, err := a.repo.ListProductIDs(ctx)
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		if err := a.SyncProductTotal(ctx, id); err != nil {
			return 0, err
		}
	}
	return len(ids), nil
}

// InvalidateSummary drops cached summaries after a mutation.
func (a *Aggregator) InvalidateSummary(ctx context.Context) {
	if a.cache == nil {
		return
	}
	if err := a.cache.Bump(ctx); err != nil {
		a.logger.Warn("summary cache bump failed", slog.Any("error", err))
	}
}

// Summarize produces the product/variant/warehouse matrix with low and
// out-of-stock flags, sorted by product title ascending.
func (a *Aggregator) Summarize(ctx context.Context) ([]ProductStockSummary, error) {
	if a.cache == nil {
		return a.buildSummary(ctx)
	}
	var summaries []ProductStockSummary
	err := a.cache.Fetch(ctx, "stock:summary", &summaries, func(ctx context.Context) (any, error) {
		return a.buildSummary(ctx)
	})
	return summaries, err
}

// Stats derives the headline counters from the summary.
func (a *Aggregator) Stats(ctx context.Context) (StockStats, error) {
	summaries, err := a.Summarize(ctx)
	if err != nil {
		return StockStats{}, err
	}
	stats := StockStats{TotalProducts: len(summaries)}
	for _, s := range summaries {
		if s.HasLowStock {
			stats.LowStockCount++
		}
		if s.HasOutOfStock {
			stats.OutOfStockCount++
		}
	}
	return stats, nil
}

func (a *Aggregator) buildSummary(ctx context.Context) ([]ProductStockSummary, error) {
	rows, err := a.repo.ListSummaryRows(ctx)
	if err != nil {
		return nil, err
	}

	type productAcc struct {
		summary    *ProductStockSummary
		variants   map[string]*VariantSummary
		order      []string
		warehouses map[int64]struct{}
	}

	accs := map[int64]*productAcc{}
	productOrder := []int64{}
	for _, row := range rows {
		acc, ok := accs[row.ProductID]
		if !ok {
			acc = &productAcc{
				summary:    &ProductStockSummary{ProductID: row.ProductID, Title: row.Title},
				variants:   map[string]*VariantSummary{},
				warehouses: map[int64]struct{}{},
			}
			accs[row.ProductID] = acc
			productOrder = append(productOrder, row.ProductID)
		}
		variant, ok := acc.variants[row.VariantName]
		if !ok {
			variant = &VariantSummary{VariantName: row.VariantName}
			acc.variants[row.VariantName] = variant
			acc.order = append(acc.order, row.VariantName)
		}
		cell := WarehouseCell{
			WarehouseID:  row.WarehouseID,
			Quantity:     row.Quantity,
			ReorderPoint: row.ReorderPoint,
			IsLowStock:   row.Quantity <= row.ReorderPoint,
		}
		variant.Warehouses = append(variant.Warehouses, cell)
		variant.TotalStock += cell.Quantity
		acc.warehouses[row.WarehouseID] = struct{}{}
		if cell.IsLowStock {
			acc.summary.HasLowStock = true
		}
		if cell.Quantity == 0 {
			acc.summary.HasOutOfStock = true
		}
	}

	summaries := make([]ProductStockSummary, 0, len(accs))
	for _, productID := range productOrder {
		acc := accs[productID]
		// Base variant first, then named variants alphabetically.
		sort.SliceStable(acc.order, func(i, j int) bool {
			if acc.order[i] == "" {
				return acc.order[j] != ""
			}
			if acc.order[j] == "" {
				return false
			}
			return acc.order[i] < acc.order[j]
		})
		for _, name := range acc.order {
			variant := acc.variants[name]
			sort.Slice(variant.Warehouses, func(i, j int) bool {
				return variant.Warehouses[i].WarehouseID < variant.Warehouses[j].WarehouseID
			})
			acc.summary.Variants = append(acc.summary.Variants, *variant)
			acc.summary.TotalStock += variant.TotalStock
		}
		acc.summary.VariantCount = len(acc.summary.Variants)
		acc.summary.WarehouseCount = len(acc.warehouses)
		summaries = append(summaries, *acc.summary)
	}

	collator := collate.New(language.Und, collate.IgnoreCase)
	sort.SliceStable(summaries, func(i, j int) bool {
		if cmp := collator.CompareString(summaries[i].Title, summaries[j].Title); cmp != 0 {
			return cmp < 0
		}
		return summaries[i].ProductID < summaries[j].ProductID
	})
	return summaries, nil
}
