package stock

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/warewise/warewise/internal/observability"
)

// memoryRepo is an in-memory RepositoryPort/AggregatorRepository used by the
// service and aggregator tests. WithTx holds a mutex for the whole callback
// and restores a snapshot on error, mirroring the row-lock plus rollback
// semantics of the SQL repository.
type memoryRepo struct {
	mu             sync.Mutex
	nextBalanceID  int64
	nextMovementID int64
	balances       map[int64]BalanceRecord
	movements      []MovementRecord
	titles         map[int64]string
	totals         map[int64]int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		balances: map[int64]BalanceRecord{},
		titles:   map[int64]string{},
		totals:   map[int64]int64{},
	}
}

type memoryTx struct {
	repo *memoryRepo
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	snapshot := make(map[int64]BalanceRecord, len(r.balances))
	for id, rec := range r.balances {
		snapshot[id] = rec
	}
	movementMark := len(r.movements)
	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.balances = snapshot
		r.movements = r.movements[:movementMark]
		return err
	}
	return nil
}

func (r *memoryRepo) findActive(key BalanceKey) (BalanceRecord, bool) {
	for _, rec := range r.balances {
		if rec.Active() && rec.Key() == key {
			return rec, true
		}
	}
	return BalanceRecord{}, false
}

func (r *memoryRepo) CreateBalance(ctx context.Context, input CreateBalanceInput) (BalanceRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := BalanceKey{ProductID: input.ProductID, VariantName: input.VariantName, WarehouseID: input.WarehouseID}
	if _, ok := r.findActive(key); ok {
		return BalanceRecord{}, ErrBalanceExists
	}
	r.nextBalanceID++
	rec := BalanceRecord{
		ID:           r.nextBalanceID,
		ProductID:    input.ProductID,
		VariantName:  input.VariantName,
		WarehouseID:  input.WarehouseID,
		Quantity:     input.Quantity,
		ReorderPoint: input.ReorderPoint,
	}
	r.balances[rec.ID] = rec
	return rec, nil
}

func (r *memoryRepo) GetBalance(ctx context.Context, id int64) (BalanceRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.balances[id]
	if !ok || !rec.Active() {
		return BalanceRecord{}, ErrBalanceNotFound
	}
	return rec, nil
}

func (r *memoryRepo) ListBalances(ctx context.Context, filter ListFilter) ([]BalanceRecord, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := []BalanceRecord{}
	for _, rec := range r.balances {
		if !rec.Active() {
			continue
		}
		if filter.ProductID != 0 && rec.ProductID != filter.ProductID {
			continue
		}
		if filter.WarehouseID != 0 && rec.WarehouseID != filter.WarehouseID {
			continue
		}
		result = append(result, rec)
	}
	return result, len(result), nil
}

func (r *memoryRepo) UpdateReorderPoint(ctx context.Context, id, point int64) (BalanceRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.balances[id]
	if !ok || !rec.Active() {
		return BalanceRecord{}, ErrBalanceNotFound
	}
	rec.ReorderPoint = point
	r.balances[id] = rec
	return rec, nil
}

func (r *memoryRepo) SoftDeleteBalance(ctx context.Context, id int64) (BalanceRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.balances[id]
	if !ok || !rec.Active() {
		return BalanceRecord{}, ErrBalanceNotFound
	}
	deleted := rec
	now := time.Now()
	deleted.DeletedAt = &now
	r.balances[id] = deleted
	return rec, nil
}

func (r *memoryRepo) ListMovements(ctx context.Context, key BalanceKey, limit int) ([]MovementRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := []MovementRecord{}
	for _, m := range r.movements {
		if m.ProductID == key.ProductID && m.VariantName == key.VariantName && m.WarehouseID == key.WarehouseID {
			result = append(result, m)
		}
	}
	return result, nil
}

func (tx *memoryTx) GetBalanceForUpdate(ctx context.Context, id int64) (BalanceRecord, error) {
	rec, ok := tx.repo.balances[id]
	if !ok || !rec.Active() {
		return BalanceRecord{}, ErrBalanceNotFound
	}
	return rec, nil
}

func (tx *memoryTx) GetBalanceForUpdateByKey(ctx context.Context, key BalanceKey) (BalanceRecord, error) {
	rec, ok := tx.repo.findActive(key)
	if !ok {
		return BalanceRecord{}, ErrBalanceNotFound
	}
	return rec, nil
}

func (tx *memoryTx) UpdateQuantity(ctx context.Context, id, quantity int64) (BalanceRecord, error) {
	rec, ok := tx.repo.balances[id]
	if !ok || !rec.Active() {
		return BalanceRecord{}, ErrBalanceNotFound
	}
	rec.Quantity = quantity
	tx.repo.balances[id] = rec
	return rec, nil
}

func (tx *memoryTx) InsertMovement(ctx context.Context, m MovementRecord) (MovementRecord, error) {
	tx.repo.nextMovementID++
	m.ID = tx.repo.nextMovementID
	tx.repo.movements = append(tx.repo.movements, m)
	return m, nil
}

func (r *memoryRepo) SumProductQuantity(ctx context.Context, productID int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var total int64
	for _, rec := range r.balances {
		if rec.Active() && rec.ProductID == productID {
			total += rec.Quantity
		}
	}
	return total, nil
}

func (r *memoryRepo) UpdateProductTotal(ctx context.Context, productID, total int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.totals[productID] = total
	return nil
}

func (r *memoryRepo) ListProductIDs(ctx context.Context) ([]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := map[int64]struct{}{}
	ids := []int64{}
	for _, rec := range r.balances {
		if !rec.Active() {
			continue
		}
		if _, ok := seen[rec.ProductID]; ok {
			continue
		}
		seen[rec.ProductID] = struct{}{}
		ids = append(ids, rec.ProductID)
	}
	return ids, nil
}

func (r *memoryRepo) ListSummaryRows(ctx context.Context) ([]SummaryRow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rows := []SummaryRow{}
	for _, rec := range r.balances {
		if !rec.Active() {
			continue
		}
		title := r.titles[rec.ProductID]
		if title == "" {
			title = fmt.Sprintf("product-%d", rec.ProductID)
		}
		rows = append(rows, SummaryRow{
			ProductID:    rec.ProductID,
			Title:        title,
			VariantName:  rec.VariantName,
			WarehouseID:  rec.WarehouseID,
			Quantity:     rec.Quantity,
			ReorderPoint: rec.ReorderPoint,
		})
	}
	return rows, nil
}

func newTestService(repo *memoryRepo) (*Service, *Aggregator) {
	aggregator := NewAggregator(repo, nil, nil)
	return NewService(repo, aggregator, nil, nil, nil, nil), aggregator
}

func TestCreateBalanceConflict(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newTestService(repo)
	ctx := context.Background()

	rec, err := svc.CreateBalance(ctx, CreateBalanceInput{ProductID: 1, WarehouseID: 1, Quantity: 10, ReorderPoint: 2})
	require.NoError(t, err)
	require.EqualValues(t, 10, rec.Quantity)

	_, err = svc.CreateBalance(ctx, CreateBalanceInput{ProductID: 1, WarehouseID: 1, Quantity: 5})
	require.ErrorIs(t, err, ErrBalanceExists)

	// A different variant is a different cell.
	_, err = svc.CreateBalance(ctx, CreateBalanceInput{ProductID: 1, VariantName: "red", WarehouseID: 1, Quantity: 5})
	require.NoError(t, err)

	// Soft deleting frees the triple for recreation.
	require.NoError(t, svc.SoftDelete(ctx, rec.ID, 0))
	_, err = svc.CreateBalance(ctx, CreateBalanceInput{ProductID: 1, WarehouseID: 1, Quantity: 3})
	require.NoError(t, err)
}

func TestAdjustStrict(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newTestService(repo)
	ctx := context.Background()

	rec, err := svc.CreateBalance(ctx, CreateBalanceInput{ProductID: 7, WarehouseID: 2, Quantity: 20})
	require.NoError(t, err)

	updated, err := svc.Adjust(ctx, AdjustInput{BalanceID: rec.ID, Quantity: 6, Reason: "damaged in transit"})
	require.NoError(t, err)
	require.EqualValues(t, 14, updated.Quantity)

	movements, err := svc.ListMovements(ctx, rec.ID, 0)
	require.NoError(t, err)
	require.Len(t, movements, 1)
	require.EqualValues(t, -6, movements[0].Delta)
	require.EqualValues(t, 20, movements[0].PreviousQuantity)
	require.EqualValues(t, 14, movements[0].NewQuantity)
	require.Equal(t, MovementAdjustment, movements[0].Kind)
}

func TestAdjustInsufficientStock(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newTestService(repo)
	ctx := context.Background()

	rec, err := svc.CreateBalance(ctx, CreateBalanceInput{ProductID: 7, WarehouseID: 2, Quantity: 4})
	require.NoError(t, err)

	_, err = svc.Adjust(ctx, AdjustInput{BalanceID: rec.ID, Quantity: 5})
	require.ErrorIs(t, err, ErrInsufficientStock)

	after, err := svc.GetBalance(ctx, rec.ID)
	require.NoError(t, err)
	require.EqualValues(t, 4, after.Quantity)

	movements, err := svc.ListMovements(ctx, rec.ID, 0)
	require.NoError(t, err)
	require.Empty(t, movements)
}

func TestQuickAdjustAddAndClamp(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newTestService(repo)
	ctx := context.Background()

	rec, err := svc.CreateBalance(ctx, CreateBalanceInput{ProductID: 3, WarehouseID: 1, Quantity: 10})
	require.NoError(t, err)

	updated, movement, err := svc.QuickAdjust(ctx, QuickAdjustInput{BalanceID: rec.ID, Op: OpAdd, Quantity: 5})
	require.NoError(t, err)
	require.EqualValues(t, 15, updated.Quantity)
	require.EqualValues(t, 5, movement.Delta)

	// Deducting more than available clamps to zero; the stored delta is the
	// applied delta so new = previous + delta still holds.
	updated, movement, err = svc.QuickAdjust(ctx, QuickAdjustInput{BalanceID: rec.ID, Op: OpDeduct, Quantity: 100})
	require.NoError(t, err)
	require.EqualValues(t, 0, updated.Quantity)
	require.EqualValues(t, -15, movement.Delta)
	require.EqualValues(t, 15, movement.PreviousQuantity)
	require.EqualValues(t, 0, movement.NewQuantity)
	require.Contains(t, movement.Notes, "clamped at zero")
	require.Equal(t, movement.NewQuantity, movement.PreviousQuantity+movement.Delta)
}

func TestQuickAdjustUnknownOperation(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newTestService(repo)
	ctx := context.Background()

	rec, err := svc.CreateBalance(ctx, CreateBalanceInput{ProductID: 3, WarehouseID: 1, Quantity: 10})
	require.NoError(t, err)

	_, _, err = svc.QuickAdjust(ctx, QuickAdjustInput{BalanceID: rec.ID, Op: "set", Quantity: 1})
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestPatchRoutesQuantityThroughLedger(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newTestService(repo)
	ctx := context.Background()

	rec, err := svc.CreateBalance(ctx, CreateBalanceInput{ProductID: 4, WarehouseID: 1, Quantity: 10, ReorderPoint: 2})
	require.NoError(t, err)

	// Reorder point patch is not ledgered.
	point := int64(5)
	updated, err := svc.PatchBalance(ctx, rec.ID, PatchInput{ReorderPoint: &point})
	require.NoError(t, err)
	require.EqualValues(t, 5, updated.ReorderPoint)
	movements, err := svc.ListMovements(ctx, rec.ID, 0)
	require.NoError(t, err)
	require.Empty(t, movements)

	// Quantity patch produces a correction movement.
	target := int64(25)
	updated, err = svc.PatchBalance(ctx, rec.ID, PatchInput{Quantity: &target})
	require.NoError(t, err)
	require.EqualValues(t, 25, updated.Quantity)
	movements, err = svc.ListMovements(ctx, rec.ID, 0)
	require.NoError(t, err)
	require.Len(t, movements, 1)
	require.EqualValues(t, 15, movements[0].Delta)
	require.Contains(t, movements[0].Notes, "manual correction")

	// Patching to the current quantity is a no-op.
	same := int64(25)
	_, err = svc.PatchBalance(ctx, rec.ID, PatchInput{Quantity: &same})
	require.NoError(t, err)
	movements, err = svc.ListMovements(ctx, rec.ID, 0)
	require.NoError(t, err)
	require.Len(t, movements, 1)
}

// The in-memory repo serializes transactions with a mutex and hands each one
// the latest committed quantity, matching what the SQL path gets from
// SELECT ... FOR UPDATE under read committed: the loser of the race resolves
// its delta against the winner's committed row. Isolation-level behavior
// itself (db.WithTx's ReadCommitted) is not reproducible here and needs a
// live Postgres to exercise.
func TestConcurrentStrictDeducts(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newTestService(repo)
	ctx := context.Background()

	rec, err := svc.CreateBalance(ctx, CreateBalanceInput{ProductID: 9, WarehouseID: 1, Quantity: 8})
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Adjust(ctx, AdjustInput{BalanceID: rec.ID, Quantity: 5, Reason: "sale"})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var succeeded, rejected int
	for err := range errs {
		if err == nil {
			succeeded++
		} else {
			require.ErrorIs(t, err, ErrInsufficientStock)
			rejected++
		}
	}
	require.Equal(t, 1, succeeded)
	require.Equal(t, 1, rejected)

	after, err := svc.GetBalance(ctx, rec.ID)
	require.NoError(t, err)
	require.EqualValues(t, 3, after.Quantity)

	movements, err := svc.ListMovements(ctx, rec.ID, 0)
	require.NoError(t, err)
	require.Len(t, movements, 1)
	require.EqualValues(t, 8, movements[0].PreviousQuantity)
	require.EqualValues(t, 3, movements[0].NewQuantity)
}

func TestDeductForSale(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newTestService(repo)
	ctx := context.Background()

	_, err := svc.CreateBalance(ctx, CreateBalanceInput{ProductID: 1, WarehouseID: 1, Quantity: 10})
	require.NoError(t, err)
	_, err = svc.CreateBalance(ctx, CreateBalanceInput{ProductID: 2, WarehouseID: 1, Quantity: 1})
	require.NoError(t, err)

	refID := uuid.NewString()
	movements, err := svc.DeductForSale(ctx, []SaleLine{
		{ProductID: 1, WarehouseID: 1, Quantity: 4},
		{ProductID: 2, WarehouseID: 1, Quantity: 1},
	}, refID, 42)
	require.NoError(t, err)
	require.Len(t, movements, 2)
	for _, m := range movements {
		require.Equal(t, MovementSale, m.Kind)
		require.Equal(t, refID, m.RefID)
	}

	// A failing line rolls back the whole batch.
	_, err = svc.DeductForSale(ctx, []SaleLine{
		{ProductID: 1, WarehouseID: 1, Quantity: 2},
		{ProductID: 2, WarehouseID: 1, Quantity: 5},
	}, uuid.NewString(), 42)
	require.ErrorIs(t, err, ErrInsufficientStock)

	records, _, err := repo.ListBalances(ctx, ListFilter{ProductID: 1})
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.EqualValues(t, 6, records[0].Quantity)
}

func TestDeductForSaleCountsEachLine(t *testing.T) {
	repo := newMemoryRepo()
	registry := prometheus.NewRegistry()
	metrics := observability.NewStockMetrics(registry)
	aggregator := NewAggregator(repo, nil, nil)
	svc := NewService(repo, aggregator, nil, nil, metrics, nil)
	ctx := context.Background()

	_, err := svc.CreateBalance(ctx, CreateBalanceInput{ProductID: 1, WarehouseID: 1, Quantity: 10})
	require.NoError(t, err)
	_, err = svc.CreateBalance(ctx, CreateBalanceInput{ProductID: 2, WarehouseID: 1, Quantity: 5})
	require.NoError(t, err)

	movements, err := svc.DeductForSale(ctx, []SaleLine{
		{ProductID: 1, WarehouseID: 1, Quantity: 3},
		{ProductID: 2, WarehouseID: 1, Quantity: 2},
	}, uuid.NewString(), 42)
	require.NoError(t, err)
	require.Len(t, movements, 2)

	// One adjustment counted per ledgered movement, not per batch.
	families, err := registry.Gather()
	require.NoError(t, err)
	var counted float64
	for _, family := range families {
		if family.GetName() != "warewise_stock_adjustments_total" {
			continue
		}
		for _, metric := range family.GetMetric() {
			counted += metric.GetCounter().GetValue()
		}
	}
	require.EqualValues(t, 2, counted)
}

func TestSoftDeleteResyncsTotal(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newTestService(repo)
	ctx := context.Background()

	a, err := svc.CreateBalance(ctx, CreateBalanceInput{ProductID: 5, WarehouseID: 1, Quantity: 10})
	require.NoError(t, err)
	_, err = svc.CreateBalance(ctx, CreateBalanceInput{ProductID: 5, WarehouseID: 2, Quantity: 7})
	require.NoError(t, err)
	require.EqualValues(t, 17, repo.totals[5])

	require.NoError(t, svc.SoftDelete(ctx, a.ID, 0))
	require.EqualValues(t, 7, repo.totals[5])
}
