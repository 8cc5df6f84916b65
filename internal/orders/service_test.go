package orders

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	nextOrderID int64
	nextLineID  int64
	orders      map[int64]Order
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{orders: map[int64]Order{}}
}

func (r *memoryRepo) CreateOrder(ctx context.Context, refID string, lines []LineInput) (Order, error) {
	r.nextOrderID++
	order := Order{ID: r.nextOrderID, RefID: refID, Status: StatusDraft}
	for _, input := range lines {
		r.nextLineID++
		order.Lines = append(order.Lines, Line{
			ID:          r.nextLineID,
			OrderID:     order.ID,
			ProductID:   input.ProductID,
			VariantName: input.VariantName,
			WarehouseID: input.WarehouseID,
			Quantity:    input.Quantity,
		})
	}
	r.orders[order.ID] = order
	return order, nil
}

func (r *memoryRepo) GetOrder(ctx context.Context, id int64) (Order, error) {
	order, ok := r.orders[id]
	if !ok {
		return Order{}, ErrOrderNotFound
	}
	return order, nil
}

func (r *memoryRepo) ListOrders(ctx context.Context, status Status, limit int) ([]Order, error) {
	result := []Order{}
	for _, order := range r.orders {
		if status != "" && order.Status != status {
			continue
		}
		result = append(result, order)
	}
	return result, nil
}

func (r *memoryRepo) CloseOrder(ctx context.Context, id int64, status Status) (Order, error) {
	order, ok := r.orders[id]
	if !ok {
		return Order{}, ErrOrderNotFound
	}
	if order.Status != StatusDraft {
		return Order{}, ErrNotDraft
	}
	order.Status = status
	r.orders[id] = order
	return order, nil
}

type recordingIntegration struct {
	events []OrderFulfilledEvent
	err    error
}

func (i *recordingIntegration) OrderFulfilled(ctx context.Context, event OrderFulfilledEvent) error {
	if i.err != nil {
		return i.err
	}
	i.events = append(i.events, event)
	return nil
}

func TestCreateOrderValidation(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil, nil)
	ctx := context.Background()

	_, err := svc.CreateOrder(ctx, CreateOrderInput{})
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.CreateOrder(ctx, CreateOrderInput{Lines: []LineInput{{ProductID: 1, WarehouseID: 1, Quantity: 0}}})
	require.ErrorIs(t, err, ErrInvalidInput)

	order, err := svc.CreateOrder(ctx, CreateOrderInput{Lines: []LineInput{{ProductID: 1, WarehouseID: 1, Quantity: 2}}})
	require.NoError(t, err)
	require.Equal(t, StatusDraft, order.Status)
	require.NotEmpty(t, order.RefID)
	require.Len(t, order.Lines, 1)
}

func TestFulfillEmitsEvent(t *testing.T) {
	repo := newMemoryRepo()
	integration := &recordingIntegration{}
	svc := NewService(repo, integration, nil, nil)
	ctx := context.Background()

	order, err := svc.CreateOrder(ctx, CreateOrderInput{Lines: []LineInput{
		{ProductID: 1, WarehouseID: 1, Quantity: 2},
		{ProductID: 2, VariantName: "red", WarehouseID: 3, Quantity: 1},
	}})
	require.NoError(t, err)

	fulfilled, err := svc.Fulfill(ctx, order.ID, 7)
	require.NoError(t, err)
	require.Equal(t, StatusFulfilled, fulfilled.Status)
	require.Len(t, integration.events, 1)
	event := integration.events[0]
	require.Equal(t, order.ID, event.OrderID)
	require.Equal(t, order.RefID, event.RefID)
	require.EqualValues(t, 7, event.ActorID)
	require.Len(t, event.Lines, 2)

	// Fulfilled orders cannot transition again.
	_, err = svc.Fulfill(ctx, order.ID, 7)
	require.ErrorIs(t, err, ErrNotDraft)
	_, err = svc.Cancel(ctx, order.ID, 7)
	require.ErrorIs(t, err, ErrNotDraft)
}

func TestFulfillBlockedByIntegration(t *testing.T) {
	repo := newMemoryRepo()
	blocked := errors.New("insufficient stock")
	svc := NewService(repo, &recordingIntegration{err: blocked}, nil, nil)
	ctx := context.Background()

	order, err := svc.CreateOrder(ctx, CreateOrderInput{Lines: []LineInput{{ProductID: 1, WarehouseID: 1, Quantity: 2}}})
	require.NoError(t, err)

	_, err = svc.Fulfill(ctx, order.ID, 0)
	require.ErrorIs(t, err, blocked)

	// The order stays in draft and can be cancelled.
	current, err := svc.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, StatusDraft, current.Status)

	cancelled, err := svc.Cancel(ctx, order.ID, 0)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, cancelled.Status)
}
