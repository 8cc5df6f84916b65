package orders

import "context"

// OrderFulfilledEvent is emitted after an order transitions to fulfilled. It
// carries everything downstream consumers need without reloading the order.
type OrderFulfilledEvent struct {
	OrderID int64
	RefID   string
	ActorID int64
	Lines   []Line
}

// IntegrationHandler receives lifecycle events. A returned error aborts the
// transition: the order stays in draft and the caller sees the failure.
type IntegrationHandler interface {
	OrderFulfilled(ctx context.Context, event OrderFulfilledEvent) error
}
