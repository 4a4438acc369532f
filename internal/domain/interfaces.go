package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// RemoteStore is the hosted backend's data-access surface. The client core
// consumes nothing else from the backend.
type RemoteStore interface {
	Query(ctx context.Context, table Table, filter Filter) ([]Row, error)
	Insert(ctx context.Context, table Table, rows []Row) ([]Row, error)
	Update(ctx context.Context, table Table, patch Row, filter Filter) ([]Row, error)
	Delete(ctx context.Context, table Table, filter Filter) error
	SubscribeChanges(ctx context.Context, table Table, kinds []ChangeKind) (ChangeStream, error)
}

// ChangeStream delivers change notifications until closed. Events is closed
// once the stream ends for any reason.
type ChangeStream interface {
	Events() <-chan ChangeEvent
	Close() error
}

// KeyValueStore is the device-local persistence used by the local cache
type KeyValueStore interface {
	// Get returns ok=false when the key is absent.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
}

// DepletionHook transitions a product to its unavailable state once stock
// reaches zero.
type DepletionHook interface {
	MarkProductDepleted(ctx context.Context, productID string) error
}

// DepletionHookFunc adapts a function to DepletionHook
type DepletionHookFunc func(ctx context.Context, productID string) error

// MarkProductDepleted calls f.
func (f DepletionHookFunc) MarkProductDepleted(ctx context.Context, productID string) error {
	return f(ctx, productID)
}

// StockDecrementer performs a server-side atomic conditional decrement.
// It fails with ErrInsufficientStock instead of going negative.
type StockDecrementer interface {
	DecrementStock(ctx context.Context, productID string, quantity decimal.Decimal) (decimal.Decimal, error)
}

// OrderPlacer inserts an order and decrements the product's stock in one
// server-side transaction.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, req OrderRequest) (Placement, error)
}
