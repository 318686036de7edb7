package orders

import "context"

// Store describes persistence operations required by the orchestrator.
// CreateOrder is the only write on the hot path and runs in one local
// transaction; nothing is persisted before every upstream check passed.
type Store interface {
	// CreateOrder inserts the order and all lines atomically, filling in
	// generated ids and timestamps.
	CreateOrder(ctx context.Context, o *Order) error
	// FindOrder loads one order with its lines.
	FindOrder(ctx context.Context, id int64) (*Order, error)
	// ListByOwnerDigest pages orders whose owner digest matches, newest
	// first.
	ListByOwnerDigest(ctx context.Context, digest []byte, page, pageSize int) ([]Order, int64, error)
	// ListAll pages every order, newest first. Admin surface.
	ListAll(ctx context.Context, page, pageSize int) ([]Order, int64, error)
	// UpdateStatus moves an order from one status to another. Returns
	// false when the order was not in the expected source status.
	UpdateStatus(ctx context.Context, id int64, from, to Status) (bool, error)
}
