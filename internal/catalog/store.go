package catalog

import "context"

// Store describes persistence operations required by the catalog.
type Store interface {
	Create(ctx context.Context, p *Product) error
	Find(ctx context.Context, id int64) (*Product, error)
	// List returns one page of active products, optionally filtered by a
	// search term over name and description.
	List(ctx context.Context, search string, page, pageSize int) ([]Product, int64, error)
	Update(ctx context.Context, p *Product) error
	// Delete soft-deactivates the product.
	Delete(ctx context.Context, id int64) error
}
