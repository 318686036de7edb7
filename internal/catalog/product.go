// Package catalog implements the product service: the public product
// surface and the internal RPCs the Orchestrator fans out to.
package catalog

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Product is a catalog entry. Price is fixed-point with two fractional
// digits; InventoryCount never goes negative through any public operation.
type Product struct {
	ID             int64           `json:"id"`
	Name           string          `json:"name"`
	Description    string          `json:"description"`
	Price          decimal.Decimal `json:"price"`
	InventoryCount int32           `json:"inventory_count"`
	IsActive       bool            `json:"is_active"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// PageSize is the fixed pagination size of the public listing.
const PageSize = 20

// Page is one slice of the product listing.
type Page struct {
	Items      []Product `json:"items"`
	Page       int       `json:"page"`
	TotalCount int64     `json:"total_count"`
}

var (
	ErrNotFound = errors.New("catalog: not found")
)
