// Package orders implements the Order Orchestrator: cross-service order
// creation with retry and circuit breaking, field-level encryption of the
// owner identifier, and order history queries.
package orders

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the order lifecycle state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

// transitions pins the server-side state machine:
// pending → confirmed → processing → shipped → delivered, and any
// non-terminal state → cancelled.
var transitions = map[Status][]Status{
	StatusPending:    {StatusConfirmed, StatusCancelled},
	StatusConfirmed:  {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusShipped, StatusCancelled},
	StatusShipped:    {StatusDelivered, StatusCancelled},
	StatusDelivered:  {},
	StatusCancelled:  {},
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// CanTransition reports whether s → to is permitted.
func (s Status) CanTransition(to Status) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Order is a persisted order. OwnerID is the in-memory plaintext; at rest
// the owner travels only as OwnerCipher (authenticated ciphertext) plus
// OwnerDigest (keyed digest for equality lookup).
type Order struct {
	ID          int64           `json:"id"`
	OwnerID     int64           `json:"owner_id"`
	OwnerCipher []byte          `json:"-"`
	OwnerDigest []byte          `json:"-"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Status      Status          `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	Lines       []OrderLine     `json:"items,omitempty"`
}

// OrderLine is one product position. PriceAtPurchase is captured at
// creation and never changes afterwards.
type OrderLine struct {
	ID              int64           `json:"id"`
	OrderID         int64           `json:"order_id"`
	ProductID       int64           `json:"product_id"`
	Quantity        int32           `json:"quantity"`
	PriceAtPurchase decimal.Decimal `json:"price_at_purchase"`
}

// PageSize is the fixed pagination size of history listings.
const PageSize = 20

// OrderPage is one slice of a history listing.
type OrderPage struct {
	Items      []Order `json:"items"`
	Page       int     `json:"page"`
	TotalCount int64   `json:"total_count"`
}

var (
	ErrNotFound = errors.New("orders: not found")
)
