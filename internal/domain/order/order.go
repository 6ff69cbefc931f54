// Package order defines the order collaborator consumed by the coupon engine.
//
// Orders and their items are owned by the surrounding commerce platform. The
// engine only reads pricing/quantity data from them and checks mutability
// before attaching or clearing coupon applications.
package order

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested order does not exist.
var ErrNotFound = errors.New("order not found")

// PurchasableRef identifies a catalog entry an item coupon may target.
// Matching is by exact (Class, ID) equality, never by type hierarchy.
type PurchasableRef struct {
	Class string
	ID    string
}

// Order is a customer order (or open cart) as seen by the coupon engine.
type Order interface {
	ID() string
	// SubTotal is the pre-discount total of all items and their add-ons.
	SubTotal() decimal.Decimal
	// IsMutable reports whether the order is still open for edits. Submitted
	// or paid orders are locked and must never be mutated in place.
	IsMutable() bool
	// Duplicate returns an unlocked clone of the order. Callers that need to
	// modify a locked order clone it first; the engine itself never does.
	Duplicate(ctx context.Context) (Order, error)
	Items() []Item
}

// Item is a single line item of an order.
type Item interface {
	ID() string
	OrderID() string
	Quantity() int
	// SubTotal is the pre-discount line total for this item.
	SubTotal() decimal.Decimal
	Purchasable() PurchasableRef
}

// Source resolves orders by ID. Implemented by the platform's cart storage.
type Source interface {
	Get(ctx context.Context, id string) (Order, error)
}

// ItemSpec describes one line item when creating a cart.
type ItemSpec struct {
	Purchasable PurchasableRef
	Quantity    int
	SubTotal    decimal.Decimal
}
