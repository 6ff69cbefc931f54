// Package coupon implements the discount rule model: definition validation,
// restriction checks against orders, and discount amount calculation.
package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/cartloom/coupon-engine/internal/domain/order"
)

// Kind discriminates the two coupon variants.
type Kind string

const (
	// KindOrder discounts the whole order; restricted by minimum subtotal.
	KindOrder Kind = "order"
	// KindItem discounts individual line items; restricted by minimum
	// quantity and a set of applicable purchasables.
	KindItem Kind = "item"
)

// ErrNotFound is returned when a coupon code or ID resolves to nothing.
var ErrNotFound = errors.New("coupon not found")

// Rule is one coupon's discount terms and restriction predicates. Exactly one
// of Amount and Percentage is set; which restriction fields are meaningful
// depends on Kind.
type Rule struct {
	ID    string
	Kind  Kind
	Code  string
	Title string

	// Amount is a flat discount. Zero when the coupon is percentage-based.
	Amount decimal.Decimal
	// Percentage is a fraction in (0, 1], e.g. 0.25 for 25% off.
	// Zero when the coupon is flat-amount.
	Percentage decimal.Decimal
	// MaxValue caps percentage-based discounts. Zero means uncapped.
	// Ignored for flat-amount coupons.
	MaxValue decimal.Decimal

	ValidFrom  *time.Time
	ValidUntil *time.Time

	// RemainingUses only gates validity while LimitUses is set.
	LimitUses     bool
	RemainingUses int

	// MinSubTotal is the order-kind spend gate.
	MinSubTotal decimal.Decimal

	// MinQuantity and Purchasables are the item-kind restrictions. Quantity is
	// tested per item: 2 shirts and 2 pants do not satisfy a minimum of 3.
	MinQuantity  int
	Purchasables []order.PurchasableRef
}

// IsFlat reports whether the rule discounts by a flat amount.
func (r *Rule) IsFlat() bool {
	return !r.Amount.IsZero()
}

// AppliesTo reports whether the purchasable is in the rule's applicability
// set. Always false for order-kind rules.
func (r *Rule) AppliesTo(ref order.PurchasableRef) bool {
	for _, p := range r.Purchasables {
		if p == ref {
			return true
		}
	}
	return false
}

// CodeLookup resolves a code to a rule across both coupon kinds.
type CodeLookup interface {
	// LookupByCode is case-insensitive and returns ErrNotFound on a miss.
	LookupByCode(ctx context.Context, code string) (*Rule, error)
}

// Repository provides lookup and persistence of coupon rules.
//
// Create and Update must reject rules whose Validate result carries errors;
// code uniqueness spans both kinds and is enforced at write time.
type Repository interface {
	CodeLookup
	GetByID(ctx context.Context, id string) (*Rule, error)
	Create(ctx context.Context, rule *Rule) error
	Update(ctx context.Context, rule *Rule) error
}
