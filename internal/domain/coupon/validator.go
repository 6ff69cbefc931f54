package coupon

import (
	"fmt"
	"time"

	"github.com/cartloom/coupon-engine/internal/domain/order"
)

// FieldCoupon is the field name restriction failures are reported under.
const FieldCoupon = "Coupon"

// Policy is a pluggable validity check invoked after the built-in checks, in
// registration order. Policies append field errors to the result; they never
// clear errors added by earlier checks.
type Policy func(rule *Rule, ord order.Order, res *Result)

// Validator evaluates a rule's restrictions against an order.
type Validator struct {
	now      func() time.Time
	policies []Policy
}

// NewValidator creates a Validator with the given extension policies.
func NewValidator(policies ...Policy) *Validator {
	return &Validator{now: time.Now, policies: policies}
}

// WithNow overrides the clock. Used by tests and replay tooling.
func (v *Validator) WithNow(now func() time.Time) *Validator {
	v.now = now
	return v
}

// ValidateFor runs every restriction check for the rule against the order and
// returns the accumulated field errors. Checks are independent: all of them
// run so the caller sees every violation at once.
func (v *Validator) ValidateFor(rule *Rule, ord order.Order) *Result {
	res := &Result{}

	switch rule.Kind {
	case KindItem:
		anyItemMeets := false
		for _, item := range v.ApplicableItems(rule, ord) {
			if v.MeetsItemRequirements(rule, item) {
				anyItemMeets = true
				break
			}
		}
		// An empty applicability set can never match, so the coupon is
		// invalid for every order.
		if !anyItemMeets {
			res.AddFieldError(FieldCoupon, NoMatchedItems, fmt.Sprintf(
				"Sorry, the coupon %q is not valid for any items in your cart.", rule.Title))
		}
	default:
		if ord.SubTotal().LessThan(rule.MinSubTotal) {
			res.AddFieldError(FieldCoupon, SubTotalTooLow, fmt.Sprintf(
				"Sorry, the coupon %q is only valid for orders of at least %s.",
				rule.Title, rule.MinSubTotal.StringFixed(2)))
		}
	}

	now := v.now()
	if rule.ValidFrom != nil && now.Before(*rule.ValidFrom) {
		res.AddFieldError(FieldCoupon, TooEarly, fmt.Sprintf(
			"Sorry, the coupon %q is not valid before %s.", rule.Title, rule.ValidFrom))
	}
	if rule.ValidUntil != nil && now.After(*rule.ValidUntil) {
		res.AddFieldError(FieldCoupon, TooLate, fmt.Sprintf(
			"Sorry, the coupon %q expired at %s.", rule.Title, rule.ValidUntil))
	}

	if rule.LimitUses && rule.RemainingUses <= 0 {
		res.AddFieldError(FieldCoupon, NoRemainingUses, fmt.Sprintf(
			"Sorry, the coupon %q has run out of uses.", rule.Title))
	}

	for _, policy := range v.policies {
		policy(rule, ord, res)
	}
	return res
}

// ApplicableItems returns the order items whose purchasable is in the rule's
// applicability set.
func (v *Validator) ApplicableItems(rule *Rule, ord order.Order) []order.Item {
	var items []order.Item
	for _, item := range ord.Items() {
		if rule.AppliesTo(item.Purchasable()) {
			items = append(items, item)
		}
	}
	return items
}

// MeetsItemRequirements reports whether a single item satisfies the rule's
// quantity gate.
func (v *Validator) MeetsItemRequirements(rule *Rule, item order.Item) bool {
	return item.Quantity() >= rule.MinQuantity
}
