package coupon

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var one = decimal.NewFromInt(1)

// Validate checks the rule definition itself: code presence and cross-kind
// uniqueness, amount/percentage exclusivity, and sign constraints. It is invoked
// at write time by Repository implementations. The lookup spans both coupon
// kinds; a hit with the rule's own ID is not a duplicate, so renaming a
// coupon without changing its code never trips the check.
func (r *Rule) Validate(ctx context.Context, lookup CodeLookup) (*Result, error) {
	res := &Result{}

	if r.Code == "" {
		res.AddFieldError("Code", CodeEmpty, "Code cannot be empty.")
	} else {
		existing, err := lookup.LookupByCode(ctx, r.Code)
		switch {
		case errors.Is(err, ErrNotFound):
			// Code is free.
		case err != nil:
			return nil, errors.Wrap(err, "lookup code")
		case existing.ID != r.ID:
			res.AddFieldError("Code", CodeDuplicate, fmt.Sprintf(
				"Another coupon with that code (%q) already exists. Code must be unique across order and order item coupons.",
				existing.Title))
		}
	}

	hasAmount := !r.Amount.IsZero()
	hasPercentage := !r.Percentage.IsZero()
	switch {
	case !hasAmount && !hasPercentage:
		res.AddFieldError("Amount", AmountPercentageEmpty, "One of amount or percentage must be set.")
	case hasAmount && hasPercentage:
		res.AddFieldError("Percentage", AmountPercentageBoth,
			"Please set only one of amount and percentage. The other should be zero.")
	}

	if r.Amount.IsNegative() {
		res.AddFieldError("Amount", AmountNegative, "Amount should not be negative.")
	}
	if hasPercentage && (r.Percentage.IsNegative() || r.Percentage.GreaterThan(one)) {
		res.AddFieldError("Percentage", PercentageOutOfRange,
			"Percentage must be a fraction between 0 and 1 - e.g. 0.25 for 25% off.")
	}
	if r.MaxValue.IsNegative() {
		res.AddFieldError("MaxValue", MaxValueNegative, "Max value should not be negative.")
	}
	if r.MinSubTotal.IsNegative() {
		res.AddFieldError("MinSubTotal", MinSubTotalNegative, "Minimum sub-total should not be negative.")
	}
	if r.MinQuantity < 0 {
		res.AddFieldError("MinQuantity", MinQuantityNegative, "Minimum quantity should not be negative.")
	}

	return res, nil
}
