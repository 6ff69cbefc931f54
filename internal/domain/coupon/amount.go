package coupon

import (
	"github.com/shopspring/decimal"

	"github.com/cartloom/coupon-engine/internal/domain/order"
)

// Rounding rounds the product of a percentage multiplication to the
// currency's minor-unit precision. It is applied exactly once, so calculated
// and persisted amounts can never drift by a cent.
type Rounding func(decimal.Decimal) decimal.Decimal

// RoundHalfUp rounds half away from zero at two decimal places. The default.
func RoundHalfUp(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// RoundDown truncates toward zero at two decimal places.
func RoundDown(d decimal.Decimal) decimal.Decimal {
	return d.RoundDown(2)
}

// Calculator computes the monetary discount a rule yields for a target.
type Calculator struct {
	round Rounding
}

// NewCalculator creates a Calculator with the given rounding mode, or
// RoundHalfUp when nil.
func NewCalculator(round Rounding) *Calculator {
	if round == nil {
		round = RoundHalfUp
	}
	return &Calculator{round: round}
}

// AmountFor returns the discount the rule yields against the whole order.
// The result is always zero or negative, with magnitude at most the order
// subtotal: a $20 coupon on a $10 order makes it free, not -$10.
func (c *Calculator) AmountFor(rule *Rule, ord order.Order) decimal.Decimal {
	return c.amount(rule, ord.SubTotal())
}

// AmountForItem returns the discount the rule yields against a single line
// item, clamped to the item's own subtotal.
func (c *Calculator) AmountForItem(rule *Rule, item order.Item) decimal.Decimal {
	return c.amount(rule, item.SubTotal())
}

func (c *Calculator) amount(rule *Rule, subTotal decimal.Decimal) decimal.Decimal {
	var amount decimal.Decimal
	if rule.IsFlat() {
		amount = rule.Amount
	} else {
		amount = c.round(subTotal.Mul(rule.Percentage))
		if !rule.MaxValue.IsZero() && amount.GreaterThan(rule.MaxValue) {
			amount = rule.MaxValue
		}
	}

	if amount.GreaterThan(subTotal) {
		amount = subTotal
	}

	// Negative so the discount lowers the target total.
	return amount.Abs().Neg()
}
