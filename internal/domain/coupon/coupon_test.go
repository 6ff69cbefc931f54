package coupon

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/cartloom/coupon-engine/internal/domain/order"
)

// fakeOrder implements order.Order for tests.
type fakeOrder struct {
	id       string
	subTotal decimal.Decimal
	locked   bool
	items    []*fakeItem
}

func (o *fakeOrder) ID() string      { return o.id }
func (o *fakeOrder) IsMutable() bool { return !o.locked }

func (o *fakeOrder) SubTotal() decimal.Decimal {
	if !o.subTotal.IsZero() {
		return o.subTotal
	}
	total := decimal.Zero
	for _, item := range o.items {
		total = total.Add(item.subTotal)
	}
	return total
}

func (o *fakeOrder) Items() []order.Item {
	items := make([]order.Item, len(o.items))
	for i, item := range o.items {
		items[i] = item
	}
	return items
}

func (o *fakeOrder) Duplicate(context.Context) (order.Order, error) {
	clone := *o
	clone.locked = false
	return &clone, nil
}

type fakeItem struct {
	id       string
	orderID  string
	ref      order.PurchasableRef
	quantity int
	subTotal decimal.Decimal
}

func (i *fakeItem) ID() string                        { return i.id }
func (i *fakeItem) OrderID() string                   { return i.orderID }
func (i *fakeItem) Quantity() int                     { return i.quantity }
func (i *fakeItem) SubTotal() decimal.Decimal         { return i.subTotal }
func (i *fakeItem) Purchasable() order.PurchasableRef { return i.ref }

// fakeLookup implements CodeLookup over a fixed rule set.
type fakeLookup struct {
	rules []*Rule
}

func (l *fakeLookup) LookupByCode(_ context.Context, code string) (*Rule, error) {
	for _, r := range l.rules {
		if strings.EqualFold(r.Code, code) {
			return r, nil
		}
	}
	return nil, ErrNotFound
}
