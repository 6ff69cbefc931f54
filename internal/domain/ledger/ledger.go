package ledger

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/cartloom/coupon-engine/internal/domain/coupon"
	"github.com/cartloom/coupon-engine/internal/domain/order"
)

// Ledger coordinates coupon application lifecycle: validation, stacking
// resolution, attachment, clearing, and usage recording.
type Ledger struct {
	store     TxStore
	stacks    StackStore
	coupons   coupon.Repository
	validator *coupon.Validator
	calc      *coupon.Calculator
}

// New creates a Ledger with the given collaborators.
func New(
	store TxStore,
	stacks StackStore,
	coupons coupon.Repository,
	validator *coupon.Validator,
	calc *coupon.Calculator,
) *Ledger {
	return &Ledger{
		store:     store,
		stacks:    stacks,
		coupons:   coupons,
		validator: validator,
		calc:      calc,
	}
}

// Stacks reports whether two coupons may be simultaneously applied. The
// relation is symmetric and defaults to false: coupons do not stack unless
// explicitly paired. A coupon trivially coexists with itself.
func (l *Ledger) Stacks(ctx context.Context, a, b *coupon.Rule) (bool, error) {
	if a.ID == b.ID {
		return true, nil
	}
	return l.stacks.Stacks(ctx, a.ID, b.ID)
}

// ApplyToOrder attaches an order-kind rule to the order. Idempotent: a second
// apply of the same coupon is a no-op. This is the additive flow: it rejects
// with ErrStackConflict instead of clearing prior applications.
func (l *Ledger) ApplyToOrder(ctx context.Context, ord order.Order, rule *coupon.Rule) error {
	if rule.Kind != coupon.KindOrder {
		return ErrKindMismatch
	}
	if !ord.IsMutable() {
		return ErrOrderLocked
	}

	apps, err := l.allApplications(ctx, ord.ID())
	if err != nil {
		return err
	}
	for _, app := range apps {
		if !app.IsItem() && app.CouponID == rule.ID {
			return nil
		}
	}
	if err := l.checkStacking(ctx, rule, apps); err != nil {
		return err
	}

	return l.store.CreateApplication(ctx, Application{
		ID:       uuid.New().String(),
		OrderID:  ord.ID(),
		CouponID: rule.ID,
	})
}

// ApplyToItem attaches an item-kind rule to a single order item, with the
// same idempotency, mutability, and stacking contract as ApplyToOrder.
func (l *Ledger) ApplyToItem(ctx context.Context, ord order.Order, item order.Item, rule *coupon.Rule) error {
	if rule.Kind != coupon.KindItem {
		return ErrKindMismatch
	}
	if !ord.IsMutable() {
		return ErrOrderLocked
	}

	apps, err := l.allApplications(ctx, ord.ID())
	if err != nil {
		return err
	}
	for _, app := range apps {
		if app.OrderItemID == item.ID() && app.CouponID == rule.ID {
			return nil
		}
	}
	if err := l.checkStacking(ctx, rule, apps); err != nil {
		return err
	}

	return l.store.CreateApplication(ctx, Application{
		ID:          uuid.New().String(),
		OrderID:     ord.ID(),
		OrderItemID: item.ID(),
		CouponID:    rule.ID,
	})
}

// ApplyCode is the single-code-field checkout flow: resolve the code,
// validate the rule against the order, clear applications that do not stack
// with it, then attach it. Replace-on-apply semantics.
//
// A lookup miss or failed validation is returned as a *coupon.Result error
// carrying field-scoped messages for the checkout form.
func (l *Ledger) ApplyCode(ctx context.Context, ord order.Order, code string) (*coupon.Rule, error) {
	rule, err := l.coupons.LookupByCode(ctx, code)
	if errors.Is(err, coupon.ErrNotFound) {
		res := &coupon.Result{}
		res.AddFieldError(coupon.FieldCoupon, coupon.CouponInvalid, "Sorry, that coupon code is invalid.")
		return nil, res
	}
	if err != nil {
		return nil, errors.Wrap(err, "lookup coupon")
	}

	if res := l.validator.ValidateFor(rule, ord); !res.Valid() {
		return nil, res
	}
	if !ord.IsMutable() {
		return nil, ErrOrderLocked
	}

	if _, err := l.ClearNonStackable(ctx, ord, rule); err != nil {
		return nil, err
	}

	if rule.Kind == coupon.KindOrder {
		if err := l.ApplyToOrder(ctx, ord, rule); err != nil {
			return nil, err
		}
		return rule, nil
	}
	for _, item := range l.validator.ApplicableItems(rule, ord) {
		if err := l.ApplyToItem(ctx, ord, item, rule); err != nil {
			return nil, err
		}
	}
	return rule, nil
}

// ClearNonStackable removes every application on the order and its items
// whose coupon does not stack with the incoming rule. Returns the number of
// applications removed. Runs before attachment in the replace flow.
func (l *Ledger) ClearNonStackable(ctx context.Context, ord order.Order, incoming *coupon.Rule) (int, error) {
	if !ord.IsMutable() {
		return 0, ErrOrderLocked
	}

	apps, err := l.allApplications(ctx, ord.ID())
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, app := range apps {
		if app.CouponID == incoming.ID {
			continue
		}
		stacks, err := l.stacks.Stacks(ctx, incoming.ID, app.CouponID)
		if err != nil {
			return removed, errors.Wrap(err, "check stacking")
		}
		if stacks {
			continue
		}
		if err := l.store.DeleteApplication(ctx, app.ID); err != nil {
			return removed, errors.Wrap(err, "delete application")
		}
		removed++
	}
	return removed, nil
}

// ClearOrderCoupons deletes all order-level applications on the order and
// returns the count removed.
func (l *Ledger) ClearOrderCoupons(ctx context.Context, ord order.Order) (int, error) {
	if !ord.IsMutable() {
		return 0, ErrOrderLocked
	}
	return l.store.DeleteOrderApplications(ctx, ord.ID())
}

// ClearItemCoupons deletes all item-level applications on the order's items
// and returns the count removed.
func (l *Ledger) ClearItemCoupons(ctx context.Context, ord order.Order) (int, error) {
	if !ord.IsMutable() {
		return 0, ErrOrderLocked
	}
	return l.store.DeleteItemApplications(ctx, ord.ID())
}

// HasCoupons reports whether any application exists for the order.
func (l *Ledger) HasCoupons(ctx context.Context, ord order.Order) (bool, error) {
	apps, err := l.allApplications(ctx, ord.ID())
	if err != nil {
		return false, err
	}
	return len(apps) > 0, nil
}

// DiscountTotal returns the sum of all active application amounts for the
// order. The result is zero or negative.
func (l *Ledger) DiscountTotal(ctx context.Context, ord order.Order) (decimal.Decimal, error) {
	apps, err := l.allApplications(ctx, ord.ID())
	if err != nil {
		return decimal.Zero, err
	}

	total := decimal.Zero
	for _, app := range apps {
		amount, active, err := l.activeAmount(ctx, l.store, app, ord)
		if err != nil {
			return decimal.Zero, err
		}
		if active {
			total = total.Add(amount)
		}
	}
	return total, nil
}

// RecordUsage runs on the payment-captured transition. Inside one atomic
// transaction it flips UseRecorded on every active, not-yet-recorded
// application and decrements RemainingUses on the current version of each
// usage-limited coupon, floored at zero. Re-invocation on an already captured
// order is a no-op, so duplicate capture events decrement exactly once.
func (l *Ledger) RecordUsage(ctx context.Context, ord order.Order) error {
	return l.store.InTx(ctx, func(s Store) error {
		apps, err := allApplications(ctx, s, ord.ID())
		if err != nil {
			return err
		}

		for _, app := range apps {
			if app.UseRecorded {
				continue
			}

			_, active, err := l.activeAmount(ctx, s, app, ord)
			if err != nil {
				return err
			}
			if !active {
				continue
			}

			if err := s.MarkUseRecorded(ctx, app.ID); err != nil {
				return errors.Wrap(err, "mark use recorded")
			}

			rule, err := s.CouponByID(ctx, app.CouponID)
			if err != nil {
				return errors.Wrap(err, "load coupon")
			}
			if !rule.LimitUses {
				continue
			}
			remaining := rule.RemainingUses - 1
			if remaining < 0 {
				remaining = 0
			}
			if err := s.SetRemainingUses(ctx, rule.ID, remaining); err != nil {
				return errors.Wrap(err, "decrement remaining uses")
			}
		}
		return nil
	})
}

// activeAmount reports whether an application currently contributes to the
// order total, and with what amount. Active means: the coupon still validates
// against the order, the computed amount is nonzero, and a usage-limited
// coupon has uses left.
func (l *Ledger) activeAmount(ctx context.Context, s Store, app Application, ord order.Order) (decimal.Decimal, bool, error) {
	rule, err := s.CouponByID(ctx, app.CouponID)
	if err != nil {
		return decimal.Zero, false, errors.Wrap(err, "load coupon")
	}

	if rule.LimitUses && rule.RemainingUses <= 0 {
		return decimal.Zero, false, nil
	}
	if res := l.validator.ValidateFor(rule, ord); !res.Valid() {
		return decimal.Zero, false, nil
	}

	var amount decimal.Decimal
	if app.IsItem() {
		item := findItem(ord, app.OrderItemID)
		if item == nil {
			// Applications are deleted with their parent item; an orphan here
			// means the cascade failed.
			zctx.From(ctx).Error("application references missing order item",
				zap.String("application_id", app.ID),
				zap.String("order_item_id", app.OrderItemID),
			)
			return decimal.Zero, false, nil
		}
		amount = l.calc.AmountForItem(rule, item)
	} else {
		amount = l.calc.AmountFor(rule, ord)
	}

	return amount, !amount.IsZero(), nil
}

func (l *Ledger) checkStacking(ctx context.Context, incoming *coupon.Rule, apps []Application) error {
	for _, app := range apps {
		if app.CouponID == incoming.ID {
			continue
		}
		stacks, err := l.stacks.Stacks(ctx, incoming.ID, app.CouponID)
		if err != nil {
			return errors.Wrap(err, "check stacking")
		}
		if !stacks {
			return ErrStackConflict
		}
	}
	return nil
}

func (l *Ledger) allApplications(ctx context.Context, orderID string) ([]Application, error) {
	return allApplications(ctx, l.store, orderID)
}

func allApplications(ctx context.Context, s Store, orderID string) ([]Application, error) {
	orderApps, err := s.OrderApplications(ctx, orderID)
	if err != nil {
		return nil, errors.Wrap(err, "load order applications")
	}
	itemApps, err := s.ItemApplications(ctx, orderID)
	if err != nil {
		return nil, errors.Wrap(err, "load item applications")
	}
	return append(orderApps, itemApps...), nil
}

func findItem(ord order.Order, itemID string) order.Item {
	for _, item := range ord.Items() {
		if item.ID() == itemID {
			return item
		}
	}
	return nil
}
