// Package ledger owns the coupon application records: which coupons are
// attached to which orders and items, how conflicting applications are
// cleared, and how usage is recorded exactly once per payment capture.
package ledger

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/cartloom/coupon-engine/internal/domain/coupon"
)

var (
	// ErrOrderLocked is returned on any attempt to mutate applications of an
	// immutable order. The caller must clone a mutable order first.
	ErrOrderLocked = errors.New("order is locked")
	// ErrStackConflict is returned by the additive apply flow when the
	// incoming coupon does not stack with an already applied one.
	ErrStackConflict = errors.New("coupon does not stack with an applied coupon")
	// ErrKindMismatch is returned when an order-kind rule is applied to an
	// item or vice versa.
	ErrKindMismatch = errors.New("coupon kind does not match target")
)

// Application records that a coupon has been attached to an order or to a
// single order item. At most one exists per order×coupon and per item×coupon
// pair. The only permitted mutation is the one-way UseRecorded flip.
type Application struct {
	ID      string
	OrderID string
	// OrderItemID is empty for order-level applications.
	OrderItemID string
	CouponID    string
	UseRecorded bool
}

// IsItem reports whether the application is attached to a single line item.
func (a Application) IsItem() bool {
	return a.OrderItemID != ""
}

// Store persists applications and the coupon state RecordUsage mutates.
// CouponByID must always read the current version of the rule, never a cached
// copy, so use counters decrement against the latest state.
type Store interface {
	OrderApplications(ctx context.Context, orderID string) ([]Application, error)
	ItemApplications(ctx context.Context, orderID string) ([]Application, error)
	CreateApplication(ctx context.Context, app Application) error
	DeleteApplication(ctx context.Context, id string) error
	DeleteOrderApplications(ctx context.Context, orderID string) (int, error)
	DeleteItemApplications(ctx context.Context, orderID string) (int, error)
	MarkUseRecorded(ctx context.Context, id string) error

	CouponByID(ctx context.Context, id string) (*coupon.Rule, error)
	SetRemainingUses(ctx context.Context, couponID string, remaining int) error
}

// TxStore is a Store that can scope a sequence of operations to one atomic
// transaction. The Store passed to fn sees and joins that transaction.
type TxStore interface {
	Store
	InTx(ctx context.Context, fn func(Store) error) error
}

// StackStore persists the symmetric stacking relation as unordered pairs.
// Stacks(a, b) and Stacks(b, a) are the same row; AddPair and RemovePair are
// single atomic operations, so no inverse-row invariant exists to repair.
type StackStore interface {
	Stacks(ctx context.Context, couponA, couponB string) (bool, error)
	AddPair(ctx context.Context, couponA, couponB string) error
	RemovePair(ctx context.Context, couponA, couponB string) error
}
