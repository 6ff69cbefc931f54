package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cartloom/coupon-engine/internal/domain/coupon"
	"github.com/cartloom/coupon-engine/internal/domain/ledger"
)

const (
	orderAppsSQL = `SELECT id, order_id, coupon_id, use_recorded
		FROM order_applications WHERE order_id = $1 ORDER BY id`
	itemAppsSQL = `SELECT id, order_id, order_item_id, coupon_id, use_recorded
		FROM order_item_applications WHERE order_id = $1 ORDER BY id`

	insertOrderAppSQL = `INSERT INTO order_applications (id, order_id, coupon_id, use_recorded)
		VALUES ($1, $2, $3, $4) ON CONFLICT (order_id, coupon_id) DO NOTHING`
	insertItemAppSQL = `INSERT INTO order_item_applications (id, order_id, order_item_id, coupon_id, use_recorded)
		VALUES ($1, $2, $3, $4, $5) ON CONFLICT (order_item_id, coupon_id) DO NOTHING`

	deleteOrderAppSQL     = `DELETE FROM order_applications WHERE id = $1`
	deleteItemAppSQL      = `DELETE FROM order_item_applications WHERE id = $1`
	deleteOrderAppsSQL    = `DELETE FROM order_applications WHERE order_id = $1`
	deleteItemAppsSQL     = `DELETE FROM order_item_applications WHERE order_id = $1`
	markOrderRecordedSQL  = `UPDATE order_applications SET use_recorded = TRUE WHERE id = $1`
	markItemRecordedSQL   = `UPDATE order_item_applications SET use_recorded = TRUE WHERE id = $1`
	setRemainingUsesSQL   = `UPDATE coupons SET remaining_uses = $2 WHERE id = $1`
)

var _ ledger.TxStore = (*LedgerStore)(nil)

// LedgerStore implements ledger.TxStore backed by PostgreSQL. Order-level and
// item-level applications live in separate tables; the unique constraints
// back the at-most-one-per-pair invariant even under races.
type LedgerStore struct {
	db      Querier
	pool    *pgxpool.Pool // nil when the store is already transaction-scoped
	coupons *CouponStore
}

// NewLedgerStore returns a LedgerStore that uses the given pool.
func NewLedgerStore(pool *pgxpool.Pool) *LedgerStore {
	return &LedgerStore{db: pool, pool: pool, coupons: NewCouponStore(pool)}
}

// InTx runs fn with a Store scoped to a single transaction, committing on nil
// and rolling back on error or panic. A nested call joins the open
// transaction instead of starting a new one.
func (s *LedgerStore) InTx(ctx context.Context, fn func(ledger.Store) error) error {
	if s.pool == nil {
		return fn(s)
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(&LedgerStore{db: tx, coupons: NewCouponStore(tx)})
	})
}

// OrderApplications returns the order-level applications for an order.
func (s *LedgerStore) OrderApplications(ctx context.Context, orderID string) ([]ledger.Application, error) {
	rows, err := s.db.Query(ctx, orderAppsSQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("querying order applications for %q: %w", orderID, err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (ledger.Application, error) {
		var app ledger.Application
		err := row.Scan(&app.ID, &app.OrderID, &app.CouponID, &app.UseRecorded)
		return app, err
	})
}

// ItemApplications returns the item-level applications for an order's items.
func (s *LedgerStore) ItemApplications(ctx context.Context, orderID string) ([]ledger.Application, error) {
	rows, err := s.db.Query(ctx, itemAppsSQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("querying item applications for %q: %w", orderID, err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (ledger.Application, error) {
		var app ledger.Application
		err := row.Scan(&app.ID, &app.OrderID, &app.OrderItemID, &app.CouponID, &app.UseRecorded)
		return app, err
	})
}

// CreateApplication inserts an application into the table matching its shape.
// A conflicting pair is a silent no-op, matching the ledger's idempotency.
func (s *LedgerStore) CreateApplication(ctx context.Context, app ledger.Application) error {
	var err error
	if app.IsItem() {
		_, err = s.db.Exec(ctx, insertItemAppSQL,
			app.ID, app.OrderID, app.OrderItemID, app.CouponID, app.UseRecorded)
	} else {
		_, err = s.db.Exec(ctx, insertOrderAppSQL,
			app.ID, app.OrderID, app.CouponID, app.UseRecorded)
	}
	if err != nil {
		return fmt.Errorf("creating application %q: %w", app.ID, err)
	}
	return nil
}

// DeleteApplication removes a single application by ID from whichever table
// holds it.
func (s *LedgerStore) DeleteApplication(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, deleteOrderAppSQL, id)
	if err != nil {
		return fmt.Errorf("deleting application %q: %w", id, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	if _, err := s.db.Exec(ctx, deleteItemAppSQL, id); err != nil {
		return fmt.Errorf("deleting application %q: %w", id, err)
	}
	return nil
}

// DeleteOrderApplications removes all order-level applications for an order.
func (s *LedgerStore) DeleteOrderApplications(ctx context.Context, orderID string) (int, error) {
	tag, err := s.db.Exec(ctx, deleteOrderAppsSQL, orderID)
	if err != nil {
		return 0, fmt.Errorf("clearing order applications for %q: %w", orderID, err)
	}
	return int(tag.RowsAffected()), nil
}

// DeleteItemApplications removes all item-level applications for an order.
func (s *LedgerStore) DeleteItemApplications(ctx context.Context, orderID string) (int, error) {
	tag, err := s.db.Exec(ctx, deleteItemAppsSQL, orderID)
	if err != nil {
		return 0, fmt.Errorf("clearing item applications for %q: %w", orderID, err)
	}
	return int(tag.RowsAffected()), nil
}

// MarkUseRecorded flips the one-way use_recorded flag on an application.
func (s *LedgerStore) MarkUseRecorded(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, markOrderRecordedSQL, id)
	if err != nil {
		return fmt.Errorf("recording use for application %q: %w", id, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	if _, err := s.db.Exec(ctx, markItemRecordedSQL, id); err != nil {
		return fmt.Errorf("recording use for application %q: %w", id, err)
	}
	return nil
}

// CouponByID reads the current version of a coupon rule.
func (s *LedgerStore) CouponByID(ctx context.Context, id string) (*coupon.Rule, error) {
	return s.coupons.GetByID(ctx, id)
}

// SetRemainingUses persists a new remaining-uses counter for a coupon.
func (s *LedgerStore) SetRemainingUses(ctx context.Context, couponID string, remaining int) error {
	if _, err := s.db.Exec(ctx, setRemainingUsesSQL, couponID, remaining); err != nil {
		return fmt.Errorf("setting remaining uses for coupon %q: %w", couponID, err)
	}
	return nil
}
