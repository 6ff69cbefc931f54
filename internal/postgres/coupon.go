package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/cartloom/coupon-engine/internal/domain/coupon"
	"github.com/cartloom/coupon-engine/internal/domain/order"
)

const (
	couponColumns = `id, kind, code, title, amount, percentage, max_value,
		valid_from, valid_until, limit_uses, remaining_uses, min_subtotal, min_quantity`

	lookupCouponByCodeSQL = `SELECT ` + couponColumns + ` FROM coupons WHERE UPPER(code) = UPPER($1)`
	getCouponByIDSQL      = `SELECT ` + couponColumns + ` FROM coupons WHERE id = $1`

	insertCouponSQL = `INSERT INTO coupons (id, kind, code, title, amount, percentage, max_value,
		valid_from, valid_until, limit_uses, remaining_uses, min_subtotal, min_quantity)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	updateCouponSQL = `UPDATE coupons SET kind = $2, code = $3, title = $4, amount = $5,
		percentage = $6, max_value = $7, valid_from = $8, valid_until = $9,
		limit_uses = $10, remaining_uses = $11, min_subtotal = $12, min_quantity = $13
		WHERE id = $1`

	getPurchasablesSQL = `SELECT purchasable_class, purchasable_id
		FROM coupon_purchasables WHERE coupon_id = $1
		ORDER BY purchasable_class, purchasable_id`

	insertPurchasableSQL  = `INSERT INTO coupon_purchasables (coupon_id, purchasable_class, purchasable_id)
		VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`
	deletePurchasablesSQL = `DELETE FROM coupon_purchasables WHERE coupon_id = $1`
)

var _ coupon.Repository = (*CouponStore)(nil)

// CouponStore implements coupon.Repository backed by PostgreSQL.
type CouponStore struct {
	db Querier
}

// NewCouponStore returns a CouponStore that uses the given querier.
func NewCouponStore(db Querier) *CouponStore {
	return &CouponStore{db: db}
}

// LookupByCode looks up a coupon of either kind by its code
// (case-insensitive). Returns coupon.ErrNotFound on a miss.
func (s *CouponStore) LookupByCode(ctx context.Context, code string) (*coupon.Rule, error) {
	return s.getOne(ctx, lookupCouponByCodeSQL, code)
}

// GetByID fetches the current version of a coupon by its ID.
func (s *CouponStore) GetByID(ctx context.Context, id string) (*coupon.Rule, error) {
	return s.getOne(ctx, getCouponByIDSQL, id)
}

// Create validates the rule definition (including cross-kind code uniqueness)
// and persists it with its purchasable set. An invalid definition is returned
// as a *coupon.Result error.
func (s *CouponStore) Create(ctx context.Context, rule *coupon.Rule) error {
	res, err := rule.Validate(ctx, s)
	if err != nil {
		return errors.Wrap(err, "validate coupon")
	}
	if !res.Valid() {
		return res
	}

	if _, err := s.db.Exec(ctx, insertCouponSQL, couponArgs(rule)...); err != nil {
		return fmt.Errorf("creating coupon %q: %w", rule.Code, err)
	}
	return s.writePurchasables(ctx, rule)
}

// Update validates and rewrites an existing rule. Renaming a coupon without
// changing its code does not trip the duplicate check: the lookup hit is the
// rule itself.
func (s *CouponStore) Update(ctx context.Context, rule *coupon.Rule) error {
	res, err := rule.Validate(ctx, s)
	if err != nil {
		return errors.Wrap(err, "validate coupon")
	}
	if !res.Valid() {
		return res
	}

	tag, err := s.db.Exec(ctx, updateCouponSQL, couponArgs(rule)...)
	if err != nil {
		return fmt.Errorf("updating coupon %q: %w", rule.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrNotFound
	}

	if _, err := s.db.Exec(ctx, deletePurchasablesSQL, rule.ID); err != nil {
		return fmt.Errorf("clearing purchasables for coupon %q: %w", rule.ID, err)
	}
	return s.writePurchasables(ctx, rule)
}

func (s *CouponStore) getOne(ctx context.Context, sql string, arg any) (*coupon.Rule, error) {
	rows, err := s.db.Query(ctx, sql, arg)
	if err != nil {
		return nil, fmt.Errorf("querying coupon: %w", err)
	}

	rule, err := pgx.CollectExactlyOneRow(rows, scanCouponRule)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, fmt.Errorf("scanning coupon: %w", err)
	}

	if rule.Kind == coupon.KindItem {
		if rule.Purchasables, err = s.loadPurchasables(ctx, rule.ID); err != nil {
			return nil, err
		}
	}
	return &rule, nil
}

func (s *CouponStore) loadPurchasables(ctx context.Context, couponID string) ([]order.PurchasableRef, error) {
	rows, err := s.db.Query(ctx, getPurchasablesSQL, couponID)
	if err != nil {
		return nil, fmt.Errorf("querying purchasables for coupon %q: %w", couponID, err)
	}

	refs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (order.PurchasableRef, error) {
		var ref order.PurchasableRef
		err := row.Scan(&ref.Class, &ref.ID)
		return ref, err
	})
	if err != nil {
		return nil, fmt.Errorf("scanning purchasables for coupon %q: %w", couponID, err)
	}
	return refs, nil
}

func (s *CouponStore) writePurchasables(ctx context.Context, rule *coupon.Rule) error {
	for _, ref := range rule.Purchasables {
		if _, err := s.db.Exec(ctx, insertPurchasableSQL, rule.ID, ref.Class, ref.ID); err != nil {
			return fmt.Errorf("adding purchasable to coupon %q: %w", rule.ID, err)
		}
	}
	return nil
}

func couponArgs(rule *coupon.Rule) []any {
	return []any{
		rule.ID, string(rule.Kind), rule.Code, rule.Title,
		rule.Amount, rule.Percentage, rule.MaxValue,
		rule.ValidFrom, rule.ValidUntil,
		rule.LimitUses, rule.RemainingUses,
		rule.MinSubTotal, rule.MinQuantity,
	}
}

func scanCouponRule(row pgx.CollectableRow) (coupon.Rule, error) {
	var (
		rule       coupon.Rule
		kind       string
		validFrom  *time.Time
		validUntil *time.Time
	)
	err := row.Scan(
		&rule.ID, &kind, &rule.Code, &rule.Title,
		&rule.Amount, &rule.Percentage, &rule.MaxValue,
		&validFrom, &validUntil,
		&rule.LimitUses, &rule.RemainingUses,
		&rule.MinSubTotal, &rule.MinQuantity,
	)
	rule.Kind = coupon.Kind(kind)
	rule.ValidFrom = validFrom
	rule.ValidUntil = validUntil
	return rule, err
}
