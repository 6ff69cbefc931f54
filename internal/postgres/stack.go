package postgres

import (
	"context"
	"fmt"

	"github.com/cartloom/coupon-engine/internal/domain/ledger"
)

const (
	stacksExistsSQL = `SELECT EXISTS (
		SELECT 1 FROM coupon_stacks WHERE coupon_a = $1 AND coupon_b = $2)`
	insertStackSQL = `INSERT INTO coupon_stacks (coupon_a, coupon_b)
		VALUES ($1, $2) ON CONFLICT DO NOTHING`
	deleteStackSQL = `DELETE FROM coupon_stacks WHERE coupon_a = $1 AND coupon_b = $2`
)

var _ ledger.StackStore = (*StackStore)(nil)

// StackStore persists the symmetric stacking relation. Each pair is stored as
// exactly one row in canonical (low, high) order, so the symmetric lookup and
// the add/remove operations are single statements with no mirror row to keep
// consistent.
type StackStore struct {
	db Querier
}

// NewStackStore returns a StackStore that uses the given querier.
func NewStackStore(db Querier) *StackStore {
	return &StackStore{db: db}
}

// Stacks reports whether the two coupons are explicitly paired. Argument
// order does not matter.
func (s *StackStore) Stacks(ctx context.Context, couponA, couponB string) (bool, error) {
	lo, hi := canonicalPair(couponA, couponB)

	var exists bool
	if err := s.db.QueryRow(ctx, stacksExistsSQL, lo, hi).Scan(&exists); err != nil {
		return false, fmt.Errorf("checking stack pair: %w", err)
	}
	return exists, nil
}

// AddPair records that the two coupons may coexist. Idempotent.
func (s *StackStore) AddPair(ctx context.Context, couponA, couponB string) error {
	lo, hi := canonicalPair(couponA, couponB)
	if _, err := s.db.Exec(ctx, insertStackSQL, lo, hi); err != nil {
		return fmt.Errorf("adding stack pair: %w", err)
	}
	return nil
}

// RemovePair deletes the pairing in both directions at once.
func (s *StackStore) RemovePair(ctx context.Context, couponA, couponB string) error {
	lo, hi := canonicalPair(couponA, couponB)
	if _, err := s.db.Exec(ctx, deleteStackSQL, lo, hi); err != nil {
		return fmt.Errorf("removing stack pair: %w", err)
	}
	return nil
}

// canonicalPair orders two coupon IDs so (a, b) and (b, a) map to the same row.
func canonicalPair(a, b string) (string, string) {
	if a > b {
		return b, a
	}
	return a, b
}
