package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/cartloom/coupon-engine/internal/domain/order"
)

const (
	getOrderSQL      = `SELECT id, locked FROM orders WHERE id = $1`
	getOrderItemsSQL = `SELECT id, order_id, purchasable_class, purchasable_id, quantity, subtotal
		FROM order_items WHERE order_id = $1 ORDER BY id`
	insertOrderSQL     = `INSERT INTO orders (id, locked) VALUES ($1, $2)`
	insertOrderItemSQL = `INSERT INTO order_items (id, order_id, purchasable_class, purchasable_id, quantity, subtotal)
		VALUES ($1, $2, $3, $4, $5, $6)`
	setOrderLockedSQL = `UPDATE orders SET locked = $2 WHERE id = $1`
)

var _ order.Source = (*OrderStore)(nil)

// OrderStore is a minimal cart storage implementing the order collaborator.
// In production the platform's own cart service fills this role; this
// implementation exists so the engine runs end to end.
type OrderStore struct {
	db Querier
}

// NewOrderStore returns an OrderStore that uses the given querier.
func NewOrderStore(db Querier) *OrderStore {
	return &OrderStore{db: db}
}

// Get loads an order with its items. Returns order.ErrNotFound on a miss.
func (s *OrderStore) Get(ctx context.Context, id string) (order.Order, error) {
	var (
		orderID string
		locked  bool
	)
	if err := s.db.QueryRow(ctx, getOrderSQL, id).Scan(&orderID, &locked); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("querying order %q: %w", id, err)
	}

	items, err := s.loadItems(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return &cartOrder{store: s, id: orderID, locked: locked, items: items}, nil
}

// Create inserts a new cart with the given items.
func (s *OrderStore) Create(ctx context.Context, locked bool, items []order.ItemSpec) (order.Order, error) {
	id := uuid.New().String()
	if _, err := s.db.Exec(ctx, insertOrderSQL, id, locked); err != nil {
		return nil, fmt.Errorf("creating order: %w", err)
	}
	for _, spec := range items {
		_, err := s.db.Exec(ctx, insertOrderItemSQL,
			uuid.New().String(), id, spec.Purchasable.Class, spec.Purchasable.ID,
			spec.Quantity, spec.SubTotal)
		if err != nil {
			return nil, fmt.Errorf("creating order item: %w", err)
		}
	}
	return s.Get(ctx, id)
}

// SetLocked flips the order's mutability flag.
func (s *OrderStore) SetLocked(ctx context.Context, id string, locked bool) error {
	tag, err := s.db.Exec(ctx, setOrderLockedSQL, id, locked)
	if err != nil {
		return fmt.Errorf("locking order %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

func (s *OrderStore) loadItems(ctx context.Context, orderID string) ([]cartItem, error) {
	rows, err := s.db.Query(ctx, getOrderItemsSQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("querying items for order %q: %w", orderID, err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (cartItem, error) {
		var item cartItem
		err := row.Scan(&item.id, &item.orderID, &item.ref.Class, &item.ref.ID,
			&item.quantity, &item.subTotal)
		return item, err
	})
}

type cartOrder struct {
	store  *OrderStore
	id     string
	locked bool
	items  []cartItem
}

func (o *cartOrder) ID() string      { return o.id }
func (o *cartOrder) IsMutable() bool { return !o.locked }

func (o *cartOrder) SubTotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range o.items {
		total = total.Add(item.subTotal)
	}
	return total
}

func (o *cartOrder) Items() []order.Item {
	items := make([]order.Item, len(o.items))
	for i := range o.items {
		items[i] = &o.items[i]
	}
	return items
}

// Duplicate inserts an unlocked copy of the order and its items and returns
// the clone. Coupon applications are deliberately not copied: the caller
// re-applies against the mutable clone.
func (o *cartOrder) Duplicate(ctx context.Context) (order.Order, error) {
	specs := make([]order.ItemSpec, len(o.items))
	for i, item := range o.items {
		specs[i] = order.ItemSpec{Purchasable: item.ref, Quantity: item.quantity, SubTotal: item.subTotal}
	}
	return o.store.Create(ctx, false, specs)
}

type cartItem struct {
	id       string
	orderID  string
	ref      order.PurchasableRef
	quantity int
	subTotal decimal.Decimal
}

func (i *cartItem) ID() string                        { return i.id }
func (i *cartItem) OrderID() string                   { return i.orderID }
func (i *cartItem) Quantity() int                     { return i.quantity }
func (i *cartItem) SubTotal() decimal.Decimal         { return i.subTotal }
func (i *cartItem) Purchasable() order.PurchasableRef { return i.ref }
