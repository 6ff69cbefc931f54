// Package handler exposes the coupon engine to the checkout and admin layers
// as a JSON-over-HTTP surface.
package handler

import (
	"context"
	"net/http"

	"github.com/cartloom/coupon-engine/internal/domain/coupon"
	"github.com/cartloom/coupon-engine/internal/domain/ledger"
	"github.com/cartloom/coupon-engine/internal/domain/order"
)

// OrderStore is the cart storage surface the demo endpoints need. Production
// deployments embed the engine against their own order.Source and skip cart
// creation entirely.
type OrderStore interface {
	order.Source
	Create(ctx context.Context, locked bool, items []order.ItemSpec) (order.Order, error)
	SetLocked(ctx context.Context, id string, locked bool) error
}

// Handler carries the domain dependencies for all HTTP endpoints.
type Handler struct {
	coupons coupon.Repository
	stacks  ledger.StackStore
	orders  OrderStore
	ledger  *ledger.Ledger
}

// New constructs a Handler with the required domain dependencies.
func New(
	coupons coupon.Repository,
	stacks ledger.StackStore,
	orders OrderStore,
	ledger *ledger.Ledger,
) *Handler {
	return &Handler{
		coupons: coupons,
		stacks:  stacks,
		orders:  orders,
		ledger:  ledger,
	}
}

// Register attaches all API routes to the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/coupons", h.createCoupon)
	mux.HandleFunc("GET /api/coupons/{code}", h.getCoupon)
	mux.HandleFunc("PUT /api/coupons/{id}", h.updateCoupon)
	mux.HandleFunc("PUT /api/coupons/{id}/stacks/{other}", h.addStackPair)
	mux.HandleFunc("DELETE /api/coupons/{id}/stacks/{other}", h.removeStackPair)

	mux.HandleFunc("POST /api/orders", h.createOrder)
	mux.HandleFunc("PUT /api/orders/{id}/lock", h.lockOrder)
	mux.HandleFunc("POST /api/orders/{id}/coupon", h.applyCoupon)
	mux.HandleFunc("DELETE /api/orders/{id}/coupons", h.clearCoupons)
	mux.HandleFunc("GET /api/orders/{id}/discount", h.orderDiscount)
	mux.HandleFunc("POST /api/orders/{id}/capture", h.capturePayment)
}
