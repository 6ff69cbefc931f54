package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/cartloom/coupon-engine/internal/domain/order"
)

type applyCouponRequest struct {
	Code string `json:"code"`
}

type createOrderRequest struct {
	Items []struct {
		Class    string          `json:"class"`
		ID       string          `json:"id"`
		Quantity int             `json:"quantity"`
		SubTotal decimal.Decimal `json:"subTotal"`
	} `json:"items"`
}

type lockOrderRequest struct {
	Locked bool `json:"locked"`
}

// createOrder inserts a demo cart the coupon endpoints can work against.
func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Items) == 0 {
		writeMessage(w, http.StatusBadRequest, "order needs at least one item")
		return
	}

	specs := make([]order.ItemSpec, len(req.Items))
	for i, item := range req.Items {
		if item.Quantity <= 0 {
			writeMessage(w, http.StatusBadRequest, "item quantity must be positive")
			return
		}
		specs[i] = order.ItemSpec{
			Purchasable: order.PurchasableRef{Class: item.Class, ID: item.ID},
			Quantity:    item.Quantity,
			SubTotal:    item.SubTotal,
		}
	}

	ord, err := h.orders.Create(r.Context(), false, specs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeOrder(e, ord) })
}

// lockOrder flips the order's mutability, standing in for the platform's
// payment transition.
func (h *Handler) lockOrder(w http.ResponseWriter, r *http.Request) {
	var req lockOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.orders.SetLocked(r.Context(), r.PathValue("id"), req.Locked); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func encodeOrder(e *jx.Encoder, ord order.Order) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(ord.ID()) })
		e.Field("subTotal", func(e *jx.Encoder) { e.Str(ord.SubTotal().StringFixed(2)) })
		e.Field("mutable", func(e *jx.Encoder) { e.Bool(ord.IsMutable()) })
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, item := range ord.Items() {
					e.Obj(func(e *jx.Encoder) {
						e.Field("id", func(e *jx.Encoder) { e.Str(item.ID()) })
						e.Field("class", func(e *jx.Encoder) { e.Str(item.Purchasable().Class) })
						e.Field("productId", func(e *jx.Encoder) { e.Str(item.Purchasable().ID) })
						e.Field("quantity", func(e *jx.Encoder) { e.Int(item.Quantity()) })
						e.Field("subTotal", func(e *jx.Encoder) { e.Str(item.SubTotal().StringFixed(2)) })
					})
				}
			})
		})
	})
}

// applyCoupon is the checkout entry point: a single code field submitted
// against a cart. Applications that do not stack with the incoming coupon
// are replaced.
func (h *Handler) applyCoupon(w http.ResponseWriter, r *http.Request) {
	ord, ok := h.order(w, r)
	if !ok {
		return
	}

	var req applyCouponRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	rule, err := h.ledger.ApplyCode(r.Context(), ord, req.Code)
	if err != nil {
		writeError(w, r, err)
		return
	}

	discount, err := h.ledger.DiscountTotal(r.Context(), ord)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("coupon", func(e *jx.Encoder) { encodeCoupon(e, rule) })
			e.Field("discount", func(e *jx.Encoder) { e.Str(discount.StringFixed(2)) })
		})
	})
}

// clearCoupons removes every order-level and item-level application from the
// order.
func (h *Handler) clearCoupons(w http.ResponseWriter, r *http.Request) {
	ord, ok := h.order(w, r)
	if !ok {
		return
	}

	orderRemoved, err := h.ledger.ClearOrderCoupons(r.Context(), ord)
	if err != nil {
		writeError(w, r, err)
		return
	}
	itemRemoved, err := h.ledger.ClearItemCoupons(r.Context(), ord)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("removed", func(e *jx.Encoder) { e.Int(orderRemoved + itemRemoved) })
		})
	})
}

// orderDiscount reports the order subtotal, the active discount total, and
// whether any coupons are attached.
func (h *Handler) orderDiscount(w http.ResponseWriter, r *http.Request) {
	ord, ok := h.order(w, r)
	if !ok {
		return
	}

	discount, err := h.ledger.DiscountTotal(r.Context(), ord)
	if err != nil {
		writeError(w, r, err)
		return
	}
	hasCoupons, err := h.ledger.HasCoupons(r.Context(), ord)
	if err != nil {
		writeError(w, r, err)
		return
	}

	subTotal := ord.SubTotal()
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("orderId", func(e *jx.Encoder) { e.Str(ord.ID()) })
			e.Field("subTotal", func(e *jx.Encoder) { e.Str(subTotal.StringFixed(2)) })
			e.Field("discount", func(e *jx.Encoder) { e.Str(discount.StringFixed(2)) })
			e.Field("total", func(e *jx.Encoder) { e.Str(subTotal.Add(discount).StringFixed(2)) })
			e.Field("hasCoupons", func(e *jx.Encoder) { e.Bool(hasCoupons) })
		})
	})
}

// capturePayment records coupon usage for the order. Safe to call more than
// once: already recorded applications are skipped.
func (h *Handler) capturePayment(w http.ResponseWriter, r *http.Request) {
	ord, ok := h.order(w, r)
	if !ok {
		return
	}

	if err := h.ledger.RecordUsage(r.Context(), ord); err != nil {
		writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "usage recorded")
}

func (h *Handler) order(w http.ResponseWriter, r *http.Request) (order.Order, bool) {
	ord, err := h.orders.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	return ord, true
}
