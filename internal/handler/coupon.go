package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-faster/jx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cartloom/coupon-engine/internal/domain/coupon"
	"github.com/cartloom/coupon-engine/internal/domain/order"
)

// couponRequest is the admin create/update payload. Monetary values accept
// JSON numbers or strings; shopspring/decimal handles both.
type couponRequest struct {
	Kind          string           `json:"kind"`
	Code          string           `json:"code"`
	Title         string           `json:"title"`
	Amount        decimal.Decimal  `json:"amount"`
	Percentage    decimal.Decimal  `json:"percentage"`
	MaxValue      decimal.Decimal  `json:"maxValue"`
	ValidFrom     *time.Time       `json:"validFrom"`
	ValidUntil    *time.Time       `json:"validUntil"`
	LimitUses     bool             `json:"limitUses"`
	RemainingUses int              `json:"remainingUses"`
	MinSubTotal   decimal.Decimal  `json:"minSubTotal"`
	MinQuantity   int              `json:"minQuantity"`
	Purchasables  []purchasableRef `json:"purchasables"`
}

type purchasableRef struct {
	Class string `json:"class"`
	ID    string `json:"id"`
}

func (req *couponRequest) toRule(id string) *coupon.Rule {
	refs := make([]order.PurchasableRef, len(req.Purchasables))
	for i, p := range req.Purchasables {
		refs[i] = order.PurchasableRef{Class: p.Class, ID: p.ID}
	}
	return &coupon.Rule{
		ID:            id,
		Kind:          coupon.Kind(req.Kind),
		Code:          req.Code,
		Title:         req.Title,
		Amount:        req.Amount,
		Percentage:    req.Percentage,
		MaxValue:      req.MaxValue,
		ValidFrom:     req.ValidFrom,
		ValidUntil:    req.ValidUntil,
		LimitUses:     req.LimitUses,
		RemainingUses: req.RemainingUses,
		MinSubTotal:   req.MinSubTotal,
		MinQuantity:   req.MinQuantity,
		Purchasables:  refs,
	}
}

func (h *Handler) createCoupon(w http.ResponseWriter, r *http.Request) {
	var req couponRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Kind != string(coupon.KindOrder) && req.Kind != string(coupon.KindItem) {
		writeMessage(w, http.StatusBadRequest, `kind must be "order" or "item"`)
		return
	}

	rule := req.toRule(uuid.New().String())
	if err := h.coupons.Create(r.Context(), rule); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeCoupon(e, rule) })
}

func (h *Handler) getCoupon(w http.ResponseWriter, r *http.Request) {
	rule, err := h.coupons.LookupByCode(r.Context(), r.PathValue("code"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeCoupon(e, rule) })
}

func (h *Handler) updateCoupon(w http.ResponseWriter, r *http.Request) {
	var req couponRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	rule := req.toRule(r.PathValue("id"))
	if err := h.coupons.Update(r.Context(), rule); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeCoupon(e, rule) })
}

func (h *Handler) addStackPair(w http.ResponseWriter, r *http.Request) {
	a, b, ok := h.stackPairIDs(w, r)
	if !ok {
		return
	}
	if err := h.stacks.AddPair(r.Context(), a, b); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) removeStackPair(w http.ResponseWriter, r *http.Request) {
	a, b, ok := h.stackPairIDs(w, r)
	if !ok {
		return
	}
	if err := h.stacks.RemovePair(r.Context(), a, b); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// stackPairIDs resolves both coupons of a stack route so a pairing with an
// unknown coupon fails with 404 instead of a dangling row.
func (h *Handler) stackPairIDs(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	for _, id := range []string{r.PathValue("id"), r.PathValue("other")} {
		if _, err := h.coupons.GetByID(r.Context(), id); err != nil {
			writeError(w, r, err)
			return "", "", false
		}
	}
	return r.PathValue("id"), r.PathValue("other"), true
}

func encodeCoupon(e *jx.Encoder, rule *coupon.Rule) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(rule.ID) })
		e.Field("kind", func(e *jx.Encoder) { e.Str(string(rule.Kind)) })
		e.Field("code", func(e *jx.Encoder) { e.Str(rule.Code) })
		e.Field("title", func(e *jx.Encoder) { e.Str(rule.Title) })
		e.Field("amount", func(e *jx.Encoder) { e.Str(rule.Amount.StringFixed(2)) })
		e.Field("percentage", func(e *jx.Encoder) { e.Str(rule.Percentage.String()) })
		e.Field("maxValue", func(e *jx.Encoder) { e.Str(rule.MaxValue.StringFixed(2)) })
		if rule.ValidFrom != nil {
			e.Field("validFrom", func(e *jx.Encoder) { e.Str(rule.ValidFrom.Format(time.RFC3339)) })
		}
		if rule.ValidUntil != nil {
			e.Field("validUntil", func(e *jx.Encoder) { e.Str(rule.ValidUntil.Format(time.RFC3339)) })
		}
		e.Field("limitUses", func(e *jx.Encoder) { e.Bool(rule.LimitUses) })
		e.Field("remainingUses", func(e *jx.Encoder) { e.Int(rule.RemainingUses) })
		e.Field("minSubTotal", func(e *jx.Encoder) { e.Str(rule.MinSubTotal.StringFixed(2)) })
		e.Field("minQuantity", func(e *jx.Encoder) { e.Int(rule.MinQuantity) })
		if rule.Kind == coupon.KindItem {
			e.Field("purchasables", func(e *jx.Encoder) {
				e.Arr(func(e *jx.Encoder) {
					for _, ref := range rule.Purchasables {
						e.Obj(func(e *jx.Encoder) {
							e.Field("class", func(e *jx.Encoder) { e.Str(ref.Class) })
							e.Field("id", func(e *jx.Encoder) { e.Str(ref.ID) })
						})
					}
				})
			})
		}
	})
}
