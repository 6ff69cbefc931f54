package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/cartloom/coupon-engine/internal/domain/coupon"
	"github.com/cartloom/coupon-engine/internal/domain/ledger"
	"github.com/cartloom/coupon-engine/internal/domain/order"
)

// writeJSON encodes a response body with jx and writes it with the status.
func writeJSON(w http.ResponseWriter, status int, encode func(e *jx.Encoder)) {
	var e jx.Encoder
	encode(&e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

// writeError maps domain errors to HTTP responses. Validation results become
// 422 with the full field error list; locking and lookup failures map to 409
// and 404; anything else is logged and hidden behind a 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var res *coupon.Result
	switch {
	case errors.As(err, &res):
		writeFieldErrors(w, res)
	case errors.Is(err, ledger.ErrOrderLocked):
		writeMessage(w, http.StatusConflict, "order is locked; duplicate it to a mutable order first")
	case errors.Is(err, ledger.ErrStackConflict):
		writeMessage(w, http.StatusUnprocessableEntity, "coupon does not stack with an applied coupon")
	case errors.Is(err, order.ErrNotFound):
		writeMessage(w, http.StatusNotFound, "order not found")
	case errors.Is(err, coupon.ErrNotFound):
		writeMessage(w, http.StatusNotFound, "coupon not found")
	default:
		zctx.From(r.Context()).Error("request failed", zap.Error(err))
		writeMessage(w, http.StatusInternalServerError, "internal error")
	}
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("code", func(e *jx.Encoder) { e.Int(status) })
			e.Field("message", func(e *jx.Encoder) { e.Str(message) })
		})
	})
}

func writeFieldErrors(w http.ResponseWriter, res *coupon.Result) {
	writeJSON(w, http.StatusUnprocessableEntity, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("code", func(e *jx.Encoder) { e.Int(http.StatusUnprocessableEntity) })
			e.Field("message", func(e *jx.Encoder) { e.Str("coupon validation failed") })
			e.Field("errors", func(e *jx.Encoder) {
				e.Arr(func(e *jx.Encoder) {
					for _, fe := range res.Errors() {
						e.Obj(func(e *jx.Encoder) {
							e.Field("field", func(e *jx.Encoder) { e.Str(fe.Field) })
							e.Field("code", func(e *jx.Encoder) { e.Str(fe.Code) })
							e.Field("message", func(e *jx.Encoder) { e.Str(fe.Message) })
						})
					}
				})
			})
		})
	})
}
