package coupon

import "strings"

// Field error codes surfaced to the checkout/admin layer.
const (
	CodeEmpty             = "CODE_EMPTY"
	CodeDuplicate         = "CODE_DUPLICATE"
	AmountPercentageEmpty = "AMOUNT_PERCENTAGE_EMPTY"
	AmountPercentageBoth  = "AMOUNT_PERCENTAGE_BOTH_SET"
	AmountNegative        = "AMOUNT_NEGATIVE"
	PercentageOutOfRange  = "PERCENTAGE_OUT_OF_RANGE"
	MaxValueNegative      = "MAX_VALUE_NEGATIVE"
	MinSubTotalNegative   = "MIN_SUBTOTAL_NEGATIVE"
	MinQuantityNegative   = "MIN_QUANTITY_NEGATIVE"
	SubTotalTooLow        = "SUBTOTAL_TOO_LOW"
	TooEarly              = "TOO_EARLY"
	TooLate               = "TOO_LATE"
	NoRemainingUses       = "NO_REMAINING_USES"
	NoMatchedItems        = "NO_MATCHED_ITEMS"
	CouponInvalid         = "COUPON_INVALID"
)

// FieldError is a single field-scoped validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Result accumulates field errors from independent checks. Every check runs;
// nothing short-circuits, so a caller sees all violations at once.
type Result struct {
	errors []FieldError
}

// AddFieldError appends a failure for the given field.
func (r *Result) AddFieldError(field, code, message string) {
	r.errors = append(r.errors, FieldError{Field: field, Code: code, Message: message})
}

// Valid reports whether no check failed.
func (r *Result) Valid() bool {
	return len(r.errors) == 0
}

// Errors returns the accumulated field errors.
func (r *Result) Errors() []FieldError {
	return r.errors
}

// Has reports whether the result contains an error with the given code.
func (r *Result) Has(code string) bool {
	for _, e := range r.errors {
		if e.Code == code {
			return true
		}
	}
	return false
}

// Error makes an invalid Result usable as an error value.
func (r *Result) Error() string {
	if r.Valid() {
		return "valid"
	}
	msgs := make([]string, len(r.errors))
	for i, e := range r.errors {
		msgs[i] = e.Message
	}
	return strings.Join(msgs, "; ")
}
