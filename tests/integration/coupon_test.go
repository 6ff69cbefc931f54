//go:build integration

package integration

import (
	"net/http"
	"testing"
)

func TestAuth_MissingKey(t *testing.T) {
	resp := doRequest(t, http.MethodGet, "/api/coupons/TENOFF", nil, "")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestAuth_WrongKey(t *testing.T) {
	resp := doRequest(t, http.MethodGet, "/api/coupons/TENOFF", nil, "wrong-key")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestGetSeededCoupon(t *testing.T) {
	resp := doGet(t, "/api/coupons/TENOFF")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	c := decodeJSON[couponResponse](t, resp)
	if c.Code != "TENOFF" {
		t.Errorf("code: got %q, want TENOFF", c.Code)
	}
	if c.Kind != "order" {
		t.Errorf("kind: got %q, want order", c.Kind)
	}
	if c.Amount != "10.00" {
		t.Errorf("amount: got %q, want 10.00", c.Amount)
	}
}

func TestGetCoupon_CaseInsensitive(t *testing.T) {
	resp := doGet(t, "/api/coupons/tenoff")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestCreateCoupon_DuplicateCode(t *testing.T) {
	resp := doPost(t, "/api/coupons", couponRequest{
		Kind:   "order",
		Code:   "TENOFF",
		Title:  "Clashing deal",
		Amount: "5",
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}

	body := decodeJSON[validationResponse](t, resp)
	if len(body.Errors) != 1 || body.Errors[0].Code != "CODE_DUPLICATE" {
		t.Fatalf("expected CODE_DUPLICATE, got %+v", body.Errors)
	}
}

func TestApplyCoupon_FlatDiscount(t *testing.T) {
	orderID := createOrder(t, "100.00")

	resp := doPost(t, "/api/orders/"+orderID+"/coupon", map[string]string{"code": "TENOFF"})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	body := decodeJSON[applyResponse](t, resp)
	if body.Discount != "-10.00" {
		t.Errorf("discount: got %q, want -10.00", body.Discount)
	}
}

func TestApplyCoupon_SubTotalTooLow(t *testing.T) {
	orderID := createOrder(t, "30.00")

	// TENOFF requires a $50 subtotal.
	resp := doPost(t, "/api/orders/"+orderID+"/coupon", map[string]string{"code": "TENOFF"})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}

	body := decodeJSON[validationResponse](t, resp)
	if len(body.Errors) != 1 || body.Errors[0].Code != "SUBTOTAL_TOO_LOW" {
		t.Fatalf("expected SUBTOTAL_TOO_LOW, got %+v", body.Errors)
	}
}

func TestApplyCoupon_UnknownCode(t *testing.T) {
	orderID := createOrder(t, "100.00")

	resp := doPost(t, "/api/orders/"+orderID+"/coupon", map[string]string{"code": "NOPE"})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}

	body := decodeJSON[validationResponse](t, resp)
	if len(body.Errors) != 1 || body.Errors[0].Code != "COUPON_INVALID" {
		t.Fatalf("expected COUPON_INVALID, got %+v", body.Errors)
	}
}

func TestApplyCoupon_ReplacesNonStacking(t *testing.T) {
	orderID := createOrder(t, "100.00")

	resp := doPost(t, "/api/orders/"+orderID+"/coupon", map[string]string{"code": "TENOFF"})
	resp.Body.Close()

	// SAVE20 does not stack with TENOFF; it takes over.
	resp = doPost(t, "/api/orders/"+orderID+"/coupon", map[string]string{"code": "SAVE20"})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	body := decodeJSON[applyResponse](t, resp)
	// 20% of $100, under the $15 cap... the cap binds: -15.00.
	if body.Discount != "-15.00" {
		t.Errorf("discount: got %q, want -15.00", body.Discount)
	}

	dresp := doGet(t, "/api/orders/"+orderID+"/discount")
	defer dresp.Body.Close()
	d := decodeJSON[discountResponse](t, dresp)
	if d.Discount != "-15.00" {
		t.Errorf("only the replacing coupon should count, got %q", d.Discount)
	}
	if d.Total != "85.00" {
		t.Errorf("total: got %q, want 85.00", d.Total)
	}
}

func TestApplyCoupon_LockedOrder(t *testing.T) {
	orderID := createOrder(t, "100.00")

	lresp := doRequest(t, http.MethodPut, "/api/orders/"+orderID+"/lock",
		map[string]bool{"locked": true}, testAPIKey)
	lresp.Body.Close()

	resp := doPost(t, "/api/orders/"+orderID+"/coupon", map[string]string{"code": "TENOFF"})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}
}

func TestCapture_DecrementsOnce(t *testing.T) {
	// A dedicated limited coupon so other tests cannot interfere.
	cresp := doPost(t, "/api/coupons", couponRequest{
		Kind:          "order",
		Code:          "CAPTUREME",
		Title:         "Capture test",
		Amount:        "5",
		LimitUses:     true,
		RemainingUses: 2,
	})
	if cresp.StatusCode != http.StatusCreated {
		t.Fatalf("create coupon: expected 201, got %d", cresp.StatusCode)
	}
	cresp.Body.Close()

	orderID := createOrder(t, "100.00")

	resp := doPost(t, "/api/orders/"+orderID+"/coupon", map[string]string{"code": "CAPTUREME"})
	resp.Body.Close()

	for range 2 {
		capResp := doPost(t, "/api/orders/"+orderID+"/capture", nil)
		if capResp.StatusCode != http.StatusOK {
			t.Fatalf("capture: expected 200, got %d", capResp.StatusCode)
		}
		capResp.Body.Close()
	}

	gresp := doGet(t, "/api/coupons/CAPTUREME")
	defer gresp.Body.Close()
	c := decodeJSON[couponResponse](t, gresp)
	if c.RemainingUses != 1 {
		t.Errorf("remaining uses: got %d, want 1 (duplicate capture must not decrement)", c.RemainingUses)
	}
}

func TestClearCoupons(t *testing.T) {
	orderID := createOrder(t, "100.00")

	resp := doPost(t, "/api/orders/"+orderID+"/coupon", map[string]string{"code": "TENOFF"})
	resp.Body.Close()

	clrResp := doRequest(t, http.MethodDelete, "/api/orders/"+orderID+"/coupons", nil, testAPIKey)
	defer clrResp.Body.Close()
	if clrResp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", clrResp.StatusCode)
	}

	dresp := doGet(t, "/api/orders/"+orderID+"/discount")
	defer dresp.Body.Close()
	d := decodeJSON[discountResponse](t, dresp)
	if d.HasCoupons {
		t.Error("expected no coupons after clearing")
	}
	if d.Discount != "0.00" {
		t.Errorf("discount: got %q, want 0.00", d.Discount)
	}
}
