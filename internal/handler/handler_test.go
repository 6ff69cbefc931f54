package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cartloom/coupon-engine/internal/domain/coupon"
	"github.com/cartloom/coupon-engine/internal/domain/ledger"
	"github.com/cartloom/coupon-engine/internal/domain/order"
)

// --- in-memory fakes -------------------------------------------------------

type memRepo struct {
	rules map[string]*coupon.Rule
}

func newMemRepo(rules ...*coupon.Rule) *memRepo {
	r := &memRepo{rules: make(map[string]*coupon.Rule)}
	for _, rule := range rules {
		r.rules[rule.ID] = rule
	}
	return r
}

func (r *memRepo) LookupByCode(_ context.Context, code string) (*coupon.Rule, error) {
	for _, rule := range r.rules {
		if strings.EqualFold(rule.Code, code) {
			return rule, nil
		}
	}
	return nil, coupon.ErrNotFound
}

func (r *memRepo) GetByID(_ context.Context, id string) (*coupon.Rule, error) {
	rule, ok := r.rules[id]
	if !ok {
		return nil, coupon.ErrNotFound
	}
	return rule, nil
}

func (r *memRepo) Create(ctx context.Context, rule *coupon.Rule) error {
	res, err := rule.Validate(ctx, r)
	if err != nil {
		return err
	}
	if !res.Valid() {
		return res
	}
	r.rules[rule.ID] = rule
	return nil
}

func (r *memRepo) Update(ctx context.Context, rule *coupon.Rule) error {
	if _, ok := r.rules[rule.ID]; !ok {
		return coupon.ErrNotFound
	}
	return r.Create(ctx, rule)
}

type memLedgerStore struct {
	apps []ledger.Application
	repo *memRepo
}

func (s *memLedgerStore) OrderApplications(_ context.Context, orderID string) ([]ledger.Application, error) {
	var out []ledger.Application
	for _, app := range s.apps {
		if app.OrderID == orderID && !app.IsItem() {
			out = append(out, app)
		}
	}
	return out, nil
}

func (s *memLedgerStore) ItemApplications(_ context.Context, orderID string) ([]ledger.Application, error) {
	var out []ledger.Application
	for _, app := range s.apps {
		if app.OrderID == orderID && app.IsItem() {
			out = append(out, app)
		}
	}
	return out, nil
}

func (s *memLedgerStore) CreateApplication(_ context.Context, app ledger.Application) error {
	s.apps = append(s.apps, app)
	return nil
}

func (s *memLedgerStore) DeleteApplication(_ context.Context, id string) error {
	for i, app := range s.apps {
		if app.ID == id {
			s.apps = append(s.apps[:i], s.apps[i+1:]...)
			return nil
		}
	}
	return nil
}

func (s *memLedgerStore) DeleteOrderApplications(_ context.Context, orderID string) (int, error) {
	kept := s.apps[:0]
	removed := 0
	for _, app := range s.apps {
		if app.OrderID == orderID && !app.IsItem() {
			removed++
			continue
		}
		kept = append(kept, app)
	}
	s.apps = kept
	return removed, nil
}

func (s *memLedgerStore) DeleteItemApplications(_ context.Context, orderID string) (int, error) {
	kept := s.apps[:0]
	removed := 0
	for _, app := range s.apps {
		if app.OrderID == orderID && app.IsItem() {
			removed++
			continue
		}
		kept = append(kept, app)
	}
	s.apps = kept
	return removed, nil
}

func (s *memLedgerStore) MarkUseRecorded(_ context.Context, id string) error {
	for i := range s.apps {
		if s.apps[i].ID == id {
			s.apps[i].UseRecorded = true
		}
	}
	return nil
}

func (s *memLedgerStore) CouponByID(ctx context.Context, id string) (*coupon.Rule, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *memLedgerStore) SetRemainingUses(_ context.Context, couponID string, remaining int) error {
	if rule, ok := s.repo.rules[couponID]; ok {
		rule.RemainingUses = remaining
	}
	return nil
}

func (s *memLedgerStore) InTx(_ context.Context, fn func(ledger.Store) error) error {
	return fn(s)
}

type memStacks struct {
	pairs map[[2]string]bool
}

func pairKey(a, b string) [2]string {
	if b < a {
		a, b = b, a
	}
	return [2]string{a, b}
}

func (s *memStacks) Stacks(_ context.Context, a, b string) (bool, error) {
	return s.pairs[pairKey(a, b)], nil
}

func (s *memStacks) AddPair(_ context.Context, a, b string) error {
	s.pairs[pairKey(a, b)] = true
	return nil
}

func (s *memStacks) RemovePair(_ context.Context, a, b string) error {
	delete(s.pairs, pairKey(a, b))
	return nil
}

type memOrders struct {
	orders map[string]*fakeOrder
}

func (s *memOrders) Get(_ context.Context, id string) (order.Order, error) {
	ord, ok := s.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return ord, nil
}

func (s *memOrders) Create(_ context.Context, locked bool, items []order.ItemSpec) (order.Order, error) {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.SubTotal)
	}
	ord := &fakeOrder{id: "o" + strconv.Itoa(len(s.orders)+1), subTotal: total, locked: locked}
	s.orders[ord.id] = ord
	return ord, nil
}

func (s *memOrders) SetLocked(_ context.Context, id string, locked bool) error {
	ord, ok := s.orders[id]
	if !ok {
		return order.ErrNotFound
	}
	ord.locked = locked
	return nil
}

type fakeOrder struct {
	id       string
	subTotal decimal.Decimal
	locked   bool
}

func (o *fakeOrder) ID() string                { return o.id }
func (o *fakeOrder) IsMutable() bool           { return !o.locked }
func (o *fakeOrder) SubTotal() decimal.Decimal { return o.subTotal }
func (o *fakeOrder) Items() []order.Item       { return nil }
func (o *fakeOrder) Duplicate(context.Context) (order.Order, error) {
	clone := *o
	clone.locked = false
	return &clone, nil
}

// --- fixture ---------------------------------------------------------------

type fixture struct {
	mux    *http.ServeMux
	repo   *memRepo
	store  *memLedgerStore
	orders *memOrders
}

func newFixture(rules ...*coupon.Rule) *fixture {
	repo := newMemRepo(rules...)
	store := &memLedgerStore{repo: repo}
	stacks := &memStacks{pairs: make(map[[2]string]bool)}
	orders := &memOrders{orders: make(map[string]*fakeOrder)}

	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	validator := coupon.NewValidator().WithNow(func() time.Time { return now })
	l := ledger.New(store, stacks, repo, validator, coupon.NewCalculator(nil))

	mux := http.NewServeMux()
	New(repo, stacks, orders, l).Register(mux)
	return &fixture{mux: mux, repo: repo, store: store, orders: orders}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	f.mux.ServeHTTP(w, req)
	return w
}

// --- tests -----------------------------------------------------------------

func TestHandler_CreateCoupon(t *testing.T) {
	f := newFixture()

	w := f.do(t, http.MethodPost, "/api/coupons",
		`{"kind":"order","code":"TENOFF","title":"Ten off","amount":"10","minSubTotal":"50"}`)

	require.Equal(t, http.StatusCreated, w.Code)

	var body map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "TENOFF", body["code"])
	assert.Equal(t, "10.00", body["amount"])
	assert.NotEmpty(t, body["id"])
}

func TestHandler_CreateCoupon_ValidationErrors(t *testing.T) {
	f := newFixture(&coupon.Rule{
		ID: "c1", Kind: coupon.KindOrder, Code: "TAKEN", Title: "Taken",
		Amount: decimal.NewFromInt(5),
	})

	w := f.do(t, http.MethodPost, "/api/coupons",
		`{"kind":"order","code":"TAKEN","amount":"5","percentage":"0.5"}`)

	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var body struct {
		Errors []struct {
			Field string `json:"field"`
			Code  string `json:"code"`
		} `json:"errors"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	require.Len(t, body.Errors, 2)

	codes := []string{body.Errors[0].Code, body.Errors[1].Code}
	assert.Contains(t, codes, coupon.CodeDuplicate)
	assert.Contains(t, codes, coupon.AmountPercentageBoth)
}

func TestHandler_CreateCoupon_BadKind(t *testing.T) {
	f := newFixture()
	w := f.do(t, http.MethodPost, "/api/coupons", `{"kind":"cart","code":"X","amount":"5"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_GetCoupon(t *testing.T) {
	f := newFixture(&coupon.Rule{
		ID: "c1", Kind: coupon.KindOrder, Code: "TENOFF", Title: "Ten off",
		Amount: decimal.NewFromInt(10),
	})

	w := f.do(t, http.MethodGet, "/api/coupons/tenoff", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "c1", body["id"])
}

func TestHandler_GetCoupon_NotFound(t *testing.T) {
	f := newFixture()
	w := f.do(t, http.MethodGet, "/api/coupons/BOGUS", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandler_StackPair_UnknownCoupon(t *testing.T) {
	f := newFixture(&coupon.Rule{
		ID: "c1", Kind: coupon.KindOrder, Code: "A", Title: "A",
		Amount: decimal.NewFromInt(5),
	})

	w := f.do(t, http.MethodPut, "/api/coupons/c1/stacks/ghost", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandler_ApplyCoupon(t *testing.T) {
	f := newFixture(&coupon.Rule{
		ID: "c1", Kind: coupon.KindOrder, Code: "TENOFF", Title: "Ten off",
		Amount: decimal.NewFromInt(10),
	})
	f.orders.orders["o1"] = &fakeOrder{id: "o1", subTotal: decimal.NewFromInt(100)}

	w := f.do(t, http.MethodPost, "/api/orders/o1/coupon", `{"code":"TENOFF"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Coupon   map[string]any `json:"coupon"`
		Discount string         `json:"discount"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "c1", body.Coupon["id"])
	assert.Equal(t, "-10.00", body.Discount)
}

func TestHandler_ApplyCoupon_UnknownCode(t *testing.T) {
	f := newFixture()
	f.orders.orders["o1"] = &fakeOrder{id: "o1", subTotal: decimal.NewFromInt(100)}

	w := f.do(t, http.MethodPost, "/api/orders/o1/coupon", `{"code":"BOGUS"}`)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var body struct {
		Errors []struct {
			Code string `json:"code"`
		} `json:"errors"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	require.Len(t, body.Errors, 1)
	assert.Equal(t, coupon.CouponInvalid, body.Errors[0].Code)
}

func TestHandler_ApplyCoupon_LockedOrder(t *testing.T) {
	f := newFixture(&coupon.Rule{
		ID: "c1", Kind: coupon.KindOrder, Code: "TENOFF", Title: "Ten off",
		Amount: decimal.NewFromInt(10),
	})
	f.orders.orders["o1"] = &fakeOrder{id: "o1", subTotal: decimal.NewFromInt(100), locked: true}

	w := f.do(t, http.MethodPost, "/api/orders/o1/coupon", `{"code":"TENOFF"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestHandler_ApplyCoupon_OrderNotFound(t *testing.T) {
	f := newFixture()
	w := f.do(t, http.MethodPost, "/api/orders/ghost/coupon", `{"code":"X"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandler_OrderDiscount(t *testing.T) {
	f := newFixture(&coupon.Rule{
		ID: "c1", Kind: coupon.KindOrder, Code: "TENOFF", Title: "Ten off",
		Amount: decimal.NewFromInt(10),
	})
	f.orders.orders["o1"] = &fakeOrder{id: "o1", subTotal: decimal.NewFromInt(100)}

	w := f.do(t, http.MethodPost, "/api/orders/o1/coupon", `{"code":"TENOFF"}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodGet, "/api/orders/o1/discount", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		SubTotal   string `json:"subTotal"`
		Discount   string `json:"discount"`
		Total      string `json:"total"`
		HasCoupons bool   `json:"hasCoupons"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "100.00", body.SubTotal)
	assert.Equal(t, "-10.00", body.Discount)
	assert.Equal(t, "90.00", body.Total)
	assert.True(t, body.HasCoupons)
}

func TestHandler_ClearCoupons(t *testing.T) {
	f := newFixture(&coupon.Rule{
		ID: "c1", Kind: coupon.KindOrder, Code: "TENOFF", Title: "Ten off",
		Amount: decimal.NewFromInt(10),
	})
	f.orders.orders["o1"] = &fakeOrder{id: "o1", subTotal: decimal.NewFromInt(100)}

	w := f.do(t, http.MethodPost, "/api/orders/o1/coupon", `{"code":"TENOFF"}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodDelete, "/api/orders/o1/coupons", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Removed int `json:"removed"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, 1, body.Removed)
	assert.Empty(t, f.store.apps)
}

func TestHandler_CreateAndLockOrder(t *testing.T) {
	f := newFixture(&coupon.Rule{
		ID: "c1", Kind: coupon.KindOrder, Code: "TENOFF", Title: "Ten off",
		Amount: decimal.NewFromInt(10),
	})

	w := f.do(t, http.MethodPost, "/api/orders",
		`{"items":[{"class":"Product","id":"shoe-classic","quantity":1,"subTotal":"59.95"}]}`)
	require.Equal(t, http.StatusCreated, w.Code)

	var created struct {
		ID       string `json:"id"`
		SubTotal string `json:"subTotal"`
		Mutable  bool   `json:"mutable"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&created))
	assert.Equal(t, "59.95", created.SubTotal)
	assert.True(t, created.Mutable)

	w = f.do(t, http.MethodPut, "/api/orders/"+created.ID+"/lock", `{"locked":true}`)
	require.Equal(t, http.StatusNoContent, w.Code)

	// Coupons bounce off the locked order.
	w = f.do(t, http.MethodPost, "/api/orders/"+created.ID+"/coupon", `{"code":"TENOFF"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestHandler_CreateOrder_Invalid(t *testing.T) {
	f := newFixture()

	w := f.do(t, http.MethodPost, "/api/orders", `{"items":[]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPost, "/api/orders",
		`{"items":[{"class":"Product","id":"x","quantity":0,"subTotal":"5"}]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_CapturePayment(t *testing.T) {
	rule := &coupon.Rule{
		ID: "c1", Kind: coupon.KindOrder, Code: "LIMITED", Title: "Limited",
		Amount: decimal.NewFromInt(10), LimitUses: true, RemainingUses: 2,
	}
	f := newFixture(rule)
	f.orders.orders["o1"] = &fakeOrder{id: "o1", subTotal: decimal.NewFromInt(100)}

	w := f.do(t, http.MethodPost, "/api/orders/o1/coupon", `{"code":"LIMITED"}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodPost, "/api/orders/o1/capture", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, rule.RemainingUses)

	// A duplicate capture decrements nothing.
	w = f.do(t, http.MethodPost, "/api/orders/o1/capture", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, rule.RemainingUses)
}
