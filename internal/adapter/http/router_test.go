package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aq2208/gcheckout-api/configs"
	"github.com/aq2208/gcheckout-api/internal/adapter/http/middleware"
	domain "github.com/aq2208/gcheckout-api/internal/entity"
	"github.com/aq2208/gcheckout-api/internal/logging"
	"github.com/aq2208/gcheckout-api/internal/usecase"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

type fakeCarts struct {
	lastShopper domain.Shopper
	lastQty     int
	err         error
}

func (f *fakeCarts) view(sh domain.Shopper) (usecase.CartView, error) {
	f.lastShopper = sh
	if f.err != nil {
		return usecase.CartView{}, f.err
	}
	return usecase.CartView{Cart: domain.Cart{Items: []domain.CartItem{}}}, nil
}

func (f *fakeCarts) Get(_ context.Context, sh domain.Shopper, _ string) (usecase.CartView, error) {
	return f.view(sh)
}
func (f *fakeCarts) Quote(_ context.Context, sh domain.Shopper, _ string) (usecase.CartView, error) {
	return f.view(sh)
}
func (f *fakeCarts) Add(_ context.Context, sh domain.Shopper, _ string, delta int) (usecase.CartView, error) {
	f.lastQty = delta
	return f.view(sh)
}
func (f *fakeCarts) SetQuantity(_ context.Context, sh domain.Shopper, _ string, qty int) (usecase.CartView, error) {
	f.lastQty = qty
	return f.view(sh)
}
func (f *fakeCarts) Remove(_ context.Context, sh domain.Shopper, _ string) (usecase.CartView, error) {
	return f.view(sh)
}
func (f *fakeCarts) Clear(_ context.Context, sh domain.Shopper) (usecase.CartView, error) {
	return f.view(sh)
}

type fakeMerger struct{ got domain.Shopper }

func (f *fakeMerger) Execute(_ context.Context, sh domain.Shopper) (usecase.MergeResult, error) {
	f.got = sh
	return usecase.MergeResult{Merged: true}, nil
}

type fakeCommitter struct {
	in    usecase.CommitInput
	err   error
	order *domain.Order
}

func (f *fakeCommitter) Execute(_ context.Context, in usecase.CommitInput) (usecase.CommitOutput, error) {
	f.in = in
	if f.err != nil {
		return usecase.CommitOutput{}, f.err
	}
	return usecase.CommitOutput{OrderID: "o-1", Status: domain.StatusPending, Total: decimal.NewFromInt(6570)}, nil
}

func (f *fakeCommitter) GetOrder(_ context.Context, id string) (*domain.Order, error) {
	if f.order == nil || f.order.ID != id {
		return nil, usecase.ErrNotFound
	}
	return f.order, nil
}

type fakeAdmin struct {
	to    domain.Status
	err   error
	items []domain.StockAdjustment
}

func (f *fakeAdmin) UpdateStatus(_ context.Context, id string, to domain.Status) (*domain.Order, error) {
	f.to = to
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Order{ID: id, Status: to}, nil
}

func (f *fakeAdmin) BulkSet(_ context.Context, items []domain.StockAdjustment) (domain.BulkSetResult, error) {
	f.items = items
	return domain.BulkSetResult{UpdatedCount: len(items) - 1, Errors: []domain.BulkSetError{{ProductID: "bad", Reason: "unknown product"}}}, nil
}

type harness struct {
	r      *gin.Engine
	carts  *fakeCarts
	merger *fakeMerger
	commit *fakeCommitter
	admin  *fakeAdmin
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	var cfg configs.Config
	cfg.Security.JWTSecret = secret
	cfg.Security.Issuer = "storefront-auth"
	cfg.Security.Audience = "checkout-api"

	h := &harness{carts: &fakeCarts{}, merger: &fakeMerger{}, commit: &fakeCommitter{}, admin: &fakeAdmin{}}
	h.r = NewRouter(logging.New("http-test"), middleware.NewAuthz(cfg), Handlers{
		Cart:     NewCartHandler(h.carts, h.merger),
		Checkout: NewCheckoutHandler(h.commit),
		Admin:    NewAdminHandler(h.admin, h.admin),
	})
	return h
}

func token(t *testing.T, sub string, perms ...string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"iss":   "storefront-auth",
		"aud":   "checkout-api",
		"sub":   sub,
		"exp":   time.Now().Add(time.Hour).Unix(),
		"perms": perms,
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func (h *harness) do(method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			_ = json.NewEncoder(&buf).Encode(body)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m), w.Body.String())
	return m
}

func TestCart_DeviceTokenSelectsAnonymousShopper(t *testing.T) {
	h := newHarness(t)

	w := h.do(http.MethodPost, "/v1/cart/items", gin.H{"productId": "p1", "quantity": 2},
		map[string]string{middleware.DeviceTokenHeader: "dev-1"})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, domain.Shopper{DeviceToken: "dev-1"}, h.carts.lastShopper)
	assert.Equal(t, 2, h.carts.lastQty)
}

func TestCart_BearerSetsIdentity(t *testing.T) {
	h := newHarness(t)

	w := h.do(http.MethodPut, "/v1/cart/items/p1", gin.H{"quantity": 0},
		map[string]string{"Authorization": "Bearer " + token(t, "u-1")})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "u-1", h.carts.lastShopper.IdentityID)
	assert.Equal(t, 0, h.carts.lastQty)
}

func TestCart_InvalidBearerIsRejected(t *testing.T) {
	h := newHarness(t)

	w := h.do(http.MethodGet, "/v1/cart", nil, map[string]string{"Authorization": "Bearer nope"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCart_BadJSONIs400(t *testing.T) {
	h := newHarness(t)

	w := h.do(http.MethodPost, "/v1/cart/items", `{"productId":`, map[string]string{middleware.DeviceTokenHeader: "dev-1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.do(http.MethodPut, "/v1/cart/items/p1", `{}`, map[string]string{middleware.DeviceTokenHeader: "dev-1"})
	assert.Equal(t, http.StatusBadRequest, w.Code, "quantity is required")
}

func TestCart_NotSavedIs503(t *testing.T) {
	h := newHarness(t)
	h.carts.err = usecase.ErrCartNotSaved

	w := h.do(http.MethodDelete, "/v1/cart", nil, map[string]string{middleware.DeviceTokenHeader: "dev-1"})

	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "cart_not_saved", decode(t, w)["error"])
}

func TestCart_NoShopperIs401(t *testing.T) {
	h := newHarness(t)
	h.carts.err = usecase.ErrNoShopper

	w := h.do(http.MethodGet, "/v1/cart", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMerge_NeedsBearerAndPassesDevice(t *testing.T) {
	h := newHarness(t)

	w := h.do(http.MethodPost, "/v1/cart/merge", nil, map[string]string{middleware.DeviceTokenHeader: "dev-1"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = h.do(http.MethodPost, "/v1/cart/merge", nil, map[string]string{
		middleware.DeviceTokenHeader: "dev-1",
		"Authorization":              "Bearer " + token(t, "u-1"),
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, domain.Shopper{IdentityID: "u-1", DeviceToken: "dev-1"}, h.merger.got)
	assert.Equal(t, true, decode(t, w)["merged"])
}

func TestCheckout_CreatedWithIdempotencyKey(t *testing.T) {
	h := newHarness(t)

	w := h.do(http.MethodPost, "/v1/checkout", gin.H{
		"shippingInfo":  gin.H{"name": "Ann", "email": "ann@example.com"},
		"paymentMethod": "cod",
		"promoCode":     "10PCT",
	}, map[string]string{middleware.DeviceTokenHeader: "dev-1", IdempotencyKeyHeader: "k-1"})

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "o-1", decode(t, w)["orderId"])
	assert.Equal(t, "/v1/orders/o-1", w.Header().Get("Location"))
	assert.Equal(t, "k-1", h.commit.in.IdempotencyKey)
	assert.Equal(t, "ann@example.com", h.commit.in.Shipping.Email, "handlers see the unredacted body")
	assert.Equal(t, "10PCT", h.commit.in.PromoCode)
}

func TestCheckout_ErrorMapping(t *testing.T) {
	fe := domain.FieldErrors{}
	fe.Add("shippingInfo.email", "is required")

	cases := []struct {
		name string
		err  error
		code int
		key  string
	}{
		{"validation", &usecase.ValidationError{Fields: fe}, http.StatusUnprocessableEntity, "fields"},
		{"stock", &usecase.StockConflictError{Lines: []usecase.StockShortfall{{ProductID: "p1", Requested: 2, Available: 1}}}, http.StatusConflict, "lines"},
		{"duplicate", usecase.ErrDuplicate, http.StatusConflict, "error"},
		{"retryable", usecase.ErrRetryable, http.StatusServiceUnavailable, "error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			h.commit.err = tc.err

			w := h.do(http.MethodPost, "/v1/checkout", gin.H{"paymentMethod": "cod"},
				map[string]string{middleware.DeviceTokenHeader: "dev-1"})

			require.Equal(t, tc.code, w.Code, w.Body.String())
			assert.Contains(t, decode(t, w), tc.key)
		})
	}
}

func TestCheckout_RetryableSetsRetryAfter(t *testing.T) {
	h := newHarness(t)
	h.commit.err = usecase.ErrRetryable

	w := h.do(http.MethodPost, "/v1/checkout", gin.H{}, map[string]string{middleware.DeviceTokenHeader: "dev-1"})
	assert.Equal(t, retryAfterSeconds, w.Header().Get("Retry-After"))
}

func TestGetOrder_OwnerOrAdminOnly(t *testing.T) {
	h := newHarness(t)
	h.commit.order = &domain.Order{ID: "o-1", IdentityID: "u-1", Status: domain.StatusPending}

	w := h.do(http.MethodGet, "/v1/orders/o-1", nil, map[string]string{"Authorization": "Bearer " + token(t, "u-1")})
	assert.Equal(t, http.StatusOK, w.Code)

	w = h.do(http.MethodGet, "/v1/orders/o-1", nil, map[string]string{"Authorization": "Bearer " + token(t, "u-2")})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = h.do(http.MethodGet, "/v1/orders/o-1", nil, map[string]string{"Authorization": "Bearer " + token(t, "ops", PermOrdersAdmin)})
	assert.Equal(t, http.StatusOK, w.Code)

	w = h.do(http.MethodGet, "/v1/orders/missing", nil, map[string]string{"Authorization": "Bearer " + token(t, "ops", PermOrdersAdmin)})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdmin_UpdateStatus(t *testing.T) {
	h := newHarness(t)
	admin := map[string]string{"Authorization": "Bearer " + token(t, "ops", PermOrdersAdmin)}

	w := h.do(http.MethodPatch, "/v1/admin/orders/o-1", gin.H{"status": "shipped"}, admin)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, domain.StatusShipped, h.admin.to)

	w = h.do(http.MethodPatch, "/v1/admin/orders/o-1", gin.H{"status": "lost"}, admin)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	h.admin.err = usecase.ErrInvalidTransition
	w = h.do(http.MethodPatch, "/v1/admin/orders/o-1", gin.H{"status": "pending"}, admin)
	assert.Equal(t, http.StatusConflict, w.Code)

	h.admin.err = usecase.ErrNotFound
	w = h.do(http.MethodPatch, "/v1/admin/orders/o-9", gin.H{"status": "shipped"}, admin)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdmin_RequiresPermission(t *testing.T) {
	h := newHarness(t)

	w := h.do(http.MethodPatch, "/v1/admin/orders/o-1", gin.H{"status": "shipped"},
		map[string]string{"Authorization": "Bearer " + token(t, "u-1")})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = h.do(http.MethodPost, "/v1/admin/inventory/bulk", []gin.H{},
		map[string]string{"Authorization": "Bearer " + token(t, "ops", PermOrdersAdmin)})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAdmin_BulkSetReportsPartialSuccess(t *testing.T) {
	h := newHarness(t)

	w := h.do(http.MethodPost, "/v1/admin/inventory/bulk",
		[]gin.H{{"id": "p1", "stock": 5}, {"id": "bad", "stock": 1}},
		map[string]string{"Authorization": "Bearer " + token(t, "ops", PermInventoryAdmin)})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.EqualValues(t, 1, body["updatedCount"])
	assert.Len(t, body["errors"], 1)
	assert.Equal(t, []domain.StockAdjustment{{ProductID: "p1", Stock: 5}, {ProductID: "bad", Stock: 1}}, h.admin.items)
}

func TestHealthz(t *testing.T) {
	h := newHarness(t)
	w := h.do(http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
