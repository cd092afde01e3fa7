package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/cartstore/internal/domain"
	"github.com/utafrali/cartstore/internal/notify"
	"github.com/utafrali/cartstore/internal/service"
	"github.com/utafrali/cartstore/internal/storage/memory"
	apperrors "github.com/utafrali/cartstore/pkg/errors"
	"github.com/utafrali/cartstore/pkg/health"
	"github.com/utafrali/cartstore/pkg/logger"
)

// ============================================================================
// Fake catalog
// ============================================================================

type fakeCatalog struct {
	mu       sync.Mutex
	products map[int]domain.Product
	stock    map[int]int
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		products: map[int]domain.Product{
			1: {ID: 1, Title: "Running Shoe", Price: 179.9, Image: "shoe.jpg"},
			2: {ID: 2, Title: "Trail Shoe", Price: 139.9, Image: "trail.jpg"},
		},
		stock: map[int]int{1: 3, 2: 1},
	}
}

func (c *fakeCatalog) Stock(_ context.Context, productID int) (domain.Stock, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	amount, ok := c.stock[productID]
	if !ok {
		return domain.Stock{}, apperrors.NotFound("stock", "x")
	}
	return domain.Stock{ID: productID, Amount: amount}, nil
}

func (c *fakeCatalog) Product(_ context.Context, productID int) (domain.Product, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.products[productID]
	if !ok {
		return domain.Product{}, apperrors.NotFound("product", "x")
	}
	return p, nil
}

// ============================================================================
// Test helpers
// ============================================================================

type testServer struct {
	store  *service.CartStore
	hub    *notify.Hub
	router http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	log := logger.Discard()
	hub := notify.NewHub(8)
	store := service.NewCartStore(context.Background(), newFakeCatalog(), memory.New(), hub, log, "")

	healthHandler := health.NewHandler()
	router := NewRouter(
		NewCartHandler(store, log),
		NewStreamHandler(store, hub, time.Hour, log),
		healthHandler,
		Options{AllowedOrigin: "*"},
		log,
	)
	return &testServer{store: store, hub: hub, router: router}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	Data  *CartView `json:"data"`
	Error *struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Fields  map[string]string `json:"fields"`
	} `json:"error"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env
}

// ============================================================================
// GetCart
// ============================================================================

func TestGetCart_Empty(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/v1/cart", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	env := decode(t, rec)
	require.NotNil(t, env.Data)
	assert.Empty(t, env.Data.Items)
	assert.Equal(t, 0, env.Data.ItemCount)
	assert.Equal(t, "0.00", env.Data.Subtotal)
	assert.Contains(t, rec.Body.String(), `"items":[]`)
}

// ============================================================================
// AddProduct
// ============================================================================

func TestAddProduct_Success(t *testing.T) {
	s := newTestServer(t)

	s.do(t, http.MethodPost, "/api/v1/cart/items", map[string]int{"product_id": 1})
	rec := s.do(t, http.MethodPost, "/api/v1/cart/items", map[string]int{"product_id": 1})

	require.Equal(t, http.StatusOK, rec.Code)
	env := decode(t, rec)
	require.Len(t, env.Data.Items, 1)
	assert.Equal(t, 2, env.Data.Items[0].Amount)
	assert.Equal(t, 2, env.Data.ItemCount)
	assert.Equal(t, "359.80", env.Data.Subtotal)
}

func TestAddProduct_Errors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		setup      func(s *testServer)
		wantStatus int
		wantCode   string
	}{
		{
			name:       "unknown product",
			body:       `{"product_id":99}`,
			wantStatus: http.StatusNotFound,
			wantCode:   "PRODUCT_NOT_FOUND",
		},
		{
			name: "out of stock",
			body: `{"product_id":2}`,
			setup: func(s *testServer) {
				require.NoError(t, s.store.AddProduct(context.Background(), 2))
			},
			wantStatus: http.StatusConflict,
			wantCode:   "INSUFFICIENT_STOCK",
		},
		{
			name:       "zero product id",
			body:       `{"product_id":0}`,
			wantStatus: http.StatusNotFound,
			wantCode:   "PRODUCT_NOT_FOUND",
		},
		{
			name:       "negative product id",
			body:       `{"product_id":-4}`,
			wantStatus: http.StatusNotFound,
			wantCode:   "PRODUCT_NOT_FOUND",
		},
		{
			name:       "missing product id",
			body:       `{}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION_ERROR",
		},
		{
			name:       "unknown field",
			body:       `{"product_id":1,"qty":2}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_INPUT",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)
			if tt.setup != nil {
				tt.setup(s)
			}

			req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", bytes.NewBufferString(tt.body))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			s.router.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			env := decode(t, rec)
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.wantCode, env.Error.Code)
		})
	}
}

func TestAddProduct_RejectsNonJSON(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", bytes.NewBufferString("product_id=1"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
	assert.Empty(t, s.store.Cart())
}

// ============================================================================
// UpdateProductAmount
// ============================================================================

func TestUpdateProductAmount_Success(t *testing.T) {
	s := newTestServer(t)
	require.NoError(t, s.store.AddProduct(context.Background(), 1))

	rec := s.do(t, http.MethodPut, "/api/v1/cart/items/1", map[string]int{"amount": 3})

	require.Equal(t, http.StatusOK, rec.Code)
	env := decode(t, rec)
	require.Len(t, env.Data.Items, 1)
	assert.Equal(t, 3, env.Data.Items[0].Amount)
}

func TestUpdateProductAmount_ZeroIsIgnored(t *testing.T) {
	s := newTestServer(t)
	require.NoError(t, s.store.AddProduct(context.Background(), 1))

	rec := s.do(t, http.MethodPut, "/api/v1/cart/items/1", map[string]int{"amount": 0})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode(t, rec).Data.Items[0].Amount)
}

func TestUpdateProductAmount_Errors(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		body       string
		wantStatus int
		wantCode   string
	}{
		{"above stock", "/api/v1/cart/items/1", `{"amount":4}`, http.StatusConflict, "INSUFFICIENT_STOCK"},
		{"not in cart", "/api/v1/cart/items/2", `{"amount":1}`, http.StatusNotFound, "PRODUCT_NOT_IN_CART"},
		{"unknown stock", "/api/v1/cart/items/42", `{"amount":1}`, http.StatusBadGateway, "UPDATE_FAILED"},
		{"missing amount", "/api/v1/cart/items/1", `{}`, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"bad id", "/api/v1/cart/items/abc", `{"amount":1}`, http.StatusBadRequest, "INVALID_PARAMETER"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)
			require.NoError(t, s.store.AddProduct(context.Background(), 1))

			req := httptest.NewRequest(http.MethodPut, tt.path, bytes.NewBufferString(tt.body))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			s.router.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			env := decode(t, rec)
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.wantCode, env.Error.Code)
			assert.Equal(t, 1, s.store.Cart()[0].Amount)
		})
	}
}

// ============================================================================
// RemoveProduct / ClearCart
// ============================================================================

func TestRemoveProduct(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	require.NoError(t, s.store.AddProduct(ctx, 1))
	require.NoError(t, s.store.AddProduct(ctx, 2))

	rec := s.do(t, http.MethodDelete, "/api/v1/cart/items/1", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	env := decode(t, rec)
	require.Len(t, env.Data.Items, 1)
	assert.Equal(t, 2, env.Data.Items[0].ID)
}

func TestRemoveProduct_NotInCart(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodDelete, "/api/v1/cart/items/1", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	env := decode(t, rec)
	require.NotNil(t, env.Error)
	assert.Equal(t, "PRODUCT_NOT_IN_CART", env.Error.Code)
	assert.Equal(t, domain.MsgRemoveFailed, env.Error.Message)
}

func TestClearCart(t *testing.T) {
	s := newTestServer(t)
	require.NoError(t, s.store.AddProduct(context.Background(), 1))

	rec := s.do(t, http.MethodDelete, "/api/v1/cart", nil)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, s.store.Cart())
}

// ============================================================================
// Health and metrics
// ============================================================================

func TestRouter_HealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	for _, path := range []string{"/health/live", "/health/ready", "/metrics"} {
		rec := s.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestNewCartView_NilCart(t *testing.T) {
	view := NewCartView(nil)

	assert.NotNil(t, view.Items)
	assert.Equal(t, "0.00", view.Subtotal)
}

func TestRouter_Pprof(t *testing.T) {
	log := logger.Discard()
	store := service.NewCartStore(context.Background(), newFakeCatalog(), memory.New(), notify.NewHub(1), log, "")
	router := NewRouter(
		NewCartHandler(store, log),
		NewStreamHandler(store, notify.NewHub(1), time.Hour, log),
		health.NewHandler(),
		Options{PprofCIDRs: []string{"192.0.2.0/24"}},
		log,
	)

	req := httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req.RemoteAddr = "198.51.100.1:1234"
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAddProduct_NonPositiveIDIsReported(t *testing.T) {
	s := newTestServer(t)
	messages, stop := s.hub.Listen()
	defer stop()

	rec := s.do(t, http.MethodPost, "/api/v1/cart/items", map[string]int{"product_id": 0})

	assert.Equal(t, http.StatusNotFound, rec.Code)
	select {
	case msg := <-messages:
		assert.Equal(t, domain.KindProductNotFound, msg.Kind)
	default:
		t.Fatal("no notification for an unknown product id")
	}
}
