package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/cartstore/internal/domain"
	"github.com/utafrali/cartstore/internal/service"
	"github.com/utafrali/cartstore/pkg/httputil"
	"github.com/utafrali/cartstore/pkg/validator"
)

// CartService is the cart store as seen by the HTTP layer.
type CartService interface {
	Cart() domain.Cart
	AddProduct(ctx context.Context, productID int) error
	RemoveProduct(ctx context.Context, productID int) error
	UpdateProductAmount(ctx context.Context, in service.UpdateProductAmount) error
	ClearCart(ctx context.Context) error
	Subscribe(fn func(domain.Cart)) func()
}

// CartHandler handles HTTP requests for cart endpoints.
type CartHandler struct {
	service CartService
	logger  *slog.Logger
}

// NewCartHandler creates a new cart HTTP handler.
func NewCartHandler(svc CartService, logger *slog.Logger) *CartHandler {
	return &CartHandler{
		service: svc,
		logger:  logger,
	}
}

// --- Request DTOs ---

// AddProductRequest is the body of POST /api/v1/cart/items. Any id is passed
// on; ids the catalog does not know answer PRODUCT_NOT_FOUND like any other.
type AddProductRequest struct {
	ProductID *int `json:"product_id" validate:"required"`
}

// UpdateAmountRequest is the body of PUT /api/v1/cart/items/{productId}.
// Amounts below 1 are accepted and ignored by the store.
type UpdateAmountRequest struct {
	Amount *int `json:"amount" validate:"required"`
}

// --- Response DTOs ---

// CartView is the JSON representation of the cart.
type CartView struct {
	Items     domain.Cart `json:"items"`
	ItemCount int         `json:"item_count"`
	Subtotal  string      `json:"subtotal"`
}

// NewCartView renders cart with its derived totals.
func NewCartView(cart domain.Cart) CartView {
	if cart == nil {
		cart = domain.Cart{}
	}
	return CartView{
		Items:     cart,
		ItemCount: cart.ItemCount(),
		Subtotal:  cart.Subtotal().StringFixed(2),
	}
}

// --- Handlers ---

// GetCart handles GET /api/v1/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: NewCartView(h.service.Cart())})
}

// AddProduct handles POST /api/v1/cart/items
func (h *CartHandler) AddProduct(w http.ResponseWriter, r *http.Request) {
	var req AddProductRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	if err := h.service.AddProduct(r.Context(), *req.ProductID); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: NewCartView(h.service.Cart())})
}

// UpdateProductAmount handles PUT /api/v1/cart/items/{productId}
func (h *CartHandler) UpdateProductAmount(w http.ResponseWriter, r *http.Request) {
	productID, ok := httputil.ParseID(w, chi.URLParam(r, "productId"))
	if !ok {
		return
	}

	var req UpdateAmountRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	in := service.UpdateProductAmount{ProductID: productID, Amount: *req.Amount}
	if err := h.service.UpdateProductAmount(r.Context(), in); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: NewCartView(h.service.Cart())})
}

// RemoveProduct handles DELETE /api/v1/cart/items/{productId}
func (h *CartHandler) RemoveProduct(w http.ResponseWriter, r *http.Request) {
	productID, ok := httputil.ParseID(w, chi.URLParam(r, "productId"))
	if !ok {
		return
	}

	if err := h.service.RemoveProduct(r.Context(), productID); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: NewCartView(h.service.Cart())})
}

// ClearCart handles DELETE /api/v1/cart
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	if err := h.service.ClearCart(r.Context()); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
