// Package handler implements the HTTP surface: the public storefront API,
// the back-office admin API, and the JSON plumbing shared between them.
package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shukshop/storefront/internal/domain/cart"
	"github.com/shukshop/storefront/internal/domain/coupon"
	"github.com/shukshop/storefront/internal/domain/order"
	"github.com/shukshop/storefront/internal/domain/product"
	"github.com/shukshop/storefront/pkg/httpmiddleware"
)

// SessionHeader carries the shopper's session identifier. Fresh visitors
// get one assigned on their first response.
const SessionHeader = "X-Session-ID"

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// ImageBaseURL is prepended to relative image paths in product
	// responses. When empty, paths are returned as stored.
	ImageBaseURL string

	// Cooldowns between repeated mutating actions from one session.
	AddToCartCooldown   time.Duration
	ApplyCouponCooldown time.Duration
	CheckoutCooldown    time.Duration
}

// Handler serves the storefront routes, delegating business logic to the
// domain services and repositories.
type Handler struct {
	cfg        Config
	products   product.Repository
	categories product.CategoryRepository
	coupons    coupon.Repository
	carts      *cart.Service
	orders     *order.Service
	orderRepo  order.Repository
	security   *Security
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	cfg Config,
	products product.Repository,
	categories product.CategoryRepository,
	coupons coupon.Repository,
	carts *cart.Service,
	orders *order.Service,
	orderRepo order.Repository,
	security *Security,
) *Handler {
	return &Handler{
		cfg:        cfg,
		products:   products,
		categories: categories,
		coupons:    coupons,
		carts:      carts,
		orders:     orders,
		orderRepo:  orderRepo,
		security:   security,
	}
}

// Routes registers every route on mux. Mutating storefront actions are
// throttled per session through cooldowns.
func (h *Handler) Routes(mux *http.ServeMux, cooldowns *httpmiddleware.CooldownLimiter) {
	// Public catalog.
	mux.HandleFunc("GET /api/products", h.handleListProducts)
	mux.HandleFunc("GET /api/products/{id}", h.handleGetProduct)
	mux.HandleFunc("GET /api/categories", h.handleListCategories)

	// Cart.
	mux.HandleFunc("GET /api/cart", h.handleGetCart)
	mux.Handle("POST /api/cart/items",
		cooldowns.Limit("add_to_cart", h.cfg.AddToCartCooldown)(http.HandlerFunc(h.handleAddCartItem)))
	mux.HandleFunc("POST /api/cart/items/{id}/decrement", h.handleDecrementCartItem)
	mux.HandleFunc("DELETE /api/cart/items/{id}", h.handleRemoveCartItem)
	mux.HandleFunc("DELETE /api/cart", h.handleClearCart)

	// Pricing and checkout.
	mux.Handle("POST /api/quote",
		cooldowns.Limit("apply_coupon", h.cfg.ApplyCouponCooldown)(http.HandlerFunc(h.handleQuote)))
	mux.Handle("POST /api/checkout",
		cooldowns.Limit("checkout", h.cfg.CheckoutCooldown)(http.HandlerFunc(h.handleCheckout)))

	// Back office.
	mux.HandleFunc("POST /api/admin/products", h.requireAdmin(h.handleCreateProduct))
	mux.HandleFunc("PUT /api/admin/products/{id}", h.requireAdmin(h.handleUpdateProduct))
	mux.HandleFunc("DELETE /api/admin/products/{id}", h.requireAdmin(h.handleDeleteProduct))
	mux.HandleFunc("POST /api/admin/categories", h.requireAdmin(h.handleCreateCategory))
	mux.HandleFunc("PUT /api/admin/categories/{id}", h.requireAdmin(h.handleUpdateCategory))
	mux.HandleFunc("DELETE /api/admin/categories/{id}", h.requireAdmin(h.handleDeleteCategory))
	mux.HandleFunc("GET /api/admin/coupons", h.requireAdmin(h.handleListCoupons))
	mux.HandleFunc("POST /api/admin/coupons", h.requireAdmin(h.handleCreateCoupon))
	mux.HandleFunc("PUT /api/admin/coupons/{code}", h.requireAdmin(h.handleUpdateCoupon))
	mux.HandleFunc("DELETE /api/admin/coupons/{code}", h.requireAdmin(h.handleDeactivateCoupon))
	mux.HandleFunc("GET /api/admin/orders", h.requireAdmin(h.handleListOrders))
	mux.HandleFunc("GET /api/admin/orders/{id}", h.requireAdmin(h.handleGetOrder))
	mux.HandleFunc("PUT /api/admin/orders/{id}/status", h.requireAdmin(h.handleUpdateOrderStatus))
}

// SessionKeyFunc keys cooldowns by session id, falling back to the remote
// address for clients that never sent one.
func SessionKeyFunc(r *http.Request) string {
	if id := r.Header.Get(SessionHeader); id != "" {
		return id
	}
	return r.RemoteAddr
}

// sessionID returns the request's session id, minting one for fresh
// visitors. The id is always echoed on the response so the client can
// persist it.
func sessionID(w http.ResponseWriter, r *http.Request) string {
	id := r.Header.Get(SessionHeader)
	if id == "" || len(id) > 128 {
		id = uuid.New().String()
	}
	w.Header().Set(SessionHeader, id)
	return id
}

// errorResponse is the JSON body for every non-2xx response.
type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Code: status, Message: message})
}

// writeInternal logs err and responds 500 without leaking details.
func writeInternal(w http.ResponseWriter, r *http.Request, err error) {
	zctx.From(r.Context()).Error("Request failed",
		zap.String("path", r.URL.Path),
		zap.Error(err),
	)
	writeError(w, http.StatusInternalServerError, "internal error")
}

// decodeBody decodes a JSON request body into v, rejecting unknown fields.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
