package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/shukshop/storefront/internal/domain/cart"
	"github.com/shukshop/storefront/internal/domain/product"
)

type cartItemResponse struct {
	ProductID string  `json:"product_id"`
	Name      string  `json:"name"`
	UnitPrice float64 `json:"unit_price"`
	Quantity  int     `json:"quantity"`
	LineTotal float64 `json:"line_total"`
}

type cartResponse struct {
	SessionID string             `json:"session_id"`
	Items     []cartItemResponse `json:"items"`
	Subtotal  float64            `json:"subtotal"`
}

func toCartResponse(c *cart.Cart) cartResponse {
	items := make([]cartItemResponse, len(c.Items))
	for i, it := range c.Items {
		items[i] = cartItemResponse{
			ProductID: it.ProductID,
			Name:      it.Name,
			UnitPrice: it.UnitPrice.InexactFloat64(),
			Quantity:  it.Quantity,
			LineTotal: it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))).InexactFloat64(),
		}
	}
	return cartResponse{
		SessionID: c.SessionID,
		Items:     items,
		Subtotal:  c.Subtotal().InexactFloat64(),
	}
}

func (h *Handler) handleGetCart(w http.ResponseWriter, r *http.Request) {
	sid := sessionID(w, r)
	c, err := h.carts.Get(r.Context(), sid)
	if err != nil {
		writeInternal(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(c))
}

type addCartItemRequest struct {
	ProductID string `json:"product_id"`
}

func (h *Handler) handleAddCartItem(w http.ResponseWriter, r *http.Request) {
	sid := sessionID(w, r)

	var req addCartItemRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ProductID == "" {
		writeError(w, http.StatusBadRequest, "product_id is required")
		return
	}

	c, err := h.carts.Add(r.Context(), sid, req.ProductID)
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			writeError(w, http.StatusUnprocessableEntity, "product not found or unavailable")
			return
		}
		writeInternal(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(c))
}

func (h *Handler) handleDecrementCartItem(w http.ResponseWriter, r *http.Request) {
	sid := sessionID(w, r)
	c, err := h.carts.Decrement(r.Context(), sid, r.PathValue("id"))
	if err != nil {
		writeInternal(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(c))
}

func (h *Handler) handleRemoveCartItem(w http.ResponseWriter, r *http.Request) {
	sid := sessionID(w, r)
	c, err := h.carts.Remove(r.Context(), sid, r.PathValue("id"))
	if err != nil {
		writeInternal(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(c))
}

func (h *Handler) handleClearCart(w http.ResponseWriter, r *http.Request) {
	sid := sessionID(w, r)
	if err := h.carts.Clear(r.Context(), sid); err != nil {
		writeInternal(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(&cart.Cart{SessionID: sid}))
}
