package handler

import (
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/shukshop/storefront/internal/domain/coupon"
	"github.com/shukshop/storefront/internal/domain/order"
	"github.com/shukshop/storefront/internal/domain/product"
)

type productRequest struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	CategoryID  string  `json:"category_id"`
	ImageURL    string  `json:"image_url"`
	IsAvailable bool    `json:"is_available"`
}

func (req *productRequest) validate() string {
	if req.Name == "" {
		return "name is required"
	}
	if req.Price <= 0 {
		return "price must be positive"
	}
	return ""
}

func (h *Handler) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusUnprocessableEntity, msg)
		return
	}
	if req.ID == "" {
		req.ID = uuid.New().String()
	}

	p := &product.Product{
		ID:          req.ID,
		Name:        req.Name,
		Description: req.Description,
		Price:       decimal.NewFromFloat(req.Price),
		CategoryID:  req.CategoryID,
		ImageURL:    req.ImageURL,
		IsAvailable: req.IsAvailable,
	}
	if err := h.products.Create(r.Context(), p); err != nil {
		writeInternal(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.toProductResponse(*p))
}

func (h *Handler) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusUnprocessableEntity, msg)
		return
	}

	p := &product.Product{
		ID:          r.PathValue("id"),
		Name:        req.Name,
		Description: req.Description,
		Price:       decimal.NewFromFloat(req.Price),
		CategoryID:  req.CategoryID,
		ImageURL:    req.ImageURL,
		IsAvailable: req.IsAvailable,
	}
	if err := h.products.Update(r.Context(), p); err != nil {
		if errors.Is(err, product.ErrNotFound) {
			writeError(w, http.StatusNotFound, "product not found")
			return
		}
		writeInternal(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toProductResponse(*p))
}

func (h *Handler) handleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.products.Delete(r.Context(), r.PathValue("id")); err != nil {
		if errors.Is(err, product.ErrNotFound) {
			writeError(w, http.StatusNotFound, "product not found")
			return
		}
		writeInternal(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type categoryRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (h *Handler) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusUnprocessableEntity, "name is required")
		return
	}
	if req.ID == "" {
		req.ID = uuid.New().String()
	}

	c := &product.Category{ID: req.ID, Name: req.Name}
	if err := h.categories.CreateCategory(r.Context(), c); err != nil {
		writeInternal(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, categoryResponse{ID: c.ID, Name: c.Name})
}

func (h *Handler) handleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusUnprocessableEntity, "name is required")
		return
	}

	c := &product.Category{ID: r.PathValue("id"), Name: req.Name}
	if err := h.categories.UpdateCategory(r.Context(), c); err != nil {
		if errors.Is(err, product.ErrCategoryNotFound) {
			writeError(w, http.StatusNotFound, "category not found")
			return
		}
		writeInternal(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, categoryResponse{ID: c.ID, Name: c.Name})
}

func (h *Handler) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := h.categories.DeleteCategory(r.Context(), r.PathValue("id")); err != nil {
		if errors.Is(err, product.ErrCategoryNotFound) {
			writeError(w, http.StatusNotFound, "category not found")
			return
		}
		writeInternal(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type couponResponse struct {
	Code          string    `json:"code"`
	PercentageOff int       `json:"percentage_off"`
	ExpiresAt     time.Time `json:"expires_at"`
	IsActive      bool      `json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
}

func toCouponResponse(c coupon.Coupon) couponResponse {
	return couponResponse{
		Code:          c.Code,
		PercentageOff: c.PercentageOff,
		ExpiresAt:     c.ExpiresAt,
		IsActive:      c.IsActive,
		CreatedAt:     c.CreatedAt,
	}
}

type couponRequest struct {
	Code          string    `json:"code"`
	PercentageOff int       `json:"percentage_off"`
	ExpiresAt     time.Time `json:"expires_at"`
	IsActive      *bool     `json:"is_active"`
}

func (req *couponRequest) validate() string {
	if req.PercentageOff < 1 || req.PercentageOff > 100 {
		return "percentage_off must be between 1 and 100"
	}
	if req.ExpiresAt.IsZero() {
		return "expires_at is required"
	}
	return ""
}

func (h *Handler) handleListCoupons(w http.ResponseWriter, r *http.Request) {
	coupons, err := h.coupons.List(r.Context())
	if err != nil {
		writeInternal(w, r, err)
		return
	}

	resp := make([]couponResponse, len(coupons))
	for i, c := range coupons {
		resp[i] = toCouponResponse(c)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleCreateCoupon(w http.ResponseWriter, r *http.Request) {
	var req couponRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Code == "" {
		writeError(w, http.StatusUnprocessableEntity, "code is required")
		return
	}
	if !coupon.WellFormedCode(req.Code) {
		writeError(w, http.StatusUnprocessableEntity, "code must contain only uppercase letters and digits")
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusUnprocessableEntity, msg)
		return
	}

	c := &coupon.Coupon{
		Code:          req.Code,
		PercentageOff: req.PercentageOff,
		ExpiresAt:     req.ExpiresAt,
		IsActive:      req.IsActive == nil || *req.IsActive,
	}
	if err := h.coupons.Create(r.Context(), c); err != nil {
		if errors.Is(err, coupon.ErrCodeExists) {
			writeError(w, http.StatusConflict, "coupon code already exists")
			return
		}
		writeInternal(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCouponResponse(*c))
}

func (h *Handler) handleUpdateCoupon(w http.ResponseWriter, r *http.Request) {
	var req couponRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusUnprocessableEntity, msg)
		return
	}

	c := &coupon.Coupon{
		Code:          r.PathValue("code"),
		PercentageOff: req.PercentageOff,
		ExpiresAt:     req.ExpiresAt,
		IsActive:      req.IsActive == nil || *req.IsActive,
	}
	if err := h.coupons.Update(r.Context(), c); err != nil {
		if errors.Is(err, coupon.ErrNotFound) {
			writeError(w, http.StatusNotFound, "coupon not found")
			return
		}
		writeInternal(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCouponResponse(*c))
}

// handleDeactivateCoupon soft-deletes a coupon: the code stays reserved and
// past orders keep referring to it. With ?hard=true the row is removed
// outright, freeing the code for reuse.
func (h *Handler) handleDeactivateCoupon(w http.ResponseWriter, r *http.Request) {
	remove := h.coupons.Deactivate
	if r.URL.Query().Get("hard") == "true" {
		remove = h.coupons.Delete
	}
	if err := remove(r.Context(), r.PathValue("code")); err != nil {
		if errors.Is(err, coupon.ErrNotFound) {
			writeError(w, http.StatusNotFound, "coupon not found")
			return
		}
		writeInternal(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orderRepo.List(r.Context())
	if err != nil {
		writeInternal(w, r, err)
		return
	}

	resp := make([]orderResponse, len(orders))
	for i := range orders {
		resp[i] = toOrderResponse(&orders[i])
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orderRepo.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			writeError(w, http.StatusNotFound, "order not found")
			return
		}
		writeInternal(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

type updateOrderStatusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) handleUpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req updateOrderStatusRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	status, err := order.ParseStatus(req.Status)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "unknown order status")
		return
	}

	id := r.PathValue("id")
	if err := h.orderRepo.UpdateStatus(r.Context(), id, status); err != nil {
		if errors.Is(err, order.ErrNotFound) {
			writeError(w, http.StatusNotFound, "order not found")
			return
		}
		writeInternal(w, r, err)
		return
	}

	o, err := h.orderRepo.GetByID(r.Context(), id)
	if err != nil {
		writeInternal(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}
