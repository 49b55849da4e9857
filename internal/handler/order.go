package handler

import (
	"net/http"
	"time"

	"github.com/go-faster/errors"

	"github.com/shukshop/storefront/internal/domain/coupon"
	"github.com/shukshop/storefront/internal/domain/order"
	"github.com/shukshop/storefront/internal/domain/pricing"
	"github.com/shukshop/storefront/internal/paypal"
)

type quoteRequest struct {
	CouponCode     string `json:"coupon_code"`
	ShippingMethod string `json:"shipping_method"`
}

type couponResultResponse struct {
	Status        string  `json:"status"`
	Code          string  `json:"code,omitempty"`
	PercentageOff int     `json:"percentage_off,omitempty"`
	Discount      float64 `json:"discount"`
}

type quoteResponse struct {
	Subtotal           float64              `json:"subtotal"`
	Discount           float64              `json:"discount"`
	TotalAfterDiscount float64              `json:"total_after_discount"`
	ShippingMethod     string               `json:"shipping_method"`
	ShippingCost       float64              `json:"shipping_cost"`
	FinalTotal         float64              `json:"final_total"`
	MeetsMinimum       bool                 `json:"meets_minimum"`
	Coupon             couponResultResponse `json:"coupon"`
}

func toQuoteResponse(q pricing.Quote, res coupon.Resolution) quoteResponse {
	return quoteResponse{
		Subtotal:           q.Subtotal.InexactFloat64(),
		Discount:           q.Discount.InexactFloat64(),
		TotalAfterDiscount: q.TotalAfterDiscount.InexactFloat64(),
		ShippingMethod:     string(q.ShippingMethod),
		ShippingCost:       q.ShippingCost.InexactFloat64(),
		FinalTotal:         q.FinalTotal.InexactFloat64(),
		MeetsMinimum:       q.MeetsMinimum,
		Coupon: couponResultResponse{
			Status:        string(res.Status),
			Code:          res.Code,
			PercentageOff: res.PercentageOff,
			Discount:      res.Discount.InexactFloat64(),
		},
	}
}

// handleQuote prices the session's cart with an optional coupon and shipping
// method. Quoting never mutates anything; the client calls it after every
// cart or coupon change.
func (h *Handler) handleQuote(w http.ResponseWriter, r *http.Request) {
	sid := sessionID(w, r)

	var req quoteRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	method, err := pricing.ParseShippingMethod(req.ShippingMethod)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unknown shipping method")
		return
	}

	quote, res, err := h.orders.Quote(r.Context(), sid, req.CouponCode, method)
	if err != nil {
		writeInternal(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toQuoteResponse(quote, res))
}

type checkoutCustomer struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

type checkoutItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type checkoutRequest struct {
	PayPalOrderID  string                `json:"paypal_order_id"`
	CouponCode     string                `json:"coupon_code"`
	ShippingMethod string                `json:"shipping_method"`
	TermsAccepted  bool                  `json:"terms_accepted"`
	Items          []checkoutItemRequest `json:"items"`
	Customer       checkoutCustomer      `json:"customer"`
}

type orderItemResponse struct {
	ProductID string  `json:"product_id"`
	Name      string  `json:"name"`
	UnitPrice float64 `json:"unit_price"`
	Quantity  int     `json:"quantity"`
}

type orderResponse struct {
	ID             string              `json:"id"`
	TransactionID  string              `json:"transaction_id"`
	Items          []orderItemResponse `json:"items"`
	CouponCode     string              `json:"coupon_code,omitempty"`
	DiscountAmount float64             `json:"discount_amount"`
	ShippingMethod string              `json:"shipping_method"`
	ShippingCost   float64             `json:"shipping_cost"`
	FinalTotal     float64             `json:"final_total"`
	CustomerName   string              `json:"customer_name"`
	CustomerEmail  string              `json:"customer_email"`
	CustomerPhone  string              `json:"customer_phone,omitempty"`
	Status         string              `json:"status"`
	CreatedAt      time.Time           `json:"created_at"`
}

func toOrderResponse(o *order.Order) orderResponse {
	items := make([]orderItemResponse, len(o.Items))
	for i, it := range o.Items {
		items[i] = orderItemResponse{
			ProductID: it.ProductID,
			Name:      it.Name,
			UnitPrice: it.UnitPrice.InexactFloat64(),
			Quantity:  it.Quantity,
		}
	}
	return orderResponse{
		ID:             o.ID,
		TransactionID:  o.TransactionID,
		Items:          items,
		CouponCode:     o.CouponCode,
		DiscountAmount: o.DiscountAmount.InexactFloat64(),
		ShippingMethod: string(o.ShippingMethod),
		ShippingCost:   o.ShippingCost.InexactFloat64(),
		FinalTotal:     o.FinalTotal.InexactFloat64(),
		CustomerName:   o.Customer.Name,
		CustomerEmail:  o.Customer.Email,
		CustomerPhone:  o.Customer.Phone,
		Status:         string(o.Status),
		CreatedAt:      o.CreatedAt,
	}
}

// handleCheckout verifies the client-reported payment against the processor
// and records the order. The recorded total is recomputed server-side from
// the durable cart, never taken from the client; a submitted items list is
// only a staleness cross-check.
func (h *Handler) handleCheckout(w http.ResponseWriter, r *http.Request) {
	sid := sessionID(w, r)

	var req checkoutRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.PayPalOrderID == "" {
		writeError(w, http.StatusBadRequest, "paypal_order_id is required")
		return
	}
	if req.Customer.Name == "" || req.Customer.Email == "" {
		writeError(w, http.StatusBadRequest, "customer name and email are required")
		return
	}

	method, err := pricing.ParseShippingMethod(req.ShippingMethod)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unknown shipping method")
		return
	}

	items := make([]order.ItemSubmission, len(req.Items))
	for i, it := range req.Items {
		items[i] = order.ItemSubmission{ProductID: it.ProductID, Quantity: it.Quantity}
	}

	o, err := h.orders.Checkout(r.Context(), order.CheckoutRequest{
		SessionID:      sid,
		PayPalOrderID:  req.PayPalOrderID,
		CouponCode:     req.CouponCode,
		ShippingMethod: method,
		TermsAccepted:  req.TermsAccepted,
		Items:          items,
		Customer: order.Customer{
			Name:  req.Customer.Name,
			Email: req.Customer.Email,
			Phone: req.Customer.Phone,
		},
	})
	if err != nil {
		h.writeCheckoutError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderResponse(o))
}

// writeCheckoutError maps checkout failures to the wire. Validation problems
// are 422 so the shopper can fix their input; processor failures are 502.
func (h *Handler) writeCheckoutError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, order.ErrTermsNotAccepted):
		writeError(w, http.StatusUnprocessableEntity, "terms must be accepted")
	case errors.Is(err, order.ErrEmptyCart):
		writeError(w, http.StatusUnprocessableEntity, "cart is empty")
	case errors.Is(err, order.ErrBelowMinimum):
		writeError(w, http.StatusUnprocessableEntity, "order total below minimum purchase")
	case errors.Is(err, order.ErrItemsMismatch):
		writeError(w, http.StatusUnprocessableEntity, "submitted items do not match the cart")
	case errors.Is(err, order.ErrItemsUnavailable):
		writeError(w, http.StatusUnprocessableEntity, "some items are no longer available")
	case errors.Is(err, order.ErrAmountMismatch):
		writeError(w, http.StatusUnprocessableEntity, "captured amount does not match order total")
	default:
		var rejected *order.CouponRejectedError
		if errors.As(err, &rejected) {
			writeError(w, http.StatusUnprocessableEntity, rejected.Error())
			return
		}

		var verification *order.VerificationError
		if errors.As(err, &verification) {
			if errors.Is(err, paypal.ErrNotCompleted) || errors.Is(err, paypal.ErrNoCapture) {
				writeError(w, http.StatusUnprocessableEntity, "payment not completed")
				return
			}
			writeError(w, http.StatusBadGateway, "payment verification failed")
			return
		}

		writeInternal(w, r, err)
	}
}
