package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/shukshop/storefront/internal/domain/cart"
	"github.com/shukshop/storefront/internal/domain/coupon"
	"github.com/shukshop/storefront/internal/domain/pricing"
	"github.com/shukshop/storefront/internal/domain/product"
)

// Validation failures. These block checkout without being exceptional:
// the client fixes its input and retries.
var (
	ErrEmptyCart        = errors.New("cart is empty")
	ErrTermsNotAccepted = errors.New("terms must be accepted")
	ErrBelowMinimum     = errors.New("order total below minimum purchase")
	ErrAmountMismatch   = errors.New("captured amount does not match order total")
	ErrItemsMismatch    = errors.New("submitted items do not match the cart")
	ErrItemsUnavailable = errors.New("cart contains products that are no longer available")
)

// CouponRejectedError indicates the submitted coupon code did not resolve
// to an applicable coupon.
type CouponRejectedError struct {
	Code   string
	Status coupon.Status
}

func (e *CouponRejectedError) Error() string {
	return fmt.Sprintf("coupon %q rejected: %s", e.Code, e.Status)
}

// VerificationError wraps a payment verifier failure so transport can
// distinguish processor rejections from local validation.
type VerificationError struct {
	Err error
}

func (e *VerificationError) Error() string {
	return "verify payment: " + e.Err.Error()
}

func (e *VerificationError) Unwrap() error {
	return e.Err
}

// amountTolerance absorbs float rounding between our decimal arithmetic
// and the processor's reported amount.
var amountTolerance = decimal.RequireFromString("0.02")

// ItemSubmission is the client's view of one cart line at checkout time.
type ItemSubmission struct {
	ProductID string
	Quantity  int
}

// CheckoutRequest holds the input for placing an order. Items is optional:
// when present, it is cross-checked against the durable cart so an order is
// never placed for contents the shopper is no longer looking at.
type CheckoutRequest struct {
	SessionID      string
	PayPalOrderID  string
	CouponCode     string
	ShippingMethod pricing.ShippingMethod
	TermsAccepted  bool
	Items          []ItemSubmission
	Customer       Customer
}

// Service encapsulates the checkout flow: price the session's cart, verify
// the payment capture with the processor, persist the order snapshot, and
// fan out notifications.
type Service struct {
	carts     *cart.Service
	products  product.Repository
	coupons   coupon.Resolver
	orders    Repository
	verifier  PaymentVerifier
	notifiers []Notifier
	pricing   pricing.Config
	lg        *zap.Logger
	now       func() time.Time
}

// NewService creates an order Service with the required collaborators.
// Notifiers may be empty.
func NewService(
	carts *cart.Service,
	products product.Repository,
	coupons coupon.Resolver,
	orders Repository,
	verifier PaymentVerifier,
	notifiers []Notifier,
	pricingCfg pricing.Config,
	lg *zap.Logger,
) *Service {
	return &Service{
		carts:     carts,
		products:  products,
		coupons:   coupons,
		orders:    orders,
		verifier:  verifier,
		notifiers: notifiers,
		pricing:   pricingCfg,
		lg:        lg,
		now:       time.Now,
	}
}

// reconcileItems verifies that the client's submitted items are exactly the
// durable cart: same products, same quantities. A mismatch means the shopper
// is checking out a stale view, perhaps from another tab.
func reconcileItems(c *cart.Cart, submitted []ItemSubmission) error {
	if len(submitted) != len(c.Items) {
		return ErrItemsMismatch
	}
	want := make(map[string]int, len(c.Items))
	for _, it := range c.Items {
		want[it.ProductID] = it.Quantity
	}
	for _, it := range submitted {
		q, ok := want[it.ProductID]
		if !ok || q != it.Quantity {
			return ErrItemsMismatch
		}
		delete(want, it.ProductID)
	}
	return nil
}

// checkAvailability re-reads the cart's products from the catalog. Items
// pass availability checks when added, but a product can be deactivated
// between then and checkout.
func (s *Service) checkAvailability(ctx context.Context, c *cart.Cart) error {
	ids := make([]string, len(c.Items))
	for i, it := range c.Items {
		ids[i] = it.ProductID
	}
	products, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return errors.Wrap(err, "load cart products")
	}
	available := make(map[string]bool, len(products))
	for _, p := range products {
		available[p.ID] = p.IsAvailable
	}
	for _, it := range c.Items {
		if !available[it.ProductID] {
			return ErrItemsUnavailable
		}
	}
	return nil
}

// Quote prices the session's current cart with an optional coupon code and
// shipping method. It is side-effect free and re-derivable at any time.
func (s *Service) Quote(ctx context.Context, sessionID, couponCode string, method pricing.ShippingMethod) (pricing.Quote, coupon.Resolution, error) {
	subtotal, err := s.carts.Subtotal(ctx, sessionID)
	if err != nil {
		return pricing.Quote{}, coupon.Resolution{}, err
	}

	res, err := s.coupons.Resolve(ctx, couponCode, subtotal)
	if err != nil {
		return pricing.Quote{}, coupon.Resolution{}, err
	}

	return pricing.Calculate(s.pricing, subtotal, res.Discount, method), res, nil
}

// Checkout verifies the client-reported payment, recomputes the total from
// the durable cart state, and records the order. The recorded total is the
// server's, never the client's; a capture that disagrees beyond a small
// tolerance rejects the order.
func (s *Service) Checkout(ctx context.Context, req CheckoutRequest) (*Order, error) {
	if !req.TermsAccepted {
		return nil, ErrTermsNotAccepted
	}

	c, err := s.carts.Get(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	if len(c.Items) == 0 {
		return nil, ErrEmptyCart
	}
	if len(req.Items) > 0 {
		if err := reconcileItems(c, req.Items); err != nil {
			return nil, err
		}
	}
	if err := s.checkAvailability(ctx, c); err != nil {
		return nil, err
	}

	subtotal := c.Subtotal()
	res, err := s.coupons.Resolve(ctx, req.CouponCode, subtotal)
	if err != nil {
		return nil, errors.Wrap(err, "resolve coupon")
	}
	if req.CouponCode != "" && !res.Applied() {
		return nil, &CouponRejectedError{Code: req.CouponCode, Status: res.Status}
	}

	quote := pricing.Calculate(s.pricing, subtotal, res.Discount, req.ShippingMethod)
	if !quote.MeetsMinimum {
		return nil, ErrBelowMinimum
	}

	capture, err := s.verifier.VerifyOrder(ctx, req.PayPalOrderID)
	if err != nil {
		return nil, &VerificationError{Err: err}
	}

	if capture.Amount.Sub(quote.FinalTotal).Abs().GreaterThan(amountTolerance) {
		return nil, ErrAmountMismatch
	}

	items := make([]Item, len(c.Items))
	for i, it := range c.Items {
		items[i] = Item{
			ProductID: it.ProductID,
			Name:      it.Name,
			UnitPrice: it.UnitPrice,
			Quantity:  it.Quantity,
		}
	}

	couponCode := ""
	if res.Applied() {
		couponCode = res.Code
	}

	o := &Order{
		ID:             uuid.New().String(),
		TransactionID:  capture.CaptureID,
		Items:          items,
		CouponCode:     couponCode,
		DiscountAmount: quote.Discount,
		ShippingMethod: req.ShippingMethod,
		ShippingCost:   quote.ShippingCost,
		FinalTotal:     quote.FinalTotal,
		Customer:       req.Customer,
		Status:         StatusPaid,
		CreatedAt:      s.now().UTC(),
	}
	if err := s.orders.Create(ctx, o); err != nil {
		return nil, errors.Wrap(err, "create order")
	}

	// The payment is captured and the order recorded; cart cleanup and
	// notifications must not fail the checkout.
	if err := s.carts.Clear(ctx, req.SessionID); err != nil {
		s.lg.Warn("clear cart after checkout", zap.String("session_id", req.SessionID), zap.Error(err))
	}
	for _, n := range s.notifiers {
		if err := n.OrderCreated(ctx, o); err != nil {
			s.lg.Error("order notification", zap.String("order_id", o.ID), zap.Error(err))
		}
	}

	return o, nil
}
