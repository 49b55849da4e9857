package order

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/shukshop/storefront/internal/domain/cart"
	"github.com/shukshop/storefront/internal/domain/coupon"
	"github.com/shukshop/storefront/internal/domain/pricing"
	"github.com/shukshop/storefront/internal/domain/product"
)

// --- Mock implementations ---

type memCartRepo struct {
	carts map[string]*cart.Cart
}

func (m *memCartRepo) Get(_ context.Context, sessionID string) (*cart.Cart, error) {
	c, ok := m.carts[sessionID]
	if !ok {
		return nil, cart.ErrNotFound
	}
	return c, nil
}

func (m *memCartRepo) Put(_ context.Context, c *cart.Cart) error {
	m.carts[c.SessionID] = c
	return nil
}

func (m *memCartRepo) Delete(_ context.Context, sessionID string) error {
	if _, ok := m.carts[sessionID]; !ok {
		return cart.ErrNotFound
	}
	delete(m.carts, sessionID)
	return nil
}

// stubProductRepo treats every id as an available product unless it is
// listed in unavailable.
type stubProductRepo struct {
	unavailable map[string]bool
}

func (*stubProductRepo) List(context.Context, product.Filter) ([]product.Product, error) {
	return nil, nil
}
func (*stubProductRepo) GetByID(context.Context, string) (*product.Product, error) {
	return nil, product.ErrNotFound
}
func (s *stubProductRepo) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	out := make([]product.Product, len(ids))
	for i, id := range ids {
		out[i] = product.Product{ID: id, IsAvailable: !s.unavailable[id]}
	}
	return out, nil
}
func (*stubProductRepo) Create(context.Context, *product.Product) error { return nil }
func (*stubProductRepo) Update(context.Context, *product.Product) error { return nil }
func (*stubProductRepo) Delete(context.Context, string) error           { return nil }

type stubResolver struct {
	res coupon.Resolution
	err error
}

func (s *stubResolver) Resolve(_ context.Context, code string, subtotal decimal.Decimal) (coupon.Resolution, error) {
	if s.err != nil {
		return coupon.Resolution{}, s.err
	}
	if code == "" {
		return coupon.Resolution{Status: coupon.StatusNone, Discount: decimal.Zero}, nil
	}
	return s.res, nil
}

type mockOrderRepo struct {
	created *Order
	err     error
}

func (m *mockOrderRepo) Create(_ context.Context, o *Order) error {
	m.created = o
	return m.err
}

func (m *mockOrderRepo) GetByID(context.Context, string) (*Order, error) { return nil, ErrNotFound }
func (m *mockOrderRepo) List(context.Context) ([]Order, error)           { return nil, nil }
func (m *mockOrderRepo) UpdateStatus(context.Context, string, Status) error {
	return nil
}

type mockVerifier struct {
	capture *Capture
	err     error
	askedID string
}

func (m *mockVerifier) VerifyOrder(_ context.Context, paypalOrderID string) (*Capture, error) {
	m.askedID = paypalOrderID
	return m.capture, m.err
}

type mockNotifier struct {
	notified []*Order
	err      error
}

func (m *mockNotifier) OrderCreated(_ context.Context, o *Order) error {
	m.notified = append(m.notified, o)
	return m.err
}

// --- Helpers ---

type fixture struct {
	svc      *Service
	cartRepo *memCartRepo
	products *stubProductRepo
	orders   *mockOrderRepo
	verifier *mockVerifier
	notifier *mockNotifier
}

func newFixture(t *testing.T, resolver coupon.Resolver, verifier *mockVerifier) *fixture {
	t.Helper()

	cartRepo := &memCartRepo{carts: make(map[string]*cart.Cart)}
	products := &stubProductRepo{unavailable: make(map[string]bool)}
	orders := &mockOrderRepo{}
	notifier := &mockNotifier{}

	svc := NewService(
		cart.NewService(cartRepo, products),
		products,
		resolver,
		orders,
		verifier,
		[]Notifier{notifier},
		pricing.Config{
			FreeShippingThreshold: decimal.NewFromInt(200),
			FlatShippingFee:       decimal.NewFromInt(20),
			MinimumPurchase:       decimal.NewFromInt(100),
		},
		zaptest.NewLogger(t),
	)
	svc.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	return &fixture{svc: svc, cartRepo: cartRepo, products: products, orders: orders, verifier: verifier, notifier: notifier}
}

func (f *fixture) seedCart(sessionID string, items ...cart.Item) {
	f.cartRepo.carts[sessionID] = &cart.Cart{SessionID: sessionID, Items: items}
}

func save10() *stubResolver {
	return &stubResolver{res: coupon.Resolution{
		Status:        coupon.StatusApplied,
		Code:          "SAVE10",
		PercentageOff: 10,
		Discount:      decimal.NewFromInt(15),
	}}
}

func checkoutReq() CheckoutRequest {
	return CheckoutRequest{
		SessionID:      "s1",
		PayPalOrderID:  "PAYPAL-1",
		ShippingMethod: pricing.ShippingDelivery,
		TermsAccepted:  true,
		Customer:       Customer{Name: "Noa Levi", Email: "noa@example.com", Phone: "050-0000000"},
	}
}

// --- Tests ---

func TestCheckout_TermsNotAccepted(t *testing.T) {
	f := newFixture(t, &stubResolver{}, &mockVerifier{})

	req := checkoutReq()
	req.TermsAccepted = false

	_, err := f.svc.Checkout(context.Background(), req)
	require.ErrorIs(t, err, ErrTermsNotAccepted)
	assert.Nil(t, f.orders.created)
}

func TestCheckout_EmptyCart(t *testing.T) {
	f := newFixture(t, &stubResolver{}, &mockVerifier{})

	_, err := f.svc.Checkout(context.Background(), checkoutReq())
	require.ErrorIs(t, err, ErrEmptyCart)
}

func TestCheckout_SubmittedItemsMatch(t *testing.T) {
	verifier := &mockVerifier{capture: &Capture{
		CaptureID: "CAP-1", Amount: decimal.NewFromInt(170), Currency: "ILS",
	}}
	f := newFixture(t, &stubResolver{}, verifier)
	f.seedCart("s1", cart.Item{ProductID: "p1", Name: "Olive oil", UnitPrice: decimal.NewFromInt(150), Quantity: 1})

	req := checkoutReq()
	req.Items = []ItemSubmission{{ProductID: "p1", Quantity: 1}}

	o, err := f.svc.Checkout(context.Background(), req)
	require.NoError(t, err)
	assert.NotNil(t, o)
}

func TestCheckout_SubmittedItemsMismatch(t *testing.T) {
	f := newFixture(t, &stubResolver{}, &mockVerifier{})
	f.seedCart("s1", cart.Item{ProductID: "p1", Name: "Olive oil", UnitPrice: decimal.NewFromInt(150), Quantity: 1})

	for name, items := range map[string][]ItemSubmission{
		"wrong quantity":  {{ProductID: "p1", Quantity: 2}},
		"wrong product":   {{ProductID: "p2", Quantity: 1}},
		"extra line":      {{ProductID: "p1", Quantity: 1}, {ProductID: "p2", Quantity: 1}},
		"duplicated line": {{ProductID: "p1", Quantity: 1}, {ProductID: "p1", Quantity: 1}},
	} {
		t.Run(name, func(t *testing.T) {
			req := checkoutReq()
			req.Items = items

			_, err := f.svc.Checkout(context.Background(), req)
			require.ErrorIs(t, err, ErrItemsMismatch)
			assert.Empty(t, f.verifier.askedID)
			assert.Nil(t, f.orders.created)
		})
	}
}

func TestCheckout_ProductNoLongerAvailable(t *testing.T) {
	f := newFixture(t, &stubResolver{}, &mockVerifier{})
	f.seedCart("s1", cart.Item{ProductID: "p1", Name: "Olive oil", UnitPrice: decimal.NewFromInt(150), Quantity: 1})
	f.products.unavailable["p1"] = true

	_, err := f.svc.Checkout(context.Background(), checkoutReq())
	require.ErrorIs(t, err, ErrItemsUnavailable)
	assert.Empty(t, f.verifier.askedID)
}

func TestCheckout_CouponRejected(t *testing.T) {
	resolver := &stubResolver{res: coupon.Resolution{
		Status: coupon.StatusExpired, Code: "OLD10", Discount: decimal.Zero,
	}}
	f := newFixture(t, resolver, &mockVerifier{})
	f.seedCart("s1", cart.Item{ProductID: "p1", Name: "Olive oil", UnitPrice: decimal.NewFromInt(150), Quantity: 1})

	req := checkoutReq()
	req.CouponCode = "OLD10"

	_, err := f.svc.Checkout(context.Background(), req)

	var crErr *CouponRejectedError
	require.ErrorAs(t, err, &crErr)
	assert.Equal(t, coupon.StatusExpired, crErr.Status)
	assert.Nil(t, f.orders.created)
}

func TestCheckout_BelowMinimumPurchase(t *testing.T) {
	f := newFixture(t, &stubResolver{}, &mockVerifier{})
	f.seedCart("s1", cart.Item{ProductID: "p1", Name: "Tahini", UnitPrice: decimal.NewFromInt(50), Quantity: 1})

	req := checkoutReq()
	req.ShippingMethod = pricing.ShippingPickup

	_, err := f.svc.Checkout(context.Background(), req)
	require.ErrorIs(t, err, ErrBelowMinimum)
	// Payment is never consulted for an order that cannot proceed.
	assert.Empty(t, f.verifier.askedID)
}

func TestCheckout_PaymentVerificationFails(t *testing.T) {
	verifier := &mockVerifier{err: errors.New("paypal unavailable")}
	f := newFixture(t, &stubResolver{}, verifier)
	f.seedCart("s1", cart.Item{ProductID: "p1", Name: "Olive oil", UnitPrice: decimal.NewFromInt(150), Quantity: 1})

	_, err := f.svc.Checkout(context.Background(), checkoutReq())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "verify payment")
	assert.Nil(t, f.orders.created)
}

func TestCheckout_AmountMismatch(t *testing.T) {
	// Cart 150, no coupon, delivery below threshold: server total 170.
	verifier := &mockVerifier{capture: &Capture{
		CaptureID: "CAP-1", Amount: decimal.NewFromInt(150), Currency: "ILS",
	}}
	f := newFixture(t, &stubResolver{}, verifier)
	f.seedCart("s1", cart.Item{ProductID: "p1", Name: "Olive oil", UnitPrice: decimal.NewFromInt(150), Quantity: 1})

	_, err := f.svc.Checkout(context.Background(), checkoutReq())
	require.ErrorIs(t, err, ErrAmountMismatch)
	assert.Nil(t, f.orders.created)
}

func TestCheckout_Success(t *testing.T) {
	// Subtotal 150, SAVE10 → discount 15, after-discount 135 < 200 threshold,
	// delivery fee 20 → final 155.
	verifier := &mockVerifier{capture: &Capture{
		CaptureID: "CAP-42", Amount: decimal.NewFromInt(155), Currency: "ILS",
	}}
	f := newFixture(t, save10(), verifier)
	f.seedCart("s1",
		cart.Item{ProductID: "p1", Name: "Olive oil", UnitPrice: decimal.NewFromInt(30), Quantity: 5},
	)

	req := checkoutReq()
	req.CouponCode = "SAVE10"

	o, err := f.svc.Checkout(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "CAP-42", o.TransactionID)
	assert.Equal(t, "SAVE10", o.CouponCode)
	assert.True(t, decimal.NewFromInt(15).Equal(o.DiscountAmount))
	assert.Equal(t, pricing.ShippingDelivery, o.ShippingMethod)
	assert.True(t, decimal.NewFromInt(20).Equal(o.ShippingCost))
	assert.True(t, decimal.NewFromInt(155).Equal(o.FinalTotal))
	assert.Equal(t, StatusPaid, o.Status)
	require.Len(t, o.Items, 1)
	assert.Equal(t, 5, o.Items[0].Quantity)

	// Order persisted, cart cleared, notifier told.
	assert.Same(t, o, f.orders.created)
	assert.NotContains(t, f.cartRepo.carts, "s1")
	require.Len(t, f.notifier.notified, 1)
}

func TestCheckout_AmountWithinTolerance(t *testing.T) {
	verifier := &mockVerifier{capture: &Capture{
		CaptureID: "CAP-1", Amount: decimal.RequireFromString("169.99"),
	}}
	f := newFixture(t, &stubResolver{}, verifier)
	f.seedCart("s1", cart.Item{ProductID: "p1", Name: "Olive oil", UnitPrice: decimal.NewFromInt(150), Quantity: 1})

	// Server total 170; 169.99 is within the ±0.02 tolerance.
	_, err := f.svc.Checkout(context.Background(), checkoutReq())
	require.NoError(t, err)
}

func TestCheckout_NotifierFailureDoesNotFailOrder(t *testing.T) {
	verifier := &mockVerifier{capture: &Capture{
		CaptureID: "CAP-1", Amount: decimal.NewFromInt(170),
	}}
	f := newFixture(t, &stubResolver{}, verifier)
	f.notifier.err = errors.New("smtp down")
	f.seedCart("s1", cart.Item{ProductID: "p1", Name: "Olive oil", UnitPrice: decimal.NewFromInt(150), Quantity: 1})

	o, err := f.svc.Checkout(context.Background(), checkoutReq())
	require.NoError(t, err)
	assert.NotNil(t, o)
}

func TestCheckout_OrderCreateError(t *testing.T) {
	verifier := &mockVerifier{capture: &Capture{
		CaptureID: "CAP-1", Amount: decimal.NewFromInt(170),
	}}
	f := newFixture(t, &stubResolver{}, verifier)
	f.orders.err = errors.New("db write failed")
	f.seedCart("s1", cart.Item{ProductID: "p1", Name: "Olive oil", UnitPrice: decimal.NewFromInt(150), Quantity: 1})

	_, err := f.svc.Checkout(context.Background(), checkoutReq())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create order")
	// Nothing downstream of the failed write runs.
	assert.Empty(t, f.notifier.notified)
	assert.Contains(t, f.cartRepo.carts, "s1")
}

func TestQuote(t *testing.T) {
	f := newFixture(t, save10(), &mockVerifier{})
	f.seedCart("s1", cart.Item{ProductID: "p1", Name: "Olive oil", UnitPrice: decimal.NewFromInt(30), Quantity: 5})

	q, res, err := f.svc.Quote(context.Background(), "s1", "SAVE10", pricing.ShippingDelivery)
	require.NoError(t, err)
	assert.Equal(t, coupon.StatusApplied, res.Status)
	assert.True(t, decimal.NewFromInt(155).Equal(q.FinalTotal))

	// Fresh session quotes an empty cart without error.
	q, res, err = f.svc.Quote(context.Background(), "nobody", "", pricing.ShippingPickup)
	require.NoError(t, err)
	assert.Equal(t, coupon.StatusNone, res.Status)
	assert.True(t, decimal.Zero.Equal(q.FinalTotal))
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus("shipped")
	require.NoError(t, err)
	assert.Equal(t, StatusShipped, s)

	_, err = ParseStatus("teleported")
	require.Error(t, err)
}
