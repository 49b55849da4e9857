package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/shukshop/storefront/internal/domain/pricing"
)

// Status tracks back-office fulfillment progress. Everything else on an
// order is immutable once the payment is captured.
type Status string

const (
	StatusPaid      Status = "paid"
	StatusPreparing Status = "preparing"
	StatusShipped   Status = "shipped"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
)

// ParseStatus validates a wire-level status string.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPaid, StatusPreparing, StatusShipped, StatusDelivered, StatusCancelled:
		return Status(s), nil
	default:
		return "", errors.Errorf("unknown order status %q", s)
	}
}

// ErrNotFound is returned when a requested order does not exist.
var ErrNotFound = errors.New("order not found")

// Item is a denormalized order line: name and unit price are copied from
// the cart at capture time, not referenced.
type Item struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
}

// Customer holds the contact details recorded with an order.
type Customer struct {
	Name  string
	Email string
	Phone string
}

// Order is the immutable snapshot created at successful payment capture.
type Order struct {
	ID             string
	TransactionID  string
	Items          []Item
	CouponCode     string
	DiscountAmount decimal.Decimal
	ShippingMethod pricing.ShippingMethod
	ShippingCost   decimal.Decimal
	FinalTotal     decimal.Decimal
	Customer       Customer
	Status         Status
	CreatedAt      time.Time
}

// Repository defines persistence operations for orders.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id string) (*Order, error)
	// List returns orders newest first.
	List(ctx context.Context) ([]Order, error)
	UpdateStatus(ctx context.Context, id string, status Status) error
}

// Capture is the server-verified payment result for a checkout.
type Capture struct {
	CaptureID  string
	Amount     decimal.Decimal
	Currency   string
	PayerName  string
	PayerEmail string
	CreateTime time.Time
}

// PaymentVerifier confirms a client-reported payment with the processor and
// returns the captured amount. Implementations must only return a Capture
// for completed payments.
type PaymentVerifier interface {
	VerifyOrder(ctx context.Context, paypalOrderID string) (*Capture, error)
}

// Notifier is told about recorded orders (confirmation e-mails, fulfillment
// events). Notifier failures never fail the order.
type Notifier interface {
	OrderCreated(ctx context.Context, o *Order) error
}
