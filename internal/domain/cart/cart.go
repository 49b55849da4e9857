package cart

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when no cart exists for a session.
var ErrNotFound = errors.New("cart not found")

// Item is a single cart line. Quantity is always ≥ 1 in a stored cart:
// a line reaching zero is removed, never persisted.
type Item struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
}

// Cart is the set of line items for one shopper session.
type Cart struct {
	SessionID string
	Items     []Item
	UpdatedAt time.Time
}

// Subtotal returns the sum of unit price × quantity across all lines.
func (c *Cart) Subtotal() decimal.Decimal {
	sum := decimal.Zero
	for _, it := range c.Items {
		sum = sum.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return sum
}

// find returns the index of the line for productID, or -1.
func (c *Cart) find(productID string) int {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			return i
		}
	}
	return -1
}

// Add inserts a new line at quantity 1 or increments an existing one.
// Name and unit price are snapshotted on first insert.
func (c *Cart) Add(productID, name string, unitPrice decimal.Decimal) {
	if i := c.find(productID); i >= 0 {
		c.Items[i].Quantity++
		return
	}
	c.Items = append(c.Items, Item{
		ProductID: productID,
		Name:      name,
		UnitPrice: unitPrice,
		Quantity:  1,
	})
}

// Decrement lowers the line's quantity by one, removing it when it reaches
// zero. Decrementing an absent product is a no-op.
func (c *Cart) Decrement(productID string) {
	i := c.find(productID)
	if i < 0 {
		return
	}
	c.Items[i].Quantity--
	if c.Items[i].Quantity <= 0 {
		c.Items = append(c.Items[:i], c.Items[i+1:]...)
	}
}

// Remove deletes the line regardless of quantity.
func (c *Cart) Remove(productID string) {
	if i := c.find(productID); i >= 0 {
		c.Items = append(c.Items[:i], c.Items[i+1:]...)
	}
}

// Clear empties the cart.
func (c *Cart) Clear() {
	c.Items = nil
}

// Repository persists cart documents keyed by session id. Get returns
// ErrNotFound for an unknown session; Put overwrites the whole document
// (last write wins across concurrent sessions).
type Repository interface {
	Get(ctx context.Context, sessionID string) (*Cart, error)
	Put(ctx context.Context, c *Cart) error
	Delete(ctx context.Context, sessionID string) error
}
