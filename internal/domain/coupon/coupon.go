package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when no active coupon with the given code exists.
	ErrNotFound = errors.New("coupon not found")
	// ErrCodeExists is returned when creating a coupon whose code is taken.
	ErrCodeExists = errors.New("coupon code already exists")
)

// Coupon is a percentage-off code with an activation flag and expiry.
// Codes match exactly and case-sensitively as stored.
type Coupon struct {
	Code          string
	PercentageOff int
	ExpiresAt     time.Time
	IsActive      bool
	CreatedAt     time.Time
}

// Valid reports whether the coupon can be applied at the given instant:
// active and not yet expired. A coupon expiring exactly now is still usable.
func (c *Coupon) Valid(now time.Time) bool {
	return c.IsActive && !c.ExpiresAt.Before(now)
}

// WellFormedCode reports whether code consists solely of uppercase letters
// and digits, the only form codes are ever stored in.
func WellFormedCode(code string) bool {
	if code == "" {
		return false
	}
	for i := 0; i < len(code); i++ {
		c := code[i]
		if (c < 'A' || c > 'Z') && (c < '0' || c > '9') {
			return false
		}
	}
	return true
}

// Repository provides lookup and administration of coupons.
// FindByCode only returns active coupons.
type Repository interface {
	FindByCode(ctx context.Context, code string) (*Coupon, error)
	List(ctx context.Context) ([]Coupon, error)
	Create(ctx context.Context, c *Coupon) error
	Update(ctx context.Context, c *Coupon) error
	Deactivate(ctx context.Context, code string) error
	Delete(ctx context.Context, code string) error
}

// Status describes the outcome of resolving a coupon code.
type Status string

const (
	// StatusNone means no code was supplied; any prior discount is cleared.
	StatusNone Status = "none"
	// StatusInvalid means no active coupon with that exact code exists.
	StatusInvalid Status = "invalid"
	// StatusExpired means the coupon exists but its expiry has passed.
	StatusExpired Status = "expired"
	// StatusApplied means the coupon was applied and a discount computed.
	StatusApplied Status = "applied"
)

// Resolution is the result of resolving a code against a subtotal.
// Discount is zero unless Status is StatusApplied.
type Resolution struct {
	Status        Status
	Code          string
	PercentageOff int
	Discount      decimal.Decimal
}

// Applied reports whether the resolution carries a usable discount.
func (r Resolution) Applied() bool {
	return r.Status == StatusApplied
}

// Resolver resolves user-entered coupon codes against the current subtotal.
type Resolver interface {
	Resolve(ctx context.Context, code string, subtotal decimal.Decimal) (Resolution, error)
}
