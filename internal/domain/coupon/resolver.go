package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// RepoResolver implements Resolver by looking up coupon records in a
// Repository. Resolving is a pure read: the coupon record is never mutated.
type RepoResolver struct {
	repo Repository
	now  func() time.Time
}

// NewRepoResolver creates a RepoResolver backed by the given Repository.
func NewRepoResolver(repo Repository) *RepoResolver {
	return &RepoResolver{repo: repo, now: time.Now}
}

// Resolve looks up an active coupon with the exact code and computes the
// discount for the given subtotal.
//
// An empty code resolves to StatusNone with a zero discount, which clears
// any previously applied coupon. An unknown or inactive code resolves to
// StatusInvalid; a known code past its expiry resolves to StatusExpired.
// Neither is an error; validation outcomes are part of the result.
func (r *RepoResolver) Resolve(ctx context.Context, code string, subtotal decimal.Decimal) (Resolution, error) {
	if code == "" {
		return Resolution{Status: StatusNone, Discount: decimal.Zero}, nil
	}
	// Stored codes are uppercase alphanumerics; anything else cannot match
	// and skips the lookup entirely.
	if !WellFormedCode(code) {
		return Resolution{Status: StatusInvalid, Code: code, Discount: decimal.Zero}, nil
	}

	c, err := r.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Resolution{Status: StatusInvalid, Code: code, Discount: decimal.Zero}, nil
		}
		return Resolution{}, errors.Wrap(err, "lookup coupon")
	}

	// FindByCode only surfaces active coupons, so an invalid record here
	// means its expiry has passed.
	if !c.Valid(r.now()) {
		return Resolution{Status: StatusExpired, Code: code, Discount: decimal.Zero}, nil
	}

	return Resolution{
		Status:        StatusApplied,
		Code:          c.Code,
		PercentageOff: c.PercentageOff,
		Discount:      Discount(subtotal, c.PercentageOff),
	}, nil
}

// Discount computes subtotal × percentageOff / 100, rounded to 2 decimal
// places and never negative.
func Discount(subtotal decimal.Decimal, percentageOff int) decimal.Decimal {
	if subtotal.IsNegative() || percentageOff <= 0 {
		return decimal.Zero
	}
	return subtotal.Mul(decimal.NewFromInt(int64(percentageOff))).Div(hundred).Round(2)
}
