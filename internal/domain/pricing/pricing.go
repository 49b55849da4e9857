// Package pricing computes order totals from a subtotal, an applied discount,
// and a shipping method selection. The calculation is a pure function of its
// inputs and the configured constants: callers re-derive the quote after every
// cart, coupon, or shipping change instead of patching a cached total.
package pricing

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ShippingMethod is the user-selected fulfillment mode.
type ShippingMethod string

const (
	// ShippingPickup carries no fee.
	ShippingPickup ShippingMethod = "pickup"
	// ShippingDelivery carries a flat fee, waived above a threshold.
	ShippingDelivery ShippingMethod = "delivery"
)

// ErrUnknownShippingMethod is returned for any method other than pickup or delivery.
var ErrUnknownShippingMethod = errors.New("unknown shipping method")

// ParseShippingMethod validates a wire-level shipping method string.
func ParseShippingMethod(s string) (ShippingMethod, error) {
	switch ShippingMethod(s) {
	case ShippingPickup, ShippingDelivery:
		return ShippingMethod(s), nil
	default:
		return "", errors.Wrapf(ErrUnknownShippingMethod, "%q", s)
	}
}

// Config holds the pricing constants, environment-supplied at startup.
type Config struct {
	// FreeShippingThreshold waives the delivery fee when the discounted
	// total reaches it.
	FreeShippingThreshold decimal.Decimal
	// FlatShippingFee is charged for delivery below the threshold.
	FlatShippingFee decimal.Decimal
	// MinimumPurchase is the smallest final total accepted at checkout.
	MinimumPurchase decimal.Decimal
}

// Quote is the full pricing breakdown presented to the shopper and used to
// validate checkout.
type Quote struct {
	Subtotal           decimal.Decimal
	Discount           decimal.Decimal
	TotalAfterDiscount decimal.Decimal
	ShippingMethod     ShippingMethod
	ShippingCost       decimal.Decimal
	FinalTotal         decimal.Decimal
	// MeetsMinimum reports whether FinalTotal reaches the configured
	// minimum purchase. Checkout is blocked when false.
	MeetsMinimum bool
}

// Calculate derives a Quote from the subtotal, the discount amount, and the
// shipping method.
//
// The discounted total is floored at zero: a discount larger than the
// subtotal never produces a negative payable amount. Delivery costs the flat
// fee unless the discounted total reaches the free-shipping threshold;
// pickup is always free.
func Calculate(cfg Config, subtotal, discount decimal.Decimal, method ShippingMethod) Quote {
	totalAfterDiscount := subtotal.Sub(discount)
	if totalAfterDiscount.IsNegative() {
		totalAfterDiscount = decimal.Zero
	}

	shippingCost := decimal.Zero
	if method == ShippingDelivery && totalAfterDiscount.LessThan(cfg.FreeShippingThreshold) {
		shippingCost = cfg.FlatShippingFee
	}

	finalTotal := totalAfterDiscount.Add(shippingCost).Round(2)

	return Quote{
		Subtotal:           subtotal.Round(2),
		Discount:           discount.Round(2),
		TotalAfterDiscount: totalAfterDiscount.Round(2),
		ShippingMethod:     method,
		ShippingCost:       shippingCost.Round(2),
		FinalTotal:         finalTotal,
		MeetsMinimum:       finalTotal.GreaterThanOrEqual(cfg.MinimumPurchase),
	}
}
