// Package pricing derives cart totals. Every function here is total: bad input
// is rejected by the cart mutations, so the calculator only clamps.
package pricing

import (
	"github.com/fjod/go_cart/cart-engine/internal/domain"
	"github.com/shopspring/decimal"
)

const centPlaces = 2

var hundred = decimal.NewFromInt(100)

// Rules holds the delivery and minimum-order thresholds.
type Rules struct {
	FreeDeliveryThreshold domain.Money
	StandardDeliveryFee   domain.Money
	MinOrderAmount        domain.Money
}

func DefaultRules() Rules {
	return Rules{
		FreeDeliveryThreshold: decimal.NewFromInt(1000),
		StandardDeliveryFee:   decimal.NewFromInt(200),
		MinOrderAmount:        decimal.NewFromInt(200),
	}
}

type Totals struct {
	Subtotal             domain.Money `json:"subtotal"`
	DeliveryCost         domain.Money `json:"deliveryCost"`
	DiscountAmount       domain.Money `json:"discountAmount"`
	FinalTotal           domain.Money `json:"finalTotal"`
	AmountToFreeDelivery domain.Money `json:"amountToFreeDelivery"`
	IsBelowMinimumOrder  bool         `json:"isBelowMinimumOrder"`
	MinimumOrderAmount   domain.Money `json:"minimumOrderAmount"`
}

type Calculator struct {
	rules Rules
}

func NewCalculator(rules Rules) Calculator {
	return Calculator{rules: rules}
}

func (c Calculator) Rules() Rules {
	return c.rules
}

func (c Calculator) Totals(s domain.CartState) Totals {
	subtotal := Subtotal(s.Items)
	delivery := c.DeliveryCost(subtotal)
	discount := DiscountAmount(subtotal, s.Discount)
	return Totals{
		Subtotal:             subtotal,
		DeliveryCost:         delivery,
		DiscountAmount:       discount,
		FinalTotal:           FinalTotal(subtotal, discount, delivery),
		AmountToFreeDelivery: c.AmountToFreeDelivery(subtotal),
		IsBelowMinimumOrder:  c.IsBelowMinimumOrder(subtotal),
		MinimumOrderAmount:   c.rules.MinOrderAmount,
	}
}

// Subtotal sums unit price times quantity over non-gift lines.
func Subtotal(items []domain.CartLineItem) domain.Money {
	sum := decimal.Zero
	for _, it := range items {
		sum = sum.Add(it.LineTotal())
	}
	return sum.Round(centPlaces)
}

// DeliveryCost is free from the threshold upwards (inclusive).
func (c Calculator) DeliveryCost(subtotal domain.Money) domain.Money {
	if subtotal.GreaterThanOrEqual(c.rules.FreeDeliveryThreshold) {
		return decimal.Zero
	}
	return c.rules.StandardDeliveryFee.Round(centPlaces)
}

// DiscountAmount never exceeds the subtotal and never goes below zero.
// Percent discounts round half-up to the cent.
func DiscountAmount(subtotal domain.Money, d *domain.DiscountDescriptor) domain.Money {
	if d == nil {
		return decimal.Zero
	}
	var amount domain.Money
	switch d.Kind {
	case domain.DiscountPercent:
		amount = subtotal.Mul(d.Value).Div(hundred).Round(centPlaces)
	case domain.DiscountFixedAmount:
		amount = d.Value.Round(centPlaces)
	default:
		return decimal.Zero
	}
	return clamp(amount, decimal.Zero, subtotal)
}

func FinalTotal(subtotal, discount, delivery domain.Money) domain.Money {
	total := subtotal.Sub(discount).Add(delivery)
	if total.IsNegative() {
		return decimal.Zero
	}
	return total.Round(centPlaces)
}

func (c Calculator) IsBelowMinimumOrder(subtotal domain.Money) bool {
	return subtotal.LessThan(c.rules.MinOrderAmount)
}

func (c Calculator) AmountToFreeDelivery(subtotal domain.Money) domain.Money {
	left := c.rules.FreeDeliveryThreshold.Sub(subtotal)
	if left.IsNegative() {
		return decimal.Zero
	}
	return left.Round(centPlaces)
}

func clamp(v, lo, hi domain.Money) domain.Money {
	if v.LessThan(lo) {
		return lo
	}
	if v.GreaterThan(hi) {
		return hi
	}
	return v
}
