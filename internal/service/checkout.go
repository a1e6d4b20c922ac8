package service

import (
	"errors"

	"github.com/fjod/go_cart/cart-engine/internal/domain"
	"github.com/fjod/go_cart/cart-engine/internal/pricing"
)

var (
	ErrEmptyCart         = errors.New("cart is empty")
	ErrBelowMinimumOrder = errors.New("order is below the minimum order amount")
)

type CheckoutItem struct {
	ProductID int64  `json:"productId"`
	VariantID *int64 `json:"variantId"`
	Quantity  int    `json:"quantity"`
}

// CheckoutPayload is what the order backend receives. Totals must match what
// the backend recomputes from the same prices and promo code.
type CheckoutPayload struct {
	Items          []CheckoutItem `json:"items"`
	PromoCode      string         `json:"promoCode,omitempty"`
	Subtotal       domain.Money   `json:"subtotal"`
	DiscountAmount domain.Money   `json:"discountAmount"`
	DeliveryCost   domain.Money   `json:"deliveryCost"`
	FinalTotal     domain.Money   `json:"finalTotal"`
}

// BuildCheckoutPayload serialises every line, gift lines included, into
// (productId, variantId, quantity) tuples. It does not enforce the minimum order.
func BuildCheckoutPayload(state domain.CartState, totals pricing.Totals) CheckoutPayload {
	items := make([]CheckoutItem, 0, len(state.Items))
	for _, it := range state.Items {
		ci := CheckoutItem{ProductID: it.ProductID, Quantity: it.Quantity}
		if it.VariantID != 0 {
			v := it.VariantID
			ci.VariantID = &v
		}
		items = append(items, ci)
	}

	p := CheckoutPayload{
		Items:          items,
		Subtotal:       totals.Subtotal,
		DiscountAmount: totals.DiscountAmount,
		DeliveryCost:   totals.DeliveryCost,
		FinalTotal:     totals.FinalTotal,
	}
	if state.Discount != nil {
		p.PromoCode = state.Discount.Code
	}
	return p
}

// Checkout returns the payload for the current cart, refusing empty carts and
// carts below the minimum order amount.
func (e *Engine) Checkout() (CheckoutPayload, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state.DistinctCount() == 0 {
		return CheckoutPayload{}, ErrEmptyCart
	}
	totals := e.calc.Totals(e.state)
	if totals.IsBelowMinimumOrder {
		return CheckoutPayload{}, ErrBelowMinimumOrder
	}
	return BuildCheckoutPayload(e.state, totals), nil
}
