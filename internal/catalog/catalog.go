// Package catalog talks to the product catalog: bulk stock checks and promo
// code verification.
package catalog

import (
	"context"
	"fmt"

	"github.com/fjod/go_cart/cart-engine/internal/domain"
)

type Product struct {
	ID       int64        `json:"id"`
	Name     string       `json:"name"`
	Price    domain.Money `json:"price"`
	ImageURL string       `json:"image_url,omitempty"`
}

// StockChecker answers which of the requested products are still orderable.
// Products absent from the response are unavailable.
type StockChecker interface {
	CheckStock(ctx context.Context, productIDs []int64) ([]Product, error)
}

type VerifyRequest struct {
	Code        string       `json:"code"`
	OrderAmount domain.Money `json:"orderAmount"`
}

type Verification struct {
	Valid               bool         `json:"valid"`
	Code                string       `json:"code"`
	DiscountType        string       `json:"discountType"`
	DiscountValue       domain.Money `json:"discountValue"`
	Message             string       `json:"message"`
	GrantedProductID    *int64       `json:"grantedProductId,omitempty"`
	GrantedProductName  string       `json:"grantedProductName,omitempty"`
	GrantedProductImage string       `json:"grantedProductImage,omitempty"`
}

// PromoVerifier checks a code against the server-side rules. An invalid code
// is a successful call with Valid=false, not an error.
type PromoVerifier interface {
	VerifyPromo(ctx context.Context, req VerifyRequest) (*Verification, error)
}

type Catalog interface {
	StockChecker
	PromoVerifier
}

// Descriptor converts a valid verification into the discount the cart stores.
func (v Verification) Descriptor() (domain.DiscountDescriptor, error) {
	kind, ok := domain.ParseDiscountKind(v.DiscountType)
	if !ok {
		return domain.DiscountDescriptor{}, fmt.Errorf("unknown discount type %q: %w", v.DiscountType, domain.ErrInvalidDiscount)
	}
	d := domain.DiscountDescriptor{
		Code:  domain.NormalizeCode(v.Code),
		Kind:  kind,
		Value: v.DiscountValue,
	}
	if kind == domain.DiscountFreeProduct {
		if v.GrantedProductID == nil {
			return domain.DiscountDescriptor{}, fmt.Errorf("free product code without product: %w", domain.ErrInvalidDiscount)
		}
		d.GrantedGift = &domain.GiftProduct{
			ProductID: *v.GrantedProductID,
			Name:      v.GrantedProductName,
			ImageRef:  v.GrantedProductImage,
		}
	}
	return d, nil
}
