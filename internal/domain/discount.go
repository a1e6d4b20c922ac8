package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

type DiscountKind string

const (
	DiscountPercent     DiscountKind = "percent"
	DiscountFixedAmount DiscountKind = "fixed_amount"
	DiscountFreeProduct DiscountKind = "free_product"
)

// ParseDiscountKind accepts the spellings used by the verification backend.
func ParseDiscountKind(s string) (DiscountKind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "percent", "percentage":
		return DiscountPercent, true
	case "fixed", "fixed_amount", "amount":
		return DiscountFixedAmount, true
	case "free_product", "gift", "product":
		return DiscountFreeProduct, true
	default:
		return "", false
	}
}

// GiftProduct is the catalog product granted by a free-product code.
type GiftProduct struct {
	ProductID int64  `json:"productId" bson:"product_id"`
	Name      string `json:"name" bson:"name"`
	ImageRef  string `json:"imageRef,omitempty" bson:"image_ref,omitempty"`
}

type DiscountDescriptor struct {
	Code        string       `json:"code" bson:"code"`
	Kind        DiscountKind `json:"kind" bson:"kind"`
	Value       Money        `json:"value" bson:"value"`
	GrantedGift *GiftProduct `json:"grantedGift,omitempty" bson:"granted_gift,omitempty"`
}

func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ApplyDiscount replaces any active discount. Gift lines belonging to the
// previous discount are removed first, so re-applying a free-product code
// never leaves two gift lines behind.
func (s *CartState) ApplyDiscount(d DiscountDescriptor) error {
	d.Code = NormalizeCode(d.Code)
	if d.Code == "" {
		return ErrInvalidDiscount
	}
	switch d.Kind {
	case DiscountPercent, DiscountFixedAmount:
		if d.Value.IsNegative() {
			return ErrInvalidDiscount
		}
		d.GrantedGift = nil
	case DiscountFreeProduct:
		if d.GrantedGift == nil || d.GrantedGift.ProductID <= 0 {
			return ErrInvalidDiscount
		}
		d.Value = decimal.Zero
		g := *d.GrantedGift
		d.GrantedGift = &g
	default:
		return ErrInvalidDiscount
	}

	s.removeGifts()
	s.Discount = &d
	if d.Kind == DiscountFreeProduct {
		s.Items = append(s.Items, CartLineItem{
			ProductID: d.GrantedGift.ProductID,
			Name:      d.GrantedGift.Name,
			ImageRef:  d.GrantedGift.ImageRef,
			UnitPrice: decimal.Zero,
			Quantity:  1,
			IsGift:    true,
		})
	}
	return nil
}

// RemoveDiscount clears the discount slot and any gift line. Idempotent.
func (s *CartState) RemoveDiscount() {
	s.Discount = nil
	s.removeGifts()
}

func (s *CartState) removeGifts() {
	kept := s.Items[:0]
	for _, it := range s.Items {
		if !it.IsGift {
			kept = append(kept, it)
		}
	}
	s.Items = kept
	if len(s.Items) == 0 {
		s.Items = nil
	}
}

// GiftLines counts the gift entries currently in the cart.
func (s CartState) GiftLines() int {
	n := 0
	for _, it := range s.Items {
		if it.IsGift {
			n++
		}
	}
	return n
}
