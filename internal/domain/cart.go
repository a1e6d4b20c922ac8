package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Money is a decimal amount with two implied fraction digits.
type Money = decimal.Decimal

// ItemKey identifies a line item. VariantID 0 means "no variant".
type ItemKey struct {
	ProductID int64
	VariantID int64
}

type CartLineItem struct {
	ProductID int64  `json:"productId" bson:"product_id"`
	VariantID int64  `json:"variantId,omitempty" bson:"variant_id,omitempty"`
	Name      string `json:"name" bson:"name"`
	UnitPrice Money  `json:"unitPrice" bson:"unit_price"`
	ImageRef  string `json:"imageRef,omitempty" bson:"image_ref,omitempty"`
	Quantity  int    `json:"quantity" bson:"quantity"`
	IsGift    bool   `json:"isGift,omitempty" bson:"is_gift,omitempty"`
}

func (i CartLineItem) Key() ItemKey {
	return ItemKey{ProductID: i.ProductID, VariantID: i.VariantID}
}

// LineTotal is unit price times quantity. Gift lines are always zero.
func (i CartLineItem) LineTotal() Money {
	if i.IsGift {
		return decimal.Zero
	}
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// CartState is the persisted aggregate. Only these three fields survive a reload.
type CartState struct {
	Items           []CartLineItem      `json:"items" bson:"items"`
	Discount        *DiscountDescriptor `json:"discount" bson:"discount,omitempty"`
	LastValidatedAt *time.Time          `json:"lastValidatedAt" bson:"last_validated_at,omitempty"`
}

// Clone returns a deep copy so callers can mutate without touching shared state.
func (s CartState) Clone() CartState {
	out := CartState{}
	if s.Items != nil {
		out.Items = make([]CartLineItem, len(s.Items))
		copy(out.Items, s.Items)
	}
	if s.Discount != nil {
		d := *s.Discount
		if d.GrantedGift != nil {
			g := *d.GrantedGift
			d.GrantedGift = &g
		}
		out.Discount = &d
	}
	if s.LastValidatedAt != nil {
		t := *s.LastValidatedAt
		out.LastValidatedAt = &t
	}
	return out
}

func (s CartState) IsEmpty() bool {
	return len(s.Items) == 0 && s.Discount == nil
}

// DistinctCount counts the non-gift entries, which is what MaxCartItems limits.
func (s CartState) DistinctCount() int {
	n := 0
	for _, it := range s.Items {
		if !it.IsGift {
			n++
		}
	}
	return n
}

// ProductIDs returns the distinct product ids in insertion order.
func (s CartState) ProductIDs() []int64 {
	seen := make(map[int64]struct{}, len(s.Items))
	ids := make([]int64, 0, len(s.Items))
	for _, it := range s.Items {
		if _, ok := seen[it.ProductID]; ok {
			continue
		}
		seen[it.ProductID] = struct{}{}
		ids = append(ids, it.ProductID)
	}
	return ids
}

func (s CartState) indexOf(key ItemKey, gift bool) int {
	for i, it := range s.Items {
		if it.Key() == key && it.IsGift == gift {
			return i
		}
	}
	return -1
}

// ItemCount returns the quantity of the non-gift entry for key, or 0.
func (s CartState) ItemCount(key ItemKey) int {
	if i := s.indexOf(key, false); i >= 0 {
		return s.Items[i].Quantity
	}
	return 0
}

// MaxQuantity is the largest quantity a single entry can hold.
const MaxQuantity = 99

// AddItem merges candidate into an existing entry with the same key or appends
// a new one. A new entry is refused with *CartFullError once maxItems distinct
// entries exist; maxItems <= 0 disables the cap. A merge that would take the
// entry past MaxQuantity fails with ErrQuantityLimit.
func (s *CartState) AddItem(candidate CartLineItem, delta int, maxItems int) error {
	if candidate.ProductID <= 0 {
		return ErrInvalidProduct
	}
	if delta < 1 || delta > MaxQuantity {
		return ErrInvalidQuantity
	}
	if candidate.UnitPrice.IsNegative() || !candidate.UnitPrice.Equal(candidate.UnitPrice.Round(2)) {
		return ErrInvalidPrice
	}
	if candidate.IsGift {
		return ErrGiftNotAddable
	}

	if i := s.indexOf(candidate.Key(), false); i >= 0 {
		if s.Items[i].Quantity+delta > MaxQuantity {
			return ErrQuantityLimit
		}
		s.Items[i].Quantity += delta
		return nil
	}

	if maxItems > 0 && s.DistinctCount() >= maxItems {
		return &CartFullError{Limit: maxItems}
	}

	candidate.Quantity = delta
	s.Items = append(s.Items, candidate)
	return nil
}

// UpdateQuantity sets the quantity of the non-gift entry for key. A quantity of
// zero or less removes the entry. Gift entries are never touched.
func (s *CartState) UpdateQuantity(key ItemKey, quantity int) error {
	if quantity <= 0 {
		s.RemoveItem(key)
		return nil
	}
	if quantity > MaxQuantity {
		return ErrInvalidQuantity
	}
	i := s.indexOf(key, false)
	if i < 0 {
		if s.indexOf(key, true) >= 0 {
			return nil
		}
		return ErrItemNotFound
	}
	s.Items[i].Quantity = quantity
	return nil
}

// RemoveItem drops the non-gift entry for key. Missing keys are a no-op.
func (s *CartState) RemoveItem(key ItemKey) {
	if i := s.indexOf(key, false); i >= 0 {
		s.Items = append(s.Items[:i], s.Items[i+1:]...)
	}
}

func (s *CartState) Clear() {
	s.Items = nil
	s.Discount = nil
	s.LastValidatedAt = nil
}

// RemoveProducts strips every line (any variant, gift or not) whose product is
// in ids and returns the removed display names, one per removed line. Losing
// the gift line also drops the free-product discount it belongs to.
func (s *CartState) RemoveProducts(ids map[int64]struct{}) []string {
	if len(ids) == 0 {
		return nil
	}
	var removed []string
	giftLost := false
	kept := s.Items[:0]
	for _, it := range s.Items {
		if _, gone := ids[it.ProductID]; gone {
			removed = append(removed, it.Name)
			if it.IsGift {
				giftLost = true
			}
			continue
		}
		kept = append(kept, it)
	}
	s.Items = kept
	if giftLost && s.Discount != nil && s.Discount.Kind == DiscountFreeProduct {
		s.Discount = nil
	}
	return removed
}

// Normalize repairs a rehydrated state: zero-quantity rows are dropped and
// duplicate keys are merged into the first occurrence, capped at MaxQuantity.
func (s *CartState) Normalize() {
	out := s.Items[:0]
	for _, it := range s.Items {
		if it.Quantity <= 0 {
			continue
		}
		merged := false
		for j := range out {
			if out[j].Key() == it.Key() && out[j].IsGift == it.IsGift {
				if !it.IsGift {
					out[j].Quantity = min(out[j].Quantity+it.Quantity, MaxQuantity)
				}
				merged = true
				break
			}
		}
		if !merged {
			if it.IsGift {
				it.Quantity = 1
				it.UnitPrice = decimal.Zero
			}
			it.Quantity = min(it.Quantity, MaxQuantity)
			out = append(out, it)
		}
	}
	s.Items = out
	if len(s.Items) == 0 {
		s.Items = nil
	}
}
