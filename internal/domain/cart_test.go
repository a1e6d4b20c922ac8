package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func item(productID, variantID int64, price int64) CartLineItem {
	return CartLineItem{
		ProductID: productID,
		VariantID: variantID,
		Name:      "product",
		UnitPrice: decimal.NewFromInt(price),
	}
}

func TestAddItem_MergesSameKey(t *testing.T) {
	var s CartState

	require.NoError(t, s.AddItem(item(1, 0, 100), 2, 10))
	require.NoError(t, s.AddItem(item(1, 0, 100), 3, 10))

	require.Len(t, s.Items, 1)
	assert.Equal(t, 5, s.Items[0].Quantity)
	assert.Equal(t, 5, s.ItemCount(ItemKey{ProductID: 1}))
}

func TestAddItem_VariantsAreDistinct(t *testing.T) {
	var s CartState

	require.NoError(t, s.AddItem(item(1, 10, 100), 1, 10))
	require.NoError(t, s.AddItem(item(1, 11, 120), 1, 10))

	assert.Len(t, s.Items, 2)
	assert.Equal(t, 1, s.ItemCount(ItemKey{ProductID: 1, VariantID: 11}))
	assert.Equal(t, 0, s.ItemCount(ItemKey{ProductID: 1}))
}

func TestAddItem_CartFull(t *testing.T) {
	var s CartState
	require.NoError(t, s.AddItem(item(1, 0, 10), 1, 2))
	require.NoError(t, s.AddItem(item(2, 0, 10), 1, 2))

	before := s.Clone()
	err := s.AddItem(item(3, 0, 10), 1, 2)

	var full *CartFullError
	require.ErrorAs(t, err, &full)
	assert.Equal(t, 2, full.Limit)
	assert.Equal(t, before, s)

	// merging into an existing entry is still allowed at the cap
	require.NoError(t, s.AddItem(item(2, 0, 10), 4, 2))
	assert.Equal(t, 5, s.ItemCount(ItemKey{ProductID: 2}))
}

func TestAddItem_RejectsBadInput(t *testing.T) {
	var s CartState

	assert.ErrorIs(t, s.AddItem(item(0, 0, 10), 1, 10), ErrInvalidProduct)
	assert.ErrorIs(t, s.AddItem(item(1, 0, 10), 0, 10), ErrInvalidQuantity)
	assert.ErrorIs(t, s.AddItem(item(1, 0, -1), 1, 10), ErrInvalidPrice)
	assert.ErrorIs(t, s.AddItem(item(1, 0, 10), MaxQuantity+1, 10), ErrInvalidQuantity)

	subCent := item(1, 0, 0)
	subCent.UnitPrice = decimal.RequireFromString("0.005")
	assert.ErrorIs(t, s.AddItem(subCent, 1, 10), ErrInvalidPrice)

	cents := item(1, 0, 0)
	cents.UnitPrice = decimal.RequireFromString("0.50")
	require.NoError(t, s.AddItem(cents, 1, 10))
	s.Clear()

	gift := item(1, 0, 0)
	gift.IsGift = true
	assert.ErrorIs(t, s.AddItem(gift, 1, 10), ErrGiftNotAddable)
	assert.Empty(t, s.Items)
}

func TestAddItem_MergeCappedAtMaxQuantity(t *testing.T) {
	var s CartState
	require.NoError(t, s.AddItem(item(1, 0, 100), 90, 10))

	assert.ErrorIs(t, s.AddItem(item(1, 0, 100), 10, 10), ErrQuantityLimit)
	assert.Equal(t, 90, s.ItemCount(ItemKey{ProductID: 1}))

	require.NoError(t, s.AddItem(item(1, 0, 100), 9, 10))
	assert.Equal(t, MaxQuantity, s.ItemCount(ItemKey{ProductID: 1}))

	assert.ErrorIs(t, s.UpdateQuantity(ItemKey{ProductID: 1}, MaxQuantity+1), ErrInvalidQuantity)
	assert.Equal(t, MaxQuantity, s.ItemCount(ItemKey{ProductID: 1}))
}

func TestNormalize_CapsMergedQuantity(t *testing.T) {
	s := CartState{Items: []CartLineItem{
		{ProductID: 1, Quantity: 60, UnitPrice: decimal.NewFromInt(10)},
		{ProductID: 1, Quantity: 60, UnitPrice: decimal.NewFromInt(10)},
	}}
	s.Normalize()

	require.Len(t, s.Items, 1)
	assert.Equal(t, MaxQuantity, s.Items[0].Quantity)
}

func TestUpdateQuantity_ZeroRemoves(t *testing.T) {
	var s CartState
	require.NoError(t, s.AddItem(item(1, 0, 100), 2, 10))

	require.NoError(t, s.UpdateQuantity(ItemKey{ProductID: 1}, 0))

	assert.Empty(t, s.Items)
	assert.Equal(t, 0, s.ItemCount(ItemKey{ProductID: 1}))
}

func TestUpdateQuantity_SetsValue(t *testing.T) {
	var s CartState
	require.NoError(t, s.AddItem(item(1, 0, 100), 2, 10))

	require.NoError(t, s.UpdateQuantity(ItemKey{ProductID: 1}, 7))
	assert.Equal(t, 7, s.ItemCount(ItemKey{ProductID: 1}))

	assert.ErrorIs(t, s.UpdateQuantity(ItemKey{ProductID: 9}, 2), ErrItemNotFound)
	assert.NoError(t, s.UpdateQuantity(ItemKey{ProductID: 9}, -1))
}

func TestUpdateQuantity_IgnoresGift(t *testing.T) {
	var s CartState
	require.NoError(t, s.ApplyDiscount(DiscountDescriptor{
		Code:        "gift",
		Kind:        DiscountFreeProduct,
		GrantedGift: &GiftProduct{ProductID: 7, Name: "Dessert"},
	}))

	require.NoError(t, s.UpdateQuantity(ItemKey{ProductID: 7}, 5))
	require.Len(t, s.Items, 1)
	assert.Equal(t, 1, s.Items[0].Quantity)

	require.NoError(t, s.UpdateQuantity(ItemKey{ProductID: 7}, 0))
	assert.Len(t, s.Items, 1)
}

func TestGiftNeverMergesWithPaidLine(t *testing.T) {
	var s CartState
	require.NoError(t, s.ApplyDiscount(DiscountDescriptor{
		Code:        "GIFT",
		Kind:        DiscountFreeProduct,
		GrantedGift: &GiftProduct{ProductID: 7, Name: "Dessert"},
	}))
	require.NoError(t, s.AddItem(item(7, 0, 90), 2, 10))

	require.Len(t, s.Items, 2)
	assert.Equal(t, 2, s.ItemCount(ItemKey{ProductID: 7}))
	assert.Equal(t, 1, s.GiftLines())
}

func TestRemoveItem_MissingIsNoop(t *testing.T) {
	var s CartState
	require.NoError(t, s.AddItem(item(1, 0, 100), 1, 10))

	s.RemoveItem(ItemKey{ProductID: 2})
	assert.Len(t, s.Items, 1)

	s.RemoveItem(ItemKey{ProductID: 1})
	assert.Empty(t, s.Items)
}

func TestApplyDiscount_GiftIsSingle(t *testing.T) {
	var s CartState
	d := DiscountDescriptor{
		Code:        "freecake",
		Kind:        DiscountFreeProduct,
		Value:       decimal.NewFromInt(50),
		GrantedGift: &GiftProduct{ProductID: 42, Name: "Cake"},
	}

	require.NoError(t, s.ApplyDiscount(d))
	require.NoError(t, s.ApplyDiscount(d))

	assert.Equal(t, 1, s.GiftLines())
	require.NotNil(t, s.Discount)
	assert.Equal(t, "FREECAKE", s.Discount.Code)
	assert.True(t, s.Discount.Value.IsZero())
	gift := s.Items[0]
	assert.True(t, gift.IsGift)
	assert.Equal(t, 1, gift.Quantity)
	assert.True(t, gift.UnitPrice.IsZero())
}

func TestApplyDiscount_SupersedesGift(t *testing.T) {
	var s CartState
	require.NoError(t, s.ApplyDiscount(DiscountDescriptor{
		Code:        "GIFT",
		Kind:        DiscountFreeProduct,
		GrantedGift: &GiftProduct{ProductID: 42, Name: "Cake"},
	}))
	require.NoError(t, s.ApplyDiscount(DiscountDescriptor{
		Code:  "TEN",
		Kind:  DiscountPercent,
		Value: decimal.NewFromInt(10),
	}))

	assert.Equal(t, 0, s.GiftLines())
	assert.Equal(t, DiscountPercent, s.Discount.Kind)
}

func TestApplyDiscount_Invalid(t *testing.T) {
	var s CartState

	assert.ErrorIs(t, s.ApplyDiscount(DiscountDescriptor{Code: " ", Kind: DiscountPercent}), ErrInvalidDiscount)
	assert.ErrorIs(t, s.ApplyDiscount(DiscountDescriptor{Code: "X", Kind: "bogus"}), ErrInvalidDiscount)
	assert.ErrorIs(t, s.ApplyDiscount(DiscountDescriptor{Code: "X", Kind: DiscountFreeProduct}), ErrInvalidDiscount)
	assert.ErrorIs(t, s.ApplyDiscount(DiscountDescriptor{Code: "X", Kind: DiscountFixedAmount, Value: decimal.NewFromInt(-5)}), ErrInvalidDiscount)
	assert.Nil(t, s.Discount)
}

func TestRemoveDiscount_Idempotent(t *testing.T) {
	var s CartState
	require.NoError(t, s.AddItem(item(1, 0, 100), 1, 10))
	require.NoError(t, s.ApplyDiscount(DiscountDescriptor{
		Code:        "GIFT",
		Kind:        DiscountFreeProduct,
		GrantedGift: &GiftProduct{ProductID: 42, Name: "Cake"},
	}))

	s.RemoveDiscount()
	once := s.Clone()
	s.RemoveDiscount()

	assert.Equal(t, once, s)
	assert.Nil(t, s.Discount)
	assert.Len(t, s.Items, 1)
}

func TestRemoveProducts_AllVariants(t *testing.T) {
	var s CartState
	a := item(5, 1, 100)
	a.Name = "Pizza S"
	b := item(5, 2, 150)
	b.Name = "Pizza L"
	c := item(6, 0, 80)
	c.Name = "Soup"
	require.NoError(t, s.AddItem(a, 1, 10))
	require.NoError(t, s.AddItem(b, 1, 10))
	require.NoError(t, s.AddItem(c, 1, 10))

	removed := s.RemoveProducts(map[int64]struct{}{5: {}})

	assert.Equal(t, []string{"Pizza S", "Pizza L"}, removed)
	require.Len(t, s.Items, 1)
	assert.Equal(t, int64(6), s.Items[0].ProductID)
}

func TestRemoveProducts_GiftDropsDiscount(t *testing.T) {
	var s CartState
	require.NoError(t, s.ApplyDiscount(DiscountDescriptor{
		Code:        "GIFT",
		Kind:        DiscountFreeProduct,
		GrantedGift: &GiftProduct{ProductID: 42, Name: "Cake"},
	}))

	removed := s.RemoveProducts(map[int64]struct{}{42: {}})

	assert.Equal(t, []string{"Cake"}, removed)
	assert.Nil(t, s.Discount)
}

func TestClear(t *testing.T) {
	now := time.Now()
	s := CartState{LastValidatedAt: &now}
	require.NoError(t, s.AddItem(item(1, 0, 100), 1, 10))
	require.NoError(t, s.ApplyDiscount(DiscountDescriptor{Code: "A", Kind: DiscountPercent, Value: decimal.NewFromInt(5)}))

	s.Clear()

	assert.Empty(t, s.Items)
	assert.Nil(t, s.Discount)
	assert.Nil(t, s.LastValidatedAt)
}

func TestNormalize(t *testing.T) {
	s := CartState{Items: []CartLineItem{
		{ProductID: 1, Quantity: 2, UnitPrice: decimal.NewFromInt(10)},
		{ProductID: 2, Quantity: 0, UnitPrice: decimal.NewFromInt(10)},
		{ProductID: 1, Quantity: 3, UnitPrice: decimal.NewFromInt(10)},
		{ProductID: 9, Quantity: 4, UnitPrice: decimal.NewFromInt(10), IsGift: true},
	}}

	s.Normalize()

	require.Len(t, s.Items, 2)
	assert.Equal(t, 5, s.Items[0].Quantity)
	assert.Equal(t, 1, s.Items[1].Quantity)
	assert.True(t, s.Items[1].UnitPrice.IsZero())
}

func TestCartState_JSONLayout(t *testing.T) {
	var s CartState
	require.NoError(t, s.AddItem(item(1, 0, 300), 2, 10))

	raw, err := json.Marshal(s)
	require.NoError(t, err)

	var layout map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &layout))
	assert.Len(t, layout, 3)
	assert.Contains(t, layout, "items")
	assert.Contains(t, layout, "discount")
	assert.Contains(t, layout, "lastValidatedAt")
}

func TestParseDiscountKind(t *testing.T) {
	k, ok := ParseDiscountKind("Percentage")
	assert.True(t, ok)
	assert.Equal(t, DiscountPercent, k)

	k, ok = ParseDiscountKind("fixed_amount")
	assert.True(t, ok)
	assert.Equal(t, DiscountFixedAmount, k)

	_, ok = ParseDiscountKind("bogo")
	assert.False(t, ok)
}
