package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidProduct  = errors.New("product_id must be greater than 0")
	ErrInvalidQuantity = errors.New("quantity must be between 1 and 99")
	ErrQuantityLimit   = errors.New("an item can appear at most 99 times")
	ErrInvalidPrice    = errors.New("unit price must be a non-negative amount with at most 2 decimal places")
	ErrItemNotFound    = errors.New("item not found in cart")
	ErrGiftNotAddable  = errors.New("gift items are granted by promo codes only")
	ErrInvalidDiscount = errors.New("invalid discount descriptor")
)

// CartFullError is returned when a new distinct item would exceed the cap.
type CartFullError struct {
	Limit int
}

func (e *CartFullError) Error() string {
	return fmt.Sprintf("cart already holds the maximum of %d different items", e.Limit)
}

// PromoInvalidError carries the verifier's message verbatim.
type PromoInvalidError struct {
	Code    string
	Message string
}

func (e *PromoInvalidError) Error() string {
	return e.Message
}

// RevalidationNetworkError wraps a failed stock check. It is transient: the
// cart is left untouched and the next trigger retries.
type RevalidationNetworkError struct {
	Err error
}

func (e *RevalidationNetworkError) Error() string {
	return fmt.Sprintf("stock revalidation failed: %v", e.Err)
}

func (e *RevalidationNetworkError) Unwrap() error {
	return e.Err
}

// StaleItemRemovedWarning reports lines removed because their product is no
// longer orderable. It is informational, not an error.
type StaleItemRemovedWarning struct {
	ProductIDs []int64  `json:"productIds"`
	Names      []string `json:"names"`
}

func (w StaleItemRemovedWarning) Empty() bool {
	return len(w.Names) == 0
}
