package repository

import (
	"context"

	"github.com/fjod/go_cart/cart-engine/internal/domain"
)

// CartRepository is the durable store for cart state, one document per session.
type CartRepository interface {
	GetCart(ctx context.Context, sessionID string) (*domain.CartState, error)
	UpsertCart(ctx context.Context, sessionID string, state domain.CartState) error
	DeleteCart(ctx context.Context, sessionID string) error
}
