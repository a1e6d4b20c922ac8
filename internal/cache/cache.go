package cache

import (
	"context"
	"errors"

	"github.com/fjod/go_cart/cart-engine/internal/domain"
)

// CartCache is a read-through copy of persisted cart state keyed by session.
type CartCache interface {
	Get(ctx context.Context, sessionID string) (*domain.CartState, error)
	Set(ctx context.Context, sessionID string, state *domain.CartState) error
	Delete(ctx context.Context, sessionID string) error
}

var ErrCacheMiss = errors.New("cache miss")
