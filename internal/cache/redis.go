package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/fjod/go_cart/cart-engine/internal/domain"
	"github.com/redis/go-redis/v9"
)

const (
	defaultTTL = 15 * time.Minute
	maxJitter  = 5 // minutes
)

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{
		client:  client,
		baseTTL: defaultTTL,
	}
}

type RedisCache struct {
	client  *redis.Client
	baseTTL time.Duration
}

func (r RedisCache) Get(ctx context.Context, sessionID string) (*domain.CartState, error) {
	key := cacheKey(sessionID)

	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var state domain.CartState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("unmarshal cart failed: %w", err)
	}
	state.Normalize()

	return &state, nil
}

func (r RedisCache) Set(ctx context.Context, sessionID string, state *domain.CartState) error {
	key := cacheKey(sessionID)
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal cart failed: %w", err)
	}

	// spread expiry so carts loaded together don't expire together
	jitter := time.Duration(rand.Intn(maxJitter)) * time.Minute
	if err := r.client.Set(ctx, key, payload, r.baseTTL+jitter).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r RedisCache) Delete(ctx context.Context, sessionID string) error {
	if err := r.client.Del(ctx, cacheKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func cacheKey(sessionID string) string {
	return fmt.Sprintf("cart:%s", sessionID)
}
