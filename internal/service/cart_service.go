package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fjod/go_cart/cart-engine/internal/cache"
	"github.com/fjod/go_cart/cart-engine/internal/domain"
	"github.com/fjod/go_cart/cart-engine/internal/metrics"
	"github.com/fjod/go_cart/cart-engine/internal/pricing"
	"github.com/fjod/go_cart/cart-engine/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// CartService keeps one Engine per cart session and is the StateWriter those
// engines persist through.
type CartService struct {
	repo     repository.CartRepository
	cache    cache.CartCache
	sfg      singleflight.Group // Prevents cache stampede
	calc     pricing.Calculator
	maxItems int
	metrics  *metrics.Metrics
	logger   *zap.Logger
	now      func() time.Time

	mu       sync.Mutex
	engines  map[string]*Engine
	lastUsed map[string]time.Time
}

const cacheFillTimeout = time.Second

func NewCartService(repo repository.CartRepository, cache cache.CartCache, calc pricing.Calculator, maxItems int, m *metrics.Metrics, logger *zap.Logger) *CartService {
	return &CartService{
		repo:     repo,
		cache:    cache,
		calc:     calc,
		maxItems: maxItems,
		metrics:  m,
		logger:   logger,
		now:      time.Now,
		engines:  make(map[string]*Engine),
		lastUsed: make(map[string]time.Time),
	}
}

func (s *CartService) Calculator() pricing.Calculator {
	return s.calc
}

// Engine returns the live engine for sessionID, loading persisted state on
// first access.
func (s *CartService) Engine(ctx context.Context, sessionID string) (*Engine, error) {
	if e := s.lookup(sessionID); e != nil {
		return e, nil
	}

	v, err, _ := s.sfg.Do(sessionID, func() (interface{}, error) {
		if e := s.lookup(sessionID); e != nil {
			return e, nil
		}

		state, err := s.loadState(ctx, sessionID)
		if err != nil {
			return nil, err
		}

		e := NewEngine(sessionID, *state, s, s.calc, s.maxItems)
		s.mu.Lock()
		s.engines[sessionID] = e
		s.lastUsed[sessionID] = s.now()
		s.mu.Unlock()
		s.metrics.SessionOpened()
		return e, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*Engine), nil
}

func (s *CartService) lookup(sessionID string) *Engine {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.engines[sessionID]
	if ok {
		s.lastUsed[sessionID] = s.now()
	}
	return e
}

func (s *CartService) loadState(ctx context.Context, sessionID string) (*domain.CartState, error) {
	state, err := s.cache.Get(ctx, sessionID)
	if err == nil {
		return state, nil // cart is in cache
	}

	if !errors.Is(err, cache.ErrCacheMiss) {
		s.logger.Warn("cache get error", zap.String("session_id", sessionID), zap.Error(err))
	}

	state, err = s.repo.GetCart(ctx, sessionID)
	if errors.Is(err, repository.ErrCartNotFound) {
		return &domain.CartState{}, nil
	}
	if err != nil {
		return nil, err
	}

	// Filled before the engine is registered, so no write of this engine can
	// be overtaken by the fill.
	setCtx, cancel := context.WithTimeout(ctx, cacheFillTimeout)
	defer cancel()
	if err := s.cache.Set(setCtx, sessionID, state); err != nil {
		s.logger.Warn("cache set error", zap.String("session_id", sessionID), zap.Error(err))
	}

	return state, nil
}

// LoadCart reads the persisted cart straight from the repository. A missing
// document is an empty cart.
func (s *CartService) LoadCart(ctx context.Context, sessionID string) (domain.CartState, error) {
	state, err := s.repo.GetCart(ctx, sessionID)
	if errors.Is(err, repository.ErrCartNotFound) {
		return domain.CartState{}, nil
	}
	if err != nil {
		s.logger.Error("repo get cart error", zap.String("session_id", sessionID), zap.Error(err))
		return domain.CartState{}, err
	}
	return *state, nil
}

// Evict forgets the in-memory engine; the next access reloads from storage.
func (s *CartService) Evict(sessionID string) {
	s.mu.Lock()
	_, ok := s.engines[sessionID]
	delete(s.engines, sessionID)
	delete(s.lastUsed, sessionID)
	s.mu.Unlock()
	if ok {
		s.metrics.SessionClosed()
	}
}

// SweepIdle evicts every engine not accessed for at least idle and returns how
// many were dropped.
func (s *CartService) SweepIdle(idle time.Duration) int {
	cutoff := s.now().Add(-idle)

	s.mu.Lock()
	n := 0
	for id, at := range s.lastUsed {
		if at.After(cutoff) {
			continue
		}
		delete(s.engines, id)
		delete(s.lastUsed, id)
		n++
	}
	s.mu.Unlock()

	for i := 0; i < n; i++ {
		s.metrics.SessionClosed()
	}
	return n
}

// RunEvictor sweeps idle engines every interval until ctx is done.
func (s *CartService) RunEvictor(ctx context.Context, interval, idle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.SweepIdle(idle); n > 0 {
				s.logger.Debug("evicted idle sessions", zap.Int("count", n))
			}
		}
	}
}

// Sessions returns the number of live engines.
func (s *CartService) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.engines)
}

// ClearSession empties the cart of sessionID whether or not it is loaded.
func (s *CartService) ClearSession(ctx context.Context, sessionID string) error {
	if e := s.lookup(sessionID); e != nil {
		return e.Clear(ctx)
	}
	return s.DeleteCart(ctx, sessionID)
}

func (s *CartService) SaveCart(ctx context.Context, sessionID string, state domain.CartState) error {
	if err := s.repo.UpsertCart(ctx, sessionID, state); err != nil {
		s.logger.Error("repo upsert cart error", zap.String("session_id", sessionID), zap.Error(err))
		return err
	}

	s.invalidateCache(sessionID)
	return nil
}

func (s *CartService) DeleteCart(ctx context.Context, sessionID string) error {
	err := s.repo.DeleteCart(ctx, sessionID)
	if err != nil && !errors.Is(err, repository.ErrCartNotFound) {
		s.logger.Error("repo delete cart error", zap.String("session_id", sessionID), zap.Error(err))
		return err
	}

	s.invalidateCache(sessionID)
	return nil
}

func (s *CartService) invalidateCache(sessionID string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.cache.Delete(ctx, sessionID); err != nil {
		s.logger.Warn("cache invalidate error", zap.String("session_id", sessionID), zap.Error(err))
	}
}
