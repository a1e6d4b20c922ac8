package service

import (
	"context"
	"sync"
	"time"

	"github.com/fjod/go_cart/cart-engine/internal/cache"
	"github.com/fjod/go_cart/cart-engine/internal/catalog"
	"github.com/fjod/go_cart/cart-engine/internal/domain"
	"github.com/fjod/go_cart/cart-engine/internal/pricing"
	"github.com/fjod/go_cart/cart-engine/internal/repository"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func money(s string) domain.Money {
	return decimal.RequireFromString(s)
}

type mockRepository struct {
	m       sync.RWMutex
	carts   map[string]domain.CartState
	err     error
	getErr  error
	upserts int
	gets    int
}

func newMockRepository() *mockRepository {
	return &mockRepository{carts: make(map[string]domain.CartState)}
}

func (m *mockRepository) GetCart(_ context.Context, sessionID string) (*domain.CartState, error) {
	m.m.Lock()
	defer m.m.Unlock()
	m.gets++
	if m.getErr != nil {
		return nil, m.getErr
	}
	s, ok := m.carts[sessionID]
	if !ok {
		return nil, repository.ErrCartNotFound
	}
	c := s.Clone()
	return &c, nil
}

func (m *mockRepository) UpsertCart(_ context.Context, sessionID string, state domain.CartState) error {
	m.m.Lock()
	defer m.m.Unlock()
	if m.err != nil {
		return m.err
	}
	m.upserts++
	m.carts[sessionID] = state.Clone()
	return nil
}

func (m *mockRepository) DeleteCart(_ context.Context, sessionID string) error {
	m.m.Lock()
	defer m.m.Unlock()
	if m.err != nil {
		return m.err
	}
	if _, ok := m.carts[sessionID]; !ok {
		return repository.ErrCartNotFound
	}
	delete(m.carts, sessionID)
	return nil
}

func (m *mockRepository) stored(sessionID string) (domain.CartState, bool) {
	m.m.RLock()
	defer m.m.RUnlock()
	s, ok := m.carts[sessionID]
	return s, ok
}

func (m *mockRepository) getCount() int {
	m.m.RLock()
	defer m.m.RUnlock()
	return m.gets
}

type mockCache struct {
	m        sync.RWMutex
	carts    map[string]*domain.CartState
	err      error
	deletes  int
	setDelay time.Duration
}

func newMockCache() *mockCache {
	return &mockCache{carts: make(map[string]*domain.CartState)}
}

func (m *mockCache) Get(_ context.Context, sessionID string) (*domain.CartState, error) {
	m.m.RLock()
	defer m.m.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	s, ok := m.carts[sessionID]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	c := s.Clone()
	return &c, nil
}

func (m *mockCache) Set(_ context.Context, sessionID string, state *domain.CartState) error {
	time.Sleep(m.setDelay)
	m.m.Lock()
	defer m.m.Unlock()
	c := state.Clone()
	m.carts[sessionID] = &c
	return m.err
}

func (m *mockCache) Delete(_ context.Context, sessionID string) error {
	m.m.Lock()
	defer m.m.Unlock()
	m.deletes++
	delete(m.carts, sessionID)
	return m.err
}

func (m *mockCache) has(sessionID string) bool {
	m.m.RLock()
	defer m.m.RUnlock()
	_, ok := m.carts[sessionID]
	return ok
}

// memWriter is a StateWriter for engine-only tests.
type memWriter struct {
	m       sync.Mutex
	saved   *domain.CartState
	saves   int
	deletes int
	err     error
	loadErr error
}

func (w *memWriter) LoadCart(context.Context, string) (domain.CartState, error) {
	w.m.Lock()
	defer w.m.Unlock()
	if w.loadErr != nil {
		return domain.CartState{}, w.loadErr
	}
	if w.saved == nil {
		return domain.CartState{}, nil
	}
	return w.saved.Clone(), nil
}

func (w *memWriter) SaveCart(_ context.Context, _ string, state domain.CartState) error {
	w.m.Lock()
	defer w.m.Unlock()
	if w.err != nil {
		return w.err
	}
	c := state.Clone()
	w.saved = &c
	w.saves++
	return nil
}

func (w *memWriter) DeleteCart(context.Context, string) error {
	w.m.Lock()
	defer w.m.Unlock()
	if w.err != nil {
		return w.err
	}
	w.saved = nil
	w.deletes++
	return nil
}

// mockStockChecker answers from a fixed set of available products. When
// release is set, each call blocks until it is closed.
type mockStockChecker struct {
	m         sync.Mutex
	available map[int64]catalog.Product
	err       error
	calls     int
	requested [][]int64
	started   chan struct{}
	release   chan struct{}
}

func newMockStockChecker(products ...catalog.Product) *mockStockChecker {
	c := &mockStockChecker{available: make(map[int64]catalog.Product)}
	for _, p := range products {
		c.available[p.ID] = p
	}
	return c
}

func (c *mockStockChecker) CheckStock(_ context.Context, ids []int64) ([]catalog.Product, error) {
	c.m.Lock()
	c.calls++
	c.requested = append(c.requested, append([]int64(nil), ids...))
	started, release := c.started, c.release
	c.m.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if release != nil {
		<-release
	}

	c.m.Lock()
	defer c.m.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	var out []catalog.Product
	for _, id := range ids {
		if p, ok := c.available[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (c *mockStockChecker) callCount() int {
	c.m.Lock()
	defer c.m.Unlock()
	return c.calls
}

func (c *mockStockChecker) setErr(err error) {
	c.m.Lock()
	defer c.m.Unlock()
	c.err = err
}

type mockVerifier struct {
	m        sync.Mutex
	result   *catalog.Verification
	err      error
	requests []catalog.VerifyRequest
	started  chan struct{}
	release  chan struct{}
}

func (v *mockVerifier) VerifyPromo(_ context.Context, req catalog.VerifyRequest) (*catalog.Verification, error) {
	v.m.Lock()
	v.requests = append(v.requests, req)
	started, release := v.started, v.release
	v.m.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if release != nil {
		<-release
	}

	v.m.Lock()
	defer v.m.Unlock()
	return v.result, v.err
}

type mockNotifier struct {
	m        sync.Mutex
	warnings []domain.StaleItemRemovedWarning
	err      error
}

func (n *mockNotifier) ItemsRemoved(_ context.Context, _ string, w domain.StaleItemRemovedWarning) error {
	n.m.Lock()
	defer n.m.Unlock()
	n.warnings = append(n.warnings, w)
	return n.err
}

type fakeClock struct {
	m   sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.m.Lock()
	defer c.m.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.m.Lock()
	defer c.m.Unlock()
	c.now = c.now.Add(d)
}

func newTestEngine(w StateWriter) *Engine {
	return NewEngine("sess-1", domain.CartState{}, w, pricing.NewCalculator(pricing.DefaultRules()), 30)
}

func pasta() domain.CartLineItem {
	return domain.CartLineItem{ProductID: 1, Name: "Pasta", UnitPrice: money("300")}
}

func salad() domain.CartLineItem {
	return domain.CartLineItem{ProductID: 2, Name: "Salad", UnitPrice: money("150")}
}

var nopLogger = zap.NewNop()
