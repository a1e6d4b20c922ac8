package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fjod/go_cart/cart-engine/internal/domain"
	"github.com/fjod/go_cart/cart-engine/internal/pricing"
)

// StateWriter durably stores a session's cart. Every mutation starts from
// LoadCart and goes through SaveCart before it becomes visible.
type StateWriter interface {
	LoadCart(ctx context.Context, sessionID string) (domain.CartState, error)
	SaveCart(ctx context.Context, sessionID string, state domain.CartState) error
	DeleteCart(ctx context.Context, sessionID string) error
}

// Snapshot is a consistent read of one engine.
type Snapshot struct {
	SessionID    string           `json:"sessionId"`
	State        domain.CartState `json:"cart"`
	Totals       pricing.Totals   `json:"totals"`
	PendingPromo string           `json:"pendingPromo,omitempty"`
}

type Listener func(Snapshot)

// Engine owns the cart state of one session. Mutations are copy-on-write:
// the change is applied to a clone, persisted, and only then committed and
// published to subscribers.
type Engine struct {
	sessionID string
	writer    StateWriter
	calc      pricing.Calculator
	maxItems  int

	mu           sync.Mutex
	state        domain.CartState
	pendingPromo string
	revalidating bool
	clearGen     uint64

	subMu     sync.Mutex
	listeners map[int]Listener
	nextSub   int
}

func NewEngine(sessionID string, initial domain.CartState, writer StateWriter, calc pricing.Calculator, maxItems int) *Engine {
	initial = initial.Clone()
	initial.Normalize()
	return &Engine{
		sessionID: sessionID,
		writer:    writer,
		calc:      calc,
		maxItems:  maxItems,
		state:     initial,
		listeners: make(map[int]Listener),
	}
}

func (e *Engine) SessionID() string {
	return e.sessionID
}

// Subscribe registers fn for every committed change. The returned func removes it.
func (e *Engine) Subscribe(fn Listener) func() {
	e.subMu.Lock()
	id := e.nextSub
	e.nextSub++
	e.listeners[id] = fn
	e.subMu.Unlock()

	return func() {
		e.subMu.Lock()
		delete(e.listeners, id)
		e.subMu.Unlock()
	}
}

func (e *Engine) State() domain.CartState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Clone()
}

func (e *Engine) Totals() pricing.Totals {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calc.Totals(e.state)
}

func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

func (e *Engine) snapshotLocked() Snapshot {
	return Snapshot{
		SessionID:    e.sessionID,
		State:        e.state.Clone(),
		Totals:       e.calc.Totals(e.state),
		PendingPromo: e.pendingPromo,
	}
}

func (e *Engine) ItemCount(key domain.ItemKey) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.ItemCount(key)
}

// PendingPromo returns the code awaiting verification, or "".
func (e *Engine) PendingPromo() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pendingPromo
}

func (e *Engine) AddItem(ctx context.Context, candidate domain.CartLineItem, delta int) error {
	return e.mutate(ctx, func(s *domain.CartState) error {
		return s.AddItem(candidate, delta, e.maxItems)
	})
}

func (e *Engine) UpdateQuantity(ctx context.Context, key domain.ItemKey, quantity int) error {
	return e.mutate(ctx, func(s *domain.CartState) error {
		return s.UpdateQuantity(key, quantity)
	})
}

func (e *Engine) RemoveItem(ctx context.Context, key domain.ItemKey) error {
	return e.mutate(ctx, func(s *domain.CartState) error {
		s.RemoveItem(key)
		return nil
	})
}

// Clear empties the cart and deletes the persisted copy.
func (e *Engine) Clear(ctx context.Context) error {
	e.mu.Lock()
	if err := e.writer.DeleteCart(ctx, e.sessionID); err != nil {
		e.mu.Unlock()
		return err
	}
	e.state.Clear()
	e.pendingPromo = ""
	e.clearGen++
	snap := e.snapshotLocked()
	e.mu.Unlock()

	e.publish(snap)
	return nil
}

// ApplyPromoCode commits an already verified discount, superseding any other.
// gift, when set, overrides the descriptor's granted gift.
func (e *Engine) ApplyPromoCode(ctx context.Context, d domain.DiscountDescriptor, gift *domain.GiftProduct) error {
	if gift != nil {
		d.GrantedGift = gift
	}
	return e.mutate(ctx, func(s *domain.CartState) error {
		return s.ApplyDiscount(d)
	})
}

func (e *Engine) RemovePromoCode(ctx context.Context) error {
	return e.mutate(ctx, func(s *domain.CartState) error {
		s.RemoveDiscount()
		return nil
	})
}

// beginVerification marks code as pending and returns the subtotal the
// verifier checks the minimum spend against.
func (e *Engine) beginVerification(code string) domain.Money {
	e.mu.Lock()
	e.pendingPromo = code
	subtotal := pricing.Subtotal(e.state.Items)
	snap := e.snapshotLocked()
	e.mu.Unlock()

	e.publish(snap)
	return subtotal
}

// finishVerification ends the pending phase for code. With a descriptor it
// commits the discount; without one it clears whatever discount is active.
// It reports false when a newer verification took over in the meantime.
func (e *Engine) finishVerification(ctx context.Context, code string, d *domain.DiscountDescriptor) (bool, error) {
	e.mu.Lock()
	if e.pendingPromo != code {
		e.mu.Unlock()
		return false, nil
	}
	e.pendingPromo = ""
	e.mu.Unlock()

	err := e.mutate(ctx, func(s *domain.CartState) error {
		if d == nil {
			s.RemoveDiscount()
			return nil
		}
		return s.ApplyDiscount(*d)
	})
	return true, err
}

// beginRevalidation claims the in-flight slot when the interval has elapsed
// since the last successful run. It returns the product ids to check and the
// clear generation the check belongs to.
func (e *Engine) beginRevalidation(now time.Time, gate intervalGate) ([]int64, uint64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.revalidating || !gate.due(e.state.LastValidatedAt, now) {
		return nil, 0, false
	}
	ids := e.state.ProductIDs()
	if len(ids) == 0 {
		return nil, 0, false
	}
	e.revalidating = true
	return ids, e.clearGen, true
}

func (e *Engine) endRevalidation() {
	e.mu.Lock()
	e.revalidating = false
	e.mu.Unlock()
}

var errRevalidationObsolete = errors.New("cart cleared during revalidation")

// applyRevalidation removes unavailable products from the current state, not
// the state the check started from, and stamps the validation time. It
// reports false and changes nothing when the cart was cleared since gen.
func (e *Engine) applyRevalidation(ctx context.Context, gen uint64, unavailable map[int64]struct{}, at time.Time) (domain.StaleItemRemovedWarning, bool, error) {
	var warning domain.StaleItemRemovedWarning
	err := e.mutate(ctx, func(s *domain.CartState) error {
		if e.clearGen != gen || len(s.Items) == 0 {
			return errRevalidationObsolete
		}
		warning = domain.StaleItemRemovedWarning{}
		seen := make(map[int64]struct{})
		for _, it := range s.Items {
			if _, gone := unavailable[it.ProductID]; !gone {
				continue
			}
			if _, ok := seen[it.ProductID]; !ok {
				seen[it.ProductID] = struct{}{}
				warning.ProductIDs = append(warning.ProductIDs, it.ProductID)
			}
		}
		warning.Names = s.RemoveProducts(unavailable)
		validated := at
		s.LastValidatedAt = &validated
		return nil
	})
	if errors.Is(err, errRevalidationObsolete) {
		return domain.StaleItemRemovedWarning{}, false, nil
	}
	if err != nil {
		return domain.StaleItemRemovedWarning{}, false, err
	}
	return warning, true, nil
}

// mutate applies fn to the persisted cart, not the in-memory copy, so changes
// made through other engines for the same session are kept. Last write wins.
func (e *Engine) mutate(ctx context.Context, fn func(*domain.CartState) error) error {
	e.mu.Lock()
	next, err := e.writer.LoadCart(ctx, e.sessionID)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	next.Normalize()
	if err := fn(&next); err != nil {
		e.mu.Unlock()
		return err
	}
	if err := e.writer.SaveCart(ctx, e.sessionID, next); err != nil {
		e.mu.Unlock()
		return err
	}
	e.state = next
	snap := e.snapshotLocked()
	e.mu.Unlock()

	e.publish(snap)
	return nil
}

func (e *Engine) publish(snap Snapshot) {
	e.subMu.Lock()
	listeners := make([]Listener, 0, len(e.listeners))
	for _, fn := range e.listeners {
		listeners = append(listeners, fn)
	}
	e.subMu.Unlock()

	for _, fn := range listeners {
		fn(snap)
	}
}
