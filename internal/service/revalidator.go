package service

import (
	"context"
	"time"

	"github.com/fjod/go_cart/cart-engine/internal/catalog"
	"github.com/fjod/go_cart/cart-engine/internal/domain"
	"github.com/fjod/go_cart/cart-engine/internal/metrics"
	"go.uber.org/zap"
)

// intervalGate is the single rate limiter for stock checks: a run is due when
// there was no successful run yet or the last one is at least interval old.
type intervalGate struct {
	interval time.Duration
}

func (g intervalGate) due(last *time.Time, now time.Time) bool {
	return last == nil || now.Sub(*last) >= g.interval
}

// StaleItemNotifier is told about lines removed by a revalidation.
type StaleItemNotifier interface {
	ItemsRemoved(ctx context.Context, sessionID string, warning domain.StaleItemRemovedWarning) error
}

type RevalidationResult struct {
	// Ran is false when the gate or the in-flight flag skipped the check.
	Ran     bool
	Removed domain.StaleItemRemovedWarning
}

type Revalidator struct {
	checker  catalog.StockChecker
	gate     intervalGate
	now      func() time.Time
	notifier StaleItemNotifier
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

type RevalidatorOption func(*Revalidator)

func WithClock(now func() time.Time) RevalidatorOption {
	return func(r *Revalidator) { r.now = now }
}

func WithNotifier(n StaleItemNotifier) RevalidatorOption {
	return func(r *Revalidator) { r.notifier = n }
}

func WithRevalidationMetrics(m *metrics.Metrics) RevalidatorOption {
	return func(r *Revalidator) { r.metrics = m }
}

func NewRevalidator(checker catalog.StockChecker, interval time.Duration, logger *zap.Logger, opts ...RevalidatorOption) *Revalidator {
	r := &Revalidator{
		checker: checker,
		gate:    intervalGate{interval: interval},
		now:     time.Now,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Trigger runs one bulk stock check for the engine's cart unless the interval
// gate or an in-flight check says otherwise. A network failure is returned as
// *domain.RevalidationNetworkError and leaves the cart and its
// lastValidatedAt untouched, so the next trigger retries.
func (r *Revalidator) Trigger(ctx context.Context, e *Engine) (RevalidationResult, error) {
	ids, gen, ok := e.beginRevalidation(r.now(), r.gate)
	if !ok {
		r.metrics.Revalidation(metrics.OutcomeSkipped)
		return RevalidationResult{}, nil
	}
	defer e.endRevalidation()

	available, err := r.checker.CheckStock(ctx, ids)
	if err != nil {
		r.metrics.Revalidation(metrics.OutcomeError)
		r.logger.Warn("stock revalidation failed",
			zap.String("session_id", e.SessionID()),
			zap.Int("products", len(ids)),
			zap.Error(err))
		return RevalidationResult{}, &domain.RevalidationNetworkError{Err: err}
	}

	unavailable := missingIDs(ids, available)
	warning, applied, err := e.applyRevalidation(ctx, gen, unavailable, r.now())
	if err != nil {
		r.metrics.Revalidation(metrics.OutcomeError)
		r.logger.Error("failed to persist revalidation",
			zap.String("session_id", e.SessionID()),
			zap.Error(err))
		return RevalidationResult{}, err
	}
	if !applied {
		r.metrics.Revalidation(metrics.OutcomeSkipped)
		r.logger.Debug("cart cleared during revalidation, result dropped",
			zap.String("session_id", e.SessionID()))
		return RevalidationResult{}, nil
	}

	r.metrics.Revalidation(metrics.OutcomeOK)
	if !warning.Empty() {
		r.metrics.ItemsRemoved(len(warning.Names))
		r.logger.Info("removed unavailable items",
			zap.String("session_id", e.SessionID()),
			zap.Int64s("product_ids", warning.ProductIDs),
			zap.Strings("removed", warning.Names))
		if r.notifier != nil {
			if err := r.notifier.ItemsRemoved(ctx, e.SessionID(), warning); err != nil {
				r.logger.Warn("stale item notification failed",
					zap.String("session_id", e.SessionID()),
					zap.Error(err))
			}
		}
	}

	return RevalidationResult{Ran: true, Removed: warning}, nil
}

func missingIDs(requested []int64, available []catalog.Product) map[int64]struct{} {
	present := make(map[int64]struct{}, len(available))
	for _, p := range available {
		present[p.ID] = struct{}{}
	}
	missing := make(map[int64]struct{})
	for _, id := range requested {
		if _, ok := present[id]; !ok {
			missing[id] = struct{}{}
		}
	}
	return missing
}
