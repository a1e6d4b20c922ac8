// Package metrics holds the Prometheus collectors of the cart engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "cart_engine"

// Outcome label values.
const (
	OutcomeOK      = "ok"
	OutcomeSkipped = "skipped"
	OutcomeError   = "error"
	OutcomeInvalid = "invalid"
)

// Metrics is nil-safe: a nil *Metrics records nothing.
type Metrics struct {
	revalidations   *prometheus.CounterVec
	itemsRemoved    prometheus.Counter
	promoRedeems    *prometheus.CounterVec
	cartFull        prometheus.Counter
	activeSessions  prometheus.Gauge
	checkoutBlocked prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		revalidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "revalidations_total",
			Help:      "Stock revalidation triggers by outcome.",
		}, []string{"outcome"}),
		itemsRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_items_removed_total",
			Help:      "Line items removed because their product is no longer orderable.",
		}),
		promoRedeems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "promo_redemptions_total",
			Help:      "Promo code redemptions by outcome.",
		}, []string{"outcome"}),
		cartFull: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cart_full_rejections_total",
			Help:      "Additions refused because the cart holds the maximum of distinct items.",
		}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Cart engines currently held in memory.",
		}),
		checkoutBlocked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_below_minimum_total",
			Help:      "Checkout attempts blocked by the minimum order amount.",
		}),
	}
	reg.MustRegister(m.revalidations, m.itemsRemoved, m.promoRedeems, m.cartFull, m.activeSessions, m.checkoutBlocked)
	return m
}

func (m *Metrics) Revalidation(outcome string) {
	if m == nil {
		return
	}
	m.revalidations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ItemsRemoved(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.itemsRemoved.Add(float64(n))
}

func (m *Metrics) PromoRedeem(outcome string) {
	if m == nil {
		return
	}
	m.promoRedeems.WithLabelValues(outcome).Inc()
}

func (m *Metrics) CartFull() {
	if m == nil {
		return
	}
	m.cartFull.Inc()
}

func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.activeSessions.Inc()
}

func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.activeSessions.Dec()
}

func (m *Metrics) CheckoutBlocked() {
	if m == nil {
		return
	}
	m.checkoutBlocked.Inc()
}
