package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/sessions"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type RouterConfig struct {
	Handler        *CartHandler
	Sessions       sessions.Store
	Gatherer       prometheus.Gatherer
	Logger         *zap.Logger
	RequestTimeout time.Duration
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestIDMiddleware)
	r.Use(LoggerMiddleware(cfg.Logger))
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(middleware.Compress(5))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, cfg.Logger, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))

	h := cfg.Handler
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(SessionMiddleware(cfg.Sessions, cfg.Logger))
		r.Route("/cart", func(r chi.Router) {
			r.Get("/", h.GetCart)
			r.Post("/items", h.AddItem)
			r.Put("/items/{product_id}", h.UpdateQuantity)
			r.Delete("/items/{product_id}", h.RemoveItem)
			r.Get("/items/{product_id}/count", h.GetItemCount)
			r.Post("/clear", h.ClearCart)
			r.Post("/promo", h.ApplyPromo)
			r.Delete("/promo", h.RemovePromo)
			r.Post("/revalidate", h.Revalidate)
			r.Get("/checkout", h.Checkout)
			r.Put("/checkout/draft", h.SaveCheckoutDraft)
		})
	})

	return r
}
