package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/fjod/go_cart/cart-engine/internal/domain"
	"github.com/fjod/go_cart/cart-engine/internal/metrics"
	"github.com/fjod/go_cart/cart-engine/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const maxDraftBytes = 2048

type CartHandler struct {
	carts       *service.CartService
	promos      *service.PromoManager
	revalidator *service.Revalidator
	metrics     *metrics.Metrics
	logger      *zap.Logger
	timeout     time.Duration
}

func NewCartHandler(carts *service.CartService, promos *service.PromoManager, revalidator *service.Revalidator, m *metrics.Metrics, logger *zap.Logger, timeout time.Duration) *CartHandler {
	return &CartHandler{
		carts:       carts,
		promos:      promos,
		revalidator: revalidator,
		metrics:     m,
		logger:      logger,
		timeout:     timeout,
	}
}

type AddItemRequestDTO struct {
	ProductID int64           `json:"product_id"`
	VariantID int64           `json:"variant_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	ImageRef  string          `json:"image_ref"`
	Quantity  int             `json:"quantity"`
}

type UpdateQuantityRequestDTO struct {
	Quantity int `json:"quantity"`
}

type PromoRequestDTO struct {
	Code string `json:"code"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

type CartResponse struct {
	service.Snapshot
	RemovedItems []string `json:"removedItems,omitempty"`
}

type ItemCountResponse struct {
	ProductID int64 `json:"productId"`
	VariantID int64 `json:"variantId,omitempty"`
	Count     int   `json:"count"`
}

type RevalidateResponse struct {
	Ran          bool             `json:"ran"`
	RemovedItems []string         `json:"removedItems,omitempty"`
	Cart         service.Snapshot `json:"cart"`
}

type CheckoutResponse struct {
	Order service.CheckoutPayload `json:"order"`
	Draft json.RawMessage         `json:"draft,omitempty"`
}

// GetCart returns the cart and, as the "cart opened" trigger, runs a stock
// revalidation when one is due. A failed check is logged and the cart is
// served as it is.
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	e, ok := h.engine(ctx, w, r)
	if !ok {
		return
	}

	res, err := h.revalidator.Trigger(ctx, e)
	if err != nil {
		h.logger.Warn("revalidation on cart open failed",
			zap.String("session_id", e.SessionID()),
			zap.Error(err))
	}

	respondJSON(w, h.logger, http.StatusOK, CartResponse{Snapshot: e.Snapshot(), RemovedItems: res.Removed.Names})
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	// Parse request body
	var req AddItemRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, h.logger, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	// Validate request
	if req.ProductID <= 0 {
		respondError(w, h.logger, http.StatusBadRequest, "invalid_product_id", "product_id must be positive")
		return
	}
	if req.VariantID < 0 {
		respondError(w, h.logger, http.StatusBadRequest, "invalid_variant_id", "variant_id must not be negative")
		return
	}
	if req.Quantity <= 0 || req.Quantity > domain.MaxQuantity {
		respondError(w, h.logger, http.StatusBadRequest, "invalid_quantity", "quantity must be between 1 and 99")
		return
	}

	e, ok := h.engine(ctx, w, r)
	if !ok {
		return
	}

	candidate := domain.CartLineItem{
		ProductID: req.ProductID,
		VariantID: req.VariantID,
		Name:      req.Name,
		UnitPrice: req.UnitPrice,
		ImageRef:  req.ImageRef,
	}
	if err := e.AddItem(ctx, candidate, req.Quantity); err != nil {
		h.handleCartError(w, e.SessionID(), err)
		return
	}

	respondJSON(w, h.logger, http.StatusCreated, CartResponse{Snapshot: e.Snapshot()})
}

// UpdateQuantity sets the quantity of a line. Zero removes it.
func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	key, ok := h.itemKey(w, r)
	if !ok {
		return
	}

	var req UpdateQuantityRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, h.logger, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Quantity < 0 || req.Quantity > domain.MaxQuantity {
		respondError(w, h.logger, http.StatusBadRequest, "invalid_quantity", "quantity must be between 0 and 99")
		return
	}

	e, ok := h.engine(ctx, w, r)
	if !ok {
		return
	}

	if err := e.UpdateQuantity(ctx, key, req.Quantity); err != nil {
		h.handleCartError(w, e.SessionID(), err)
		return
	}

	respondJSON(w, h.logger, http.StatusOK, CartResponse{Snapshot: e.Snapshot()})
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	key, ok := h.itemKey(w, r)
	if !ok {
		return
	}

	e, ok := h.engine(ctx, w, r)
	if !ok {
		return
	}

	if err := e.RemoveItem(ctx, key); err != nil {
		h.handleCartError(w, e.SessionID(), err)
		return
	}

	respondJSON(w, h.logger, http.StatusOK, CartResponse{Snapshot: e.Snapshot()})
}

func (h *CartHandler) GetItemCount(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	key, ok := h.itemKey(w, r)
	if !ok {
		return
	}

	e, ok := h.engine(ctx, w, r)
	if !ok {
		return
	}

	respondJSON(w, h.logger, http.StatusOK, ItemCountResponse{
		ProductID: key.ProductID,
		VariantID: key.VariantID,
		Count:     e.ItemCount(key),
	})
}

// ClearCart empties the cart and drops the checkout draft kept in the session.
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	e, ok := h.engine(ctx, w, r)
	if !ok {
		return
	}

	if err := e.Clear(ctx); err != nil {
		h.handleCartError(w, e.SessionID(), err)
		return
	}

	if session := getSession(r.Context()); session != nil {
		if _, had := session.Values[checkoutDraftKey]; had {
			delete(session.Values, checkoutDraftKey)
			if err := session.Save(r, w); err != nil {
				h.logger.Warn("failed to drop checkout draft",
					zap.String("session_id", e.SessionID()),
					zap.Error(err))
			}
		}
	}

	respondJSON(w, h.logger, http.StatusOK, CartResponse{Snapshot: e.Snapshot()})
}

// ApplyPromo verifies the code and applies it. A rejected code answers 422
// with the verifier's message unchanged.
func (h *CartHandler) ApplyPromo(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req PromoRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, h.logger, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	e, ok := h.engine(ctx, w, r)
	if !ok {
		return
	}

	if _, err := h.promos.Redeem(ctx, e, req.Code); err != nil {
		var invalid *domain.PromoInvalidError
		switch {
		case errors.As(err, &invalid):
			respondError(w, h.logger, http.StatusUnprocessableEntity, "promo_invalid", invalid.Message)
		case errors.Is(err, service.ErrVerificationSuperseded):
			respondError(w, h.logger, http.StatusConflict, "promo_superseded", err.Error())
		default:
			h.logger.Error("promo redemption failed",
				zap.String("session_id", e.SessionID()),
				zap.Error(err))
			respondError(w, h.logger, http.StatusBadGateway, "promo_unavailable", "discount codes cannot be checked right now")
		}
		return
	}

	respondJSON(w, h.logger, http.StatusOK, CartResponse{Snapshot: e.Snapshot()})
}

func (h *CartHandler) RemovePromo(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	e, ok := h.engine(ctx, w, r)
	if !ok {
		return
	}

	if err := e.RemovePromoCode(ctx); err != nil {
		h.handleCartError(w, e.SessionID(), err)
		return
	}

	respondJSON(w, h.logger, http.StatusOK, CartResponse{Snapshot: e.Snapshot()})
}

// Revalidate is the explicit visibility trigger. Unlike GetCart it reports a
// failed stock check to the caller.
func (h *CartHandler) Revalidate(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	e, ok := h.engine(ctx, w, r)
	if !ok {
		return
	}

	res, err := h.revalidator.Trigger(ctx, e)
	if err != nil {
		var netErr *domain.RevalidationNetworkError
		if errors.As(err, &netErr) {
			respondError(w, h.logger, http.StatusServiceUnavailable, "catalog_unavailable", "product availability could not be checked")
			return
		}
		h.handleCartError(w, e.SessionID(), err)
		return
	}

	respondJSON(w, h.logger, http.StatusOK, RevalidateResponse{
		Ran:          res.Ran,
		RemovedItems: res.Removed.Names,
		Cart:         e.Snapshot(),
	})
}

// Checkout returns the order payload together with the saved checkout draft.
func (h *CartHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	e, ok := h.engine(ctx, w, r)
	if !ok {
		return
	}

	payload, err := e.Checkout()
	switch {
	case errors.Is(err, service.ErrEmptyCart):
		respondError(w, h.logger, http.StatusUnprocessableEntity, "cart_empty", err.Error())
		return
	case errors.Is(err, service.ErrBelowMinimumOrder):
		h.metrics.CheckoutBlocked()
		totals := e.Totals()
		respondJSON(w, h.logger, http.StatusUnprocessableEntity, ErrorResponse{
			Error:   err.Error(),
			Code:    "below_minimum_order",
			Details: "minimum order amount is " + totals.MinimumOrderAmount.StringFixed(2),
		})
		return
	case err != nil:
		h.handleCartError(w, e.SessionID(), err)
		return
	}

	resp := CheckoutResponse{Order: payload}
	if session := getSession(r.Context()); session != nil {
		if draft, ok := session.Values[checkoutDraftKey].(string); ok {
			resp.Draft = json.RawMessage(draft)
		}
	}
	respondJSON(w, h.logger, http.StatusOK, resp)
}

// SaveCheckoutDraft keeps the checkout form fields in the session cookie.
// They never become part of the cart state.
func (h *CartHandler) SaveCheckoutDraft(w http.ResponseWriter, r *http.Request) {
	session := getSession(r.Context())
	if session == nil {
		respondError(w, h.logger, http.StatusBadRequest, "missing_session", "no cart session")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxDraftBytes+1))
	if err != nil {
		respondError(w, h.logger, http.StatusBadRequest, "invalid_request", "could not read body")
		return
	}
	if len(body) > maxDraftBytes {
		respondError(w, h.logger, http.StatusRequestEntityTooLarge, "draft_too_large", "checkout draft is too large")
		return
	}
	var fields map[string]any
	if err := json.Unmarshal(body, &fields); err != nil {
		respondError(w, h.logger, http.StatusBadRequest, "invalid_request", "draft must be a JSON object")
		return
	}

	session.Values[checkoutDraftKey] = string(body)
	if err := session.Save(r, w); err != nil {
		h.logger.Error("failed to save checkout draft",
			zap.String("session_id", getSessionID(r.Context())),
			zap.Error(err))
		respondError(w, h.logger, http.StatusInternalServerError, "session_error", "failed to save checkout draft")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *CartHandler) engine(ctx context.Context, w http.ResponseWriter, r *http.Request) (*service.Engine, bool) {
	sessionID := getSessionID(r.Context())
	if sessionID == "" {
		respondError(w, h.logger, http.StatusBadRequest, "missing_session", "no cart session")
		return nil, false
	}

	e, err := h.carts.Engine(ctx, sessionID)
	if err != nil {
		h.logger.Error("failed to load cart",
			zap.String("session_id", sessionID),
			zap.String("request_id", getRequestID(r.Context())),
			zap.Error(err))
		respondError(w, h.logger, http.StatusInternalServerError, "internal_error", "failed to load cart")
		return nil, false
	}
	return e, true
}

// itemKey reads the product id from the path and the optional variant_id
// query parameter.
func (h *CartHandler) itemKey(w http.ResponseWriter, r *http.Request) (domain.ItemKey, bool) {
	productIDStr := chi.URLParam(r, "product_id")
	productID, err := strconv.ParseInt(productIDStr, 10, 64)
	if err != nil || productID <= 0 {
		respondError(w, h.logger, http.StatusBadRequest, "invalid_product_id", "product_id must be a positive integer")
		return domain.ItemKey{}, false
	}

	key := domain.ItemKey{ProductID: productID}
	if v := r.URL.Query().Get("variant_id"); v != "" {
		variantID, err := strconv.ParseInt(v, 10, 64)
		if err != nil || variantID < 0 {
			respondError(w, h.logger, http.StatusBadRequest, "invalid_variant_id", "variant_id must be a non-negative integer")
			return domain.ItemKey{}, false
		}
		key.VariantID = variantID
	}
	return key, true
}

func (h *CartHandler) handleCartError(w http.ResponseWriter, sessionID string, err error) {
	var full *domain.CartFullError
	switch {
	case errors.As(err, &full):
		h.metrics.CartFull()
		respondError(w, h.logger, http.StatusConflict, "cart_full", full.Error())
	case errors.Is(err, domain.ErrInvalidProduct):
		respondError(w, h.logger, http.StatusBadRequest, "invalid_product_id", err.Error())
	case errors.Is(err, domain.ErrInvalidQuantity):
		respondError(w, h.logger, http.StatusBadRequest, "invalid_quantity", err.Error())
	case errors.Is(err, domain.ErrQuantityLimit):
		respondError(w, h.logger, http.StatusConflict, "quantity_limit", err.Error())
	case errors.Is(err, domain.ErrInvalidPrice):
		respondError(w, h.logger, http.StatusBadRequest, "invalid_price", err.Error())
	case errors.Is(err, domain.ErrGiftNotAddable):
		respondError(w, h.logger, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, domain.ErrItemNotFound):
		respondError(w, h.logger, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		respondError(w, h.logger, http.StatusGatewayTimeout, "timeout", "request timed out")
	default:
		h.logger.Error("cart operation failed",
			zap.String("session_id", sessionID),
			zap.Error(err))
		respondError(w, h.logger, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func respondJSON(w http.ResponseWriter, logger *zap.Logger, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Warn("failed to encode response", zap.Error(err))
	}
}

func respondError(w http.ResponseWriter, logger *zap.Logger, status int, code, message string) {
	respondJSON(w, logger, status, ErrorResponse{
		Error:   message,
		Code:    code,
		Details: "",
	})
}
