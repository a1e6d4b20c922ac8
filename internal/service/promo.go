package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/fjod/go_cart/cart-engine/internal/catalog"
	"github.com/fjod/go_cart/cart-engine/internal/domain"
	"github.com/fjod/go_cart/cart-engine/internal/metrics"
	"go.uber.org/zap"
)

// ErrVerificationSuperseded is returned when another code was submitted for
// the same cart while this one was being verified.
var ErrVerificationSuperseded = errors.New("promo verification superseded by a newer code")

const msgEmptyCode = "Enter a discount code"

// PromoManager runs verify-then-apply as two explicit phases. Between them the
// engine reports the code as pending and no discount from it is applied.
type PromoManager struct {
	verifier catalog.PromoVerifier
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

func NewPromoManager(verifier catalog.PromoVerifier, m *metrics.Metrics, logger *zap.Logger) *PromoManager {
	return &PromoManager{verifier: verifier, metrics: m, logger: logger}
}

// Redeem verifies code against the current subtotal and applies it on success.
// Any failure, a rejected code or a transport error, leaves the cart with no
// discount at all. A rejection is returned as *domain.PromoInvalidError
// carrying the verifier's message.
func (p *PromoManager) Redeem(ctx context.Context, e *Engine, code string) (*domain.DiscountDescriptor, error) {
	code = domain.NormalizeCode(code)
	if code == "" {
		p.metrics.PromoRedeem(metrics.OutcomeInvalid)
		return nil, &domain.PromoInvalidError{Code: code, Message: msgEmptyCode}
	}

	subtotal := e.beginVerification(code)

	v, err := p.verifier.VerifyPromo(ctx, catalog.VerifyRequest{Code: code, OrderAmount: subtotal})
	if err != nil {
		p.metrics.PromoRedeem(metrics.OutcomeError)
		p.logger.Warn("promo verification failed",
			zap.String("session_id", e.SessionID()),
			zap.String("code", code),
			zap.Error(err))
		if _, clearErr := e.finishVerification(ctx, code, nil); clearErr != nil {
			return nil, errors.Join(fmt.Errorf("verify promo code: %w", err), clearErr)
		}
		return nil, fmt.Errorf("verify promo code: %w", err)
	}

	if !v.Valid {
		p.metrics.PromoRedeem(metrics.OutcomeInvalid)
		if _, err := e.finishVerification(ctx, code, nil); err != nil {
			return nil, err
		}
		return nil, &domain.PromoInvalidError{Code: code, Message: v.Message}
	}

	d, err := v.Descriptor()
	if err != nil {
		p.metrics.PromoRedeem(metrics.OutcomeError)
		if _, clearErr := e.finishVerification(ctx, code, nil); clearErr != nil {
			return nil, errors.Join(err, clearErr)
		}
		return nil, err
	}
	d.Code = code

	applied, err := e.finishVerification(ctx, code, &d)
	if err != nil {
		p.metrics.PromoRedeem(metrics.OutcomeError)
		return nil, err
	}
	if !applied {
		return nil, ErrVerificationSuperseded
	}

	p.metrics.PromoRedeem(metrics.OutcomeOK)
	p.logger.Info("promo code applied",
		zap.String("session_id", e.SessionID()),
		zap.String("code", code),
		zap.String("kind", string(d.Kind)))
	return &d, nil
}
