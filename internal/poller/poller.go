package poller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	OutboxTopic   = "checkout-outbox"
	ConsumerGroup = "cart-engine"
)

// CartClearer empties the cart of a session.
type CartClearer interface {
	ClearSession(ctx context.Context, sessionID string) error
}

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

type checkoutEvent struct {
	CheckoutID string `json:"checkout_id"`
	SessionID  string `json:"session_id"`
	UserID     string `json:"user_id"`
}

// Poller consumes completed checkouts and clears the cart they came from.
type Poller struct {
	carts  CartClearer
	reader messageReader
	logger *zap.Logger
}

func NewPoller(carts CartClearer, logger *zap.Logger, topic, groupID string, brokers ...string) *Poller {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MaxBytes: 10e6, // 10MB
	})
	return &Poller{carts: carts, reader: reader, logger: logger}
}

func (p *Poller) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		m, err := p.reader.ReadMessage(ctx)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				p.logger.Warn("error reading message", zap.Error(err))
			}
			continue
		}
		if err := p.handleMessage(ctx, m); err != nil {
			p.logger.Error("failed to process checkout event",
				zap.Int64("offset", m.Offset),
				zap.Error(err))
		}
	}
}

func (p *Poller) Close() {
	if err := p.reader.Close(); err != nil {
		p.logger.Warn("error closing reader", zap.Error(err))
	}
}

func (p *Poller) handleMessage(ctx context.Context, m kafka.Message) error {
	var event checkoutEvent
	if err := json.Unmarshal(m.Value, &event); err != nil {
		return fmt.Errorf("parse message: %w", err)
	}

	sessionID := event.SessionID
	if sessionID == "" {
		sessionID = event.UserID
	}
	if sessionID == "" {
		return errors.New("missing session_id and user_id")
	}

	if err := p.carts.ClearSession(ctx, sessionID); err != nil {
		return fmt.Errorf("clear cart %s: %w", sessionID, err)
	}

	p.logger.Info("cart cleared after checkout",
		zap.String("session_id", sessionID),
		zap.String("checkout_id", event.CheckoutID))
	return nil
}
