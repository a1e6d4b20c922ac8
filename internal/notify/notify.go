// Package notify tells the outside world about items revalidation removed.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fjod/go_cart/cart-engine/internal/domain"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	EventsTopic          = "cart-events"
	EventItemsRemoved    = "cart.items_removed"
	eventTypeHeader      = "event_type"
	defaultPublishWindow = 5 * time.Second
)

// LogNotifier only logs. It is the fallback when no broker is configured.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) ItemsRemoved(_ context.Context, sessionID string, w domain.StaleItemRemovedWarning) error {
	n.logger.Info("items no longer available",
		zap.String("session_id", sessionID),
		zap.Int64s("product_ids", w.ProductIDs),
		zap.Strings("removed", w.Names))
	return nil
}

type ItemsRemovedEvent struct {
	EventID    string    `json:"event_id"`
	EventType  string    `json:"event_type"`
	SessionID  string    `json:"session_id"`
	ProductIDs []int64   `json:"product_ids"`
	Names      []string  `json:"names"`
	OccurredAt time.Time `json:"occurred_at"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier publishes ItemsRemovedEvent keyed by session, so events of one
// cart stay ordered.
type KafkaNotifier struct {
	writer  messageWriter
	timeout time.Duration
	now     func() time.Time
	newID   func() string
}

func NewKafkaNotifier(topic string, brokers ...string) *KafkaNotifier {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
	return newKafkaNotifier(w)
}

func newKafkaNotifier(w messageWriter) *KafkaNotifier {
	return &KafkaNotifier{
		writer:  w,
		timeout: defaultPublishWindow,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

func (n *KafkaNotifier) ItemsRemoved(ctx context.Context, sessionID string, w domain.StaleItemRemovedWarning) error {
	event := ItemsRemovedEvent{
		EventID:    n.newID(),
		EventType:  EventItemsRemoved,
		SessionID:  sessionID,
		ProductIDs: w.ProductIDs,
		Names:      w.Names,
		OccurredAt: n.now().UTC(),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	msg := kafka.Message{
		Key:   []byte(sessionID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: eventTypeHeader, Value: []byte(EventItemsRemoved)},
		},
	}
	if err := n.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s: %w", EventItemsRemoved, err)
	}
	return nil
}

func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}
