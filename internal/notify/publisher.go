// Package notify delivers order status events to subscribers. Delivery is
// best-effort and at-most-once.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Publisher delivers one event to one subscriber key (user:<id> or role:<role>).
type Publisher interface {
	Publish(ctx context.Context, subscriberKey, event string, payload any) error
	Close() error
}

// Envelope is the wire form of every delivered event.
type Envelope struct {
	EventID    string          `json:"event_id"`
	Event      string          `json:"event"`
	Subscriber string          `json:"subscriber"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

func newEnvelope(subscriberKey, event string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return json.Marshal(Envelope{
		EventID:    uuid.NewString(),
		Event:      event,
		Subscriber: subscriberKey,
		OccurredAt: time.Now().UTC(),
		Payload:    raw,
	})
}

// RedisPublisher publishes envelopes on a Redis channel named after the subscriber key.
type RedisPublisher struct {
	client *redis.Client
}

func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

func (p *RedisPublisher) Publish(ctx context.Context, subscriberKey, event string, payload any) error {
	body, err := newEnvelope(subscriberKey, event, payload)
	if err != nil {
		return err
	}
	if err := p.client.Publish(ctx, subscriberKey, body).Err(); err != nil {
		return fmt.Errorf("failed to publish to redis: %w", err)
	}
	return nil
}

// Close is a no-op; the client is owned by the caller.
func (p *RedisPublisher) Close() error { return nil }

// KafkaPublisher writes envelopes to one topic keyed by subscriber, so every
// subscriber's events stay ordered within a partition.
type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			MaxAttempts:  3,
			WriteTimeout: 10 * time.Second,
		},
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, subscriberKey, event string, payload any) error {
	body, err := newEnvelope(subscriberKey, event, payload)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:     []byte(subscriberKey),
		Value:   body,
		Time:    time.Now(),
		Headers: []kafka.Header{{Key: "event", Value: []byte(event)}},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message to kafka: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// LogPublisher only logs events. Used when no broker is configured.
type LogPublisher struct {
	logger *zap.Logger
}

func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, subscriberKey, event string, payload any) error {
	p.logger.Info("Notification",
		zap.String("subscriber", subscriberKey),
		zap.String("event", event),
		zap.Any("payload", payload),
	)
	return nil
}

func (p *LogPublisher) Close() error { return nil }
