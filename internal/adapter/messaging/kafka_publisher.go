package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/propagation"

	"github.com/rl1809/reservation/internal/core/domain"
	"github.com/rl1809/reservation/internal/platform/observability"
)

// Producer is the subset of *kafka.Writer the publisher needs.
type Producer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

func NewWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
	}
}

// KafkaPublisher writes booking events keyed by booking id, so every event
// of one booking lands on the same partition in order.
type KafkaPublisher struct {
	producer Producer
}

func NewKafkaPublisher(producer Producer) *KafkaPublisher {
	return &KafkaPublisher{producer: producer}
}

func (p *KafkaPublisher) Publish(ctx context.Context, events ...domain.BookingEvent) error {
	if len(events) == 0 {
		return nil
	}

	msgs := make([]kafka.Message, 0, len(events))
	for _, evt := range events {
		payload, err := json.Marshal(evt)
		if err != nil {
			return fmt.Errorf("marshal %s event: %w", evt.Type, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:     []byte(evt.BookingID),
			Value:   payload,
			Headers: headers(ctx, evt),
		})
	}

	if err := p.producer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write booking events: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}

func headers(ctx context.Context, evt domain.BookingEvent) []kafka.Header {
	carrier := propagation.MapCarrier{}
	observability.Inject(ctx, carrier)
	if _, ok := carrier["traceparent"]; !ok && evt.Traceparent != "" {
		carrier["traceparent"] = evt.Traceparent
	}

	out := make([]kafka.Header, 0, len(carrier)+1)
	out = append(out, kafka.Header{Key: "event_type", Value: []byte(evt.Type)})
	for k, v := range carrier {
		out = append(out, kafka.Header{Key: k, Value: []byte(v)})
	}
	return out
}

// NoopPublisher discards events. Used when no broker is configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, ...domain.BookingEvent) error { return nil }
func (NoopPublisher) Close() error                                           { return nil }
