package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/rl1809/reservation/internal/core/domain"
)

type mockProducer struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	err    error
	closed bool
}

func (m *mockProducer) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.msgs = append(m.msgs, msgs...)
	return nil
}

func (m *mockProducer) Close() error {
	m.closed = true
	return nil
}

func headerValue(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func TestKafkaPublisher_Publish(t *testing.T) {
	producer := &mockProducer{}
	pub := NewKafkaPublisher(producer)

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	booking := domain.NewBooking("b-1", "m-1", "i-1", now, now)
	evt := domain.NewBookingEvent(domain.BookingCreated, booking, now)
	evt.Traceparent = "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"

	if err := pub.Publish(context.Background(), evt); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(producer.msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(producer.msgs))
	}
	msg := producer.msgs[0]

	if string(msg.Key) != "b-1" {
		t.Errorf("expected key b-1, got %s", msg.Key)
	}
	if got := headerValue(msg, "event_type"); got != "BookingCreated" {
		t.Errorf("expected event_type header, got %q", got)
	}
	if got := headerValue(msg, "traceparent"); got != evt.Traceparent {
		t.Errorf("expected traceparent header %q, got %q", evt.Traceparent, got)
	}

	var decoded map[string]any
	if err := json.Unmarshal(msg.Value, &decoded); err != nil {
		t.Fatalf("payload is not json: %v", err)
	}
	if decoded["bookingId"] != "b-1" || decoded["status"] != "active" {
		t.Errorf("unexpected payload: %v", decoded)
	}
	if _, ok := decoded["Traceparent"]; ok {
		t.Error("traceparent must not be part of the payload")
	}
}

func TestKafkaPublisher_WriteError(t *testing.T) {
	producer := &mockProducer{err: errors.New("broker down")}
	pub := NewKafkaPublisher(producer)

	evt := domain.BookingEvent{Type: domain.BookingCancelled, BookingID: "b-2"}
	if err := pub.Publish(context.Background(), evt); err == nil {
		t.Fatal("expected error")
	}
}

func TestKafkaPublisher_EmptyAndClose(t *testing.T) {
	producer := &mockProducer{}
	pub := NewKafkaPublisher(producer)

	if err := pub.Publish(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(producer.msgs) != 0 {
		t.Errorf("expected no messages, got %d", len(producer.msgs))
	}
	if err := pub.Close(); err != nil || !producer.closed {
		t.Error("expected producer to be closed")
	}
}
