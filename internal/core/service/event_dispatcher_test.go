package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/rl1809/reservation/internal/core/domain"
)

func TestEventDispatcher_PublishesQueuedEvents(t *testing.T) {
	pub := &mockPublisher{}
	d := NewEventDispatcher(pub, 3, 12, zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < d.Workers(); i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			d.Run(id)
		}(i)
	}

	for i := 0; i < 5; i++ {
		if !d.Enqueue(domain.BookingEvent{Type: domain.BookingCreated, BookingID: fmt.Sprintf("b-%d", i)}) {
			t.Fatalf("enqueue %d dropped", i)
		}
	}

	d.Close()
	wg.Wait()

	if pub.count() != 5 {
		t.Errorf("expected 5 published events, got %d", pub.count())
	}
}

func TestEventDispatcher_DropsWhenFull(t *testing.T) {
	d := NewEventDispatcher(&mockPublisher{}, 1, 1, zap.NewNop())
	defer d.Close()

	if !d.Enqueue(domain.BookingEvent{BookingID: "1"}) {
		t.Fatal("expected first event to be queued")
	}
	if d.Enqueue(domain.BookingEvent{BookingID: "2"}) {
		t.Error("expected second event to be dropped")
	}
}

func TestEventDispatcher_DropsAfterClose(t *testing.T) {
	d := NewEventDispatcher(&mockPublisher{}, 2, 4, zap.NewNop())
	d.Close()
	d.Close()

	if d.Enqueue(domain.BookingEvent{BookingID: "1"}) {
		t.Error("expected event to be dropped after close")
	}
}

func TestEventDispatcher_PublishErrorDoesNotStopWorker(t *testing.T) {
	pub := &mockPublisher{err: errStoreDown}
	d := NewEventDispatcher(pub, 1, 4, zap.NewNop())

	done := make(chan struct{})
	go func() {
		d.Run(0)
		close(done)
	}()

	d.Enqueue(domain.BookingEvent{BookingID: "1"})
	d.Enqueue(domain.BookingEvent{BookingID: "2"})
	d.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not drain the queue")
	}
}

// Publisher that is slow on creation events and records publish order
type orderRecordingPublisher struct {
	mu    sync.Mutex
	order map[string][]domain.BookingEventType
}

func (p *orderRecordingPublisher) Publish(_ context.Context, events ...domain.BookingEvent) error {
	for _, evt := range events {
		if evt.Type == domain.BookingCreated {
			time.Sleep(20 * time.Millisecond)
		}
		p.mu.Lock()
		p.order[evt.BookingID] = append(p.order[evt.BookingID], evt.Type)
		p.mu.Unlock()
	}
	return nil
}

func (p *orderRecordingPublisher) Close() error { return nil }

func TestEventDispatcher_KeepsPerBookingOrder(t *testing.T) {
	pub := &orderRecordingPublisher{order: make(map[string][]domain.BookingEventType)}
	d := NewEventDispatcher(pub, 4, 64, zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < d.Workers(); i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			d.Run(id)
		}(i)
	}

	for i := 0; i < 8; i++ {
		id := fmt.Sprintf("b-%d", i)
		if !d.Enqueue(domain.BookingEvent{Type: domain.BookingCreated, BookingID: id}) {
			t.Fatalf("created event for %s dropped", id)
		}
		if !d.Enqueue(domain.BookingEvent{Type: domain.BookingCancelled, BookingID: id}) {
			t.Fatalf("cancelled event for %s dropped", id)
		}
	}

	d.Close()
	wg.Wait()

	for i := 0; i < 8; i++ {
		id := fmt.Sprintf("b-%d", i)
		got := pub.order[id]
		if len(got) != 2 || got[0] != domain.BookingCreated || got[1] != domain.BookingCancelled {
			t.Errorf("publish order for %s: %v", id, got)
		}
	}
}

func TestEventDispatcher_SameBookingSameQueue(t *testing.T) {
	d := NewEventDispatcher(&mockPublisher{}, 4, 16, zap.NewNop())
	defer d.Close()

	if d.queueFor("b-1") != d.queueFor("b-1") {
		t.Error("expected a booking to always map to one queue")
	}
	if d.Workers() != 4 {
		t.Errorf("expected 4 workers, got %d", d.Workers())
	}
}

func TestEventContext_RestoresTrace(t *testing.T) {
	evt := domain.BookingEvent{Traceparent: "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"}

	sc := trace.SpanContextFromContext(eventContext(evt))
	if !sc.IsValid() || !sc.IsRemote() {
		t.Fatal("expected a remote span context")
	}
	if sc.TraceID().String() != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Errorf("unexpected trace id %s", sc.TraceID())
	}

	if trace.SpanContextFromContext(eventContext(domain.BookingEvent{})).IsValid() {
		t.Error("expected no span context without traceparent")
	}
}

func TestCreate_EventCarriesRequestTrace(t *testing.T) {
	sink := &mockSink{}
	f := newFixture(t, WithEvents(sink))
	f.seedMember(t, memberID, 0)
	f.seedInventory(t, inventoryID, 5)

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	parent := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	})
	ctx := trace.ContextWithRemoteSpanContext(context.Background(), parent)

	if _, err := f.svc.Create(ctx, createReq()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	events := sink.snapshot()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	restored := trace.SpanContextFromContext(eventContext(events[0]))
	if restored.TraceID() != traceID {
		t.Errorf("expected trace %s to survive the queue, got %s", traceID, restored.TraceID())
	}
}
