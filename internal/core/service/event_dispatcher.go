package service

import (
	"context"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"

	"github.com/rl1809/reservation/internal/core/domain"
	"github.com/rl1809/reservation/internal/platform/observability"
	"github.com/rl1809/reservation/internal/port"
)

const publishTimeout = 5 * time.Second

// EventDispatcher buffers booking events and hands them to a publisher from
// a pool of workers, so a slow broker never holds up a booking request.
// Each worker owns one queue and a booking always hashes to the same queue,
// so the events of one booking are published in the order they were enqueued.
type EventDispatcher struct {
	publisher port.EventPublisher
	log       *zap.Logger

	mu     sync.RWMutex
	closed bool
	queues []chan domain.BookingEvent
}

// NewEventDispatcher splits queueSize evenly across workers queues.
func NewEventDispatcher(publisher port.EventPublisher, workers, queueSize int, log *zap.Logger) *EventDispatcher {
	if workers < 1 {
		workers = 1
	}
	perWorker := queueSize / workers
	if perWorker < 1 {
		perWorker = 1
	}

	queues := make([]chan domain.BookingEvent, workers)
	for i := range queues {
		queues[i] = make(chan domain.BookingEvent, perWorker)
	}
	return &EventDispatcher{publisher: publisher, log: log, queues: queues}
}

// Workers is the number of Run loops the dispatcher expects, one per queue.
func (d *EventDispatcher) Workers() int {
	return len(d.queues)
}

func (d *EventDispatcher) queueFor(bookingID string) chan domain.BookingEvent {
	return d.queues[xxhash.Sum64String(bookingID)%uint64(len(d.queues))]
}

// Enqueue never blocks. It reports false when the event was dropped.
func (d *EventDispatcher) Enqueue(evt domain.BookingEvent) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		observability.EventsDropped.Inc()
		return false
	}

	select {
	case d.queueFor(evt.BookingID) <- evt:
		return true
	default:
		observability.EventsDropped.Inc()
		d.log.Warn("event queue full, dropping event",
			zap.String("type", string(evt.Type)), zap.String("booking_id", evt.BookingID))
		return false
	}
}

// Run drains the queue of worker id until Close is called and it is empty.
func (d *EventDispatcher) Run(id int) {
	for evt := range d.queues[id] {
		ctx, cancel := context.WithTimeout(eventContext(evt), publishTimeout)

		if err := d.publisher.Publish(ctx, evt); err != nil {
			observability.EventsPublished.WithLabelValues(string(evt.Type), "error").Inc()
			d.log.Error("failed to publish booking event",
				zap.Int("worker", id),
				zap.String("type", string(evt.Type)),
				zap.String("booking_id", evt.BookingID),
				zap.Error(err))
		} else {
			observability.EventsPublished.WithLabelValues(string(evt.Type), "ok").Inc()
			d.log.Debug("published booking event",
				zap.Int("worker", id),
				zap.String("type", string(evt.Type)),
				zap.String("booking_id", evt.BookingID))
		}

		cancel()
	}
}

func (d *EventDispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}
	d.closed = true
	for _, q := range d.queues {
		close(q)
	}
}

// eventContext restores the trace of the request that produced evt.
func eventContext(evt domain.BookingEvent) context.Context {
	if evt.Traceparent == "" {
		return context.Background()
	}
	carrier := propagation.MapCarrier{"traceparent": evt.Traceparent}
	return propagation.TraceContext{}.Extract(context.Background(), carrier)
}
