package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/rl1809/reservation/internal/core/domain"
	"github.com/rl1809/reservation/internal/platform/observability"
	"github.com/rl1809/reservation/internal/port"
)

const DefaultOperationTimeout = 5 * time.Second

type MemberLedger interface {
	GetByID(ctx context.Context, id string) (*domain.Member, error)
	UpdateBookingCount(ctx context.Context, id string, count int) (*domain.Member, error)
}

type InventoryLedger interface {
	GetByID(ctx context.Context, id string) (*domain.Inventory, error)
	UpdateRemainingCount(ctx context.Context, id string, count int) (*domain.Inventory, error)
}

type EventSink interface {
	Enqueue(evt domain.BookingEvent) bool
}

type CreateBookingRequest struct {
	MemberID    string
	InventoryID string
	ScheduledAt time.Time

	// IdempotencyKey is optional. Repeating a finished request with the same
	// key returns the booking it produced.
	IdempotencyKey string
}

// BookingService orchestrates booking creation and cancellation across the
// member ledger, the inventory ledger and the booking store.
type BookingService struct {
	tx        port.Transactor
	members   MemberLedger
	inventory InventoryLedger
	bookings  port.BookingRepository

	idempotency port.IdempotencyStore
	events      EventSink

	log     *zap.Logger
	tracer  trace.Tracer
	timeout time.Duration
	now     func() time.Time
	newID   func() string
}

type Option func(*BookingService)

func WithIdempotency(store port.IdempotencyStore) Option {
	return func(s *BookingService) { s.idempotency = store }
}

func WithEvents(sink EventSink) Option {
	return func(s *BookingService) { s.events = sink }
}

// WithTimeout bounds every orchestrated operation. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(s *BookingService) { s.timeout = d }
}

func WithClock(now func() time.Time) Option {
	return func(s *BookingService) { s.now = now }
}

func NewBookingService(
	tx port.Transactor,
	members MemberLedger,
	inventory InventoryLedger,
	bookings port.BookingRepository,
	log *zap.Logger,
	opts ...Option,
) *BookingService {
	s := &BookingService{
		tx:        tx,
		members:   members,
		inventory: inventory,
		bookings:  bookings,
		log:       log,
		tracer:    otel.Tracer("reservation/booking"),
		timeout:   DefaultOperationTimeout,
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *BookingService) Create(ctx context.Context, req CreateBookingRequest) (*domain.Booking, error) {
	ctx, span := s.tracer.Start(ctx, "BookingService.Create", trace.WithAttributes(
		attribute.String("member.id", req.MemberID),
		attribute.String("inventory.id", req.InventoryID),
	))
	defer span.End()
	defer observeDuration("create", time.Now())

	ctx, cancel := s.bound(ctx)
	defer cancel()

	key := req.IdempotencyKey
	if key != "" && s.idempotency != nil {
		bookingID, ok, err := s.idempotency.Reserve(ctx, key)
		if err != nil {
			return nil, s.fail(span, "create", storeErr("Failed to check idempotency key.", err))
		}
		if !ok {
			if bookingID == "" {
				return nil, s.fail(span, "create", domain.BadRequest("Booking request is already being processed."))
			}
			span.SetAttributes(attribute.Bool("idempotent.replay", true))
			return s.get(ctx, span, "create", bookingID)
		}
	}

	booking, err := s.create(ctx, req)
	if err != nil {
		if key != "" && s.idempotency != nil {
			if relErr := s.idempotency.Release(context.WithoutCancel(ctx), key); relErr != nil {
				s.log.Error("failed to release idempotency key", zap.String("key", key), zap.Error(relErr))
			}
		}
		return nil, s.fail(span, "create", err)
	}

	if key != "" && s.idempotency != nil {
		if err := s.idempotency.Complete(context.WithoutCancel(ctx), key, booking.ID); err != nil {
			s.log.Error("failed to record idempotency key", zap.String("key", key), zap.Error(err))
		}
	}

	s.emit(ctx, domain.BookingCreated, *booking)
	observability.BookingsCreated.Inc()
	span.SetAttributes(attribute.String("booking.id", booking.ID))
	span.SetStatus(codes.Ok, "booking created")
	s.log.Info("booking created",
		zap.String("booking_id", booking.ID),
		zap.String("member_id", booking.MemberID),
		zap.String("inventory_id", booking.InventoryID))

	return booking, nil
}

// create runs the eligibility checks and the three writes as one unit. The
// booking insert is the last write, so a failure anywhere leaves no counter
// change behind.
func (s *BookingService) create(ctx context.Context, req CreateBookingRequest) (*domain.Booking, error) {
	var booking domain.Booking

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		member, err := s.members.GetByID(ctx, req.MemberID)
		if err != nil {
			if domain.IsKind(err, domain.KindNotFound) {
				return domain.NotFound("Member not found")
			}
			return err
		}
		if !member.CanBook() {
			return domain.ValidationError(fmt.Sprintf(
				"Member has reached the maximum booking limit of %d.", domain.MaxActiveBookings))
		}

		item, err := s.inventory.GetByID(ctx, req.InventoryID)
		if err != nil {
			if domain.IsKind(err, domain.KindNotFound) {
				return domain.NotFound("Inventory item not found")
			}
			return err
		}
		if !item.Available() {
			return domain.ValidationError("No remaining items available for booking.")
		}

		if _, err := s.members.UpdateBookingCount(ctx, member.ID, member.BookingCount+1); err != nil {
			return err
		}
		if _, err := s.inventory.UpdateRemainingCount(ctx, item.ID, item.RemainingCount-1); err != nil {
			return err
		}

		booking = domain.NewBooking(s.newID(), member.ID, item.ID, req.ScheduledAt.UTC(), s.now().UTC())
		if err := s.bookings.InsertBooking(ctx, booking); err != nil {
			return storeErr("Failed to create booking.", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

// Cancel moves a booking to cancelled. Counters are not restored.
func (s *BookingService) Cancel(ctx context.Context, bookingID string) (*domain.Booking, error) {
	ctx, span := s.tracer.Start(ctx, "BookingService.Cancel", trace.WithAttributes(
		attribute.String("booking.id", bookingID),
	))
	defer span.End()
	defer observeDuration("cancel", time.Now())

	ctx, cancel := s.bound(ctx)
	defer cancel()

	var booking domain.Booking
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		current, err := s.bookings.GetBooking(ctx, bookingID)
		if err != nil {
			return storeErr("Failed to load booking.", err)
		}
		if current == nil {
			return domain.NotFound("Booking not found")
		}

		booking = *current
		if err := booking.Cancel(s.now().UTC()); err != nil {
			return domain.BadRequest("Booking is already cancelled.")
		}
		if err := s.bookings.UpdateBooking(ctx, booking, domain.BookingStatusActive); err != nil {
			return storeErr("Failed to cancel booking.", err)
		}
		return nil
	})
	if err != nil {
		return nil, s.fail(span, "cancel", err)
	}

	s.emit(ctx, domain.BookingCancelled, booking)
	observability.BookingsCancelled.Inc()
	span.SetStatus(codes.Ok, "booking cancelled")
	s.log.Info("booking cancelled", zap.String("booking_id", booking.ID))

	return &booking, nil
}

func (s *BookingService) Get(ctx context.Context, bookingID string) (*domain.Booking, error) {
	ctx, span := s.tracer.Start(ctx, "BookingService.Get", trace.WithAttributes(
		attribute.String("booking.id", bookingID),
	))
	defer span.End()

	ctx, cancel := s.bound(ctx)
	defer cancel()

	return s.get(ctx, span, "get", bookingID)
}

func (s *BookingService) get(ctx context.Context, span trace.Span, op, bookingID string) (*domain.Booking, error) {
	booking, err := s.bookings.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, s.fail(span, op, storeErr("Failed to load booking.", err))
	}
	if booking == nil {
		return nil, s.fail(span, op, domain.NotFound("Booking not found"))
	}
	return booking, nil
}

func (s *BookingService) List(ctx context.Context) ([]domain.Booking, error) {
	ctx, span := s.tracer.Start(ctx, "BookingService.List")
	defer span.End()

	ctx, cancel := s.bound(ctx)
	defer cancel()

	bookings, err := s.bookings.ListBookings(ctx)
	if err != nil {
		return nil, s.fail(span, "list", storeErr("Failed to list bookings.", err))
	}
	span.SetAttributes(attribute.Int("booking.count", len(bookings)))
	return bookings, nil
}

func (s *BookingService) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *BookingService) emit(ctx context.Context, t domain.BookingEventType, b domain.Booking) {
	if s.events == nil {
		return
	}
	evt := domain.NewBookingEvent(t, b, s.now().UTC())
	carrier := propagation.MapCarrier{}
	observability.Inject(ctx, carrier)
	evt.Traceparent = carrier.Get("traceparent")
	s.events.Enqueue(evt)
}

// fail normalizes err into a *domain.Error and records it.
func (s *BookingService) fail(span trace.Span, op string, err error) error {
	derr := normalize(err)

	span.RecordError(derr)
	span.SetStatus(codes.Error, derr.Message())
	observability.BookingRejections.WithLabelValues(op, string(derr.Kind())).Inc()

	if derr.Kind() == domain.KindInternalServer {
		s.log.Error("booking operation failed",
			zap.String("op", op), zap.Bool("retryable", derr.IsRetryable()), zap.Error(derr))
	} else {
		s.log.Info("booking operation rejected",
			zap.String("op", op), zap.String("kind", string(derr.Kind())), zap.String("reason", derr.Message()))
	}
	return derr
}

func normalize(err error) *domain.Error {
	var derr *domain.Error
	if errors.As(err, &derr) {
		return derr
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, port.ErrOptimisticLock):
		return storeErr("", err)
	case errors.Is(err, context.Canceled):
		return domain.Retryable("Booking operation was cancelled.", err)
	}
	return domain.InternalServer("Unexpected booking failure.", err)
}

func observeDuration(op string, start time.Time) {
	observability.BookingDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
