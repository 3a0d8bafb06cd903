package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/reservation/internal/adapter/storage"
	"github.com/rl1809/reservation/internal/core/domain"
	"github.com/rl1809/reservation/internal/port"
)

var errStoreDown = errors.New("store down")

type fixture struct {
	db        *storage.MemoryAdapter
	members   *MemberService
	inventory *InventoryService
	svc       *BookingService
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	return newFixtureWithBookings(t, nil, opts...)
}

// newFixtureWithBookings lets a test swap the booking store while keeping
// the memory adapter as the unit of work.
func newFixtureWithBookings(t *testing.T, wrap func(port.BookingRepository) port.BookingRepository, opts ...Option) *fixture {
	t.Helper()

	db := storage.NewMemoryAdapter()
	log := zap.NewNop()
	members := NewMemberService(db, log)
	inventory := NewInventoryService(db, log)

	var bookings port.BookingRepository = db
	if wrap != nil {
		bookings = wrap(db)
	}

	return &fixture{
		db:        db,
		members:   members,
		inventory: inventory,
		svc:       NewBookingService(db, members, inventory, bookings, log, opts...),
	}
}

func (f *fixture) seedMember(t *testing.T, id string, count int) {
	t.Helper()
	err := f.db.InsertMember(context.Background(), domain.Member{
		ID: id, Name: "Sophie", Surname: "Davis", BookingCount: count, DateJoined: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("seed member: %v", err)
	}
}

func (f *fixture) seedInventory(t *testing.T, id string, remaining int) {
	t.Helper()
	err := f.db.InsertInventory(context.Background(), domain.Inventory{
		ID: id, Title: "Bali", RemainingCount: remaining, ExpirationDate: time.Now().AddDate(1, 0, 0).UTC(),
	})
	if err != nil {
		t.Fatalf("seed inventory: %v", err)
	}
}

func (f *fixture) counters(t *testing.T, memberID, inventoryID string) (int, int) {
	t.Helper()
	ctx := context.Background()
	m, err := f.db.GetMember(ctx, memberID)
	if err != nil || m == nil {
		t.Fatalf("load member: %v", err)
	}
	i, err := f.db.GetInventory(ctx, inventoryID)
	if err != nil || i == nil {
		t.Fatalf("load inventory: %v", err)
	}
	return m.BookingCount, i.RemainingCount
}

// Mock BookingRepository that fails inserts
type failingInsertRepo struct {
	port.BookingRepository
	err error
}

func (r *failingInsertRepo) InsertBooking(context.Context, domain.Booking) error {
	return r.err
}

// Mock IdempotencyStore
type mockIdempotency struct {
	mu      sync.Mutex
	entries map[string]string
	reserve error
}

func newMockIdempotency() *mockIdempotency {
	return &mockIdempotency{entries: make(map[string]string)}
}

func (m *mockIdempotency) Reserve(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.reserve != nil {
		return "", false, m.reserve
	}
	if v, ok := m.entries[key]; ok {
		return v, false, nil
	}
	m.entries[key] = ""
	return "", true, nil
}

func (m *mockIdempotency) Complete(_ context.Context, key, bookingID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = bookingID
	return nil
}

func (m *mockIdempotency) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

func (m *mockIdempotency) get(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.entries[key]
	return v, ok
}

// Mock EventSink
type mockSink struct {
	mu     sync.Mutex
	events []domain.BookingEvent
}

func (m *mockSink) Enqueue(evt domain.BookingEvent) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evt)
	return true
}

func (m *mockSink) snapshot() []domain.BookingEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.BookingEvent(nil), m.events...)
}

// Mock EventPublisher
type mockPublisher struct {
	mu        sync.Mutex
	published []domain.BookingEvent
	err       error
	block     chan struct{}
}

func (m *mockPublisher) Publish(ctx context.Context, events ...domain.BookingEvent) error {
	if m.block != nil {
		select {
		case <-m.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.published = append(m.published, events...)
	return nil
}

func (m *mockPublisher) Close() error { return nil }

func (m *mockPublisher) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.published)
}

// Mock MemberRepository for ledger error paths
type mockMemberRepo struct {
	port.MemberRepository
	getErr error
	setErr error
	member *domain.Member
}

func (m *mockMemberRepo) GetMember(context.Context, string) (*domain.Member, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.member, nil
}

func (m *mockMemberRepo) SetMemberBookingCount(context.Context, string, int, int) error {
	return m.setErr
}

func (m *mockMemberRepo) ListMembers(context.Context) ([]domain.Member, error) {
	return nil, m.getErr
}
