package storage

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/rl1809/reservation/internal/core/domain"
	"github.com/rl1809/reservation/internal/port"
)

const (
	memberKeyPrefix    = "member:"
	inventoryKeyPrefix = "inventory:"
	bookingKeyPrefix   = "booking:"
)

type memTxKey struct{}

// rowLocks hands out one lock per row key. Waiting honours ctx. An entry
// lives only while some goroutine holds or waits for it.
type rowLocks struct {
	mu    sync.Mutex
	locks map[string]*rowLock
}

type rowLock struct {
	ch   chan struct{}
	refs int
}

func (l *rowLocks) acquire(ctx context.Context, key string) error {
	l.mu.Lock()
	lk, ok := l.locks[key]
	if !ok {
		lk = &rowLock{ch: make(chan struct{}, 1)}
		l.locks[key] = lk
	}
	lk.refs++
	l.mu.Unlock()

	select {
	case lk.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		l.unref(key, lk)
		return fmt.Errorf("lock %s: %w", key, ctx.Err())
	}
}

func (l *rowLocks) release(key string) {
	l.mu.Lock()
	lk := l.locks[key]
	l.mu.Unlock()

	<-lk.ch
	l.unref(key, lk)
}

func (l *rowLocks) unref(key string, lk *rowLock) {
	l.mu.Lock()
	defer l.mu.Unlock()

	lk.refs--
	if lk.refs == 0 {
		delete(l.locks, key)
	}
}

// memTx is owned by the single goroutine running the unit of work.
type memTx struct {
	held map[string]struct{}
	keys []string
	undo []func()
}

func (t *memTx) lock(ctx context.Context, locks *rowLocks, key string) error {
	if _, ok := t.held[key]; ok {
		return nil
	}
	if err := locks.acquire(ctx, key); err != nil {
		return err
	}
	t.held[key] = struct{}{}
	t.keys = append(t.keys, key)
	return nil
}

func memTxFrom(ctx context.Context) *memTx {
	tx, _ := ctx.Value(memTxKey{}).(*memTx)
	return tx
}

// MemoryAdapter keeps members, inventory and bookings in process memory.
// It implements the same unit-of-work contract as MySQLAdapter.
type MemoryAdapter struct {
	mu        sync.RWMutex
	members   map[string]domain.Member
	inventory map[string]domain.Inventory
	bookings  map[string]domain.Booking
	locks     *rowLocks
}

func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{
		members:   make(map[string]domain.Member),
		inventory: make(map[string]domain.Inventory),
		bookings:  make(map[string]domain.Booking),
		locks:     &rowLocks{locks: make(map[string]*rowLock)},
	}
}

func (m *MemoryAdapter) WithinTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if memTxFrom(ctx) != nil {
		return fn(ctx)
	}

	tx := &memTx{held: make(map[string]struct{})}
	defer func() {
		r := recover()
		if err != nil || r != nil {
			m.rollback(tx)
		}
		for _, key := range tx.keys {
			m.locks.release(key)
		}
		if r != nil {
			panic(r)
		}
	}()

	return fn(context.WithValue(ctx, memTxKey{}, tx))
}

func (m *MemoryAdapter) rollback(tx *memTx) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := len(tx.undo) - 1; i >= 0; i-- {
		tx.undo[i]()
	}
	tx.undo = nil
}

// withRow runs fn while holding the row lock for key. Inside a unit of work
// the lock is kept until the unit ends; outside it is released on return.
func (m *MemoryAdapter) withRow(ctx context.Context, key string, fn func(tx *memTx) error) error {
	if tx := memTxFrom(ctx); tx != nil {
		if err := tx.lock(ctx, m.locks, key); err != nil {
			return err
		}
		return fn(tx)
	}

	if err := m.locks.acquire(ctx, key); err != nil {
		return err
	}
	defer m.locks.release(key)
	return fn(nil)
}

// lockForRead takes the row lock only inside a unit of work.
func (m *MemoryAdapter) lockForRead(ctx context.Context, key string) error {
	if tx := memTxFrom(ctx); tx != nil {
		return tx.lock(ctx, m.locks, key)
	}
	return nil
}

// Member repository

func (m *MemoryAdapter) GetMember(ctx context.Context, id string) (*domain.Member, error) {
	if err := m.lockForRead(ctx, memberKeyPrefix+id); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	member, ok := m.members[id]
	if !ok {
		return nil, nil
	}
	return &member, nil
}

func (m *MemoryAdapter) ListMembers(_ context.Context) ([]domain.Member, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]domain.Member, 0, len(m.members))
	for _, member := range m.members {
		result = append(result, member)
	}
	slices.SortFunc(result, func(a, b domain.Member) int {
		if c := a.DateJoined.Compare(b.DateJoined); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return result, nil
}

func (m *MemoryAdapter) InsertMember(ctx context.Context, member domain.Member) error {
	return m.BulkInsertMembers(ctx, []domain.Member{member})
}

func (m *MemoryAdapter) BulkInsertMembers(ctx context.Context, members []domain.Member) error {
	tx := memTxFrom(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[string]struct{}, len(members))
	for _, member := range members {
		if _, ok := m.members[member.ID]; ok {
			return fmt.Errorf("insert member %s: %w", member.ID, port.ErrDuplicateKey)
		}
		if _, ok := seen[member.ID]; ok {
			return fmt.Errorf("insert member %s: %w", member.ID, port.ErrDuplicateKey)
		}
		seen[member.ID] = struct{}{}
	}

	for _, member := range members {
		m.members[member.ID] = member
		if tx != nil {
			id := member.ID
			tx.undo = append(tx.undo, func() { delete(m.members, id) })
		}
	}
	return nil
}

func (m *MemoryAdapter) SetMemberBookingCount(ctx context.Context, id string, expected, value int) error {
	return m.withRow(ctx, memberKeyPrefix+id, func(tx *memTx) error {
		m.mu.Lock()
		defer m.mu.Unlock()

		member, ok := m.members[id]
		if !ok {
			return fmt.Errorf("member %s: %w", id, port.ErrRecordNotFound)
		}
		if member.BookingCount != expected {
			return fmt.Errorf("member %s booking count: %w", id, port.ErrOptimisticLock)
		}

		prev := member
		member.BookingCount = value
		m.members[id] = member
		if tx != nil {
			tx.undo = append(tx.undo, func() { m.members[id] = prev })
		}
		return nil
	})
}

// Inventory repository

func (m *MemoryAdapter) GetInventory(ctx context.Context, id string) (*domain.Inventory, error) {
	if err := m.lockForRead(ctx, inventoryKeyPrefix+id); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	item, ok := m.inventory[id]
	if !ok {
		return nil, nil
	}
	return &item, nil
}

func (m *MemoryAdapter) ListInventory(_ context.Context) ([]domain.Inventory, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]domain.Inventory, 0, len(m.inventory))
	for _, item := range m.inventory {
		result = append(result, item)
	}
	slices.SortFunc(result, func(a, b domain.Inventory) int {
		if c := strings.Compare(a.Title, b.Title); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return result, nil
}

func (m *MemoryAdapter) InsertInventory(ctx context.Context, item domain.Inventory) error {
	return m.BulkInsertInventory(ctx, []domain.Inventory{item})
}

func (m *MemoryAdapter) BulkInsertInventory(ctx context.Context, items []domain.Inventory) error {
	tx := memTxFrom(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		if _, ok := m.inventory[item.ID]; ok {
			return fmt.Errorf("insert inventory %s: %w", item.ID, port.ErrDuplicateKey)
		}
		if _, ok := seen[item.ID]; ok {
			return fmt.Errorf("insert inventory %s: %w", item.ID, port.ErrDuplicateKey)
		}
		seen[item.ID] = struct{}{}
	}

	for _, item := range items {
		m.inventory[item.ID] = item
		if tx != nil {
			id := item.ID
			tx.undo = append(tx.undo, func() { delete(m.inventory, id) })
		}
	}
	return nil
}

func (m *MemoryAdapter) SetInventoryRemainingCount(ctx context.Context, id string, expected, value int) error {
	return m.withRow(ctx, inventoryKeyPrefix+id, func(tx *memTx) error {
		m.mu.Lock()
		defer m.mu.Unlock()

		item, ok := m.inventory[id]
		if !ok {
			return fmt.Errorf("inventory %s: %w", id, port.ErrRecordNotFound)
		}
		if item.RemainingCount != expected {
			return fmt.Errorf("inventory %s remaining count: %w", id, port.ErrOptimisticLock)
		}

		prev := item
		item.RemainingCount = value
		m.inventory[id] = item
		if tx != nil {
			tx.undo = append(tx.undo, func() { m.inventory[id] = prev })
		}
		return nil
	})
}

// Booking repository

func (m *MemoryAdapter) InsertBooking(ctx context.Context, booking domain.Booking) error {
	return m.withRow(ctx, bookingKeyPrefix+booking.ID, func(tx *memTx) error {
		m.mu.Lock()
		defer m.mu.Unlock()

		if _, ok := m.bookings[booking.ID]; ok {
			return fmt.Errorf("insert booking %s: %w", booking.ID, port.ErrDuplicateKey)
		}
		m.bookings[booking.ID] = booking
		if tx != nil {
			id := booking.ID
			tx.undo = append(tx.undo, func() { delete(m.bookings, id) })
		}
		return nil
	})
}

func (m *MemoryAdapter) UpdateBooking(ctx context.Context, booking domain.Booking, expected domain.BookingStatus) error {
	return m.withRow(ctx, bookingKeyPrefix+booking.ID, func(tx *memTx) error {
		m.mu.Lock()
		defer m.mu.Unlock()

		prev, ok := m.bookings[booking.ID]
		if !ok {
			return fmt.Errorf("booking %s: %w", booking.ID, port.ErrRecordNotFound)
		}
		if prev.Status != expected {
			return fmt.Errorf("booking %s status: %w", booking.ID, port.ErrOptimisticLock)
		}

		m.bookings[booking.ID] = booking
		if tx != nil {
			id := booking.ID
			tx.undo = append(tx.undo, func() { m.bookings[id] = prev })
		}
		return nil
	})
}

func (m *MemoryAdapter) GetBooking(ctx context.Context, id string) (*domain.Booking, error) {
	if err := m.lockForRead(ctx, bookingKeyPrefix+id); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	booking, ok := m.bookings[id]
	if !ok {
		return nil, nil
	}
	return &booking, nil
}

func (m *MemoryAdapter) ListBookings(_ context.Context) ([]domain.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]domain.Booking, 0, len(m.bookings))
	for _, booking := range m.bookings {
		result = append(result, booking)
	}
	slices.SortFunc(result, func(a, b domain.Booking) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return result, nil
}
