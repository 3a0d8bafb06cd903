package storage

import (
	"context"
	"sync"
	"time"
)

type idempotencyState struct {
	bookingID string
	expiresAt time.Time
}

// MemoryIdempotency is the single-process IdempotencyStore used when no
// Redis address is configured.
type MemoryIdempotency struct {
	mu         sync.Mutex
	keys       map[string]idempotencyState
	ttl        time.Duration
	pendingTTL time.Duration
	now        func() time.Time
}

func NewMemoryIdempotency(ttl time.Duration) *MemoryIdempotency {
	if ttl <= 0 {
		ttl = DefaultIdempotencyTTL
	}
	return &MemoryIdempotency{
		keys:       make(map[string]idempotencyState),
		ttl:        ttl,
		pendingTTL: min(ttl, PendingIdempotencyTTL),
		now:        time.Now,
	}
}

func (s *MemoryIdempotency) Reserve(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if state, ok := s.keys[key]; ok && now.Before(state.expiresAt) {
		return state.bookingID, false, nil
	}

	s.keys[key] = idempotencyState{expiresAt: now.Add(s.pendingTTL)}
	return "", true, nil
}

func (s *MemoryIdempotency) Complete(_ context.Context, key, bookingID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.keys[key] = idempotencyState{bookingID: bookingID, expiresAt: s.now().Add(s.ttl)}
	return nil
}

func (s *MemoryIdempotency) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.keys, key)
	return nil
}
