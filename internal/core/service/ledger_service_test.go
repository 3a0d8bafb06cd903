package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/reservation/internal/adapter/storage"
	"github.com/rl1809/reservation/internal/core/domain"
	"github.com/rl1809/reservation/internal/port"
)

func TestMemberService_CreateAndGet(t *testing.T) {
	svc := NewMemberService(storage.NewMemoryAdapter(), zap.NewNop())

	member, err := svc.Create(context.Background(), CreateMemberInput{Name: "  Sophie ", Surname: "Davis"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if member.Name != "Sophie" || member.BookingCount != 0 || member.DateJoined.IsZero() {
		t.Errorf("unexpected member: %+v", member)
	}

	got, err := svc.GetByID(context.Background(), member.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != member.ID {
		t.Errorf("expected %s, got %s", member.ID, got.ID)
	}

	_, err = svc.GetByID(context.Background(), "missing")
	assertError(t, err, domain.KindNotFound, "Member not found.")

	_, err = svc.Create(context.Background(), CreateMemberInput{Name: " "})
	assertError(t, err, domain.KindBadRequest, "Member name is required.")
}

func TestMemberService_BulkCreate(t *testing.T) {
	db := storage.NewMemoryAdapter()
	svc := NewMemberService(db, zap.NewNop())

	created, err := svc.BulkCreate(context.Background(), []domain.Member{
		{Name: "Sophie", BookingCount: 1},
		{Name: "Emily", DateJoined: time.Date(2024, 1, 12, 0, 0, 0, 0, time.UTC)},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(created) != 2 || created[0].ID == "" || created[0].DateJoined.IsZero() {
		t.Fatalf("expected ids and dates filled in, got %+v", created)
	}

	all, _ := svc.List(context.Background())
	if len(all) != 2 {
		t.Errorf("expected 2 members, got %d", len(all))
	}

	_, err = svc.BulkCreate(context.Background(), []domain.Member{{Name: "Over", BookingCount: 3}})
	assertError(t, err, domain.KindValidationError, "Member booking count must be between 0 and 2.")

	_, err = svc.BulkCreate(context.Background(), nil)
	assertError(t, err, domain.KindBadRequest, "No records found in the CSV file.")
}

func TestMemberService_BulkCreateIsAtomic(t *testing.T) {
	db := storage.NewMemoryAdapter()
	svc := NewMemberService(db, zap.NewNop())

	_, err := svc.BulkCreate(context.Background(), []domain.Member{
		{ID: "dup", Name: "A"},
		{ID: "dup", Name: "B"},
	})
	if err == nil {
		t.Fatal("expected duplicate failure")
	}

	all, _ := svc.List(context.Background())
	if len(all) != 0 {
		t.Errorf("expected no members persisted, got %d", len(all))
	}
}

func TestMemberService_UpdateBookingCount(t *testing.T) {
	db := storage.NewMemoryAdapter()
	svc := NewMemberService(db, zap.NewNop())
	member, _ := svc.Create(context.Background(), CreateMemberInput{Name: "Sophie"})

	updated, err := svc.UpdateBookingCount(context.Background(), member.ID, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.BookingCount != 2 {
		t.Errorf("expected 2, got %d", updated.BookingCount)
	}

	stored, _ := db.GetMember(context.Background(), member.ID)
	if stored.BookingCount != 2 {
		t.Errorf("expected stored 2, got %d", stored.BookingCount)
	}

	_, err = svc.UpdateBookingCount(context.Background(), "missing", 1)
	assertError(t, err, domain.KindNotFound, "Member not found.")

	_, err = svc.UpdateBookingCount(context.Background(), member.ID, -1)
	assertError(t, err, domain.KindValidationError, "")
}

func TestMemberService_StoreErrors(t *testing.T) {
	tests := []struct {
		name      string
		repo      *mockMemberRepo
		retryable bool
		message   string
	}{
		{
			name:    "read failure",
			repo:    &mockMemberRepo{getErr: errStoreDown},
			message: "Failed to load member.",
		},
		{
			name:      "lost race",
			repo:      &mockMemberRepo{member: &domain.Member{ID: "m"}, setErr: fmt.Errorf("w: %w", port.ErrOptimisticLock)},
			retryable: true,
			message:   "Concurrent update detected, please retry.",
		},
		{
			name:    "row vanished",
			repo:    &mockMemberRepo{member: &domain.Member{ID: "m"}, setErr: port.ErrRecordNotFound},
			message: "Member not found.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewMemberService(tt.repo, zap.NewNop())
			_, err := svc.UpdateBookingCount(context.Background(), "m", 1)
			if err == nil {
				t.Fatal("expected error")
			}
			if domain.IsRetryable(err) != tt.retryable {
				t.Errorf("expected retryable %v, got %v", tt.retryable, domain.IsRetryable(err))
			}
			assertError(t, err, domain.KindOf(err), tt.message)
		})
	}
}

func TestInventoryService_CreateAndValidate(t *testing.T) {
	svc := NewInventoryService(storage.NewMemoryAdapter(), zap.NewNop())

	item, err := svc.Create(context.Background(), CreateInventoryInput{
		Title:          "Bali",
		Description:    "Suspendisse congue erat ac ex venenatis mattis.",
		RemainingCount: 5,
		ExpirationDate: time.Date(2030, 11, 19, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := svc.GetByID(context.Background(), item.ID)
	if err != nil || got.RemainingCount != 5 {
		t.Fatalf("expected stored item, got %+v, %v", got, err)
	}

	_, err = svc.Create(context.Background(), CreateInventoryInput{RemainingCount: 1})
	assertError(t, err, domain.KindBadRequest, "Inventory title is required.")

	_, err = svc.Create(context.Background(), CreateInventoryInput{Title: "Bali", RemainingCount: -1})
	assertError(t, err, domain.KindBadRequest, "Inventory remaining count cannot be negative.")

	_, err = svc.GetByID(context.Background(), "missing")
	assertError(t, err, domain.KindNotFound, "Inventory not found.")
}

func TestInventoryService_BulkCreateAndUpdate(t *testing.T) {
	db := storage.NewMemoryAdapter()
	svc := NewInventoryService(db, zap.NewNop())

	created, err := svc.BulkCreate(context.Background(), []domain.Inventory{
		{Title: "Bali", RemainingCount: 5},
		{Title: "Madeira", RemainingCount: 4},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	items, _ := svc.List(context.Background())
	if len(items) != 2 || items[0].Title != "Bali" {
		t.Errorf("expected items sorted by title, got %+v", items)
	}

	updated, err := svc.UpdateRemainingCount(context.Background(), created[1].ID, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.RemainingCount != 3 {
		t.Errorf("expected 3, got %d", updated.RemainingCount)
	}

	_, err = svc.UpdateRemainingCount(context.Background(), created[1].ID, -1)
	assertError(t, err, domain.KindValidationError, "Inventory remaining count cannot be negative.")

	_, err = svc.BulkCreate(context.Background(), []domain.Inventory{{Title: "", RemainingCount: 1}})
	assertError(t, err, domain.KindBadRequest, "Inventory title is required.")
}
