package storage

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/rl1809/reservation/internal/core/domain"
	"github.com/rl1809/reservation/internal/port"
)

func getMySQLAdapter(t *testing.T) (*MySQLAdapter, *sql.DB) {
	dsn := os.Getenv("MYSQL_DSN")
	if dsn == "" {
		dsn = "root:root@tcp(localhost:3306)/reservation"
	}

	db, err := OpenMySQL(dsn)
	if err != nil {
		t.Skipf("MySQL not available: %v", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		t.Skipf("MySQL not available: %v", err)
	}

	adapter := NewMySQLAdapter(db)
	if err := adapter.Migrate(context.Background()); err != nil {
		db.Close()
		t.Fatalf("migrate failed: %v", err)
	}
	return adapter, db
}

func seedMySQL(t *testing.T, adapter *MySQLAdapter, count, remaining int) (domain.Member, domain.Inventory) {
	t.Helper()
	ctx := context.Background()

	member := domain.Member{
		ID: uuid.NewString(), Name: "Sophie", Surname: "Davis",
		BookingCount: count, DateJoined: time.Now().UTC().Truncate(time.Second),
	}
	item := domain.Inventory{
		ID: uuid.NewString(), Title: "Bali", Description: "test",
		RemainingCount: remaining, ExpirationDate: time.Now().AddDate(1, 0, 0).UTC().Truncate(time.Second),
	}
	if err := adapter.InsertMember(ctx, member); err != nil {
		t.Fatalf("insert member: %v", err)
	}
	if err := adapter.InsertInventory(ctx, item); err != nil {
		t.Fatalf("insert inventory: %v", err)
	}
	return member, item
}

func cleanupMySQL(db *sql.DB, memberID, inventoryID string) {
	ctx := context.Background()
	db.ExecContext(ctx, `DELETE FROM bookings WHERE member_id = ?`, memberID)
	db.ExecContext(ctx, `DELETE FROM members WHERE id = ?`, memberID)
	db.ExecContext(ctx, `DELETE FROM inventory WHERE id = ?`, inventoryID)
}

func TestMySQL_GetMissing(t *testing.T) {
	adapter, db := getMySQLAdapter(t)
	defer db.Close()

	member, err := adapter.GetMember(context.Background(), uuid.NewString())
	if err != nil || member != nil {
		t.Errorf("expected (nil, nil), got (%v, %v)", member, err)
	}
	booking, err := adapter.GetBooking(context.Background(), uuid.NewString())
	if err != nil || booking != nil {
		t.Errorf("expected (nil, nil), got (%v, %v)", booking, err)
	}
}

func TestMySQL_CounterCompareAndSwap(t *testing.T) {
	adapter, db := getMySQLAdapter(t)
	defer db.Close()

	ctx := context.Background()
	member, item := seedMySQL(t, adapter, 0, 5)
	defer cleanupMySQL(db, member.ID, item.ID)

	if err := adapter.SetMemberBookingCount(ctx, member.ID, 0, 1); err != nil {
		t.Fatalf("SetMemberBookingCount failed: %v", err)
	}

	// Stale expected value
	err := adapter.SetMemberBookingCount(ctx, member.ID, 0, 1)
	if !errors.Is(err, port.ErrOptimisticLock) {
		t.Errorf("expected ErrOptimisticLock, got %v", err)
	}

	err = adapter.SetInventoryRemainingCount(ctx, item.ID, 4, 3)
	if !errors.Is(err, port.ErrOptimisticLock) {
		t.Errorf("expected ErrOptimisticLock, got %v", err)
	}

	stored, _ := adapter.GetMember(ctx, member.ID)
	if stored.BookingCount != 1 {
		t.Errorf("expected booking count 1, got %d", stored.BookingCount)
	}
}

func TestMySQL_WithinTxRollsBack(t *testing.T) {
	adapter, db := getMySQLAdapter(t)
	defer db.Close()

	ctx := context.Background()
	member, item := seedMySQL(t, adapter, 0, 5)
	defer cleanupMySQL(db, member.ID, item.ID)

	errBoom := errors.New("boom")
	err := adapter.WithinTx(ctx, func(ctx context.Context) error {
		if err := adapter.SetMemberBookingCount(ctx, member.ID, 0, 1); err != nil {
			return err
		}
		if err := adapter.SetInventoryRemainingCount(ctx, item.ID, 5, 4); err != nil {
			return err
		}
		return errBoom
	})
	if !errors.Is(err, errBoom) {
		t.Fatalf("expected errBoom, got %v", err)
	}

	storedMember, _ := adapter.GetMember(ctx, member.ID)
	storedItem, _ := adapter.GetInventory(ctx, item.ID)
	if storedMember.BookingCount != 0 || storedItem.RemainingCount != 5 {
		t.Errorf("expected rollback to (0, 5), got (%d, %d)", storedMember.BookingCount, storedItem.RemainingCount)
	}
}

func TestMySQL_BookingLifecycle(t *testing.T) {
	adapter, db := getMySQLAdapter(t)
	defer db.Close()

	ctx := context.Background()
	member, item := seedMySQL(t, adapter, 0, 5)
	defer cleanupMySQL(db, member.ID, item.ID)

	now := time.Now().UTC().Truncate(time.Second)
	booking := domain.NewBooking(uuid.NewString(), member.ID, item.ID, now.Add(time.Hour), now)
	if err := adapter.InsertBooking(ctx, booking); err != nil {
		t.Fatalf("InsertBooking failed: %v", err)
	}

	err := adapter.InsertBooking(ctx, booking)
	if !errors.Is(err, port.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", err)
	}

	if err := booking.Cancel(now.Add(time.Minute)); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if err := adapter.UpdateBooking(ctx, booking, domain.BookingStatusActive); err != nil {
		t.Fatalf("UpdateBooking failed: %v", err)
	}

	// Second transition from active must lose
	err = adapter.UpdateBooking(ctx, booking, domain.BookingStatusActive)
	if !errors.Is(err, port.ErrOptimisticLock) {
		t.Errorf("expected ErrOptimisticLock, got %v", err)
	}

	stored, err := adapter.GetBooking(ctx, booking.ID)
	if err != nil {
		t.Fatalf("GetBooking failed: %v", err)
	}
	if stored.Status != domain.BookingStatusCancelled {
		t.Errorf("expected cancelled, got %s", stored.Status)
	}
}

func TestMySQL_ConcurrentDecrement(t *testing.T) {
	adapter, db := getMySQLAdapter(t)
	defer db.Close()

	ctx := context.Background()
	member, item := seedMySQL(t, adapter, 0, 10)
	defer cleanupMySQL(db, member.ID, item.ID)

	var successCount atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := adapter.WithinTx(ctx, func(ctx context.Context) error {
				current, err := adapter.GetInventory(ctx, item.ID)
				if err != nil {
					return err
				}
				if current.RemainingCount <= 0 {
					return errors.New("sold out")
				}
				return adapter.SetInventoryRemainingCount(ctx, item.ID, current.RemainingCount, current.RemainingCount-1)
			})
			if err == nil {
				successCount.Add(1)
			}
		}()
	}
	wg.Wait()

	if successCount.Load() != 10 {
		t.Errorf("expected 10 successes, got %d", successCount.Load())
	}

	stored, _ := adapter.GetInventory(ctx, item.ID)
	if stored.RemainingCount != 0 {
		t.Errorf("expected remaining 0, got %d", stored.RemainingCount)
	}
}
