package main

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rl1809/reservation/internal/adapter/storage"
	"github.com/rl1809/reservation/internal/core/domain"
	"github.com/rl1809/reservation/internal/core/service"
)

const (
	initialStock  = 20
	totalRequests = 50
	burstRequests = 10
)

type result struct {
	success   atomic.Int32
	rejected  atomic.Int32
	retryable atomic.Int32
	other     atomic.Int32
}

func (r *result) record(err error) {
	switch {
	case err == nil:
		r.success.Add(1)
	case domain.IsKind(err, domain.KindValidationError):
		r.rejected.Add(1)
	case domain.IsRetryable(err):
		r.retryable.Add(1)
	default:
		r.other.Add(1)
	}
}

func main() {
	ctx := context.Background()
	logger := zap.NewNop()

	db := storage.NewMemoryAdapter()
	members := service.NewMemberService(db, logger)
	inventory := service.NewInventoryService(db, logger)
	bookings := service.NewBookingService(db, members, inventory, db, logger)

	failed := false
	failed = oversell(ctx, members, inventory, bookings) || failed
	failed = memberCap(ctx, members, inventory, bookings) || failed

	if failed {
		os.Exit(1)
	}
}

// oversell fires one booking per member at a single item with less stock
// than requests.
func oversell(ctx context.Context, members *service.MemberService, inventory *service.InventoryService, bookings *service.BookingService) bool {
	item := mustCreateItem(ctx, inventory, "stress-item", initialStock)

	memberIDs := make([]string, totalRequests)
	for i := range memberIDs {
		memberIDs[i] = mustCreateMember(ctx, members, fmt.Sprintf("member-%d", i))
	}

	var res result
	var wg sync.WaitGroup
	start := time.Now()

	for _, memberID := range memberIDs {
		wg.Add(1)
		go func(memberID string) {
			defer wg.Done()
			_, err := bookings.Create(ctx, service.CreateBookingRequest{
				MemberID:    memberID,
				InventoryID: item.ID,
				ScheduledAt: time.Now().Add(24 * time.Hour),
			})
			res.record(err)
		}(memberID)
	}

	wg.Wait()
	elapsed := time.Since(start)

	final, _ := inventory.GetByID(ctx, item.ID)

	fmt.Println("========== OVERSELL TEST RESULTS ==========")
	fmt.Printf("Initial Stock:    %d\n", initialStock)
	fmt.Printf("Total Requests:   %d\n", totalRequests)
	fmt.Printf("Successful:       %d\n", res.success.Load())
	fmt.Printf("Rejected:         %d\n", res.rejected.Load())
	fmt.Printf("Retryable:        %d\n", res.retryable.Load())
	fmt.Printf("Other Errors:     %d\n", res.other.Load())
	fmt.Printf("Final Stock:      %d\n", final.RemainingCount)
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("===========================================")

	failed := false
	if res.success.Load() == initialStock && final.RemainingCount == 0 {
		fmt.Printf("PASS: Exactly %d bookings succeeded, stock depleted to 0\n", initialStock)
	} else {
		fmt.Printf("FAIL: Expected %d bookings and stock 0, got %d and %d\n",
			initialStock, res.success.Load(), final.RemainingCount)
		failed = true
	}

	all, _ := bookings.List(ctx)
	if len(all) != int(res.success.Load()) {
		fmt.Printf("FAIL: %d bookings stored for %d successes\n", len(all), res.success.Load())
		failed = true
	}
	return failed
}

// memberCap fires a burst of bookings from one member at an item with
// plenty of stock.
func memberCap(ctx context.Context, members *service.MemberService, inventory *service.InventoryService, bookings *service.BookingService) bool {
	item := mustCreateItem(ctx, inventory, "plenty-item", burstRequests*10)
	memberID := mustCreateMember(ctx, members, "eager-member")

	var res result
	var wg sync.WaitGroup

	for i := 0; i < burstRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := bookings.Create(ctx, service.CreateBookingRequest{
				MemberID:    memberID,
				InventoryID: item.ID,
				ScheduledAt: time.Now().Add(24 * time.Hour),
			})
			res.record(err)
		}()
	}

	wg.Wait()

	member, _ := members.GetByID(ctx, memberID)
	final, _ := inventory.GetByID(ctx, item.ID)

	fmt.Println("========== MEMBER CAP TEST RESULTS ==========")
	fmt.Printf("Total Requests:   %d\n", burstRequests)
	fmt.Printf("Successful:       %d\n", res.success.Load())
	fmt.Printf("Rejected:         %d\n", res.rejected.Load())
	fmt.Printf("Booking Count:    %d\n", member.BookingCount)
	fmt.Printf("Final Stock:      %d\n", final.RemainingCount)
	fmt.Println("=============================================")

	want := int32(domain.MaxActiveBookings)
	if res.success.Load() == want && member.BookingCount == domain.MaxActiveBookings &&
		final.RemainingCount == burstRequests*10-domain.MaxActiveBookings {
		fmt.Printf("PASS: Member capped at %d bookings\n", want)
		return false
	}
	fmt.Printf("FAIL: Expected %d bookings, got %d (count %d)\n", want, res.success.Load(), member.BookingCount)
	return true
}

func mustCreateItem(ctx context.Context, inventory *service.InventoryService, title string, stock int) *domain.Inventory {
	item, err := inventory.Create(ctx, service.CreateInventoryInput{
		Title:          title,
		RemainingCount: stock,
		ExpirationDate: time.Now().AddDate(1, 0, 0),
	})
	if err != nil {
		fmt.Printf("failed to create inventory: %v\n", err)
		os.Exit(1)
	}
	return item
}

func mustCreateMember(ctx context.Context, members *service.MemberService, name string) string {
	member, err := members.Create(ctx, service.CreateMemberInput{Name: name, Surname: uuid.NewString()[:8]})
	if err != nil {
		fmt.Printf("failed to create member: %v\n", err)
		os.Exit(1)
	}
	return member.ID
}
