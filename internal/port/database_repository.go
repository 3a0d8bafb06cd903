package port

import (
	"context"
	"errors"

	"github.com/rl1809/reservation/internal/core/domain"
)

var (
	// ErrOptimisticLock is returned by conditional writes whose guard no longer matches the row.
	ErrOptimisticLock = errors.New("optimistic lock conflict")
	ErrRecordNotFound = errors.New("record not found")
	ErrDuplicateKey   = errors.New("duplicate key")
)

// Transactor runs fn as one unit of work. Repositories called with the
// context handed to fn join the unit; reads inside it lock the row read.
// Nested calls join the outer unit.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type MemberRepository interface {
	// GetMember returns nil, nil when the member does not exist
	GetMember(ctx context.Context, id string) (*domain.Member, error)

	ListMembers(ctx context.Context) ([]domain.Member, error)

	InsertMember(ctx context.Context, member domain.Member) error

	// BulkInsertMembers persists all members or none
	BulkInsertMembers(ctx context.Context, members []domain.Member) error

	// SetMemberBookingCount overwrites the counter if it still equals expected
	SetMemberBookingCount(ctx context.Context, id string, expected, value int) error
}

type InventoryRepository interface {
	// GetInventory returns nil, nil when the item does not exist
	GetInventory(ctx context.Context, id string) (*domain.Inventory, error)

	ListInventory(ctx context.Context) ([]domain.Inventory, error)

	InsertInventory(ctx context.Context, item domain.Inventory) error

	// BulkInsertInventory persists all items or none
	BulkInsertInventory(ctx context.Context, items []domain.Inventory) error

	// SetInventoryRemainingCount overwrites the counter if it still equals expected
	SetInventoryRemainingCount(ctx context.Context, id string, expected, value int) error
}

type BookingRepository interface {
	InsertBooking(ctx context.Context, booking domain.Booking) error

	// UpdateBooking persists booking if the stored status still equals expected
	UpdateBooking(ctx context.Context, booking domain.Booking, expected domain.BookingStatus) error

	// GetBooking returns nil, nil when the booking does not exist
	GetBooking(ctx context.Context, id string) (*domain.Booking, error)

	// ListBookings returns every booking ordered by creation time
	ListBookings(ctx context.Context) ([]domain.Booking, error)
}
