package domain

import (
	"errors"
	"time"
)

type BookingStatus string

const (
	BookingStatusActive    BookingStatus = "active"
	BookingStatusCancelled BookingStatus = "cancelled"
)

var ErrBookingAlreadyCancelled = errors.New("booking already cancelled")

type Booking struct {
	ID          string        `json:"id"`
	MemberID    string        `json:"memberId"`
	InventoryID string        `json:"inventoryId"`
	ScheduledAt time.Time     `json:"bookingDateTime"`
	Status      BookingStatus `json:"status"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

func NewBooking(id, memberID, inventoryID string, scheduledAt, now time.Time) Booking {
	return Booking{
		ID:          id,
		MemberID:    memberID,
		InventoryID: inventoryID,
		ScheduledAt: scheduledAt,
		Status:      BookingStatusActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Cancel moves an active booking to cancelled. The transition is one-way.
func (b *Booking) Cancel(now time.Time) error {
	if b.Status == BookingStatusCancelled {
		return ErrBookingAlreadyCancelled
	}
	b.Status = BookingStatusCancelled
	b.UpdatedAt = now
	return nil
}

func (s BookingStatus) Valid() bool {
	return s == BookingStatusActive || s == BookingStatusCancelled
}
