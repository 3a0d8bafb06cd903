package domain

import "time"

type BookingEventType string

const (
	BookingCreated   BookingEventType = "BookingCreated"
	BookingCancelled BookingEventType = "BookingCancelled"
)

type BookingEvent struct {
	Type        BookingEventType `json:"type"`
	BookingID   string           `json:"bookingId"`
	MemberID    string           `json:"memberId"`
	InventoryID string           `json:"inventoryId"`
	Status      BookingStatus    `json:"status"`
	ScheduledAt time.Time        `json:"bookingDateTime"`
	OccurredAt  time.Time        `json:"occurredAt"`

	// Traceparent links the event to the request that produced it. It travels
	// as a message header, not in the payload.
	Traceparent string `json:"-"`
}

func NewBookingEvent(t BookingEventType, b Booking, at time.Time) BookingEvent {
	return BookingEvent{
		Type:        t,
		BookingID:   b.ID,
		MemberID:    b.MemberID,
		InventoryID: b.InventoryID,
		Status:      b.Status,
		ScheduledAt: b.ScheduledAt,
		OccurredAt:  at,
	}
}
