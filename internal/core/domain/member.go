package domain

import "time"

// MaxActiveBookings is the number of simultaneously active bookings a member may hold.
const MaxActiveBookings = 2

type Member struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Surname      string    `json:"surname,omitempty"`
	BookingCount int       `json:"bookingCount"`
	DateJoined   time.Time `json:"dateJoined"`
}

func (m Member) CanBook() bool {
	return m.BookingCount < MaxActiveBookings
}
