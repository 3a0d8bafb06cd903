package domain

import "time"

type Inventory struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	RemainingCount int       `json:"remainingCount"`
	ExpirationDate time.Time `json:"expirationDate"`
}

func (i Inventory) Available() bool {
	return i.RemainingCount > 0
}
