package port

import (
	"context"

	"github.com/rl1809/reservation/internal/core/domain"
)

type EventPublisher interface {
	Publish(ctx context.Context, events ...domain.BookingEvent) error
	Close() error
}
