package port

import "context"

type IdempotencyStore interface {
	// Reserve claims key for a new request. When the key is already taken it
	// returns ok=false and, if the earlier request finished, the booking ID it produced.
	Reserve(ctx context.Context, key string) (bookingID string, ok bool, err error)

	// Complete records the booking produced for key
	Complete(ctx context.Context, key, bookingID string) error

	// Release frees key after a failed request so the client can retry
	Release(ctx context.Context, key string) error
}
