package storage

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	idempotencyKeyPrefix = "booking:idem:"
	idempotencyPending   = "processing"

	DefaultIdempotencyTTL = 24 * time.Hour

	// PendingIdempotencyTTL bounds how long a claimed key stays "processing".
	// It must outlive the booking operation timeout. Complete extends the
	// key to the full TTL.
	PendingIdempotencyTTL = time.Minute
)

// reserveScript claims a key or reports what it currently holds.
var reserveScript = redis.NewScript(`
local key = KEYS[1]
local ttl = tonumber(ARGV[1])

if redis.call('SET', key, ARGV[2], 'NX', 'PX', ttl) then
	return {1, ''}
end

local current = redis.call('GET', key)
if not current then
	return {0, ''}
end
return {0, current}
`)

type RedisAdapter struct {
	client     *redis.Client
	ttl        time.Duration
	pendingTTL time.Duration
}

func NewRedisAdapter(client *redis.Client, ttl time.Duration) *RedisAdapter {
	if ttl <= 0 {
		ttl = DefaultIdempotencyTTL
	}
	return &RedisAdapter{client: client, ttl: ttl, pendingTTL: min(ttl, PendingIdempotencyTTL)}
}

func (r *RedisAdapter) Reserve(ctx context.Context, key string) (string, bool, error) {
	res, err := reserveScript.Run(ctx, r.client,
		[]string{idempotencyKeyPrefix + key}, r.pendingTTL.Milliseconds(), idempotencyPending,
	).Slice()
	if err != nil {
		return "", false, err
	}
	if len(res) != 2 {
		return "", false, errors.New("unexpected reserve script reply")
	}

	claimed, _ := res[0].(int64)
	if claimed == 1 {
		return "", true, nil
	}

	value, _ := res[1].(string)
	if value == idempotencyPending {
		value = ""
	}
	return value, false, nil
}

func (r *RedisAdapter) Complete(ctx context.Context, key, bookingID string) error {
	return r.client.Set(ctx, idempotencyKeyPrefix+key, bookingID, r.ttl).Err()
}

func (r *RedisAdapter) Release(ctx context.Context, key string) error {
	return r.client.Del(ctx, idempotencyKeyPrefix+key).Err()
}
