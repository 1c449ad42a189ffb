package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only when the stored owner token matches,
// so a worker whose lease expired cannot release a successor's lock.
// KEYS[1] = lock key
// ARGV[1] = owner token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

// DrainLock is the fleet-wide mutual exclusion for drain cycles. Exactly
// one worker holds it at a time; acquisition is non-blocking and the
// lease expires on its own if the holder dies mid-cycle.
type DrainLock struct {
	client *redis.Client
	key    string
	lease  time.Duration
}

// NewDrainLock creates a lock on the given key with the given lease.
func NewDrainLock(client *redis.Client, key string, lease time.Duration) *DrainLock {
	return &DrainLock{client: client, key: key, lease: lease}
}

// Acquire attempts to take the lock without blocking. On success it
// returns a release func bound to this acquisition's owner token; on
// contention it returns ok=false and a nil release.
func (l *DrainLock) Acquire(ctx context.Context) (release func(context.Context) error, ok bool, err error) {
	token := uuid.New().String()

	set, err := l.client.SetNX(ctx, l.key, token, l.lease).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire lock %s: %w", l.key, err)
	}
	if !set {
		return nil, false, nil
	}

	release = func(ctx context.Context) error {
		res, err := releaseScript.Run(ctx, l.client, []string{l.key}, token).Result()
		if err != nil {
			return fmt.Errorf("release lock %s: %w", l.key, err)
		}
		if n, _ := res.(int64); n == 0 {
			// Lease expired and someone else holds the lock now. Not an
			// error for the caller, but worth knowing it happened.
			return fmt.Errorf("lock %s: lease expired before release", l.key)
		}
		return nil
	}
	return release, true, nil
}
