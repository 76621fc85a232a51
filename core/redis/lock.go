package redis

import (
	"context"
	"errors"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// ErrLockHeld is returned when the lock is still owned by someone else after all attempts.
var ErrLockHeld = errors.New("redis: lock held")

// Locker acquires short-lived exclusive locks keyed by string.
type Locker struct {
	cli      *goredis.Client
	attempts int
	wait     time.Duration
}

// NewLocker builds a Locker sharing the client's connection pool.
func NewLocker(c *Client) *Locker {
	return &Locker{cli: c.cli, attempts: 20, wait: 50 * time.Millisecond}
}

// TryLock sets key to a random token if absent, retrying a bounded number of times.
// The returned token must be passed to Unlock.
func (l *Locker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	var lastErr error
	for i := 0; i < l.attempts; i++ {
		ok, err := l.cli.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			lastErr = err
		} else if ok {
			return token, nil
		}
		timer := time.NewTimer(l.wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		case <-timer.C:
		}
	}
	if lastErr != nil {
		return "", lastErr
	}
	return "", ErrLockHeld
}

var luaUnlock = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`)

// Unlock releases key only if it still holds token.
func (l *Locker) Unlock(ctx context.Context, key, token string) error {
	_, err := luaUnlock.Run(ctx, l.cli, []string{key}, token).Result()
	return err
}
