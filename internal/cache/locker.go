// internal/cache/locker.go
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/partner-engine/internal/utils"
)

var ErrLockTimeout = errors.New("timed out waiting for lock")

// releaseScript deletes the lock only while it still holds our token, so an
// expired holder cannot release a lock taken over by someone else.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker is a Redis SET NX PX mutex shared by every instance.
type Locker struct {
	client   *redis.Client
	interval time.Duration
}

func NewLocker(client *redis.Client) *Locker {
	return &Locker{client: client, interval: 50 * time.Millisecond}
}

// Lock polls until the key is free, ctx is done, or ttl elapses.
func (l *Locker) Lock(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token, err := utils.GenerateRandomString(24)
	if err != nil {
		return nil, err
	}
	key = "pe:lock:" + key
	deadline := time.Now().Add(ttl)

	for {
		ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			return func() {
				// release with a fresh context so a cancelled request still unlocks
				releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				if err := releaseScript.Run(releaseCtx, l.client, []string{key}, token).Err(); err != nil {
					logrus.WithError(err).WithField("key", key).Warn("Failed to release lock")
				}
			}, nil
		}
		if time.Now().After(deadline) {
			return nil, ErrLockTimeout
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.interval):
		}
	}
}
