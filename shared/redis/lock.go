package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only while it still holds our token.
var releaseScript = goredis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// Locker hands out single-holder locks with an expiry.
type Locker struct {
	rdb    goredis.Cmdable
	logger *slog.Logger
}

func NewLocker(rdb goredis.Cmdable, logger *slog.Logger) *Locker {
	return &Locker{rdb: rdb, logger: logger}
}

// TryLock takes key for ttl without waiting. ok is false when another holder
// has it. release is safe to call after the lock expired.
func (l *Locker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	token := uuid.NewString()

	ok, err := l.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, l.rdb, []string{key}, token).Err(); err != nil {
			l.logger.Warn("Failed to release lock",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
		}
	}
	return release, true, nil
}
