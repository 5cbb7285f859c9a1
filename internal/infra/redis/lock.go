// File: internal/infra/redis/lock.go
package redis

import (
	"context"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"telegram-ai-consult/internal/domain/ports/repository"
)

var _ repository.Locker = (*RedisLocker)(nil)

const (
	defaultLockTTL   = 30 * time.Second
	lockRetryBackoff = 25 * time.Millisecond
)

// RedisLocker is a cross-process Locker: SETNX with a random token and a
// safety TTL, released by a compare-and-delete script.
type RedisLocker struct {
	cli *redis.Client
	ttl time.Duration
	log *zerolog.Logger
}

func NewLocker(c *Client, logger *zerolog.Logger) *RedisLocker {
	l := logger.With().Str("component", "RedisLocker").Logger()
	return &RedisLocker{cli: c.cli, ttl: defaultLockTTL, log: &l}
}

// Lock retries until it owns key or ctx is done.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	key = "lock:" + key
	token := uuid.NewString()
	for {
		ok, err := l.cli.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, mapErr(err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockRetryBackoff):
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// the caller's ctx may already be cancelled; release regardless
			uctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := luaUnlock.Run(uctx, l.cli, []string{key}, token).Err(); err != nil {
				l.log.Warn().Err(err).Str("key", key).Msg("unlock failed; lock will expire by ttl")
			}
		})
	}, nil
}

var luaUnlock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`)
