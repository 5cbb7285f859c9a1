package redis

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

// RateLimiter is a fixed-window counter shared by every bot replica.
type RateLimiter struct {
	client *Client
}

func NewRateLimiter(client *Client) *RateLimiter {
	return &RateLimiter{client: client}
}

// luaWindowHit counts one hit and starts the window on the first one. Doing
// both in one script means a crash can never leave a counter without a TTL.
var luaWindowHit = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n`)

// Allow reports whether key may make another call in the current window.
// A non-positive limit disables limiting.
func (r *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if limit <= 0 {
		return true, nil
	}
	if window < time.Millisecond {
		window = time.Millisecond
	}
	hits, err := luaWindowHit.Run(ctx, r.client.cli, []string{"rate_limit:" + key}, window.Milliseconds()).Int64()
	if err != nil {
		return false, mapErr(err)
	}
	return hits <= int64(limit), nil
}
