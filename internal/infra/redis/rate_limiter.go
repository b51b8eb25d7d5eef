package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RateLimiter counts messages per user in fixed windows shared by every bot
// replica. Counting and arming the window expiry happen in one script, so a
// counter can never be left without a TTL.
type RateLimiter struct {
	cli *redis.Client
}

func NewRateLimiter(c *redClient) *RateLimiter {
	return &RateLimiter{cli: c.cli}
}

var luaWindowIncr = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if redis.call("PTTL", KEYS[1]) < 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n`)

func (r *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	n, err := luaWindowIncr.Run(ctx, r.cli, []string{key}, window.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("rate limit %s: %w", key, err)
	}
	return n <= int64(limit), nil
}

// RateLimitKey names the window of one user for a kind of update:
// "message", "cb" or the command itself ("/stats").
func RateLimitKey(tgID int64, kind string) string {
	return fmt.Sprintf("rate_limit:%d:%s", tgID, kind)
}
