package redis

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/marginterm/internal/domain"
)

//go:embed scripts/sliding_window.lua
var slidingWindowLua string

// RateLimiter implements domain.RateLimiter with a sliding window kept in a
// sorted set per key. The window check and the insert run in one script so
// concurrent replicas cannot overshoot the limit.
type RateLimiter struct {
	c      *Client
	script *redis.Script
	now    func() time.Time
}

// NewRateLimiter creates a RateLimiter.
func NewRateLimiter(c *Client) *RateLimiter {
	return &RateLimiter{c: c, script: redis.NewScript(slidingWindowLua), now: time.Now}
}

// Allow counts one request for key when it fits in the window.
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (domain.RateDecision, error) {
	now := rl.now().UnixMicro()
	res, err := rl.script.Run(ctx, rl.c.rdb,
		[]string{rl.c.Key("ratelimit", key)},
		now, window.Microseconds(), limit,
	).Int64Slice()
	if err != nil {
		return domain.RateDecision{}, fmt.Errorf("redis: rate limit %s: %w", key, err)
	}
	if len(res) < 3 {
		return domain.RateDecision{}, fmt.Errorf("redis: rate limit %s: unexpected reply of %d values", key, len(res))
	}
	return decide(res[0] == 1, int(res[1]), res[2], now, limit, window), nil
}

// decide builds the decision from the script reply. All times are
// microseconds.
func decide(allowed bool, count int, oldest, now int64, limit int, window time.Duration) domain.RateDecision {
	d := domain.RateDecision{Allowed: allowed, Remaining: max(0, limit-count)}
	if !allowed {
		wait := time.Duration(oldest+window.Microseconds()-now) * time.Microsecond
		d.RetryAfter = max(wait, time.Second)
	}
	return d
}

var _ domain.RateLimiter = (*RateLimiter)(nil)
