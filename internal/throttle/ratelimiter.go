package throttle

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter caps how many live events a caller may emit per second. It is a
// sliding window kept in a Redis sorted set so that every server instance
// shares the same budget; a Lua script trims, counts and records atomically.
type RateLimiter struct {
	redisClient *redis.Client
	logger      *slog.Logger
	limit       int
	window      time.Duration
	seq         atomic.Uint64
}

var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)

local count = redis.call('ZCARD', key)
if count < limit then
    redis.call('ZADD', key, now, member)
    redis.call('EXPIRE', key, math.floor(window / 1000) + 1)
    return 1
end
return 0
`)

// NewRateLimiter allows limit emits per second per caller. A limit of zero
// or less disables throttling.
func NewRateLimiter(redisClient *redis.Client, limit int, logger *slog.Logger) *RateLimiter {
	return &RateLimiter{
		redisClient: redisClient,
		logger:      logger,
		limit:       limit,
		window:      time.Second,
	}
}

func rlKey(actor string) string {
	return fmt.Sprintf("rl:emit:%s", actor)
}

// Allow reports whether actor may emit now. Redis errors fail open: a live
// update is advisory and should not be lost to a throttling outage.
func (rl *RateLimiter) Allow(ctx context.Context, actor string) bool {
	if rl == nil || rl.limit <= 0 {
		return true
	}

	now := time.Now()
	member := fmt.Sprintf("%d:%d", now.UnixNano(), rl.seq.Add(1))

	result, err := slidingWindowScript.Run(ctx, rl.redisClient, []string{rlKey(actor)},
		now.UnixMilli(), rl.window.Milliseconds(), rl.limit, member,
	).Int64()
	if err != nil {
		rl.logger.Error("rate limiter script failed", "error", err, "actor", actor)
		return true
	}

	if result == 0 {
		rl.logger.Debug("emit rate limited", "actor", actor, "limit", rl.limit)
		return false
	}
	return true
}
