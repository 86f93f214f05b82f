package ratelimit

import (
	"context"
	"fmt"
	"time"

	"charity-server/internal/clients/redis"
	"charity-server/internal/observability"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

const window = time.Minute

// Result is the outcome of one rate limit check
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// Limiter is a per-key sliding window over the last minute, kept in Redis sorted sets.
// Without Redis every request is allowed.
type Limiter struct {
	redis  *redis.Client
	prefix string
	limit  int
	logger *observability.Logger
	now    func() time.Time
}

// New creates a limiter allowing limit requests per minute for each key under prefix.
func New(client *redis.Client, prefix string, limit int, logger *observability.Logger) *Limiter {
	return &Limiter{
		redis:  client,
		prefix: prefix,
		limit:  limit,
		logger: logger,
		now:    time.Now,
	}
}

// Enabled reports whether requests are counted at all.
func (l *Limiter) Enabled() bool {
	return l.limit > 0 && l.redis.IsEnabled()
}

// allowScript trims the window, counts what is left and records the request only when it
// fits, all in one step so concurrent requests cannot both take the last slot.
// It returns {allowed, count, resetAtMs}.
var allowScript = goredis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, 0, now - window)
local count = redis.call('ZCARD', key)
if count >= limit then
	local reset = now + window
	local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
	if oldest[2] then
		reset = tonumber(oldest[2]) + window
	end
	return {0, count, reset}
end

redis.call('ZADD', key, now, ARGV[4])
redis.call('PEXPIRE', key, window * 2)
return {1, count + 1, now + window}
`)

// Allow records a request for key and reports whether it fits in the window.
func (l *Limiter) Allow(ctx context.Context, key string) (Result, error) {
	if !l.Enabled() {
		return Result{Allowed: true, Limit: l.limit, Remaining: l.limit}, nil
	}

	redisKey := fmt.Sprintf("rl:%s:%s", l.prefix, key)
	now := l.now()

	raw, err := allowScript.Run(ctx, l.redis.GetClient(), []string{redisKey},
		now.UnixMilli(), window.Milliseconds(), l.limit, uuid.NewString()).Int64Slice()
	if err != nil {
		return Result{}, fmt.Errorf("failed to check rate limit: %w", err)
	}
	if len(raw) != 3 {
		return Result{}, fmt.Errorf("unexpected rate limit reply %v", raw)
	}

	resetAt := time.UnixMilli(raw[2])
	if raw[0] == 0 {
		retryAfter := resetAt.Sub(now)
		if retryAfter < 0 {
			retryAfter = 0
		}
		return Result{Limit: l.limit, ResetAt: resetAt, RetryAfter: retryAfter}, nil
	}

	return Result{
		Allowed:   true,
		Limit:     l.limit,
		Remaining: l.limit - int(raw[1]),
		ResetAt:   resetAt,
	}, nil
}
