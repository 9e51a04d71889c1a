package httpx

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// fixedWindowScript increments the counter and starts its expiry on first use,
// returning the count and the remaining window in milliseconds.
var fixedWindowScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

// redisRateLimiter shares counters between API replicas.
type redisRateLimiter struct {
	client  redis.Scripter
	closer  func() error
	logger  *slog.Logger
	prefix  string
	timeout time.Duration
}

// NewRedisRateLimiter connects to Redis and verifies it answers.
func NewRedisRateLimiter(addr, password string, db int, logger *slog.Logger) (RateLimiter, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return newRedisRateLimiter(client, client.Close, logger), nil
}

func newRedisRateLimiter(client redis.Scripter, closer func() error, logger *slog.Logger) *redisRateLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &redisRateLimiter{
		client:  client,
		closer:  closer,
		logger:  logger,
		prefix:  "teamup:ratelimit:",
		timeout: 250 * time.Millisecond,
	}
}

// Allow fails open when Redis does not answer within the limiter timeout.
func (rl *redisRateLimiter) Allow(ctx context.Context, key string, limit int, period time.Duration) rateDecision {
	if limit <= 0 {
		return rateDecision{allowed: true}
	}
	if period <= 0 {
		period = time.Minute
	}
	ctx, cancel := context.WithTimeout(ctx, rl.timeout)
	defer cancel()

	res, err := fixedWindowScript.Run(ctx, rl.client, []string{rl.prefix + key}, period.Milliseconds()).Int64Slice()
	if err != nil || len(res) != 2 {
		rl.logger.Error("redis rate limiter unavailable, allowing request", "key", key, "error", err)
		return rateDecision{allowed: true}
	}
	count := int(res[0])
	return rateDecision{
		allowed: count <= limit,
		count:   count,
		resetAt: time.Now().Add(time.Duration(res[1]) * time.Millisecond),
	}
}

func (rl *redisRateLimiter) Close() {
	if rl.closer != nil {
		_ = rl.closer()
	}
}
