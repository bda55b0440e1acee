package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "ratelimit"

// RedisLimiter counts requests in fixed one-minute windows shared across
// replicas. Window keys expire on their own; no cleanup pass is needed.
type RedisLimiter struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisLimiter constructs a RedisLimiter.
func NewRedisLimiter(client *redis.Client) *RedisLimiter {
	return &RedisLimiter{client: client, now: time.Now}
}

// Allow increments the current window counter and compares it to the ceiling.
func (l *RedisLimiter) Allow(ctx context.Context, key string, perMinute int) (bool, error) {
	if perMinute <= 0 {
		return true, nil
	}

	window := l.now().UTC().Format("200601021504")
	windowKey := fmt.Sprintf("%s:%s:%s", keyPrefix, key, window)

	pipe := l.client.TxPipeline()
	count := pipe.Incr(ctx, windowKey)
	pipe.Expire(ctx, windowKey, 2*time.Minute)
	if _, errExec := pipe.Exec(ctx); errExec != nil {
		return false, fmt.Errorf("ratelimit: redis incr: %w", errExec)
	}
	return count.Val() <= int64(perMinute), nil
}
