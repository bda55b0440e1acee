package ratelimit

import (
	"context"

	"github.com/formsentry/formsentry/internal/config"
	"github.com/redis/go-redis/v9"
)

// Limiter enforces a per-key requests-per-minute ceiling. It complements the
// account store's period counter: the period ceiling is durable, this one
// smooths bursts.
type Limiter interface {
	// Allow reports whether one more request is admitted for the key at the
	// given per-minute rate. A rate <= 0 disables the check.
	Allow(ctx context.Context, key string, perMinute int) (bool, error)
}

// New selects a redis-backed limiter when an address is configured and an
// in-memory one otherwise.
func New(cfg config.RedisConfig) Limiter {
	if cfg.Addr == "" {
		return NewMemoryLimiter()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return NewRedisLimiter(client)
}
