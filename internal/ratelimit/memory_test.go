package ratelimit

import (
	"context"
	"testing"
)

func TestMemoryLimiterEnforcesPerMinuteBurst(t *testing.T) {
	t.Parallel()

	limiter := NewMemoryLimiter()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, errAllow := limiter.Allow(ctx, "key_a", 3)
		if errAllow != nil {
			t.Fatalf("allow %d: %v", i, errAllow)
		}
		if !ok {
			t.Fatalf("request %d must be admitted within the burst", i)
		}
	}
	if ok, _ := limiter.Allow(ctx, "key_a", 3); ok {
		t.Fatalf("request beyond the burst must be rejected")
	}
}

func TestMemoryLimiterIsolatesKeys(t *testing.T) {
	t.Parallel()

	limiter := NewMemoryLimiter()
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		limiter.Allow(ctx, "key_a", 2)
	}
	if ok, _ := limiter.Allow(ctx, "key_a", 2); ok {
		t.Fatalf("key_a must be exhausted")
	}
	if ok, _ := limiter.Allow(ctx, "key_b", 2); !ok {
		t.Fatalf("key_b must not be affected by key_a's usage")
	}
}

func TestMemoryLimiterZeroCeilingAdmitsEverything(t *testing.T) {
	t.Parallel()

	limiter := NewMemoryLimiter()
	for i := 0; i < 50; i++ {
		ok, errAllow := limiter.Allow(context.Background(), "key_a", 0)
		if errAllow != nil || !ok {
			t.Fatalf("non-positive ceiling must admit (ok=%v err=%v)", ok, errAllow)
		}
	}
}
