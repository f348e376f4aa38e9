package ratelimit

import (
	"context"
	"time"
)

// Rule allows Limit attempts per key within any Window-long span.
type Rule struct {
	Limit  int
	Window time.Duration
}

type RateLimiter interface {
	Allow(ctx context.Context, key string, rule Rule) (bool, error)
	Count(ctx context.Context, key string, rule Rule) (int64, error)
	Reset(ctx context.Context, key string) error
}
