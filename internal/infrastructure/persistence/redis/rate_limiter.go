package redis

import (
	"context"
	"time"
)

type windowCounter interface {
	IncrWindow(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// RateLimiter is a fixed-window counter shared by every API instance.
type RateLimiter struct {
	counter windowCounter
	now     func() time.Time
}

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// NewRateLimiter creates a limiter over cache.
func NewRateLimiter(cache *Cache) *RateLimiter {
	return &RateLimiter{counter: cache, now: time.Now}
}

// Allow counts one request for identity under action and reports whether it
// fits in limit requests per window.
func (l *RateLimiter) Allow(ctx context.Context, identity, action string, limit int, window time.Duration) (Decision, error) {
	now := l.now()
	slot := now.UnixNano() / int64(window)
	key := RateLimitKey(identity, action, slot)

	count, err := l.counter.IncrWindow(ctx, key, window)
	if err != nil {
		return Decision{}, err
	}

	if int(count) > limit {
		windowEnd := time.Unix(0, (slot+1)*int64(window))
		return Decision{Allowed: false, RetryAfter: windowEnd.Sub(now)}, nil
	}
	return Decision{Allowed: true, Remaining: limit - int(count)}, nil
}
