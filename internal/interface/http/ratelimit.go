package http

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/learnhub/learnhub/internal/infrastructure/persistence/redis"
	"github.com/learnhub/learnhub/pkg/logger"
)

// RateLimiter decides whether identity may perform action again.
// redis.RateLimiter is the shared implementation.
type RateLimiter interface {
	Allow(ctx context.Context, identity, action string, limit int, window time.Duration) (redis.Decision, error)
}

// rateLimit enforces limit requests per minute per authenticated user.
// Limiter errors let the request through.
func (s *Server) rateLimit(action string, limit int, next http.Handler) http.Handler {
	if s.deps.RateLimiter == nil || limit <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := UserIDFromContext(r.Context())
		if !ok {
			identity = "ip:" + getClientIP(r)
		}

		d, err := s.deps.RateLimiter.Allow(r.Context(), identity, action, limit, time.Minute)
		if err != nil {
			logger.FromContext(r.Context()).Warn("rate limiter unavailable", logger.Err(err))
			next.ServeHTTP(w, r)
			return
		}
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		if !d.Allowed {
			w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(d.RetryAfter)))
			s.writeError(w, r, http.StatusTooManyRequests, "rate_limited", "Too many requests, please try again later", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func retryAfterSeconds(d time.Duration) int {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

// ══════════════════════════════════════════════════════════════════════════════
// LOCAL LIMITER
// ══════════════════════════════════════════════════════════════════════════════

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// LocalRateLimiter is a per-process token bucket limiter used when Redis is
// disabled. Limits are not shared between instances.
type LocalRateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	now      func() time.Time
}

// NewLocalRateLimiter creates an empty local limiter.
func NewLocalRateLimiter() *LocalRateLimiter {
	return &LocalRateLimiter{visitors: make(map[string]*visitor), now: time.Now}
}

// Allow implements RateLimiter.
func (l *LocalRateLimiter) Allow(_ context.Context, identity, action string, limit int, window time.Duration) (redis.Decision, error) {
	now := l.now()
	key := action + ":" + identity

	l.mu.Lock()
	v, ok := l.visitors[key]
	if !ok {
		every := rate.Every(window / time.Duration(limit))
		v = &visitor{limiter: rate.NewLimiter(every, limit)}
		l.visitors[key] = v
	}
	v.lastSeen = now
	l.mu.Unlock()

	r := v.limiter.ReserveN(now, 1)
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return redis.Decision{Allowed: false, RetryAfter: delay}, nil
	}
	return redis.Decision{Allowed: true, Remaining: int(v.limiter.TokensAt(now))}, nil
}

// Cleanup drops visitors idle for longer than maxIdle.
func (l *LocalRateLimiter) Cleanup(maxIdle time.Duration) {
	cutoff := l.now().Add(-maxIdle)
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, v := range l.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(l.visitors, key)
		}
	}
}
