package httpfetch

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter spaces out requests that share a throttle key, typically the upstream host.
// The zero value is not usable, construct it with NewRateLimiter.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
	}
}

// Wait blocks until a request for key may be issued at least interval after the previous one.
// An empty key or non-positive interval never blocks.
func (r *RateLimiter) Wait(ctx context.Context, key string, interval time.Duration) error {
	if key == "" || interval <= 0 {
		return nil
	}
	return r.limiterFor(key, interval).Wait(ctx)
}

func (r *RateLimiter) limiterFor(key string, interval time.Duration) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	limit := rate.Every(interval)
	l, ok := r.limiters[key]
	if !ok {
		l = rate.NewLimiter(limit, 1)
		r.limiters[key] = l
		return l
	}
	if l.Limit() != limit {
		l.SetLimit(limit)
	}
	return l
}

// Keys lists the throttle keys seen so far.
func (r *RateLimiter) Keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]string, 0, len(r.limiters))
	for k := range r.limiters {
		keys = append(keys, k)
	}
	return keys
}
