// Package memory holds in-process stand-ins for the redis backed limiter and
// turn lock, used when the bot runs as a single replica without redis.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter is a token bucket per key: limit events per window, refilled
// evenly across the window.
type RateLimiter struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
	now      func() time.Time
}

func NewRateLimiter() *RateLimiter {
	return &RateLimiter{limiters: make(map[string]*rate.Limiter), now: time.Now}
}

// Allow never waits. The bucket size and rate are fixed on first use of a key.
func (r *RateLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	if limit <= 0 || window <= 0 {
		return false, fmt.Errorf("rate limit: invalid limit %d per %s", limit, window)
	}
	return r.limiter(key, limit, window).AllowN(r.now(), 1), nil
}

func (r *RateLimiter) limiter(key string, limit int, window time.Duration) *rate.Limiter {
	r.mu.RLock()
	l, ok := r.limiters[key]
	r.mu.RUnlock()
	if ok {
		return l
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// double check since there is a gap between critical sections.
	if l, ok := r.limiters[key]; ok {
		return l
	}
	l = rate.NewLimiter(rate.Every(window/time.Duration(limit)), limit)
	r.limiters[key] = l
	return l
}

// Prune drops buckets that have refilled completely; they carry no state a
// fresh bucket would not. It returns the number of keys removed.
func (r *RateLimiter) Prune() int {
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for key, l := range r.limiters {
		if l.TokensAt(now) >= float64(l.Burst()) {
			delete(r.limiters, key)
			n++
		}
	}
	return n
}
