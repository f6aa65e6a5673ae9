// Package gateway is the HTTP mutation boundary: subscription changes,
// admin catalogue toggles, and the introspection endpoints.
package gateway

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter enforces per-key (user/IP) request rate limits using a
// token bucket per key.
type RateLimiter struct {
	limiters sync.Map     // key → *limiterEntry
	rpm      atomic.Int64 // requests per minute; 0 disables
	burst    int
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a rate limiter. rpm <= 0 disables limiting.
func NewRateLimiter(rpm, burst int) *RateLimiter {
	if burst <= 0 {
		burst = 5
	}
	rl := &RateLimiter{burst: burst}
	rl.rpm.Store(int64(rpm))

	go rl.cleanupLoop()
	return rl
}

// SetRPM hot-applies a new per-minute rate. Existing buckets keep their
// old rate until the cleanup loop recycles them; new keys get the new
// rate immediately.
func (rl *RateLimiter) SetRPM(rpm int) {
	rl.rpm.Store(int64(rpm))
}

// Allow reports whether a request from key may proceed.
func (rl *RateLimiter) Allow(key string) bool {
	rpm := rl.rpm.Load()
	if rpm <= 0 {
		return true
	}
	v, ok := rl.limiters.Load(key)
	if !ok {
		fresh := &limiterEntry{
			limiter:  rate.NewLimiter(rate.Limit(float64(rpm)/60.0), rl.burst),
			lastSeen: time.Now(),
		}
		v, _ = rl.limiters.LoadOrStore(key, fresh)
	}
	entry := v.(*limiterEntry)
	if !entry.limiter.Allow() {
		slog.Warn("gateway: rate limited", "key", key)
		return false
	}
	entry.lastSeen = time.Now()
	return true
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		cutoff := time.Now().Add(-10 * time.Minute)
		rl.limiters.Range(func(key, value any) bool {
			if value.(*limiterEntry).lastSeen.Before(cutoff) {
				rl.limiters.Delete(key)
			}
			return true
		})
	}
}
