package server

import (
	"sync"
	"time"
)

// Buckets idle for longer than staleAfter are dropped once the table grows
// past maxBuckets.
const (
	maxBuckets = 1024
	staleAfter = 24 * time.Hour
)

// Simple token bucket per IP with fixed refill interval and capacity.
type ipRateLimiter struct {
	cap     int
	refill  time.Duration
	buckets map[string]*bucket
	// protect buckets
	mu sync.Mutex
}

type bucket struct {
	tokens int
	last   time.Time
}

func newIPRateLimiter(cap int, refill time.Duration) *ipRateLimiter {
	return &ipRateLimiter{cap: cap, refill: refill, buckets: make(map[string]*bucket)}
}

func (rl *ipRateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := time.Now()
	if len(rl.buckets) >= maxBuckets {
		rl.cleanupLocked(now)
	}
	b := rl.buckets[key]
	if b == nil {
		b = &bucket{tokens: rl.cap - 1, last: now}
		rl.buckets[key] = b
		return true
	}
	if now.Sub(b.last) >= rl.refill {
		b.tokens = rl.cap
		b.last = now
	}
	if b.tokens <= 0 {
		return false
	}
	b.tokens--
	return true
}

func (rl *ipRateLimiter) cleanupLocked(now time.Time) {
	for k, b := range rl.buckets {
		if now.Sub(b.last) > staleAfter {
			delete(rl.buckets, k)
		}
	}
}
