package server

import (
	"fmt"
	"testing"
	"time"
)

func TestRateLimiter_Capacity(t *testing.T) {
	tests := []struct {
		cap     int
		allowed int
	}{
		{1, 1},
		{2, 2},
		{5, 5},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("cap=%d", tt.cap), func(t *testing.T) {
			rl := newIPRateLimiter(tt.cap, time.Minute)
			got := 0
			for i := 0; i < tt.cap+3; i++ {
				if rl.Allow("198.51.100.7") {
					got++
				}
			}
			if got != tt.allowed {
				t.Fatalf("allowed %d requests, want %d", got, tt.allowed)
			}
		})
	}
}

func TestRateLimiter_BucketsArePerClient(t *testing.T) {
	rl := newIPRateLimiter(1, time.Minute)

	for _, ip := range []string{"198.51.100.1", "198.51.100.2"} {
		if !rl.Allow(ip) {
			t.Fatalf("%s: first request denied", ip)
		}
	}
	for _, ip := range []string{"198.51.100.1", "198.51.100.2"} {
		if rl.Allow(ip) {
			t.Fatalf("%s: second request allowed", ip)
		}
	}
}

func TestRateLimiter_RefillRestoresCapacity(t *testing.T) {
	rl := newIPRateLimiter(2, 40*time.Millisecond)
	for rl.Allow("203.0.113.9") {
	}

	time.Sleep(60 * time.Millisecond)

	for i := 0; i < 2; i++ {
		if !rl.Allow("203.0.113.9") {
			t.Fatalf("request %d after refill denied", i)
		}
	}
	if rl.Allow("203.0.113.9") {
		t.Fatal("refill exceeded capacity")
	}
}

func TestRateLimiter_CleanupDropsStaleBuckets(t *testing.T) {
	rl := newIPRateLimiter(1, time.Minute)
	rl.Allow("stale")
	rl.Allow("fresh")

	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.buckets["stale"].last = time.Now().Add(-staleAfter - time.Minute)
	rl.cleanupLocked(time.Now())

	if _, ok := rl.buckets["stale"]; ok {
		t.Error("stale bucket kept")
	}
	if _, ok := rl.buckets["fresh"]; !ok {
		t.Error("fresh bucket dropped")
	}
}

func TestRateLimiter_FullTableTriggersCleanup(t *testing.T) {
	rl := newIPRateLimiter(1, time.Minute)
	old := time.Now().Add(-2 * staleAfter)
	for i := 0; i < maxBuckets; i++ {
		rl.buckets[fmt.Sprintf("10.0.%d.%d", i/256, i%256)] = &bucket{last: old}
	}

	if !rl.Allow("192.0.2.1") {
		t.Fatal("new client denied")
	}
	if n := len(rl.buckets); n != 1 {
		t.Fatalf("buckets after cleanup = %d, want 1", n)
	}
}
