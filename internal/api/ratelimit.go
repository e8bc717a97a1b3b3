package api

import (
	"net"
	"net/http"
	"sync"
	"time"
)

// RateLimiter is a token bucket per client IP. Only RemoteAddr is used;
// X-Forwarded-For is client-controlled and never trusted.
type RateLimiter struct {
	mu       sync.Mutex
	buckets  map[string]*bucket
	rate     int
	window   time.Duration
	maxCache int
}

type bucket struct {
	tokens     int
	lastRefill time.Time
}

// NewRateLimiter allows rate requests per window from each IP.
func NewRateLimiter(rate int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		buckets:  make(map[string]*bucket),
		rate:     rate,
		window:   window,
		maxCache: 10000,
	}
	go rl.cleanup()
	return rl
}

// Allow reports whether a request from ip fits the budget.
func (rl *RateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()

	b, ok := rl.buckets[ip]
	if !ok {
		if len(rl.buckets) >= rl.maxCache {
			rl.evictStale(now)
		}
		rl.buckets[ip] = &bucket{tokens: rl.rate - 1, lastRefill: now}
		return true
	}

	if now.Sub(b.lastRefill) >= rl.window {
		b.tokens = rl.rate - 1
		b.lastRefill = now
		return true
	}

	if b.tokens > 0 {
		b.tokens--
		return true
	}
	return false
}

func (rl *RateLimiter) evictStale(now time.Time) {
	for ip, b := range rl.buckets {
		if now.Sub(b.lastRefill) > rl.window*2 {
			delete(rl.buckets, ip)
		}
	}
	// Still full: shed a tenth arbitrarily.
	if len(rl.buckets) >= rl.maxCache {
		toRemove := len(rl.buckets) / 10
		for ip := range rl.buckets {
			if toRemove == 0 {
				break
			}
			delete(rl.buckets, ip)
			toRemove--
		}
	}
}

// Middleware rejects over-budget requests with 429.
func (rl *RateLimiter) Middleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(clientIP(r)) {
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next(w, r)
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		rl.mu.Lock()
		rl.evictStale(time.Now())
		rl.mu.Unlock()
	}
}
