// Package ratelimit provides per-client token bucket rate limiting for the
// status API.
package ratelimit

import (
	"sync"
	"time"
)

// TokenBucket holds up to capacity tokens and refills continuously.
type TokenBucket struct {
	capacity   int
	refillRate float64 // tokens per second
	tokens     float64
	lastRefill time.Time
	mu         sync.Mutex
}

func newTokenBucket(capacity int, refillRate float64, now time.Time) *TokenBucket {
	return &TokenBucket{
		capacity:   capacity,
		refillRate: refillRate,
		tokens:     float64(capacity),
		lastRefill: now,
	}
}

func (tb *TokenBucket) refill(now time.Time) {
	elapsed := now.Sub(tb.lastRefill)
	if elapsed > 0 {
		tb.tokens = min(float64(tb.capacity), tb.tokens+elapsed.Seconds()*tb.refillRate)
		tb.lastRefill = now
	}
}

// take consumes a token if one is available and reports the bucket state.
func (tb *TokenBucket) take(now time.Time) (allowed bool, remaining int, resetTime time.Time) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill(now)
	if tb.tokens >= 1.0 {
		tb.tokens--
		allowed = true
	}

	remaining = int(tb.tokens)
	resetTime = now
	if missing := float64(tb.capacity) - tb.tokens; missing > 0 {
		resetTime = now.Add(time.Duration(missing / tb.refillRate * float64(time.Second)))
	}
	return allowed, remaining, resetTime
}

// Info contains information about rate limit status.
type Info struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetTime  time.Time
	RetryAfter time.Duration
}

// Limiter manages rate limiting for multiple clients using token buckets.
type Limiter struct {
	config *Config
	now    func() time.Time

	mu         sync.Mutex
	buckets    map[string]*TokenBucket
	lastAccess map[string]time.Time

	stopOnce sync.Once
	stop     chan struct{}
}

// NewLimiter creates a new rate limiter with the given configuration.
// A nil config uses DefaultConfig.
func NewLimiter(config *Config) *Limiter {
	if config == nil {
		config = DefaultConfig()
	}

	l := &Limiter{
		config:     config,
		now:        time.Now,
		buckets:    make(map[string]*TokenBucket),
		lastAccess: make(map[string]time.Time),
		stop:       make(chan struct{}),
	}

	if config.Enabled && config.IdleTTL > 0 {
		go l.sweep(config.IdleTTL)
	}
	return l
}

// Allow takes a token for one request and reports the bucket state.
func (l *Limiter) Allow(clientID, path, method string) (bool, Info) {
	if !l.config.Enabled || l.config.exempt(path) {
		return true, Info{Allowed: true}
	}

	rule := l.config.match(method, path)
	if !rule.active() {
		return true, Info{Allowed: true}
	}

	now := l.now()
	key := clientID + ":" + method + ":" + rule.Path
	bucket := l.bucket(key, rule, now)

	allowed, remaining, resetTime := bucket.take(now)
	info := Info{
		Allowed:   allowed,
		Limit:     rule.Rate,
		Remaining: remaining,
		ResetTime: resetTime,
	}
	if !allowed {
		info.RetryAfter = max(resetTime.Sub(now), 0)
	}
	return allowed, info
}

func (l *Limiter) bucket(key string, rule Rule, now time.Time) *TokenBucket {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.lastAccess[key] = now
	if b, ok := l.buckets[key]; ok {
		return b
	}
	b := newTokenBucket(rule.capacity(), rule.refillPerSecond(), now)
	l.buckets[key] = b
	return b
}

// sweep evicts idle buckets every ttl until Stop.
func (l *Limiter) sweep(ttl time.Duration) {
	ticker := time.NewTicker(ttl)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.evictIdle(ttl)
		case <-l.stop:
			return
		}
	}
}

// evictIdle removes buckets that have not been used for longer than idle.
func (l *Limiter) evictIdle(idle time.Duration) int {
	cutoff := l.now().Add(-idle)

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, last := range l.lastAccess {
		if last.Before(cutoff) {
			delete(l.buckets, key)
			delete(l.lastAccess, key)
			removed++
		}
	}
	return removed
}

// Stop stops the sweeper.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}
