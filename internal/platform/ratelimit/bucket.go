// Package ratelimit implements per-upstream token buckets (spec.md §4.4).
//
// Refill is computed lazily from now-last_refill on each Acquire, the
// same approach the teacher uses in its single-purpose zKB rate
// limiter, generalized here to a named bucket per upstream.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"wandererkills/internal/platform/clock"
)

// Bucket is a single token bucket: capacity, refill rate, current
// tokens and the instant of the last refill (spec.md §3 RateBucket).
type Bucket struct {
	mu sync.Mutex

	capacity   float64
	refillRate float64 // tokens per second
	tokens     float64
	lastRefill time.Time
	clk        clock.Clock
}

// NewBucket creates a token bucket starting full.
func NewBucket(capacity, refillRate int, clk clock.Clock) *Bucket {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Bucket{
		capacity:   float64(capacity),
		refillRate: float64(refillRate),
		tokens:     float64(capacity),
		lastRefill: clk.Now(),
		clk:        clk,
	}
}

// Acquire blocks (respecting ctx) until one token is available, then
// consumes it.
func (b *Bucket) Acquire(ctx context.Context) error {
	for {
		wait, ok := b.tryAcquire()
		if ok {
			return nil
		}
		if wait <= 0 {
			wait = time.Millisecond
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// tryAcquire refills lazily, then attempts to take one token. It
// returns the duration to wait before retrying if tokens are not yet
// available.
func (b *Bucket) tryAcquire() (time.Duration, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clk.Now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed > 0 {
		b.tokens += elapsed * b.refillRate
		if b.tokens > b.capacity {
			b.tokens = b.capacity
		}
		b.lastRefill = now
	}

	if b.tokens >= 1 {
		b.tokens--
		return 0, true
	}

	missing := 1 - b.tokens
	waitSeconds := missing / b.refillRate
	return time.Duration(waitSeconds * float64(time.Second)), false
}

// Tokens reports the current token count, for tests.
func (b *Bucket) Tokens() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tokens
}

// Limiter holds one Bucket per upstream name (spec.md: ESI and zKB).
type Limiter struct {
	mu      sync.RWMutex
	buckets map[string]*Bucket
}

// NewLimiter creates an empty per-upstream limiter.
func NewLimiter() *Limiter {
	return &Limiter{buckets: make(map[string]*Bucket)}
}

// Register adds (or replaces) the bucket for an upstream name.
func (l *Limiter) Register(upstream string, b *Bucket) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buckets[upstream] = b
}

// Acquire waits for a token from the named upstream's bucket. It is a
// no-op (returns nil immediately) if no bucket is registered for that
// name, so callers don't need to special-case unconfigured upstreams.
func (l *Limiter) Acquire(ctx context.Context, upstream string) error {
	l.mu.RLock()
	b, ok := l.buckets[upstream]
	l.mu.RUnlock()
	if !ok {
		return nil
	}
	return b.Acquire(ctx)
}
