package scraper

import (
	"context"
	"math"
	"sync"
	"time"
)

// Default bucket shape for the marketplace API.
const (
	DefaultBucketCapacity = 5
	DefaultRefillPerSec   = 1.0
)

// RateLimiter is a token bucket shared by every outbound marketplace call.
// Refill is computed lazily from elapsed wall-clock time on each Acquire.
type RateLimiter struct {
	mu           sync.Mutex
	capacity     float64
	tokens       float64
	refillPerSec float64
	last         time.Time

	now     func() time.Time
	sleep   func(context.Context, time.Duration) error
	metrics *Metrics
}

// NewRateLimiter returns a full bucket.
func NewRateLimiter(capacity int, refillPerSec float64) *RateLimiter {
	if capacity <= 0 {
		capacity = DefaultBucketCapacity
	}
	if refillPerSec <= 0 {
		refillPerSec = DefaultRefillPerSec
	}
	return &RateLimiter{
		capacity:     float64(capacity),
		tokens:       float64(capacity),
		refillPerSec: refillPerSec,
		last:         time.Now(),
		now:          time.Now,
		sleep:        sleepWithContext,
	}
}

// SetMetrics attaches wait-time observation.
func (l *RateLimiter) SetMetrics(m *Metrics) {
	l.mu.Lock()
	l.metrics = m
	l.mu.Unlock()
}

// Acquire takes one token, waiting until one has accrued if the bucket is empty.
// Callers queue behind the bucket lock so waits never overdraw it.
func (l *RateLimiter) Acquire(ctx context.Context) error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.refillLocked()
	if l.tokens >= 1 {
		l.tokens--
		return nil
	}

	waitMs := math.Ceil((1 - l.tokens) / l.refillPerSec * 1000)
	wait := time.Duration(waitMs) * time.Millisecond
	if err := l.sleep(ctx, wait); err != nil {
		return err
	}
	l.metrics.ObserveWait(wait)

	l.refillLocked()
	l.tokens = math.Max(0, l.tokens-1)
	return nil
}

// Tokens reports the tokens currently available.
func (l *RateLimiter) Tokens() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refillLocked()
	return l.tokens
}

func (l *RateLimiter) refillLocked() {
	now := l.now()
	elapsed := now.Sub(l.last).Seconds()
	if elapsed > 0 {
		l.tokens = math.Min(l.capacity, l.tokens+elapsed*l.refillPerSec)
		l.last = now
	}
}

// sleepWithContext blocks for d, returning early if the context is cancelled.
func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
