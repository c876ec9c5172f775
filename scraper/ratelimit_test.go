package scraper

import (
	"context"
	"testing"
	"time"
)

type fakeClock struct {
	now   time.Time
	waits []time.Duration
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(_ context.Context, d time.Duration) error {
	c.waits = append(c.waits, d)
	c.now = c.now.Add(d)
	return nil
}

func newFakeLimiter(capacity int, rate float64) (*RateLimiter, *fakeClock) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	l := NewRateLimiter(capacity, rate)
	l.now = clock.Now
	l.sleep = clock.Sleep
	l.last = clock.now
	return l, clock
}

func TestRateLimiterBurstThenWait(t *testing.T) {
	l, clock := newFakeLimiter(5, 1)

	for i := 0; i < 5; i++ {
		if err := l.Acquire(context.Background()); err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
	}
	if len(clock.waits) != 0 {
		t.Fatalf("burst of 5 should not wait, got %v", clock.waits)
	}

	if err := l.Acquire(context.Background()); err != nil {
		t.Fatalf("acquire 6: %v", err)
	}
	if len(clock.waits) != 1 || clock.waits[0] < time.Second {
		t.Fatalf("sixth acquire waits = %v, want one wait >= 1s", clock.waits)
	}
}

func TestRateLimiterRefillsLazily(t *testing.T) {
	l, clock := newFakeLimiter(5, 1)
	for i := 0; i < 5; i++ {
		_ = l.Acquire(context.Background())
	}

	clock.now = clock.now.Add(2500 * time.Millisecond)
	if got := l.Tokens(); got < 2.49 || got > 2.51 {
		t.Fatalf("tokens after 2.5s = %v, want 2.5", got)
	}

	clock.now = clock.now.Add(time.Hour)
	if got := l.Tokens(); got != 5 {
		t.Fatalf("tokens must cap at capacity, got %v", got)
	}
}

func TestRateLimiterPartialTokenWait(t *testing.T) {
	l, clock := newFakeLimiter(5, 1)
	for i := 0; i < 5; i++ {
		_ = l.Acquire(context.Background())
	}
	clock.now = clock.now.Add(400 * time.Millisecond)

	if err := l.Acquire(context.Background()); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if len(clock.waits) != 1 || clock.waits[0] != 600*time.Millisecond {
		t.Fatalf("waits = %v, want [600ms]", clock.waits)
	}
}

func TestRateLimiterSustainedThroughput(t *testing.T) {
	l, clock := newFakeLimiter(5, 1)
	start := clock.now
	for i := 0; i < 15; i++ {
		_ = l.Acquire(context.Background())
	}
	if elapsed := clock.now.Sub(start); elapsed < 10*time.Second {
		t.Fatalf("15 acquires took %v, want >= 10s at 1/s after a burst of 5", elapsed)
	}
}

func TestRateLimiterRealClock(t *testing.T) {
	l := NewRateLimiter(5, 1)
	start := time.Now()
	for i := 0; i < 5; i++ {
		if err := l.Acquire(context.Background()); err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
	}
	if elapsed := time.Since(start); elapsed > 200*time.Millisecond {
		t.Fatalf("burst took %v", elapsed)
	}
	if err := l.Acquire(context.Background()); err != nil {
		t.Fatalf("acquire 6: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 900*time.Millisecond {
		t.Fatalf("sixth acquire resolved after %v, want ~1s", elapsed)
	}
}

func TestRateLimiterCancelledWait(t *testing.T) {
	l := NewRateLimiter(1, 0.01)
	_ = l.Acquire(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := l.Acquire(ctx); err == nil {
		t.Fatalf("expected context error while waiting")
	}
}
