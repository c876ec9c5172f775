package scraper

import (
	"context"
	"log/slog"
	"time"
)

// Policy parameterizes retry behaviour for one upstream.
type Policy struct {
	Name           string
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

var (
	// MarketplacePolicy governs marketplace inventory, listing and release calls.
	MarketplacePolicy = Policy{Name: "marketplace", MaxAttempts: 3, InitialBackoff: 5 * time.Second, MaxBackoff: 60 * time.Second}
	// ArtworkPolicy governs cover art metadata lookups.
	ArtworkPolicy = Policy{Name: "artwork", MaxAttempts: 3, InitialBackoff: 2 * time.Second, MaxBackoff: 30 * time.Second}
)

// Backoff returns the delay after the given failed attempt (1-based).
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}

	base := p.InitialBackoff
	if base <= 0 {
		base = 100 * time.Millisecond
	}

	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if p.MaxBackoff > 0 && delay >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	if p.MaxBackoff > 0 && delay > p.MaxBackoff {
		delay = p.MaxBackoff
	}
	return delay
}

// Executor runs operations under a Policy. Hard limits and non-rate-limit
// errors are returned on first occurrence.
type Executor struct {
	policy  Policy
	metrics *Metrics
	logger  *slog.Logger
	sleep   func(context.Context, time.Duration) error
}

// NewExecutor builds an executor for policy.
func NewExecutor(policy Policy, metrics *Metrics, logger *slog.Logger) *Executor {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		policy:  policy,
		metrics: metrics,
		logger:  logger,
		sleep:   sleepWithContext,
	}
}

// Do invokes op until it succeeds, fails permanently, or attempts run out.
func (e *Executor) Do(ctx context.Context, op func(context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= e.policy.MaxAttempts; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !IsRetryable(err) || attempt == e.policy.MaxAttempts {
			return err
		}

		delay := e.policy.Backoff(attempt)
		e.metrics.IncRetries(e.policy.Name)
		e.logger.Warn("rate limited, backing off",
			slog.String("policy", e.policy.Name),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.Any("error", err),
		)
		if err := e.sleep(ctx, delay); err != nil {
			return err
		}
	}
	return lastErr
}

// Retry runs op through e and returns its value.
func Retry[T any](ctx context.Context, e *Executor, op func(context.Context) (T, error)) (T, error) {
	var result T
	err := e.Do(ctx, func(ctx context.Context) error {
		value, err := op(ctx)
		if err != nil {
			return err
		}
		result = value
		return nil
	})
	return result, err
}
