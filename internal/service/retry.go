package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/ZaidMomin2003/talxify/internal/domain"
	"github.com/ZaidMomin2003/talxify/internal/metrics"
	"github.com/sethvargo/go-retry"
)

// RetryConfig bounds the backoff applied to transient store failures.
type RetryConfig struct {
	MaxRetries uint64
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultRetryConfig returns the production backoff.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 4,
		BaseDelay:  50 * time.Millisecond,
		MaxDelay:   2 * time.Second,
	}
}

func (c RetryConfig) backoff() retry.Backoff {
	base := c.BaseDelay
	if base <= 0 {
		base = time.Millisecond
	}
	b := retry.NewExponential(base)
	if c.MaxDelay > 0 {
		b = retry.WithCappedDuration(c.MaxDelay, b)
	}
	b = retry.WithJitterPercent(10, b)
	return retry.WithMaxRetries(c.MaxRetries, b)
}

// withRetry runs fn until it succeeds, fails with a non-transient error, or
// the retry budget is spent. fn must re-read any state it depends on.
func withRetry(ctx context.Context, cfg RetryConfig, logger *slog.Logger, op string, fn func(ctx context.Context) error) error {
	attempt := 0
	return retry.Do(ctx, cfg.backoff(), func(ctx context.Context) error {
		attempt++
		err := fn(ctx)
		if err == nil || !domain.IsTransient(err) {
			return err
		}
		metrics.StoreRetried(op)
		logger.Warn("transient store error, retrying", "op", op, "attempt", attempt, "error", err)
		return retry.RetryableError(err)
	})
}
