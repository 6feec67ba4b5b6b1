package reliability

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/healthaudit/audit-pipeline/pkg/apierrors"
)

// RetryConfig controls a full-jitter exponential backoff retry loop.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	// Retryable decides whether err should trigger another attempt. A nil
	// Retryable retries every non-nil error.
	Retryable func(err error) bool
}

// Delay returns the full-jitter backoff delay before attempt n (1-indexed):
// Uniform(0, min(initialDelay * multiplier^(n-1), maxDelay)).
func (c RetryConfig) Delay(attempt int) time.Duration {
	mult := c.Multiplier
	if mult <= 0 {
		mult = 2
	}
	raw := float64(c.InitialDelay) * pow(mult, attempt-1)
	capped := raw
	if max := float64(c.MaxDelay); c.MaxDelay > 0 && capped > max {
		capped = max
	}
	if capped <= 0 {
		return 0
	}
	return time.Duration(rand.Float64() * capped)
}

func pow(base float64, exp int) float64 {
	result := 1.0
	for i := 0; i < exp; i++ {
		result *= base
	}
	return result
}

// Do runs fn, retrying per cfg until it succeeds, the context is
// cancelled, or MaxAttempts is exhausted. On exhaustion it returns an
// *apierrors.Error of KindRetryExhausted wrapping the last error.
func Do(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	retryable := cfg.Retryable
	if retryable == nil {
		retryable = func(error) bool { return true }
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !retryable(lastErr) {
			return lastErr
		}
		if attempt == cfg.MaxAttempts {
			break
		}
		delay := cfg.Delay(attempt)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return apierrors.Wrap(apierrors.KindRetryExhausted,
		fmt.Sprintf("exhausted %d attempts", cfg.MaxAttempts), lastErr)
}

// IsTransient reports whether err should be treated as retryable: either
// it is explicitly tagged KindTransient, or it wraps context.DeadlineExceeded.
func IsTransient(err error) bool {
	if apierrors.IsTransient(err) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
