package clients

import (
	"context"
	"fmt"
	"time"
)

// LinearBackoffBase is the per-attempt delay multiplier named in spec
// §7 ("linear backoff (5 s × attempt)").
const LinearBackoffBase = 5 * time.Second

// withRetry runs fn up to maxAttempts times (1 initial + maxAttempts-1
// retries), sleeping attempt*LinearBackoffBase between attempts that
// return a *TransientError. Any other error, or exhausting attempts,
// returns immediately. Satisfies P9 (retry bound, monotone backoff).
func withRetry[T any](ctx context.Context, maxAttempts int, fn func(ctx context.Context, attempt int) (T, error)) (T, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	var zero T
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		result, err := fn(ctx, attempt)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if _, transient := AsTransient(err); !transient {
			return zero, err
		}
		if attempt == maxAttempts {
			break
		}

		delay := time.Duration(attempt) * LinearBackoffBase
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay):
		}
	}
	return zero, fmt.Errorf("exceeded %d attempts: %w", maxAttempts, lastErr)
}
