package resilience

import (
	"context"
	"fmt"
	"time"
)

// RetryOptions configures Retry.
type RetryOptions struct {
	// Retries is the total number of attempts (values below 1 mean 1).
	Retries int

	// Backoff is multiplied by the attempt number to get the delay before
	// the next attempt: Backoff, 2*Backoff, 3*Backoff, ...
	Backoff time.Duration

	// Label names the operation in the aggregate error.
	Label string
}

// RetryError is returned when every attempt failed.
type RetryError struct {
	Label    string
	Attempts int
	Err      error
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("%s failed after %d attempts: %v", e.Label, e.Attempts, e.Err)
}

// Unwrap returns the last underlying error.
func (e *RetryError) Unwrap() error {
	return e.Err
}

// Retry invokes op until it succeeds or opts.Retries attempts have been made.
// Between attempts it sleeps opts.Backoff × attempt. The sleep is abandoned
// if ctx is cancelled, in which case the context error is returned.
func Retry[T any](ctx context.Context, opts RetryOptions, op func(ctx context.Context) (T, error)) (T, error) {
	attempts := opts.Retries
	if attempts < 1 {
		attempts = 1
	}
	label := opts.Label
	if label == "" {
		label = "retry"
	}

	var (
		zero    T
		lastErr error
	)
	for attempt := 1; attempt <= attempts; attempt++ {
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err

		if attempt < attempts {
			if err := sleep(ctx, opts.Backoff*time.Duration(attempt)); err != nil {
				return zero, err
			}
		}
	}

	return zero, &RetryError{Label: label, Attempts: attempts, Err: lastErr}
}

// Do is Retry wrapped around WithTimeout: each attempt is bounded by d.
func Do[T any](ctx context.Context, d time.Duration, opts RetryOptions, op func(ctx context.Context) (T, error)) (T, error) {
	return Retry(ctx, opts, func(ctx context.Context) (T, error) {
		return WithTimeout(ctx, d, opts.Label, op)
	})
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
