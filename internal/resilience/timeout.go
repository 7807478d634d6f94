// Package resilience provides the bounded-time and retry primitives used for
// every remote call made by the sync engine.
//
// Three primitives are provided:
//
//   - WithTimeout races an operation against a timer and fails with a
//     labelled TimeoutError if the timer wins.
//   - Retry re-invokes an operation with linear backoff and fails with a
//     RetryError that names the label, attempt count and last cause.
//   - FetchWithTimeout performs an HTTP GET whose deadline actively cancels
//     the in-flight request.
//
// Operations receive a context derived from the deadline, so clients that
// honour context cancellation stop their work when the timer fires. Clients
// that ignore the context keep running in the background; their result is
// discarded.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrTimeout is matched by every TimeoutError via errors.Is.
var ErrTimeout = errors.New("timeout")

// TimeoutError reports that a labelled operation did not finish in time.
type TimeoutError struct {
	Label string
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s after %dms", e.Label, e.After.Milliseconds())
}

// Is reports whether target is ErrTimeout.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// WithTimeout runs op and waits at most d for its result.
//
// If d elapses first the call returns a *TimeoutError tagged with label. The
// context passed to op is cancelled at that point; op's eventual result is
// dropped. A non-positive d disables the timer.
func WithTimeout[T any](ctx context.Context, d time.Duration, label string, op func(ctx context.Context) (T, error)) (T, error) {
	if d <= 0 {
		return op(ctx)
	}

	opCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type outcome struct {
		val T
		err error
	}
	// Buffered so an abandoned op can still deliver and exit.
	done := make(chan outcome, 1)
	go func() {
		v, err := op(opCtx)
		done <- outcome{val: v, err: err}
	}()

	timer := time.NewTimer(d)
	defer timer.Stop()

	var zero T
	select {
	case out := <-done:
		return out.val, out.err
	case <-timer.C:
		return zero, &TimeoutError{Label: label, After: d}
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
