package errors

import (
	"context"
	"time"
)

// RunWithTimeout executes fn with a deadline. Cancellation is cooperative: on
// timeout the operation's context is cancelled and a TimeoutError is returned
// to the caller, but a non-cooperating fn may keep running in the background;
// its eventual result is discarded.
//
// onTimeout, when non-nil, fires before the TimeoutError is returned.
func RunWithTimeout[T any](ctx context.Context, name string, timeout time.Duration, onTimeout func(), fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if timeout <= 0 {
		return fn(ctx)
	}

	opCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		result T
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		result, err := fn(opCtx)
		done <- outcome{result: result, err: err}
	}()

	select {
	case out := <-done:
		return out.result, out.err
	case <-opCtx.Done():
		if ctx.Err() != nil {
			// The parent was cancelled, not the per-operation deadline.
			return zero, ctx.Err()
		}
		if onTimeout != nil {
			onTimeout()
		}
		return zero, &TimeoutError{Operation: name, Timeout: timeout}
	}
}
