package errors

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"otto/internal/logging"
)

// RetryConfig configures retry behavior. MaxAttempts counts total invocations
// of the operation, not retries: MaxAttempts=3 means at most 3 calls.
type RetryConfig struct {
	MaxAttempts int           // total attempts (default: 3)
	BaseDelay   time.Duration // base delay for exponential backoff (default: 1s)
	MaxDelay    time.Duration // cap on backoff delay (default: 30s)
	Jitter      bool          // randomize delays to avoid synchronized retry storms
	// RetryIf decides whether a failure is worth another attempt. When nil,
	// every failure is retried except those marked permanent (circuit-open
	// and capacity-exceeded rejections included).
	RetryIf func(error) bool
}

// DefaultRetryConfig returns sensible defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   1 * time.Second,
		MaxDelay:    30 * time.Second,
		Jitter:      true,
	}
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = 1 * time.Second
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 30 * time.Second
	}
	return c
}

func (c RetryConfig) shouldRetry(err error) bool {
	// Circuit-open rejections are never retried: the breaker has already
	// decided the downstream is unavailable.
	if IsCircuitOpen(err) {
		return false
	}
	if c.RetryIf != nil {
		return c.RetryIf(err)
	}
	return !IsPermanent(err)
}

// Retry executes fn with exponential backoff until it succeeds, a
// non-retryable error occurs, the context is cancelled, or MaxAttempts is
// reached. Exhaustion is reported as a RetryExhaustedError wrapping the last
// failure.
func Retry(ctx context.Context, config RetryConfig, logger logging.Logger, fn func(ctx context.Context) error) error {
	_, err := RetryWithResult(ctx, config, logger, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// RetryWithResult is Retry for operations that return a value.
func RetryWithResult[T any](ctx context.Context, config RetryConfig, logger logging.Logger, fn func(ctx context.Context) (T, error)) (T, error) {
	config = config.withDefaults()
	logger = logging.OrNop(logger)

	var zero T
	var lastErr error

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return zero, fmt.Errorf("retry aborted: %w", ctx.Err())
		default:
		}

		result, err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				logger.Info("succeeded on attempt %d/%d", attempt, config.MaxAttempts)
			}
			return result, nil
		}

		lastErr = err
		logger.Debug("attempt %d/%d failed: %v", attempt, config.MaxAttempts, err)

		if !config.shouldRetry(err) {
			logger.Debug("error is not retryable, giving up")
			return zero, err
		}
		if attempt == config.MaxAttempts {
			break
		}

		delay := backoffDelay(attempt, config)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return zero, fmt.Errorf("retry aborted during backoff: %w", ctx.Err())
		}
	}

	logger.Warn("retries exhausted after %d attempts: %v", config.MaxAttempts, lastErr)
	return zero, &RetryExhaustedError{Attempts: config.MaxAttempts, Err: lastErr}
}

// backoffDelay computes min(base * 2^(attempt-1), max) with optional jitter.
func backoffDelay(attempt int, config RetryConfig) time.Duration {
	multiplier := math.Pow(2, float64(attempt-1))
	delay := time.Duration(float64(config.BaseDelay) * multiplier)
	if delay > config.MaxDelay || delay <= 0 {
		delay = config.MaxDelay
	}

	if config.Jitter {
		// ±25% randomization spreads out retries from concurrent callers
		// hitting the same recovering downstream.
		jitter := (rand.Float64()*2 - 1) * 0.25 * float64(delay)
		delay = time.Duration(float64(delay) + jitter)
		if delay < 0 {
			delay = config.BaseDelay
		}
		if delay > config.MaxDelay {
			delay = config.MaxDelay
		}
	}

	return delay
}
