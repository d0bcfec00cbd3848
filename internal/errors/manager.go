package errors

import (
	"context"
	"time"

	"otto/internal/logging"
)

// RecoveryConfig bundles the protection policies applied to every guarded
// operation.
type RecoveryConfig struct {
	Retry   RetryConfig
	Breaker CircuitBreakerConfig
	// Timeout bounds each individual attempt. Zero disables the per-attempt
	// deadline.
	Timeout time.Duration
	// TimeoutTripsBreaker controls whether a per-attempt timeout counts as a
	// failure for the circuit breaker. Timeouts always count against the
	// retry budget, but by default they do not trip the breaker: a slow but
	// eventually-successful downstream should not be locked out.
	TimeoutTripsBreaker bool
}

// DefaultRecoveryConfig returns the default policy bundle.
func DefaultRecoveryConfig() RecoveryConfig {
	return RecoveryConfig{
		Retry:   DefaultRetryConfig(),
		Breaker: DefaultCircuitBreakerConfig(),
		Timeout: 2 * time.Minute,
	}
}

// RecoveryManager wraps operations in the full protection pipeline: each
// attempt passes the named service's circuit breaker, runs under the
// per-attempt timeout, and failures feed the retry policy. Breaker state is
// shared across calls through a per-service registry.
type RecoveryManager struct {
	config   RecoveryConfig
	breakers *CircuitBreakerRegistry
	logger   logging.Logger
}

// NewRecoveryManager creates a manager with its own breaker registry.
func NewRecoveryManager(config RecoveryConfig, logger logging.Logger) *RecoveryManager {
	logger = logging.OrNop(logger)
	return &RecoveryManager{
		config:   config,
		breakers: NewCircuitBreakerRegistry(config.Breaker, logger),
		logger:   logger,
	}
}

// Breakers exposes the breaker registry for monitoring.
func (m *RecoveryManager) Breakers() *CircuitBreakerRegistry {
	return m.breakers
}

// Protect runs op under the full pipeline keyed by service name and returns
// its result. Circuit-open rejections fail fast without invoking op.
func Protect[T any](ctx context.Context, m *RecoveryManager, service string, op func(ctx context.Context) (T, error)) (T, error) {
	return ProtectTimeout(ctx, m, service, 0, op)
}

// ProtectTimeout is Protect with a per-call attempt timeout. A non-positive
// timeout falls back to the manager's configured default.
func ProtectTimeout[T any](ctx context.Context, m *RecoveryManager, service string, timeout time.Duration, op func(ctx context.Context) (T, error)) (T, error) {
	breaker := m.breakers.Get(service)
	if timeout <= 0 {
		timeout = m.config.Timeout
	}

	attempt := func(ctx context.Context) (T, error) {
		var zero T
		if err := breaker.Allow(); err != nil {
			return zero, err
		}

		result, err := RunWithTimeout(ctx, service, timeout, nil, op)
		if IsTimeout(err) && !m.config.TimeoutTripsBreaker {
			// Release the breaker slot without recording an outcome so a
			// timed-out probe neither closes nor reopens the circuit.
			breaker.Forgive()
			return zero, err
		}
		breaker.Mark(err)
		return result, err
	}

	return RetryWithResult(ctx, m.config.Retry, m.logger, attempt)
}

// ProtectErr is Protect for operations without a result value.
func (m *RecoveryManager) ProtectErr(ctx context.Context, service string, op func(ctx context.Context) error) error {
	_, err := Protect(ctx, m, service, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}
