package errors

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testRecovery(t *testing.T, cfg RecoveryConfig) *RecoveryManager {
	t.Helper()
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = fastRetry(3)
	}
	if cfg.Breaker.FailureThreshold == 0 {
		cfg.Breaker = CircuitBreakerConfig{FailureThreshold: 100, ResetTimeout: time.Minute}
	}
	return NewRecoveryManager(cfg, nil)
}

func TestProtectPassesThroughSuccess(t *testing.T) {
	m := testRecovery(t, RecoveryConfig{})

	result, err := Protect(context.Background(), m, "llm", func(ctx context.Context) (string, error) {
		return "answer", nil
	})
	require.NoError(t, err)
	require.Equal(t, "answer", result)
}

func TestProtectRetriesThenSucceeds(t *testing.T) {
	m := testRecovery(t, RecoveryConfig{})

	calls := 0
	result, err := Protect(context.Background(), m, "llm", func(ctx context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, errDownstream
		}
		return calls, nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, result)
}

func TestProtectOpensBreakerAndFailsFast(t *testing.T) {
	m := testRecovery(t, RecoveryConfig{
		Retry:   fastRetry(3),
		Breaker: CircuitBreakerConfig{FailureThreshold: 3, ResetTimeout: time.Minute},
	})

	calls := 0
	_, err := Protect(context.Background(), m, "flaky", func(ctx context.Context) (int, error) {
		calls++
		return 0, errDownstream
	})
	// All three attempts consumed, which also opened the breaker.
	require.Equal(t, 3, calls)
	var exhausted *RetryExhaustedError
	require.ErrorAs(t, err, &exhausted)
	require.Equal(t, StateOpen, m.Breakers().Get("flaky").State())

	// Next call is rejected before the operation runs, with no retries.
	_, err = Protect(context.Background(), m, "flaky", func(ctx context.Context) (int, error) {
		calls++
		return 0, nil
	})
	require.Equal(t, 3, calls)
	require.True(t, IsCircuitOpen(err))
}

func TestProtectBreakerIsPerService(t *testing.T) {
	m := testRecovery(t, RecoveryConfig{
		Retry:   fastRetry(1),
		Breaker: CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Minute},
	})

	_, err := Protect(context.Background(), m, "search", func(ctx context.Context) (int, error) {
		return 0, errDownstream
	})
	require.Error(t, err)
	require.Equal(t, StateOpen, m.Breakers().Get("search").State())

	// A different service is unaffected.
	result, err := Protect(context.Background(), m, "llm", func(ctx context.Context) (int, error) {
		return 7, nil
	})
	require.NoError(t, err)
	require.Equal(t, 7, result)
}

func TestProtectTimeoutCountsAgainstRetryBudget(t *testing.T) {
	m := testRecovery(t, RecoveryConfig{Retry: fastRetry(2)})

	calls := 0
	_, err := ProtectTimeout(context.Background(), m, "slow", 20*time.Millisecond, func(ctx context.Context) (int, error) {
		calls++
		<-ctx.Done()
		return 0, ctx.Err()
	})

	require.Equal(t, 2, calls)
	var exhausted *RetryExhaustedError
	require.ErrorAs(t, err, &exhausted)
	require.True(t, IsTimeout(err))
}

func TestProtectTimeoutDoesNotTripBreakerByDefault(t *testing.T) {
	m := testRecovery(t, RecoveryConfig{
		Retry:   fastRetry(3),
		Breaker: CircuitBreakerConfig{FailureThreshold: 2, ResetTimeout: time.Minute},
	})

	_, err := ProtectTimeout(context.Background(), m, "slow", 10*time.Millisecond, func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	require.True(t, IsTimeout(err))

	// Three timed-out attempts crossed the failure threshold, but timeouts
	// are not breaker failures unless configured otherwise.
	require.Equal(t, StateClosed, m.Breakers().Get("slow").State())
}

func TestProtectTimeoutTripsBreakerWhenConfigured(t *testing.T) {
	m := testRecovery(t, RecoveryConfig{
		Retry:               fastRetry(3),
		Breaker:             CircuitBreakerConfig{FailureThreshold: 2, ResetTimeout: time.Minute},
		TimeoutTripsBreaker: true,
	})

	_, err := ProtectTimeout(context.Background(), m, "slow", 10*time.Millisecond, func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	require.Error(t, err)
	require.Equal(t, StateOpen, m.Breakers().Get("slow").State())
}

func TestProtectErr(t *testing.T) {
	m := testRecovery(t, RecoveryConfig{})

	calls := 0
	err := m.ProtectErr(context.Background(), "svc", func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return errDownstream
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, calls)
}
