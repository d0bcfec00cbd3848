package errors

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var errDownstream = errors.New("downstream unavailable")

func trip(cb *CircuitBreaker, failures int) {
	for i := 0; i < failures; i++ {
		if err := cb.Allow(); err != nil {
			return
		}
		cb.Mark(errDownstream)
	}
}

func TestCircuitBreakerOpensAtThreshold(t *testing.T) {
	cb := NewCircuitBreaker("svc", CircuitBreakerConfig{
		FailureThreshold: 3,
		ResetTimeout:     time.Minute,
	}, nil)

	trip(cb, 2)
	require.Equal(t, StateClosed, cb.State())

	trip(cb, 1)
	require.Equal(t, StateOpen, cb.State())

	err := cb.Allow()
	require.Error(t, err)
	require.True(t, IsCircuitOpen(err))
}

func TestCircuitBreakerSuccessResetsFailureCount(t *testing.T) {
	cb := NewCircuitBreaker("svc", CircuitBreakerConfig{
		FailureThreshold: 3,
		ResetTimeout:     time.Minute,
	}, nil)

	trip(cb, 2)
	require.NoError(t, cb.Allow())
	cb.Mark(nil)

	// The streak restarted, so two more failures must not open it.
	trip(cb, 2)
	require.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreakerHalfOpenProbe(t *testing.T) {
	cb := NewCircuitBreaker("svc", CircuitBreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     20 * time.Millisecond,
		HalfOpenMaxCalls: 1,
	}, nil)

	trip(cb, 1)
	require.Equal(t, StateOpen, cb.State())
	require.True(t, IsCircuitOpen(cb.Allow()))

	time.Sleep(30 * time.Millisecond)

	// First caller after the reset timeout gets the probe slot.
	require.NoError(t, cb.Allow())
	require.Equal(t, StateHalfOpen, cb.State())

	// Concurrent callers are rejected while the probe is in flight.
	require.True(t, IsCircuitOpen(cb.Allow()))

	cb.Mark(nil)
	require.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker("svc", CircuitBreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     10 * time.Millisecond,
	}, nil)

	trip(cb, 1)
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, cb.Allow())
	cb.Mark(errDownstream)
	require.Equal(t, StateOpen, cb.State())
	require.True(t, IsCircuitOpen(cb.Allow()))
}

func TestCircuitBreakerForgiveReleasesProbe(t *testing.T) {
	cb := NewCircuitBreaker("svc", CircuitBreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     10 * time.Millisecond,
	}, nil)

	trip(cb, 1)
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, cb.Allow())
	cb.Forgive()

	// The slot is free again for the next probe; state stays half-open.
	require.Equal(t, StateHalfOpen, cb.State())
	require.NoError(t, cb.Allow())
}

func TestCircuitBreakerHalfOpenSingleWinnerUnderRace(t *testing.T) {
	cb := NewCircuitBreaker("svc", CircuitBreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     10 * time.Millisecond,
		HalfOpenMaxCalls: 1,
	}, nil)

	trip(cb, 1)
	time.Sleep(20 * time.Millisecond)

	const racers = 32
	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if cb.Allow() == nil {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if admitted != 1 {
		t.Fatalf("expected exactly 1 admitted probe, got %d", admitted)
	}
}

func TestCircuitBreakerStateChangeCallback(t *testing.T) {
	var mu sync.Mutex
	var transitions []CircuitState
	cb := NewCircuitBreaker("svc", CircuitBreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     10 * time.Millisecond,
		OnStateChange: func(from, to CircuitState, name string) {
			mu.Lock()
			transitions = append(transitions, to)
			mu.Unlock()
		},
	}, nil)

	trip(cb, 1)
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, cb.Allow())
	cb.Mark(nil)

	// The callback runs on its own goroutine, so wait for all three edges.
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(transitions) == 3
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.ElementsMatch(t, []CircuitState{StateOpen, StateHalfOpen, StateClosed}, transitions)
}

func TestCircuitBreakerRegistrySharesInstances(t *testing.T) {
	reg := NewCircuitBreakerRegistry(CircuitBreakerConfig{FailureThreshold: 2}, nil)

	a := reg.Get("llm")
	b := reg.Get("llm")
	c := reg.Get("search")
	require.Same(t, a, b)
	require.NotSame(t, a, c)

	trip(a, 2)
	require.Equal(t, StateOpen, b.State())
	require.Equal(t, StateClosed, c.State())
}
