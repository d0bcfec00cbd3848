package token

import (
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCountTokensNeverNegative(t *testing.T) {
	require.Zero(t, CountTokens(""))
	require.Greater(t, CountTokens("hello world"), 0)
	require.Greater(t, CountTokens(strings.Repeat("token ", 1000)), 100)
}

func TestEstimateFast(t *testing.T) {
	require.Zero(t, EstimateFast(""))
	require.Zero(t, EstimateFast("   "))
	require.Equal(t, 1, EstimateFast("hi"))

	// Long text estimates by runes/4.
	long := strings.Repeat("a", 400)
	require.Equal(t, 100, EstimateFast(long))

	// Many short words estimate by word count.
	words := strings.Repeat("a b ", 50)
	require.Equal(t, 100, EstimateFast(words))
}

func TestCachedCounterServesRepeatsFromCache(t *testing.T) {
	var calls atomic.Int32
	counter, err := NewCachedCounter(8, func(text string) int {
		calls.Add(1)
		return len(text)
	})
	require.NoError(t, err)

	require.Equal(t, 5, counter.Count("hello"))
	require.Equal(t, 5, counter.Count("hello"))
	require.Equal(t, 5, counter.Count("hello"))
	require.Equal(t, int32(1), calls.Load())

	require.Equal(t, 5, counter.Count("world"))
	require.Equal(t, int32(2), calls.Load())
}

func TestCachedCounterEvictsBeyondCapacity(t *testing.T) {
	var calls atomic.Int32
	counter, err := NewCachedCounter(2, func(text string) int {
		calls.Add(1)
		return len(text)
	})
	require.NoError(t, err)

	counter.Count("a")
	counter.Count("b")
	counter.Count("c") // evicts "a"
	counter.Count("a") // recount
	require.Equal(t, int32(4), calls.Load())
}

func TestCachedCounterDefaultsToTiktoken(t *testing.T) {
	counter, err := NewCachedCounter(0, nil)
	require.NoError(t, err)
	require.Greater(t, counter.Count("the quick brown fox"), 0)
}
