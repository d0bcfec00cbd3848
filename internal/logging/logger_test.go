package logging

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOrNopResolvesNilToUsableLogger(t *testing.T) {
	logger := OrNop(nil)
	require.NotNil(t, logger)
	// Must not panic.
	logger.Debug("debug %d", 1)
	logger.Info("info")
	logger.Warn("warn")
	logger.Error("error")
}

func TestOrNopKeepsRealLogger(t *testing.T) {
	real := NewComponentLogger("test")
	require.Same(t, real, OrNop(real))
}

func TestIsNil(t *testing.T) {
	require.True(t, IsNil(nil))
	require.False(t, IsNil(Nop()))

	var typedNil Logger = (*fileComponentNil)(nil)
	require.True(t, IsNil(typedNil))
}

// fileComponentNil exists to exercise the typed-nil interface case.
type fileComponentNil struct{}

func (l *fileComponentNil) Debug(string, ...any) {}
func (l *fileComponentNil) Info(string, ...any)  {}
func (l *fileComponentNil) Warn(string, ...any)  {}
func (l *fileComponentNil) Error(string, ...any) {}

func TestParseLevel(t *testing.T) {
	require.Equal(t, DEBUG, ParseLevel("debug"))
	require.Equal(t, INFO, ParseLevel("info"))
	require.Equal(t, WARN, ParseLevel("warn"))
	require.Equal(t, WARN, ParseLevel("WARNING"))
	require.Equal(t, ERROR, ParseLevel("error"))
	require.Equal(t, INFO, ParseLevel(""))
	require.Equal(t, INFO, ParseLevel("bogus"))
}

func TestLogLevelString(t *testing.T) {
	require.Equal(t, "DEBUG", DEBUG.String())
	require.Equal(t, "INFO", INFO.String())
	require.Equal(t, "WARN", WARN.String())
	require.Equal(t, "ERROR", ERROR.String())
}
