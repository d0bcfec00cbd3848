package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func noEnv(string) (string, bool) { return "", false }

func envFrom(vars map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(WithEnvLookup(noEnv))
	require.NoError(t, err)

	require.Equal(t, "info", cfg.LogLevel)
	require.Equal(t, 5, cfg.Subagent.MaxConcurrentSubagents)
	require.Equal(t, 10*time.Minute, cfg.Subagent.MaxTaskDuration)
	require.Equal(t, 30*time.Minute, cfg.Subagent.RetentionWindow)
	require.Equal(t, 8, cfg.Scheduler.Workers)
	require.Equal(t, 5, cfg.CircuitBreaker.FailureThreshold)
	require.False(t, cfg.CircuitBreaker.TimeoutTripsBreaker)
	require.Equal(t, 3, cfg.Retry.MaxAttempts)
	require.True(t, cfg.Retry.Jitter)
	require.Equal(t, 128000, cfg.ContextMonitor.MaxTokens)
	require.InDelta(t, 0.8, cfg.ContextMonitor.ThresholdPercent, 1e-9)
}

func TestLoadFromYAMLFile(t *testing.T) {
	yamlDoc := []byte(`
log_level: debug
subagent:
  max_concurrent_subagents: 12
  max_task_duration: 3m
circuit_breaker:
  failure_threshold: 9
  reset_timeout: 45s
retry:
  max_attempts: 7
context_monitor:
  max_tokens: 64000
  threshold_percent: 0.6
`)

	cfg, err := Load(
		WithPath("otto.yaml"),
		WithEnvLookup(noEnv),
		WithReadFile(func(path string) ([]byte, error) {
			require.Equal(t, "otto.yaml", path)
			return yamlDoc, nil
		}),
		WithOverride(func(c *Config) {
			// Workers must cover the raised subagent bound.
			c.Scheduler.Workers = 16
		}),
	)
	require.NoError(t, err)

	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, 12, cfg.Subagent.MaxConcurrentSubagents)
	require.Equal(t, 3*time.Minute, cfg.Subagent.MaxTaskDuration)
	require.Equal(t, 9, cfg.CircuitBreaker.FailureThreshold)
	require.Equal(t, 45*time.Second, cfg.CircuitBreaker.ResetTimeout)
	require.Equal(t, 7, cfg.Retry.MaxAttempts)
	require.Equal(t, 64000, cfg.ContextMonitor.MaxTokens)

	// Values absent from the file keep their defaults.
	require.Equal(t, 30*time.Minute, cfg.Subagent.RetentionWindow)
}

func TestLoadMissingFileIsNotAnError(t *testing.T) {
	_, err := Load(
		WithPath("nope.yaml"),
		WithEnvLookup(noEnv),
		WithReadFile(func(string) ([]byte, error) { return nil, os.ErrNotExist }),
	)
	require.NoError(t, err)
}

func TestLoadMalformedFileFails(t *testing.T) {
	_, err := Load(
		WithPath("bad.yaml"),
		WithEnvLookup(noEnv),
		WithReadFile(func(string) ([]byte, error) { return []byte("{not yaml"), nil }),
	)
	require.Error(t, err)
}

func TestEnvOverridesFileAndDefaults(t *testing.T) {
	cfg, err := Load(WithEnvLookup(envFrom(map[string]string{
		"OTTO_LOG_LEVEL":                "warn",
		"OTTO_MAX_CONCURRENT_SUBAGENTS": "3",
		"OTTO_MAX_TASK_DURATION":        "90s",
		"OTTO_RETRY_MAX_ATTEMPTS":       "5",
		"OTTO_RETRY_JITTER":             "false",
		"OTTO_CONTEXT_THRESHOLD_PERCENT": "0.65",
		"OTTO_CIRCUIT_TIMEOUT_TRIPS_BREAKER": "true",
	})))
	require.NoError(t, err)

	require.Equal(t, "warn", cfg.LogLevel)
	require.Equal(t, 3, cfg.Subagent.MaxConcurrentSubagents)
	require.Equal(t, 90*time.Second, cfg.Subagent.MaxTaskDuration)
	require.Equal(t, 5, cfg.Retry.MaxAttempts)
	require.False(t, cfg.Retry.Jitter)
	require.InDelta(t, 0.65, cfg.ContextMonitor.ThresholdPercent, 1e-9)
	require.True(t, cfg.CircuitBreaker.TimeoutTripsBreaker)
}

func TestEnvWithInvalidValueFails(t *testing.T) {
	_, err := Load(WithEnvLookup(envFrom(map[string]string{
		"OTTO_RETRY_MAX_ATTEMPTS": "many",
	})))
	require.Error(t, err)

	_, err = Load(WithEnvLookup(envFrom(map[string]string{
		"OTTO_MAX_TASK_DURATION": "soon",
	})))
	require.Error(t, err)
}

func TestCallerOverrideWinsOverEnv(t *testing.T) {
	cfg, err := Load(
		WithEnvLookup(envFrom(map[string]string{"OTTO_LOG_LEVEL": "warn"})),
		WithOverride(func(c *Config) { c.LogLevel = "error" }),
	)
	require.NoError(t, err)
	require.Equal(t, "error", cfg.LogLevel)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero subagent bound", func(c *Config) { c.Subagent.MaxConcurrentSubagents = 0 }},
		{"negative task duration", func(c *Config) { c.Subagent.MaxTaskDuration = -time.Second }},
		{"zero workers", func(c *Config) { c.Scheduler.Workers = 0 }},
		{"workers below bound", func(c *Config) { c.Scheduler.Workers = 2; c.Subagent.MaxConcurrentSubagents = 5 }},
		{"zero failure threshold", func(c *Config) { c.CircuitBreaker.FailureThreshold = 0 }},
		{"max delay below base", func(c *Config) { c.Retry.BaseDelay = time.Second; c.Retry.MaxDelay = time.Millisecond }},
		{"threshold above one", func(c *Config) { c.ContextMonitor.ThresholdPercent = 1.5 }},
		{"bogus log level", func(c *Config) { c.LogLevel = "loud" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}
