package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type loadOptions struct {
	path      string
	envLookup func(string) (string, bool)
	readFile  func(string) ([]byte, error)
	overrides []func(*Config)
}

// Option customizes Load. The injectable env lookup and file reader keep
// tests hermetic.
type Option func(*loadOptions)

// WithPath points Load at a YAML config file. A missing file is not an
// error; a malformed one is.
func WithPath(path string) Option {
	return func(o *loadOptions) { o.path = path }
}

// WithEnvLookup replaces os.LookupEnv.
func WithEnvLookup(lookup func(string) (string, bool)) Option {
	return func(o *loadOptions) { o.envLookup = lookup }
}

// WithReadFile replaces os.ReadFile.
func WithReadFile(read func(string) ([]byte, error)) Option {
	return func(o *loadOptions) { o.readFile = read }
}

// WithOverride applies a caller mutation after file and env values.
func WithOverride(fn func(*Config)) Option {
	return func(o *loadOptions) { o.overrides = append(o.overrides, fn) }
}

// Load builds the runtime config: defaults, then file values, then OTTO_*
// environment overrides, then caller overrides, then validation.
func Load(opts ...Option) (Config, error) {
	options := loadOptions{
		envLookup: os.LookupEnv,
		readFile:  os.ReadFile,
	}
	for _, opt := range opts {
		opt(&options)
	}

	cfg := Default()

	if options.path != "" {
		if err := applyFile(&cfg, options); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnv(&cfg, options.envLookup); err != nil {
		return Config{}, err
	}
	for _, override := range options.overrides {
		override(&cfg)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyFile(cfg *Config, options loadOptions) error {
	data, err := options.readFile(options.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", options.path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("config: parse %s: %w", options.path, err)
	}
	return nil
}

// applyEnv maps OTTO_* variables onto config fields. Durations accept any
// time.ParseDuration form.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	var firstErr error

	setInt := func(key string, dst *int) {
		if raw, ok := lookup(key); ok {
			v, err := strconv.Atoi(strings.TrimSpace(raw))
			if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("config: %s: %w", key, err)
				return
			}
			*dst = v
		}
	}
	setDuration := func(key string, dst *time.Duration) {
		if raw, ok := lookup(key); ok {
			v, err := time.ParseDuration(strings.TrimSpace(raw))
			if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("config: %s: %w", key, err)
				return
			}
			*dst = v
		}
	}
	setFloat := func(key string, dst *float64) {
		if raw, ok := lookup(key); ok {
			v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
			if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("config: %s: %w", key, err)
				return
			}
			*dst = v
		}
	}
	setBool := func(key string, dst *bool) {
		if raw, ok := lookup(key); ok {
			v, err := strconv.ParseBool(strings.TrimSpace(raw))
			if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("config: %s: %w", key, err)
				return
			}
			*dst = v
		}
	}
	setString := func(key string, dst *string) {
		if raw, ok := lookup(key); ok {
			*dst = strings.TrimSpace(raw)
		}
	}

	setString("OTTO_LOG_LEVEL", &cfg.LogLevel)
	setString("OTTO_METRICS_ADDR", &cfg.MetricsAddr)

	setInt("OTTO_MAX_CONCURRENT_SUBAGENTS", &cfg.Subagent.MaxConcurrentSubagents)
	setDuration("OTTO_MAX_TASK_DURATION", &cfg.Subagent.MaxTaskDuration)
	setDuration("OTTO_RETENTION_WINDOW", &cfg.Subagent.RetentionWindow)
	setDuration("OTTO_SWEEP_INTERVAL", &cfg.Subagent.SweepInterval)

	setInt("OTTO_SCHEDULER_WORKERS", &cfg.Scheduler.Workers)
	setInt("OTTO_SCHEDULER_QUEUE_SIZE", &cfg.Scheduler.QueueSize)

	setInt("OTTO_RESOURCE_POOL_CAPACITY", &cfg.ResourcePool.Capacity)
	setDuration("OTTO_RESOURCE_POOL_ACQUIRE_TIMEOUT", &cfg.ResourcePool.AcquireTimeout)

	setInt("OTTO_CIRCUIT_FAILURE_THRESHOLD", &cfg.CircuitBreaker.FailureThreshold)
	setDuration("OTTO_CIRCUIT_RESET_TIMEOUT", &cfg.CircuitBreaker.ResetTimeout)
	setInt("OTTO_CIRCUIT_HALF_OPEN_MAX_CALLS", &cfg.CircuitBreaker.HalfOpenMaxCalls)
	setBool("OTTO_CIRCUIT_TIMEOUT_TRIPS_BREAKER", &cfg.CircuitBreaker.TimeoutTripsBreaker)

	setInt("OTTO_RETRY_MAX_ATTEMPTS", &cfg.Retry.MaxAttempts)
	setDuration("OTTO_RETRY_BASE_DELAY", &cfg.Retry.BaseDelay)
	setDuration("OTTO_RETRY_MAX_DELAY", &cfg.Retry.MaxDelay)
	setBool("OTTO_RETRY_JITTER", &cfg.Retry.Jitter)

	setInt("OTTO_CONTEXT_MAX_TOKENS", &cfg.ContextMonitor.MaxTokens)
	setFloat("OTTO_CONTEXT_THRESHOLD_PERCENT", &cfg.ContextMonitor.ThresholdPercent)
	setInt("OTTO_CONTEXT_PRESERVE_RECENT", &cfg.ContextMonitor.PreserveRecent)

	return firstErr
}
