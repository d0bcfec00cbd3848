package config

import "time"

// Config is the full runtime configuration tree. Zero values are filled in
// from defaults by Load.
type Config struct {
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
	// MetricsAddr, when non-empty, enables the prometheus listener.
	MetricsAddr string `yaml:"metrics_addr"`

	Subagent       SubagentConfig       `yaml:"subagent"`
	Scheduler      SchedulerConfig      `yaml:"scheduler"`
	ResourcePool   ResourcePoolConfig   `yaml:"resource_pool"`
	Bus            BusConfig            `yaml:"bus"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
	Retry          RetryConfig          `yaml:"retry"`
	ContextMonitor ContextMonitorConfig `yaml:"context_monitor"`
}

type SubagentConfig struct {
	MaxConcurrentSubagents int           `yaml:"max_concurrent_subagents"`
	MaxTaskDuration        time.Duration `yaml:"max_task_duration"`
	RetentionWindow        time.Duration `yaml:"retention_window"`
	SweepInterval          time.Duration `yaml:"sweep_interval"`
	DefaultTimeout         time.Duration `yaml:"default_timeout"`
}

type SchedulerConfig struct {
	Workers        int           `yaml:"workers"`
	QueueSize      int           `yaml:"queue_size"`
	AcquireTimeout time.Duration `yaml:"acquire_timeout"`
}

type ResourcePoolConfig struct {
	Capacity       int           `yaml:"capacity"`
	AcquireTimeout time.Duration `yaml:"acquire_timeout"`
}

type BusConfig struct {
	HistorySize      int `yaml:"history_size"`
	SubscriberBuffer int `yaml:"subscriber_buffer"`
}

type CircuitBreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	ResetTimeout     time.Duration `yaml:"reset_timeout"`
	HalfOpenMaxCalls int           `yaml:"half_open_max_calls"`
	// TimeoutTripsBreaker counts per-attempt timeouts against the failure
	// threshold. Off by default so slow downstreams do not open the breaker.
	TimeoutTripsBreaker bool `yaml:"timeout_trips_breaker"`
}

type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
	Jitter      bool          `yaml:"jitter"`
}

type ContextMonitorConfig struct {
	MaxTokens        int     `yaml:"max_tokens"`
	ThresholdPercent float64 `yaml:"threshold_percent"`
	PreserveRecent   int     `yaml:"preserve_recent"`
}

// Default returns the configuration used when no file, env, or override
// supplies a value.
func Default() Config {
	return Config{
		LogLevel: "info",
		Subagent: SubagentConfig{
			MaxConcurrentSubagents: 5,
			MaxTaskDuration:        10 * time.Minute,
			RetentionWindow:        30 * time.Minute,
			SweepInterval:          15 * time.Second,
			DefaultTimeout:         5 * time.Minute,
		},
		Scheduler: SchedulerConfig{
			Workers:        8,
			QueueSize:      1024,
			AcquireTimeout: 30 * time.Second,
		},
		ResourcePool: ResourcePoolConfig{
			Capacity:       10,
			AcquireTimeout: 30 * time.Second,
		},
		Bus: BusConfig{
			HistorySize:      1000,
			SubscriberBuffer: 64,
		},
		CircuitBreaker: CircuitBreakerConfig{
			FailureThreshold: 5,
			ResetTimeout:     30 * time.Second,
			HalfOpenMaxCalls: 1,
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   500 * time.Millisecond,
			MaxDelay:    30 * time.Second,
			Jitter:      true,
		},
		ContextMonitor: ContextMonitorConfig{
			MaxTokens:        128000,
			ThresholdPercent: 0.8,
			PreserveRecent:   5,
		},
	}
}
