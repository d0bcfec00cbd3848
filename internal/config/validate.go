package config

import (
	"fmt"
	"strings"
)

// Validate rejects configurations that would misbehave at runtime rather
// than silently clamping them.
func (c Config) Validate() error {
	var problems []string

	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "", "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("log_level %q is not one of debug/info/warn/error", c.LogLevel))
	}

	if c.Subagent.MaxConcurrentSubagents <= 0 {
		problems = append(problems, "subagent.max_concurrent_subagents must be positive")
	}
	if c.Subagent.MaxTaskDuration <= 0 {
		problems = append(problems, "subagent.max_task_duration must be positive")
	}
	if c.Subagent.RetentionWindow <= 0 {
		problems = append(problems, "subagent.retention_window must be positive")
	}

	if c.Scheduler.Workers <= 0 {
		problems = append(problems, "scheduler.workers must be positive")
	}
	if c.Scheduler.Workers < c.Subagent.MaxConcurrentSubagents {
		problems = append(problems, fmt.Sprintf(
			"scheduler.workers (%d) must be >= subagent.max_concurrent_subagents (%d) or the worker pool becomes the effective bound",
			c.Scheduler.Workers, c.Subagent.MaxConcurrentSubagents))
	}
	if c.Scheduler.QueueSize <= 0 {
		problems = append(problems, "scheduler.queue_size must be positive")
	}

	if c.ResourcePool.Capacity <= 0 {
		problems = append(problems, "resource_pool.capacity must be positive")
	}

	if c.CircuitBreaker.FailureThreshold <= 0 {
		problems = append(problems, "circuit_breaker.failure_threshold must be positive")
	}
	if c.CircuitBreaker.ResetTimeout <= 0 {
		problems = append(problems, "circuit_breaker.reset_timeout must be positive")
	}
	if c.CircuitBreaker.HalfOpenMaxCalls <= 0 {
		problems = append(problems, "circuit_breaker.half_open_max_calls must be positive")
	}

	if c.Retry.MaxAttempts <= 0 {
		problems = append(problems, "retry.max_attempts must be positive")
	}
	if c.Retry.BaseDelay <= 0 {
		problems = append(problems, "retry.base_delay must be positive")
	}
	if c.Retry.MaxDelay < c.Retry.BaseDelay {
		problems = append(problems, "retry.max_delay must be >= retry.base_delay")
	}

	if c.ContextMonitor.MaxTokens <= 0 {
		problems = append(problems, "context_monitor.max_tokens must be positive")
	}
	if c.ContextMonitor.ThresholdPercent <= 0 || c.ContextMonitor.ThresholdPercent > 1 {
		problems = append(problems, "context_monitor.threshold_percent must be in (0, 1]")
	}

	if len(problems) > 0 {
		return fmt.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}
