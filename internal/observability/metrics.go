// Package observability exposes prometheus collectors and the otel tracer
// used by the orchestration runtime. Collectors take an injectable Registerer
// so tests can run against isolated registries.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Tracer returns the runtime tracer. Without an SDK installed this is a
// no-op tracer, so instrumentation is always safe to call.
func Tracer() trace.Tracer {
	return otel.Tracer("otto/runtime")
}

// SchedulerMetrics tracks scheduler queue and worker health.
type SchedulerMetrics struct {
	QueueDepth    *prometheus.GaugeVec
	ActiveWorkers prometheus.Gauge
	Completed     prometheus.Counter
	Failed        prometheus.Counter
	TaskDuration  prometheus.Histogram
}

// NewSchedulerMetrics registers scheduler collectors on reg. A nil reg uses
// the default registerer.
func NewSchedulerMetrics(reg prometheus.Registerer) *SchedulerMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &SchedulerMetrics{
		QueueDepth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "otto",
			Subsystem: "scheduler",
			Name:      "queue_depth",
			Help:      "Number of tasks waiting per priority level",
		}, []string{"priority"}),
		ActiveWorkers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "otto",
			Subsystem: "scheduler",
			Name:      "active_workers",
			Help:      "Number of workers currently executing a task",
		}),
		Completed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "otto",
			Subsystem: "scheduler",
			Name:      "tasks_completed_total",
			Help:      "Number of tasks that finished successfully",
		}),
		Failed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "otto",
			Subsystem: "scheduler",
			Name:      "tasks_failed_total",
			Help:      "Number of tasks that finished with an error",
		}),
		TaskDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "otto",
			Subsystem: "scheduler",
			Name:      "task_duration_seconds",
			Help:      "Wall-clock task execution time including retries",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
		}),
	}
}

// SubagentMetrics tracks manager lifecycle counts.
type SubagentMetrics struct {
	Running   prometheus.Gauge
	Spawned   prometheus.Counter
	Completed *prometheus.CounterVec
	Evicted   prometheus.Counter
}

// NewSubagentMetrics registers subagent collectors on reg. A nil reg uses the
// default registerer.
func NewSubagentMetrics(reg prometheus.Registerer) *SubagentMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &SubagentMetrics{
		Running: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "otto",
			Subsystem: "subagent",
			Name:      "running",
			Help:      "Number of subagent tasks currently running",
		}),
		Spawned: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "otto",
			Subsystem: "subagent",
			Name:      "spawned_total",
			Help:      "Number of subagent tasks accepted by Spawn",
		}),
		Completed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "otto",
			Subsystem: "subagent",
			Name:      "terminal_total",
			Help:      "Number of subagent tasks reaching a terminal status",
		}, []string{"status"}),
		Evicted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "otto",
			Subsystem: "subagent",
			Name:      "evicted_total",
			Help:      "Number of terminal tasks removed by the retention sweep",
		}),
	}
}

// ContextMetrics tracks context window pressure and compression activity.
type ContextMetrics struct {
	Checks       prometheus.Counter
	Compressions prometheus.Counter
	TokensSaved  prometheus.Counter
	WindowUsage  prometheus.Gauge
}

// NewContextMetrics registers context collectors on reg. A nil reg uses the
// default registerer.
func NewContextMetrics(reg prometheus.Registerer) *ContextMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &ContextMetrics{
		Checks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "otto",
			Subsystem: "context",
			Name:      "checks_total",
			Help:      "Number of context window checks performed",
		}),
		Compressions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "otto",
			Subsystem: "context",
			Name:      "compressions_total",
			Help:      "Number of compressions triggered by the token threshold",
		}),
		TokensSaved: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "otto",
			Subsystem: "context",
			Name:      "tokens_saved_total",
			Help:      "Tokens reclaimed across all compressions",
		}),
		WindowUsage: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "otto",
			Subsystem: "context",
			Name:      "window_usage_ratio",
			Help:      "Token usage observed at the last check, as a fraction of the window",
		}),
	}
}
