package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"otto/internal/async"
	"otto/internal/bus"
	"otto/internal/config"
	"otto/internal/contextmon"
	ottoerrors "otto/internal/errors"
	"otto/internal/logging"
	"otto/internal/observability"
	"otto/internal/pool"
	"otto/internal/scheduler"
	"otto/internal/subagent"
	"otto/internal/token"
)

func newRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the orchestration runtime",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return runRuntime(cmd.Context(), cfg)
		},
	}
	cmd.Flags().String("metrics-addr", "", "Listen address for /metrics (empty disables)")
	_ = viper.BindPFlag("metrics_addr", cmd.Flags().Lookup("metrics-addr"))
	return cmd
}

func loadConfig() (config.Config, error) {
	opts := []config.Option{}
	if path := viper.GetString("config"); path != "" {
		opts = append(opts, config.WithPath(path))
	}
	opts = append(opts, config.WithOverride(func(c *config.Config) {
		if level := viper.GetString("log_level"); level != "" {
			c.LogLevel = level
		}
		if addr := viper.GetString("metrics_addr"); addr != "" {
			c.MetricsAddr = addr
		}
	}))
	return config.Load(opts...)
}

// runRuntime wires the full component graph and blocks until the context is
// cancelled or a termination signal arrives.
func runRuntime(ctx context.Context, cfg config.Config) error {
	logging.SetLevel(logging.ParseLevel(cfg.LogLevel))
	logger := logging.NewComponentLogger("runtime")

	registry := prometheus.NewRegistry()
	schedMetrics := observability.NewSchedulerMetrics(registry)
	agentMetrics := observability.NewSubagentMetrics(registry)
	contextMetrics := observability.NewContextMetrics(registry)

	eventBus := bus.New(cfg.Bus.HistorySize, logging.NewComponentLogger("bus"))
	defer eventBus.Close()

	recovery := ottoerrors.NewRecoveryManager(ottoerrors.RecoveryConfig{
		Retry: ottoerrors.RetryConfig{
			MaxAttempts: cfg.Retry.MaxAttempts,
			BaseDelay:   cfg.Retry.BaseDelay,
			MaxDelay:    cfg.Retry.MaxDelay,
			Jitter:      cfg.Retry.Jitter,
		},
		Breaker: ottoerrors.CircuitBreakerConfig{
			FailureThreshold: cfg.CircuitBreaker.FailureThreshold,
			ResetTimeout:     cfg.CircuitBreaker.ResetTimeout,
			HalfOpenMaxCalls: cfg.CircuitBreaker.HalfOpenMaxCalls,
		},
		TimeoutTripsBreaker: cfg.CircuitBreaker.TimeoutTripsBreaker,
	}, logging.NewComponentLogger("recovery"))

	apiPool := pool.New("api", cfg.ResourcePool.Capacity, logging.NewComponentLogger("pool"))

	sched := scheduler.New(scheduler.Config{
		Workers:        cfg.Scheduler.Workers,
		QueueSize:      cfg.Scheduler.QueueSize,
		AcquireTimeout: cfg.ResourcePool.AcquireTimeout,
	}, recovery, apiPool, schedMetrics, logging.NewComponentLogger("scheduler"))
	defer sched.Close()

	manager := subagent.New(subagent.Config{
		MaxConcurrentSubagents: cfg.Subagent.MaxConcurrentSubagents,
		MaxTaskDuration:        cfg.Subagent.MaxTaskDuration,
		RetentionWindow:        cfg.Subagent.RetentionWindow,
		SweepInterval:          cfg.Subagent.SweepInterval,
		DefaultTimeout:         cfg.Subagent.DefaultTimeout,
	}, sched, eventBus, agentMetrics, logging.NewComponentLogger("subagent"))
	defer manager.Close()

	counter, err := token.NewCachedCounter(4096, token.CountTokens)
	if err != nil {
		return fmt.Errorf("token counter: %w", err)
	}
	monitor := contextmon.New(contextmon.Config{
		MaxTokens:        cfg.ContextMonitor.MaxTokens,
		ThresholdPercent: cfg.ContextMonitor.ThresholdPercent,
		PreserveRecent:   cfg.ContextMonitor.PreserveRecent,
	}, counter.Count, &contextmon.DigestCompressor{}, contextMetrics, logging.NewComponentLogger("context"))

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		metricsServer = &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
		async.Go(logger, "metrics-listener", func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Metrics listener failed: %v", err)
			}
		})
		logger.Info("Metrics listening on %s", cfg.MetricsAddr)
	}

	logger.Info("Runtime started: workers=%d max_concurrent_subagents=%d context_threshold=%d tokens",
		cfg.Scheduler.Workers, cfg.Subagent.MaxConcurrentSubagents, monitor.Threshold())

	<-ctx.Done()
	logger.Info("Shutdown signal received, draining")

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}
	return nil
}
