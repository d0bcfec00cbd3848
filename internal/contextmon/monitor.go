package contextmon

import (
	"context"
	"fmt"
	"sync"

	"otto/internal/logging"
	"otto/internal/observability"
)

// TokenCounter measures the token footprint of a piece of text.
type TokenCounter func(text string) int

// Compressor condenses a run of messages into a shorter representation.
// Implementations typically summarize with an LLM; tests inject fakes.
type Compressor interface {
	Compress(ctx context.Context, messages []Message) ([]Message, error)
}

// Hook observes a compression pass. BeforeCompress receives the full window
// and its token count; AfterCompress receives the result and tokens saved.
type Hook func(messages []Message, tokens int)

// Config holds monitor tunables.
type Config struct {
	// MaxTokens is the model context window size (default: 128000).
	MaxTokens int
	// ThresholdPercent of MaxTokens at which compression triggers
	// (default: 0.8).
	ThresholdPercent float64
	// PreserveRecent non-system messages are always kept verbatim
	// (default: 5).
	PreserveRecent int
}

func (c Config) withDefaults() Config {
	if c.MaxTokens <= 0 {
		c.MaxTokens = 128000
	}
	if c.ThresholdPercent <= 0 || c.ThresholdPercent > 1 {
		c.ThresholdPercent = 0.8
	}
	if c.PreserveRecent <= 0 {
		c.PreserveRecent = 5
	}
	return c
}

// Stats are cumulative monitor counters.
type Stats struct {
	TotalChecks           int64
	CompressionsTriggered int64
	MessagesCompressed    int64
	TokensSaved           int64
}

// Monitor watches conversation token usage and compresses the window when it
// crosses the configured threshold. It is safe for concurrent use.
type Monitor struct {
	config     Config
	counter    TokenCounter
	compressor Compressor
	metrics    *observability.ContextMetrics
	logger     logging.Logger

	// BeforeCompress and AfterCompress, when set, observe each triggered
	// compression. They run synchronously on the calling goroutine.
	BeforeCompress Hook
	AfterCompress  Hook

	mu    sync.Mutex
	stats Stats
}

// New builds a Monitor. counter must be non-nil; compressor may be nil, in
// which case threshold breaches are logged but the window passes through.
func New(cfg Config, counter TokenCounter, compressor Compressor, metrics *observability.ContextMetrics, logger logging.Logger) *Monitor {
	return &Monitor{
		config:     cfg.withDefaults(),
		counter:    counter,
		compressor: compressor,
		metrics:    metrics,
		logger:     logging.OrNop(logger),
	}
}

// Threshold returns the token count at which compression triggers.
func (m *Monitor) Threshold() int {
	return int(float64(m.config.MaxTokens) * m.config.ThresholdPercent)
}

// CheckAndCompress measures the window and, above the threshold, compresses
// the older non-system messages. System messages are never dropped and the
// most recent PreserveRecent non-system messages are kept verbatim. Below the
// threshold, or when nothing is left to compress, the input is returned
// unchanged, which makes repeated calls idempotent.
func (m *Monitor) CheckAndCompress(ctx context.Context, messages []Message) ([]Message, error) {
	total := m.countAll(messages)

	m.mu.Lock()
	m.stats.TotalChecks++
	m.mu.Unlock()
	if m.metrics != nil {
		m.metrics.Checks.Inc()
		m.metrics.WindowUsage.Set(float64(total) / float64(m.config.MaxTokens))
	}

	threshold := m.Threshold()
	if total < threshold {
		return messages, nil
	}

	system, summaries, compressible, recent := m.partition(messages)
	if len(compressible) == 0 {
		// Everything above the threshold is protected; nothing to do.
		m.logger.Debug("Context at %d/%d tokens but no compressible messages remain", total, threshold)
		return messages, nil
	}

	if m.compressor == nil {
		m.logger.Warn("Context at %d tokens exceeds threshold %d but no compressor is configured", total, threshold)
		return messages, nil
	}

	if m.BeforeCompress != nil {
		m.BeforeCompress(messages, total)
	}

	m.logger.Info("Context compression triggered: %d tokens (threshold %d), compressing %d messages",
		total, threshold, len(compressible))

	condensed, err := m.compressor.Compress(ctx, compressible)
	if err != nil {
		return messages, fmt.Errorf("context compression: %w", err)
	}
	for i := range condensed {
		condensed[i].Compressed = true
	}

	out := make([]Message, 0, len(system)+len(summaries)+len(condensed)+len(recent))
	out = append(out, system...)
	out = append(out, summaries...)
	out = append(out, condensed...)
	out = append(out, recent...)

	after := m.countAll(out)
	saved := total - after
	if saved < 0 {
		saved = 0
	}

	m.mu.Lock()
	m.stats.CompressionsTriggered++
	m.stats.MessagesCompressed += int64(len(compressible))
	m.stats.TokensSaved += int64(saved)
	m.mu.Unlock()
	if m.metrics != nil {
		m.metrics.Compressions.Inc()
		m.metrics.TokensSaved.Add(float64(saved))
	}

	if m.AfterCompress != nil {
		m.AfterCompress(out, saved)
	}

	m.logger.Info("Context compression done: %d -> %d messages, %d tokens saved",
		len(messages), len(out), saved)
	return out, nil
}

// partition splits the window into system messages, earlier compression
// summaries, the compressible middle, and the protected recent tail.
func (m *Monitor) partition(messages []Message) (system, summaries, compressible, recent []Message) {
	var nonSystem []Message
	for _, msg := range messages {
		if msg.IsSystem() {
			system = append(system, msg)
		} else {
			nonSystem = append(nonSystem, msg)
		}
	}

	keep := m.config.PreserveRecent
	if keep > len(nonSystem) {
		keep = len(nonSystem)
	}
	recent = nonSystem[len(nonSystem)-keep:]

	for _, msg := range nonSystem[:len(nonSystem)-keep] {
		if msg.Compressed {
			summaries = append(summaries, msg)
		} else {
			compressible = append(compressible, msg)
		}
	}
	return system, summaries, compressible, recent
}

func (m *Monitor) countAll(messages []Message) int {
	total := 0
	for _, msg := range messages {
		total += m.counter(msg.Content)
	}
	return total
}

// Stats returns a copy of the cumulative counters.
func (m *Monitor) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// Reset zeroes the cumulative counters.
func (m *Monitor) Reset() {
	m.mu.Lock()
	m.stats = Stats{}
	m.mu.Unlock()
}
