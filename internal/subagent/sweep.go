package subagent

import (
	"runtime"
	"time"
)

// sweepLoop periodically enforces the task-duration ceiling, evicts terminal
// tasks past the retention window, and samples process health.
func (m *Manager) sweepLoop() {
	ticker := time.NewTicker(m.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopped:
			return
		case <-ticker.C:
			m.sweep(time.Now())
		}
	}
}

func (m *Manager) sweep(now time.Time) {
	m.enforceDeadlines(now)
	m.evictExpired(now)
	m.sampleRuntime()
}

// enforceDeadlines forces tasks that have been RUNNING longer than
// MaxTaskDuration to TIMED_OUT and cancels their execution. A late result
// from the cancelled op is discarded by onDone.
func (m *Manager) enforceDeadlines(now time.Time) {
	m.mu.RLock()
	overdue := make([]*task, 0)
	for _, t := range m.tasks {
		if started, ok := t.runningSince(); ok && now.Sub(started) > m.config.MaxTaskDuration {
			overdue = append(overdue, t)
		}
	}
	m.mu.RUnlock()

	for _, t := range overdue {
		taskErr := &TaskError{
			Code:    "timeout",
			Message: "task exceeded max duration " + m.config.MaxTaskDuration.String(),
		}
		if !t.resolve(StatusTimedOut, nil, taskErr) {
			continue
		}
		m.sched.CancelRunning(t.id)
		m.logger.Warn("Subagent %s exceeded max duration %s, forcing timeout", t.id, m.config.MaxTaskDuration)
		m.finish(t, StatusTimedOut, nil, taskErr)
	}
}

// evictExpired drops terminal tasks whose completion is older than the
// retention window. Status lookups for evicted IDs return NotFoundError.
func (m *Manager) evictExpired(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for taskID, t := range m.tasks {
		if completed, ok := t.terminalSince(); ok && now.Sub(completed) > m.config.RetentionWindow {
			delete(m.tasks, taskID)
			if m.metrics != nil {
				m.metrics.Evicted.Inc()
			}
			m.logger.Debug("Subagent %s evicted after retention window", taskID)
		}
	}
}

func (m *Manager) sampleRuntime() {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	m.logger.Debug("Runtime sample: goroutines=%d heap_alloc=%dMB gc_cycles=%d",
		runtime.NumGoroutine(), stats.HeapAlloc/(1024*1024), stats.NumGC)
}
