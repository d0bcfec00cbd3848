package subagent

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"otto/internal/async"
	"otto/internal/bus"
	ottoerrors "otto/internal/errors"
	"otto/internal/id"
	"otto/internal/logging"
	"otto/internal/observability"
	"otto/internal/scheduler"
)

// Op is the work a subagent performs. It must honour ctx cancellation; the
// manager has no way to stop an op that ignores its context.
type Op func(ctx context.Context) (any, error)

// Config holds manager tunables.
type Config struct {
	// MaxConcurrentSubagents bounds simultaneously executing ops (default: 5).
	MaxConcurrentSubagents int
	// MaxTaskDuration is the wall-clock ceiling for a RUNNING task before the
	// sweep forces it to TIMED_OUT (default: 10m).
	MaxTaskDuration time.Duration
	// RetentionWindow is how long terminal tasks stay queryable (default: 30m).
	RetentionWindow time.Duration
	// SweepInterval is how often the background sweep runs (default: 15s).
	SweepInterval time.Duration
	// DefaultTimeout is the per-attempt timeout applied when Spawn gets none.
	DefaultTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxConcurrentSubagents <= 0 {
		c.MaxConcurrentSubagents = 5
	}
	if c.MaxTaskDuration <= 0 {
		c.MaxTaskDuration = 10 * time.Minute
	}
	if c.RetentionWindow <= 0 {
		c.RetentionWindow = 30 * time.Minute
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = 15 * time.Second
	}
	if c.DefaultTimeout <= 0 {
		c.DefaultTimeout = 5 * time.Minute
	}
	return c
}

// SpawnRequest describes one subagent to launch.
type SpawnRequest struct {
	Description string
	Priority    scheduler.Priority
	Timeout     time.Duration // per-attempt; zero uses Config.DefaultTimeout
	ParentID    string        // optional; links a child to the task that spawned it
	Op          Op
}

// Manager tracks subagent tasks through their lifecycle, bounds their
// concurrency, and publishes lifecycle events on the bus.
type Manager struct {
	config  Config
	sched   *scheduler.Scheduler
	bus     *bus.Bus
	metrics *observability.SubagentMetrics
	logger  logging.Logger
	sem     *semaphore.Weighted

	mu    sync.RWMutex
	tasks map[string]*task

	completions chan string
	stopped     chan struct{}
	stopOnce    sync.Once
}

// New builds a Manager on top of an already-running scheduler. The scheduler
// and bus are owned by the caller; Close stops only the manager's own work.
func New(cfg Config, sched *scheduler.Scheduler, eventBus *bus.Bus, metrics *observability.SubagentMetrics, logger logging.Logger) *Manager {
	cfg = cfg.withDefaults()
	m := &Manager{
		config:      cfg,
		sched:       sched,
		bus:         eventBus,
		metrics:     metrics,
		logger:      logging.OrNop(logger),
		sem:         semaphore.NewWeighted(int64(cfg.MaxConcurrentSubagents)),
		tasks:       make(map[string]*task),
		completions: make(chan string, 64),
		stopped:     make(chan struct{}),
	}
	async.Go(m.logger, "subagent-sweep", m.sweepLoop)
	return m
}

// Spawn registers a new subagent and submits it for execution. The returned
// task ID is immediately queryable via Status; the task starts PENDING.
func (m *Manager) Spawn(ctx context.Context, req SpawnRequest) (string, error) {
	if req.Op == nil {
		return "", errors.New("subagent: nil op")
	}

	select {
	case <-m.stopped:
		return "", errors.New("subagent: manager is closed")
	default:
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = m.config.DefaultTimeout
	}

	t := &task{
		id:          id.NewTaskID(),
		description: req.Description,
		priority:    req.Priority,
		parentID:    req.ParentID,
		status:      StatusPending,
		createdAt:   time.Now(),
	}

	m.mu.Lock()
	m.tasks[t.id] = t
	m.mu.Unlock()

	handle, err := m.sched.Submit(&scheduler.Task{
		ID:       t.id,
		Service:  "subagent",
		Priority: req.Priority,
		Timeout:  timeout,
		Op:       m.wrap(t, req.Op),
		OnDone:   func(result any, err error) { m.onDone(t, result, err) },
	})
	if err != nil {
		m.mu.Lock()
		delete(m.tasks, t.id)
		m.mu.Unlock()
		return "", fmt.Errorf("subagent: submit %s: %w", t.id, err)
	}

	t.mu.Lock()
	t.handle = handle
	t.mu.Unlock()

	if m.metrics != nil {
		m.metrics.Spawned.Inc()
	}
	m.publish(EventCreated, t, nil, nil)
	m.logger.Info("Subagent spawned: id=%s priority=%s desc=%q", t.id, req.Priority, req.Description)
	return t.id, nil
}

// wrap bounds op execution with the concurrency semaphore and records the
// RUNNING transition. Each retry attempt re-acquires a slot, so a task waiting
// out a backoff holds none.
func (m *Manager) wrap(t *task, op Op) scheduler.Op {
	return func(ctx context.Context) (any, error) {
		if err := m.sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		defer m.sem.Release(1)

		if !t.markRunning() {
			// Cancelled or timed out before this attempt got a slot.
			return nil, context.Canceled
		}
		if m.metrics != nil {
			m.metrics.Running.Inc()
			defer m.metrics.Running.Dec()
		}
		return op(ctx)
	}
}

// onDone resolves the task's terminal state from the execution outcome. A
// task the sweep already timed out, or that Cancel already resolved, keeps
// its state and the late outcome is discarded.
func (m *Manager) onDone(t *task, result any, err error) {
	var status Status
	var taskErr *TaskError

	switch {
	case err == nil:
		status = StatusSucceeded
	case errors.Is(err, context.Canceled), t.cancelWasRequested():
		status = StatusCancelled
	case ottoerrors.IsTimeout(err):
		status = StatusTimedOut
		taskErr = classifyError(err)
	default:
		status = StatusFailed
		taskErr = classifyError(err)
	}

	if !t.resolve(status, result, taskErr) {
		m.logger.Debug("Subagent %s finished after terminal state, outcome discarded", t.id)
		return
	}
	m.finish(t, status, result, taskErr)
}

// finish publishes the terminal event and completion notification for a task
// resolved to status. Callers must have won the resolve transition.
func (m *Manager) finish(t *task, status Status, result any, taskErr *TaskError) {
	if m.metrics != nil {
		m.metrics.Completed.WithLabelValues(status.String()).Inc()
	}
	switch status {
	case StatusSucceeded:
		m.publish(EventCompleted, t, result, nil)
	case StatusCancelled:
		m.publish(EventCancelled, t, nil, nil)
	default:
		m.publish(EventFailed, t, nil, taskErr)
	}

	select {
	case m.completions <- t.id:
	default:
		// Nobody draining; completion notifications are best-effort.
	}
	m.logger.Info("Subagent finished: id=%s status=%s", t.id, status)
}

// Status returns a snapshot of the task, or NotFoundError once it has been
// evicted (or never existed).
func (m *Manager) Status(taskID string) (Snapshot, error) {
	m.mu.RLock()
	t, ok := m.tasks[taskID]
	m.mu.RUnlock()
	if !ok {
		return Snapshot{}, &ottoerrors.NotFoundError{Kind: "task", ID: taskID}
	}
	return t.snapshot(), nil
}

// List returns snapshots of all tracked tasks, newest first.
func (m *Manager) List() []Snapshot {
	m.mu.RLock()
	snaps := make([]Snapshot, 0, len(m.tasks))
	for _, t := range m.tasks {
		snaps = append(snaps, t.snapshot())
	}
	m.mu.RUnlock()

	sort.Slice(snaps, func(i, j int) bool {
		return snaps[i].CreatedAt.After(snaps[j].CreatedAt)
	})
	return snaps
}

// Cancel requests cancellation of a task. PENDING tasks are dropped from the
// queue and resolve immediately; RUNNING tasks are cancelled cooperatively
// through their context. Cancelling a terminal task is a no-op.
func (m *Manager) Cancel(taskID string) error {
	m.mu.RLock()
	t, ok := m.tasks[taskID]
	m.mu.RUnlock()
	if !ok {
		return &ottoerrors.NotFoundError{Kind: "task", ID: taskID}
	}
	if t.currentStatus().IsTerminal() {
		return nil
	}

	t.requestCancel()

	if m.sched.Remove(taskID, context.Canceled) {
		// Never started; resolve here rather than waiting on OnDone ordering.
		if t.resolve(StatusCancelled, nil, nil) {
			m.finish(t, StatusCancelled, nil, nil)
		}
		return nil
	}

	// Running (or between attempts): cancel the task context and let the
	// worker's OnDone record the CANCELLED state.
	m.sched.CancelRunning(taskID)
	m.logger.Info("Subagent cancel requested: id=%s", taskID)
	return nil
}

// Await blocks until the task reaches a terminal state or the timeout
// elapses, then returns its final snapshot.
func (m *Manager) Await(ctx context.Context, taskID string, timeout time.Duration) (Snapshot, error) {
	m.mu.RLock()
	t, ok := m.tasks[taskID]
	m.mu.RUnlock()
	if !ok {
		return Snapshot{}, &ottoerrors.NotFoundError{Kind: "task", ID: taskID}
	}

	t.mu.Lock()
	handle := t.handle
	t.mu.Unlock()
	if handle == nil {
		return Snapshot{}, fmt.Errorf("subagent: task %s has no execution handle", taskID)
	}

	var timer <-chan time.Time
	if timeout > 0 {
		tm := time.NewTimer(timeout)
		defer tm.Stop()
		timer = tm.C
	}

	select {
	case <-handle.Done():
		return t.snapshot(), nil
	case <-timer:
		return t.snapshot(), &ottoerrors.TimeoutError{Operation: "await " + taskID, Timeout: timeout}
	case <-ctx.Done():
		return t.snapshot(), ctx.Err()
	}
}

// Completions exposes best-effort notifications of finished task IDs.
func (m *Manager) Completions() <-chan string {
	return m.completions
}

// ActiveCount returns how many tracked tasks are not yet terminal.
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, t := range m.tasks {
		if !t.currentStatus().IsTerminal() {
			n++
		}
	}
	return n
}

// Close stops the background sweep. In-flight tasks keep running on the
// scheduler; the caller decides when to close that.
func (m *Manager) Close() {
	m.stopOnce.Do(func() {
		close(m.stopped)
	})
}

func (m *Manager) publish(eventType string, t *task, result any, taskErr *TaskError) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(bus.Event{
		Type:   eventType,
		Source: "subagent-manager",
		Payload: EventPayload{
			TaskID:      t.id,
			Description: t.description,
			Status:      t.currentStatus().String(),
			Result:      result,
			Error:       taskErr,
		},
	})
}
