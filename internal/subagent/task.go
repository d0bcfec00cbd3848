package subagent

import (
	"context"
	"errors"
	"sync"
	"time"

	ottoerrors "otto/internal/errors"
	"otto/internal/scheduler"
)

// Status is the lifecycle state of a subagent task. Transitions form a DAG:
// PENDING -> RUNNING -> {SUCCEEDED | FAILED | TIMED_OUT}, with CANCELLED
// reachable from PENDING or RUNNING. Terminal states are absorbing.
type Status int

const (
	StatusPending Status = iota
	StatusRunning
	StatusSucceeded
	StatusFailed
	StatusCancelled
	StatusTimedOut
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusRunning:
		return "running"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	case StatusCancelled:
		return "cancelled"
	case StatusTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusCancelled, StatusTimedOut:
		return true
	default:
		return false
	}
}

// TaskError is the structured failure description attached to FAILED and
// TIMED_OUT tasks. It is safe to forward to user-facing channels: never a raw
// stack trace.
type TaskError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *TaskError) Error() string {
	return e.Message
}

// classifyError maps an execution error onto a stable error code.
func classifyError(err error) *TaskError {
	if err == nil {
		return nil
	}
	switch {
	case ottoerrors.IsTimeout(err):
		return &TaskError{Code: "timeout", Message: err.Error()}
	case ottoerrors.IsCircuitOpen(err):
		return &TaskError{Code: "circuit_open", Message: err.Error()}
	case ottoerrors.IsCapacityExceeded(err):
		return &TaskError{Code: "capacity_exceeded", Message: err.Error()}
	case errors.Is(err, context.Canceled):
		return &TaskError{Code: "cancelled", Message: err.Error()}
	default:
		var exhausted *ottoerrors.RetryExhaustedError
		if errors.As(err, &exhausted) {
			return &TaskError{Code: "retry_exhausted", Message: err.Error()}
		}
		return &TaskError{Code: "error", Message: err.Error()}
	}
}

// task is the manager's mutable record for one subagent. Fields are guarded
// by mu; the manager's table lock never extends over task mutation.
type task struct {
	mu sync.Mutex

	id          string
	description string
	priority    scheduler.Priority
	parentID    string

	status          Status
	createdAt       time.Time
	startedAt       time.Time
	completedAt     time.Time
	result          any
	taskErr         *TaskError
	retryCount      int
	cancelRequested bool

	handle *scheduler.Handle
}

// Snapshot is a point-in-time copy of a task's state returned to callers.
type Snapshot struct {
	ID          string
	Description string
	Priority    scheduler.Priority
	ParentID    string
	Status      Status
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	Result      any
	Error       *TaskError
	RetryCount  int
}

func (t *task) snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	snap := Snapshot{
		ID:          t.id,
		Description: t.description,
		Priority:    t.priority,
		ParentID:    t.parentID,
		Status:      t.status,
		CreatedAt:   t.createdAt,
		Result:      t.result,
		Error:       t.taskErr,
		RetryCount:  t.retryCount,
	}
	if !t.startedAt.IsZero() {
		started := t.startedAt
		snap.StartedAt = &started
	}
	if !t.completedAt.IsZero() {
		completed := t.completedAt
		snap.CompletedAt = &completed
	}
	return snap
}

// markRunning records the PENDING -> RUNNING transition on the first attempt
// and counts a retry on each later one. It reports false when the task was
// already driven to a terminal state, telling the worker to abandon it.
func (t *task) markRunning() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.status.IsTerminal() {
		return false
	}
	if t.status == StatusPending {
		t.status = StatusRunning
		t.startedAt = time.Now()
	} else {
		t.retryCount++
	}
	return true
}

// resolve moves the task to a terminal status. It reports false when the task
// already reached one, in which case the new outcome is discarded.
func (t *task) resolve(status Status, result any, taskErr *TaskError) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.status.IsTerminal() {
		return false
	}
	t.status = status
	t.completedAt = time.Now()
	t.result = result
	t.taskErr = taskErr
	return true
}

func (t *task) currentStatus() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

func (t *task) runningSince() (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status != StatusRunning {
		return time.Time{}, false
	}
	return t.startedAt, true
}

func (t *task) terminalSince() (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.status.IsTerminal() {
		return time.Time{}, false
	}
	return t.completedAt, true
}

func (t *task) requestCancel() {
	t.mu.Lock()
	t.cancelRequested = true
	t.mu.Unlock()
}

func (t *task) cancelWasRequested() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelRequested
}
