// Package scheduler executes prioritized tasks on a fixed pool of workers.
// Ordering is strict across priority levels and FIFO within one; execution is
// wrapped in the recovery pipeline (circuit breaker, per-attempt timeout,
// retry with backoff). There is no preemption: a running task is only ever
// stopped through cooperative context cancellation.
package scheduler

import (
	"container/heap"
	"context"
	"fmt"
	"sync"
	"time"

	"otto/internal/async"
	ottoerrors "otto/internal/errors"
	"otto/internal/logging"
	"otto/internal/observability"
	"otto/internal/pool"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Op is a task body. It must honor ctx cancellation at iteration boundaries.
type Op func(ctx context.Context) (any, error)

// Task is one unit of work accepted by Submit.
type Task struct {
	ID       string
	Service  string // circuit breaker key; empty selects "default"
	Priority Priority
	Timeout  time.Duration // per-attempt ceiling; zero uses the recovery default
	Op       Op
	// OnDone, when set, is invoked by the executing worker after the task
	// reaches its outcome, before the handle is completed.
	OnDone func(result any, err error)
}

// Config holds scheduler configuration.
type Config struct {
	Workers   int // worker pool size (default: 4)
	QueueSize int // pending task cap (default: 1024)
	// AcquireTimeout bounds waiting for a resource pool token (default: 30s).
	AcquireTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 1024
	}
	if c.AcquireTimeout <= 0 {
		c.AcquireTimeout = 30 * time.Second
	}
	return c
}

// Stats is a point-in-time view of scheduler health, consumed by monitoring.
type Stats struct {
	QueueDepth    map[Priority]int
	ActiveWorkers int
	Completed     uint64
	Failed        uint64
}

// Scheduler owns the priority queue and worker pool.
type Scheduler struct {
	config   Config
	recovery *ottoerrors.RecoveryManager
	resPool  *pool.ResourcePool // optional quota gate, may be nil
	metrics  *observability.SchedulerMetrics
	logger   logging.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	queue   taskHeap
	seq     uint64
	running map[string]context.CancelFunc
	active  int
	done    uint64
	failed  uint64
	stopped bool

	baseCtx  context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New creates a scheduler and starts its workers. resPool may be nil when
// tasks consume no shared quota; metrics may be nil to disable collection.
func New(cfg Config, recovery *ottoerrors.RecoveryManager, resPool *pool.ResourcePool, metrics *observability.SchedulerMetrics, logger logging.Logger) *Scheduler {
	cfg = cfg.withDefaults()
	baseCtx, cancel := context.WithCancel(context.Background())

	s := &Scheduler{
		config:   cfg,
		recovery: recovery,
		resPool:  resPool,
		metrics:  metrics,
		logger:   logging.OrNop(logger),
		running:  make(map[string]context.CancelFunc),
		baseCtx:  baseCtx,
		cancel:   cancel,
	}
	s.cond = sync.NewCond(&s.mu)

	for i := 0; i < cfg.Workers; i++ {
		s.wg.Add(1)
		worker := i
		async.Go(s.logger, fmt.Sprintf("scheduler-worker-%d", worker), func() {
			defer s.wg.Done()
			s.workerLoop()
		})
	}

	return s
}

// Handle tracks one submitted task to completion.
type Handle struct {
	TaskID string

	once   sync.Once
	doneCh chan struct{}
	result any
	err    error
}

func newHandle(taskID string) *Handle {
	return &Handle{TaskID: taskID, doneCh: make(chan struct{})}
}

// Done is closed once the task has an outcome.
func (h *Handle) Done() <-chan struct{} {
	return h.doneCh
}

// Result returns the task outcome. Valid only after Done is closed.
func (h *Handle) Result() (any, error) {
	return h.result, h.err
}

func (h *Handle) complete(result any, err error) {
	h.once.Do(func() {
		h.result = result
		h.err = err
		close(h.doneCh)
	})
}

// Submit enqueues a task without blocking the caller. It fails when the
// scheduler is stopped or the queue is at capacity.
func (s *Scheduler) Submit(task *Task) (*Handle, error) {
	if task == nil || task.Op == nil {
		return nil, fmt.Errorf("scheduler: task and task.Op are required")
	}
	if task.Service == "" {
		task.Service = "default"
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return nil, fmt.Errorf("scheduler: stopped")
	}
	if s.queue.Len() >= s.config.QueueSize {
		return nil, fmt.Errorf("scheduler: queue full (%d tasks)", s.config.QueueSize)
	}

	handle := newHandle(task.ID)
	s.seq++
	heap.Push(&s.queue, &queueItem{task: task, handle: handle, seq: s.seq})
	if s.metrics != nil {
		s.metrics.QueueDepth.WithLabelValues(task.Priority.String()).Inc()
	}
	s.cond.Signal()
	return handle, nil
}

// Remove drops a still-pending task from the queue. It reports whether the
// task was found; the handle is completed with err.
func (s *Scheduler) Remove(taskID string, err error) bool {
	s.mu.Lock()
	item := s.queue.removeByID(taskID)
	s.mu.Unlock()

	if item == nil {
		return false
	}
	if s.metrics != nil {
		s.metrics.QueueDepth.WithLabelValues(item.task.Priority.String()).Dec()
	}
	item.handle.complete(nil, err)
	return true
}

// CancelRunning requests cooperative cancellation of a running task. It
// reports whether the task was executing.
func (s *Scheduler) CancelRunning(taskID string) bool {
	s.mu.Lock()
	cancel, ok := s.running[taskID]
	s.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// Stats returns current queue and worker counters.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	depth := make(map[Priority]int)
	for _, item := range s.queue {
		depth[item.task.Priority]++
	}
	return Stats{
		QueueDepth:    depth,
		ActiveWorkers: s.active,
		Completed:     s.done,
		Failed:        s.failed,
	}
}

// Close stops accepting work, cancels running tasks, and waits for workers to
// drain. Pending tasks are completed with a stopped error.
func (s *Scheduler) Close() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		pending := make([]*queueItem, len(s.queue))
		copy(pending, s.queue)
		s.queue = nil
		s.cond.Broadcast()
		s.mu.Unlock()

		for _, item := range pending {
			item.handle.complete(nil, fmt.Errorf("scheduler: stopped"))
		}

		s.cancel()
		s.wg.Wait()
		s.logger.Info("scheduler stopped")
	})
}

func (s *Scheduler) workerLoop() {
	for {
		item := s.next()
		if item == nil {
			return
		}
		s.execute(item)
	}
}

// next blocks until a task is available or the scheduler stops.
func (s *Scheduler) next() *queueItem {
	s.mu.Lock()
	defer s.mu.Unlock()

	for !s.stopped && s.queue.Len() == 0 {
		s.cond.Wait()
	}
	if s.stopped {
		return nil
	}

	item, _ := heap.Pop(&s.queue).(*queueItem)
	if s.metrics != nil {
		s.metrics.QueueDepth.WithLabelValues(item.task.Priority.String()).Dec()
	}

	taskCtx, cancel := context.WithCancel(s.baseCtx)
	item.ctx = taskCtx
	item.cancel = cancel
	s.running[item.task.ID] = cancel
	s.active++
	if s.metrics != nil {
		s.metrics.ActiveWorkers.Inc()
	}
	return item
}

func (s *Scheduler) execute(item *queueItem) {
	task := item.task
	started := time.Now()
	defer item.cancel()

	ctx, span := observability.Tracer().Start(item.ctx, "scheduler.execute")
	span.SetAttributes(
		attribute.String("task.id", task.ID),
		attribute.String("task.priority", task.Priority.String()),
		attribute.String("task.service", task.Service),
	)

	var token *pool.Token
	var result any
	var err error

	if s.resPool != nil {
		token, err = s.resPool.Acquire(ctx, s.config.AcquireTimeout)
	}
	if err == nil {
		result, err = ottoerrors.ProtectTimeout(ctx, s.recovery, task.Service, task.Timeout, task.Op)
		token.Release()
	}

	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()

	duration := time.Since(started)

	s.mu.Lock()
	delete(s.running, task.ID)
	s.active--
	if err != nil {
		s.failed++
	} else {
		s.done++
	}
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.ActiveWorkers.Dec()
		s.metrics.TaskDuration.Observe(duration.Seconds())
		if err != nil {
			s.metrics.Failed.Inc()
		} else {
			s.metrics.Completed.Inc()
		}
	}

	if task.OnDone != nil {
		task.OnDone(result, err)
	}
	item.handle.complete(result, err)
}
