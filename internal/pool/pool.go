// Package pool provides a generic acquire/release pool for rate-limited
// external resources such as outbound API slots. Capacity is independent of
// worker concurrency: a task may hold a worker without holding a token and
// vice versa.
package pool

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	ottoerrors "otto/internal/errors"
	"otto/internal/logging"

	"golang.org/x/sync/semaphore"
)

// Token proves ownership of one unit of pool capacity. Release it exactly
// once; releasing again is a no-op.
type Token struct {
	pool     *ResourcePool
	released atomic.Bool
}

// ResourcePool bounds concurrent use of a scarce shared resource.
type ResourcePool struct {
	name     string
	capacity int64
	sem      *semaphore.Weighted
	logger   logging.Logger

	mu    sync.Mutex
	inUse int64
}

// New creates a pool with the given capacity. Capacity below 1 is raised to 1.
func New(name string, capacity int, logger logging.Logger) *ResourcePool {
	if capacity < 1 {
		capacity = 1
	}
	return &ResourcePool{
		name:     name,
		capacity: int64(capacity),
		sem:      semaphore.NewWeighted(int64(capacity)),
		logger:   logging.OrNop(logger),
	}
}

// Acquire blocks until capacity is available, the context is cancelled, or
// timeout elapses. Exhaustion past the timeout is a CapacityExceededError,
// surfaced immediately to the caller since retrying cannot help.
func (p *ResourcePool) Acquire(ctx context.Context, timeout time.Duration) (*Token, error) {
	acquireCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		acquireCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if err := p.sem.Acquire(acquireCtx, 1); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		p.logger.Warn("[%s] acquisition timed out after %v", p.name, timeout)
		return nil, &ottoerrors.CapacityExceededError{Pool: p.name, Timeout: timeout}
	}

	p.mu.Lock()
	p.inUse++
	p.mu.Unlock()

	return &Token{pool: p}, nil
}

// TryAcquire grabs capacity without blocking. It returns nil when the pool is
// exhausted.
func (p *ResourcePool) TryAcquire() *Token {
	if !p.sem.TryAcquire(1) {
		return nil
	}
	p.mu.Lock()
	p.inUse++
	p.mu.Unlock()
	return &Token{pool: p}
}

// Release returns the token's capacity to the pool.
func (t *Token) Release() {
	if t == nil || !t.released.CompareAndSwap(false, true) {
		return
	}
	p := t.pool
	p.mu.Lock()
	p.inUse--
	p.mu.Unlock()
	p.sem.Release(1)
}

// Capacity returns the pool's total capacity.
func (p *ResourcePool) Capacity() int {
	return int(p.capacity)
}

// InUse returns the number of tokens currently held.
func (p *ResourcePool) InUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return int(p.inUse)
}
