package scheduler

import (
	"container/heap"
	"context"
)

// Priority orders tasks in the queue. Higher values dequeue first; within a
// level, submission order is preserved.
type Priority int

const (
	PriorityBackground Priority = iota
	PriorityLow
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "critical"
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	case PriorityLow:
		return "low"
	case PriorityBackground:
		return "background"
	default:
		return "unknown"
	}
}

// ParsePriority maps a config string to a Priority, defaulting to normal.
func ParsePriority(s string) Priority {
	switch s {
	case "critical":
		return PriorityCritical
	case "high":
		return PriorityHigh
	case "low":
		return PriorityLow
	case "background":
		return PriorityBackground
	default:
		return PriorityNormal
	}
}

// queueItem pairs a task with its handle and queue bookkeeping.
type queueItem struct {
	task   *Task
	handle *Handle
	seq    uint64 // FIFO tiebreaker within a priority level
	index  int
	ctx    context.Context
	cancel context.CancelFunc
}

// taskHeap implements container/heap ordered by (priority desc, seq asc).
type taskHeap []*queueItem

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].task.Priority != h[j].task.Priority {
		return h[i].task.Priority > h[j].task.Priority
	}
	return h[i].seq < h[j].seq
}

func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *taskHeap) Push(x any) {
	item, ok := x.(*queueItem)
	if !ok {
		return
	}
	item.index = len(*h)
	*h = append(*h, item)
}

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[:n-1]
	return item
}

// removeByID removes and returns the pending item with the given task id.
// Caller must hold the scheduler lock.
func (h *taskHeap) removeByID(taskID string) *queueItem {
	for _, item := range *h {
		if item.task.ID == taskID {
			removed, _ := heap.Remove(h, item.index).(*queueItem)
			return removed
		}
	}
	return nil
}
