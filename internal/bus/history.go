package bus

import (
	"sync"
	"time"
)

const defaultHistorySize = 1000

// historyRing retains the most recent events in a fixed-size ring buffer.
// The bus owns the buffer; stored events are value copies.
type historyRing struct {
	mu     sync.RWMutex
	events []Event
	head   int
	count  int
}

func newHistoryRing(size int) *historyRing {
	if size <= 0 {
		size = defaultHistorySize
	}
	return &historyRing{events: make([]Event, size)}
}

func (r *historyRing) add(event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tail := (r.head + r.count) % len(r.events)
	r.events[tail] = event
	if r.count < len(r.events) {
		r.count++
	} else {
		r.head = (r.head + 1) % len(r.events)
	}
}

// query returns retained events in chronological order, optionally filtered
// by type and lower time bound.
func (r *historyRing) query(eventType string, since time.Time) []Event {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []Event
	for i := 0; i < r.count; i++ {
		event := r.events[(r.head+i)%len(r.events)]
		if eventType != "" && event.Type != eventType {
			continue
		}
		if !since.IsZero() && event.Timestamp.Before(since) {
			continue
		}
		result = append(result, event)
	}
	return result
}

func (r *historyRing) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count
}
