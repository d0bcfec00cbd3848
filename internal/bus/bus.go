// Package bus implements the in-process publish/subscribe hub that decouples
// runtime services from one another. Publishers never learn who is listening;
// a misbehaving handler never reaches the publisher.
package bus

import (
	"sync"
	"time"

	"otto/internal/async"
	"otto/internal/id"
	"otto/internal/logging"
)

// Event is an immutable notification published on the bus.
type Event struct {
	Type      string
	Payload   any
	Timestamp time.Time
	Source    string
}

// Handler consumes events delivered to a subscription.
type Handler func(Event)

// Filter further restricts which events of a subscribed type are delivered.
type Filter func(Event) bool

const defaultSubscriberBuffer = 64

// subscription owns a buffered channel and a dispatch goroutine so one slow
// or panicking handler cannot stall the publisher or other subscribers.
type subscription struct {
	id        string
	eventType string
	handler   Handler
	filter    Filter
	ch        chan Event
	done      chan struct{}
}

// Option configures a subscription.
type Option func(*subscription)

// WithFilter delivers only events for which fn returns true.
func WithFilter(fn Filter) Option {
	return func(s *subscription) { s.filter = fn }
}

// WithBuffer overrides the subscription's channel buffer size.
func WithBuffer(n int) Option {
	return func(s *subscription) {
		if n > 0 {
			s.ch = make(chan Event, n)
		}
	}
}

// Bus is the in-process event hub. The zero value is not usable; construct
// with New.
type Bus struct {
	logger  logging.Logger
	history *historyRing

	mu     sync.RWMutex
	subs   map[string]map[string]*subscription // event type -> sub id -> sub
	byID   map[string]*subscription
	closed bool
	wg     sync.WaitGroup
}

// New creates a bus retaining the last historySize events for diagnostics.
// historySize <= 0 selects the default of 1000.
func New(historySize int, logger logging.Logger) *Bus {
	return &Bus{
		logger:  logging.OrNop(logger),
		history: newHistoryRing(historySize),
		subs:    make(map[string]map[string]*subscription),
		byID:    make(map[string]*subscription),
	}
}

// Subscribe registers handler for every published event of eventType and
// returns a subscription id usable with Unsubscribe. A handler registered
// after an event was published never sees that past event.
func (b *Bus) Subscribe(eventType string, handler Handler, opts ...Option) string {
	sub := &subscription{
		id:        id.NewSubscriptionID(),
		eventType: eventType,
		handler:   handler,
		ch:        make(chan Event, defaultSubscriberBuffer),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(sub)
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return sub.id
	}
	if _, ok := b.subs[eventType]; !ok {
		b.subs[eventType] = make(map[string]*subscription)
	}
	b.subs[eventType][sub.id] = sub
	b.byID[sub.id] = sub
	b.wg.Add(1)
	b.mu.Unlock()

	async.Go(b.logger, "bus-dispatch:"+eventType, func() {
		defer b.wg.Done()
		b.dispatchLoop(sub)
	})

	return sub.id
}

// Unsubscribe removes a subscription. Unknown ids are ignored.
func (b *Bus) Unsubscribe(subID string) {
	b.mu.Lock()
	sub, ok := b.byID[subID]
	if ok {
		delete(b.byID, subID)
		delete(b.subs[sub.eventType], subID)
		if len(b.subs[sub.eventType]) == 0 {
			delete(b.subs, sub.eventType)
		}
	}
	b.mu.Unlock()

	if ok {
		close(sub.done)
	}
}

// Publish delivers event to every matching subscriber asynchronously. The
// event's timestamp is stamped here if unset. Publishers retain no obligation
// after Publish returns.
func (b *Bus) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	targets := make([]*subscription, 0, len(b.subs[event.Type]))
	for _, sub := range b.subs[event.Type] {
		targets = append(targets, sub)
	}
	b.mu.RUnlock()

	b.history.add(event)

	for _, sub := range targets {
		select {
		case sub.ch <- event:
		default:
			b.logger.Warn("subscriber %s buffer full, dropping %s event", sub.id, event.Type)
		}
	}
}

// dispatchLoop delivers events to one subscriber in publish order. A handler
// panic is recovered and logged without disturbing other subscribers.
func (b *Bus) dispatchLoop(sub *subscription) {
	for {
		select {
		case <-sub.done:
			return
		case event := <-sub.ch:
			if sub.filter != nil && !sub.filter(event) {
				continue
			}
			b.invoke(sub, event)
		}
	}
}

func (b *Bus) invoke(sub *subscription, event Event) {
	defer async.Recover(b.logger, "bus-handler:"+sub.eventType)
	sub.handler(event)
}

// History returns retained events of eventType published at or after since.
// An empty eventType matches all types; a zero since matches all times.
// Diagnostics only, never a replay mechanism.
func (b *Bus) History(eventType string, since time.Time) []Event {
	return b.history.query(eventType, since)
}

// HistoryLen returns the number of retained events.
func (b *Bus) HistoryLen() int {
	return b.history.len()
}

// Close stops delivery and releases all subscriptions. Publish becomes a
// no-op afterwards.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := make([]*subscription, 0, len(b.byID))
	for _, sub := range b.byID {
		subs = append(subs, sub)
	}
	b.subs = make(map[string]map[string]*subscription)
	b.byID = make(map[string]*subscription)
	b.mu.Unlock()

	for _, sub := range subs {
		close(sub.done)
	}
	b.wg.Wait()
}
