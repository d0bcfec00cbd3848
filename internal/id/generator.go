// Package id produces identifiers for tasks, subscriptions, and request
// correlation. The default strategy is KSUID so ids sort by creation time;
// UUIDv7 is available for deployments that standardize on UUIDs.
package id

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/segmentio/ksuid"
)

// Strategy identifies the identifier generation algorithm to use.
type Strategy int

const (
	// StrategyKSUID generates lexicographically sortable identifiers using KSUID.
	StrategyKSUID Strategy = iota
	// StrategyUUIDv7 generates time-ordered identifiers using UUID version 7.
	StrategyUUIDv7
)

var defaultGenerator = &Generator{strategy: StrategyKSUID}

// Generator produces prefixed identifiers under a configurable strategy.
type Generator struct {
	mu       sync.RWMutex
	strategy Strategy
}

// SetStrategy configures the generation strategy for the default generator.
func SetStrategy(strategy Strategy) {
	defaultGenerator.mu.Lock()
	defaultGenerator.strategy = strategy
	defaultGenerator.mu.Unlock()
}

// NewTaskID generates a new subagent task identifier.
func NewTaskID() string {
	return defaultGenerator.newIdentifier("task")
}

// NewSubscriptionID generates a new event bus subscription identifier.
func NewSubscriptionID() string {
	return defaultGenerator.newIdentifier("sub")
}

// NewRequestID generates a correlation identifier for request/response
// exchanges over the event bus.
func NewRequestID() string {
	return defaultGenerator.newIdentifier("req")
}

func (g *Generator) newIdentifier(prefix string) string {
	g.mu.RLock()
	strategy := g.strategy
	g.mu.RUnlock()

	switch strategy {
	case StrategyUUIDv7:
		value, err := uuid.NewV7()
		if err != nil {
			// NewV7 only fails when the random source does; fall back to v4.
			value = uuid.New()
		}
		return fmt.Sprintf("%s_%s", prefix, value.String())
	default:
		return fmt.Sprintf("%s_%s", prefix, ksuid.New().String())
	}
}
