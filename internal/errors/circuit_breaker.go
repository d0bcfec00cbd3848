package errors

import (
	"fmt"
	"sync"
	"time"

	"otto/internal/logging"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	// StateClosed - normal operation, calls allowed.
	StateClosed CircuitState = iota
	// StateOpen - failing, calls rejected until the reset timeout elapses.
	StateOpen
	// StateHalfOpen - probing whether the service recovered.
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig configures circuit breaker behavior.
type CircuitBreakerConfig struct {
	FailureThreshold int                                      // consecutive failures before opening (default: 5)
	ResetTimeout     time.Duration                            // wait before allowing a probe (default: 30s)
	HalfOpenMaxCalls int                                      // concurrent probes allowed in half-open (default: 1)
	OnStateChange    func(from, to CircuitState, name string) // optional callback
}

// DefaultCircuitBreakerConfig returns sensible defaults.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		ResetTimeout:     30 * time.Second,
		HalfOpenMaxCalls: 1,
	}
}

func (c CircuitBreakerConfig) withDefaults() CircuitBreakerConfig {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = 30 * time.Second
	}
	if c.HalfOpenMaxCalls <= 0 {
		c.HalfOpenMaxCalls = 1
	}
	return c
}

// CircuitBreaker guards calls to one named downstream service. It stops
// calling a failing dependency until ResetTimeout elapses, then lets at most
// HalfOpenMaxCalls probes through to test recovery.
type CircuitBreaker struct {
	name   string
	config CircuitBreakerConfig
	logger logging.Logger

	mu               sync.Mutex
	state            CircuitState
	failureCount     int
	halfOpenInFlight int
	lastFailureAt    time.Time
	openedAt         time.Time
}

// NewCircuitBreaker creates a circuit breaker for the named service.
func NewCircuitBreaker(name string, config CircuitBreakerConfig, logger logging.Logger) *CircuitBreaker {
	return &CircuitBreaker{
		name:   name,
		config: config.withDefaults(),
		logger: logging.OrNop(logger),
		state:  StateClosed,
	}
}

// Allow checks whether a call may proceed. On rejection it returns a
// CircuitOpenError carrying the remaining cooldown. A granted call must be
// balanced with exactly one Mark or Forgive.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return nil

	case StateOpen:
		elapsed := time.Since(cb.openedAt)
		if elapsed < cb.config.ResetTimeout {
			return &CircuitOpenError{
				Service:    cb.name,
				RetryAfter: cb.config.ResetTimeout - elapsed,
			}
		}
		cb.setState(StateHalfOpen)
		cb.halfOpenInFlight = 1
		cb.logger.Info("[%s] circuit half-open, probing recovery", cb.name)
		return nil

	case StateHalfOpen:
		if cb.halfOpenInFlight >= cb.config.HalfOpenMaxCalls {
			return &CircuitOpenError{Service: cb.name, RetryAfter: cb.config.ResetTimeout}
		}
		cb.halfOpenInFlight++
		return nil

	default:
		return fmt.Errorf("unknown circuit state: %v", cb.state)
	}
}

// Mark records the outcome of a call previously granted by Allow. Pass nil
// for success.
func (cb *CircuitBreaker) Mark(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.releaseProbeLocked()
	if err == nil {
		cb.onSuccessLocked()
	} else {
		cb.onFailureLocked()
	}
}

// Forgive releases a call granted by Allow without recording an outcome.
// Used for results that should not influence breaker state, such as timeouts
// when TimeoutTripsBreaker is disabled.
func (cb *CircuitBreaker) Forgive() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.releaseProbeLocked()
}

// Execute runs fn under breaker protection and records its outcome.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.Allow(); err != nil {
		return err
	}
	err := fn()
	cb.Mark(err)
	return err
}

func (cb *CircuitBreaker) releaseProbeLocked() {
	if cb.state == StateHalfOpen && cb.halfOpenInFlight > 0 {
		cb.halfOpenInFlight--
	}
}

func (cb *CircuitBreaker) onSuccessLocked() {
	switch cb.state {
	case StateClosed:
		if cb.failureCount > 0 {
			cb.failureCount = 0
		}
	case StateHalfOpen:
		cb.setState(StateClosed)
		cb.failureCount = 0
		cb.halfOpenInFlight = 0
		cb.logger.Info("[%s] circuit closed, service recovered", cb.name)
	case StateOpen:
		// A straggler finished after the circuit reopened. Ignore.
	}
}

func (cb *CircuitBreaker) onFailureLocked() {
	cb.lastFailureAt = time.Now()

	switch cb.state {
	case StateClosed:
		cb.failureCount++
		if cb.failureCount >= cb.config.FailureThreshold {
			cb.setState(StateOpen)
			cb.openedAt = time.Now()
			cb.logger.Warn("[%s] circuit opened after %d consecutive failures", cb.name, cb.failureCount)
		}
	case StateHalfOpen:
		cb.setState(StateOpen)
		cb.openedAt = time.Now()
		cb.halfOpenInFlight = 0
		cb.logger.Warn("[%s] circuit reopened, probe failed", cb.name)
	case StateOpen:
	}
}

func (cb *CircuitBreaker) setState(newState CircuitState) {
	oldState := cb.state
	cb.state = newState

	if cb.config.OnStateChange != nil && oldState != newState {
		// Callback runs outside the lock path to keep Allow/Mark cheap.
		go cb.config.OnStateChange(oldState, newState, cb.name)
	}
}

// State returns the current state of the circuit breaker.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Snapshot contains point-in-time circuit breaker statistics.
type Snapshot struct {
	Name          string
	State         CircuitState
	FailureCount  int
	LastFailureAt time.Time
	OpenedAt      time.Time
}

// Stats returns the breaker's current statistics.
func (cb *CircuitBreaker) Stats() Snapshot {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return Snapshot{
		Name:          cb.name,
		State:         cb.state,
		FailureCount:  cb.failureCount,
		LastFailureAt: cb.lastFailureAt,
		OpenedAt:      cb.openedAt,
	}
}

// Reset manually returns the breaker to closed and clears failure history.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.setState(StateClosed)
	cb.failureCount = 0
	cb.halfOpenInFlight = 0
	cb.logger.Info("[%s] circuit manually reset", cb.name)
}

// CircuitBreakerRegistry holds one breaker per logical service name. It is
// constructor-injected wherever breakers are needed so tests can run with
// isolated instances.
type CircuitBreakerRegistry struct {
	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker
	config   CircuitBreakerConfig
	logger   logging.Logger
}

// NewCircuitBreakerRegistry creates a registry applying config to every
// breaker it creates.
func NewCircuitBreakerRegistry(config CircuitBreakerConfig, logger logging.Logger) *CircuitBreakerRegistry {
	return &CircuitBreakerRegistry{
		breakers: make(map[string]*CircuitBreaker),
		config:   config.withDefaults(),
		logger:   logging.OrNop(logger),
	}
}

// Get returns the breaker for name, creating it on first use.
func (r *CircuitBreakerRegistry) Get(name string) *CircuitBreaker {
	r.mu.RLock()
	if breaker, ok := r.breakers[name]; ok {
		r.mu.RUnlock()
		return breaker
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	if breaker, ok := r.breakers[name]; ok {
		return breaker
	}
	breaker := NewCircuitBreaker(name, r.config, r.logger)
	r.breakers[name] = breaker
	return breaker
}

// Stats returns statistics for every registered breaker.
func (r *CircuitBreakerRegistry) Stats() []Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := make([]Snapshot, 0, len(r.breakers))
	for _, breaker := range r.breakers {
		stats = append(stats, breaker.Stats())
	}
	return stats
}

// ResetAll resets every registered breaker to closed.
func (r *CircuitBreakerRegistry) ResetAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, breaker := range r.breakers {
		breaker.Reset()
	}
}
