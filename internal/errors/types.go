// Package errors defines the failure taxonomy of the orchestration runtime
// and the protection policies built on top of it: circuit breaking, retry
// with exponential backoff, and cooperative timeouts.
package errors

import (
	"errors"
	"fmt"
	"net"
	"syscall"
	"time"
)

// CircuitOpenError is returned when a call is rejected because the circuit
// breaker for the target service is open. It is never retried.
type CircuitOpenError struct {
	Service    string
	RetryAfter time.Duration
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit open for %s, retry in %v", e.Service, e.RetryAfter)
}

// IsCircuitOpen reports whether err is (or wraps) a CircuitOpenError.
func IsCircuitOpen(err error) bool {
	var target *CircuitOpenError
	return errors.As(err, &target)
}

// RetryExhaustedError wraps the last underlying error after the retry policy
// has used up all attempts.
type RetryExhaustedError struct {
	Attempts int
	Err      error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempts: %v", e.Attempts, e.Err)
}

func (e *RetryExhaustedError) Unwrap() error {
	return e.Err
}

// TimeoutError indicates an operation exceeded its deadline and was asked to
// stop via context cancellation.
type TimeoutError struct {
	Operation string
	Timeout   time.Duration
}

func (e *TimeoutError) Error() string {
	if e.Operation == "" {
		return fmt.Sprintf("operation timed out after %v", e.Timeout)
	}
	return fmt.Sprintf("%s timed out after %v", e.Operation, e.Timeout)
}

// IsTimeout reports whether err is (or wraps) a TimeoutError.
func IsTimeout(err error) bool {
	var target *TimeoutError
	return errors.As(err, &target)
}

// NotFoundError indicates an unknown or already-evicted identifier.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

// CapacityExceededError indicates a resource pool could not grant capacity
// within its acquisition timeout. Retrying immediately is known-futile, so it
// is surfaced to the caller directly.
type CapacityExceededError struct {
	Pool    string
	Timeout time.Duration
}

func (e *CapacityExceededError) Error() string {
	return fmt.Sprintf("pool %s exhausted after waiting %v", e.Pool, e.Timeout)
}

// IsCapacityExceeded reports whether err is (or wraps) a CapacityExceededError.
func IsCapacityExceeded(err error) bool {
	var target *CapacityExceededError
	return errors.As(err, &target)
}

// TransientError marks an error as retryable regardless of its cause.
type TransientError struct {
	Err     error
	Message string
}

func (e *TransientError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("transient error: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// PermanentError marks an error as non-retryable regardless of its cause.
type PermanentError struct {
	Err     error
	Message string
}

func (e *PermanentError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("permanent error: %v", e.Err)
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// NewTransient wraps err as explicitly retryable.
func NewTransient(err error, message string) *TransientError {
	return &TransientError{Err: err, Message: message}
}

// NewPermanent wraps err as explicitly non-retryable.
func NewPermanent(err error, message string) *PermanentError {
	return &PermanentError{Err: err, Message: message}
}

// IsTransient reports whether an error looks worth retrying. Explicit marks
// win; otherwise network-level failures are treated as transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var transient *TransientError
	if errors.As(err, &transient) {
		return true
	}
	var permanent *PermanentError
	if errors.As(err, &permanent) {
		return false
	}

	return isNetworkError(err) || isSyscallError(err)
}

// IsPermanent reports whether an error is explicitly marked non-retryable.
// Circuit-open and capacity-exceeded rejections also qualify: retrying them
// immediately cannot succeed.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}

	var permanent *PermanentError
	if errors.As(err, &permanent) {
		return true
	}
	return IsCircuitOpen(err) || IsCapacityExceeded(err)
}

func isNetworkError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.Temporary()
	}
	return false
}

func isSyscallError(err error) bool {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.ECONNREFUSED, syscall.ECONNRESET, syscall.EPIPE,
			syscall.ETIMEDOUT, syscall.ENETUNREACH, syscall.EHOSTUNREACH:
			return true
		}
	}
	return false
}
