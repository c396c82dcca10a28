package resilience

import (
	"context"
	"errors"
)

// transientError marks a failure as retryable.
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }
func (e *transientError) Transient() bool { return true }

// MarkTransient wraps a backend error so the executor will retry it and
// count it against the circuit. Protocol and verification errors must never
// be marked.
func MarkTransient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	if errors.Is(err, ErrDependencyTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var t interface{ Transient() bool }
	return errors.As(err, &t) && t.Transient()
}
