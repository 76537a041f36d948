package storage

import (
	"context"
	"errors"
	"log"
	"time"
)

var (
	// ErrNotFound indicates that the requested resource was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidTransition indicates a project status change that violates
	// the lifecycle state machine.
	ErrInvalidTransition = errors.New("invalid project status transition")
)

// PersistenceError wraps a storage write failure so callers can distinguish
// it from validation errors when mapping to responses and deciding whether
// the owning project must be marked failed.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return "storage: " + e.Op + ": " + e.Err.Error()
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// retryDelay is how long to wait before the single retry of a failed write.
const retryDelay = 250 * time.Millisecond

// WriteOnce runs a storage write, retrying exactly once on failure to paper
// over transient conditions (connection blips, lock contention). Validation
// errors are never retried. The final failure is wrapped as a
// *PersistenceError.
func WriteOnce(ctx context.Context, op string, fn func() error) error {
	err := fn()
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrInvalidInput) || errors.Is(err, ErrInvalidTransition) || errors.Is(err, ErrNotFound) {
		return err
	}

	log.Printf("storage: %s failed, retrying once: %v", op, err)

	timer := time.NewTimer(retryDelay)
	select {
	case <-ctx.Done():
		timer.Stop()
		return &PersistenceError{Op: op, Err: ctx.Err()}
	case <-timer.C:
	}

	if err := fn(); err != nil {
		return &PersistenceError{Op: op, Err: err}
	}
	return nil
}
