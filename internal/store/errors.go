package store

import (
	"errors"
	"fmt"
)

// StorageError wraps a failed storage round trip. Storage failures are
// reported transient so the dispatcher retries the event in place
// instead of halting the chain; a persistent outage then shows up as a
// retry loop in the metrics rather than silent data loss.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func (e *StorageError) Transient() bool {
	return true
}

// Transient reports whether err is a retryable storage failure.
func Transient(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}
