package contract

import (
	"context"
	"errors"
	"fmt"
)

// ErrNoData signals that a stage has nothing to process for a user this cycle.
var ErrNoData = errors.New("no data to process")

// ErrStageRunning is returned when the same user and stage are already running in this process.
var ErrStageRunning = errors.New("stage is already running for this user")

// ErrWatermarkConflict is returned when a concurrent run advanced the watermark first.
var ErrWatermarkConflict = errors.New("watermark was advanced by a concurrent run")

// StoreAccessError wraps a retryable failure talking to the store.
type StoreAccessError struct {
	Op  string
	Err error
}

func (e *StoreAccessError) Error() string {
	return fmt.Sprintf("store access failed during %s: %v", e.Op, e.Err)
}

func (e *StoreAccessError) Unwrap() error { return e.Err }

// SerializationError is returned when an entry payload cannot be type-tagged.
type SerializationError struct {
	Key     string
	EntryID string
	Err     error
}

func (e *SerializationError) Error() string {
	if e.EntryID != "" {
		return fmt.Sprintf("cannot serialize entry %s with key %q: %v", e.EntryID, e.Key, e.Err)
	}
	return fmt.Sprintf("cannot serialize key %q: %v", e.Key, e.Err)
}

func (e *SerializationError) Unwrap() error { return e.Err }

// ArchiveIOError is returned when an archive cannot be written or read.
type ArchiveIOError struct {
	Path string
	Err  error
}

func (e *ArchiveIOError) Error() string {
	return fmt.Sprintf("archive I/O failed for %s: %v", e.Path, e.Err)
}

func (e *ArchiveIOError) Unwrap() error { return e.Err }

// NewStoreAccessError wraps err unless it is nil.
func NewStoreAccessError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreAccessError{Op: op, Err: err}
}

// IsRetryable reports whether a failed run can simply be retried.
func IsRetryable(err error) bool {
	var sae *StoreAccessError
	var aie *ArchiveIOError
	return errors.As(err, &sae) || errors.As(err, &aie) ||
		errors.Is(err, ErrStageRunning) || errors.Is(err, ErrWatermarkConflict) ||
		errors.Is(err, context.DeadlineExceeded)
}
