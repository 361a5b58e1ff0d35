package eventsourcing

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyHistory is returned when an aggregate is folded from an empty
	// event list. An aggregate must be born from at least one event.
	ErrEmptyHistory = errors.New("aggregate history must not be empty")

	// ErrSnapshotNotFound is returned by a SnapshotStore when no snapshot
	// exists for the aggregate. Callers fall back to full event replay.
	ErrSnapshotNotFound = errors.New("snapshot not found")

	// ErrContentionExceeded is returned by a command handler that lost the
	// optimistic-concurrency race more times than its retry bound allows.
	// It is distinct from a business-rule rejection so callers can tell
	// "rejected" apart from "too contended".
	ErrContentionExceeded = errors.New("version conflict retries exhausted")

	// ErrDuplicateHandler is returned when two handlers are registered for
	// the same event type.
	ErrDuplicateHandler = errors.New("duplicate handler")
)

// VersionConflictError reports an optimistic-concurrency violation: an
// envelope already exists at the stream position implied by the write.
// Exactly one of any set of racing writers succeeds; the rest observe this
// error and are expected to re-read, re-apply and retry.
type VersionConflictError struct {
	AggregateID string
	Version     int64
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("version conflict on aggregate %q: version %d already exists", e.AggregateID, e.Version)
}

// SerializationError reports a payload that could not be encoded or decoded.
// Not retryable without a schema fix.
type SerializationError struct {
	Err error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("serialization error: %v", e.Err)
}

func (e *SerializationError) Unwrap() error {
	return e.Err
}

// TransientError reports a temporarily unavailable backend (storage or
// broker). Safe to retry with a bounded, delayed policy.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient infrastructure error: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// ErrSkippedEvent is returned when a handler cannot handle the event type.
type ErrSkippedEvent struct {
	EventType string
}

func (e *ErrSkippedEvent) Error() string {
	return fmt.Sprintf("skipped event of type %s", e.EventType)
}

// Retryable reports whether err may succeed on a later attempt: version
// conflicts (after a reload) and transient infrastructure failures.
// Domain and serialization errors are never retryable.
func Retryable(err error) bool {
	var conflict *VersionConflictError
	if errors.As(err, &conflict) {
		return true
	}
	var transient *TransientError
	return errors.As(err, &transient)
}
