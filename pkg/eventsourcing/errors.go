package eventsourcing

import (
	"errors"
	"strconv"
)

// Sentinel errors identifying the shape of a command outcome other than
// success. Callers compare with errors.Is.
var (
	// ErrUnsupportedCommandInEdenBehavior is returned when the aggregate does
	// not exist yet (no events persisted) and the incoming command has no
	// handler registered in the eden behavior. This is a business rejection,
	// not a programmer error: the caller simply sent the wrong command to
	// create this aggregate, and CommandResult.Kind is KindRejection.
	ErrUnsupportedCommandInEdenBehavior = errors.New("eventsourcing: unsupported command in eden behavior")

	// ErrUnsupportedCommandInCurrentBehavior is returned when the aggregate
	// already exists and the current behavior has no handler for the
	// incoming command.
	ErrUnsupportedCommandInCurrentBehavior = errors.New("eventsourcing: unsupported command in current behavior")

	// ErrUnsupportedEventInCurrentBehavior is returned when folding history
	// encounters an event the applicable behavior cannot apply.
	ErrUnsupportedEventInCurrentBehavior = errors.New("eventsourcing: unsupported event in current behavior")

	// ErrAggregateInstanceAlreadyExists is returned when an eden-only
	// command (one only ever registered in the eden behavior) is sent
	// against an aggregate instance that already has persisted history.
	ErrAggregateInstanceAlreadyExists = errors.New("eventsourcing: aggregate instance already exists")

	// ErrOptimisticConcurrency is returned by a Backend when the expected
	// sequence number supplied with a save does not match the backend's
	// current sequence number for the aggregate.
	ErrOptimisticConcurrency = errors.New("eventsourcing: optimistic concurrency conflict")
)

// ConcurrentModificationError wraps a concurrency conflict observed after
// the runtime's retry budget has been exhausted.
type ConcurrentModificationError struct {
	AggregateType string
	AggregateID   string
	Attempts      int
	Cause         error
}

func (e *ConcurrentModificationError) Error() string {
	return "eventsourcing: concurrent modification of " + e.AggregateType + "/" + e.AggregateID + " after " + strconv.Itoa(e.Attempts) + " attempts"
}

func (e *ConcurrentModificationError) Unwrap() error { return e.Cause }

func (e *ConcurrentModificationError) Is(target error) bool {
	return target == ErrOptimisticConcurrency
}

// UnexpectedError wraps any outcome of HandleCommand that is neither a
// successful append, a business rejection, nor a concurrency conflict: a
// command unsupported by a non-eden behavior, an already-existing aggregate
// receiving an eden-only command, an unfoldable event, or a backend failure.
type UnexpectedError struct {
	AggregateType string
	AggregateID   string
	Cause         error
}

func (e *UnexpectedError) Error() string {
	return "eventsourcing: unexpected error handling command for " + e.AggregateType + "/" + e.AggregateID + ": " + e.Cause.Error()
}

func (e *UnexpectedError) Unwrap() error { return e.Cause }
