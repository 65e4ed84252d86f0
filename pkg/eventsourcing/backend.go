package eventsourcing

import (
	"context"
	"time"
)

// EventRecord is a single persisted event as returned by a Backend. Payload
// carries the domain event value itself; a backend that serializes to an
// external store is responsible for marshaling it (typically through a
// mapper.Mapper) on the way in and out.
type EventRecord struct {
	EventID        string
	AggregateType  string
	AggregateID    string
	CausationID    string
	CorrelationID  string
	SequenceNumber int64
	Timestamp      time.Time
	Payload        any
	TypeName       string
	TypeVersion    int
}

// SnapshotRecord is a point-in-time fold of an aggregate's state as of
// Version, used to bound rehydration cost.
type SnapshotRecord struct {
	AggregateType string
	AggregateID   string
	State         any
	Version       int64
}

// CommandRecord is the bookkeeping a Backend keeps per processed command,
// enabling HandleCommand to recognize and deduplicate retries of the same
// command id.
type CommandRecord struct {
	CommandID           string
	CommandType         string
	FirstSequenceNumber int64
	LastSequenceNumber  int64
	EmittedEventIDs     []string
}

// NewEvent is an event produced by a command handler, awaiting assignment of
// an id and sequence number by the Backend.
type NewEvent struct {
	Payload     any
	TypeName    string
	TypeVersion int
}

// SaveEventsRequest asks a Backend to atomically append Events, optionally
// record a CommandRecord for deduplication, and optionally refresh the
// latest snapshot, conditioned on the aggregate's current sequence number
// matching ExpectedSequenceNumber.
type SaveEventsRequest struct {
	AggregateType          string
	AggregateID            string
	CausationID            string
	CorrelationID          string
	ExpectedSequenceNumber int64
	Events                 []NewEvent
	CommandID              string
	CommandType            string
	Snapshot               *SnapshotRecord
}

// Backend is the event-log and snapshot persistence contract the runtime is
// built against. This package ships only an in-memory reference
// implementation (see memorybackend); a production backend backed by a real
// storage engine is expected to live outside this module and satisfy the
// same interface.
type Backend interface {
	// LoadEvents returns events for the aggregate with sequence number
	// strictly greater than afterSeq, in ascending order.
	LoadEvents(ctx context.Context, aggregateType, aggregateID string, afterSeq int64) ([]EventRecord, error)

	// LoadEventsInRange returns events with sequence numbers in
	// [fromSeq, toSeq], inclusive, in ascending order. Used to rehydrate the
	// events a deduplicated command previously emitted.
	LoadEventsInRange(ctx context.Context, aggregateType, aggregateID string, fromSeq, toSeq int64) ([]EventRecord, error)

	// LoadSnapshot returns the latest snapshot for the aggregate, or nil if
	// none has been saved.
	LoadSnapshot(ctx context.Context, aggregateType, aggregateID string) (*SnapshotRecord, error)

	// LoadCommandRecord returns the bookkeeping for a previously processed
	// command id, or nil if the command has not been seen.
	LoadCommandRecord(ctx context.Context, aggregateType, aggregateID, commandID string) (*CommandRecord, error)

	// SaveEvents atomically appends req.Events (and, if set, the
	// CommandRecord and snapshot) when req.ExpectedSequenceNumber matches
	// the backend's current sequence number for the aggregate. It returns
	// ErrOptimisticConcurrency (wrapped) on mismatch.
	SaveEvents(ctx context.Context, req SaveEventsRequest) ([]EventRecord, error)
}
