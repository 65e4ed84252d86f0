package eventsourcing

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/brackenhill/eventflow/pkg/reporter"
)

const maxConcurrencyRetries = 3

var concurrencyRetryBackoff = []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 40 * time.Millisecond}

// AggregateRuntime drives a Blueprint against a Backend: it rehydrates an
// aggregate's state, dispatches a command through the behavior active for
// that state, persists the resulting events, and reports every step through
// a reporter.Reporter. One AggregateRuntime instance is meant to be shared
// across all instances of a single aggregate type.
type AggregateRuntime[C any, E any, S any] struct {
	blueprint Blueprint[S, E]
	backend   Backend
	config    Config
	report    reporter.Reporter
	locks     keyedMutex
}

// RuntimeOption configures an AggregateRuntime at construction time.
type RuntimeOption[C any, E any, S any] func(*AggregateRuntime[C, E, S])

// WithConfig sets the dedup/snapshot tuning. The default is StaticConfig{}
// (deduplication and snapshotting both disabled).
func WithConfig[C any, E any, S any](config Config) RuntimeOption[C, E, S] {
	return func(r *AggregateRuntime[C, E, S]) { r.config = config }
}

// WithReporter sets the Reporter notified of runtime activity. The default
// is reporter.NoopReporter{}.
func WithReporter[C any, E any, S any](rep reporter.Reporter) RuntimeOption[C, E, S] {
	return func(r *AggregateRuntime[C, E, S]) { r.report = rep }
}

// NewRuntime builds an AggregateRuntime for the given Blueprint against
// backend.
func NewRuntime[C any, E any, S any](blueprint Blueprint[S, E], backend Backend, opts ...RuntimeOption[C, E, S]) *AggregateRuntime[C, E, S] {
	r := &AggregateRuntime[C, E, S]{
		blueprint: blueprint,
		backend:   backend,
		config:    StaticConfig{},
		report:    reporter.NoopReporter{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CurrentState rehydrates and returns the aggregate's folded state along
// with its current sequence number (0 if the aggregate has no history).
func (r *AggregateRuntime[C, E, S]) CurrentState(ctx context.Context, aggregateID string) (S, int64, error) {
	return r.rehydrate(ctx, aggregateID)
}

// HandleCommand dispatches cmd against the aggregate identified by
// aggregateID with no deduplication tracking (equivalent to
// HandleCommandEnvelope with an empty commandID).
func (r *AggregateRuntime[C, E, S]) HandleCommand(ctx context.Context, aggregateID string, cmd C) CommandResult[E] {
	return r.HandleCommandEnvelope(ctx, aggregateID, cmd, "", "", "")
}

// HandleCommandEnvelope dispatches cmd against the aggregate identified by
// aggregateID. If commandID is non-empty, deduplication is enabled (the
// configured DedupWindow is above 0) and the backend has already recorded
// commandID no more than DedupWindow events behind the current sequence
// number, the command is recognized as a retry: its previously emitted
// events are re-derived from storage and returned without re-invoking the
// behavior. causationID and correlationID are attached to newly persisted
// events. An empty causationID defaults to commandID, or to a new
// NewSortableID value when commandID is empty too; correlationID may be left
// empty.
func (r *AggregateRuntime[C, E, S]) HandleCommandEnvelope(ctx context.Context, aggregateID string, cmd C, commandID, causationID, correlationID string) CommandResult[E] {
	aggregateType := r.blueprint.AggregateType
	unlock := r.locks.Lock(aggregateID)
	defer unlock()

	if causationID == "" {
		causationID = commandID
	}
	if causationID == "" {
		causationID = NewSortableID()
	}

	r.report.CommandReceived(aggregateType, aggregateID)

	if dedupWindow := r.config.DedupWindow(aggregateType); commandID != "" && dedupWindow > 0 {
		record, err := r.backend.LoadCommandRecord(ctx, aggregateType, aggregateID, commandID)
		if err != nil {
			r.report.BackendError(aggregateType, aggregateID, err)
			return unexpected[E](&UnexpectedError{AggregateType: aggregateType, AggregateID: aggregateID, Cause: err})
		}
		if record != nil {
			withinHorizon := dedupWindow == KeepForever
			if !withinHorizon {
				hwm, err := r.highWaterMarkSince(ctx, aggregateType, aggregateID, record.LastSequenceNumber)
				if err != nil {
					r.report.BackendError(aggregateType, aggregateID, err)
					return unexpected[E](&UnexpectedError{AggregateType: aggregateType, AggregateID: aggregateID, Cause: err})
				}
				withinHorizon = hwm-record.LastSequenceNumber <= dedupWindow
			}
			if withinHorizon {
				events, err := r.replayRecordedEvents(ctx, aggregateType, aggregateID, record)
				if err != nil {
					r.report.BackendError(aggregateType, aggregateID, err)
					return unexpected[E](&UnexpectedError{AggregateType: aggregateType, AggregateID: aggregateID, Cause: err})
				}
				r.report.CommandDeduplicated(aggregateType, aggregateID, commandID)
				return success(events, true)
			}
		}
	}

	for attempt := 0; ; attempt++ {
		state, version, err := r.rehydrate(ctx, aggregateID)
		if err != nil {
			r.report.BackendError(aggregateType, aggregateID, err)
			return unexpected[E](&UnexpectedError{AggregateType: aggregateType, AggregateID: aggregateID, Cause: err})
		}

		behavior := r.blueprint.behaviorAt(version, state)
		outcome := behavior.Receive(cmd, state)

		if !outcome.handled {
			if version == 0 {
				r.report.CommandRejected(aggregateType, aggregateID, ErrUnsupportedCommandInEdenBehavior)
				return rejection[E](ErrUnsupportedCommandInEdenBehavior)
			}
			if r.blueprint.Eden.Handles(cmd) {
				return unexpected[E](&UnexpectedError{AggregateType: aggregateType, AggregateID: aggregateID, Cause: ErrAggregateInstanceAlreadyExists})
			}
			return unexpected[E](&UnexpectedError{AggregateType: aggregateType, AggregateID: aggregateID, Cause: ErrUnsupportedCommandInCurrentBehavior})
		}

		if outcome.reject != nil {
			r.report.CommandRejected(aggregateType, aggregateID, outcome.reject)
			return rejection[E](outcome.reject)
		}

		newEvents, newState, foldErr := r.foldNew(version, state, outcome.events)
		if foldErr != nil {
			return unexpected[E](&UnexpectedError{AggregateType: aggregateType, AggregateID: aggregateID, Cause: foldErr})
		}
		newVersion := version + int64(len(outcome.events))

		req := SaveEventsRequest{
			AggregateType:          aggregateType,
			AggregateID:            aggregateID,
			CausationID:            causationID,
			CorrelationID:          correlationID,
			ExpectedSequenceNumber: version,
			Events:                 newEvents,
			CommandID:              commandID,
			CommandType:            typeName(cmd),
		}
		snapshotEvery := r.config.SnapshotEvery(aggregateType)
		var lastSnapshotVersion int64
		if snapshotEvery > 0 {
			lastSnapshot, err := r.backend.LoadSnapshot(ctx, aggregateType, aggregateID)
			if err != nil {
				r.report.BackendError(aggregateType, aggregateID, err)
				return unexpected[E](&UnexpectedError{AggregateType: aggregateType, AggregateID: aggregateID, Cause: err})
			}
			if lastSnapshot != nil {
				lastSnapshotVersion = lastSnapshot.Version
			}
		}
		if snapshotEvery > 0 && newVersion-lastSnapshotVersion >= snapshotEvery {
			req.Snapshot = &SnapshotRecord{AggregateType: aggregateType, AggregateID: aggregateID, State: newState, Version: newVersion}
		}

		_, err = r.backend.SaveEvents(ctx, req)
		if err != nil {
			if errors.Is(err, ErrOptimisticConcurrency) && attempt < maxConcurrencyRetries {
				time.Sleep(backoffFor(attempt))
				continue
			}
			if errors.Is(err, ErrOptimisticConcurrency) {
				cmErr := &ConcurrentModificationError{AggregateType: aggregateType, AggregateID: aggregateID, Attempts: attempt + 1, Cause: err}
				r.report.BackendError(aggregateType, aggregateID, cmErr)
				return concurrentModification[E](cmErr)
			}
			r.report.BackendError(aggregateType, aggregateID, err)
			return unexpected[E](&UnexpectedError{AggregateType: aggregateType, AggregateID: aggregateID, Cause: err})
		}

		r.report.EventsPersisted(aggregateType, aggregateID, len(outcome.events))
		if req.Snapshot != nil {
			r.report.SnapshotSaved(aggregateType, aggregateID, req.Snapshot.Version)
		}
		return success(outcome.events, false)
	}
}

func backoffFor(attempt int) time.Duration {
	if attempt < len(concurrencyRetryBackoff) {
		return concurrencyRetryBackoff[attempt]
	}
	return concurrencyRetryBackoff[len(concurrencyRetryBackoff)-1]
}

// rehydrate loads the latest snapshot (if any) plus every subsequent event
// and folds them into the current state and sequence number.
func (r *AggregateRuntime[C, E, S]) rehydrate(ctx context.Context, aggregateID string) (S, int64, error) {
	aggregateType := r.blueprint.AggregateType

	var state S
	var version int64

	snapshot, err := r.backend.LoadSnapshot(ctx, aggregateType, aggregateID)
	if err != nil {
		var zero S
		return zero, 0, fmt.Errorf("load snapshot: %w", err)
	}
	if snapshot != nil {
		typed, ok := snapshot.State.(S)
		if !ok {
			var zero S
			return zero, 0, fmt.Errorf("snapshot state has unexpected type %T", snapshot.State)
		}
		state = typed
		version = snapshot.Version
	}

	events, err := r.backend.LoadEvents(ctx, aggregateType, aggregateID, version)
	if err != nil {
		var zero S
		return zero, 0, fmt.Errorf("load events: %w", err)
	}

	for _, rec := range events {
		behavior := r.blueprint.behaviorAt(version, state)
		newState, err := behavior.Apply(rec.Payload, state)
		if err != nil {
			var zero S
			return zero, 0, fmt.Errorf("fold event %d: %w", rec.SequenceNumber, err)
		}
		state = newState
		version = rec.SequenceNumber
	}

	return state, version, nil
}

// highWaterMarkSince returns the aggregate's current sequence number without
// folding any event payloads, by loading only what comes after base. Used by
// the dedup horizon check, which must not pay the cost of a full rehydrate
// just to learn how far the aggregate has moved since a recorded command.
func (r *AggregateRuntime[C, E, S]) highWaterMarkSince(ctx context.Context, aggregateType, aggregateID string, base int64) (int64, error) {
	events, err := r.backend.LoadEvents(ctx, aggregateType, aggregateID, base)
	if err != nil {
		return 0, fmt.Errorf("load events since %d: %w", base, err)
	}
	if len(events) == 0 {
		return base, nil
	}
	return events[len(events)-1].SequenceNumber, nil
}

// foldNew folds newly emitted (not-yet-persisted) events into state,
// starting from version, and returns the corresponding NewEvent records.
func (r *AggregateRuntime[C, E, S]) foldNew(version int64, state S, events []E) ([]NewEvent, S, error) {
	newEvents := make([]NewEvent, 0, len(events))
	for i, evt := range events {
		behavior := r.blueprint.behaviorAt(version, state)
		newState, err := behavior.Apply(evt, state)
		if err != nil {
			var zero S
			return nil, zero, fmt.Errorf("fold emitted event %d: %w", i, err)
		}
		state = newState
		version++
		newEvents = append(newEvents, NewEvent{Payload: evt, TypeName: typeName(evt)})
	}
	return newEvents, state, nil
}

// replayRecordedEvents loads the events a previously processed command
// emitted and casts them back to E.
func (r *AggregateRuntime[C, E, S]) replayRecordedEvents(ctx context.Context, aggregateType, aggregateID string, record *CommandRecord) ([]E, error) {
	if record.FirstSequenceNumber == 0 {
		return nil, nil
	}
	recs, err := r.backend.LoadEventsInRange(ctx, aggregateType, aggregateID, record.FirstSequenceNumber, record.LastSequenceNumber)
	if err != nil {
		return nil, fmt.Errorf("load recorded events: %w", err)
	}
	events := make([]E, 0, len(recs))
	for _, rec := range recs {
		typed, ok := rec.Payload.(E)
		if !ok {
			return nil, fmt.Errorf("recorded event has unexpected type %T", rec.Payload)
		}
		events = append(events, typed)
	}
	return events, nil
}

func typeName(v any) string {
	t := reflect.TypeOf(v)
	if t == nil {
		return ""
	}
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}
