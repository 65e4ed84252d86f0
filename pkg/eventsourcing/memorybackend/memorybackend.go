// Package memorybackend is an in-memory reference implementation of
// eventsourcing.Backend. It exists for tests and local experimentation; a
// production deployment is expected to provide its own Backend backed by a
// real storage engine.
package memorybackend

import (
	"context"
	"sync"

	"github.com/brackenhill/eventflow/pkg/eventsourcing"
)

type aggregateLog struct {
	events   []eventsourcing.EventRecord
	snapshot *eventsourcing.SnapshotRecord
	commands map[string]*eventsourcing.CommandRecord
}

// Backend is a goroutine-safe, in-memory eventsourcing.Backend. Nothing it
// stores survives process restart.
type Backend struct {
	mu   sync.Mutex
	logs map[string]*aggregateLog
}

// New returns an empty Backend.
func New() *Backend {
	return &Backend{logs: make(map[string]*aggregateLog)}
}

func key(aggregateType, aggregateID string) string {
	return aggregateType + "/" + aggregateID
}

func (b *Backend) logFor(aggregateType, aggregateID string) *aggregateLog {
	k := key(aggregateType, aggregateID)
	log, ok := b.logs[k]
	if !ok {
		log = &aggregateLog{commands: make(map[string]*eventsourcing.CommandRecord)}
		b.logs[k] = log
	}
	return log
}

func (b *Backend) LoadEvents(ctx context.Context, aggregateType, aggregateID string, afterSeq int64) ([]eventsourcing.EventRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	log := b.logFor(aggregateType, aggregateID)
	var out []eventsourcing.EventRecord
	for _, rec := range log.events {
		if rec.SequenceNumber > afterSeq {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (b *Backend) LoadEventsInRange(ctx context.Context, aggregateType, aggregateID string, fromSeq, toSeq int64) ([]eventsourcing.EventRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	log := b.logFor(aggregateType, aggregateID)
	var out []eventsourcing.EventRecord
	for _, rec := range log.events {
		if rec.SequenceNumber >= fromSeq && rec.SequenceNumber <= toSeq {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (b *Backend) LoadSnapshot(ctx context.Context, aggregateType, aggregateID string) (*eventsourcing.SnapshotRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	log := b.logFor(aggregateType, aggregateID)
	if log.snapshot == nil {
		return nil, nil
	}
	snap := *log.snapshot
	return &snap, nil
}

func (b *Backend) LoadCommandRecord(ctx context.Context, aggregateType, aggregateID, commandID string) (*eventsourcing.CommandRecord, error) {
	if commandID == "" {
		return nil, nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	log := b.logFor(aggregateType, aggregateID)
	record, ok := log.commands[commandID]
	if !ok {
		return nil, nil
	}
	copied := *record
	return &copied, nil
}

func (b *Backend) SaveEvents(ctx context.Context, req eventsourcing.SaveEventsRequest) ([]eventsourcing.EventRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	log := b.logFor(req.AggregateType, req.AggregateID)

	current := int64(0)
	if n := len(log.events); n > 0 {
		current = log.events[n-1].SequenceNumber
	}
	if current != req.ExpectedSequenceNumber {
		return nil, eventsourcing.ErrOptimisticConcurrency
	}

	seq := current
	now := eventsourcing.TimeFunc()
	saved := make([]eventsourcing.EventRecord, 0, len(req.Events))
	for _, ev := range req.Events {
		seq++
		rec := eventsourcing.EventRecord{
			EventID:        eventsourcing.NewEventID(),
			AggregateType:  req.AggregateType,
			AggregateID:    req.AggregateID,
			CausationID:    req.CausationID,
			CorrelationID:  req.CorrelationID,
			SequenceNumber: seq,
			Timestamp:      now,
			Payload:        ev.Payload,
			TypeName:       ev.TypeName,
			TypeVersion:    ev.TypeVersion,
		}
		log.events = append(log.events, rec)
		saved = append(saved, rec)
	}

	if req.CommandID != "" {
		ids := make([]string, 0, len(saved))
		for _, rec := range saved {
			ids = append(ids, rec.EventID)
		}
		first := req.ExpectedSequenceNumber + 1
		if len(saved) == 0 {
			first = 0
		}
		log.commands[req.CommandID] = &eventsourcing.CommandRecord{
			CommandID:           req.CommandID,
			CommandType:         req.CommandType,
			FirstSequenceNumber: first,
			LastSequenceNumber:  seq,
			EmittedEventIDs:     ids,
		}
	}

	if req.Snapshot != nil {
		snap := *req.Snapshot
		log.snapshot = &snap
	}

	return saved, nil
}

// Truncate discards every stored event with SequenceNumber <= upTo for one
// aggregate. It exists to demonstrate the snapshot invariant that rehydration
// never needs events a snapshot already covers; production backends are free
// to do this as routine compaction instead of exposing it as an operation.
func (b *Backend) Truncate(aggregateType, aggregateID string, upTo int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	log := b.logFor(aggregateType, aggregateID)
	kept := log.events[:0:0]
	for _, rec := range log.events {
		if rec.SequenceNumber > upTo {
			kept = append(kept, rec)
		}
	}
	log.events = kept
}

var _ eventsourcing.Backend = (*Backend)(nil)
