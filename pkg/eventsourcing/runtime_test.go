package eventsourcing_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brackenhill/eventflow/pkg/eventsourcing"
	"github.com/brackenhill/eventflow/pkg/eventsourcing/memorybackend"
)

type counterState struct {
	Value  int
	Exists bool
}

type createCounter struct{ Value int }
type incrementCounter struct{ By int }

type counterCreated struct{ Value int }
type counterIncremented struct{ By int }

var errNegativeIncrement = errors.New("increment must not be negative")

func counterBlueprint() eventsourcing.Blueprint[counterState, any] {
	eden := eventsourcing.NewBehavior[counterState, any]()
	eventsourcing.OnCommand[createCounter](eden, func(cmd createCounter, _ counterState) eventsourcing.Outcome[any] {
		return eventsourcing.Accept[any](counterCreated{Value: cmd.Value})
	})
	eventsourcing.OnEvent[counterCreated](eden, func(evt counterCreated, _ counterState) counterState {
		return counterState{Value: evt.Value, Exists: true}
	})

	active := eventsourcing.NewBehavior[counterState, any]()
	eventsourcing.OnCommand[incrementCounter](active, func(cmd incrementCounter, _ counterState) eventsourcing.Outcome[any] {
		if cmd.By < 0 {
			return eventsourcing.Reject[any](errNegativeIncrement)
		}
		return eventsourcing.Accept[any](counterIncremented{By: cmd.By})
	})
	eventsourcing.OnEvent[counterIncremented](active, func(evt counterIncremented, s counterState) counterState {
		s.Value += evt.By
		return s
	})

	edenBehavior := eden.Build()
	activeBehavior := active.Build()

	return eventsourcing.Blueprint[counterState, any]{
		AggregateType: "counter",
		Eden:          edenBehavior,
		BehaviorFor: func(counterState) eventsourcing.Behavior[counterState, any] {
			return activeBehavior
		},
	}
}

func newCounterRuntime() *eventsourcing.AggregateRuntime[any, any, counterState] {
	backend := memorybackend.New()
	return eventsourcing.NewRuntime[any, any, counterState](counterBlueprint(), backend)
}

func TestHandleCommandCreatesAndFoldsState(t *testing.T) {
	ctx := context.Background()
	runtime := newCounterRuntime()

	result := runtime.HandleCommand(ctx, "c1", createCounter{Value: 5})
	require.True(t, result.Successful())
	require.Len(t, result.Events, 1)

	state, version, err := runtime.CurrentState(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)
	assert.Equal(t, counterState{Value: 5, Exists: true}, state)

	result = runtime.HandleCommand(ctx, "c1", incrementCounter{By: 3})
	require.True(t, result.Successful())

	state, version, err = runtime.CurrentState(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), version)
	assert.Equal(t, 8, state.Value)
}

func TestHandleCommandRejection(t *testing.T) {
	ctx := context.Background()
	runtime := newCounterRuntime()

	runtime.HandleCommand(ctx, "c1", createCounter{Value: 5})
	result := runtime.HandleCommand(ctx, "c1", incrementCounter{By: -1})

	assert.Equal(t, eventsourcing.KindRejection, result.Kind)
	assert.ErrorIs(t, result.Err, errNegativeIncrement)
}

func TestHandleCommandUnsupportedInEdenBehavior(t *testing.T) {
	ctx := context.Background()
	runtime := newCounterRuntime()

	result := runtime.HandleCommand(ctx, "never-created", incrementCounter{By: 1})

	assert.Equal(t, eventsourcing.KindRejection, result.Kind)
	assert.ErrorIs(t, result.Err, eventsourcing.ErrUnsupportedCommandInEdenBehavior)
}

func TestHandleCommandAggregateInstanceAlreadyExists(t *testing.T) {
	ctx := context.Background()
	runtime := newCounterRuntime()

	runtime.HandleCommand(ctx, "c1", createCounter{Value: 5})
	result := runtime.HandleCommand(ctx, "c1", createCounter{Value: 99})

	assert.Equal(t, eventsourcing.KindUnexpected, result.Kind)
	assert.ErrorIs(t, result.Err, eventsourcing.ErrAggregateInstanceAlreadyExists)
}

func TestHandleCommandEnvelopeDeduplication(t *testing.T) {
	ctx := context.Background()
	backend := memorybackend.New()
	runtime := eventsourcing.NewRuntime[any, any, counterState](
		counterBlueprint(),
		backend,
		eventsourcing.WithConfig[any, any, counterState](eventsourcing.StaticConfig{
			Default: eventsourcing.AggregateConfig{DedupWindow: eventsourcing.KeepForever},
		}),
	)

	runtime.HandleCommand(ctx, "c1", createCounter{Value: 5})

	first := runtime.HandleCommandEnvelope(ctx, "c1", incrementCounter{By: 3}, "cmd-1", "", "")
	require.True(t, first.Successful())
	require.False(t, first.Deduplicated)

	second := runtime.HandleCommandEnvelope(ctx, "c1", incrementCounter{By: 3}, "cmd-1", "", "")
	require.True(t, second.Successful())
	assert.True(t, second.Deduplicated)
	assert.Equal(t, first.Events, second.Events)

	_, version, err := runtime.CurrentState(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), version, "replayed command must not append new events")
}

func TestHandleCommandEnvelopeDeduplicationExpiresOutsideWindow(t *testing.T) {
	ctx := context.Background()
	backend := memorybackend.New()
	runtime := eventsourcing.NewRuntime[any, any, counterState](
		counterBlueprint(),
		backend,
		eventsourcing.WithConfig[any, any, counterState](eventsourcing.StaticConfig{
			Default: eventsourcing.AggregateConfig{DedupWindow: 1},
		}),
	)

	runtime.HandleCommand(ctx, "c1", createCounter{Value: 5})
	first := runtime.HandleCommandEnvelope(ctx, "c1", incrementCounter{By: 1}, "cmd-1", "", "")
	require.True(t, first.Successful())

	// Still within the window (nothing has been appended since cmd-1's
	// event, so the distance from the high-water mark is 0).
	second := runtime.HandleCommandEnvelope(ctx, "c1", incrementCounter{By: 1}, "cmd-1", "", "")
	assert.True(t, second.Deduplicated)

	// Move the high-water mark past the window, then resubmit the same
	// command id: it must be treated as a new command, not a duplicate.
	runtime.HandleCommand(ctx, "c1", incrementCounter{By: 1})
	runtime.HandleCommand(ctx, "c1", incrementCounter{By: 1})
	third := runtime.HandleCommandEnvelope(ctx, "c1", incrementCounter{By: 1}, "cmd-1", "", "")
	require.True(t, third.Successful())
	assert.False(t, third.Deduplicated)
}

func TestHandleCommandSnapshotting(t *testing.T) {
	ctx := context.Background()
	backend := memorybackend.New()
	runtime := eventsourcing.NewRuntime[any, any, counterState](
		counterBlueprint(),
		backend,
		eventsourcing.WithConfig[any, any, counterState](eventsourcing.StaticConfig{
			Default: eventsourcing.AggregateConfig{SnapshotEvery: 1},
		}),
	)

	runtime.HandleCommand(ctx, "c1", createCounter{Value: 1})
	runtime.HandleCommand(ctx, "c1", incrementCounter{By: 1})
	runtime.HandleCommand(ctx, "c1", incrementCounter{By: 1})

	snap, err := backend.LoadSnapshot(ctx, "counter", "c1")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, int64(3), snap.Version)

	state, version, err := runtime.CurrentState(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), version)
	assert.Equal(t, 3, state.Value)
}
