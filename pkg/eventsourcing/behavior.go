package eventsourcing

import "reflect"

// Outcome is what a Behavior's receive function returns for one command:
// either accept (emit zero or more events), reject (a business rejection,
// not an unexpected error), or leave the command unhandled so the runtime
// can decide what an unhandled command means at the current point in the
// aggregate's history.
type Outcome[E any] struct {
	handled bool
	events  []E
	reject  error
}

// Accept produces an Outcome that emits events. An empty events slice is
// valid: the command is accepted but changes nothing.
func Accept[E any](events ...E) Outcome[E] {
	return Outcome[E]{handled: true, events: events}
}

// Reject produces an Outcome rejecting the command for a business reason.
// err becomes CommandResult.RejectionError; it is not treated as a fault.
func Reject[E any](err error) Outcome[E] {
	return Outcome[E]{handled: true, reject: err}
}

// Unhandled produces an Outcome signaling that this Behavior has no opinion
// about the command. The runtime turns this into a rejection carrying
// ErrUnsupportedCommandInEdenBehavior if the aggregate doesn't exist yet, or
// an UnexpectedError carrying ErrUnsupportedCommandInCurrentBehavior or
// ErrAggregateInstanceAlreadyExists depending on aggregate history otherwise.
func Unhandled[E any]() Outcome[E] {
	return Outcome[E]{}
}

type receiveFunc[S any, E any] func(cmd any, state S) Outcome[E]
type applyFunc[S any] func(event any, state S) (S, error)

// Behavior is the (receive, apply) partial-function pair active for a given
// aggregate state. It is built once via NewBehavior and the On*/OnEvent
// helpers, then frozen: Behavior values are safe for concurrent reads.
type Behavior[S any, E any] struct {
	receivers map[reflect.Type]receiveFunc[S, E]
	appliers  map[reflect.Type]applyFunc[S]
}

// BehaviorBuilder accumulates command and event handlers for one Behavior.
type BehaviorBuilder[S any, E any] struct {
	b Behavior[S, E]
}

// NewBehavior starts building a Behavior for state type S emitting events of
// type E.
func NewBehavior[S any, E any]() *BehaviorBuilder[S, E] {
	return &BehaviorBuilder[S, E]{
		b: Behavior[S, E]{
			receivers: make(map[reflect.Type]receiveFunc[S, E]),
			appliers:  make(map[reflect.Type]applyFunc[S]),
		},
	}
}

// Build freezes the accumulated handlers into a Behavior value.
func (b *BehaviorBuilder[S, E]) Build() Behavior[S, E] {
	frozen := Behavior[S, E]{
		receivers: make(map[reflect.Type]receiveFunc[S, E], len(b.b.receivers)),
		appliers:  make(map[reflect.Type]applyFunc[S], len(b.b.appliers)),
	}
	for t, f := range b.b.receivers {
		frozen.receivers[t] = f
	}
	for t, f := range b.b.appliers {
		frozen.appliers[t] = f
	}
	return frozen
}

// OnCommand registers a handler for commands of concrete type C within the
// Behavior under construction.
func OnCommand[C any, S any, E any](b *BehaviorBuilder[S, E], handler func(cmd C, state S) Outcome[E]) *BehaviorBuilder[S, E] {
	t := reflect.TypeOf((*C)(nil)).Elem()
	b.b.receivers[t] = func(cmd any, state S) Outcome[E] {
		return handler(cmd.(C), state)
	}
	return b
}

// OnEvent registers a fold function for events of concrete type V within the
// Behavior under construction.
func OnEvent[V any, S any, E any](b *BehaviorBuilder[S, E], fold func(event V, state S) S) *BehaviorBuilder[S, E] {
	t := reflect.TypeOf((*V)(nil)).Elem()
	b.b.appliers[t] = func(event any, state S) (S, error) {
		return fold(event.(V), state), nil
	}
	return b
}

// Receive dispatches cmd to its registered handler, if any.
func (b Behavior[S, E]) Receive(cmd any, state S) Outcome[E] {
	handler, ok := b.receivers[reflect.TypeOf(cmd)]
	if !ok {
		return Unhandled[E]()
	}
	return handler(cmd, state)
}

// Handles reports whether this Behavior has a command handler registered
// for the concrete type of cmd.
func (b Behavior[S, E]) Handles(cmd any) bool {
	_, ok := b.receivers[reflect.TypeOf(cmd)]
	return ok
}

// Apply folds event into state using its registered applier. It returns
// ErrUnsupportedEventInCurrentBehavior if no applier is registered.
func (b Behavior[S, E]) Apply(event any, state S) (S, error) {
	applier, ok := b.appliers[reflect.TypeOf(event)]
	if !ok {
		var zero S
		return zero, ErrUnsupportedEventInCurrentBehavior
	}
	return applier(event, state)
}

// Blueprint describes an aggregate type: its eden behavior (active before
// any event has been persisted) and the behavior_for dispatch function
// choosing a Behavior from the current folded state. A Blueprint is built
// once (typically at program startup) and is safe for concurrent use
// thereafter.
type Blueprint[S any, E any] struct {
	AggregateType string
	Eden          Behavior[S, E]
	BehaviorFor   func(state S) Behavior[S, E]
}

// behaviorAt returns the Behavior active when the aggregate is at the given
// version (0 meaning no events yet persisted, i.e. still in eden).
func (bp Blueprint[S, E]) behaviorAt(version int64, state S) Behavior[S, E] {
	if version == 0 {
		return bp.Eden
	}
	return bp.BehaviorFor(state)
}
