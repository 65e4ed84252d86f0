// Package offsettracker defines the durable bookkeeping the HTTP event-source
// consumer (pkg/subscription) uses to remember, per subscription name, how
// far into a remote event feed it has already progressed.
package offsettracker

import "context"

// OffsetState is either NoOffset (the subscription has never saved a
// checkpoint) or a concrete last-processed value. The zero value is
// NoOffset.
type OffsetState struct {
	has   bool
	value int64
}

// NoOffset is the state of a subscription that has never saved a checkpoint.
var NoOffset = OffsetState{}

// LastProcessed returns the OffsetState recording value as the last offset
// successfully processed.
func LastProcessed(value int64) OffsetState {
	return OffsetState{has: true, value: value}
}

// HasValue reports whether this state carries a concrete offset.
func (s OffsetState) HasValue() bool { return s.has }

// Value returns the concrete offset. Only meaningful when HasValue is true.
func (s OffsetState) Value() int64 { return s.value }

// Tracker persists the last-processed offset for a named subscription.
// Implementations must make SaveOffset durable before it returns
// successfully; a save of an offset older than the one already stored is
// allowed — callers are responsible for only ever saving offsets in
// processing order.
type Tracker interface {
	// GetOffset returns the subscription's current OffsetState. A
	// subscription that has never saved an offset reads as NoOffset, not an
	// error.
	GetOffset(ctx context.Context, subscriptionName string) (OffsetState, error)

	// SaveOffset durably records value as the last offset processed by
	// subscriptionName, creating the record on first save.
	SaveOffset(ctx context.Context, subscriptionName string, value int64) error
}
