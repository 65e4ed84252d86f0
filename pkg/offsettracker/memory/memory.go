// Package memory is an in-memory reference implementation of
// offsettracker.Tracker, for tests and single-process use.
package memory

import (
	"context"
	"sync"

	"github.com/brackenhill/eventflow/pkg/offsettracker"
)

// Tracker is a goroutine-safe, in-memory offsettracker.Tracker. Nothing it
// stores survives process restart.
type Tracker struct {
	mu      sync.Mutex
	offsets map[string]int64
}

// New returns an empty Tracker.
func New() *Tracker {
	return &Tracker{offsets: make(map[string]int64)}
}

func (t *Tracker) GetOffset(ctx context.Context, subscriptionName string) (offsettracker.OffsetState, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	value, ok := t.offsets[subscriptionName]
	if !ok {
		return offsettracker.NoOffset, nil
	}
	return offsettracker.LastProcessed(value), nil
}

func (t *Tracker) SaveOffset(ctx context.Context, subscriptionName string, value int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.offsets[subscriptionName] = value
	return nil
}

var _ offsettracker.Tracker = (*Tracker)(nil)
