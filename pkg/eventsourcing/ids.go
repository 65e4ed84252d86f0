package eventsourcing

import (
	"crypto/rand"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// TimeFunc is the clock used throughout the package. Tests may override it
// to produce deterministic timestamps.
var TimeFunc = time.Now

// NewEventID returns a caller-facing opaque event identifier.
func NewEventID() string {
	return uuid.New().String()
}

// NewSortableID returns a time-sortable identifier. The runtime uses it as
// the causation id of a command handled with neither a causation id nor a
// command id.
func NewSortableID() string {
	return ulid.MustNew(ulid.Timestamp(TimeFunc()), rand.Reader).String()
}
