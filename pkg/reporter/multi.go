package reporter

import "sync/atomic"

// MultiReporter fans a notification out to a set of Reporters. Reporters can
// be added at any time; readers always see a consistent snapshot taken via a
// copy-on-write pointer swap, so Add never blocks a concurrent notification.
type MultiReporter struct {
	reporters atomic.Pointer[[]Reporter]
}

// NewMultiReporter creates a MultiReporter fanning out to the given initial
// set of reporters.
func NewMultiReporter(reporters ...Reporter) *MultiReporter {
	m := &MultiReporter{}
	snapshot := append([]Reporter(nil), reporters...)
	m.reporters.Store(&snapshot)
	return m
}

// Add appends r to the fan-out set.
func (m *MultiReporter) Add(r Reporter) {
	for {
		old := m.reporters.Load()
		next := append(append([]Reporter(nil), *old...), r)
		if m.reporters.CompareAndSwap(old, &next) {
			return
		}
	}
}

func (m *MultiReporter) snapshot() []Reporter {
	p := m.reporters.Load()
	if p == nil {
		return nil
	}
	return *p
}

func (m *MultiReporter) CommandReceived(aggregateType, aggregateID string) {
	for _, r := range m.snapshot() {
		r.CommandReceived(aggregateType, aggregateID)
	}
}

func (m *MultiReporter) CommandDeduplicated(aggregateType, aggregateID, commandID string) {
	for _, r := range m.snapshot() {
		r.CommandDeduplicated(aggregateType, aggregateID, commandID)
	}
}

func (m *MultiReporter) CommandRejected(aggregateType, aggregateID string, err error) {
	for _, r := range m.snapshot() {
		r.CommandRejected(aggregateType, aggregateID, err)
	}
}

func (m *MultiReporter) EventsPersisted(aggregateType, aggregateID string, count int) {
	for _, r := range m.snapshot() {
		r.EventsPersisted(aggregateType, aggregateID, count)
	}
}

func (m *MultiReporter) SnapshotSaved(aggregateType, aggregateID string, version int64) {
	for _, r := range m.snapshot() {
		r.SnapshotSaved(aggregateType, aggregateID, version)
	}
}

func (m *MultiReporter) BackendError(aggregateType, aggregateID string, err error) {
	for _, r := range m.snapshot() {
		r.BackendError(aggregateType, aggregateID, err)
	}
}

func (m *MultiReporter) PageFetched(subscription string, eventCount int) {
	for _, r := range m.snapshot() {
		r.PageFetched(subscription, eventCount)
	}
}

func (m *MultiReporter) EventHandled(subscription, eventType string) {
	for _, r := range m.snapshot() {
		r.EventHandled(subscription, eventType)
	}
}

func (m *MultiReporter) EventSkipped(subscription, eventType string) {
	for _, r := range m.snapshot() {
		r.EventSkipped(subscription, eventType)
	}
}

func (m *MultiReporter) HandlerFailed(subscription, eventType string, err error) {
	for _, r := range m.snapshot() {
		r.HandlerFailed(subscription, eventType, err)
	}
}

func (m *MultiReporter) OffsetSaved(subscription string, offset int64) {
	for _, r := range m.snapshot() {
		r.OffsetSaved(subscription, offset)
	}
}

var _ Reporter = (*MultiReporter)(nil)
