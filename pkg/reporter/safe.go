package reporter

import "log/slog"

// SafeReporter wraps an inner Reporter and recovers from panics inside its
// methods, logging them instead of letting them propagate into the caller's
// command or consumer loop. A reporter is an observability side channel; it
// must never be able to take down the operation it is watching.
type SafeReporter struct {
	inner  Reporter
	logger *slog.Logger
}

// NewSafeReporter wraps inner. If logger is nil, slog.Default() is used.
func NewSafeReporter(inner Reporter, logger *slog.Logger) *SafeReporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &SafeReporter{inner: inner, logger: logger}
}

func (s *SafeReporter) guard(method string) {
	if r := recover(); r != nil {
		s.logger.Error("reporter panicked", "method", method, "recover", r)
	}
}

func (s *SafeReporter) CommandReceived(aggregateType, aggregateID string) {
	defer s.guard("CommandReceived")
	s.inner.CommandReceived(aggregateType, aggregateID)
}

func (s *SafeReporter) CommandDeduplicated(aggregateType, aggregateID, commandID string) {
	defer s.guard("CommandDeduplicated")
	s.inner.CommandDeduplicated(aggregateType, aggregateID, commandID)
}

func (s *SafeReporter) CommandRejected(aggregateType, aggregateID string, err error) {
	defer s.guard("CommandRejected")
	s.inner.CommandRejected(aggregateType, aggregateID, err)
}

func (s *SafeReporter) EventsPersisted(aggregateType, aggregateID string, count int) {
	defer s.guard("EventsPersisted")
	s.inner.EventsPersisted(aggregateType, aggregateID, count)
}

func (s *SafeReporter) SnapshotSaved(aggregateType, aggregateID string, version int64) {
	defer s.guard("SnapshotSaved")
	s.inner.SnapshotSaved(aggregateType, aggregateID, version)
}

func (s *SafeReporter) BackendError(aggregateType, aggregateID string, err error) {
	defer s.guard("BackendError")
	s.inner.BackendError(aggregateType, aggregateID, err)
}

func (s *SafeReporter) PageFetched(subscription string, eventCount int) {
	defer s.guard("PageFetched")
	s.inner.PageFetched(subscription, eventCount)
}

func (s *SafeReporter) EventHandled(subscription, eventType string) {
	defer s.guard("EventHandled")
	s.inner.EventHandled(subscription, eventType)
}

func (s *SafeReporter) EventSkipped(subscription, eventType string) {
	defer s.guard("EventSkipped")
	s.inner.EventSkipped(subscription, eventType)
}

func (s *SafeReporter) HandlerFailed(subscription, eventType string, err error) {
	defer s.guard("HandlerFailed")
	s.inner.HandlerFailed(subscription, eventType, err)
}

func (s *SafeReporter) OffsetSaved(subscription string, offset int64) {
	defer s.guard("OffsetSaved")
	s.inner.OffsetSaved(subscription, offset)
}

var _ Reporter = (*SafeReporter)(nil)
