package reporter

import (
	"context"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// OtelReporter adapts Reporter notifications onto OpenTelemetry counters and
// spans. It never configures an exporter or SDK itself: callers wire their
// own tracer/meter providers in, same as any other otel instrumentation
// point. With no provider supplied it defaults to the no-op implementations,
// so enabling it costs nothing until a real provider is attached.
type OtelReporter struct {
	tracer trace.Tracer

	commandsReceived     metric.Int64Counter
	commandsDeduplicated metric.Int64Counter
	commandsRejected     metric.Int64Counter
	eventsPersisted      metric.Int64Counter
	snapshotsSaved       metric.Int64Counter
	backendErrors        metric.Int64Counter

	pagesFetched   metric.Int64Counter
	eventsHandled  metric.Int64Counter
	eventsSkipped  metric.Int64Counter
	handlerFailures metric.Int64Counter
	offsetSaves    metric.Int64Counter
}

// OtelOption configures an OtelReporter.
type OtelOption func(*otelConfig)

type otelConfig struct {
	tracer trace.Tracer
	meter  metric.Meter
}

// WithTracer sets the trace.Tracer used for per-command spans.
func WithTracer(tracer trace.Tracer) OtelOption {
	return func(c *otelConfig) { c.tracer = tracer }
}

// WithMeter sets the metric.Meter used to create instruments.
func WithMeter(meter metric.Meter) OtelOption {
	return func(c *otelConfig) { c.meter = meter }
}

// NewOtelReporter builds an OtelReporter. Unset tracer/meter default to the
// no-op implementations.
func NewOtelReporter(opts ...OtelOption) *OtelReporter {
	cfg := otelConfig{tracer: noop.NewTracerProvider().Tracer("eventflow")}
	for _, opt := range opts {
		opt(&cfg)
	}

	o := &OtelReporter{tracer: cfg.tracer}
	if cfg.meter == nil {
		return o
	}

	o.commandsReceived, _ = cfg.meter.Int64Counter("eventflow.commands.received", metric.WithDescription("commands received by the aggregate runtime"))
	o.commandsDeduplicated, _ = cfg.meter.Int64Counter("eventflow.commands.deduplicated", metric.WithDescription("commands recognized as duplicates"))
	o.commandsRejected, _ = cfg.meter.Int64Counter("eventflow.commands.rejected", metric.WithDescription("commands rejected by aggregate business logic"))
	o.eventsPersisted, _ = cfg.meter.Int64Counter("eventflow.events.persisted", metric.WithDescription("events appended to the backend"), metric.WithUnit("{event}"))
	o.snapshotsSaved, _ = cfg.meter.Int64Counter("eventflow.snapshots.saved", metric.WithDescription("snapshots written to the backend"))
	o.backendErrors, _ = cfg.meter.Int64Counter("eventflow.backend.errors", metric.WithDescription("backend operations that returned an error"))
	o.pagesFetched, _ = cfg.meter.Int64Counter("eventflow.feed.pages_fetched", metric.WithDescription("pages fetched from the event feed"))
	o.eventsHandled, _ = cfg.meter.Int64Counter("eventflow.feed.events_handled", metric.WithDescription("feed events successfully handled"), metric.WithUnit("{event}"))
	o.eventsSkipped, _ = cfg.meter.Int64Counter("eventflow.feed.events_skipped", metric.WithDescription("feed events skipped by the mapper"))
	o.handlerFailures, _ = cfg.meter.Int64Counter("eventflow.feed.handler_failures", metric.WithDescription("feed handler invocations that returned an error"))
	o.offsetSaves, _ = cfg.meter.Int64Counter("eventflow.feed.offset_saves", metric.WithDescription("offset checkpoints persisted"))
	return o
}

func (o *OtelReporter) span(aggregateType, name string) (context.Context, trace.Span) {
	return o.tracer.Start(context.Background(), name, trace.WithAttributes())
}

func (o *OtelReporter) CommandReceived(aggregateType, aggregateID string) {
	_, span := o.span(aggregateType, "eventflow.command_received")
	defer span.End()
	if o.commandsReceived != nil {
		o.commandsReceived.Add(context.Background(), 1)
	}
}

func (o *OtelReporter) CommandDeduplicated(aggregateType, aggregateID, commandID string) {
	if o.commandsDeduplicated != nil {
		o.commandsDeduplicated.Add(context.Background(), 1)
	}
}

func (o *OtelReporter) CommandRejected(aggregateType, aggregateID string, err error) {
	if o.commandsRejected != nil {
		o.commandsRejected.Add(context.Background(), 1)
	}
}

func (o *OtelReporter) EventsPersisted(aggregateType, aggregateID string, count int) {
	if o.eventsPersisted != nil {
		o.eventsPersisted.Add(context.Background(), int64(count))
	}
}

func (o *OtelReporter) SnapshotSaved(aggregateType, aggregateID string, version int64) {
	if o.snapshotsSaved != nil {
		o.snapshotsSaved.Add(context.Background(), 1)
	}
}

func (o *OtelReporter) BackendError(aggregateType, aggregateID string, err error) {
	if o.backendErrors != nil {
		o.backendErrors.Add(context.Background(), 1)
	}
}

func (o *OtelReporter) PageFetched(subscription string, eventCount int) {
	if o.pagesFetched != nil {
		o.pagesFetched.Add(context.Background(), 1)
	}
}

func (o *OtelReporter) EventHandled(subscription, eventType string) {
	if o.eventsHandled != nil {
		o.eventsHandled.Add(context.Background(), 1)
	}
}

func (o *OtelReporter) EventSkipped(subscription, eventType string) {
	if o.eventsSkipped != nil {
		o.eventsSkipped.Add(context.Background(), 1)
	}
}

func (o *OtelReporter) HandlerFailed(subscription, eventType string, err error) {
	if o.handlerFailures != nil {
		o.handlerFailures.Add(context.Background(), 1)
	}
}

func (o *OtelReporter) OffsetSaved(subscription string, offset int64) {
	if o.offsetSaves != nil {
		o.offsetSaves.Add(context.Background(), 1)
	}
}

var _ Reporter = (*OtelReporter)(nil)
