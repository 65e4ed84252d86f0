// Package subscription pulls a remote bounded context's event feed over
// HTTP, tracks per-subscription offsets, and dispatches decoded events to
// registered handlers under a scheduled, backlog-draining polling loop.
package subscription

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/brackenhill/eventflow/pkg/offsettracker"
	"github.com/brackenhill/eventflow/pkg/reporter"
	"github.com/brackenhill/eventflow/pkg/scheduler"
)

// Handler processes one decoded event. A non-nil error fails the tick: the
// offset is not advanced past this event (offsets of the events handled
// before it on the page stay saved), and the next scheduled run fetches
// again from the last saved offset, so this event is delivered again.
type Handler func(ctx context.Context, event any) error

// EventTypeBinding pairs a wire type name with the Handler that processes
// values decoded for it.
type EventTypeBinding struct {
	TypeName string
	Handler  Handler
}

// remoteEvent is one entry of the feed's JSON page response (§6).
type remoteEvent struct {
	ID             string          `json:"id"`
	AggregateID    string          `json:"aggregate_id"`
	CausationID    string          `json:"causation_id"`
	CorrelationID  *string         `json:"correlation_id"`
	SequenceNumber int64           `json:"sequence_number"`
	Offset         int64           `json:"offset"`
	Type           string          `json:"type"`
	Payload        json.RawMessage `json:"payload"`
}

// pageResponse is the feed's full JSON page response (§6).
type pageResponse struct {
	Events          []remoteEvent `json:"events"`
	QueryMaxOffset  int64         `json:"query_max_offset"`
	GlobalMaxOffset int64         `json:"global_max_offset"`
	PageStartOffset int64         `json:"page_start_offset"`
	PageEndOffset   int64         `json:"page_end_offset"`
}

// DecodedEvent is a remoteEvent with its payload resolved to a Go value. The
// consumer does not build it: a Handler receives only the decoded value.
type DecodedEvent struct {
	ID             string
	AggregateID    string
	CausationID    string
	CorrelationID  string
	SequenceNumber int64
	Offset         int64
	Type           string
	Value          any
}

// Consumer polls a remote event feed on behalf of any number of named
// subscriptions, each registered via Subscribe.
type Consumer struct {
	feed       FeedConfig
	decoder    Decoder
	tracker    offsettracker.Tracker
	scheduler  *scheduler.Scheduler
	httpClient *http.Client
	report     reporter.Reporter
	logger     *slog.Logger
	now        func() time.Time
}

// Option configures a Consumer at construction time.
type Option func(*Consumer)

// WithHTTPClient sets the client used to fetch the remote feed. Defaults to
// http.DefaultClient.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Consumer) { c.httpClient = client }
}

// WithReporter sets the Reporter notified of page-fetched, event-handled,
// event-skipped, handler-failed, and offset-saved activity.
func WithReporter(rep reporter.Reporter) Option {
	return func(c *Consumer) { c.report = rep }
}

// WithLogger sets the logger used for operational narration (fetch
// failures, disabled subscriptions). Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Consumer) { c.logger = logger }
}

// WithNow overrides the clock used to capture FromNow's eden timestamp.
// Intended for tests.
func WithNow(now func() time.Time) Option {
	return func(c *Consumer) { c.now = now }
}

// New builds a Consumer. feed addresses and tunes the remote endpoint,
// decoder resolves wire type names to Go values, tracker persists offsets,
// and sched runs each subscription's polling job.
func New(feed FeedConfig, decoder Decoder, tracker offsettracker.Tracker, sched *scheduler.Scheduler, opts ...Option) *Consumer {
	c := &Consumer{
		feed:       feed,
		decoder:    decoder,
		tracker:    tracker,
		scheduler:  sched,
		httpClient: http.DefaultClient,
		report:     reporter.NoopReporter{},
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Subscribe registers a named subscription: each binding's TypeName is
// validated against the decoder up front, so an unrecognized event type
// fails loudly at registration time rather than silently at dispatch time.
// If the subscription is disabled via FeedConfig.Enabled, Subscribe logs and
// returns nil without scheduling anything.
func (c *Consumer) Subscribe(ctx context.Context, cfg SubscriberConfig, tags []string, bindings []EventTypeBinding) error {
	handlers := make(map[string]Handler, len(bindings))
	for _, b := range bindings {
		if !c.decoder.Knows(b.TypeName) {
			return fmt.Errorf("subscription %s: no decoder registered for event type %q", cfg.Name, b.TypeName)
		}
		handlers[b.TypeName] = b.Handler
	}

	if !c.feed.Enabled(cfg.Name) {
		c.logger.Info("subscription disabled", "subscription", cfg.Name)
		return nil
	}

	job := &pollJob{
		consumer:  c,
		name:      cfg.Name,
		tags:      tags,
		edenPolicy: cfg.EdenPolicy,
		createdAt: c.now(),
		handlers:  handlers,
	}

	repeat := c.feed.RepeatScheduleFor(cfg.Name)
	timeout := c.feed.TimeoutFor(cfg.Name)
	c.scheduler.ScheduleManyTimes(ctx, repeat, timeout, job)
	return nil
}

// pollJob is the scheduler.Job backing one subscription's polling loop.
type pollJob struct {
	consumer   *Consumer
	name       string
	tags       []string
	edenPolicy EdenPolicy
	createdAt  time.Time
	handlers   map[string]Handler
}

func (j *pollJob) Execute(ctx context.Context) (bool, error) {
	c := j.consumer

	offset, err := c.tracker.GetOffset(ctx, j.name)
	if err != nil {
		return false, fmt.Errorf("get offset for %s: %w", j.name, err)
	}

	batchSize := c.feed.BatchSizeFor(j.name)
	page, err := c.fetchPage(ctx, j, offset, batchSize)
	if err != nil {
		return false, fmt.Errorf("fetch page for %s: %w", j.name, err)
	}
	c.report.PageFetched(j.name, len(page.Events))

	if len(page.Events) == 0 {
		derived := maxInt64(page.QueryMaxOffset, page.GlobalMaxOffset)
		if batchSize > 0 && derived > -1 {
			if err := c.tracker.SaveOffset(ctx, j.name, derived); err != nil {
				return false, fmt.Errorf("save derived offset for %s: %w", j.name, err)
			}
			c.report.OffsetSaved(j.name, derived)
		}
		return false, nil
	}

	for _, evt := range page.Events {
		if err := c.dispatch(ctx, j, evt); err != nil {
			return false, fmt.Errorf("handle %s event %s: %w", evt.Type, evt.ID, err)
		}
		if err := c.tracker.SaveOffset(ctx, j.name, evt.Offset); err != nil {
			return false, fmt.Errorf("save offset for %s: %w", j.name, err)
		}
		c.report.OffsetSaved(j.name, evt.Offset)
	}

	hasBacklog := batchSize > 0 && page.PageEndOffset < page.QueryMaxOffset
	return hasBacklog, nil
}

// dispatch decodes one remote event and invokes its handler, if any is
// registered. An unrecognized or unhandled type is a silent skip, not an
// error.
func (c *Consumer) dispatch(ctx context.Context, j *pollJob, evt remoteEvent) error {
	value, ok, err := c.decoder.Decode(evt.Type, evt.Payload)
	if err != nil {
		c.report.HandlerFailed(j.name, evt.Type, err)
		return err
	}
	if !ok {
		c.report.EventSkipped(j.name, evt.Type)
		return nil
	}

	handler, ok := j.handlers[evt.Type]
	if !ok {
		c.report.EventSkipped(j.name, evt.Type)
		return nil
	}

	if err := handler(ctx, value); err != nil {
		c.report.HandlerFailed(j.name, evt.Type, err)
		return err
	}
	c.report.EventHandled(j.name, evt.Type)
	return nil
}

func (c *Consumer) fetchPage(ctx context.Context, j *pollJob, offset offsettracker.OffsetState, batchSize int) (pageResponse, error) {
	u := url.URL{
		Scheme: c.feed.EndpointProtocol(),
		Host:   fmt.Sprintf("%s:%d", c.feed.EndpointHost(), c.feed.EndpointPort()),
		Path:   c.feed.EndpointPath(),
	}

	q := url.Values{}
	if len(j.tags) > 0 {
		q.Set("tags", strings.Join(j.tags, ","))
	}
	if batchSize > 0 {
		q.Set("batch_size", strconv.Itoa(batchSize))
	}

	switch {
	case offset.HasValue():
		q.Set("after_offset", strconv.FormatInt(offset.Value(), 10))
	case j.edenPolicy == FromNow:
		q.Set("after_timestamp", j.createdAt.UTC().Format(time.RFC3339))
	default: // BeginningOfTime
		q.Set("after_offset", "-1")
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return pageResponse{}, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pageResponse{}, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return pageResponse{}, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var page pageResponse
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return pageResponse{}, fmt.Errorf("decode page: %w", err)
	}
	return page, nil
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
