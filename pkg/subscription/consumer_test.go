package subscription_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brackenhill/eventflow/pkg/mapper"
	"github.com/brackenhill/eventflow/pkg/offsettracker/memory"
	"github.com/brackenhill/eventflow/pkg/scheduler"
	"github.com/brackenhill/eventflow/pkg/subscription"
)

type widgetCreated struct {
	Name string `json:"name"`
}

func feedConfigFor(t *testing.T, srv *httptest.Server, name string) subscription.StaticFeedConfig {
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)
	return subscription.StaticFeedConfig{
		Protocol: "http",
		Host:     u.Hostname(),
		Port:     port,
		Path:     "/events",
		DefaultSettings: subscription.SubscriptionSettings{
			BatchSize:      10,
			RepeatSchedule: 20 * time.Millisecond,
			Timeout:        time.Second,
		},
	}
}

func newMapperDecoder() subscription.MapperDecoder {
	m := mapper.New(mapper.JSONCodec{})
	mapper.Register[widgetCreated](m, "WidgetCreated", 1)
	return subscription.MapperDecoder{Mapper: m}
}

func TestSubscribeRejectsUnknownEventType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	c := subscription.New(feedConfigFor(t, srv, "s"), newMapperDecoder(), memory.New(), scheduler.New())
	err := c.Subscribe(context.Background(), subscription.SubscriberConfig{Name: "s"}, nil, []subscription.EventTypeBinding{
		{TypeName: "DoesNotExist", Handler: func(ctx context.Context, event any) error { return nil }},
	})
	require.Error(t, err)
}

func TestSubscribeSkipsScheduleWhenDisabled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("disabled subscription must never poll")
	}))
	defer srv.Close()

	feed := feedConfigFor(t, srv, "s")
	feed.PerName = map[string]subscription.SubscriptionSettings{"s": {Disabled: true}}

	c := subscription.New(feed, newMapperDecoder(), memory.New(), scheduler.New())
	err := c.Subscribe(context.Background(), subscription.SubscriberConfig{Name: "s"}, nil, nil)
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
}

func TestSubscribeDecodesAndDispatchesInOrderAndSavesOffset(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := requests.Add(1)
		q := r.URL.Query()

		if n == 1 {
			assert.Equal(t, "-1", q.Get("after_offset"))
			_ = json.NewEncoder(w).Encode(map[string]any{
				"events": []map[string]any{
					{"id": "e1", "aggregate_id": "a1", "causation_id": "c1", "sequence_number": 1, "offset": 0, "type": "WidgetCreated", "payload": map[string]string{"name": "first"}},
					{"id": "e2", "aggregate_id": "a2", "causation_id": "c2", "sequence_number": 1, "offset": 1, "type": "WidgetCreated", "payload": map[string]string{"name": "second"}},
				},
				"query_max_offset":  1,
				"global_max_offset": 1,
				"page_start_offset": 0,
				"page_end_offset":   1,
			})
			return
		}

		assert.Equal(t, "1", q.Get("after_offset"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"events":            []map[string]any{},
			"query_max_offset":  1,
			"global_max_offset": 1,
			"page_start_offset": 2,
			"page_end_offset":   1,
		})
	}))
	defer srv.Close()

	tracker := memory.New()
	var handled []string
	c := subscription.New(feedConfigFor(t, srv, "s"), newMapperDecoder(), tracker, scheduler.New())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err := c.Subscribe(ctx, subscription.SubscriberConfig{Name: "s", EdenPolicy: subscription.BeginningOfTime}, []string{"widget"}, []subscription.EventTypeBinding{
		{TypeName: "WidgetCreated", Handler: func(ctx context.Context, event any) error {
			w := event.(*widgetCreated)
			handled = append(handled, w.Name)
			return nil
		}},
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(handled) == 2
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"first", "second"}, handled)

	require.Eventually(t, func() bool {
		state, err := tracker.GetOffset(context.Background(), "s")
		return err == nil && state.HasValue() && state.Value() == 1
	}, time.Second, 5*time.Millisecond)
}

func TestSubscribeSkipsUnregisteredEventTypeSilently(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"events": []map[string]any{
				{"id": "e1", "aggregate_id": "a1", "sequence_number": 1, "offset": 0, "type": "UnknownType", "payload": map[string]string{}},
			},
			"query_max_offset":  0,
			"global_max_offset": 0,
			"page_start_offset": 0,
			"page_end_offset":   0,
		})
	}))
	defer srv.Close()

	tracker := memory.New()
	c := subscription.New(feedConfigFor(t, srv, "s"), newMapperDecoder(), tracker, scheduler.New())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	called := false
	err := c.Subscribe(ctx, subscription.SubscriberConfig{Name: "s"}, nil, []subscription.EventTypeBinding{
		{TypeName: "WidgetCreated", Handler: func(ctx context.Context, event any) error {
			called = true
			return nil
		}},
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		state, err := tracker.GetOffset(context.Background(), "s")
		return err == nil && state.HasValue() && state.Value() == 0
	}, time.Second, 5*time.Millisecond)
	assert.False(t, called)
}
