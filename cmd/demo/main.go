// Command demo wires the User aggregate to an in-memory runtime and an HTTP
// event-feed consumer, and runs both under runner.Runner until interrupted.
// It exists to exercise the whole stack end to end, not as a deployable
// service.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"time"

	_ "modernc.org/sqlite"

	"github.com/brackenhill/eventflow/examples/user"
	"github.com/brackenhill/eventflow/pkg/eventsourcing"
	"github.com/brackenhill/eventflow/pkg/eventsourcing/memorybackend"
	"github.com/brackenhill/eventflow/pkg/mapper"
	"github.com/brackenhill/eventflow/pkg/reporter"
	"github.com/brackenhill/eventflow/pkg/runner"
	"github.com/brackenhill/eventflow/pkg/scheduler"
	"github.com/brackenhill/eventflow/pkg/sqlite"
	"github.com/brackenhill/eventflow/pkg/subscription"
)

type slogRunnerLogger struct{ l *slog.Logger }

func (s slogRunnerLogger) Info(msg string, kv ...interface{})  { s.l.Info(msg, kv...) }
func (s slogRunnerLogger) Error(msg string, kv ...interface{}) { s.l.Error(msg, kv...) }
func (s slogRunnerLogger) Debug(msg string, kv ...interface{}) { s.l.Debug(msg, kv...) }

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	rep := reporter.NewSafeReporter(reporter.NewMultiReporter(reporter.NewOtelReporter()), logger)

	backend := memorybackend.New()
	rt := eventsourcing.NewRuntime[any, any, user.State](
		user.Blueprint,
		backend,
		eventsourcing.WithConfig[any, any, user.State](eventsourcing.StaticConfig{
			Default: eventsourcing.AggregateConfig{SnapshotEvery: 50, DedupWindow: eventsourcing.KeepForever},
		}),
		eventsourcing.WithReporter[any, any, user.State](rep),
	)

	db, err := sql.Open("sqlite", "file:demo-offsets.db?mode=memory&cache=shared")
	if err != nil {
		logger.Error("open offset store", "error", err)
		os.Exit(1)
	}
	offsets, err := sqlite.NewOffsetStore(db)
	if err != nil {
		logger.Error("build offset store", "error", err)
		os.Exit(1)
	}

	decoderMapper := mapper.New(mapper.JSONCodec{})
	mapper.Register[user.UserRegistered](decoderMapper, "UserRegistered", 1)
	decoder := subscription.MapperDecoder{Mapper: decoderMapper}

	feed := subscription.StaticFeedConfig{
		Protocol: "http",
		Host:     "localhost",
		Port:     8080,
		Path:     "/events",
		DefaultSettings: subscription.SubscriptionSettings{
			BatchSize:      100,
			RepeatSchedule: 2 * time.Second,
			Timeout:        10 * time.Second,
		},
	}

	consumer := subscription.New(feed, decoder, offsets, scheduler.New(),
		subscription.WithReporter(rep),
		subscription.WithLogger(logger),
	)

	subscriptionService := subscription.NewService("user-events", consumer, func(ctx context.Context, c *subscription.Consumer) error {
		return c.Subscribe(ctx, subscription.SubscriberConfig{Name: "user-events", EdenPolicy: subscription.FromNow}, nil,
			[]subscription.EventTypeBinding{
				{TypeName: "UserRegistered", Handler: func(ctx context.Context, event any) error {
					evt := event.(*user.UserRegistered)
					logger.Info("observed remote registration", "username", evt.Username)
					return nil
				}},
			})
	})

	r := runner.New([]runner.Service{subscriptionService}, runner.WithLogger(slogRunnerLogger{l: logger}))

	ctx := context.Background()
	result := rt.HandleCommand(ctx, "demo-user", user.RegisterUser{Username: "joebloggs", Password: "correct horse battery staple"})
	if !result.Successful() {
		logger.Error("demo registration failed", "kind", result.Kind)
	} else {
		fmt.Printf("registered demo-user with %d event(s)\n", len(result.Events))
	}

	if err := r.Run(ctx); err != nil {
		logger.Error("runner exited with error", "error", err)
		os.Exit(1)
	}
}
