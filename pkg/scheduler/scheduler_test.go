package scheduler_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brackenhill/eventflow/pkg/scheduler"
)

func TestScheduleManyTimesDrainsBacklogImmediately(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var runs atomic.Int32
	done := make(chan struct{})

	job := scheduler.JobFunc(func(ctx context.Context) (bool, error) {
		n := runs.Add(1)
		if n >= 5 {
			close(done)
			return false, nil
		}
		return true, nil
	})

	s := scheduler.New()
	// A long repeat schedule: if backlog draining didn't bypass it, the test
	// would time out waiting for 5 runs.
	s.ScheduleManyTimes(ctx, time.Hour, time.Second, job)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("backlog was not drained promptly")
	}
	assert.GreaterOrEqual(t, int(runs.Load()), 5)
}

func TestScheduleManyTimesWaitsOutRepeatScheduleWhenNoBacklog(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var runs atomic.Int32
	s := scheduler.New()
	s.ScheduleManyTimes(ctx, 100*time.Millisecond, time.Second, scheduler.JobFunc(func(ctx context.Context) (bool, error) {
		runs.Add(1)
		return false, nil
	}))

	time.Sleep(50 * time.Millisecond)
	firstCount := runs.Load()
	require.Equal(t, int32(1), firstCount)

	time.Sleep(120 * time.Millisecond)
	assert.Equal(t, int32(2), runs.Load())
}

func TestScheduleManyTimesRetriesFailedJobsOnNextTick(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var runs atomic.Int32
	s := scheduler.New()
	s.ScheduleManyTimes(ctx, 20*time.Millisecond, time.Second, scheduler.JobFunc(func(ctx context.Context) (bool, error) {
		n := runs.Add(1)
		if n == 1 {
			return false, errors.New("transient failure")
		}
		return false, nil
	}))

	require.Eventually(t, func() bool { return runs.Load() >= 2 }, time.Second, 5*time.Millisecond)
}

func TestScheduleManyTimesStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var runs atomic.Int32
	s := scheduler.New()
	s.ScheduleManyTimes(ctx, 10*time.Millisecond, time.Second, scheduler.JobFunc(func(ctx context.Context) (bool, error) {
		runs.Add(1)
		return false, nil
	}))

	require.Eventually(t, func() bool { return runs.Load() >= 1 }, time.Second, 5*time.Millisecond)
	cancel()

	stopped := runs.Load()
	time.Sleep(100 * time.Millisecond)
	assert.LessOrEqual(t, runs.Load()-stopped, int32(1), "job kept running after context cancellation")
}
