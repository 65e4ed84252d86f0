// Package scheduler runs a Job on a repeating schedule: drain immediately
// while the job reports backlog, otherwise wait out the configured delay,
// and cancel any run that exceeds its timeout.
package scheduler

import (
	"context"
	"log/slog"
	"time"
)

// Job is one unit of scheduled work. Execute reports whether more work is
// already known to be waiting, in which case the scheduler re-invokes it
// immediately instead of waiting out the repeat schedule.
type Job interface {
	Execute(ctx context.Context) (hasBacklog bool, err error)
}

// JobFunc adapts a function to a Job.
type JobFunc func(ctx context.Context) (bool, error)

func (f JobFunc) Execute(ctx context.Context) (bool, error) { return f(ctx) }

// Scheduler runs jobs registered with ScheduleManyTimes, each on its own
// goroutine loop, until the context passed to ScheduleManyTimes for that job
// is cancelled.
type Scheduler struct {
	logger *slog.Logger
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger used to narrate job failures. Defaults to
// slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = logger }
}

// New creates a Scheduler with no jobs registered yet.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ScheduleManyTimes registers job to run repeatedly against ctx: immediately
// on registration, then again either right away (if the previous run
// reported backlog) or after repeatSchedule has elapsed. Each run is bounded
// by timeout; a run that exceeds it is cancelled and the next run is still
// scheduled after repeatSchedule. ScheduleManyTimes returns immediately; the
// job loop runs on its own goroutine until ctx is cancelled.
func (s *Scheduler) ScheduleManyTimes(ctx context.Context, repeatSchedule, timeout time.Duration, job Job) {
	go s.loop(ctx, repeatSchedule, timeout, job)
}

func (s *Scheduler) loop(ctx context.Context, repeatSchedule, timeout time.Duration, job Job) {
	for {
		hasBacklog := s.runOnce(ctx, timeout, job)
		if ctx.Err() != nil {
			return
		}
		if hasBacklog {
			continue
		}

		timer := time.NewTimer(repeatSchedule)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// runOnce executes job once, bounded by timeout, logging and treating a
// failure or a timeout as "no backlog" so the caller waits out the normal
// repeat schedule before retrying.
func (s *Scheduler) runOnce(ctx context.Context, timeout time.Duration, job Job) bool {
	runCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	hasBacklog, err := job.Execute(runCtx)
	if err != nil {
		if runCtx.Err() != nil && ctx.Err() == nil {
			s.logger.Warn("scheduled job exceeded its timeout", "error", err)
		} else {
			s.logger.Warn("scheduled job failed", "error", err)
		}
		return false
	}
	return hasBacklog
}
