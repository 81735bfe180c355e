// Package scheduler runs a sync job on a cron schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	appLog "eacal/internal/log"
)

// ErrBusy is returned by Trigger while a run is already in progress.
var ErrBusy = errors.New("sync already running")

// Job is one unit of scheduled work.
type Job func(ctx context.Context)

// Scheduler fires a Job on a cron spec. At most one run is in flight at a
// time, whether it was started by the schedule or by Trigger.
type Scheduler struct {
	spec     string
	schedule cron.Schedule
	loc      *time.Location
	job      Job

	running atomic.Bool
}

// New parses spec (standard five-field cron or a descriptor such as
// "@hourly" or "@every 10m") and returns a scheduler for job.
func New(spec string, loc *time.Location, job Job) (*Scheduler, error) {
	if job == nil {
		return nil, errors.New("scheduler: nil job")
	}
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", spec, err)
	}
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{spec: spec, schedule: sched, loc: loc, job: job}, nil
}

// Next returns the first activation after t.
func (s *Scheduler) Next(t time.Time) time.Time {
	return s.schedule.Next(t.In(s.loc))
}

// Running reports whether a run is in progress.
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

// Trigger runs the job now and blocks until it returns. It returns ErrBusy
// without running anything if another run is in progress.
func (s *Scheduler) Trigger(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer s.running.Store(false)

	s.job(ctx)
	return nil
}

// Start runs the schedule until ctx is canceled, then waits for an
// in-flight run to finish.
func (s *Scheduler) Start(ctx context.Context) error {
	logger := cronLogger{}
	c := cron.New(
		cron.WithLocation(s.loc),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger)),
	)
	c.Schedule(s.schedule, cron.FuncJob(func() {
		if err := s.Trigger(ctx); errors.Is(err, ErrBusy) {
			appLog.Warn("scheduled sync skipped, previous run still in progress", "schedule", s.spec)
		}
	}))

	appLog.Info("scheduler started", "schedule", s.spec, "timezone", s.loc.String(), "next", s.Next(time.Now()).Format(time.RFC3339))
	c.Start()

	<-ctx.Done()

	stopped := c.Stop()
	<-stopped.Done()
	appLog.Info("scheduler stopped")
	return nil
}

// cronLogger routes cron's own logging into the application log.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	appLog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	appLog.Error("cron: "+msg, err, keysAndValues...)
}
