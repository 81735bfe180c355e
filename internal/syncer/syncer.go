// Package syncer mirrors a class timetable week into a calendar store.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"eacal/internal/calendar"
	"eacal/internal/lesson"
	appLog "eacal/internal/log"
	"eacal/internal/timetable"
)

// ErrNoLessons is returned when the fetched week holds no lessons, leaving
// nothing to anchor the calendar window on.
var ErrNoLessons = errors.New("no lessons fetched")

// Error is an invocation-level sync failure. Op names the failed step:
// "current_week", "fetch", "parse", "window", "list" or "apply".
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return "sync " + e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Action is the kind of calendar mutation.
type Action string

const (
	ActionAdd    Action = "add"
	ActionDelete Action = "delete"
)

// Mutation is reported to the progress callback once per attempted
// calendar change.
type Mutation struct {
	Action Action
	Lesson lesson.Lesson
	Err    error
	DryRun bool
}

// ProgressFunc receives mutations as they are applied.
type ProgressFunc func(Mutation)

// Syncer runs timetable → calendar synchronizations. Calls are sequential:
// one request is in flight at a time.
type Syncer struct {
	timetable timetable.Client
	parser    *timetable.Parser
	gateway   calendar.Gateway

	progress ProgressFunc
	dryRun   bool
	now      func() time.Time
	newRunID func() string
}

// Option configures a Syncer.
type Option func(*Syncer)

// WithParser replaces the default skip-and-continue parser in time.Local.
func WithParser(p *timetable.Parser) Option {
	return func(s *Syncer) {
		if p != nil {
			s.parser = p
		}
	}
}

// WithProgress sets the callback invoked for every mutation.
func WithProgress(fn ProgressFunc) Option {
	return func(s *Syncer) {
		s.progress = fn
	}
}

// WithDryRun makes Run compute and report the plan without applying it.
func WithDryRun(dryRun bool) Option {
	return func(s *Syncer) {
		s.dryRun = dryRun
	}
}

// WithClock sets the clock used for report timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Syncer) {
		s.now = now
	}
}

// New creates a Syncer reading from client and writing to gateway.
func New(client timetable.Client, gateway calendar.Gateway, opts ...Option) *Syncer {
	s := &Syncer{
		timetable: client,
		parser:    timetable.NewParser(nil, nil),
		gateway:   gateway,
		now:       time.Now,
		newRunID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunCurrent synchronizes the week the timetable service declares current.
func (s *Syncer) RunCurrent(ctx context.Context, class string) (Report, error) {
	week, err := s.timetable.CurrentWeek(ctx)
	if err != nil {
		r := s.newReport(class, -1)
		return s.finish(r, &Error{Op: "current_week", Err: err})
	}
	return s.Run(ctx, class, week)
}

// Run synchronizes one week of the class timetable into the calendar.
//
// Fetch, list and empty-week failures abort the run with an *Error. A
// failed add or delete is logged, recorded in the report and skipped.
// The returned report is filled in as far as the run got.
func (s *Syncer) Run(ctx context.Context, class string, week int) (Report, error) {
	r := s.newReport(class, week)
	appLog.Info("sync start", "run_id", r.RunID, "class", class, "week", week, "dry_run", s.dryRun)

	raw, err := s.timetable.FetchWeek(ctx, class, week)
	if err != nil {
		return s.finish(r, &Error{Op: "fetch", Err: err})
	}

	fetched, parseErrs := s.parser.Parse(raw.Days, raw.Definitions)
	for _, perr := range parseErrs {
		r.ParseErrors = append(r.ParseErrors, perr.Error())
	}
	if s.parser.Strict && len(parseErrs) > 0 {
		return s.finish(r, &Error{Op: "parse", Err: parseErrs[0]})
	}
	r.Fetched = len(fetched)

	window, ok := lesson.DeriveWindow(fetched)
	if !ok {
		return s.finish(r, &Error{Op: "window", Err: ErrNoLessons})
	}
	r.Window = window

	existing, err := s.gateway.ListLessons(ctx, window.Start, window.End)
	if err != nil {
		return s.finish(r, &Error{Op: "list", Err: err})
	}
	r.Existing = len(existing)

	plan := Reconcile(fetched, existing)
	r.Unchanged = len(plan.Unchanged)

	if s.dryRun {
		for _, l := range plan.ToDelete {
			r.Deleted = append(r.Deleted, l)
			s.report(Mutation{Action: ActionDelete, Lesson: l, DryRun: true})
		}
		for _, l := range plan.ToAdd {
			r.Added = append(r.Added, l)
			s.report(Mutation{Action: ActionAdd, Lesson: l, DryRun: true})
		}
		return s.finish(r, nil)
	}

	return s.finish(r, s.apply(ctx, plan, &r))
}

// apply issues deletions before additions, one at a time.
func (s *Syncer) apply(ctx context.Context, plan Plan, r *Report) error {
	for _, l := range plan.ToDelete {
		if err := ctx.Err(); err != nil {
			return &Error{Op: "apply", Err: err}
		}
		err := s.gateway.DeleteLesson(ctx, l)
		s.record(r, ActionDelete, l, err)
	}

	for _, l := range plan.ToAdd {
		if err := ctx.Err(); err != nil {
			return &Error{Op: "apply", Err: err}
		}
		err := s.gateway.AddLesson(ctx, l)
		s.record(r, ActionAdd, l, err)
	}

	return nil
}

func (s *Syncer) record(r *Report, action Action, l lesson.Lesson, err error) {
	s.report(Mutation{Action: action, Lesson: l, Err: err})

	if err != nil {
		appLog.Error("lesson "+string(action)+" failed", err, "run_id", r.RunID, "subject", l.Subject, "start", l.Start.Format(time.RFC3339))
		r.Failures = append(r.Failures, Failure{Action: action, Lesson: l, Reason: err.Error()})
		return
	}

	appLog.Debug("lesson "+string(action)+" done", "run_id", r.RunID, "subject", l.Subject, "start", l.Start.Format(time.RFC3339))
	switch action {
	case ActionAdd:
		r.Added = append(r.Added, l)
	case ActionDelete:
		r.Deleted = append(r.Deleted, l)
	}
}

func (s *Syncer) report(m Mutation) {
	if s.progress != nil {
		s.progress(m)
	}
}

func (s *Syncer) newReport(class string, week int) Report {
	return Report{
		RunID:     s.newRunID(),
		Class:     class,
		Week:      week,
		DryRun:    s.dryRun,
		StartedAt: s.now(),
	}
}

func (s *Syncer) finish(r Report, err error) (Report, error) {
	r.FinishedAt = s.now()
	if err != nil {
		r.Err = err.Error()
		appLog.Error("sync failed", err, "run_id", r.RunID, "class", r.Class, "week", r.Week)
		return r, err
	}
	appLog.Info("sync finished",
		"run_id", r.RunID,
		"class", r.Class,
		"week", r.Week,
		"fetched", r.Fetched,
		"existing", r.Existing,
		"added", len(r.Added),
		"deleted", len(r.Deleted),
		"unchanged", r.Unchanged,
		"failures", len(r.Failures),
		"parse_errors", len(r.ParseErrors),
		"took", r.FinishedAt.Sub(r.StartedAt).String(),
	)
	return r, nil
}

func (m Mutation) String() string {
	verb := "Added"
	if m.Action == ActionDelete {
		verb = "Deleted"
	}
	if m.DryRun {
		verb = "Would " + string(m.Action)
	}
	if m.Err != nil {
		return fmt.Sprintf("Failed to %s %s: %v", m.Action, m.Lesson.Subject, m.Err)
	}
	return verb + " " + m.Lesson.Subject
}
