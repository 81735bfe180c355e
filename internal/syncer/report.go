package syncer

import (
	"time"

	"eacal/internal/lesson"
)

// Failure records a single lesson mutation that did not go through.
type Failure struct {
	Action Action
	Lesson lesson.Lesson
	Reason string
}

// Report summarizes one sync run.
type Report struct {
	RunID  string
	Class  string
	Week   int // -1 when the current week could not be resolved
	DryRun bool

	Window   lesson.Window
	Fetched  int
	Existing int

	// Added and Deleted hold the applied (or, in a dry run, planned)
	// mutations.
	Added     []lesson.Lesson
	Deleted   []lesson.Lesson
	Unchanged int

	ParseErrors []string
	Failures    []Failure

	StartedAt  time.Time
	FinishedAt time.Time

	// Err is the invocation-level failure, if any.
	Err string
}

// OK reports whether the run finished without invocation-level or
// per-lesson failures.
func (r Report) OK() bool {
	return r.Err == "" && len(r.Failures) == 0
}
