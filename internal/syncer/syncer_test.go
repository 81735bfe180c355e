package syncer

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eacal/internal/calendar"
	"eacal/internal/lesson"
	appLog "eacal/internal/log"
	"eacal/internal/timetable"
)

func init() {
	appLog.SetOutput(&bytes.Buffer{})
}

var testDefs = []timetable.SlotDefinition{
	{From: "08:00", To: "08:45"},
	{From: "08:50", To: "09:35"},
}

func testWeek() timetable.Week {
	return timetable.Week{
		Days: []timetable.RawDay{
			{Date: "17. 3.", Lessons: [][]timetable.Detail{
				{{Name: "Math", Room: "101", Teacher: "Smith"}},
				{{Name: "PE", Room: "Gym", Teacher: "Jones"}},
			}},
			{Date: "18. 3.", Lessons: [][]timetable.Detail{
				nil,
				{{Name: "English", Room: "201", Teacher: "Brown"}},
			}},
		},
		Definitions: testDefs,
	}
}

func newTestSyncer(tt *fakeTimetable, cal *fakeCalendar, opts ...Option) (*Syncer, *[]Mutation) {
	var muts []Mutation
	clock := time.Date(2025, 3, 16, 20, 0, 0, 0, cet)
	base := []Option{
		WithParser(timetable.NewParser(cet, func() time.Time { return clock })),
		WithProgress(func(m Mutation) { muts = append(muts, m) }),
		WithClock(func() time.Time { return clock }),
	}
	return New(tt, cal, append(base, opts...)...), &muts
}

func TestRunAddsIntoEmptyCalendar(t *testing.T) {
	tt := &fakeTimetable{weeks: map[int]timetable.Week{23: testWeek()}}
	cal := &fakeCalendar{}
	s, muts := newTestSyncer(tt, cal)

	r, err := s.Run(context.Background(), "R4C", 23)
	require.NoError(t, err)

	assert.True(t, r.OK())
	assert.NotEmpty(t, r.RunID)
	assert.Equal(t, "R4C", r.Class)
	assert.Equal(t, 23, r.Week)
	assert.Equal(t, 3, r.Fetched)
	assert.Equal(t, 0, r.Existing)
	assert.Len(t, r.Added, 3)
	assert.Empty(t, r.Deleted)
	assert.Equal(t, time.Date(2025, 3, 17, 0, 0, 0, 0, cet), r.Window.Start)
	assert.Equal(t, time.Date(2025, 3, 18, 23, 59, 59, 0, cet), r.Window.End)

	assert.Equal(t, []string{"list", "add Math", "add PE", "add English"}, cal.calls)
	require.Len(t, *muts, 3)
	assert.Equal(t, "Added Math", (*muts)[0].String())
}

func TestRunIsIdempotent(t *testing.T) {
	tt := &fakeTimetable{weeks: map[int]timetable.Week{23: testWeek()}}
	cal := &fakeCalendar{}
	s, _ := newTestSyncer(tt, cal)

	_, err := s.Run(context.Background(), "R4C", 23)
	require.NoError(t, err)
	cal.calls = nil

	r, err := s.Run(context.Background(), "R4C", 23)
	require.NoError(t, err)

	assert.Empty(t, r.Added)
	assert.Empty(t, r.Deleted)
	assert.Equal(t, 3, r.Unchanged)
	assert.Equal(t, []string{"list"}, cal.calls)
}

func TestRunDeletesBeforeAdding(t *testing.T) {
	week := testWeek()
	week.Days[0].Lessons[0][0].Room = "102"

	tt := &fakeTimetable{weeks: map[int]timetable.Week{23: week}}
	cal := &fakeCalendar{lessons: []lesson.Lesson{
		stored("evt-a", mk("Math", "101", 17, 8, 0)),
		{ID: "evt-b", Subject: "PE", Classroom: "Gym", Start: time.Date(2025, 3, 17, 8, 50, 0, 0, cet), End: time.Date(2025, 3, 17, 9, 35, 0, 0, cet)},
		stored("evt-c", mk("Cancelled", "5", 18, 8, 0)),
	}}
	s, muts := newTestSyncer(tt, cal)

	r, err := s.Run(context.Background(), "R4C", 23)
	require.NoError(t, err)

	assert.Equal(t, []string{"list", "delete Math", "delete Cancelled", "add Math", "add English"}, cal.calls)
	assert.Equal(t, 1, r.Unchanged)
	assert.Len(t, r.Deleted, 2)
	assert.Len(t, r.Added, 2)
	assert.Equal(t, "Deleted Math", (*muts)[0].String())
}

func TestRunContinuesAfterLessonFailure(t *testing.T) {
	tt := &fakeTimetable{weeks: map[int]timetable.Week{23: testWeek()}}
	cal := &fakeCalendar{
		lessons:   []lesson.Lesson{stored("evt-x", mk("Art", "3", 17, 10, 0))},
		addErrs:   map[string]error{"PE": errors.New("quota exceeded")},
		deleteErr: map[string]error{"Art": errors.New("forbidden")},
	}
	s, muts := newTestSyncer(tt, cal)

	r, err := s.Run(context.Background(), "R4C", 23)
	require.NoError(t, err)

	assert.False(t, r.OK())
	require.Len(t, r.Failures, 2)
	assert.Equal(t, ActionDelete, r.Failures[0].Action)
	assert.Equal(t, "Art", r.Failures[0].Lesson.Subject)
	assert.Equal(t, "forbidden", r.Failures[0].Reason)
	assert.Equal(t, ActionAdd, r.Failures[1].Action)
	assert.Equal(t, "PE", r.Failures[1].Lesson.Subject)

	assert.Len(t, r.Added, 2)
	assert.Equal(t, []string{"list", "delete Art", "add Math", "add PE", "add English"}, cal.calls)
	assert.Equal(t, "Failed to add PE: quota exceeded", (*muts)[2].String())
}

func TestRunMissingIDIsScopedToLesson(t *testing.T) {
	tt := &fakeTimetable{weeks: map[int]timetable.Week{23: testWeek()}}
	cal := &fakeCalendar{lessons: []lesson.Lesson{mk("Ghost", "0", 17, 11, 0)}}
	s, _ := newTestSyncer(tt, cal)

	r, err := s.Run(context.Background(), "R4C", 23)
	require.NoError(t, err)

	require.Len(t, r.Failures, 1)
	assert.Equal(t, calendar.ErrMissingID.Error(), r.Failures[0].Reason)
	assert.Len(t, r.Added, 3)
}

func TestRunSkipsMalformedLessons(t *testing.T) {
	week := testWeek()
	week.Days[1].Lessons = append(week.Days[1].Lessons, []timetable.Detail{{Name: "Overflow"}})

	tt := &fakeTimetable{weeks: map[int]timetable.Week{23: week}}
	cal := &fakeCalendar{}
	s, _ := newTestSyncer(tt, cal)

	r, err := s.Run(context.Background(), "R4C", 23)
	require.NoError(t, err)

	assert.Len(t, r.ParseErrors, 1)
	assert.Contains(t, r.ParseErrors[0], "Overflow")
	assert.Len(t, r.Added, 3)
}

func TestRunStrictParseAborts(t *testing.T) {
	week := testWeek()
	week.Days[1].Lessons = append(week.Days[1].Lessons, []timetable.Detail{{Name: "Overflow"}})

	parser := timetable.NewParser(cet, func() time.Time { return time.Date(2025, 3, 16, 0, 0, 0, 0, cet) })
	parser.Strict = true

	tt := &fakeTimetable{weeks: map[int]timetable.Week{23: week}}
	cal := &fakeCalendar{}
	s, _ := newTestSyncer(tt, cal, WithParser(parser))

	_, err := s.Run(context.Background(), "R4C", 23)

	var serr *Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "parse", serr.Op)
	assert.ErrorIs(t, err, timetable.ErrMissingDefinition)
	assert.Empty(t, cal.calls)
}

func TestRunFatalErrors(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name   string
		tt     *fakeTimetable
		cal    *fakeCalendar
		wantOp string
		want   error
	}{
		{
			name:   "fetch",
			tt:     &fakeTimetable{fetchErr: boom},
			cal:    &fakeCalendar{},
			wantOp: "fetch",
			want:   boom,
		},
		{
			name:   "empty week",
			tt:     &fakeTimetable{weeks: map[int]timetable.Week{23: {Definitions: testDefs}}},
			cal:    &fakeCalendar{},
			wantOp: "window",
			want:   ErrNoLessons,
		},
		{
			name:   "list",
			tt:     &fakeTimetable{weeks: map[int]timetable.Week{23: testWeek()}},
			cal:    &fakeCalendar{listErr: boom},
			wantOp: "list",
			want:   boom,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s, _ := newTestSyncer(tc.tt, tc.cal)

			r, err := s.Run(context.Background(), "R4C", 23)

			var serr *Error
			require.ErrorAs(t, err, &serr)
			assert.Equal(t, tc.wantOp, serr.Op)
			assert.ErrorIs(t, err, tc.want)
			assert.NotEmpty(t, r.Err)
			for _, call := range tc.cal.calls {
				assert.Equal(t, "list", call, "no mutation after a fatal error")
			}
		})
	}
}

func TestRunDryRun(t *testing.T) {
	tt := &fakeTimetable{weeks: map[int]timetable.Week{23: testWeek()}}
	cal := &fakeCalendar{lessons: []lesson.Lesson{stored("evt-x", mk("Art", "3", 17, 10, 0))}}
	s, muts := newTestSyncer(tt, cal, WithDryRun(true))

	r, err := s.Run(context.Background(), "R4C", 23)
	require.NoError(t, err)

	assert.True(t, r.DryRun)
	assert.Len(t, r.Added, 3)
	assert.Len(t, r.Deleted, 1)
	assert.Equal(t, []string{"list"}, cal.calls)
	require.Len(t, *muts, 4)
	assert.Equal(t, "Would delete Art", (*muts)[0].String())
}

func TestRunCurrent(t *testing.T) {
	tt := &fakeTimetable{current: 23, weeks: map[int]timetable.Week{23: testWeek()}}
	cal := &fakeCalendar{}
	s, _ := newTestSyncer(tt, cal)

	r, err := s.RunCurrent(context.Background(), "R4C")
	require.NoError(t, err)
	assert.Equal(t, 23, r.Week)
	assert.Equal(t, []int{23}, tt.fetched)
}

func TestRunCurrentWeekError(t *testing.T) {
	tt := &fakeTimetable{currentErr: errors.New("down")}
	s, _ := newTestSyncer(tt, &fakeCalendar{})

	r, err := s.RunCurrent(context.Background(), "R4C")

	var serr *Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "current_week", serr.Op)
	assert.Equal(t, -1, r.Week)
	assert.Empty(t, tt.fetched)
}

func TestRunCanceledStopsApplying(t *testing.T) {
	tt := &fakeTimetable{weeks: map[int]timetable.Week{23: testWeek()}}
	cal := &fakeCalendar{}

	ctx, cancel := context.WithCancel(context.Background())
	s, _ := newTestSyncer(tt, cal, WithProgress(func(Mutation) { cancel() }))

	_, err := s.Run(ctx, "R4C", 23)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"list", "add Math"}, cal.calls)
}
