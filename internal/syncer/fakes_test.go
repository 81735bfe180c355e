package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"eacal/internal/calendar"
	"eacal/internal/lesson"
	"eacal/internal/timetable"
)

type fakeTimetable struct {
	current    int
	currentErr error
	weeks      map[int]timetable.Week
	fetchErr   error
	fetched    []int
}

func (f *fakeTimetable) CurrentWeek(context.Context) (int, error) {
	return f.current, f.currentErr
}

func (f *fakeTimetable) FetchWeek(_ context.Context, _ string, week int) (timetable.Week, error) {
	f.fetched = append(f.fetched, week)
	if f.fetchErr != nil {
		return timetable.Week{}, f.fetchErr
	}
	return f.weeks[week], nil
}

// fakeCalendar is an in-memory calendar.Gateway that records calls.
type fakeCalendar struct {
	lessons []lesson.Lesson
	nextID  int

	listErr   error
	addErrs   map[string]error // by subject
	deleteErr map[string]error // by subject

	calls []string
}

func (f *fakeCalendar) ListLessons(_ context.Context, from, to time.Time) ([]lesson.Lesson, error) {
	f.calls = append(f.calls, "list")
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]lesson.Lesson, 0)
	for _, l := range f.lessons {
		if !l.End.Before(from) && !l.Start.After(to) {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeCalendar) AddLesson(_ context.Context, l lesson.Lesson) error {
	f.calls = append(f.calls, "add "+l.Subject)
	if err := f.addErrs[l.Subject]; err != nil {
		return err
	}
	f.nextID++
	l.ID = fmt.Sprintf("evt-%d", f.nextID)
	l.Teacher = ""
	f.lessons = append(f.lessons, l)
	return nil
}

func (f *fakeCalendar) DeleteLesson(_ context.Context, l lesson.Lesson) error {
	f.calls = append(f.calls, "delete "+l.Subject)
	if !l.HasID() {
		return calendar.ErrMissingID
	}
	if err := f.deleteErr[l.Subject]; err != nil {
		return err
	}
	for i, stored := range f.lessons {
		if stored.ID == l.ID {
			f.lessons = append(f.lessons[:i], f.lessons[i+1:]...)
			return nil
		}
	}
	return errors.New("not found")
}

var _ calendar.Gateway = (*fakeCalendar)(nil)
var _ timetable.Client = (*fakeTimetable)(nil)
