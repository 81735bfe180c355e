// Package ics stores lessons in a local iCalendar file.
package ics

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/google/uuid"

	"eacal/internal/calendar"
	"eacal/internal/lesson"
	appLog "eacal/internal/log"
)

const productID = "-//eacal//timetable sync//EN"

var ErrNotFound = errors.New("event not found")

// Store is a calendar.Gateway backed by a single .ics file.
type Store struct {
	mu   sync.Mutex
	path string
	loc  *time.Location

	now    func() time.Time
	newUID func() string
}

// Option configures a Store.
type Option func(*Store)

// WithLocation sets the timezone lessons are reported in.
func WithLocation(loc *time.Location) Option {
	return func(s *Store) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithClock sets the clock used for DTSTAMP.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithUIDGenerator sets the generator for new event UIDs.
func WithUIDGenerator(gen func() string) Option {
	return func(s *Store) {
		s.newUID = gen
	}
}

// New creates a Store for the file at path. The file is created on the
// first write.
func New(path string, opts ...Option) *Store {
	s := &Store{
		path: path,
		loc:  time.Local,
		now:  time.Now,
		newUID: func() string {
			return uuid.NewString() + "@eacal"
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListLessons implements calendar.Gateway.
func (s *Store) ListLessons(_ context.Context, from, to time.Time) ([]lesson.Lesson, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cal, err := s.load()
	if err != nil {
		return nil, err
	}

	events := make([]parsedEvent, 0)
	for _, ve := range cal.Events() {
		ev, perr := parseVEvent(ve, s.loc)
		if perr != nil {
			// Log and skip this event, but keep parsing others.
			appLog.Debug("ics vevent skipped", "path", s.path, "err", perr.Error())
			continue
		}
		events = append(events, ev)
	}

	lessons := expandLessons(events, from, to, s.loc)
	appLog.Debug("ics list completed", "path", s.path, "event_count", len(events), "lesson_count", len(lessons))
	return lessons, nil
}

// AddLesson implements calendar.Gateway.
func (s *Store) AddLesson(_ context.Context, l lesson.Lesson) error {
	if err := l.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cal, err := s.load()
	if err != nil {
		return err
	}

	now := s.now()
	ev := cal.AddEvent(s.newUID())
	ev.SetDtStampTime(now)
	ev.SetCreatedTime(now)
	ev.SetSummary(l.Subject)
	ev.SetLocation(l.Classroom)
	ev.SetStartAt(l.Start)
	ev.SetEndAt(l.End)
	if l.Teacher != "" {
		ev.SetDescription(l.Teacher)
	}

	return s.save(cal)
}

// DeleteLesson implements calendar.Gateway.
//
// A single event is removed from the file. An occurrence of a recurring
// series is excluded from the series with an EXDATE.
func (s *Store) DeleteLesson(_ context.Context, l lesson.Lesson) error {
	if !l.HasID() {
		return calendar.ErrMissingID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cal, err := s.load()
	if err != nil {
		return err
	}

	if removeEvent(cal, l.ID) {
		return s.save(cal)
	}

	uid, occurrence := splitID(l.ID)
	if occurrence != "" {
		for _, ve := range cal.Events() {
			if ve.Id() != uid || ve.GetProperty("RECURRENCE-ID") != nil {
				continue
			}
			ve.AddProperty(ical.ComponentPropertyExdate, occurrence)
			return s.save(cal)
		}
	}

	return fmt.Errorf("%w: %s", ErrNotFound, l.ID)
}

// removeEvent drops every VEVENT with the given UID, overrides included.
func removeEvent(cal *ical.Calendar, uid string) bool {
	removed := false
	kept := make([]ical.Component, 0, len(cal.Components))
	for _, c := range cal.Components {
		if ve, ok := c.(*ical.VEvent); ok && ve.Id() == uid {
			removed = true
			continue
		}
		kept = append(kept, c)
	}
	cal.Components = kept
	return removed
}

// load reads the calendar file. A missing file is an empty calendar.
func (s *Store) load() (*ical.Calendar, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return newCalendar(), nil
		}
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return newCalendar(), nil
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.path, err)
	}
	return cal, nil
}

func newCalendar() *ical.Calendar {
	cal := ical.NewCalendar()
	cal.SetProductId(productID)
	cal.SetMethod(ical.MethodPublish)
	return cal
}

// save writes the calendar atomically via a temp file + rename, 0600.
func (s *Store) save(cal *ical.Calendar) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".eacal-*.ics.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.WriteString(cal.Serialize()); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, s.path)
}

var _ calendar.Gateway = (*Store)(nil)
