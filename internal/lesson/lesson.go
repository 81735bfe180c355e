package lesson

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrEmptySubject = errors.New("lesson subject is empty")
	ErrMissingTime  = errors.New("lesson start or end time is missing")
	ErrInvalidRange = errors.New("lesson end is not after start")
)

// Lesson represents a single scheduled class occurrence.
//
// Lessons parsed from the timetable never carry an ID; lessons read back
// from a calendar store carry the store-assigned ID and an empty Teacher,
// since stores do not persist it.
type Lesson struct {
	ID string // calendar store identity; empty when not stored yet

	Subject   string
	Classroom string
	Teacher   string

	// Start / End carry the local civil time used for day-window arithmetic.
	Start time.Time
	End   time.Time
}

// Key is the identity used to decide whether two lessons denote the same
// occurrence. Start is kept as an instant so the same moment expressed in
// different locations still compares equal.
type Key struct {
	Subject   string
	Start     int64 // unix nanoseconds
	Classroom string
}

// Key returns the identity key of l: subject, start instant and classroom.
// ID, Teacher and End never take part.
func (l Lesson) Key() Key {
	return Key{
		Subject:   l.Subject,
		Start:     l.Start.UnixNano(),
		Classroom: l.Classroom,
	}
}

// Same reports whether l and other denote the same occurrence.
func (l Lesson) Same(other Lesson) bool {
	return l.Key() == other.Key()
}

// HasID reports whether the lesson is known to a calendar store.
func (l Lesson) HasID() bool {
	return l.ID != ""
}

// Validate checks the fields a calendar store needs to persist l.
func (l Lesson) Validate() error {
	if l.Subject == "" {
		return ErrEmptySubject
	}
	if l.Start.IsZero() || l.End.IsZero() {
		return ErrMissingTime
	}
	if !l.End.After(l.Start) {
		return fmt.Errorf("%w: %s - %s", ErrInvalidRange,
			l.Start.Format(time.RFC3339), l.End.Format(time.RFC3339))
	}
	return nil
}

func (l Lesson) String() string {
	s := l.Subject + " " + l.Start.Format("Mon 02.01. 15:04") + "-" + l.End.Format("15:04")
	if l.Classroom != "" {
		s += " @" + l.Classroom
	}
	return s
}
