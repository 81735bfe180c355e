// Package calendar defines the calendar store the timetable is mirrored
// into. Concrete providers live in sub-packages.
package calendar

import (
	"context"
	"errors"
	"time"

	"eacal/internal/lesson"
)

// ErrMissingID is returned when deleting a lesson that was never stored.
var ErrMissingID = errors.New("lesson has no calendar id")

// Gateway is a calendar store holding lessons.
type Gateway interface {
	// ListLessons returns all stored lessons overlapping [from, to]. Store
	// events missing required fields are dropped.
	ListLessons(ctx context.Context, from, to time.Time) ([]lesson.Lesson, error)

	// AddLesson creates a store event for l.
	AddLesson(ctx context.Context, l lesson.Lesson) error

	// DeleteLesson removes the store event identified by l.ID and fails
	// with ErrMissingID if l has none.
	DeleteLesson(ctx context.Context, l lesson.Lesson) error
}
