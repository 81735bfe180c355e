// Package google stores lessons in a Google Calendar.
package google

import (
	"context"
	"errors"
	"fmt"
	"time"

	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"eacal/internal/calendar"
	"eacal/internal/lesson"
	appLog "eacal/internal/log"
)

// Gateway is a calendar.Gateway backed by the Google Calendar v3 API.
type Gateway struct {
	svc        *gcal.Service
	calendarID string
	loc        *time.Location
}

// New creates a Gateway for calendarID. opts are passed to the API client;
// production callers supply credentials, tests an endpoint and HTTP client.
// Lessons read back are reported in loc (time.Local if nil).
func New(ctx context.Context, calendarID string, loc *time.Location, opts ...option.ClientOption) (*Gateway, error) {
	if calendarID == "" {
		return nil, errors.New("google calendar id is empty")
	}
	if loc == nil {
		loc = time.Local
	}

	svc, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("google calendar service: %w", err)
	}

	return &Gateway{svc: svc, calendarID: calendarID, loc: loc}, nil
}

// NewFromCredentials creates a Gateway authenticated with a service
// account key file.
func NewFromCredentials(ctx context.Context, calendarID, credentialsFile string, loc *time.Location) (*Gateway, error) {
	if credentialsFile == "" {
		return nil, errors.New("google credentials file is empty")
	}
	return New(ctx, calendarID, loc,
		option.WithCredentialsFile(credentialsFile),
		option.WithScopes(gcal.CalendarEventsScope),
	)
}

// ListLessons implements calendar.Gateway.
func (g *Gateway) ListLessons(ctx context.Context, from, to time.Time) ([]lesson.Lesson, error) {
	lessons := make([]lesson.Lesson, 0)
	dropped := 0

	call := g.svc.Events.List(g.calendarID).
		TimeMin(from.Format(time.RFC3339)).
		TimeMax(to.Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		MaxResults(250)

	err := call.Pages(ctx, func(page *gcal.Events) error {
		for _, item := range page.Items {
			l, err := toLesson(item, g.loc)
			if err != nil {
				dropped++
				appLog.Debug("google event skipped", "id", item.Id, "err", err.Error())
				continue
			}
			lessons = append(lessons, l)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}

	appLog.Debug("google list completed", "calendar_id", g.calendarID, "lesson_count", len(lessons), "dropped", dropped)
	return lessons, nil
}

// AddLesson implements calendar.Gateway.
func (g *Gateway) AddLesson(ctx context.Context, l lesson.Lesson) error {
	if err := l.Validate(); err != nil {
		return err
	}
	if _, err := g.svc.Events.Insert(g.calendarID, toEvent(l)).Context(ctx).Do(); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// DeleteLesson implements calendar.Gateway.
func (g *Gateway) DeleteLesson(ctx context.Context, l lesson.Lesson) error {
	if !l.HasID() {
		return calendar.ErrMissingID
	}
	if err := g.svc.Events.Delete(g.calendarID, l.ID).Context(ctx).Do(); err != nil {
		return fmt.Errorf("delete event %s: %w", l.ID, err)
	}
	return nil
}

var (
	errMissingSummary  = errors.New("summary field is missing")
	errMissingDateTime = errors.New("start or end date_time field is missing")
)

// toLesson decodes a store event. All-day events carry only a date and are
// not lessons. The API omits empty locations, so a missing location reads
// as an empty classroom.
func toLesson(e *gcal.Event, loc *time.Location) (lesson.Lesson, error) {
	if e.Status == "cancelled" {
		return lesson.Lesson{}, errors.New("event is cancelled")
	}
	if e.Summary == "" {
		return lesson.Lesson{}, errMissingSummary
	}
	if e.Start == nil || e.End == nil || e.Start.DateTime == "" || e.End.DateTime == "" {
		return lesson.Lesson{}, errMissingDateTime
	}

	start, err := time.Parse(time.RFC3339, e.Start.DateTime)
	if err != nil {
		return lesson.Lesson{}, fmt.Errorf("start: %w", err)
	}
	end, err := time.Parse(time.RFC3339, e.End.DateTime)
	if err != nil {
		return lesson.Lesson{}, fmt.Errorf("end: %w", err)
	}

	return lesson.Lesson{
		ID:        e.Id,
		Subject:   e.Summary,
		Classroom: e.Location,
		Start:     start.In(loc),
		End:       end.In(loc),
	}, nil
}

func toEvent(l lesson.Lesson) *gcal.Event {
	return &gcal.Event{
		Summary:     l.Subject,
		Location:    l.Classroom,
		Description: l.Teacher,
		Start:       &gcal.EventDateTime{DateTime: l.Start.Format(time.RFC3339)},
		End:         &gcal.EventDateTime{DateTime: l.End.Format(time.RFC3339)},
	}
}

var _ calendar.Gateway = (*Gateway)(nil)
