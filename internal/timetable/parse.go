package timetable

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"eacal/internal/lesson"
	appLog "eacal/internal/log"
)

var (
	ErrMalformedDate     = errors.New("malformed date fragment")
	ErrMalformedTime     = errors.New("malformed clock time")
	ErrMissingDefinition = errors.New("no schedule definition for slot")
	ErrInvalidRange      = errors.New("slot end is not after start")
)

// 08:00, 8:00
var clockTime = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)

// ParseError describes a single lesson that could not be parsed.
type ParseError struct {
	Date    string
	Slot    int
	Subject string
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("lesson %q on %q slot %d: %v", e.Subject, e.Date, e.Slot, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Parser converts raw week payloads into lessons.
//
// The service never sends a year, so dates resolve against the current
// year of the parser's clock. A fetch spanning New Year therefore lands
// the January (or December) days in the wrong year; callers are expected
// to sync near the start of the target week.
type Parser struct {
	// Location is the timezone lessons are placed in. Nil means time.Local.
	Location *time.Location
	// Now supplies the current time for year resolution. Nil means time.Now.
	Now func() time.Time
	// Strict makes Parse stop at the first malformed lesson instead of
	// skipping it.
	Strict bool
}

// NewParser returns a skip-and-continue parser for the given location.
func NewParser(loc *time.Location, now func() time.Time) *Parser {
	return &Parser{Location: loc, Now: now}
}

// Parse converts days into lessons sorted by start time.
//
// A lesson that fails to parse is reported in the returned errors (as a
// *ParseError) and skipped; the rest of the week still parses. In strict
// mode Parse returns no lessons and only the first error.
func (p *Parser) Parse(days []RawDay, defs []SlotDefinition) ([]lesson.Lesson, []error) {
	loc := p.location()
	year := p.now().In(loc).Year()

	lessons := make([]lesson.Lesson, 0)
	var errs []error

	for _, day := range days {
		for slot, details := range day.Lessons {
			for _, d := range details {
				l, err := parseDetail(d, day.Date, slot, defs, year, loc)
				if err != nil {
					perr := &ParseError{Date: day.Date, Slot: slot, Subject: d.Name, Err: err}
					if p.Strict {
						return nil, []error{perr}
					}
					appLog.Warn("timetable lesson skipped", "date", day.Date, "slot", slot, "subject", d.Name, "err", err.Error())
					errs = append(errs, perr)
					continue
				}
				lessons = append(lessons, l)
			}
		}
	}

	sort.SliceStable(lessons, func(i, j int) bool {
		return lessons[i].Start.Before(lessons[j].Start)
	})

	return lessons, errs
}

func (p *Parser) location() *time.Location {
	if p.Location == nil {
		return time.Local
	}
	return p.Location
}

func (p *Parser) now() time.Time {
	if p.Now == nil {
		return time.Now()
	}
	return p.Now()
}

func parseDetail(d Detail, date string, slot int, defs []SlotDefinition, year int, loc *time.Location) (lesson.Lesson, error) {
	day, err := parseDate(date, year, loc)
	if err != nil {
		return lesson.Lesson{}, err
	}

	if slot < 0 || slot >= len(defs) {
		return lesson.Lesson{}, fmt.Errorf("%w: slot %d of %d", ErrMissingDefinition, slot, len(defs))
	}
	def := defs[slot]

	start, err := atClock(day, def.From)
	if err != nil {
		return lesson.Lesson{}, err
	}
	end, err := atClock(day, def.To)
	if err != nil {
		return lesson.Lesson{}, err
	}
	if !end.After(start) {
		return lesson.Lesson{}, fmt.Errorf("%w: %s-%s", ErrInvalidRange, def.From, def.To)
	}

	return lesson.Lesson{
		Subject:   d.Name,
		Classroom: d.Room,
		Teacher:   d.Teacher,
		Start:     start,
		End:       end,
	}, nil
}

// parseDate resolves a "DD.MM." fragment, tolerating whitespace around the
// parts ("15. 3."), to midnight of that day in year.
func parseDate(s string, year int, loc *time.Location) (time.Time, error) {
	parts := make([]string, 0, 3)
	for _, p := range strings.Split(s, ".") {
		p = strings.TrimSpace(p)
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) < 2 {
		return time.Time{}, fmt.Errorf("%w: %q", ErrMalformedDate, s)
	}

	day, err := strconv.Atoi(parts[0])
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: day %q", ErrMalformedDate, parts[0])
	}
	month, err := strconv.Atoi(parts[1])
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: month %q", ErrMalformedDate, parts[1])
	}
	if month < 1 || month > 12 {
		return time.Time{}, fmt.Errorf("%w: month %d out of range", ErrMalformedDate, month)
	}

	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, loc)
	// time.Date normalizes 31.2. into March; reject instead.
	if day < 1 || t.Day() != day || t.Month() != time.Month(month) {
		return time.Time{}, fmt.Errorf("%w: day %d out of range for month %d", ErrMalformedDate, day, month)
	}
	return t, nil
}

// atClock applies an "HH:MM" clock time to the given midnight.
func atClock(day time.Time, s string) (time.Time, error) {
	m := clockTime.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrMalformedTime, s)
	}

	hour, _ := strconv.Atoi(m[1])
	minute, _ := strconv.Atoi(m[2])
	if hour > 23 {
		return time.Time{}, fmt.Errorf("%w: hour %d out of range", ErrMalformedTime, hour)
	}
	if minute > 59 {
		return time.Time{}, fmt.Errorf("%w: minute %d out of range", ErrMalformedTime, minute)
	}

	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, day.Location()), nil
}
