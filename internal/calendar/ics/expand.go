package ics

import (
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	"eacal/internal/lesson"
	appLog "eacal/internal/log"
)

// maxOccurrencesPerEvent caps expansion of a single recurring VEVENT.
const maxOccurrencesPerEvent = 5000

// occurrenceSep joins a series UID and an occurrence start into an ID.
const occurrenceSep = "/"

// expandLessons turns parsed events into lessons overlapping [from, to].
//
// Single events keep their UID as lesson ID. Occurrences of a recurring
// series get "UID/<start UTC>" so that deleting one excludes only that
// occurrence. All-day events and events without SUMMARY or LOCATION are
// not lessons and are dropped.
func expandLessons(events []parsedEvent, from, to time.Time, loc *time.Location) []lesson.Lesson {
	baseByUID := make(map[string][]parsedEvent)
	overridesByUID := make(map[string][]parsedEvent)
	order := make([]string, 0)

	for _, ev := range events {
		if ev.IsOverride {
			overridesByUID[ev.UID] = append(overridesByUID[ev.UID], ev)
			continue
		}
		if _, seen := baseByUID[ev.UID]; !seen {
			order = append(order, ev.UID)
		}
		baseByUID[ev.UID] = append(baseByUID[ev.UID], ev)
	}

	out := make([]lesson.Lesson, 0)
	for _, uid := range order {
		for _, ev := range baseByUID[uid] {
			if ev.RawRRule == "" {
				if l, ok := toLesson(ev, ev.UID, from, to); ok {
					out = append(out, l)
				}
				continue
			}
			out = append(out, expandRecurring(ev, overridesByUID[uid], from, to, loc)...)
		}
	}
	return out
}

func expandRecurring(ev parsedEvent, overrides []parsedEvent, from, to time.Time, loc *time.Location) []lesson.Lesson {
	out := make([]lesson.Lesson, 0)

	r, err := rrule.StrToRRule(ev.RawRRule)
	if err != nil {
		appLog.Error("ics: failed to parse RRULE", err, "uid", ev.UID, "rrule", ev.RawRRule)
		return out
	}
	r.DTStart(ev.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	// Widen the lower bound by the event duration so occurrences starting
	// before the window but still running into it are kept.
	dur := ev.End.Sub(ev.Start)
	occTimes := set.Between(from.Add(-dur).In(loc), to.In(loc), true)
	if len(occTimes) > maxOccurrencesPerEvent {
		appLog.Warn("ics: truncated occurrences for UID due to cap", "uid", ev.UID, "cap", maxOccurrencesPerEvent)
		occTimes = occTimes[:maxOccurrencesPerEvent]
	}

	for _, occStart := range occTimes {
		id := ev.UID + occurrenceSep + formatICSTime(occStart)

		inst := ev
		inst.Start = occStart
		inst.End = occStart.Add(dur)
		if o, ok := findOverrideForStart(overrides, occStart); ok {
			inst = o
		}

		if l, ok := toLesson(inst, id, from, to); ok {
			out = append(out, l)
		}
	}
	return out
}

// findOverrideForStart finds an override whose RECURRENCE-ID equals start.
func findOverrideForStart(overrides []parsedEvent, start time.Time) (parsedEvent, bool) {
	for _, ov := range overrides {
		if ov.Recurrence != nil && ov.Recurrence.Equal(start) {
			return ov, true
		}
	}
	return parsedEvent{}, false
}

func toLesson(ev parsedEvent, id string, from, to time.Time) (lesson.Lesson, bool) {
	if ev.AllDay || ev.Summary == "" || !ev.HasLocation {
		appLog.Debug("ics: event is not a lesson", "uid", ev.UID, "all_day", ev.AllDay)
		return lesson.Lesson{}, false
	}
	if !timeRangesOverlap(ev.Start, ev.End, from, to) {
		return lesson.Lesson{}, false
	}
	return lesson.Lesson{
		ID:        id,
		Subject:   ev.Summary,
		Classroom: ev.Location,
		Start:     ev.Start,
		End:       ev.End,
	}, true
}

// splitID separates a lesson ID into the series UID and, for an occurrence
// of a recurring series, its start.
func splitID(id string) (uid string, occurrence string) {
	i := strings.LastIndex(id, occurrenceSep)
	if i < 0 {
		return id, ""
	}
	return id[:i], id[i+1:]
}

func timeRangesOverlap(aStart, aEnd, bStart, bEnd time.Time) bool {
	if aEnd.Before(bStart) {
		return false
	}
	if bEnd.Before(aStart) {
		return false
	}
	return true
}
