package ics

import (
	"errors"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
)

// parsedEvent is the normalized representation of a VEVENT. Recurrence
// expansion operates on this type.
type parsedEvent struct {
	UID string

	Summary     string
	Location    string
	HasLocation bool

	Start  time.Time
	End    time.Time
	AllDay bool

	RawRRule   string
	ExDates    []time.Time
	Recurrence *time.Time // RECURRENCE-ID (if present)
	IsOverride bool       // true if this VEVENT overrides a recurring instance
}

var (
	errMissingUID   = errors.New("missing UID")
	errMissingStart = errors.New("missing or malformed DTSTART")
	errMissingEnd   = errors.New("missing or malformed DTEND")
)

func parseVEvent(ve *ical.VEvent, loc *time.Location) (parsedEvent, error) {
	var out parsedEvent

	uidProp := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uidProp == nil || uidProp.Value == "" {
		return out, errMissingUID
	}
	out.UID = uidProp.Value

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Summary = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil {
		out.Location = p.Value
		out.HasLocation = true
	}

	start, err := ve.GetStartAt()
	if err != nil {
		return out, errMissingStart
	}
	end, err := ve.GetEndAt()
	if err != nil {
		return out, errMissingEnd
	}
	out.Start = start.In(loc)
	out.End = end.In(loc)

	// VALUE=DATE or no 'T' in the value -> all-day
	if dtStartProp := ve.GetProperty(ical.ComponentPropertyDtStart); dtStartProp != nil {
		if vs, ok := dtStartProp.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
			out.AllDay = true
		}
		if !strings.Contains(dtStartProp.Value, "T") {
			out.AllDay = true
		}
	}

	if rruleProp := ve.GetProperty(ical.ComponentPropertyRrule); rruleProp != nil {
		out.RawRRule = rruleProp.Value
	}

	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if t, err := parseICSTime(part, loc); err == nil {
				out.ExDates = append(out.ExDates, t)
			}
		}
	}

	if ridProp := ve.GetProperty("RECURRENCE-ID"); ridProp != nil {
		if t, err := parseICSTime(ridProp.Value, loc); err == nil {
			out.Recurrence = &t
			out.IsOverride = true
		}
	}

	return out, nil
}

const utcLayout = "20060102T150405Z"

// parseICSTime parses a basic ICS date/date-time string. Floating times are
// placed in loc.
func parseICSTime(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New("empty time value")
	}

	// 20250101T090000Z
	if strings.HasSuffix(v, "Z") {
		t, err := time.Parse(utcLayout, v)
		if err != nil {
			return time.Time{}, err
		}
		return t.In(loc), nil
	}

	// 20250101T090000
	if strings.Contains(v, "T") {
		return time.ParseInLocation("20060102T150405", v, loc)
	}

	// 20250101
	return time.ParseInLocation("20060102", v, loc)
}

func formatICSTime(t time.Time) string {
	return t.UTC().Format(utcLayout)
}
