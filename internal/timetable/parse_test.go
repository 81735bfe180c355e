package timetable

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var cet = time.FixedZone("CET", 3600)

func fixedNow() time.Time {
	return time.Date(2025, time.March, 14, 18, 0, 0, 0, cet)
}

func newTestParser() *Parser {
	return NewParser(cet, fixedNow)
}

var defs = []SlotDefinition{
	{From: "08:00", To: "08:45"},
	{From: "08:50", To: "09:35"},
	{From: "09:40", To: "10:25"},
}

func TestParseSingleLesson(t *testing.T) {
	days := []RawDay{{
		Date:    "15. 3.",
		Lessons: [][]Detail{{{Name: "Math", Room: "101", Teacher: "Smith"}}},
	}}

	lessons, errs := newTestParser().Parse(days, defs)

	require.Empty(t, errs)
	require.Len(t, lessons, 1)
	l := lessons[0]
	assert.Empty(t, l.ID)
	assert.Equal(t, "Math", l.Subject)
	assert.Equal(t, "101", l.Classroom)
	assert.Equal(t, "Smith", l.Teacher)
	assert.Equal(t, time.Date(2025, time.March, 15, 8, 0, 0, 0, cet), l.Start)
	assert.Equal(t, time.Date(2025, time.March, 15, 8, 45, 0, 0, cet), l.End)
}

func TestParseEmptySlotsAndParallelGroups(t *testing.T) {
	days := []RawDay{{
		Date: "17.03.",
		Lessons: [][]Detail{
			nil,
			{},
			{
				{Name: "English", Room: "201", Teacher: "Brown"},
				{Name: "German", Room: "202", Teacher: "Weber"},
			},
		},
	}}

	lessons, errs := newTestParser().Parse(days, defs)

	require.Empty(t, errs)
	require.Len(t, lessons, 2)
	assert.Equal(t, "English", lessons[0].Subject)
	assert.Equal(t, "German", lessons[1].Subject)
	for _, l := range lessons {
		assert.Equal(t, time.Date(2025, time.March, 17, 9, 40, 0, 0, cet), l.Start)
	}
}

func TestParseSortsByStart(t *testing.T) {
	days := []RawDay{
		{Date: "18.3.", Lessons: [][]Detail{{{Name: "Wed first"}}}},
		{Date: "17.3.", Lessons: [][]Detail{nil, {{Name: "Mon second"}}}},
		{Date: "17.3.", Lessons: [][]Detail{{{Name: "Mon first"}}}},
	}

	lessons, errs := newTestParser().Parse(days, defs)

	require.Empty(t, errs)
	require.Len(t, lessons, 3)
	assert.Equal(t, []string{"Mon first", "Mon second", "Wed first"},
		[]string{lessons[0].Subject, lessons[1].Subject, lessons[2].Subject})
}

func TestParseIsDeterministic(t *testing.T) {
	days := []RawDay{
		{Date: "19.3.", Lessons: [][]Detail{{{Name: "A"}}, {{Name: "B"}, {Name: "C"}}}},
		{Date: "17.3.", Lessons: [][]Detail{nil, {{Name: "D"}}, {{Name: "E"}}}},
	}

	p := newTestParser()
	first, _ := p.Parse(days, defs)
	second, _ := p.Parse(days, defs)

	assert.Equal(t, first, second)
	for i := 1; i < len(first); i++ {
		assert.False(t, first[i].Start.Before(first[i-1].Start))
	}
}

func TestParseMissingDefinitionSkipsOnlyThatLesson(t *testing.T) {
	days := []RawDay{{
		Date: "17.3.",
		Lessons: [][]Detail{
			{{Name: "Math"}},
			nil,
			nil,
			{{Name: "Overflow"}},
		},
	}, {
		Date:    "18.3.",
		Lessons: [][]Detail{{{Name: "Physics"}}},
	}}

	lessons, errs := newTestParser().Parse(days, defs)

	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrMissingDefinition)

	var perr *ParseError
	require.True(t, errors.As(errs[0], &perr))
	assert.Equal(t, 3, perr.Slot)
	assert.Equal(t, "Overflow", perr.Subject)
	assert.Equal(t, "17.3.", perr.Date)

	require.Len(t, lessons, 2)
	assert.Equal(t, "Math", lessons[0].Subject)
	assert.Equal(t, "Physics", lessons[1].Subject)
}

func TestParseStrictStopsAtFirstError(t *testing.T) {
	days := []RawDay{{
		Date:    "17.3.",
		Lessons: [][]Detail{{{Name: "Math"}}, nil, nil, {{Name: "Overflow"}}},
	}}

	p := newTestParser()
	p.Strict = true
	lessons, errs := p.Parse(days, defs)

	assert.Nil(t, lessons)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrMissingDefinition)
}

func TestParseMalformedInputs(t *testing.T) {
	tests := []struct {
		name    string
		date    string
		def     SlotDefinition
		wantErr error
	}{
		{"no month", "15.", SlotDefinition{From: "08:00", To: "08:45"}, ErrMalformedDate},
		{"letters", "ab.cd.", SlotDefinition{From: "08:00", To: "08:45"}, ErrMalformedDate},
		{"month 13", "15.13.", SlotDefinition{From: "08:00", To: "08:45"}, ErrMalformedDate},
		{"day 31 feb", "31.2.", SlotDefinition{From: "08:00", To: "08:45"}, ErrMalformedDate},
		{"day 0", "0.3.", SlotDefinition{From: "08:00", To: "08:45"}, ErrMalformedDate},
		{"hour 24", "15.3.", SlotDefinition{From: "24:00", To: "08:45"}, ErrMalformedTime},
		{"minute 60", "15.3.", SlotDefinition{From: "08:00", To: "08:60"}, ErrMalformedTime},
		{"no colon", "15.3.", SlotDefinition{From: "0800", To: "08:45"}, ErrMalformedTime},
		{"empty time", "15.3.", SlotDefinition{From: "", To: "08:45"}, ErrMalformedTime},
		{"reversed", "15.3.", SlotDefinition{From: "09:00", To: "08:45"}, ErrInvalidRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			days := []RawDay{{Date: tt.date, Lessons: [][]Detail{{{Name: "Math"}}}}}

			lessons, errs := newTestParser().Parse(days, []SlotDefinition{tt.def})

			assert.Empty(t, lessons)
			require.Len(t, errs, 1)
			assert.ErrorIs(t, errs[0], tt.wantErr)
		})
	}
}

func TestParseDateWhitespace(t *testing.T) {
	tests := []struct {
		input string
		want  time.Time
	}{
		{"15.3.", time.Date(2025, 3, 15, 0, 0, 0, 0, cet)},
		{"15. 3.", time.Date(2025, 3, 15, 0, 0, 0, 0, cet)},
		{" 15 . 03 . ", time.Date(2025, 3, 15, 0, 0, 0, 0, cet)},
		{"1.12", time.Date(2025, 12, 1, 0, 0, 0, 0, cet)},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseDate(tt.input, 2025, cet)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseUsesClockYear(t *testing.T) {
	p := NewParser(cet, func() time.Time { return time.Date(2031, time.January, 2, 0, 0, 0, 0, cet) })
	days := []RawDay{{Date: "6.1.", Lessons: [][]Detail{{{Name: "Math"}}}}}

	lessons, errs := p.Parse(days, defs)

	require.Empty(t, errs)
	require.Len(t, lessons, 1)
	assert.Equal(t, 2031, lessons[0].Start.Year())
}

func TestParseDefaultsToLocal(t *testing.T) {
	p := &Parser{}
	days := []RawDay{{Date: "6.1.", Lessons: [][]Detail{{{Name: "Math"}}}}}

	lessons, errs := p.Parse(days, defs)

	require.Empty(t, errs)
	require.Len(t, lessons, 1)
	assert.Equal(t, time.Local, lessons[0].Start.Location())
	assert.Equal(t, time.Now().Year(), lessons[0].Start.Year())
}
