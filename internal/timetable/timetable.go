// Package timetable fetches raw weekly class timetables from the remote
// scheduling service and parses them into lessons.
package timetable

import "context"

// Client is the remote timetable service.
type Client interface {
	// CurrentWeek returns the week index the service declares as current.
	CurrentWeek(ctx context.Context) (int, error)
	// FetchWeek returns the raw timetable of a class for the given week index.
	FetchWeek(ctx context.Context, class string, week int) (Week, error)
}

// Week is the raw payload of one timetable fetch.
type Week struct {
	Days        []RawDay         `json:"days"`
	Definitions []SlotDefinition `json:"scheduleDefinitions"`
}

// RawDay is one calendar day of a week fetch.
//
// Date is a year-less "DD.MM." fragment. Lessons is indexed by slot
// position; a nil or empty slot means no class, several details in one slot
// are parallel groups.
type RawDay struct {
	Date    string     `json:"date"`
	Lessons [][]Detail `json:"lessons"`
}

// Detail describes one lesson group within a slot.
type Detail struct {
	Name    string `json:"name"`
	Room    string `json:"room"`
	Teacher string `json:"teacher"`
}

// SlotDefinition maps a slot position to a clock-time range ("HH:MM").
type SlotDefinition struct {
	From string `json:"from"`
	To   string `json:"to"`
}
