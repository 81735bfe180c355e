package lesson

import "time"

// Window is the day-aligned range used to query existing calendar lessons.
type Window struct {
	Start time.Time
	End   time.Time
}

// DeriveWindow returns the window spanning from 00:00:00 on the day of the
// earliest lesson start to 23:59:59 on the day of the latest lesson end,
// in the lessons' own locations. It reports false for an empty slice.
//
// The input does not need to be sorted.
func DeriveWindow(lessons []Lesson) (Window, bool) {
	if len(lessons) == 0 {
		return Window{}, false
	}

	first := lessons[0].Start
	last := lessons[0].End
	for _, l := range lessons[1:] {
		if l.Start.Before(first) {
			first = l.Start
		}
		if l.End.After(last) {
			last = l.End
		}
	}

	return Window{
		Start: startOfDay(first),
		End:   endOfDay(last),
	}, true
}

// Contains reports whether [l.Start, l.End] lies within the window.
func (w Window) Contains(l Lesson) bool {
	return !l.Start.Before(w.Start) && !l.End.After(w.End)
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func endOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 0, t.Location())
}
