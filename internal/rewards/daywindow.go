package rewards

import "time"

// DayKeyLayout formats the UTC calendar date used as the cap window key.
const DayKeyLayout = "2006-01-02"

// DayWindow is one UTC calendar day: [Start, End).
type DayWindow struct {
	Key   string
	Start time.Time
	End   time.Time
}

// DayWindowAt returns the UTC day containing now.
func DayWindowAt(now time.Time) DayWindow {
	utc := now.UTC()
	start := time.Date(utc.Year(), utc.Month(), utc.Day(), 0, 0, 0, 0, time.UTC)
	return DayWindow{
		Key:   start.Format(DayKeyLayout),
		Start: start,
		End:   start.AddDate(0, 0, 1),
	}
}

// Contains reports whether t falls inside the window.
func (w DayWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}
