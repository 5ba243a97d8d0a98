// Package timeutil provides calendar-day helpers for the progression engine.
// Every calendar-day decision in LearnHub (streaks, goal deadlines, worker sweeps)
// is made in UTC so that all API instances agree on where a day starts.
// No external dependencies - uses only standard library.
package timeutil

import (
	"time"
)

// Zone is the single timezone used for calendar-day arithmetic.
var Zone = time.UTC

// Now returns the current time in the calendar zone.
func Now() time.Time {
	return time.Now().In(Zone)
}

// Date creates a midnight time in the calendar zone with the given date.
func Date(year, month, day int) time.Time {
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, Zone)
}

// StartOfDay truncates t to midnight of its calendar day in the calendar zone.
func StartOfDay(t time.Time) time.Time {
	z := t.In(Zone)
	return time.Date(z.Year(), z.Month(), z.Day(), 0, 0, 0, 0, Zone)
}

// IsSameDay checks if two times fall on the same calendar day.
func IsSameDay(t1, t2 time.Time) bool {
	a1, a2 := t1.In(Zone), t2.In(Zone)
	return a1.Year() == a2.Year() && a1.YearDay() == a2.YearDay()
}

// DaysBetween returns the signed number of calendar days from t1 to t2.
// It is positive when t2 is later. Midnight-to-midnight in UTC has no DST
// jumps, so the hour division is exact.
func DaysBetween(t1, t2 time.Time) int {
	a1 := StartOfDay(t1)
	a2 := StartOfDay(t2)
	return int(a2.Sub(a1).Hours() / 24)
}

// FormatDate formats t as YYYY-MM-DD in the calendar zone.
func FormatDate(t time.Time) string {
	return t.In(Zone).Format(time.DateOnly)
}
