// Package schedule holds the pure scheduling arithmetic: week boundaries,
// the working-day calendar and the fixed bookable slot grid. Nothing in
// this package performs I/O or reads booking state.
package schedule

import (
	"errors"
	"time"
)

// WorkingDays is the number of bookable days per week, Monday through Friday.
const WorkingDays = 5

var ErrDayOffsetOutOfRange = errors.New("day offset must be between 0 and 4")

// WeekRange is the Monday-to-Friday span containing a reference date.
// Both bounds are at facility-local midnight; End is the Friday, so the
// range covers [Start, End+24h).
type WeekRange struct {
	Start time.Time
	End   time.Time
}

// WeekStart returns the Monday at local midnight of the week containing t.
// A Sunday maps to the Monday that precedes it, i.e. the week just ending.
// Idempotent: WeekStart(WeekStart(t)) == WeekStart(t).
func WeekStart(t time.Time) time.Time {
	day := Midnight(t)
	offset := int(time.Monday) - int(day.Weekday())
	if day.Weekday() == time.Sunday {
		offset = -6
	}
	return day.AddDate(0, 0, offset)
}

// Shift moves a week start by deltaWeeks whole weeks. Shift(Shift(w, n), -n)
// returns w for any n.
func Shift(weekStart time.Time, deltaWeeks int) time.Time {
	return weekStart.AddDate(0, 0, 7*deltaWeeks)
}

// DateForOffset resolves one of the five working days of a week.
// Offset 0 is the Monday itself, 4 the Friday.
func DateForOffset(weekStart time.Time, dayOffset int) (time.Time, error) {
	if dayOffset < 0 || dayOffset >= WorkingDays {
		return time.Time{}, ErrDayOffsetOutOfRange
	}
	return weekStart.AddDate(0, 0, dayOffset), nil
}

// RangeFor returns the working-week range containing t.
func RangeFor(t time.Time) WeekRange {
	start := WeekStart(t)
	return WeekRange{Start: start, End: start.AddDate(0, 0, WorkingDays-1)}
}

// Contains reports whether d (any time on that day) falls on one of the
// range's five working days.
func (r WeekRange) Contains(d time.Time) bool {
	day := Midnight(d)
	return !day.Before(r.Start) && !day.After(r.End)
}

// Midnight truncates t to local midnight, dropping the clock part.
func Midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// IsWorkingDay reports whether t falls on Monday through Friday.
func IsWorkingDay(t time.Time) bool {
	wd := t.Weekday()
	return wd >= time.Monday && wd <= time.Friday
}
