package schedule

import (
	"sort"
	"time"
)

// Slot is one bookable unit on the fixed grid: a working day plus a
// configured start hour. Slots exist independently of any booking state.
type Slot struct {
	Date            time.Time
	Start           TimeOfDay
	DurationMinutes int
}

// Key is the identity of a slot inside one practitioner's calendar.
// Dates and times are carried as their canonical wire strings so that
// two slots compare equal exactly when the storage layer would consider
// them the same unit.
type Key struct {
	Date  string // YYYY-MM-DD
	Start string // HH:MM:SS
}

func (s Slot) Key() Key {
	return Key{Date: s.Date.Format(time.DateOnly), Start: s.Start.String()}
}

// End returns the facility-local instant at which the slot finishes.
func (s Slot) End() time.Time {
	day := Midnight(s.Date)
	return day.Add(time.Duration(s.Start.SecondsFromMidnight())*time.Second +
		time.Duration(s.DurationMinutes)*time.Minute)
}

// Grid enumerates every bookable slot of the week starting at weekStart:
// the cross product of the five working days and the configured work
// hours, day-major and time-ascending. Deterministic: identical inputs
// always produce the identical sequence.
func Grid(weekStart time.Time, workHours []TimeOfDay, slotMinutes int) []Slot {
	hours := make([]TimeOfDay, len(workHours))
	copy(hours, workHours)
	sort.Slice(hours, func(i, j int) bool { return hours[i].Before(hours[j]) })

	slots := make([]Slot, 0, WorkingDays*len(hours))
	for day := 0; day < WorkingDays; day++ {
		date := weekStart.AddDate(0, 0, day)
		for _, h := range hours {
			slots = append(slots, Slot{
				Date:            date,
				Start:           h,
				DurationMinutes: slotMinutes,
			})
		}
	}
	return slots
}
