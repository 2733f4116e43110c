package appointment

import "github.com/hackgods/clinic-scheduling/internal/schedule"

// Occupancy is a derived view mapping slot identity to its occupying
// appointment. It is disposable: never the source of truth, always
// rebuilt wholesale from a fresh repository read after any mutation,
// never patched in place. That discipline is what keeps a client from
// trusting a stale "free" after an ambiguous booking attempt.
type Occupancy struct {
	slots map[schedule.Key]*Appointment
}

// BuildOccupancy indexes the given appointments by slot. Cancelled rows
// are skipped; Scheduled, Completed and NoShow all count as occupying.
func BuildOccupancy(appointments []Appointment) *Occupancy {
	idx := &Occupancy{slots: make(map[schedule.Key]*Appointment, len(appointments))}
	for i := range appointments {
		a := &appointments[i]
		if !a.Status.Occupies() {
			continue
		}
		idx.slots[a.SlotKey()] = a
	}
	return idx
}

func (o *Occupancy) IsOccupied(key schedule.Key) bool {
	_, ok := o.slots[key]
	return ok
}

// Get returns the appointment occupying the slot, if any.
func (o *Occupancy) Get(key schedule.Key) (*Appointment, bool) {
	a, ok := o.slots[key]
	return a, ok
}

func (o *Occupancy) Len() int {
	return len(o.slots)
}
