package appointment

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/schedule"
)

type activeSlot struct {
	practitioner uuid.UUID
	slot         schedule.Key
}

// MemoryRepository is an in-memory Repository for tests and local
// tooling. It enforces the same active-slot uniqueness the Postgres
// schema carries, atomically under one mutex, so the at-most-one
// booking property holds under concurrent callers here too.
type MemoryRepository struct {
	mu           sync.Mutex
	appointments map[uuid.UUID]*Appointment
	active       map[activeSlot]uuid.UUID
	events       []EventLog

	// Optional referential sets. When non-nil, inserts naming an id
	// outside the set fail the way a foreign key would.
	Practitioners map[uuid.UUID]bool
	Patients      map[uuid.UUID]bool
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		appointments: make(map[uuid.UUID]*Appointment),
		active:       make(map[activeSlot]uuid.UUID),
	}
}

func (r *MemoryRepository) Query(ctx context.Context, practitionerID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	fromDay := schedule.Midnight(from)
	toDay := schedule.Midnight(to)

	var result []Appointment
	for _, a := range r.appointments {
		if a.PractitionerID != practitionerID {
			continue
		}
		if a.Date.Before(fromDay) || a.Date.After(toDay) {
			continue
		}
		result = append(result, *a)
	}
	return result, nil
}

func (r *MemoryRepository) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *MemoryRepository) InsertIfAbsent(ctx context.Context, a Appointment) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.Practitioners != nil && !r.Practitioners[a.PractitionerID] {
		return nil, ErrUnknownPractitioner
	}
	if r.Patients != nil && !r.Patients[a.PatientID] {
		return nil, ErrUnknownPatient
	}

	key := activeSlot{practitioner: a.PractitionerID, slot: a.SlotKey()}
	if _, taken := r.active[key]; taken {
		return nil, ErrSlotConflict
	}

	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	now := time.Now()
	a.CreatedAt = now
	a.UpdatedAt = now

	stored := a
	r.appointments[a.ID] = &stored
	r.active[key] = a.ID

	cp := stored
	return &cp, nil
}

func (r *MemoryRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.appointments[id]
	if !ok || a.Status != from {
		return nil, ErrAppointmentNotFound
	}

	wasActive := a.Status.Occupies()
	a.Status = to
	a.UpdatedAt = time.Now()

	key := activeSlot{practitioner: a.PractitionerID, slot: a.SlotKey()}
	if wasActive && !to.Occupies() {
		delete(r.active, key)
	} else if !wasActive && to.Occupies() {
		r.active[key] = a.ID
	}

	cp := *a
	return &cp, nil
}

func (r *MemoryRepository) FindOverdueScheduled(ctx context.Context, cutoff time.Time) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []Appointment
	for _, a := range r.appointments {
		if a.Status != StatusScheduled {
			continue
		}
		startAt := a.Date.Add(time.Duration(a.StartTime.SecondsFromMidnight()) * time.Second)
		if startAt.Before(cutoff) {
			result = append(result, *a)
		}
	}
	return result, nil
}

func (r *MemoryRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ev.ID = int64(len(r.events) + 1)
	r.events = append(r.events, ev)
	return nil
}

// Events returns a copy of the recorded event log.
func (r *MemoryRepository) Events() []EventLog {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]EventLog, len(r.events))
	copy(out, r.events)
	return out
}
