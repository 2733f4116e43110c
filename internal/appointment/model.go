package appointment

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/schedule"
)

type Status string

const (
	StatusScheduled Status = "Scheduled"
	StatusCompleted Status = "Completed"
	StatusCancelled Status = "Cancelled"
	StatusNoShow    Status = "NoShow"
)

// Occupies reports whether an appointment in this status claims its slot.
// Completed and NoShow visits keep their historical slot; only a
// cancellation frees it.
func (s Status) Occupies() bool {
	return s != StatusCancelled
}

// Appointment is one booked slot for a practitioner. Date and StartTime
// are fixed at creation; only Status and Notes may change afterwards,
// and rows are never physically deleted.
type Appointment struct {
	ID             uuid.UUID
	PractitionerID uuid.UUID
	PatientID      uuid.UUID
	Date           time.Time // facility-local midnight
	StartTime      schedule.TimeOfDay
	Status         Status
	Notes          string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// SlotKey identifies the grid unit this appointment occupies.
func (a *Appointment) SlotKey() schedule.Key {
	return schedule.Key{
		Date:  a.Date.Format(time.DateOnly),
		Start: a.StartTime.String(),
	}
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}
