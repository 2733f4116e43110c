package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrAppointmentNotFound = errors.New("appointment not found")

	// ErrSlotConflict means the slot already holds an active appointment.
	// It is raised by the storage-level uniqueness constraint at commit
	// time, which is the only place mutual exclusion is guaranteed.
	ErrSlotConflict = errors.New("slot already booked")

	// Referential rejections: the id was well-formed but storage does
	// not know it.
	ErrUnknownPractitioner = errors.New("practitioner not known to storage")
	ErrUnknownPatient      = errors.New("patient not known to storage")

	// ErrStorageUnavailable wraps transport-level failures (network,
	// timeouts). Reads may be retried; a create must never be blindly
	// retried without re-checking occupancy first.
	ErrStorageUnavailable = errors.New("appointment storage unavailable")
)

// Repository is the durable store for appointments. Implementations must
// enforce uniqueness of (practitioner, date, start time) across active
// rows at commit time; InsertIfAbsent is the single atomic operation the
// booking path relies on.
type Repository interface {
	// Query returns all appointments, any status, for the practitioner
	// with date in [from, to] inclusive.
	Query(ctx context.Context, practitionerID uuid.UUID, from, to time.Time) ([]Appointment, error)

	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// InsertIfAbsent atomically creates the appointment unless an active
	// appointment already holds the same (practitioner, date, start time).
	// Returns ErrSlotConflict when it loses that race, with no partial
	// effects.
	InsertIfAbsent(ctx context.Context, a Appointment) (*Appointment, error)

	// UpdateStatus transitions id from one status to another, returning
	// ErrAppointmentNotFound when no row matches (id, from).
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error)

	// FindOverdueScheduled lists Scheduled appointments whose slot start
	// lies before the cutoff. Used by the no-show worker.
	FindOverdueScheduled(ctx context.Context, cutoff time.Time) ([]Appointment, error)

	InsertEvent(ctx context.Context, ev EventLog) error
}
