package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/clinic-scheduling/internal/schedule"
)

// PgRepository stores appointments in Postgres. The no-double-booking
// invariant is carried by a partial unique index over
// (practitioner_id, date, start_time) WHERE status <> 'Cancelled', so
// the insert itself is the conflict check.
type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const appointmentColumns = `id, practitioner_id, patient_id, date, start_time::text, status, notes, created_at, updated_at`

// Helpers

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var startRaw string
	var notes *string

	err := row.Scan(
		&a.ID,
		&a.PractitionerID,
		&a.PatientID,
		&a.Date,
		&startRaw,
		&a.Status,
		&notes,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	start, err := schedule.ParseTimeOfDay(startRaw)
	if err != nil {
		return nil, fmt.Errorf("malformed start_time %q in storage: %w", startRaw, err)
	}
	a.StartTime = start

	if notes != nil {
		a.Notes = *notes
	}
	return &a, nil
}

// mapWriteError translates constraint violations into domain errors and
// everything without a server-side error code into a transport failure.
func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation on the active-slot index
			return ErrSlotConflict
		case "23503": // foreign_key_violation
			if strings.Contains(pgErr.ConstraintName, "practitioner") {
				return ErrUnknownPractitioner
			}
			return ErrUnknownPatient
		}
		return err
	}
	if errors.Is(err, ErrAppointmentNotFound) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
}

func mapReadError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return err
	}
	if errors.Is(err, ErrAppointmentNotFound) || errors.Is(err, schedule.ErrInvalidTimeOfDay) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
}

// Interface methods

func (r *PgRepository) Query(ctx context.Context, practitionerID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE practitioner_id = $1
		  AND date BETWEEN $2 AND $3
		ORDER BY date, start_time
	`, practitionerID, from, to)
	if err != nil {
		return nil, mapReadError(err)
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, mapReadError(err)
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, mapReadError(err)
	}

	return result, nil
}

func (r *PgRepository) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	a, err := scanAppointment(row)
	if err != nil {
		return nil, mapReadError(err)
	}
	return a, nil
}

func (r *PgRepository) InsertIfAbsent(ctx context.Context, a Appointment) (*Appointment, error) {
	id := a.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO appointments (id, practitioner_id, patient_id, date, start_time, status, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5::time, 'Scheduled', $6, now(), now())
		RETURNING `+appointmentColumns+`
	`, id, a.PractitionerID, a.PatientID, a.Date, a.StartTime.String(), a.Notes)

	created, err := scanAppointment(row)
	if err != nil {
		return nil, mapWriteError(err)
	}
	return created, nil
}

func (r *PgRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentColumns+`
	`, id, to, from)

	updated, err := scanAppointment(row)
	if err != nil {
		return nil, mapWriteError(err)
	}
	return updated, nil
}

func (r *PgRepository) FindOverdueScheduled(ctx context.Context, cutoff time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = 'Scheduled'
		  AND date + start_time < $1
	`, cutoff)
	if err != nil {
		return nil, mapReadError(err)
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, mapReadError(err)
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, mapReadError(err)
	}

	return result, nil
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
