package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/schedule"
)

const (
	EventAppointmentBooked    = "APPOINTMENT_BOOKED"
	EventAppointmentCancelled = "APPOINTMENT_CANCELLED"
	EventAppointmentCompleted = "APPOINTMENT_COMPLETED"
	EventAppointmentNoShow    = "APPOINTMENT_NO_SHOW"
)

var (
	ErrOffGridTime             = errors.New("start time is not on the configured work-hour grid")
	ErrPastDate                = errors.New("date is in the past")
	ErrNotWorkingDay           = errors.New("date does not fall on a working day")
	ErrMissingParty            = errors.New("practitioner and patient ids are required")
	ErrInvalidStatusTransition = errors.New("invalid status transition")
)

// GridCache holds rendered week views between mutations. Implementations
// are best-effort: a miss or a failed set only costs a storage re-read.
type GridCache interface {
	Get(ctx context.Context, practitionerID uuid.UUID, weekStart time.Time) (*WeekView, bool)
	Set(ctx context.Context, practitionerID uuid.UUID, weekStart time.Time, view *WeekView)
	Invalidate(ctx context.Context, practitionerID uuid.UUID, weekStart time.Time)
}

// GridSlot is one unit of the merged week view: the grid slot plus its
// booking state.
type GridSlot struct {
	Slot        schedule.Slot `json:"slot"`
	Occupied    bool          `json:"occupied"`
	Appointment *Appointment  `json:"appointment,omitempty"`
}

type WeekView struct {
	Range schedule.WeekRange `json:"range"`
	Slots []GridSlot         `json:"slots"`
}

// Service orchestrates booking: validation, the conflict-checked commit
// and the occupancy rebuild afterwards. It is the only component with
// side effects; week and grid math stay pure in the schedule package.
//
// Concurrency is delegated to the repository: the single atomic
// InsertIfAbsent is the arbiter when two callers race for a slot. The
// service holds no locks of its own.
type Service struct {
	repo  Repository
	grids GridCache
	cfg   config.Config
	log   zerolog.Logger
	now   func() time.Time
}

// NewService wires the booking service. grids may be nil, in which case
// every week view is rebuilt from storage on demand.
func NewService(repo Repository, grids GridCache, cfg config.Config, log zerolog.Logger) *Service {
	return &Service{
		repo:  repo,
		grids: grids,
		cfg:   cfg,
		log:   log.With().Str("component", "booking").Logger(),
		now:   time.Now,
	}
}

// Book validates the requested slot and commits it with a single
// insert-if-absent. There is no client-side occupancy check on this
// path: the storage uniqueness constraint closes the gap between the
// grid the caller saw and the moment of the write. On conflict the
// caller gets ErrSlotConflict and nothing changed.
func (s *Service) Book(ctx context.Context, practitionerID, patientID uuid.UUID, date time.Time, start schedule.TimeOfDay, notes string) (*Appointment, error) {
	if practitionerID == uuid.Nil || patientID == uuid.Nil {
		return nil, ErrMissingParty
	}

	day := schedule.Midnight(date)
	if !schedule.IsWorkingDay(day) {
		return nil, ErrNotWorkingDay
	}
	if day.Before(schedule.Midnight(s.now())) {
		return nil, ErrPastDate
	}
	if !s.onGrid(start) {
		return nil, ErrOffGridTime
	}

	created, err := s.repo.InsertIfAbsent(ctx, Appointment{
		ID:             uuid.New(),
		PractitionerID: practitionerID,
		PatientID:      patientID,
		Date:           day,
		StartTime:      start,
		Status:         StatusScheduled,
		Notes:          notes,
	})

	// The attempt may have changed server state either way, so the
	// derived view is rebuilt from a fresh read rather than patched.
	s.refreshWeek(ctx, practitionerID, day)

	if err != nil {
		if errors.Is(err, ErrSlotConflict) {
			s.log.Info().
				Str("practitioner_id", practitionerID.String()).
				Str("date", day.Format(time.DateOnly)).
				Str("start_time", start.String()).
				Msg("booking lost slot race")
			return nil, err
		}
		return nil, fmt.Errorf("commit booking: %w", err)
	}

	s.logEvent(ctx, created.ID, EventAppointmentBooked, map[string]any{
		"practitioner_id": practitionerID.String(),
		"patient_id":      patientID.String(),
		"date":            day.Format(time.DateOnly),
		"start_time":      start.String(),
	})

	return created, nil
}

// WeekGrid returns the merged week view for the practitioner: every grid
// slot of the Monday-to-Friday week containing anyDateInWeek, each marked
// free or occupied. Served from cache when warm; any mutation for this
// practitioner and week drops the cache entry first.
func (s *Service) WeekGrid(ctx context.Context, practitionerID uuid.UUID, anyDateInWeek time.Time) (*WeekView, error) {
	if practitionerID == uuid.Nil {
		return nil, ErrMissingParty
	}

	weekStart := schedule.WeekStart(anyDateInWeek)

	if s.grids != nil {
		if view, ok := s.grids.Get(ctx, practitionerID, weekStart); ok {
			return view, nil
		}
	}

	view, err := s.buildWeek(ctx, practitionerID, weekStart)
	if err != nil {
		return nil, err
	}

	if s.grids != nil {
		s.grids.Set(ctx, practitionerID, weekStart, view)
	}
	return view, nil
}

// Cancel frees the appointment's slot. Cancelling an already-cancelled
// appointment is a no-op success.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, id, StatusCancelled, EventAppointmentCancelled)
}

// Complete marks the visit as having happened. The slot stays occupied.
func (s *Service) Complete(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, id, StatusCompleted, EventAppointmentCompleted)
}

// MarkNoShow records that the patient did not turn up. The slot stays
// occupied for the historical record.
func (s *Service) MarkNoShow(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, id, StatusNoShow, EventAppointmentNoShow)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return appt, nil
}

// MarkOverdueNoShows sweeps Scheduled appointments whose slot ended more
// than the configured grace ago into NoShow. Intended for the worker.
func (s *Service) MarkOverdueNoShows(ctx context.Context) (int, error) {
	cutoff := s.now().
		Add(-s.cfg.NoShowGrace).
		Add(-time.Duration(s.cfg.SlotMinutes) * time.Minute)

	overdue, err := s.repo.FindOverdueScheduled(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("find overdue appointments: %w", err)
	}

	marked := 0
	for _, appt := range overdue {
		updated, err := s.repo.UpdateStatus(ctx, appt.ID, StatusScheduled, StatusNoShow)
		if err != nil {
			if errors.Is(err, ErrAppointmentNotFound) {
				continue // moved by someone else since the read
			}
			s.log.Error().Err(err).
				Str("appointment_id", appt.ID.String()).
				Msg("failed to mark overdue appointment as no-show")
			continue
		}
		marked++
		s.refreshWeek(ctx, updated.PractitionerID, updated.Date)
		s.logEvent(ctx, updated.ID, EventAppointmentNoShow, map[string]any{
			"reason": "worker",
		})
	}

	return marked, nil
}

// transition applies a status change from Scheduled. Repeating a
// transition that already happened is a no-op success, so callers can
// retry safely.
func (s *Service) transition(ctx context.Context, id uuid.UUID, to Status, eventType string) (*Appointment, error) {
	appt, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}

	if appt.Status == to {
		return appt, nil
	}
	if appt.Status != StatusScheduled {
		return nil, fmt.Errorf("%w: %s to %s", ErrInvalidStatusTransition, appt.Status, to)
	}

	updated, err := s.repo.UpdateStatus(ctx, id, StatusScheduled, to)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			// Lost a race with another transition; re-read to see where
			// the row landed.
			current, getErr := s.repo.GetByID(ctx, id)
			if getErr == nil && current.Status == to {
				return current, nil
			}
			return nil, fmt.Errorf("%w: appointment left Scheduled concurrently", ErrInvalidStatusTransition)
		}
		return nil, fmt.Errorf("update status: %w", err)
	}

	s.refreshWeek(ctx, updated.PractitionerID, updated.Date)
	s.logEvent(ctx, updated.ID, eventType, map[string]any{
		"from": string(StatusScheduled),
		"to":   string(to),
	})

	return updated, nil
}

func (s *Service) onGrid(start schedule.TimeOfDay) bool {
	for _, h := range s.cfg.WorkHours {
		if h == start {
			return true
		}
	}
	return false
}

// buildWeek reads the practitioner's appointments for the week from
// storage and merges the fixed grid with a freshly built occupancy index.
func (s *Service) buildWeek(ctx context.Context, practitionerID uuid.UUID, weekStart time.Time) (*WeekView, error) {
	r := schedule.RangeFor(weekStart)

	appts, err := s.repo.Query(ctx, practitionerID, r.Start, r.End)
	if err != nil {
		return nil, fmt.Errorf("query week appointments: %w", err)
	}

	idx := BuildOccupancy(appts)

	grid := schedule.Grid(r.Start, s.cfg.WorkHours, s.cfg.SlotMinutes)
	slots := make([]GridSlot, 0, len(grid))
	for _, slot := range grid {
		gs := GridSlot{Slot: slot}
		if appt, ok := idx.Get(slot.Key()); ok {
			gs.Occupied = true
			gs.Appointment = appt
		}
		slots = append(slots, gs)
	}

	return &WeekView{Range: r, Slots: slots}, nil
}

// refreshWeek drops the cached view for the affected week and rebuilds
// it from storage, so any observer who reads after the mutation sees a
// view consistent with what was committed. The rebuild itself is
// best-effort: if it fails, the invalidation alone already forces the
// next reader back to storage.
func (s *Service) refreshWeek(ctx context.Context, practitionerID uuid.UUID, anyDateInWeek time.Time) {
	weekStart := schedule.WeekStart(anyDateInWeek)

	if s.grids != nil {
		s.grids.Invalidate(ctx, practitionerID, weekStart)
	}

	view, err := s.buildWeek(ctx, practitionerID, weekStart)
	if err != nil {
		s.log.Warn().Err(err).
			Str("practitioner_id", practitionerID.String()).
			Str("week_start", weekStart.Format(time.DateOnly)).
			Msg("occupancy rebuild after mutation failed")
		return
	}

	if s.grids != nil {
		s.grids.Set(ctx, practitionerID, weekStart, view)
	}
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Error().Err(err).Str("event_type", eventType).Msg("failed to marshal event payload")
		data = nil
	}

	apptID := appointmentID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.log.Error().Err(err).
			Str("event_type", eventType).
			Str("appointment_id", appointmentID.String()).
			Msg("failed to insert event log")
	}
}
