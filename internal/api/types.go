package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/directory"
)

// Request and response shapes are fixed structs validated at the
// boundary; nothing dynamic reaches the booking service.

type BookAppointmentRequest struct {
	PractitionerID string `json:"practitioner_id"`
	PatientID      string `json:"patient_id"`
	Date           string `json:"date"`       // YYYY-MM-DD, facility-local
	StartTime      string `json:"start_time"` // HH:MM:SS, 24-hour
	Notes          string `json:"notes,omitempty"`
}

type AppointmentResponse struct {
	ID             uuid.UUID `json:"id"`
	PractitionerID uuid.UUID `json:"practitioner_id"`
	PatientID      uuid.UUID `json:"patient_id"`
	Date           string    `json:"date"`
	StartTime      string    `json:"start_time"`
	Status         string    `json:"status"`
	Notes          string    `json:"notes,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type GridSlotResponse struct {
	Date            string               `json:"date"`
	StartTime       string               `json:"start_time"`
	DurationMinutes int                  `json:"duration_minutes"`
	Occupied        bool                 `json:"occupied"`
	Appointment     *AppointmentResponse `json:"appointment,omitempty"`
}

type WeekGridResponse struct {
	WeekStart string             `json:"week_start"`
	WeekEnd   string             `json:"week_end"`
	Slots     []GridSlotResponse `json:"slots"`
}

type PractitionerResponse struct {
	ID          uuid.UUID `json:"id"`
	DisplayName string    `json:"display_name"`
	Specialty   *string   `json:"specialty,omitempty"`
}

type PatientResponse struct {
	ID          uuid.UUID `json:"id"`
	DisplayName string    `json:"display_name"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toAppointmentResponse(a *appointment.Appointment) *AppointmentResponse {
	if a == nil {
		return nil
	}
	return &AppointmentResponse{
		ID:             a.ID,
		PractitionerID: a.PractitionerID,
		PatientID:      a.PatientID,
		Date:           a.Date.Format(time.DateOnly),
		StartTime:      a.StartTime.String(),
		Status:         string(a.Status),
		Notes:          a.Notes,
		CreatedAt:      a.CreatedAt,
		UpdatedAt:      a.UpdatedAt,
	}
}

func toWeekGridResponse(view *appointment.WeekView) WeekGridResponse {
	resp := WeekGridResponse{
		WeekStart: view.Range.Start.Format(time.DateOnly),
		WeekEnd:   view.Range.End.Format(time.DateOnly),
		Slots:     make([]GridSlotResponse, 0, len(view.Slots)),
	}
	for _, gs := range view.Slots {
		resp.Slots = append(resp.Slots, GridSlotResponse{
			Date:            gs.Slot.Date.Format(time.DateOnly),
			StartTime:       gs.Slot.Start.String(),
			DurationMinutes: gs.Slot.DurationMinutes,
			Occupied:        gs.Occupied,
			Appointment:     toAppointmentResponse(gs.Appointment),
		})
	}
	return resp
}

func toPractitionerResponse(p directory.Practitioner) PractitionerResponse {
	return PractitionerResponse{ID: p.ID, DisplayName: p.DisplayName, Specialty: p.Specialty}
}

func toPatientResponse(p directory.Patient) PatientResponse {
	return PatientResponse{ID: p.ID, DisplayName: p.DisplayName}
}
