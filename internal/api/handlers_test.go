package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/directory"
	"github.com/hackgods/clinic-scheduling/internal/schedule"
)

const testSecret = "test-secret"

type fakeDirectory struct {
	practitioners []directory.Practitioner
	patients      []directory.Patient
}

func (d *fakeDirectory) ListPractitioners(context.Context) ([]directory.Practitioner, error) {
	return d.practitioners, nil
}

func (d *fakeDirectory) ListPatients(context.Context) ([]directory.Patient, error) {
	return d.patients, nil
}

type testEnv struct {
	router http.Handler
	repo   *appointment.MemoryRepository
	token  string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := config.Config{
		WorkHours:   config.DefaultWorkHours,
		SlotMinutes: 60,
		JWTSecret:   testSecret,
	}

	repo := appointment.NewMemoryRepository()
	svc := appointment.NewService(repo, nil, cfg, zerolog.Nop())

	dir := &fakeDirectory{
		practitioners: []directory.Practitioner{{ID: uuid.New(), DisplayName: "Dr. Reyes"}},
		patients:      []directory.Patient{{ID: uuid.New(), DisplayName: "Ana Souza"}},
	}

	router := NewRouter(RouterConfig{
		Service:   svc,
		Directory: dir,
		JWTSecret: cfg.JWTSecret,
		Env:       "test",
		Version:   "test",
		Log:       zerolog.Nop(),
	})

	claims := jwt.MapClaims{"sub": "front-desk", "exp": time.Now().Add(time.Hour).Unix()}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	return &testEnv{router: router, repo: repo, token: token}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, authed bool) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed {
		req.Header.Set("Authorization", "Bearer "+e.token)
	}

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

// nextMonday keeps every test date in the future relative to the real
// clock the service runs on.
func nextMonday() time.Time {
	return schedule.Shift(schedule.WeekStart(time.Now()), 1)
}

func bookRequest(practitionerID, patientID uuid.UUID, date time.Time, startTime string) BookAppointmentRequest {
	return BookAppointmentRequest{
		PractitionerID: practitionerID.String(),
		PatientID:      patientID.String(),
		Date:           date.Format(time.DateOnly),
		StartTime:      startTime,
		Notes:          "checkup",
	}
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/patients", nil, false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "auth_error", resp.Error)

	req := httptest.NewRequest(http.MethodGet, "/patients", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec2 := httptest.NewRecorder()
	env.router.ServeHTTP(rec2, req)
	assert.Equal(t, http.StatusUnauthorized, rec2.Code)
}

func TestBookThenConflict(t *testing.T) {
	env := newTestEnv(t)
	practitioner := uuid.New()
	monday := nextMonday()

	rec := env.do(t, http.MethodPost, "/appointments",
		bookRequest(practitioner, uuid.New(), monday, "09:00:00"), true)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created AppointmentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "Scheduled", created.Status)
	assert.Equal(t, monday.Format(time.DateOnly), created.Date)
	assert.Equal(t, "09:00:00", created.StartTime)

	// An identical second booking loses to the first.
	rec = env.do(t, http.MethodPost, "/appointments",
		bookRequest(practitioner, uuid.New(), monday, "09:00:00"), true)
	assert.Equal(t, http.StatusConflict, rec.Code)

	var conflict ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &conflict))
	assert.Equal(t, "slot_conflict", conflict.Error)
}

func TestBookRejectsBadInput(t *testing.T) {
	env := newTestEnv(t)
	monday := nextMonday()

	t.Run("malformed practitioner id", func(t *testing.T) {
		req := bookRequest(uuid.New(), uuid.New(), monday, "09:00:00")
		req.PractitionerID = "not-a-uuid"
		rec := env.do(t, http.MethodPost, "/appointments", req, true)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("malformed date", func(t *testing.T) {
		req := bookRequest(uuid.New(), uuid.New(), monday, "09:00:00")
		req.Date = "15/05/2024"
		rec := env.do(t, http.MethodPost, "/appointments", req, true)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("off-grid time", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/appointments",
			bookRequest(uuid.New(), uuid.New(), monday, "13:00:00"), true)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "validation_error", resp.Error)
	})

	t.Run("past date", func(t *testing.T) {
		past := schedule.Shift(schedule.WeekStart(time.Now()), -2)
		rec := env.do(t, http.MethodPost, "/appointments",
			bookRequest(uuid.New(), uuid.New(), past, "09:00:00"), true)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})
}

func TestWeekGrid(t *testing.T) {
	env := newTestEnv(t)
	practitioner := uuid.New()
	monday := nextMonday()

	rec := env.do(t, http.MethodPost, "/appointments",
		bookRequest(practitioner, uuid.New(), monday, "10:00:00"), true)
	require.Equal(t, http.StatusCreated, rec.Code)

	// Any date inside the week resolves to the same grid.
	wednesday := monday.AddDate(0, 0, 2)
	rec = env.do(t, http.MethodGet,
		"/practitioners/"+practitioner.String()+"/grid?date="+wednesday.Format(time.DateOnly), nil, true)
	require.Equal(t, http.StatusOK, rec.Code)

	var grid WeekGridResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &grid))
	assert.Equal(t, monday.Format(time.DateOnly), grid.WeekStart)
	require.Len(t, grid.Slots, 35)

	occupied := 0
	for _, slot := range grid.Slots {
		if slot.Occupied {
			occupied++
			require.NotNil(t, slot.Appointment)
			assert.Equal(t, monday.Format(time.DateOnly), slot.Date)
			assert.Equal(t, "10:00:00", slot.StartTime)
		}
	}
	assert.Equal(t, 1, occupied)
}

func TestCancelFreesSlot(t *testing.T) {
	env := newTestEnv(t)
	practitioner := uuid.New()
	monday := nextMonday()

	rec := env.do(t, http.MethodPost, "/appointments",
		bookRequest(practitioner, uuid.New(), monday, "11:00:00"), true)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created AppointmentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = env.do(t, http.MethodPost, "/appointments/"+created.ID.String()+"/cancel", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)

	var cancelled AppointmentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cancelled))
	assert.Equal(t, "Cancelled", cancelled.Status)

	rec = env.do(t, http.MethodGet,
		"/practitioners/"+practitioner.String()+"/grid?date="+monday.Format(time.DateOnly), nil, true)
	require.Equal(t, http.StatusOK, rec.Code)

	var grid WeekGridResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &grid))
	for _, slot := range grid.Slots {
		assert.False(t, slot.Occupied)
	}
}

func TestTransitionUnknownAppointment(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/appointments/"+uuid.NewString()+"/cancel", nil, true)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/appointments/"+uuid.NewString(), nil, true)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDirectoryEndpoints(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/practitioners", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	var practitioners []PractitionerResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &practitioners))
	require.Len(t, practitioners, 1)
	assert.Equal(t, "Dr. Reyes", practitioners[0].DisplayName)

	rec = env.do(t, http.MethodGet, "/patients", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	var patients []PatientResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &patients))
	require.Len(t, patients, 1)
}
