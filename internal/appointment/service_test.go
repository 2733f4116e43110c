package appointment

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/schedule"
)

// The fixed "now" for these tests: Monday 2024-05-13, 08:00 local.
var testNow = time.Date(2024, time.May, 13, 8, 0, 0, 0, time.Local)

func testConfig() config.Config {
	hours := make([]schedule.TimeOfDay, len(config.DefaultWorkHours))
	copy(hours, config.DefaultWorkHours)
	return config.Config{
		WorkHours:   hours,
		SlotMinutes: 60,
		NoShowGrace: 2 * time.Hour,
	}
}

type fakeGridCache struct {
	mu            sync.Mutex
	entries       map[string]*WeekView
	invalidations int
}

func newFakeGridCache() *fakeGridCache {
	return &fakeGridCache{entries: make(map[string]*WeekView)}
}

func cacheKey(practitionerID uuid.UUID, weekStart time.Time) string {
	return fmt.Sprintf("%s:%s", practitionerID, weekStart.Format(time.DateOnly))
}

func (c *fakeGridCache) Get(_ context.Context, practitionerID uuid.UUID, weekStart time.Time) (*WeekView, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	view, ok := c.entries[cacheKey(practitionerID, weekStart)]
	return view, ok
}

func (c *fakeGridCache) Set(_ context.Context, practitionerID uuid.UUID, weekStart time.Time, view *WeekView) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cacheKey(practitionerID, weekStart)] = view
}

func (c *fakeGridCache) Invalidate(_ context.Context, practitionerID uuid.UUID, weekStart time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, cacheKey(practitionerID, weekStart))
	c.invalidations++
}

func newTestService(repo Repository, grids GridCache) *Service {
	svc := NewService(repo, grids, testConfig(), zerolog.Nop())
	svc.now = func() time.Time { return testNow }
	return svc
}

func slotAt(t *testing.T, day, start string) (time.Time, schedule.TimeOfDay) {
	t.Helper()
	date, err := time.ParseInLocation(time.DateOnly, day, time.Local)
	require.NoError(t, err)
	tod, err := schedule.ParseTimeOfDay(start)
	require.NoError(t, err)
	return date, tod
}

func TestBookSuccess(t *testing.T) {
	repo := NewMemoryRepository()
	svc := newTestService(repo, newFakeGridCache())

	practitioner, patient := uuid.New(), uuid.New()
	date, start := slotAt(t, "2024-05-13", "09:00:00")

	appt, err := svc.Book(context.Background(), practitioner, patient, date, start, "first visit")
	require.NoError(t, err)

	assert.Equal(t, StatusScheduled, appt.Status)
	assert.Equal(t, practitioner, appt.PractitionerID)
	assert.Equal(t, patient, appt.PatientID)
	assert.Equal(t, "2024-05-13", appt.Date.Format(time.DateOnly))
	assert.Equal(t, "09:00:00", appt.StartTime.String())
	assert.Equal(t, "first visit", appt.Notes)

	events := repo.Events()
	require.Len(t, events, 1)
	assert.Equal(t, EventAppointmentBooked, events[0].EventType)
}

func TestBookConflict(t *testing.T) {
	repo := NewMemoryRepository()
	svc := newTestService(repo, newFakeGridCache())

	practitioner := uuid.New()
	date, start := slotAt(t, "2024-05-13", "09:00:00")

	_, err := svc.Book(context.Background(), practitioner, uuid.New(), date, start, "")
	require.NoError(t, err)

	_, err = svc.Book(context.Background(), practitioner, uuid.New(), date, start, "")
	assert.ErrorIs(t, err, ErrSlotConflict)

	// A different practitioner can still take the same wall-clock slot.
	_, err = svc.Book(context.Background(), uuid.New(), uuid.New(), date, start, "")
	assert.NoError(t, err)
}

func TestBookConcurrentAtMostOne(t *testing.T) {
	repo := NewMemoryRepository()
	svc := newTestService(repo, newFakeGridCache())

	practitioner := uuid.New()
	date, start := slotAt(t, "2024-05-15", "10:00:00")

	const callers = 16
	var wg sync.WaitGroup
	errs := make([]error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Book(context.Background(), practitioner, uuid.New(), date, start, "")
		}(i)
	}
	wg.Wait()

	successes, conflicts := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			successes++
		case assert.ErrorIs(t, err, ErrSlotConflict):
			conflicts++
		}
	}
	assert.Equal(t, 1, successes, "exactly one caller must win the slot")
	assert.Equal(t, callers-1, conflicts)

	// Storage ends with exactly one active row for the slot.
	view, err := svc.WeekGrid(context.Background(), practitioner, date)
	require.NoError(t, err)
	occupied := 0
	for _, gs := range view.Slots {
		if gs.Occupied {
			occupied++
		}
	}
	assert.Equal(t, 1, occupied)
}

func TestBookValidation(t *testing.T) {
	repo := NewMemoryRepository()
	svc := newTestService(repo, newFakeGridCache())
	practitioner, patient := uuid.New(), uuid.New()

	t.Run("past date", func(t *testing.T) {
		date, start := slotAt(t, "2024-05-10", "09:00:00")
		_, err := svc.Book(context.Background(), practitioner, patient, date, start, "")
		assert.ErrorIs(t, err, ErrPastDate)
	})

	t.Run("weekend", func(t *testing.T) {
		date, start := slotAt(t, "2024-05-18", "09:00:00")
		_, err := svc.Book(context.Background(), practitioner, patient, date, start, "")
		assert.ErrorIs(t, err, ErrNotWorkingDay)
	})

	t.Run("off-grid time", func(t *testing.T) {
		for _, bad := range []string{"08:00:00", "13:00:00", "09:30:00", "17:00:00"} {
			date, start := slotAt(t, "2024-05-14", bad)
			_, err := svc.Book(context.Background(), practitioner, patient, date, start, "")
			assert.ErrorIs(t, err, ErrOffGridTime, "expected %s to be off grid", bad)
		}
	})

	t.Run("missing ids", func(t *testing.T) {
		date, start := slotAt(t, "2024-05-14", "09:00:00")
		_, err := svc.Book(context.Background(), uuid.Nil, patient, date, start, "")
		assert.ErrorIs(t, err, ErrMissingParty)
		_, err = svc.Book(context.Background(), practitioner, uuid.Nil, date, start, "")
		assert.ErrorIs(t, err, ErrMissingParty)
	})

	// Nothing was written by any rejected attempt.
	view, err := svc.WeekGrid(context.Background(), practitioner, testNow)
	require.NoError(t, err)
	for _, gs := range view.Slots {
		assert.False(t, gs.Occupied)
	}
}

func TestBookReferentialRejection(t *testing.T) {
	repo := NewMemoryRepository()
	knownPractitioner, knownPatient := uuid.New(), uuid.New()
	repo.Practitioners = map[uuid.UUID]bool{knownPractitioner: true}
	repo.Patients = map[uuid.UUID]bool{knownPatient: true}

	svc := newTestService(repo, newFakeGridCache())
	date, start := slotAt(t, "2024-05-14", "09:00:00")

	_, err := svc.Book(context.Background(), uuid.New(), knownPatient, date, start, "")
	assert.ErrorIs(t, err, ErrUnknownPractitioner)

	_, err = svc.Book(context.Background(), knownPractitioner, uuid.New(), date, start, "")
	assert.ErrorIs(t, err, ErrUnknownPatient)

	_, err = svc.Book(context.Background(), knownPractitioner, knownPatient, date, start, "")
	assert.NoError(t, err)
}

func TestWeekGridMergesOccupancy(t *testing.T) {
	repo := NewMemoryRepository()
	svc := newTestService(repo, newFakeGridCache())
	practitioner := uuid.New()

	d1, s1 := slotAt(t, "2024-05-13", "09:00:00")
	d2, s2 := slotAt(t, "2024-05-16", "14:00:00")
	booked1, err := svc.Book(context.Background(), practitioner, uuid.New(), d1, s1, "")
	require.NoError(t, err)
	_, err = svc.Book(context.Background(), practitioner, uuid.New(), d2, s2, "")
	require.NoError(t, err)

	view, err := svc.WeekGrid(context.Background(), practitioner, time.Date(2024, time.May, 15, 12, 0, 0, 0, time.Local))
	require.NoError(t, err)

	assert.Equal(t, "2024-05-13", view.Range.Start.Format(time.DateOnly))
	assert.Equal(t, "2024-05-17", view.Range.End.Format(time.DateOnly))
	require.Len(t, view.Slots, 35)

	occupied := make(map[schedule.Key]*Appointment)
	for _, gs := range view.Slots {
		if gs.Occupied {
			require.NotNil(t, gs.Appointment)
			occupied[gs.Slot.Key()] = gs.Appointment
		} else {
			assert.Nil(t, gs.Appointment)
		}
	}
	require.Len(t, occupied, 2)
	assert.Equal(t, booked1.ID, occupied[schedule.Key{Date: "2024-05-13", Start: "09:00:00"}].ID)
	assert.Contains(t, occupied, schedule.Key{Date: "2024-05-16", Start: "14:00:00"})
}

func TestWeekGridServedFromCache(t *testing.T) {
	repo := NewMemoryRepository()
	grids := newFakeGridCache()
	svc := newTestService(repo, grids)
	practitioner := uuid.New()

	marker := &WeekView{Range: schedule.RangeFor(testNow)}
	grids.Set(context.Background(), practitioner, schedule.WeekStart(testNow), marker)

	view, err := svc.WeekGrid(context.Background(), practitioner, testNow)
	require.NoError(t, err)
	assert.Same(t, marker, view)
}

func TestBookRefreshesCache(t *testing.T) {
	repo := NewMemoryRepository()
	grids := newFakeGridCache()
	svc := newTestService(repo, grids)
	practitioner := uuid.New()

	date, start := slotAt(t, "2024-05-13", "09:00:00")
	_, err := svc.Book(context.Background(), practitioner, uuid.New(), date, start, "")
	require.NoError(t, err)

	assert.Equal(t, 1, grids.invalidations)

	// The rebuilt entry already reflects the committed booking.
	view, ok := grids.Get(context.Background(), practitioner, schedule.WeekStart(date))
	require.True(t, ok)
	found := false
	for _, gs := range view.Slots {
		if gs.Slot.Key() == (schedule.Key{Date: "2024-05-13", Start: "09:00:00"}) {
			found = gs.Occupied
		}
	}
	assert.True(t, found, "cached view must show the booked slot occupied")
}

func TestCancelFreesSlot(t *testing.T) {
	repo := NewMemoryRepository()
	svc := newTestService(repo, newFakeGridCache())
	practitioner := uuid.New()
	date, start := slotAt(t, "2024-05-14", "11:00:00")

	appt, err := svc.Book(context.Background(), practitioner, uuid.New(), date, start, "")
	require.NoError(t, err)

	cancelled, err := svc.Cancel(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)

	view, err := svc.WeekGrid(context.Background(), practitioner, date)
	require.NoError(t, err)
	for _, gs := range view.Slots {
		assert.False(t, gs.Occupied, "cancelled slot %v still occupied", gs.Slot.Key())
	}

	// The freed slot can be claimed again.
	_, err = svc.Book(context.Background(), practitioner, uuid.New(), date, start, "")
	assert.NoError(t, err)
}

func TestCancelIdempotent(t *testing.T) {
	repo := NewMemoryRepository()
	svc := newTestService(repo, newFakeGridCache())
	date, start := slotAt(t, "2024-05-14", "09:00:00")

	appt, err := svc.Book(context.Background(), uuid.New(), uuid.New(), date, start, "")
	require.NoError(t, err)

	first, err := svc.Cancel(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, first.Status)

	// Re-cancelling is a no-op success, not an error.
	second, err := svc.Cancel(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, second.Status)
}

func TestCompleteKeepsSlotOccupied(t *testing.T) {
	repo := NewMemoryRepository()
	svc := newTestService(repo, newFakeGridCache())
	practitioner := uuid.New()
	date, start := slotAt(t, "2024-05-13", "16:00:00")

	appt, err := svc.Book(context.Background(), practitioner, uuid.New(), date, start, "")
	require.NoError(t, err)

	completed, err := svc.Complete(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, completed.Status)

	view, err := svc.WeekGrid(context.Background(), practitioner, date)
	require.NoError(t, err)
	var slot *GridSlot
	for i := range view.Slots {
		if view.Slots[i].Slot.Key() == (schedule.Key{Date: "2024-05-13", Start: "16:00:00"}) {
			slot = &view.Slots[i]
		}
	}
	require.NotNil(t, slot)
	assert.True(t, slot.Occupied, "completed visit keeps its slot")

	// A booking attempt for the completed slot still conflicts.
	_, err = svc.Book(context.Background(), practitioner, uuid.New(), date, start, "")
	assert.ErrorIs(t, err, ErrSlotConflict)
}

func TestTransitionFromTerminalRejected(t *testing.T) {
	repo := NewMemoryRepository()
	svc := newTestService(repo, newFakeGridCache())
	date, start := slotAt(t, "2024-05-14", "10:00:00")

	appt, err := svc.Book(context.Background(), uuid.New(), uuid.New(), date, start, "")
	require.NoError(t, err)

	_, err = svc.Complete(context.Background(), appt.ID)
	require.NoError(t, err)

	_, err = svc.Cancel(context.Background(), appt.ID)
	assert.ErrorIs(t, err, ErrInvalidStatusTransition)
	_, err = svc.MarkNoShow(context.Background(), appt.ID)
	assert.ErrorIs(t, err, ErrInvalidStatusTransition)
}

func TestTransitionUnknownAppointment(t *testing.T) {
	svc := newTestService(NewMemoryRepository(), newFakeGridCache())
	_, err := svc.Cancel(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
}

func TestMarkOverdueNoShows(t *testing.T) {
	repo := NewMemoryRepository()
	svc := newTestService(repo, newFakeGridCache())
	date, start := slotAt(t, "2024-05-13", "09:00:00")

	appt, err := svc.Book(context.Background(), uuid.New(), uuid.New(), date, start, "")
	require.NoError(t, err)

	// Advance the clock one week; the 09:00 Monday slot is long over.
	svc.now = func() time.Time { return testNow.AddDate(0, 0, 7) }

	marked, err := svc.MarkOverdueNoShows(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, marked)

	updated, err := svc.Get(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusNoShow, updated.Status)

	// The sweep is idempotent: nothing left to mark.
	marked, err = svc.MarkOverdueNoShows(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, marked)
}

func TestMarkOverdueNoShowsRespectsGrace(t *testing.T) {
	repo := NewMemoryRepository()
	svc := newTestService(repo, newFakeGridCache())
	date, start := slotAt(t, "2024-05-13", "09:00:00")

	_, err := svc.Book(context.Background(), uuid.New(), uuid.New(), date, start, "")
	require.NoError(t, err)

	// 11:30: the slot ended at 10:00 but the two-hour grace has not run
	// out yet.
	svc.now = func() time.Time {
		return time.Date(2024, time.May, 13, 11, 30, 0, 0, time.Local)
	}

	marked, err := svc.MarkOverdueNoShows(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, marked)
}
