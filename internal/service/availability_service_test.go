package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medicore/hms-api/internal/models"
	appErrors "github.com/medicore/hms-api/pkg/errors"
)

// memCache is a map-backed stand-in for the Redis cache repository.
type memCache struct {
	entries map[string][]byte
	sets    int
	deletes int
}

func newMemCache() *memCache {
	return &memCache{entries: map[string][]byte{}}
}

func (c *memCache) Get(_ context.Context, key string, dest interface{}) error {
	raw, ok := c.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (c *memCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.entries[key] = raw
	c.sets++
	return nil
}

func (c *memCache) Delete(_ context.Context, key string) error {
	delete(c.entries, key)
	c.deletes++
	return nil
}

func newAvailabilityFixture(t *testing.T, cache availabilityCache) (*AvailabilityService, *memAppointments) {
	t.Helper()

	endTime := "12:00"
	schedules := &memSchedules{blocks: []models.ScheduleDefinition{{
		ID:              "sched-1",
		DoctorID:        "doc-1",
		BranchID:        "branch-1",
		DayOfWeek:       models.Monday,
		StartTime:       "09:00",
		EndTime:         &endTime,
		SlotDurationMin: 30,
		Active:          true,
	}}}
	appointments := newMemAppointments()
	slots := NewSlotService(schedules, fixedMonday(), nil)
	return NewAvailabilityService(slots, appointments, cache, 30*time.Second, nil, nil), appointments
}

func seedAppointment(t *testing.T, store *memAppointments, at string, status models.AppointmentStatus) {
	t.Helper()
	err := store.Create(context.Background(), &models.Appointment{
		PatientID:       "pat-1",
		DoctorID:        "doc-1",
		BranchID:        "branch-1",
		AppointmentDate: time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
		AppointmentTime: at,
		Type:            models.TypeConsultation,
		Status:          status,
		PaymentStatus:   models.PaymentPending,
	})
	require.NoError(t, err)
}

func TestAvailabilityPartitionsSlots(t *testing.T) {
	svc, store := newAvailabilityFixture(t, nil)
	seedAppointment(t, store, "09:30", models.StatusBooked)
	seedAppointment(t, store, "10:00", models.StatusCompleted)

	availability, err := svc.CheckFresh(context.Background(), "doc-1", time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	assert.Len(t, availability.AllSlots, 6)
	assert.ElementsMatch(t, []string{"09:30", "10:00"}, availability.BookedSlots)
	assert.Len(t, availability.AvailableSlots, 4)

	// Booked and available never intersect, and together cover every slot.
	booked := map[string]bool{}
	for _, at := range availability.BookedSlots {
		booked[at] = true
	}
	for _, slot := range availability.AvailableSlots {
		assert.False(t, booked[slot.StartTime], slot.StartTime)
	}
	assert.Equal(t, len(availability.AllSlots), len(availability.AvailableSlots)+len(availability.BookedSlots))
}

func TestAvailabilityCanceledSlotIsFree(t *testing.T) {
	svc, store := newAvailabilityFixture(t, nil)
	seedAppointment(t, store, "09:30", models.StatusCanceled)
	seedAppointment(t, store, "10:00", models.StatusNoShow)

	availability, err := svc.CheckFresh(context.Background(), "doc-1", time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	assert.Empty(t, availability.BookedSlots)
	assert.Len(t, availability.AvailableSlots, 6)
}

func TestAvailabilityCheckUsesCache(t *testing.T) {
	cache := newMemCache()
	svc, store := newAvailabilityFixture(t, cache)
	date := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

	first, err := svc.Check(context.Background(), "doc-1", date)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.sets)
	assert.Len(t, first.AvailableSlots, 6)

	// A write that bypasses invalidation is not observed until the entry
	// expires or is dropped.
	seedAppointment(t, store, "09:00", models.StatusBooked)
	cached, err := svc.Check(context.Background(), "doc-1", date)
	require.NoError(t, err)
	assert.Empty(t, cached.BookedSlots)
	assert.Equal(t, 1, cache.sets)

	svc.Invalidate(context.Background(), "doc-1", date)
	assert.Equal(t, 1, cache.deletes)

	fresh, err := svc.Check(context.Background(), "doc-1", date)
	require.NoError(t, err)
	assert.Equal(t, []string{"09:00"}, fresh.BookedSlots)
}

func TestAvailabilityCheckFreshObservesQueryDuration(t *testing.T) {
	metrics := NewMetricsService()
	endTime := "12:00"
	schedules := &memSchedules{blocks: []models.ScheduleDefinition{{
		ID:              "sched-1",
		DoctorID:        "doc-1",
		BranchID:        "branch-1",
		DayOfWeek:       models.Monday,
		StartTime:       "09:00",
		EndTime:         &endTime,
		SlotDurationMin: 30,
		Active:          true,
	}}}
	slots := NewSlotService(schedules, fixedMonday(), nil)
	svc := NewAvailabilityService(slots, newMemAppointments(), nil, 30*time.Second, metrics, nil)

	_, err := svc.CheckFresh(context.Background(), "doc-1", time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	w := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, w.Body.String(), `db_query_duration_seconds_count{query="appointments_occupying_by_doctor_date"} 1`)
}

func TestAvailabilityCheckFreshBypassesCache(t *testing.T) {
	cache := newMemCache()
	svc, store := newAvailabilityFixture(t, cache)
	date := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

	_, err := svc.Check(context.Background(), "doc-1", date)
	require.NoError(t, err)

	seedAppointment(t, store, "09:00", models.StatusBooked)

	fresh, err := svc.CheckFresh(context.Background(), "doc-1", date)
	require.NoError(t, err)
	assert.Equal(t, []string{"09:00"}, fresh.BookedSlots)
}
