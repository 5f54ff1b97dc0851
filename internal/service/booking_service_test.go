package service

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medicore/hms-api/internal/dto"
	"github.com/medicore/hms-api/internal/models"
	"github.com/medicore/hms-api/internal/repository"
	"github.com/medicore/hms-api/pkg/clock"
	appErrors "github.com/medicore/hms-api/pkg/errors"
)

// memSchedules is an in-memory schedule store for service tests.
type memSchedules struct {
	blocks []models.ScheduleDefinition
}

func (m *memSchedules) List(_ context.Context, _ models.ScheduleFilter) ([]models.ScheduleDefinition, int, error) {
	return m.blocks, len(m.blocks), nil
}

func (m *memSchedules) FindByID(_ context.Context, id string) (*models.ScheduleDefinition, error) {
	for i := range m.blocks {
		if m.blocks[i].ID == id {
			block := m.blocks[i]
			return &block, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memSchedules) FindByDoctorDay(_ context.Context, doctorID, branchID, dayOfWeek string) ([]models.ScheduleDefinition, error) {
	var out []models.ScheduleDefinition
	for _, block := range m.blocks {
		if block.DoctorID != doctorID || block.DayOfWeek != dayOfWeek || !block.Active {
			continue
		}
		if branchID != "" && block.BranchID != branchID {
			continue
		}
		out = append(out, block)
	}
	return out, nil
}

func (m *memSchedules) Create(_ context.Context, def *models.ScheduleDefinition) error {
	if def.ID == "" {
		def.ID = uuid.NewString()
	}
	m.blocks = append(m.blocks, *def)
	return nil
}

func (m *memSchedules) Update(_ context.Context, def *models.ScheduleDefinition) error {
	for i := range m.blocks {
		if m.blocks[i].ID == def.ID {
			m.blocks[i] = *def
			return nil
		}
	}
	return sql.ErrNoRows
}

func (m *memSchedules) Deactivate(_ context.Context, id string) error {
	for i := range m.blocks {
		if m.blocks[i].ID == id {
			m.blocks[i].Active = false
			return nil
		}
	}
	return sql.ErrNoRows
}

// memAppointments mimics the appointments table including the partial
// unique index on active slots.
type memAppointments struct {
	mu   sync.Mutex
	byID map[string]*models.Appointment
}

func newMemAppointments() *memAppointments {
	return &memAppointments{byID: map[string]*models.Appointment{}}
}

func (m *memAppointments) List(_ context.Context, filter models.AppointmentFilter) ([]models.Appointment, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Appointment
	for _, appt := range m.byID {
		if filter.DoctorID != "" && appt.DoctorID != filter.DoctorID {
			continue
		}
		if filter.Date != nil && !appt.AppointmentDate.Equal(*filter.Date) {
			continue
		}
		if filter.Status != "" && appt.Status != filter.Status {
			continue
		}
		if filter.PaymentStatus != "" && appt.PaymentStatus != filter.PaymentStatus {
			continue
		}
		out = append(out, *appt)
	}
	return out, len(out), nil
}

func (m *memAppointments) FindByID(_ context.Context, id string) (*models.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	appt, ok := m.byID[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *appt
	return &copied, nil
}

func (m *memAppointments) ListOccupyingByDoctorDate(_ context.Context, doctorID string, date time.Time) ([]models.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Appointment
	for _, appt := range m.byID {
		if appt.DoctorID != doctorID || !appt.AppointmentDate.Equal(date) {
			continue
		}
		if appt.Status == models.StatusCanceled || appt.Status == models.StatusNoShow {
			continue
		}
		out = append(out, *appt)
	}
	return out, nil
}

func (m *memAppointments) Create(_ context.Context, appt *models.Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.byID {
		if existing.DoctorID == appt.DoctorID &&
			existing.AppointmentDate.Equal(appt.AppointmentDate) &&
			existing.AppointmentTime == appt.AppointmentTime &&
			!existing.Status.Terminal() {
			return repository.ErrSlotTaken
		}
	}
	if appt.ID == "" {
		appt.ID = uuid.NewString()
	}
	copied := *appt
	m.byID[appt.ID] = &copied
	return nil
}

func (m *memAppointments) Update(_ context.Context, appt *models.Appointment) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.byID[appt.ID]
	if !ok || stored.Status.Terminal() {
		return false, nil
	}
	for _, existing := range m.byID {
		if existing.ID != appt.ID &&
			existing.DoctorID == appt.DoctorID &&
			existing.AppointmentDate.Equal(appt.AppointmentDate) &&
			existing.AppointmentTime == appt.AppointmentTime &&
			!existing.Status.Terminal() {
			return false, repository.ErrSlotTaken
		}
	}
	copied := *appt
	m.byID[appt.ID] = &copied
	return true, nil
}

func (m *memAppointments) TransitionStatus(_ context.Context, id string, from, to models.AppointmentStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	appt, ok := m.byID[id]
	if !ok || appt.Status != from {
		return false, nil
	}
	appt.Status = to
	return true, nil
}

func (m *memAppointments) Cancel(_ context.Context, id, actorID string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	appt, ok := m.byID[id]
	if !ok || appt.Status.Terminal() {
		return false, nil
	}
	appt.Status = models.StatusCanceled
	canceledAt := at.UTC()
	appt.CanceledAt = &canceledAt
	appt.CanceledBy = &actorID
	return true, nil
}

func (m *memAppointments) ListStaleBooked(_ context.Context, cutoff time.Time) ([]models.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Appointment
	for _, appt := range m.byID {
		if appt.Status != models.StatusBooked && appt.Status != models.StatusRescheduled {
			continue
		}
		startsAt, err := appt.StartsAt()
		if err != nil {
			continue
		}
		if startsAt.Before(cutoff) {
			out = append(out, *appt)
		}
	}
	return out, nil
}

type stubPatients struct {
	known map[string]bool
}

func (s *stubPatients) FindByID(_ context.Context, id string) (*models.Patient, error) {
	if !s.known[id] {
		return nil, sql.ErrNoRows
	}
	return &models.Patient{ID: id, FullName: "Test Patient", Active: true}, nil
}

type stubDoctors struct {
	known map[string]bool
}

func (s *stubDoctors) FindByID(_ context.Context, id string) (*models.Doctor, error) {
	if !s.known[id] {
		return nil, sql.ErrNoRows
	}
	return &models.Doctor{ID: id, FullName: "Dr. Test", BranchID: "branch-1", Active: true}, nil
}

// localLocker serializes critical sections per key within the process, the
// test stand-in for the Redis mutex.
type localLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newLocalLocker() *localLocker {
	return &localLocker{locks: map[string]*sync.Mutex{}}
}

func (l *localLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	keyMu, ok := l.locks[key]
	if !ok {
		keyMu = &sync.Mutex{}
		l.locks[key] = keyMu
	}
	l.mu.Unlock()

	keyMu.Lock()
	defer keyMu.Unlock()
	return fn(ctx)
}

type bookingFixture struct {
	service      *BookingService
	availability *AvailabilityService
	appointments *memAppointments
	clock        *clock.Fixed
}

// newBookingFixture wires a booking service over in-memory stores. The
// doctor works Mondays 09:00-12:00 in 30 minute slots; "now" is pinned to
// Monday 2025-03-03 08:00 UTC.
func newBookingFixture(t *testing.T) *bookingFixture {
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
	clk := clock.NewFixed(time.Date(2025, 3, 3, 8, 0, 0, 0, time.UTC))

	slots := NewSlotService(schedules, clk, nil)
	availability := NewAvailabilityService(slots, appointments, nil, 0, nil, nil)
	booking := NewBookingService(appointments, &stubPatients{known: map[string]bool{"pat-1": true, "pat-2": true}}, &stubDoctors{known: map[string]bool{"doc-1": true}}, availability, newLocalLocker(), clk, 36*time.Hour, nil, nil, nil)

	return &bookingFixture{
		service:      booking,
		availability: availability,
		appointments: appointments,
		clock:        clk,
	}
}

func bookRequest(patientID, date, at string) BookAppointmentRequest {
	return BookAppointmentRequest{
		PatientID: patientID,
		DoctorID:  "doc-1",
		Date:      date,
		Time:      at,
		Type:      "consultation",
	}
}

func TestBookingServiceBookSuccess(t *testing.T) {
	f := newBookingFixture(t)

	appt, err := f.service.Book(context.Background(), bookRequest("pat-1", "2025-03-10", "09:30"), "pat-1")
	require.NoError(t, err)

	assert.NotEmpty(t, appt.ID)
	assert.Equal(t, models.StatusBooked, appt.Status)
	assert.Equal(t, models.PaymentPending, appt.PaymentStatus)
	assert.Equal(t, "branch-1", appt.BranchID)
	assert.Equal(t, 2, appt.SlotIndex)
	assert.Equal(t, "pat-1", appt.BookedBy)
}

func TestBookingServiceBookOccupiedSlot(t *testing.T) {
	f := newBookingFixture(t)

	_, err := f.service.Book(context.Background(), bookRequest("pat-1", "2025-03-10", "09:30"), "pat-1")
	require.NoError(t, err)

	_, err = f.service.Book(context.Background(), bookRequest("pat-2", "2025-03-10", "09:30"), "pat-2")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrSlotConflict.Code, appErrors.FromError(err).Code)
}

func TestBookingServiceConcurrentBookingSingleWinner(t *testing.T) {
	f := newBookingFixture(t)

	const attempts = 10
	var wg sync.WaitGroup
	results := make(chan error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.service.Book(context.Background(), bookRequest("pat-1", "2025-03-10", "10:00"), "pat-1")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var succeeded, conflicted int
	for err := range results {
		if err == nil {
			succeeded++
			continue
		}
		require.Equal(t, appErrors.ErrSlotConflict.Code, appErrors.FromError(err).Code)
		conflicted++
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, attempts-1, conflicted)
}

func TestBookingServiceBookUnknownPatient(t *testing.T) {
	f := newBookingFixture(t)

	_, err := f.service.Book(context.Background(), bookRequest("pat-404", "2025-03-10", "09:00"), "pat-404")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestBookingServiceBookRejectsUnscheduledTime(t *testing.T) {
	f := newBookingFixture(t)

	// 09:15 falls between slot boundaries; 14:00 is outside the block.
	for _, at := range []string{"09:15", "14:00"} {
		_, err := f.service.Book(context.Background(), bookRequest("pat-1", "2025-03-10", at), "pat-1")
		require.Error(t, err, at)
		assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code, at)
	}
}

func TestBookingServiceBookRejectsPastDate(t *testing.T) {
	f := newBookingFixture(t)

	_, err := f.service.Book(context.Background(), bookRequest("pat-1", "2025-02-24", "09:00"), "pat-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPolicyViolation.Code, appErrors.FromError(err).Code)
}

func TestBookingServiceRebookAfterCancellation(t *testing.T) {
	f := newBookingFixture(t)

	first, err := f.service.Book(context.Background(), bookRequest("pat-1", "2025-03-10", "11:00"), "pat-1")
	require.NoError(t, err)

	_, err = f.service.Cancel(context.Background(), first.ID, "pat-1")
	require.NoError(t, err)

	second, err := f.service.Book(context.Background(), bookRequest("pat-2", "2025-03-10", "11:00"), "pat-2")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestBookingServiceCancelOutsideWindow(t *testing.T) {
	f := newBookingFixture(t)

	appt, err := f.service.Book(context.Background(), bookRequest("pat-1", "2025-03-10", "09:00"), "pat-1")
	require.NoError(t, err)

	canceled, err := f.service.Cancel(context.Background(), appt.ID, "actor-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCanceled, canceled.Status)
	require.NotNil(t, canceled.CanceledBy)
	assert.Equal(t, "actor-1", *canceled.CanceledBy)
	assert.NotNil(t, canceled.CanceledAt)
}

func TestBookingServiceCancelInsideWindowRejected(t *testing.T) {
	f := newBookingFixture(t)

	appt, err := f.service.Book(context.Background(), bookRequest("pat-1", "2025-03-10", "09:00"), "pat-1")
	require.NoError(t, err)

	// 24h before the appointment: inside the 36h minimum notice.
	f.clock.Set(time.Date(2025, 3, 9, 9, 0, 0, 0, time.UTC))

	_, err = f.service.Cancel(context.Background(), appt.ID, "pat-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPolicyViolation.Code, appErrors.FromError(err).Code)

	stored, err := f.appointments.FindByID(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusBooked, stored.Status)
}

func TestBookingServiceCancelExactlyAtBoundaryAllowed(t *testing.T) {
	f := newBookingFixture(t)

	appt, err := f.service.Book(context.Background(), bookRequest("pat-1", "2025-03-10", "09:00"), "pat-1")
	require.NoError(t, err)

	// Exactly 36h of notice.
	f.clock.Set(time.Date(2025, 3, 8, 21, 0, 0, 0, time.UTC))

	canceled, err := f.service.Cancel(context.Background(), appt.ID, "pat-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCanceled, canceled.Status)
}

func TestBookingServiceCancelPastAppointment(t *testing.T) {
	f := newBookingFixture(t)

	appt, err := f.service.Book(context.Background(), bookRequest("pat-1", "2025-03-10", "09:00"), "pat-1")
	require.NoError(t, err)

	f.clock.Set(time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC))

	_, err = f.service.Cancel(context.Background(), appt.ID, "pat-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPolicyViolation.Code, appErrors.FromError(err).Code)
	assert.Contains(t, appErrors.FromError(err).Message, "already occurred")
}

func TestBookingServiceCancelTerminalRejected(t *testing.T) {
	f := newBookingFixture(t)

	appt, err := f.service.Book(context.Background(), bookRequest("pat-1", "2025-03-10", "09:00"), "pat-1")
	require.NoError(t, err)

	_, err = f.service.Cancel(context.Background(), appt.ID, "pat-1")
	require.NoError(t, err)

	_, err = f.service.Cancel(context.Background(), appt.ID, "pat-1")
	require.Error(t, err)
	assert.Equal(t, terminalStateMessage, appErrors.FromError(err).Message)
}

func TestBookingServiceUpdateMovesToFreeSlot(t *testing.T) {
	f := newBookingFixture(t)

	appt, err := f.service.Book(context.Background(), bookRequest("pat-1", "2025-03-10", "09:00"), "pat-1")
	require.NoError(t, err)

	updated, err := f.service.Update(context.Background(), appt.ID, UpdateAppointmentRequest{
		Date: "2025-03-10",
		Time: "10:30",
		Type: "follow_up",
	})
	require.NoError(t, err)
	assert.Equal(t, "10:30", updated.AppointmentTime)
	assert.Equal(t, 4, updated.SlotIndex)
	assert.Equal(t, models.TypeFollowUp, updated.Type)
	assert.Equal(t, models.StatusRescheduled, updated.Status)

	// Old slot is free again.
	availability, err := f.availability.CheckFresh(context.Background(), "doc-1", time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.NotContains(t, availability.BookedSlots, "09:00")
	assert.Contains(t, availability.BookedSlots, "10:30")

	// A rescheduled appointment still goes through the normal lifecycle.
	checkedIn, err := f.service.CheckIn(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCheckedIn, checkedIn.Status)
}

func TestBookingServiceUpdateOccupiedDestination(t *testing.T) {
	f := newBookingFixture(t)

	appt, err := f.service.Book(context.Background(), bookRequest("pat-1", "2025-03-10", "09:00"), "pat-1")
	require.NoError(t, err)
	_, err = f.service.Book(context.Background(), bookRequest("pat-2", "2025-03-10", "09:30"), "pat-2")
	require.NoError(t, err)

	_, err = f.service.Update(context.Background(), appt.ID, UpdateAppointmentRequest{
		Date: "2025-03-10",
		Time: "09:30",
		Type: "consultation",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrSlotConflict.Code, appErrors.FromError(err).Code)
}

func TestBookingServiceUpdateTerminalRejected(t *testing.T) {
	f := newBookingFixture(t)

	appt, err := f.service.Book(context.Background(), bookRequest("pat-1", "2025-03-10", "09:00"), "pat-1")
	require.NoError(t, err)
	_, err = f.service.Cancel(context.Background(), appt.ID, "pat-1")
	require.NoError(t, err)

	_, err = f.service.Update(context.Background(), appt.ID, UpdateAppointmentRequest{
		Date: "2025-03-10",
		Time: "10:00",
		Type: "consultation",
	})
	require.Error(t, err)
	assert.Equal(t, terminalStateMessage, appErrors.FromError(err).Message)
}

func TestBookingServiceLifecycleTransitions(t *testing.T) {
	f := newBookingFixture(t)

	appt, err := f.service.Book(context.Background(), bookRequest("pat-1", "2025-03-10", "09:00"), "pat-1")
	require.NoError(t, err)

	checkedIn, err := f.service.CheckIn(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCheckedIn, checkedIn.Status)

	inSession, err := f.service.StartSession(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInSession, inSession.Status)

	completed, err := f.service.Complete(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, completed.Status)

	// Completed appointments keep occupying the slot.
	availability, err := f.availability.CheckFresh(context.Background(), "doc-1", time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Contains(t, availability.BookedSlots, "09:00")

	// And reject further mutation.
	_, err = f.service.CheckIn(context.Background(), appt.ID)
	require.Error(t, err)
	assert.Equal(t, terminalStateMessage, appErrors.FromError(err).Message)
}

func TestBookingServiceInvalidTransition(t *testing.T) {
	f := newBookingFixture(t)

	appt, err := f.service.Book(context.Background(), bookRequest("pat-1", "2025-03-10", "09:00"), "pat-1")
	require.NoError(t, err)

	_, err = f.service.StartSession(context.Background(), appt.ID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPolicyViolation.Code, appErrors.FromError(err).Code)
}

func TestBookingServiceMarkNoShowBeforeStartRejected(t *testing.T) {
	f := newBookingFixture(t)

	appt, err := f.service.Book(context.Background(), bookRequest("pat-1", "2025-03-10", "09:00"), "pat-1")
	require.NoError(t, err)

	_, err = f.service.MarkNoShow(context.Background(), appt.ID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPolicyViolation.Code, appErrors.FromError(err).Code)

	f.clock.Set(time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC))
	flagged, err := f.service.MarkNoShow(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusNoShow, flagged.Status)
}

func TestBookingServiceListByDoctorAndDate(t *testing.T) {
	f := newBookingFixture(t)

	_, err := f.service.Book(context.Background(), bookRequest("pat-1", "2025-03-10", "09:00"), "pat-1")
	require.NoError(t, err)
	_, err = f.service.Book(context.Background(), bookRequest("pat-2", "2025-03-10", "09:30"), "pat-2")
	require.NoError(t, err)

	query, err := dto.ResolveListQuery(dto.ListParams{DoctorID: "doc-1", Date: "2025-03-10", Page: 1, PageSize: 20})
	require.NoError(t, err)

	appointments, pagination, err := f.service.List(context.Background(), query)
	require.NoError(t, err)
	assert.Len(t, appointments, 2)
	assert.Equal(t, 2, pagination.TotalCount)
}
