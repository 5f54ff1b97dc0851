package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/medicore/hms-api/internal/dto"
	"github.com/medicore/hms-api/internal/models"
	"github.com/medicore/hms-api/internal/repository"
	"github.com/medicore/hms-api/pkg/clock"
	appErrors "github.com/medicore/hms-api/pkg/errors"
	"github.com/medicore/hms-api/pkg/lock"
)

type appointmentRepository interface {
	List(ctx context.Context, filter models.AppointmentFilter) ([]models.Appointment, int, error)
	FindByID(ctx context.Context, id string) (*models.Appointment, error)
	Create(ctx context.Context, appt *models.Appointment) error
	Update(ctx context.Context, appt *models.Appointment) (bool, error)
	TransitionStatus(ctx context.Context, id string, from, to models.AppointmentStatus) (bool, error)
	Cancel(ctx context.Context, id, actorID string, at time.Time) (bool, error)
}

type patientReader interface {
	FindByID(ctx context.Context, id string) (*models.Patient, error)
}

type doctorReader interface {
	FindByID(ctx context.Context, id string) (*models.Doctor, error)
}

type availabilityPort interface {
	CheckFresh(ctx context.Context, doctorID string, date time.Time) (*models.Availability, error)
	Invalidate(ctx context.Context, doctorID string, date time.Time)
}

// BookAppointmentRequest is the payload for booking a slot.
type BookAppointmentRequest struct {
	PatientID  string  `json:"patient_id" validate:"required"`
	DoctorID   string  `json:"doctor_id" validate:"required"`
	Date       string  `json:"appointment_date" validate:"required,datetime=2006-01-02"`
	Time       string  `json:"appointment_time" validate:"required,datetime=15:04"`
	Type       string  `json:"appointment_type" validate:"required,oneof=consultation follow_up emergency"`
	Reason     *string `json:"reason,omitempty" validate:"omitempty,max=500"`
	BookingFee float64 `json:"booking_fee" validate:"min=0"`
}

// UpdateAppointmentRequest moves or amends a non-terminal appointment.
type UpdateAppointmentRequest struct {
	Date   string  `json:"appointment_date" validate:"required,datetime=2006-01-02"`
	Time   string  `json:"appointment_time" validate:"required,datetime=15:04"`
	Type   string  `json:"appointment_type" validate:"required,oneof=consultation follow_up emergency"`
	Reason *string `json:"reason,omitempty" validate:"omitempty,max=500"`
}

const terminalStateMessage = "Cannot modify completed, canceled, or no-show appointments"

// BookingService owns the appointment lifecycle: booking under a per-slot
// mutex, cancellation under the notice-window policy, reschedules, and the
// status transitions of a visit.
type BookingService struct {
	appointments appointmentRepository
	patients     patientReader
	doctors      doctorReader
	availability availabilityPort
	locker       lock.Locker
	clock        clock.Clock
	window       time.Duration
	validator    *validator.Validate
	metrics      *MetricsService
	logger       *zap.Logger
}

// NewBookingService instantiates BookingService. window is the minimum
// notice required before cancellation.
func NewBookingService(
	appointments appointmentRepository,
	patients patientReader,
	doctors doctorReader,
	availability availabilityPort,
	locker lock.Locker,
	clk clock.Clock,
	window time.Duration,
	validate *validator.Validate,
	metrics *MetricsService,
	logger *zap.Logger,
) *BookingService {
	if clk == nil {
		clk = clock.New()
	}
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BookingService{
		appointments: appointments,
		patients:     patients,
		doctors:      doctors,
		availability: availability,
		locker:       locker,
		clock:        clk,
		window:       window,
		validator:    validate,
		metrics:      metrics,
		logger:       logger,
	}
}

// Book creates an appointment on a free slot. The check-then-insert section
// runs under a per-slot distributed mutex, and the database's partial unique
// index backstops it, so at most one concurrent caller wins a slot.
func (s *BookingService) Book(ctx context.Context, req BookAppointmentRequest, bookedBy string) (*models.Appointment, error) {
	if err := s.validator.Struct(req); err != nil {
		s.metrics.RecordBooking(BookingOutcomeRejected)
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid booking payload")
	}

	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		s.metrics.RecordBooking(BookingOutcomeRejected)
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid appointment date")
	}
	if date.Before(truncateToDay(s.clock.Now())) {
		s.metrics.RecordBooking(BookingOutcomeRejected)
		return nil, appErrors.Clone(appErrors.ErrPolicyViolation, "cannot book an appointment in the past")
	}

	if _, err := s.patients.FindByID(ctx, req.PatientID); err != nil {
		s.metrics.RecordBooking(BookingOutcomeRejected)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "patient not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load patient")
	}
	if _, err := s.doctors.FindByID(ctx, req.DoctorID); err != nil {
		s.metrics.RecordBooking(BookingOutcomeRejected)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "doctor not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load doctor")
	}

	appt := &models.Appointment{
		PatientID:       req.PatientID,
		DoctorID:        req.DoctorID,
		AppointmentDate: date,
		AppointmentTime: req.Time,
		Type:            models.AppointmentType(req.Type),
		Status:          models.StatusBooked,
		PaymentStatus:   models.PaymentPending,
		BookingFee:      req.BookingFee,
		Reason:          req.Reason,
		BookedBy:        bookedBy,
	}

	lockKey := slotLockKey(req.DoctorID, req.Date, req.Time)
	err = s.locker.WithLock(ctx, lockKey, func(ctx context.Context) error {
		slot, free, err := s.resolveSlot(ctx, req.DoctorID, date, req.Time)
		if err != nil {
			return err
		}
		if !free {
			return appErrors.Clone(appErrors.ErrSlotConflict, "")
		}
		appt.BranchID = slot.BranchID
		appt.SlotIndex = slot.Index

		if err := s.appointments.Create(ctx, appt); err != nil {
			if errors.Is(err, repository.ErrSlotTaken) {
				return appErrors.Clone(appErrors.ErrSlotConflict, "")
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create appointment")
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, lock.ErrNotAcquired) {
			s.metrics.RecordBooking(BookingOutcomeConflict)
			return nil, appErrors.Clone(appErrors.ErrSlotConflict, "")
		}
		appErr := appErrors.FromError(err)
		if appErr.Code == appErrors.ErrSlotConflict.Code {
			s.metrics.RecordBooking(BookingOutcomeConflict)
		} else {
			s.metrics.RecordBooking(BookingOutcomeRejected)
		}
		return nil, err
	}

	s.metrics.RecordBooking(BookingOutcomeBooked)
	s.availability.Invalidate(ctx, req.DoctorID, date)
	s.logger.Info("appointment booked",
		zap.String("appointment_id", appt.ID),
		zap.String("doctor_id", appt.DoctorID),
		zap.String("date", req.Date),
		zap.String("time", req.Time))

	return appt, nil
}

// Cancel cancels an appointment on behalf of an actor. The notice window is
// inclusive: cancelling exactly at the boundary is still allowed.
func (s *BookingService) Cancel(ctx context.Context, id, actorID string) (*models.Appointment, error) {
	appt, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.Status.Terminal() {
		return nil, appErrors.Clone(appErrors.ErrPolicyViolation, terminalStateMessage)
	}

	startsAt, err := appt.StartsAt()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "malformed appointment time")
	}

	now := s.clock.Now()
	if startsAt.Before(now) {
		return nil, appErrors.Clone(appErrors.ErrPolicyViolation, "appointment already occurred")
	}
	if startsAt.Sub(now) < s.window {
		return nil, appErrors.Clone(appErrors.ErrPolicyViolation,
			fmt.Sprintf("cancellation requires at least %s notice before the appointment", s.window))
	}

	ok, err := s.appointments.Cancel(ctx, id, actorID, now)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel appointment")
	}
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrPolicyViolation, terminalStateMessage)
	}

	s.metrics.RecordCancellation()
	s.availability.Invalidate(ctx, appt.DoctorID, appt.AppointmentDate)

	canceledAt := now.UTC()
	appt.Status = models.StatusCanceled
	appt.CanceledAt = &canceledAt
	appt.CanceledBy = &actorID
	return appt, nil
}

// Update reschedules or amends a non-terminal appointment. Moving to a new
// slot revalidates the destination under the same per-slot mutex as booking.
func (s *BookingService) Update(ctx context.Context, id string, req UpdateAppointmentRequest) (*models.Appointment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid appointment payload")
	}

	appt, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.Status.Terminal() {
		return nil, appErrors.Clone(appErrors.ErrPolicyViolation, terminalStateMessage)
	}

	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid appointment date")
	}
	if date.Before(truncateToDay(s.clock.Now())) {
		return nil, appErrors.Clone(appErrors.ErrPolicyViolation, "cannot move an appointment into the past")
	}

	prevDate := appt.AppointmentDate
	moving := !sameDay(date, appt.AppointmentDate) || req.Time != appt.AppointmentTime

	apply := func(ctx context.Context) error {
		if moving {
			slot, free, err := s.resolveSlot(ctx, appt.DoctorID, date, req.Time)
			if err != nil {
				return err
			}
			if !free {
				return appErrors.Clone(appErrors.ErrSlotConflict, "")
			}
			appt.AppointmentDate = date
			appt.AppointmentTime = req.Time
			appt.BranchID = slot.BranchID
			appt.SlotIndex = slot.Index
			if appt.Status == models.StatusBooked {
				appt.Status = models.StatusRescheduled
			}
		}
		appt.Type = models.AppointmentType(req.Type)
		appt.Reason = req.Reason

		ok, err := s.appointments.Update(ctx, appt)
		if err != nil {
			if errors.Is(err, repository.ErrSlotTaken) {
				return appErrors.Clone(appErrors.ErrSlotConflict, "")
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update appointment")
		}
		if !ok {
			return appErrors.Clone(appErrors.ErrPolicyViolation, terminalStateMessage)
		}
		return nil
	}

	if moving {
		err = s.locker.WithLock(ctx, slotLockKey(appt.DoctorID, req.Date, req.Time), apply)
		if errors.Is(err, lock.ErrNotAcquired) {
			err = appErrors.Clone(appErrors.ErrSlotConflict, "")
		}
	} else {
		err = apply(ctx)
	}
	if err != nil {
		return nil, err
	}

	s.availability.Invalidate(ctx, appt.DoctorID, prevDate)
	if moving {
		s.availability.Invalidate(ctx, appt.DoctorID, date)
	}
	return appt, nil
}

// CheckIn moves a booked (or rescheduled) appointment to checked-in on
// patient arrival.
func (s *BookingService) CheckIn(ctx context.Context, id string) (*models.Appointment, error) {
	return s.transition(ctx, id, models.StatusCheckedIn, models.StatusBooked, models.StatusRescheduled)
}

// StartSession moves a checked-in appointment into the consultation.
func (s *BookingService) StartSession(ctx context.Context, id string) (*models.Appointment, error) {
	return s.transition(ctx, id, models.StatusInSession, models.StatusCheckedIn)
}

// Complete finishes an in-session appointment. The slot stays occupied.
func (s *BookingService) Complete(ctx context.Context, id string) (*models.Appointment, error) {
	return s.transition(ctx, id, models.StatusCompleted, models.StatusInSession)
}

// MarkNoShow flags a booked appointment whose start time has passed.
func (s *BookingService) MarkNoShow(ctx context.Context, id string) (*models.Appointment, error) {
	appt, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	startsAt, err := appt.StartsAt()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "malformed appointment time")
	}
	if startsAt.After(s.clock.Now()) {
		return nil, appErrors.Clone(appErrors.ErrPolicyViolation, "appointment has not started yet")
	}

	appt, err = s.transition(ctx, id, models.StatusNoShow, models.StatusBooked, models.StatusRescheduled)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordNoShows(1)
	s.availability.Invalidate(ctx, appt.DoctorID, appt.AppointmentDate)
	return appt, nil
}

// Get loads one appointment.
func (s *BookingService) Get(ctx context.Context, id string) (*models.Appointment, error) {
	return s.find(ctx, id)
}

// List runs the resolved appointment list query.
func (s *BookingService) List(ctx context.Context, q dto.ListAppointmentsQuery) ([]models.Appointment, *models.Pagination, error) {
	filter := models.AppointmentFilter{Page: q.Page, PageSize: q.PageSize}

	switch q.Kind {
	case dto.QueryByStatus:
		filter.Status = q.Status
	case dto.QueryByDoctorAndDate:
		filter.DoctorID = q.DoctorID
		date := q.Date
		filter.Date = &date
		filter.SortBy = "appointment_time"
	case dto.QueryPendingPayment:
		filter.PaymentStatus = models.PaymentPending
	}

	appointments, total, err := s.appointments.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list appointments")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return appointments, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

func (s *BookingService) find(ctx context.Context, id string) (*models.Appointment, error) {
	appt, err := s.appointments.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "appointment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load appointment")
	}
	return appt, nil
}

// resolveSlot locates the generated slot matching startTime and reports
// whether it is currently free.
func (s *BookingService) resolveSlot(ctx context.Context, doctorID string, date time.Time, startTime string) (models.Slot, bool, error) {
	availability, err := s.availability.CheckFresh(ctx, doctorID, date)
	if err != nil {
		return models.Slot{}, false, err
	}

	var found *models.Slot
	for i := range availability.AllSlots {
		if availability.AllSlots[i].StartTime == startTime {
			found = &availability.AllSlots[i]
			break
		}
	}
	if found == nil {
		return models.Slot{}, false, appErrors.Clone(appErrors.ErrValidation, "requested time does not match a bookable slot")
	}

	for _, booked := range availability.BookedSlots {
		if booked == startTime {
			return *found, false, nil
		}
	}
	return *found, true, nil
}

func (s *BookingService) transition(ctx context.Context, id string, to models.AppointmentStatus, from ...models.AppointmentStatus) (*models.Appointment, error) {
	appt, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.Status.Terminal() {
		return nil, appErrors.Clone(appErrors.ErrPolicyViolation, terminalStateMessage)
	}
	allowed := false
	for _, status := range from {
		if appt.Status == status {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, appErrors.Clone(appErrors.ErrPolicyViolation,
			fmt.Sprintf("cannot move appointment from %s to %s", appt.Status, to))
	}

	ok, err := s.appointments.TransitionStatus(ctx, id, appt.Status, to)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update appointment status")
	}
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrPolicyViolation,
			fmt.Sprintf("cannot move appointment from %s to %s", appt.Status, to))
	}

	appt.Status = to
	return appt, nil
}

func slotLockKey(doctorID, date, startTime string) string {
	return fmt.Sprintf("lock:slot:%s:%s:%s", doctorID, date, startTime)
}

func sameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}
