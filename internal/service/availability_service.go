package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/medicore/hms-api/internal/models"
	appErrors "github.com/medicore/hms-api/pkg/errors"
)

type slotGenerator interface {
	GenerateSlots(ctx context.Context, doctorID string, date time.Time) ([]models.Slot, error)
}

type occupancyReader interface {
	ListOccupyingByDoctorDate(ctx context.Context, doctorID string, date time.Time) ([]models.Appointment, error)
}

type availabilityCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// AvailabilityService answers "which slots are free" for a doctor and date.
// Read traffic goes through a short-lived cache; the booking path bypasses
// it via CheckFresh so decisions are made on live data.
type AvailabilityService struct {
	slots        slotGenerator
	appointments occupancyReader
	cache        availabilityCache
	cacheTTL     time.Duration
	metrics      *MetricsService
	logger       *zap.Logger
}

// NewAvailabilityService instantiates AvailabilityService. A nil cache
// disables caching entirely.
func NewAvailabilityService(slots slotGenerator, appointments occupancyReader, cache availabilityCache, cacheTTL time.Duration, metrics *MetricsService, logger *zap.Logger) *AvailabilityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AvailabilityService{
		slots:        slots,
		appointments: appointments,
		cache:        cache,
		cacheTTL:     cacheTTL,
		metrics:      metrics,
		logger:       logger,
	}
}

// Check returns the availability snapshot for a doctor and date, served from
// cache when a fresh entry exists.
func (s *AvailabilityService) Check(ctx context.Context, doctorID string, date time.Time) (*models.Availability, error) {
	key := availabilityCacheKey(doctorID, date)

	if s.cache != nil {
		started := time.Now()
		var cached models.Availability
		err := s.cache.Get(ctx, key, &cached)
		s.metrics.RecordCacheOperation(err == nil, time.Since(started))
		if err == nil {
			return &cached, nil
		}
		if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("availability cache read failed", zap.String("key", key), zap.Error(err))
		}
	}

	availability, err := s.CheckFresh(ctx, doctorID, date)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, availability, s.cacheTTL); err != nil {
			s.logger.Warn("availability cache write failed", zap.String("key", key), zap.Error(err))
		}
	}

	return availability, nil
}

// CheckFresh computes availability straight from the database. The booked
// and available sets partition the generated slots: an appointment is
// occupying unless it is canceled or a no-show.
func (s *AvailabilityService) CheckFresh(ctx context.Context, doctorID string, date time.Time) (*models.Availability, error) {
	date = truncateToDay(date)

	all, err := s.slots.GenerateSlots(ctx, doctorID, date)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	occupying, err := s.appointments.ListOccupyingByDoctorDate(ctx, doctorID, date)
	s.metrics.ObserveDBQuery("appointments_occupying_by_doctor_date", time.Since(started))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load appointments")
	}

	booked := make(map[string]bool, len(occupying))
	bookedTimes := make([]string, 0, len(occupying))
	for _, appt := range occupying {
		if booked[appt.AppointmentTime] {
			continue
		}
		booked[appt.AppointmentTime] = true
		bookedTimes = append(bookedTimes, appt.AppointmentTime)
	}

	available := make([]models.Slot, 0, len(all))
	for _, slot := range all {
		if !booked[slot.StartTime] {
			available = append(available, slot)
		}
	}

	return &models.Availability{
		DoctorID:       doctorID,
		Date:           date,
		AllSlots:       all,
		BookedSlots:    bookedTimes,
		AvailableSlots: available,
	}, nil
}

// Invalidate drops the cached snapshot for a doctor and date. Called after
// any write that changes slot occupancy.
func (s *AvailabilityService) Invalidate(ctx context.Context, doctorID string, date time.Time) {
	if s.cache == nil {
		return
	}
	key := availabilityCacheKey(doctorID, date)
	if err := s.cache.Delete(ctx, key); err != nil {
		s.logger.Warn("availability cache invalidation failed", zap.String("key", key), zap.Error(err))
	}
}

func availabilityCacheKey(doctorID string, date time.Time) string {
	return fmt.Sprintf("availability:%s:%s", doctorID, date.Format("2006-01-02"))
}
