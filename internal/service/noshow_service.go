package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/medicore/hms-api/internal/models"
	"github.com/medicore/hms-api/pkg/clock"
	"github.com/medicore/hms-api/pkg/jobs"
)

type staleBookedLister interface {
	ListStaleBooked(ctx context.Context, cutoff time.Time) ([]models.Appointment, error)
	TransitionStatus(ctx context.Context, id string, from, to models.AppointmentStatus) (bool, error)
}

// NoShowService periodically sweeps booked appointments whose start time
// passed the grace period and flags them as no-shows, freeing the slot for
// availability purposes.
type NoShowService struct {
	appointments staleBookedLister
	availability availabilityPort
	clock        clock.Clock
	grace        time.Duration
	interval     time.Duration
	metrics      *MetricsService
	logger       *zap.Logger
	queue        *jobs.Queue
}

// NewNoShowService instantiates NoShowService.
func NewNoShowService(appointments staleBookedLister, availability availabilityPort, clk clock.Clock, grace, interval time.Duration, metrics *MetricsService, logger *zap.Logger) *NoShowService {
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &NoShowService{
		appointments: appointments,
		availability: availability,
		clock:        clk,
		grace:        grace,
		interval:     interval,
		metrics:      metrics,
		logger:       logger,
	}
	s.queue = jobs.NewQueue("noshow-sweep", s.handleSweep, jobs.QueueConfig{
		Workers:    1,
		BufferSize: 4,
		MaxRetries: 2,
		RetryDelay: 30 * time.Second,
		Logger:     logger,
	})
	return s
}

// Start launches the sweep workers and a ticker that enqueues a sweep each
// interval. It returns immediately; cancel ctx to stop.
func (s *NoShowService) Start(ctx context.Context) {
	s.queue.Start(ctx)

	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				job := jobs.Job{ID: uuid.NewString(), Type: "noshow_sweep"}
				if err := s.queue.Enqueue(job); err != nil {
					s.logger.Warn("failed to enqueue no-show sweep", zap.Error(err))
				}
			}
		}
	}()
}

// Stop drains the sweep workers.
func (s *NoShowService) Stop() {
	s.queue.Stop()
}

func (s *NoShowService) handleSweep(ctx context.Context, _ jobs.Job) error {
	_, err := s.Sweep(ctx)
	return err
}

// Sweep flags every booked or rescheduled appointment older than the grace
// period as a no-show and returns how many rows were changed. The status
// guard in the transition keeps concurrent sweeps and check-ins from
// colliding.
func (s *NoShowService) Sweep(ctx context.Context) (int, error) {
	cutoff := s.clock.Now().Add(-s.grace)

	stale, err := s.appointments.ListStaleBooked(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	swept := 0
	for _, appt := range stale {
		ok, err := s.appointments.TransitionStatus(ctx, appt.ID, appt.Status, models.StatusNoShow)
		if err != nil {
			s.logger.Warn("no-show transition failed", zap.String("appointment_id", appt.ID), zap.Error(err))
			continue
		}
		if !ok {
			continue
		}
		swept++
		s.availability.Invalidate(ctx, appt.DoctorID, appt.AppointmentDate)
	}

	if swept > 0 {
		s.metrics.RecordNoShows(swept)
		s.logger.Info("no-show sweep complete", zap.Int("swept", swept), zap.Time("cutoff", cutoff))
	}
	return swept, nil
}
