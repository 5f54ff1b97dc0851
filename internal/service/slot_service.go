package service

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/medicore/hms-api/internal/models"
	"github.com/medicore/hms-api/pkg/clock"
	appErrors "github.com/medicore/hms-api/pkg/errors"
)

// SlotService derives the bookable slots for a doctor on a calendar date
// from the stored schedule definitions. Slots are computed fresh on every
// call and never persisted.
type SlotService struct {
	schedules scheduleRepository
	clock     clock.Clock
	logger    *zap.Logger
}

// NewSlotService instantiates SlotService.
func NewSlotService(schedules scheduleRepository, clk clock.Clock, logger *zap.Logger) *SlotService {
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SlotService{schedules: schedules, clock: clk, logger: logger}
}

// GenerateSlots expands a doctor's active schedule blocks for the date's
// weekday into concrete slots. Dates in the past yield an empty set, a day
// with no active blocks yields an empty set, and identical inputs always
// yield identical output.
func (s *SlotService) GenerateSlots(ctx context.Context, doctorID string, date time.Time) ([]models.Slot, error) {
	date = truncateToDay(date)
	today := truncateToDay(s.clock.Now().In(date.Location()))
	if date.Before(today) {
		return []models.Slot{}, nil
	}

	blocks, err := s.schedules.FindByDoctorDay(ctx, doctorID, "", models.WeekdayOf(date))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load doctor schedule")
	}

	slots := make([]models.Slot, 0)
	for _, block := range blocks {
		start, err := models.ParseClock(block.StartTime)
		if err != nil {
			s.logger.Warn("skipping schedule block with malformed start time", zap.String("schedule_id", block.ID), zap.Error(err))
			continue
		}
		count := block.SlotCount()
		for i := 0; i < count; i++ {
			slotStart := start + i*block.SlotDurationMin
			slots = append(slots, models.Slot{
				DoctorID:  doctorID,
				BranchID:  block.BranchID,
				Date:      date,
				StartTime: models.FormatClock(slotStart),
				EndTime:   models.FormatClock(slotStart + block.SlotDurationMin),
			})
		}
	}

	// Blocks may arrive from multiple branches; slot numbering is by clock
	// time across the whole day.
	sort.Slice(slots, func(i, j int) bool { return slots[i].StartTime < slots[j].StartTime })
	for i := range slots {
		slots[i].Index = i + 1
	}

	return slots, nil
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
