package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medicore/hms-api/internal/models"
	"github.com/medicore/hms-api/pkg/clock"
)

func fixedMonday() *clock.Fixed {
	return clock.NewFixed(time.Date(2025, 3, 3, 8, 0, 0, 0, time.UTC))
}

func TestSlotServiceGeneratesFromEndTime(t *testing.T) {
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
	svc := NewSlotService(schedules, fixedMonday(), nil)

	slots, err := svc.GenerateSlots(context.Background(), "doc-1", time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, slots, 6)

	assert.Equal(t, "09:00", slots[0].StartTime)
	assert.Equal(t, "09:30", slots[0].EndTime)
	assert.Equal(t, 1, slots[0].Index)
	assert.Equal(t, "11:30", slots[5].StartTime)
	assert.Equal(t, "12:00", slots[5].EndTime)
	assert.Equal(t, 6, slots[5].Index)
}

func TestSlotServiceGeneratesFromMaxPatients(t *testing.T) {
	schedules := &memSchedules{blocks: []models.ScheduleDefinition{{
		ID:              "sched-1",
		DoctorID:        "doc-1",
		BranchID:        "branch-1",
		DayOfWeek:       models.Monday,
		StartTime:       "14:00",
		SlotDurationMin: 20,
		MaxPatients:     3,
		Active:          true,
	}}}
	svc := NewSlotService(schedules, fixedMonday(), nil)

	slots, err := svc.GenerateSlots(context.Background(), "doc-1", time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, slots, 3)
	assert.Equal(t, "14:00", slots[0].StartTime)
	assert.Equal(t, "14:40", slots[2].StartTime)
	assert.Equal(t, "15:00", slots[2].EndTime)
}

func TestSlotServiceMergesBlocksInClockOrder(t *testing.T) {
	morningEnd := "10:00"
	schedules := &memSchedules{blocks: []models.ScheduleDefinition{
		{
			ID:              "sched-pm",
			DoctorID:        "doc-1",
			BranchID:        "branch-2",
			DayOfWeek:       models.Monday,
			StartTime:       "15:00",
			SlotDurationMin: 30,
			MaxPatients:     2,
			Active:          true,
		},
		{
			ID:              "sched-am",
			DoctorID:        "doc-1",
			BranchID:        "branch-1",
			DayOfWeek:       models.Monday,
			StartTime:       "09:00",
			EndTime:         &morningEnd,
			SlotDurationMin: 30,
			Active:          true,
		},
	}}
	svc := NewSlotService(schedules, fixedMonday(), nil)

	slots, err := svc.GenerateSlots(context.Background(), "doc-1", time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, slots, 4)

	assert.Equal(t, []string{"09:00", "09:30", "15:00", "15:30"}, startTimes(slots))
	for i, slot := range slots {
		assert.Equal(t, i+1, slot.Index)
	}
	assert.Equal(t, "branch-1", slots[0].BranchID)
	assert.Equal(t, "branch-2", slots[2].BranchID)
}

func TestSlotServicePastDateYieldsNothing(t *testing.T) {
	endTime := "12:00"
	schedules := &memSchedules{blocks: []models.ScheduleDefinition{{
		ID:              "sched-1",
		DoctorID:        "doc-1",
		DayOfWeek:       models.Monday,
		StartTime:       "09:00",
		EndTime:         &endTime,
		SlotDurationMin: 30,
		Active:          true,
	}}}
	svc := NewSlotService(schedules, fixedMonday(), nil)

	slots, err := svc.GenerateSlots(context.Background(), "doc-1", time.Date(2025, 2, 24, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Empty(t, slots)
}

func TestSlotServiceOffDayYieldsNothing(t *testing.T) {
	endTime := "12:00"
	schedules := &memSchedules{blocks: []models.ScheduleDefinition{{
		ID:              "sched-1",
		DoctorID:        "doc-1",
		DayOfWeek:       models.Monday,
		StartTime:       "09:00",
		EndTime:         &endTime,
		SlotDurationMin: 30,
		Active:          true,
	}}}
	svc := NewSlotService(schedules, fixedMonday(), nil)

	// Tuesday has no blocks.
	slots, err := svc.GenerateSlots(context.Background(), "doc-1", time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Empty(t, slots)
}

func TestSlotServiceDeterministicOutput(t *testing.T) {
	endTime := "12:00"
	schedules := &memSchedules{blocks: []models.ScheduleDefinition{{
		ID:              "sched-1",
		DoctorID:        "doc-1",
		DayOfWeek:       models.Monday,
		StartTime:       "09:00",
		EndTime:         &endTime,
		SlotDurationMin: 30,
		Active:          true,
	}}}
	svc := NewSlotService(schedules, fixedMonday(), nil)
	date := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

	first, err := svc.GenerateSlots(context.Background(), "doc-1", date)
	require.NoError(t, err)
	second, err := svc.GenerateSlots(context.Background(), "doc-1", date)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func startTimes(slots []models.Slot) []string {
	out := make([]string, len(slots))
	for i, slot := range slots {
		out[i] = slot.StartTime
	}
	return out
}
