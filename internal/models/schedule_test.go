package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClock(t *testing.T) {
	minutes, err := ParseClock("09:30")
	require.NoError(t, err)
	assert.Equal(t, 570, minutes)

	_, err = ParseClock("25:00")
	require.Error(t, err)
	_, err = ParseClock("9am")
	require.Error(t, err)
}

func TestFormatClock(t *testing.T) {
	assert.Equal(t, "09:30", FormatClock(570))
	assert.Equal(t, "00:00", FormatClock(0))
}

func TestWeekdayOf(t *testing.T) {
	assert.Equal(t, Monday, WeekdayOf(time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, Sunday, WeekdayOf(time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC)))
}

func TestScheduleDefinitionSlotCount(t *testing.T) {
	end := "12:00"
	byEnd := ScheduleDefinition{StartTime: "09:00", EndTime: &end, SlotDurationMin: 30}
	assert.Equal(t, 6, byEnd.SlotCount())

	byCap := ScheduleDefinition{StartTime: "09:00", SlotDurationMin: 30, MaxPatients: 4}
	assert.Equal(t, 4, byCap.SlotCount())

	// An explicit cap wins over the derived count.
	both := ScheduleDefinition{StartTime: "09:00", EndTime: &end, SlotDurationMin: 30, MaxPatients: 2}
	assert.Equal(t, 2, both.SlotCount())

	partial := ScheduleDefinition{StartTime: "09:00", SlotDurationMin: 30}
	assert.Zero(t, partial.SlotCount())
}

func TestScheduleDefinitionTimeRange(t *testing.T) {
	end := "12:00"
	byEnd := ScheduleDefinition{StartTime: "09:00", EndTime: &end, SlotDurationMin: 30}
	start, stop, err := byEnd.TimeRange()
	require.NoError(t, err)
	assert.Equal(t, 540, start)
	assert.Equal(t, 720, stop)

	byCap := ScheduleDefinition{StartTime: "10:00", SlotDurationMin: 20, MaxPatients: 3}
	start, stop, err = byCap.TimeRange()
	require.NoError(t, err)
	assert.Equal(t, 600, start)
	assert.Equal(t, 660, stop)
}

func TestAppointmentStatusTerminal(t *testing.T) {
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusCanceled.Terminal())
	assert.True(t, StatusNoShow.Terminal())
	assert.False(t, StatusBooked.Terminal())
	assert.False(t, StatusCheckedIn.Terminal())
	assert.False(t, StatusInSession.Terminal())
}

func TestAppointmentStartsAt(t *testing.T) {
	appt := Appointment{
		AppointmentDate: time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
		AppointmentTime: "09:30",
	}
	startsAt, err := appt.StartsAt()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC), startsAt)
}
