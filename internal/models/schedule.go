package models

import (
	"fmt"
	"time"
)

// Weekday values stored with schedule definitions.
const (
	Monday    = "MONDAY"
	Tuesday   = "TUESDAY"
	Wednesday = "WEDNESDAY"
	Thursday  = "THURSDAY"
	Friday    = "FRIDAY"
	Saturday  = "SATURDAY"
	Sunday    = "SUNDAY"
)

// WeekdayOf maps a calendar date to the stored day-of-week value.
func WeekdayOf(date time.Time) string {
	switch date.Weekday() {
	case time.Monday:
		return Monday
	case time.Tuesday:
		return Tuesday
	case time.Wednesday:
		return Wednesday
	case time.Thursday:
		return Thursday
	case time.Friday:
		return Friday
	case time.Saturday:
		return Saturday
	default:
		return Sunday
	}
}

// ScheduleDefinition is a doctor's recurring weekly availability block at a
// branch. Times are clock strings ("09:00"); capacity comes from
// MaxPatients, or is derived from the block length and slot duration when
// MaxPatients is zero.
type ScheduleDefinition struct {
	ID              string    `db:"id" json:"id"`
	DoctorID        string    `db:"doctor_id" json:"doctor_id"`
	BranchID        string    `db:"branch_id" json:"branch_id"`
	DayOfWeek       string    `db:"day_of_week" json:"day_of_week"`
	StartTime       string    `db:"start_time" json:"start_time"`
	EndTime         *string   `db:"end_time" json:"end_time,omitempty"`
	SlotDurationMin int       `db:"slot_duration_min" json:"slot_duration_min"`
	MaxPatients     int       `db:"max_patients" json:"max_patients"`
	Active          bool      `db:"active" json:"active"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// TimeRange returns the block's [start, end) in minutes since midnight. The
// end falls back to start + capacity × duration when no end time is stored.
func (d ScheduleDefinition) TimeRange() (int, int, error) {
	start, err := ParseClock(d.StartTime)
	if err != nil {
		return 0, 0, fmt.Errorf("schedule %s start time: %w", d.ID, err)
	}
	if d.EndTime != nil && *d.EndTime != "" {
		end, err := ParseClock(*d.EndTime)
		if err != nil {
			return 0, 0, fmt.Errorf("schedule %s end time: %w", d.ID, err)
		}
		return start, end, nil
	}
	return start, start + d.SlotCount()*d.SlotDurationMin, nil
}

// SlotCount is the number of bookable slots the block yields.
func (d ScheduleDefinition) SlotCount() int {
	if d.MaxPatients > 0 {
		return d.MaxPatients
	}
	if d.SlotDurationMin <= 0 || d.EndTime == nil || *d.EndTime == "" {
		return 0
	}
	start, err := ParseClock(d.StartTime)
	if err != nil {
		return 0
	}
	end, err := ParseClock(*d.EndTime)
	if err != nil || end <= start {
		return 0
	}
	return (end - start) / d.SlotDurationMin
}

// ScheduleFilter describes query params for listing schedule definitions.
type ScheduleFilter struct {
	DoctorID  string
	BranchID  string
	DayOfWeek string
	Active    *bool
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// ParseClock converts an "HH:MM" string into minutes since midnight.
func ParseClock(value string) (int, error) {
	t, err := time.Parse("15:04", value)
	if err != nil {
		return 0, fmt.Errorf("invalid clock time %q", value)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// FormatClock converts minutes since midnight back into "HH:MM".
func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}
