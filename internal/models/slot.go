package models

import "time"

// Slot is one bookable time unit derived from a schedule definition for a
// single calendar date. Slots are computed on demand and never persisted;
// the canonical identifier on the wire is StartTime.
type Slot struct {
	DoctorID  string    `json:"doctor_id"`
	BranchID  string    `json:"branch_id"`
	Date      time.Time `json:"date"`
	Index     int       `json:"index"`
	StartTime string    `json:"start_time"`
	EndTime   string    `json:"end_time"`
}

// Availability partitions a day's slots into booked and available sets.
// BookedSlots holds the occupied start times; AllSlots is always the
// disjoint union of AvailableSlots and the slots named by BookedSlots.
type Availability struct {
	DoctorID       string    `json:"doctor_id"`
	Date           time.Time `json:"date"`
	AllSlots       []Slot    `json:"all_slots"`
	BookedSlots    []string  `json:"booked_slots"`
	AvailableSlots []Slot    `json:"available_slots"`
}
