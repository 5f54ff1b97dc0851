package models

import "time"

// AppointmentStatus enumerates the appointment lifecycle.
type AppointmentStatus string

const (
	StatusBooked      AppointmentStatus = "booked"
	StatusCheckedIn   AppointmentStatus = "checked_in"
	StatusInSession   AppointmentStatus = "in_session"
	StatusCompleted   AppointmentStatus = "completed"
	StatusCanceled    AppointmentStatus = "canceled"
	StatusNoShow      AppointmentStatus = "no_show"
	StatusRescheduled AppointmentStatus = "rescheduled"
)

// Terminal reports whether no further business mutation is permitted.
func (s AppointmentStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCanceled || s == StatusNoShow
}

// TerminalStatuses is the SQL-side counterpart of Terminal.
var TerminalStatuses = []string{string(StatusCompleted), string(StatusCanceled), string(StatusNoShow)}

// PaymentStatus enumerates billing settlement states tracked on the
// appointment row; invoice generation itself lives elsewhere.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRefunded PaymentStatus = "refunded"
)

// AppointmentType enumerates the visit kinds accepted at booking.
type AppointmentType string

const (
	TypeConsultation AppointmentType = "consultation"
	TypeFollowUp     AppointmentType = "follow_up"
	TypeEmergency    AppointmentType = "emergency"
)

// Appointment is one booked slot. AppointmentTime always equals the start
// time of a generated slot; at most one non-terminal appointment may exist
// per (doctor, date, time), enforced by a partial unique index.
type Appointment struct {
	ID              string            `db:"id" json:"id"`
	PatientID       string            `db:"patient_id" json:"patient_id"`
	DoctorID        string            `db:"doctor_id" json:"doctor_id"`
	BranchID        string            `db:"branch_id" json:"branch_id"`
	AppointmentDate time.Time         `db:"appointment_date" json:"appointment_date"`
	AppointmentTime string            `db:"appointment_time" json:"appointment_time"`
	SlotIndex       int               `db:"slot_index" json:"slot_index"`
	Type            AppointmentType   `db:"appointment_type" json:"appointment_type"`
	Status          AppointmentStatus `db:"status" json:"status"`
	PaymentStatus   PaymentStatus     `db:"payment_status" json:"payment_status"`
	BookingFee      float64           `db:"booking_fee" json:"booking_fee"`
	Reason          *string           `db:"reason" json:"reason,omitempty"`
	BookedBy        string            `db:"booked_by" json:"booked_by"`
	CanceledAt      *time.Time        `db:"canceled_at" json:"canceled_at,omitempty"`
	CanceledBy      *string           `db:"canceled_by" json:"canceled_by,omitempty"`
	CreatedAt       time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time         `db:"updated_at" json:"updated_at"`
}

// StartsAt combines the appointment date and clock time in the date's
// location.
func (a Appointment) StartsAt() (time.Time, error) {
	minutes, err := ParseClock(a.AppointmentTime)
	if err != nil {
		return time.Time{}, err
	}
	d := a.AppointmentDate
	return time.Date(d.Year(), d.Month(), d.Day(), minutes/60, minutes%60, 0, 0, d.Location()), nil
}

// AppointmentFilter captures filtering criteria for listing appointments.
type AppointmentFilter struct {
	PatientID     string
	DoctorID      string
	Date          *time.Time
	Status        AppointmentStatus
	PaymentStatus PaymentStatus
	Page          int
	PageSize      int
	SortBy        string
	SortOrder     string
}
