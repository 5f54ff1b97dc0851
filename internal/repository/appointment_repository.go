package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/medicore/hms-api/internal/models"
)

// ErrSlotTaken is returned when an insert or move lands on a slot already
// held by a non-terminal appointment. It surfaces the partial unique index
// on (doctor_id, appointment_date, appointment_time).
var ErrSlotTaken = errors.New("appointment slot already taken")

const appointmentColumns = "id, patient_id, doctor_id, branch_id, appointment_date, appointment_time, slot_index, appointment_type, status, payment_status, booking_fee, reason, booked_by, canceled_at, canceled_by, created_at, updated_at"

const slotUniqueConstraint = "appointments_active_slot_uniq"

// AppointmentRepository provides persistence for appointments.
type AppointmentRepository struct {
	db *sqlx.DB
}

// NewAppointmentRepository creates a new appointment repository.
func NewAppointmentRepository(db *sqlx.DB) *AppointmentRepository {
	return &AppointmentRepository{db: db}
}

// List returns appointments with optional filtering and pagination.
func (r *AppointmentRepository) List(ctx context.Context, filter models.AppointmentFilter) ([]models.Appointment, int, error) {
	base := "FROM appointments WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.PatientID != "" {
		conditions = append(conditions, fmt.Sprintf("patient_id = $%d", len(args)+1))
		args = append(args, filter.PatientID)
	}
	if filter.DoctorID != "" {
		conditions = append(conditions, fmt.Sprintf("doctor_id = $%d", len(args)+1))
		args = append(args, filter.DoctorID)
	}
	if filter.Date != nil {
		conditions = append(conditions, fmt.Sprintf("appointment_date = $%d", len(args)+1))
		args = append(args, *filter.Date)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, string(filter.Status))
	}
	if filter.PaymentStatus != "" {
		conditions = append(conditions, fmt.Sprintf("payment_status = $%d", len(args)+1))
		args = append(args, string(filter.PaymentStatus))
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{
		"appointment_date": true,
		"appointment_time": true,
		"created_at":       true,
	}
	if !allowedSorts[sortBy] {
		sortBy = "appointment_date"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s, appointment_time ASC LIMIT %d OFFSET %d", appointmentColumns, base, sortBy, order, size, offset)
	var appointments []models.Appointment
	if err := r.db.SelectContext(ctx, &appointments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list appointments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count appointments: %w", err)
	}

	return appointments, total, nil
}

// FindByID loads an appointment by id.
func (r *AppointmentRepository) FindByID(ctx context.Context, id string) (*models.Appointment, error) {
	query := fmt.Sprintf("SELECT %s FROM appointments WHERE id = $1", appointmentColumns)
	var appt models.Appointment
	if err := r.db.GetContext(ctx, &appt, query, id); err != nil {
		return nil, err
	}
	return &appt, nil
}

// ListOccupyingByDoctorDate returns the appointments that occupy slots for a
// doctor on a date: everything except canceled and no-show. Completed
// appointments still occupy their slot as proof of capacity used.
func (r *AppointmentRepository) ListOccupyingByDoctorDate(ctx context.Context, doctorID string, date time.Time) ([]models.Appointment, error) {
	query := fmt.Sprintf("SELECT %s FROM appointments WHERE doctor_id = $1 AND appointment_date = $2 AND status NOT IN ('canceled', 'no_show') ORDER BY appointment_time ASC", appointmentColumns)
	var appointments []models.Appointment
	if err := r.db.SelectContext(ctx, &appointments, query, doctorID, date); err != nil {
		return nil, fmt.Errorf("list occupying appointments: %w", err)
	}
	return appointments, nil
}

// Create inserts a new appointment. A violation of the active-slot unique
// index is reported as ErrSlotTaken.
func (r *AppointmentRepository) Create(ctx context.Context, appt *models.Appointment) error {
	if appt.ID == "" {
		appt.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if appt.CreatedAt.IsZero() {
		appt.CreatedAt = now
	}
	appt.UpdatedAt = now

	const query = `INSERT INTO appointments (id, patient_id, doctor_id, branch_id, appointment_date, appointment_time, slot_index, appointment_type, status, payment_status, booking_fee, reason, booked_by, canceled_at, canceled_by, created_at, updated_at) VALUES (:id, :patient_id, :doctor_id, :branch_id, :appointment_date, :appointment_time, :slot_index, :appointment_type, :status, :payment_status, :booking_fee, :reason, :booked_by, :canceled_at, :canceled_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, appt); err != nil {
		if isSlotConflict(err) {
			return ErrSlotTaken
		}
		return fmt.Errorf("create appointment: %w", err)
	}
	return nil
}

// Update rewrites the mutable fields of a non-terminal appointment. It
// reports whether a row was actually updated; terminal rows never match.
func (r *AppointmentRepository) Update(ctx context.Context, appt *models.Appointment) (bool, error) {
	appt.UpdatedAt = time.Now().UTC()
	const query = `UPDATE appointments SET appointment_date = :appointment_date, appointment_time = :appointment_time, slot_index = :slot_index, appointment_type = :appointment_type, status = :status, payment_status = :payment_status, booking_fee = :booking_fee, reason = :reason, updated_at = :updated_at WHERE id = :id AND status NOT IN ('completed', 'canceled', 'no_show')`
	res, err := r.db.NamedExecContext(ctx, query, appt)
	if err != nil {
		if isSlotConflict(err) {
			return false, ErrSlotTaken
		}
		return false, fmt.Errorf("update appointment: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update appointment rows: %w", err)
	}
	return rows > 0, nil
}

// TransitionStatus moves an appointment from one status to another. The
// guard on the source status makes concurrent transitions race-safe: only
// one caller observes a row change.
func (r *AppointmentRepository) TransitionStatus(ctx context.Context, id string, from, to models.AppointmentStatus) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE appointments SET status = $3, updated_at = $4 WHERE id = $1 AND status = $2`, id, string(from), string(to), time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("transition appointment %s %s->%s: %w", id, from, to, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("transition appointment rows: %w", err)
	}
	return rows > 0, nil
}

// Cancel marks a non-terminal appointment canceled, recording the actor and
// timestamp. It reports whether a row was updated.
func (r *AppointmentRepository) Cancel(ctx context.Context, id, actorID string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE appointments SET status = 'canceled', canceled_at = $2, canceled_by = $3, updated_at = $2 WHERE id = $1 AND status NOT IN ('completed', 'canceled', 'no_show')`, id, at.UTC(), actorID)
	if err != nil {
		return false, fmt.Errorf("cancel appointment: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("cancel appointment rows: %w", err)
	}
	return rows > 0, nil
}

// ListStaleBooked returns booked or rescheduled appointments whose scheduled start lies
// before the cutoff, candidates for the no-show sweep.
func (r *AppointmentRepository) ListStaleBooked(ctx context.Context, cutoff time.Time) ([]models.Appointment, error) {
	query := fmt.Sprintf("SELECT %s FROM appointments WHERE status IN ('booked', 'rescheduled') AND (appointment_date + appointment_time::time) < $1 ORDER BY appointment_date ASC, appointment_time ASC", appointmentColumns)
	var appointments []models.Appointment
	if err := r.db.SelectContext(ctx, &appointments, query, cutoff); err != nil {
		return nil, fmt.Errorf("list stale booked appointments: %w", err)
	}
	return appointments, nil
}

func isSlotConflict(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505" && pqErr.Constraint == slotUniqueConstraint
	}
	return false
}
