package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/medicore/hms-api/internal/models"
)

const scheduleColumns = "id, doctor_id, branch_id, day_of_week, start_time, end_time, slot_duration_min, max_patients, active, created_at, updated_at"

// ScheduleRepository provides persistence for recurring schedule definitions.
type ScheduleRepository struct {
	db *sqlx.DB
}

// NewScheduleRepository creates a new schedule repository.
func NewScheduleRepository(db *sqlx.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

// List returns schedule definitions with optional filtering and pagination.
func (r *ScheduleRepository) List(ctx context.Context, filter models.ScheduleFilter) ([]models.ScheduleDefinition, int, error) {
	base := "FROM schedule_definitions WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.DoctorID != "" {
		conditions = append(conditions, fmt.Sprintf("doctor_id = $%d", len(args)+1))
		args = append(args, filter.DoctorID)
	}
	if filter.BranchID != "" {
		conditions = append(conditions, fmt.Sprintf("branch_id = $%d", len(args)+1))
		args = append(args, filter.BranchID)
	}
	if filter.DayOfWeek != "" {
		conditions = append(conditions, fmt.Sprintf("day_of_week = $%d", len(args)+1))
		args = append(args, filter.DayOfWeek)
	}
	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{
		"day_of_week": true,
		"start_time":  true,
		"created_at":  true,
	}
	if !allowedSorts[sortBy] {
		sortBy = "day_of_week"
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

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s, start_time ASC LIMIT %d OFFSET %d", scheduleColumns, base, sortBy, order, size, offset)
	var definitions []models.ScheduleDefinition
	if err := r.db.SelectContext(ctx, &definitions, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list schedule definitions: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count schedule definitions: %w", err)
	}

	return definitions, total, nil
}

// FindByID loads a schedule definition by id.
func (r *ScheduleRepository) FindByID(ctx context.Context, id string) (*models.ScheduleDefinition, error) {
	query := fmt.Sprintf("SELECT %s FROM schedule_definitions WHERE id = $1", scheduleColumns)
	var def models.ScheduleDefinition
	if err := r.db.GetContext(ctx, &def, query, id); err != nil {
		return nil, err
	}
	return &def, nil
}

// FindByDoctorDay returns the active blocks for a doctor on a weekday,
// ordered by start time. An empty branch id matches every branch. An empty
// result means the doctor takes no patients that day.
func (r *ScheduleRepository) FindByDoctorDay(ctx context.Context, doctorID, branchID, dayOfWeek string) ([]models.ScheduleDefinition, error) {
	query := fmt.Sprintf("SELECT %s FROM schedule_definitions WHERE doctor_id = $1 AND day_of_week = $2 AND active = TRUE", scheduleColumns)
	args := []interface{}{doctorID, dayOfWeek}
	if branchID != "" {
		query += " AND branch_id = $3"
		args = append(args, branchID)
	}
	query += " ORDER BY start_time ASC"

	var definitions []models.ScheduleDefinition
	if err := r.db.SelectContext(ctx, &definitions, query, args...); err != nil {
		return nil, fmt.Errorf("find schedule blocks: %w", err)
	}
	return definitions, nil
}

// Create stores a new schedule definition.
func (r *ScheduleRepository) Create(ctx context.Context, def *models.ScheduleDefinition) error {
	if def.ID == "" {
		def.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if def.CreatedAt.IsZero() {
		def.CreatedAt = now
	}
	def.UpdatedAt = now

	const query = `INSERT INTO schedule_definitions (id, doctor_id, branch_id, day_of_week, start_time, end_time, slot_duration_min, max_patients, active, created_at, updated_at) VALUES (:id, :doctor_id, :branch_id, :day_of_week, :start_time, :end_time, :slot_duration_min, :max_patients, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, def); err != nil {
		return fmt.Errorf("create schedule definition: %w", err)
	}
	return nil
}

// Update modifies a schedule definition.
func (r *ScheduleRepository) Update(ctx context.Context, def *models.ScheduleDefinition) error {
	def.UpdatedAt = time.Now().UTC()
	const query = `UPDATE schedule_definitions SET branch_id = :branch_id, day_of_week = :day_of_week, start_time = :start_time, end_time = :end_time, slot_duration_min = :slot_duration_min, max_patients = :max_patients, active = :active, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, def); err != nil {
		return fmt.Errorf("update schedule definition: %w", err)
	}
	return nil
}

// Deactivate soft-disables a schedule definition; the block survives for
// history and for the external schedule-change approval workflow.
func (r *ScheduleRepository) Deactivate(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE schedule_definitions SET active = FALSE, updated_at = $2 WHERE id = $1`, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("deactivate schedule definition: %w", err)
	}
	return nil
}
