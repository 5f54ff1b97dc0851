package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/medicore/hms-api/internal/models"
	appErrors "github.com/medicore/hms-api/pkg/errors"
)

type scheduleRepository interface {
	List(ctx context.Context, filter models.ScheduleFilter) ([]models.ScheduleDefinition, int, error)
	FindByID(ctx context.Context, id string) (*models.ScheduleDefinition, error)
	FindByDoctorDay(ctx context.Context, doctorID, branchID, dayOfWeek string) ([]models.ScheduleDefinition, error)
	Create(ctx context.Context, def *models.ScheduleDefinition) error
	Update(ctx context.Context, def *models.ScheduleDefinition) error
	Deactivate(ctx context.Context, id string) error
}

// CreateScheduleRequest describes payload for creating a schedule block.
type CreateScheduleRequest struct {
	DoctorID        string  `json:"doctor_id" validate:"required"`
	BranchID        string  `json:"branch_id" validate:"required"`
	DayOfWeek       string  `json:"day_of_week" validate:"required,oneof=MONDAY TUESDAY WEDNESDAY THURSDAY FRIDAY SATURDAY SUNDAY"`
	StartTime       string  `json:"start_time" validate:"required,datetime=15:04"`
	EndTime         *string `json:"end_time,omitempty" validate:"omitempty,datetime=15:04"`
	SlotDurationMin int     `json:"slot_duration_min" validate:"required,min=5,max=240"`
	MaxPatients     int     `json:"max_patients" validate:"min=0,max=100"`
}

// UpdateScheduleRequest updates an existing schedule block.
type UpdateScheduleRequest struct {
	BranchID        string  `json:"branch_id" validate:"required"`
	DayOfWeek       string  `json:"day_of_week" validate:"required,oneof=MONDAY TUESDAY WEDNESDAY THURSDAY FRIDAY SATURDAY SUNDAY"`
	StartTime       string  `json:"start_time" validate:"required,datetime=15:04"`
	EndTime         *string `json:"end_time,omitempty" validate:"omitempty,datetime=15:04"`
	SlotDurationMin int     `json:"slot_duration_min" validate:"required,min=5,max=240"`
	MaxPatients     int     `json:"max_patients" validate:"min=0,max=100"`
	Active          *bool   `json:"active,omitempty"`
}

// ScheduleService manages recurring weekly availability blocks.
type ScheduleService struct {
	repo      scheduleRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewScheduleService instantiates ScheduleService.
func NewScheduleService(repo scheduleRepository, validate *validator.Validate, logger *zap.Logger) *ScheduleService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScheduleService{repo: repo, validator: validate, logger: logger}
}

// List returns schedule blocks with pagination metadata.
func (s *ScheduleService) List(ctx context.Context, filter models.ScheduleFilter) ([]models.ScheduleDefinition, *models.Pagination, error) {
	definitions, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list schedule blocks")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return definitions, pagination, nil
}

// Get loads one schedule block.
func (s *ScheduleService) Get(ctx context.Context, id string) (*models.ScheduleDefinition, error) {
	def, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "schedule block not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load schedule block")
	}
	return def, nil
}

// GetSchedule returns the active blocks for a doctor/branch/day, the
// contract consumed by the slot generator.
func (s *ScheduleService) GetSchedule(ctx context.Context, doctorID, branchID, dayOfWeek string) ([]models.ScheduleDefinition, error) {
	definitions, err := s.repo.FindByDoctorDay(ctx, doctorID, branchID, strings.ToUpper(dayOfWeek))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load doctor schedule")
	}
	return definitions, nil
}

// Create inserts a new schedule block after enforcing the non-overlap
// invariant against the doctor's existing blocks for that branch and day.
func (s *ScheduleService) Create(ctx context.Context, req CreateScheduleRequest) (*models.ScheduleDefinition, error) {
	// Day-of-week input is case-insensitive; normalize before validation.
	req.DayOfWeek = strings.ToUpper(req.DayOfWeek)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid schedule payload")
	}

	def := models.ScheduleDefinition{
		DoctorID:        req.DoctorID,
		BranchID:        req.BranchID,
		DayOfWeek:       req.DayOfWeek,
		StartTime:       req.StartTime,
		EndTime:         req.EndTime,
		SlotDurationMin: req.SlotDurationMin,
		MaxPatients:     req.MaxPatients,
		Active:          true,
	}

	if err := s.checkCapacity(def); err != nil {
		return nil, err
	}
	if err := s.ensureNoOverlap(ctx, def, ""); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, &def); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create schedule block")
	}
	return &def, nil
}

// Update modifies an existing schedule block, re-checking the non-overlap
// invariant at the new time range.
func (s *ScheduleService) Update(ctx context.Context, id string, req UpdateScheduleRequest) (*models.ScheduleDefinition, error) {
	req.DayOfWeek = strings.ToUpper(req.DayOfWeek)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid schedule payload")
	}

	existing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "schedule block not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load schedule block")
	}

	updated := models.ScheduleDefinition{
		ID:              existing.ID,
		DoctorID:        existing.DoctorID,
		BranchID:        req.BranchID,
		DayOfWeek:       req.DayOfWeek,
		StartTime:       req.StartTime,
		EndTime:         req.EndTime,
		SlotDurationMin: req.SlotDurationMin,
		MaxPatients:     req.MaxPatients,
		Active:          existing.Active,
		CreatedAt:       existing.CreatedAt,
	}
	if req.Active != nil {
		updated.Active = *req.Active
	}

	if err := s.checkCapacity(updated); err != nil {
		return nil, err
	}
	if updated.Active {
		if err := s.ensureNoOverlap(ctx, updated, existing.ID); err != nil {
			return nil, err
		}
	}

	if err := s.repo.Update(ctx, &updated); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update schedule block")
	}
	return &updated, nil
}

// Deactivate soft-disables a schedule block.
func (s *ScheduleService) Deactivate(ctx context.Context, id string) error {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "schedule block not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load schedule block")
	}

	if err := s.repo.Deactivate(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate schedule block")
	}
	return nil
}

// checkCapacity requires either an explicit patient cap or an end time the
// slot count can be derived from.
func (s *ScheduleService) checkCapacity(def models.ScheduleDefinition) error {
	if def.MaxPatients > 0 {
		return nil
	}
	if def.EndTime == nil || *def.EndTime == "" {
		return appErrors.Clone(appErrors.ErrValidation, "either max_patients or end_time is required")
	}
	if def.SlotCount() <= 0 {
		return appErrors.Clone(appErrors.ErrValidation, "end_time must leave room for at least one slot")
	}
	return nil
}

func (s *ScheduleService) ensureNoOverlap(ctx context.Context, def models.ScheduleDefinition, ignoreID string) error {
	start, end, err := def.TimeRange()
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid schedule time range")
	}
	if end <= start {
		return appErrors.Clone(appErrors.ErrValidation, "end_time must be after start_time")
	}

	// Overlap is checked across branches: a doctor cannot hold two blocks
	// at once regardless of location.
	existing, err := s.repo.FindByDoctorDay(ctx, def.DoctorID, "", def.DayOfWeek)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check schedule overlap")
	}

	for _, block := range existing {
		if block.ID == ignoreID {
			continue
		}
		bStart, bEnd, err := block.TimeRange()
		if err != nil {
			s.logger.Warn("skipping malformed schedule block during overlap check", zap.String("schedule_id", block.ID), zap.Error(err))
			continue
		}
		if start < bEnd && bStart < end {
			return appErrors.Clone(appErrors.ErrScheduleOverlap, "schedule block overlaps an existing block for this doctor")
		}
	}
	return nil
}
