package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/medicore/hms-api/internal/models"
)

// DoctorRepository reads the practitioner registry; doctor onboarding and
// profile management live outside this service.
type DoctorRepository struct {
	db *sqlx.DB
}

// NewDoctorRepository creates a new doctor repository.
func NewDoctorRepository(db *sqlx.DB) *DoctorRepository {
	return &DoctorRepository{db: db}
}

// FindByID loads a doctor by id.
func (r *DoctorRepository) FindByID(ctx context.Context, id string) (*models.Doctor, error) {
	const query = `SELECT id, full_name, specialty, branch_id, active, created_at, updated_at FROM doctors WHERE id = $1`
	var doctor models.Doctor
	if err := r.db.GetContext(ctx, &doctor, query, id); err != nil {
		return nil, err
	}
	return &doctor, nil
}
