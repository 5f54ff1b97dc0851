package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/medicore/hms-api/internal/models"
)

// PatientRepository reads the patient registry maintained by the wider
// hospital system; this service never writes it.
type PatientRepository struct {
	db *sqlx.DB
}

// NewPatientRepository creates a new patient repository.
func NewPatientRepository(db *sqlx.DB) *PatientRepository {
	return &PatientRepository{db: db}
}

// FindByID loads a patient by id.
func (r *PatientRepository) FindByID(ctx context.Context, id string) (*models.Patient, error) {
	const query = `SELECT id, mrn, full_name, phone, email, active, created_at, updated_at FROM patients WHERE id = $1`
	var patient models.Patient
	if err := r.db.GetContext(ctx, &patient, query, id); err != nil {
		return nil, err
	}
	return &patient, nil
}
