package models

import "time"

// Patient is a read-only projection of the patient registry, which is
// managed by the wider hospital system.
type Patient struct {
	ID        string    `db:"id" json:"id"`
	MRN       string    `db:"mrn" json:"mrn"`
	FullName  string    `db:"full_name" json:"full_name"`
	Phone     *string   `db:"phone" json:"phone,omitempty"`
	Email     *string   `db:"email" json:"email,omitempty"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
