package models

import "github.com/golang-jwt/jwt/v5"

// ActorRole labels who is acting on an appointment. Token issuance and role
// management belong to the identity service; only the claims are read here.
type ActorRole string

const (
	RoleAdmin        ActorRole = "ADMIN"
	RoleDoctor       ActorRole = "DOCTOR"
	RoleReceptionist ActorRole = "RECEPTIONIST"
	RolePatient      ActorRole = "PATIENT"
)

// ActorClaims are the JWT claims attached to authenticated requests, used to
// attribute booked_by / canceled_by.
type ActorClaims struct {
	UserID string    `json:"uid"`
	Role   ActorRole `json:"role"`
	jwt.RegisteredClaims
}
