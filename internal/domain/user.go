package domain

import (
	"time"

	"github.com/google/uuid"
)

// Role is the closed set of actors known to the platform.
type Role string

const (
	RoleBuyer  Role = "BUYER"
	RoleCS1    Role = "CS1"
	RoleCS2    Role = "CS2"
	RoleSystem Role = "SYSTEM"
)

// Valid reports whether r is a role a user account can hold.
func (r Role) Valid() bool {
	switch r {
	case RoleBuyer, RoleCS1, RoleCS2:
		return true
	}
	return false
}

// User represents a platform account
type User struct {
	ID           uuid.UUID `json:"id" db:"id"`
	Email        string    `json:"email" db:"email"`
	Name         string    `json:"name" db:"name"`
	PasswordHash string    `json:"-" db:"password_hash"`
	Role         Role      `json:"role" db:"role"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// RefreshToken is a long-lived session credential. Only the digest of the
// token string is persisted.
type RefreshToken struct {
	ID          uuid.UUID `db:"id"`
	UserID      uuid.UUID `db:"user_id"`
	TokenDigest string    `db:"token_digest"`
	ExpiresAt   time.Time `db:"expires_at"`
	CreatedAt   time.Time `db:"created_at"`
	Revoked     bool      `db:"revoked"`
}

// Actor identifies who triggers an order operation.
type Actor struct {
	ID   uuid.UUID
	Role Role
}

// SystemActor is used by time-driven transitions.
var SystemActor = Actor{Role: RoleSystem}
