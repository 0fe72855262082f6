package models

import (
	"time"

	"github.com/google/uuid"
)

// User is the stored identity consulted at login.
type User struct {
	ID              uuid.UUID `db:"id"`
	UserName        string    `db:"username"`
	PasswordHash    string    `db:"password_hash"`
	RevocationToken string    `db:"revocation_token"`
	IsAdmin         bool      `db:"is_admin"`
	IsActive        bool      `db:"is_active"`
	IsBlocked       bool      `db:"is_blocked"`
	Attempts        int       `db:"attempts"`
	CreatedAt       time.Time `db:"created_at"`
}
