package users

import (
	"context"

	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
	"github.com/google/uuid"
)

// Repository stores login identities. Lookups of missing rows return
// common.ErrorNotFound.
type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)

	// CountAdmins counts active administrators.
	CountAdmins(ctx context.Context) (int, error)
	// LockForAdminCreation blocks concurrent admin creation until the
	// surrounding transaction ends.
	LockForAdminCreation(ctx context.Context) error

	// RecordFailedAttempt increments the counter and returns its new value.
	RecordFailedAttempt(ctx context.Context, id uuid.UUID) (int, error)
	ResetAttempts(ctx context.Context, id uuid.UUID) error
}
