// Package services contains server-side business logic. This file implements
// UserService, which reads and updates login identities and creates the first
// administrator account.
package services

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/dbx"
	"github.com/dmitrijs2005/gatekeeper/internal/logging"
	"github.com/dmitrijs2005/gatekeeper/internal/server/auth"
	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
	"github.com/dmitrijs2005/gatekeeper/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// DBProvider yields the application database, opening it on demand.
type DBProvider interface {
	DB(ctx context.Context) (*sql.DB, error)
}

// hashPassword is a seam for tests.
var hashPassword = auth.HashPassword

// UserService resolves the database per call, so it keeps working after the
// pool is reopened by setup.
type UserService struct {
	db          DBProvider
	repomanager repomanager.RepositoryManager
	logger      logging.Logger
}

func NewUserService(db DBProvider, m repomanager.RepositoryManager, logger logging.Logger) *UserService {
	return &UserService{db: db, repomanager: m, logger: logger.With("module", "users")}
}

func (s *UserService) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	db, err := s.db.DB(ctx)
	if err != nil {
		return nil, err
	}
	return s.repomanager.Users(db).GetByUsername(ctx, username)
}

func (s *UserService) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	db, err := s.db.DB(ctx)
	if err != nil {
		return nil, err
	}
	return s.repomanager.Users(db).GetByID(ctx, id)
}

func (s *UserService) RecordFailedAttempt(ctx context.Context, id uuid.UUID) (int, error) {
	db, err := s.db.DB(ctx)
	if err != nil {
		return 0, err
	}
	return s.repomanager.Users(db).RecordFailedAttempt(ctx, id)
}

func (s *UserService) ResetAttempts(ctx context.Context, id uuid.UUID) error {
	db, err := s.db.DB(ctx)
	if err != nil {
		return err
	}
	return s.repomanager.Users(db).ResetAttempts(ctx, id)
}

// CountAdmins returns the number of active administrators. Driver errors
// are returned wrapped so the gate can classify them.
func (s *UserService) CountAdmins(ctx context.Context) (int, error) {
	db, err := s.db.DB(ctx)
	if err != nil {
		return 0, err
	}
	return s.repomanager.Users(db).CountAdmins(ctx)
}

// CreateInitialAdmin creates the first administrator. The admin count is
// re-checked under a table lock inside the insert transaction, so of two
// concurrent submissions only one succeeds; the other gets
// common.ErrAlreadyExists.
func (s *UserService) CreateInitialAdmin(ctx context.Context, creds auth.Credentials) (*models.User, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}

	hash, err := hashPassword(creds.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	db, err := s.db.DB(ctx)
	if err != nil {
		return nil, err
	}

	var created *models.User
	err = dbx.WithTx(ctx, db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Users(tx)

		if err := repo.LockForAdminCreation(ctx); err != nil {
			return err
		}
		n, err := repo.CountAdmins(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("administrator: %w", common.ErrAlreadyExists)
		}

		created, err = repo.Create(ctx, &models.User{
			UserName:     creds.Username,
			PasswordHash: hash,
			IsAdmin:      true,
			IsActive:     true,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "administrator created", "user", created.ID, "username", created.UserName)
	return created, nil
}
