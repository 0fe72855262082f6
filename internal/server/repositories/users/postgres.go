// Package users provides the PostgreSQL-backed store of login identities.
package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/dbx"
	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

const userColumns = `id, username, password_hash, revocation_token, is_admin, is_active, is_blocked, attempts, created_at`

// PostgresRepository works over dbx.DBTX, so the same code runs against
// *sql.DB or inside a transaction.
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts user. A zero ID is replaced with a fresh UUID and an empty
// revocation token with a random one. A taken username yields
// common.ErrAlreadyExists.
func (r *PostgresRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	if user.ID == uuid.Nil {
		user.ID = common.NewUUID()
	}
	if user.RevocationToken == "" {
		token, err := common.MakeRandHexString(32)
		if err != nil {
			return nil, err
		}
		user.RevocationToken = token
	}

	query :=
		`INSERT INTO users (id, username, password_hash, revocation_token, is_admin, is_active, is_blocked)
         VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING created_at
		 `

	err := r.db.QueryRowContext(ctx, query,
		user.ID, user.UserName, user.PasswordHash, user.RevocationToken,
		user.IsAdmin, user.IsActive, user.IsBlocked).Scan(&user.CreatedAt)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, fmt.Errorf("user %q: %w", user.UserName, common.ErrAlreadyExists)
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return user, nil
}

func (r *PostgresRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users
		 WHERE username = $1
		 `
	return r.getOne(ctx, query, username)
}

func (r *PostgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users
		 WHERE id = $1
		 `
	return r.getOne(ctx, query, id)
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, arg any) (*models.User, error) {
	user := &models.User{}
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID, &user.UserName, &user.PasswordHash, &user.RevocationToken,
		&user.IsAdmin, &user.IsActive, &user.IsBlocked, &user.Attempts, &user.CreatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return user, nil
}

// CountAdmins returns the number of active administrator accounts. On a
// database without the users table the driver error is returned wrapped,
// so callers can classify it.
func (r *PostgresRepository) CountAdmins(ctx context.Context) (int, error) {
	query := `SELECT COUNT(*) FROM users WHERE is_admin AND is_active`

	var n int
	if err := r.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

// LockForAdminCreation blocks concurrent writers to users until the
// surrounding transaction ends. It must run inside a transaction.
func (r *PostgresRepository) LockForAdminCreation(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `LOCK TABLE users IN SHARE ROW EXCLUSIVE MODE`); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// RecordFailedAttempt increments the failed-login counter and returns the
// new value.
func (r *PostgresRepository) RecordFailedAttempt(ctx context.Context, id uuid.UUID) (int, error) {
	query :=
		`UPDATE users SET attempts = attempts + 1
		 WHERE id = $1
		 RETURNING attempts
		 `

	var attempts int
	err := r.db.QueryRowContext(ctx, query, id).Scan(&attempts)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, common.ErrorNotFound
		}
		return 0, fmt.Errorf("db error: %w", err)
	}
	return attempts, nil
}

func (r *PostgresRepository) ResetAttempts(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE users SET attempts = 0 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
