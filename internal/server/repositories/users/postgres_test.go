package users

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() {
		require.NoError(t, mock.ExpectationsWereMet())
	})
	return NewPostgresRepository(db), mock, db
}

var userRowColumns = []string{"id", "username", "password_hash", "revocation_token", "is_admin", "is_active", "is_blocked", "attempts", "created_at"}

const insertQuery = `(?s)^INSERT\s+INTO\s+users\s*\(id,\s*username,\s*password_hash,\s*revocation_token,\s*is_admin,\s*is_active,\s*is_blocked\)\s*VALUES\s*\(\$1,\s*\$2,\s*\$3,\s*\$4,\s*\$5,\s*\$6,\s*\$7\)\s*RETURNING\s+created_at\s*$`

func TestCreate_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	mock.ExpectQuery(insertQuery).
		WithArgs(sqlmock.AnyArg(), "alice", "$argon2id$hash", sqlmock.AnyArg(), true, true, false).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(created))

	u := &models.User{UserName: "alice", PasswordHash: "$argon2id$hash", IsAdmin: true, IsActive: true}
	got, err := repo.Create(context.Background(), u)
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, got.ID)
	assert.Len(t, got.RevocationToken, 64)
	assert.Equal(t, created, got.CreatedAt)
}

func TestCreate_KeepsGivenID(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	id := uuid.New()
	mock.ExpectQuery(insertQuery).
		WithArgs(id, "bob", "h", "tok", false, true, false).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now()))

	got, err := repo.Create(context.Background(), &models.User{ID: id, UserName: "bob", PasswordHash: "h", RevocationToken: "tok", IsActive: true})
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
}

func TestCreate_Duplicate(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(insertQuery).
		WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key"})

	_, err := repo.Create(context.Background(), &models.User{UserName: "alice", PasswordHash: "h"})
	require.ErrorIs(t, err, common.ErrAlreadyExists)
}

func TestCreate_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(insertQuery).
		WillReturnError(errors.New("db down"))

	_, err := repo.Create(context.Background(), &models.User{UserName: "alice", PasswordHash: "h"})
	if err == nil || !regexp.MustCompile(`db error: .*db down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

const selectByUsername = `(?s)^SELECT\s+id,\s*username,.*created_at\s+FROM\s+users\s+WHERE\s+username\s*=\s*\$1\s*$`

func TestGetByUsername_Found(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	id := uuid.New()
	rows := sqlmock.NewRows(userRowColumns).
		AddRow(id.String(), "alice", "hash", "rev", true, true, false, 2, time.Now())
	mock.ExpectQuery(selectByUsername).WithArgs("alice").WillReturnRows(rows)

	got, err := repo.GetByUsername(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, "alice", got.UserName)
	assert.Equal(t, "hash", got.PasswordHash)
	assert.True(t, got.IsAdmin)
	assert.Equal(t, 2, got.Attempts)
}

func TestGetByUsername_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(selectByUsername).WithArgs("ghost").WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByUsername(context.Background(), "ghost")
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want common.ErrorNotFound, got %v", err)
	}
}

func TestGetByID_Found(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	id := uuid.New()
	q := `(?s)^SELECT\s+id,.*FROM\s+users\s+WHERE\s+id\s*=\s*\$1\s*$`
	rows := sqlmock.NewRows(userRowColumns).
		AddRow(id.String(), "alice", "hash", "rev", false, true, false, 0, time.Now())
	mock.ExpectQuery(q).WithArgs(id).WillReturnRows(rows)

	got, err := repo.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.UserName)
}

func TestCountAdmins(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^SELECT\s+COUNT\(\*\)\s+FROM\s+users\s+WHERE\s+is_admin\s+AND\s+is_active$`
	mock.ExpectQuery(q).WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	n, err := repo.CountAdmins(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestCountAdmins_KeepsDriverError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT COUNT`).
		WillReturnError(&pgconn.PgError{Code: "42P01", Message: `relation "users" does not exist`})

	_, err := repo.CountAdmins(context.Background())
	var pgErr *pgconn.PgError
	require.ErrorAs(t, err, &pgErr)
	assert.Equal(t, "42P01", pgErr.Code)
}

func TestRecordFailedAttempt(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	id := uuid.New()
	q := `(?s)^UPDATE\s+users\s+SET\s+attempts\s*=\s*attempts\s*\+\s*1\s+WHERE\s+id\s*=\s*\$1\s+RETURNING\s+attempts\s*$`
	mock.ExpectQuery(q).WithArgs(id).WillReturnRows(sqlmock.NewRows([]string{"attempts"}).AddRow(4))

	n, err := repo.RecordFailedAttempt(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestRecordFailedAttempt_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`UPDATE users SET attempts`).WillReturnError(sql.ErrNoRows)

	_, err := repo.RecordFailedAttempt(context.Background(), uuid.New())
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func TestResetAttempts(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	id := uuid.New()
	mock.ExpectExec(`UPDATE users SET attempts = 0 WHERE id = \$1`).
		WithArgs(id).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.ResetAttempts(context.Background(), id))
}

func TestResetAttempts_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE users SET attempts = 0`).WillReturnError(errors.New("db err"))

	err := repo.ResetAttempts(context.Background(), uuid.New())
	if err == nil || !regexp.MustCompile(`db error: .*db err`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestLockForAdminCreation(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`LOCK TABLE users IN SHARE ROW EXCLUSIVE MODE`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.LockForAdminCreation(context.Background()))
}
