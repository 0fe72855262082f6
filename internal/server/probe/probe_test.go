package probe

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/logging"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type provider struct {
	db  *sql.DB
	err error
}

func (p provider) DB(context.Context) (*sql.DB, error) { return p.db, p.err }

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func TestProbe_OK(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(`SELECT 1`).WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	p := New(provider{db: db}, 0, testLogger())
	ok, err := p.Probe(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProbe_ConnectivityFailuresAreFalse(t *testing.T) {
	failures := []error{
		&pgconn.PgError{Code: "08006"},
		&pgconn.PgError{Code: "28P01"},
		&pgconn.PgError{Code: "3D000"},
		&pgconn.PgError{Code: "57P03"},
		&net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")},
		context.DeadlineExceeded,
	}
	for _, failure := range failures {
		t.Run(fmt.Sprintf("%v", failure), func(t *testing.T) {
			db, mock := newMock(t)
			mock.ExpectQuery(`SELECT 1`).WillReturnError(failure)

			ok, err := New(provider{db: db}, 0, testLogger()).Probe(context.Background())
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestProbe_UnopenablePoolIsFalse(t *testing.T) {
	for _, cause := range []error{common.ErrConfigurationMissing, fmt.Errorf("%w: bad creds", common.ErrConnectivityFailure)} {
		ok, err := New(provider{err: cause}, 0, testLogger()).Probe(context.Background())
		require.NoError(t, err)
		assert.False(t, ok)
	}
}

func TestProbe_ProgrammingErrorPropagates(t *testing.T) {
	db, mock := newMock(t)
	syntax := &pgconn.PgError{Code: "42601", Message: "syntax error"}
	mock.ExpectQuery(`SELECT 1`).WillReturnError(syntax)

	ok, err := New(provider{db: db}, 0, testLogger()).Probe(context.Background())
	assert.False(t, ok)
	require.ErrorIs(t, err, syntax)
}

func TestAssertConnected(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectQuery(`SELECT 1`).WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
		require.NoError(t, New(provider{db: db}, 0, testLogger()).AssertConnected(context.Background()))
	})

	t.Run("connectivity failure", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectQuery(`SELECT 1`).WillReturnError(&pgconn.PgError{Code: "08001"})

		err := New(provider{db: db}, 0, testLogger()).AssertConnected(context.Background())
		var f *Failure
		require.ErrorAs(t, err, &f)
		assert.Equal(t, KindConnectivity, f.Kind)
		assert.ErrorIs(t, err, common.ErrConnectivityFailure)
		assert.NotErrorIs(t, err, common.ErrSchemaMissing)
	})

	t.Run("configuration missing", func(t *testing.T) {
		err := New(provider{err: common.ErrConfigurationMissing}, 0, testLogger()).AssertConnected(context.Background())
		var f *Failure
		require.ErrorAs(t, err, &f)
		assert.Equal(t, KindConfigurationMissing, f.Kind)
		assert.ErrorIs(t, err, common.ErrConfigurationMissing)
		assert.NotErrorIs(t, err, common.ErrConnectivityFailure)
	})

	t.Run("other error passes through", func(t *testing.T) {
		db, mock := newMock(t)
		boom := errors.New("boom")
		mock.ExpectQuery(`SELECT 1`).WillReturnError(boom)

		err := New(provider{db: db}, 0, testLogger()).AssertConnected(context.Background())
		var f *Failure
		assert.False(t, errors.As(err, &f))
		assert.ErrorIs(t, err, boom)
	})
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want Kind
	}{
		{nil, KindNone},
		{fmt.Errorf("db error: %w", &pgconn.PgError{Code: "42P01"}), KindSchemaMissing},
		{&pgconn.PgError{Code: "3F000"}, KindSchemaMissing},
		{&pgconn.PgError{Code: "08003"}, KindConnectivity},
		{&pgconn.PgError{Code: "28000"}, KindConnectivity},
		{&pgconn.PgError{Code: "57P01"}, KindConnectivity},
		{&pgconn.PgError{Code: "23505"}, KindOther},
		{common.ErrSchemaMissing, KindSchemaMissing},
		{common.ErrConfigurationMissing, KindConfigurationMissing},
		{fmt.Errorf("%w: %w", common.ErrConnectivityFailure, common.ErrConfigurationMissing), KindConfigurationMissing},
		{fmt.Errorf("wrapped: %w", context.DeadlineExceeded), KindConnectivity},
		{sql.ErrConnDone, KindConnectivity},
		{fmt.Errorf("exec: %w", driver.ErrBadConn), KindConnectivity},
		{context.Canceled, KindOther},
		{errors.New("mystery"), KindOther},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.err), "%v", tt.err)
	}
}

func TestFailure_Error(t *testing.T) {
	f := &Failure{Kind: KindSchemaMissing, Err: errors.New("no users table")}
	assert.Equal(t, "schema missing: no users table", f.Error())
	assert.ErrorIs(t, f, common.ErrSchemaMissing)
}
