package datastore

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/logging"
	"github.com/dmitrijs2005/gatekeeper/internal/vault"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeVault struct {
	mu    sync.Mutex
	rec   vault.Record
	err   error
	reads int
	path  string
}

func (f *fakeVault) Read(name, passphrase string) (vault.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	return f.rec, f.err
}

func (f *fakeVault) Path(name string) string {
	if f.path == "" {
		return filepath.Join(os.TempDir(), "gatekeeper-missing", name+".vault")
	}
	return f.path
}

func (f *fakeVault) readCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads
}

// envelopeFile creates a stand-in envelope so the source can stat it.
func envelopeFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "db.vault")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o600))
	return path
}

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func goodRecord() vault.Record {
	return vault.Record{
		{Name: "DB_HOST", Value: "localhost"},
		{Name: "DB_USER", Value: "u"},
		{Name: "DB_PASSWORD", Value: "p"},
		{Name: "DB_NAME", Value: "n"},
	}
}

func stubOpen(t *testing.T) *[]string {
	t.Helper()
	var dsns []string
	orig := sqlOpen
	sqlOpen = func(driver, dsn string) (*sql.DB, error) {
		dsns = append(dsns, dsn)
		db, _, err := sqlmock.New()
		return db, err
	}
	t.Cleanup(func() { sqlOpen = orig })
	return &dsns
}

func TestSource_OpensOnceAndCaches(t *testing.T) {
	dsns := stubOpen(t)
	v := &fakeVault{rec: goodRecord()}
	s := NewSource(v, "entropy", testLogger())

	db1, err := s.DB(context.Background())
	require.NoError(t, err)
	db2, err := s.DB(context.Background())
	require.NoError(t, err)

	assert.Same(t, db1, db2)
	assert.Equal(t, 1, v.reads)
	assert.Equal(t, []string{"postgres://u:p@localhost:5432/n?sslmode=disable"}, *dsns)
}

func TestSource_ResetReopens(t *testing.T) {
	dsns := stubOpen(t)
	v := &fakeVault{rec: goodRecord()}
	s := NewSource(v, "entropy", testLogger())

	_, err := s.DB(context.Background())
	require.NoError(t, err)
	require.NoError(t, s.Reset())
	_, err = s.DB(context.Background())
	require.NoError(t, err)

	assert.Len(t, *dsns, 2)
	assert.NoError(t, s.Close())
	assert.NoError(t, s.Close(), "closing twice is a no-op")
}

func TestSource_MissingCredentials(t *testing.T) {
	stubOpen(t)
	s := NewSource(&fakeVault{err: common.ErrConfigurationMissing}, "entropy", testLogger())

	_, err := s.DB(context.Background())
	require.ErrorIs(t, err, common.ErrConfigurationMissing)
	assert.NotErrorIs(t, err, common.ErrConnectivityFailure)
}

func TestSource_UndecryptableCredentials(t *testing.T) {
	stubOpen(t)
	s := NewSource(&fakeVault{err: common.ErrDecode}, "wrong", testLogger())

	_, err := s.DB(context.Background())
	require.ErrorIs(t, err, common.ErrConnectivityFailure)
	require.ErrorIs(t, err, common.ErrDecode)
}

func TestSource_IncompleteCredentials(t *testing.T) {
	stubOpen(t)
	s := NewSource(&fakeVault{rec: vault.Record{{Name: "DB_HOST", Value: "h"}}}, "e", testLogger())

	_, err := s.DB(context.Background())
	require.ErrorIs(t, err, common.ErrConnectivityFailure)
}

func TestSource_DecodeFailureIsRemembered(t *testing.T) {
	stubOpen(t)
	v := &fakeVault{err: common.ErrDecode, path: envelopeFile(t)}
	s := NewSource(v, "wrong", testLogger())

	for i := 0; i < 5; i++ {
		_, err := s.DB(context.Background())
		require.ErrorIs(t, err, common.ErrConnectivityFailure)
		require.ErrorIs(t, err, common.ErrDecode)
	}
	assert.Equal(t, 1, v.readCount())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.DB(context.Background())
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, v.readCount())
}

func TestSource_DecodeFailureRetriedAfterResetOrChange(t *testing.T) {
	stubOpen(t)
	v := &fakeVault{err: common.ErrDecode, path: envelopeFile(t)}
	s := NewSource(v, "wrong", testLogger())

	_, err := s.DB(context.Background())
	require.Error(t, err)

	require.NoError(t, s.Reset())
	_, err = s.DB(context.Background())
	require.Error(t, err)
	assert.Equal(t, 2, v.readCount())

	// a rewritten envelope is read again
	v.mu.Lock()
	v.err, v.rec = nil, goodRecord()
	v.mu.Unlock()
	require.NoError(t, os.WriteFile(v.path, []byte(`{"rewritten":true}`), 0o600))
	later := time.Now().Add(time.Second)
	require.NoError(t, os.Chtimes(v.path, later, later))

	db, err := s.DB(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, db)
	assert.Equal(t, 3, v.readCount())
}

func TestSource_MissingCredentialsNotRemembered(t *testing.T) {
	stubOpen(t)
	v := &fakeVault{err: common.ErrConfigurationMissing}
	s := NewSource(v, "entropy", testLogger())

	_, _ = s.DB(context.Background())
	_, _ = s.DB(context.Background())
	assert.Equal(t, 2, v.readCount())
}
