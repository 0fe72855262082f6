// Package datastore opens the application database from the credential
// vault on first use.
package datastore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/logging"
	"github.com/dmitrijs2005/gatekeeper/internal/vault"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// sqlOpen is a seam for tests.
var sqlOpen = sql.Open

// CredentialReader is the part of the vault a Source needs.
type CredentialReader interface {
	Read(name, passphrase string) (vault.Record, error)
	Path(name string) string
}

// stamp identifies one version of the envelope file on disk.
type stamp struct {
	modTime time.Time
	size    int64
}

func (s *Source) envelopeStamp() (stamp, bool) {
	st, err := os.Stat(s.vault.Path(common.DatabaseVaultName))
	if err != nil {
		return stamp{}, false
	}
	return stamp{modTime: st.ModTime(), size: st.Size()}, true
}

// failedRead remembers credentials that could not be used, so the key
// derivation is not repeated for an envelope that has not changed.
type failedRead struct {
	stamp stamp
	err   error
}

// Source hands out a *sql.DB built from the "db" credential set. The pool is
// opened lazily and kept until Reset, so a setup run can swap credentials
// without restarting the process.
type Source struct {
	vault   CredentialReader
	entropy string
	logger  logging.Logger

	mu     sync.Mutex
	db     *sql.DB
	failed *failedRead
}

func NewSource(v CredentialReader, entropy string, logger logging.Logger) *Source {
	return &Source{vault: v, entropy: entropy, logger: logger.With("module", "datastore")}
}

// DB returns the shared pool, opening it if needed.
//
// A missing credential set yields common.ErrConfigurationMissing. Credentials
// that cannot be decrypted or are incomplete yield
// common.ErrConnectivityFailure: the store is configured but unusable. That
// failure is remembered until Reset or until the envelope file changes.
func (s *Source) DB(ctx context.Context) (*sql.DB, error) {
	current, stamped := s.envelopeStamp()

	s.mu.Lock()
	if s.db != nil {
		db := s.db
		s.mu.Unlock()
		return db, nil
	}
	if f := s.failed; f != nil && stamped && f.stamp == current {
		s.mu.Unlock()
		return nil, f.err
	}
	s.mu.Unlock()

	// the vault read derives a key; keep it outside the lock
	cfg, err := s.credentials()
	if err != nil {
		if stamped && !errors.Is(err, common.ErrConfigurationMissing) {
			s.mu.Lock()
			s.failed = &failedRead{stamp: current, err: err}
			s.mu.Unlock()
			s.logger.Warn(ctx, "database credentials unusable", "error", err)
		}
		return nil, err
	}

	db, err := sqlOpen("pgx", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("%w: open: %w", common.ErrConnectivityFailure, err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxIdleTime(5 * time.Minute)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		// another caller won the race
		_ = db.Close()
		return s.db, nil
	}
	s.logger.Info(ctx, "database pool opened", "host", cfg.Host, "database", cfg.Name)
	s.db = db
	s.failed = nil
	return db, nil
}

func (s *Source) credentials() (vault.DatabaseConfig, error) {
	rec, err := s.vault.Read(common.DatabaseVaultName, s.entropy)
	if err != nil {
		if errors.Is(err, common.ErrConfigurationMissing) {
			return vault.DatabaseConfig{}, err
		}
		return vault.DatabaseConfig{}, fmt.Errorf("%w: credentials: %w", common.ErrConnectivityFailure, err)
	}

	cfg, err := vault.DatabaseConfigFromRecord(rec)
	if err != nil {
		return vault.DatabaseConfig{}, fmt.Errorf("%w: credentials: %w", common.ErrConnectivityFailure, err)
	}
	return cfg, nil
}

// Reset closes the current pool and forgets a remembered credential
// failure; the next DB call reopens it from the vault.
func (s *Source) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failed = nil
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Close releases the pool.
func (s *Source) Close() error {
	return s.Reset()
}
