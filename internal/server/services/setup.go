package services

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/logging"
	"github.com/dmitrijs2005/gatekeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/gatekeeper/internal/vault"
)

// CredentialWriter is the part of the vault setup writes to.
type CredentialWriter interface {
	Exists(name string) bool
	Save(name string, rec vault.Record, passphrase string) error
	GenerateEnv(name, passphrase, target string) error
}

// ResettableDB is a DBProvider whose pool can be dropped and reopened.
type ResettableDB interface {
	DBProvider
	Reset() error
}

// SetupService stores database credentials and prepares the schema.
type SetupService struct {
	vault       CredentialWriter
	db          ResettableDB
	repomanager repomanager.RepositoryManager
	entropy     string
	envFile     string
	logger      logging.Logger
}

func NewSetupService(v CredentialWriter, db ResettableDB, m repomanager.RepositoryManager, entropy, envFile string, logger logging.Logger) *SetupService {
	return &SetupService{
		vault:       v,
		db:          db,
		repomanager: m,
		entropy:     entropy,
		envFile:     envFile,
		logger:      logger.With("module", "setup"),
	}
}

// Authorize decides whether a setup request may write the "db" credential
// set. The first configuration is open. Once a set exists it can only be
// replaced by a logged-in user or by a caller that knows the vault entropy.
func (s *SetupService) Authorize(ctx context.Context, entropy string, authenticated bool) error {
	if authenticated || !s.vault.Exists(common.DatabaseVaultName) {
		return nil
	}
	if entropy != "" && subtle.ConstantTimeCompare([]byte(entropy), []byte(s.entropy)) == 1 {
		return nil
	}
	s.logger.Warn(ctx, "anonymous attempt to replace database credentials")
	return fmt.Errorf("%w: credentials already configured", common.ErrSecurity)
}

// RefreshEnvFile rewrites the runtime env file from the "db" credential set
// and reads it back. It does nothing when no env file is configured or no
// credentials are stored yet.
func (s *SetupService) RefreshEnvFile(ctx context.Context) error {
	if s.envFile == "" || !s.vault.Exists(common.DatabaseVaultName) {
		return nil
	}
	if err := s.vault.GenerateEnv(common.DatabaseVaultName, s.entropy, s.envFile); err != nil {
		return err
	}
	vars, err := vault.LoadEnvFile(s.envFile)
	if err != nil {
		return fmt.Errorf("%w: reading back %s: %w", common.ErrDecode, s.envFile, err)
	}
	s.logger.Info(ctx, "env file generated", "path", s.envFile, "vars", len(vars))
	return nil
}

// Configure seals cfg into the "db" credential set, regenerates the runtime
// env file, reopens the pool with the new credentials and applies pending
// migrations. The credential set is kept when the database turns out to be
// unreachable so the readiness check reports a connectivity failure.
func (s *SetupService) Configure(ctx context.Context, cfg vault.DatabaseConfig) error {
	rec := cfg.Record()
	if err := rec.Validate(vault.DatabaseFields...); err != nil {
		return err
	}

	if err := s.vault.Save(common.DatabaseVaultName, rec, s.entropy); err != nil {
		return err
	}
	s.logger.Info(ctx, "database credentials saved", "host", cfg.Host, "database", cfg.Name)

	if err := s.RefreshEnvFile(ctx); err != nil {
		return err
	}

	if err := s.db.Reset(); err != nil {
		s.logger.Warn(ctx, "closing previous pool", "error", err)
	}

	db, err := s.db.DB(ctx)
	if err != nil {
		return err
	}
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %w", common.ErrConnectivityFailure, err)
	}

	return s.migrate(ctx, db)
}

func (s *SetupService) migrate(ctx context.Context, db *sql.DB) error {
	if err := s.repomanager.RunMigrations(ctx, db); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	s.logger.Info(ctx, "schema migrated")
	return nil
}
