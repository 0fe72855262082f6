// Package probe checks whether the application database is reachable.
//
// Probe returns a soft boolean; AssertConnected returns a *Failure for the
// callers that must abort. Both use the same classification, which also
// tells "schema missing" apart from "cannot connect".
package probe

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/logging"
	"github.com/jackc/pgx/v5/pgconn"
)

// Kind is the class of a data store error.
type Kind int

const (
	KindNone Kind = iota
	// KindConnectivity: the store cannot be reached or refuses the login.
	KindConnectivity
	// KindSchemaMissing: connected, but the tables are not there.
	KindSchemaMissing
	// KindConfigurationMissing: no credentials have been stored yet.
	KindConfigurationMissing
	// KindOther is everything else, typically a programming error.
	KindOther
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindConnectivity:
		return "connectivity"
	case KindSchemaMissing:
		return "schema_missing"
	case KindConfigurationMissing:
		return "configuration_missing"
	default:
		return "other"
	}
}

// Failure is returned by AssertConnected.
type Failure struct {
	Kind Kind
	Err  error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %v", f.sentinel(), f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Is makes errors.Is(f, sentinel) follow Kind, so a Failure matches
// common.ErrConnectivityFailure, common.ErrSchemaMissing or
// common.ErrConfigurationMissing.
func (f *Failure) Is(target error) bool {
	return target == f.sentinel()
}

func (f *Failure) sentinel() error {
	switch f.Kind {
	case KindSchemaMissing:
		return common.ErrSchemaMissing
	case KindConfigurationMissing:
		return common.ErrConfigurationMissing
	default:
		return common.ErrConnectivityFailure
	}
}

// DBProvider yields the pool to probe.
type DBProvider interface {
	DB(ctx context.Context) (*sql.DB, error)
}

type Probe struct {
	db      DBProvider
	timeout time.Duration
	logger  logging.Logger
}

// New returns a Probe. A zero timeout leaves the caller's deadline alone.
func New(db DBProvider, timeout time.Duration, logger logging.Logger) *Probe {
	return &Probe{db: db, timeout: timeout, logger: logger.With("module", "probe")}
}

// Probe runs SELECT 1. It returns false with a nil error for
// connectivity-class failures and propagates any other error.
func (p *Probe) Probe(ctx context.Context) (bool, error) {
	err := p.check(ctx)
	switch Classify(err) {
	case KindNone:
		return true, nil
	case KindConnectivity, KindConfigurationMissing:
		p.logger.Warn(ctx, "database unreachable", "error", err)
		return false, nil
	default:
		return false, err
	}
}

// AssertConnected is Probe for callers that abort on failure: a
// connectivity-class failure comes back as *Failure, anything else as is.
func (p *Probe) AssertConnected(ctx context.Context) error {
	err := p.check(ctx)
	switch kind := Classify(err); kind {
	case KindNone:
		return nil
	case KindConnectivity, KindSchemaMissing, KindConfigurationMissing:
		p.logger.Warn(ctx, "database unavailable", "kind", kind.String(), "error", err)
		return &Failure{Kind: kind, Err: err}
	default:
		return err
	}
}

func (p *Probe) check(ctx context.Context) error {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	db, err := p.db.DB(ctx)
	if err != nil {
		return err
	}

	var one int
	return db.QueryRowContext(ctx, "SELECT 1").Scan(&one)
}

// Classify maps a data store error to its Kind. It understands the common
// sentinels, pgx errors and PostgreSQL SQLSTATE codes.
func Classify(err error) Kind {
	if err == nil {
		return KindNone
	}

	if errors.Is(err, common.ErrSchemaMissing) {
		return KindSchemaMissing
	}
	if errors.Is(err, common.ErrConfigurationMissing) {
		return KindConfigurationMissing
	}
	if errors.Is(err, common.ErrConnectivityFailure) {
		return KindConnectivity
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return classifySQLState(pgErr.Code)
	}

	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return KindConnectivity
	}
	if pgconn.Timeout(err) || errors.Is(err, context.DeadlineExceeded) {
		return KindConnectivity
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return KindConnectivity
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindConnectivity
	}

	return KindOther
}

func classifySQLState(code string) Kind {
	switch {
	case strings.HasPrefix(code, "08"), // connection exception
		strings.HasPrefix(code, "28"), // invalid authorization
		code == "3D000",               // invalid catalog name
		code == "57P01", code == "57P02", code == "57P03":
		return KindConnectivity
	case code == "42P01", // undefined table
		code == "3F000": // invalid schema name
		return KindSchemaMissing
	default:
		return KindOther
	}
}
