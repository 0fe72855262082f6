package vault

import (
	"fmt"
	"net"
	"net/url"
	"strconv"

	"github.com/caarlos0/env/v11"
	"github.com/dmitrijs2005/gatekeeper/internal/common"
)

// DatabaseConfig is the typed view of the database credential set.
type DatabaseConfig struct {
	Host     string `env:"DB_HOST,notEmpty"`
	Port     int    `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER,notEmpty"`
	Password string `env:"DB_PASSWORD,notEmpty"`
	Name     string `env:"DB_NAME,notEmpty"`
	SSLMode  string `env:"DB_SSLMODE" envDefault:"disable"`
}

// DatabaseConfigFromRecord materializes a DatabaseConfig from rec the same
// way it would be read from the process environment.
func DatabaseConfigFromRecord(rec Record) (DatabaseConfig, error) {
	var cfg DatabaseConfig
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: rec.Env()}); err != nil {
		return DatabaseConfig{}, fmt.Errorf("%w: %w", common.ErrValidation, err)
	}
	return cfg, nil
}

// DSN renders a pgx connection URL.
func (c DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:   "/" + c.Name,
	}
	q := url.Values{}
	if c.SSLMode != "" {
		q.Set("sslmode", c.SSLMode)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// Record converts the config back into a credential record, ready to Save.
func (c DatabaseConfig) Record() Record {
	return Record{
		{Name: "DB_HOST", Value: c.Host},
		{Name: "DB_PORT", Value: c.Port},
		{Name: "DB_USER", Value: c.User},
		{Name: "DB_PASSWORD", Value: c.Password},
		{Name: "DB_NAME", Value: c.Name},
		{Name: "DB_SSLMODE", Value: c.SSLMode},
	}
}
