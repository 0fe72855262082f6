// Package config handles configuration for the gatekeeper server: defaults,
// an optional JSON file, GATEKEEPER_* environment variables and
// command-line flags, applied in that order.
package config

import (
	"os"
	"time"
)

// Config holds runtime settings for the gatekeeper server.
//
// Fields:
//   - HTTPAddr: bind address for the HTTP listener.
//   - CredentialsDir: directory holding encrypted credential sets.
//   - EnvFile: plain runtime artifact generated from the "db" credential set.
//   - Entropy: passphrase the credential vault is sealed with.
//   - SetupPath / AdminCreationPath / LoginPath: bootstrap and login routes.
//   - SessionLifetime: idle-independent lifetime of a session cookie.
//   - CSRFTokenLength: hex characters per CSRF token (32..4096).
//   - MaxLoginAttempts: failed logins after which an account is refused.
//   - ProbeTimeout: deadline for the per-request connectivity probe.
//   - SessionSweepInterval: how often expired sessions are purged.
//   - ShutdownTimeout: grace period for in-flight requests on shutdown.
//   - TrustProxy: honour X-Forwarded-Proto from a TLS-terminating proxy.
type Config struct {
	HTTPAddr             string        `env:"HTTP_ADDR"`
	CredentialsDir       string        `env:"CREDENTIALS_DIR"`
	EnvFile              string        `env:"ENV_FILE"`
	Entropy              string        `env:"ENTROPY"`
	SetupPath            string        `env:"SETUP_PATH"`
	AdminCreationPath    string        `env:"ADMIN_CREATION_PATH"`
	LoginPath            string        `env:"LOGIN_PATH"`
	SessionLifetime      time.Duration `env:"SESSION_LIFETIME"`
	CSRFTokenLength      int           `env:"CSRF_TOKEN_LENGTH"`
	MaxLoginAttempts     int           `env:"MAX_LOGIN_ATTEMPTS"`
	ProbeTimeout         time.Duration `env:"PROBE_TIMEOUT"`
	SessionSweepInterval time.Duration `env:"SESSION_SWEEP_INTERVAL"`
	ShutdownTimeout      time.Duration `env:"SHUTDOWN_TIMEOUT"`
	TrustProxy           bool          `env:"TRUST_PROXY"`
}

// LoadDefaults populates Config with development defaults.
// NOTE: the default entropy is public; override it outside development.
func (c *Config) LoadDefaults() {
	c.HTTPAddr = ":8080"
	c.CredentialsDir = "credentials"
	c.EnvFile = "credentials/runtime.env"
	c.Entropy = "insecure-development-entropy"
	c.SetupPath = "/setup"
	c.AdminCreationPath = "/admin/create"
	c.LoginPath = "/login"
	c.SessionLifetime = 24 * time.Hour
	c.CSRFTokenLength = 500
	c.MaxLoginAttempts = 5
	c.ProbeTimeout = 2 * time.Second
	c.SessionSweepInterval = 5 * time.Minute
	c.ShutdownTimeout = 10 * time.Second
	c.TrustProxy = false
}

// LoadConfig builds a Config from defaults, then overlays the JSON file
// named by -c/-config, the environment and finally the remaining flags.
// Malformed input panics, as the server cannot start without a config.
func LoadConfig() *Config {
	return load(os.Args[1:], nil)
}

func load(args []string, environ map[string]string) *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg, args)
	parseEnv(cfg, environ)
	parseFlags(cfg, args)
	return cfg
}
