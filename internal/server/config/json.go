package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/gatekeeper/internal/flagx"
	"github.com/dmitrijs2005/gatekeeper/internal/timex"
)

// JsonConfig is the on-disk shape of a config file. Durations use
// timex.Duration so both "90s" and integer nanoseconds are accepted.
// Fields left out of the file keep their current value.
type JsonConfig struct {
	HTTPAddr             *string         `json:"http_addr"`
	CredentialsDir       *string         `json:"credentials_dir"`
	EnvFile              *string         `json:"env_file"`
	Entropy              *string         `json:"entropy"`
	SetupPath            *string         `json:"setup_path"`
	AdminCreationPath    *string         `json:"admin_creation_path"`
	LoginPath            *string         `json:"login_path"`
	SessionLifetime      *timex.Duration `json:"session_lifetime"`
	CSRFTokenLength      *int            `json:"csrf_token_length"`
	MaxLoginAttempts     *int            `json:"max_login_attempts"`
	ProbeTimeout         *timex.Duration `json:"probe_timeout"`
	SessionSweepInterval *timex.Duration `json:"session_sweep_interval"`
	ShutdownTimeout      *timex.Duration `json:"shutdown_timeout"`
	TrustProxy           *bool           `json:"trust_proxy"`
}

// parseJson overlays the file named by -c or -config in args onto config.
// Without either flag nothing is loaded. An unreadable file or invalid JSON
// panics.
func parseJson(config *Config, args []string) {
	jsonConfigFile := flagx.ConfigFileFlag(args)

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	setString(&config.HTTPAddr, c.HTTPAddr)
	setString(&config.CredentialsDir, c.CredentialsDir)
	setString(&config.EnvFile, c.EnvFile)
	setString(&config.Entropy, c.Entropy)
	setString(&config.SetupPath, c.SetupPath)
	setString(&config.AdminCreationPath, c.AdminCreationPath)
	setString(&config.LoginPath, c.LoginPath)
	setInt(&config.CSRFTokenLength, c.CSRFTokenLength)
	setInt(&config.MaxLoginAttempts, c.MaxLoginAttempts)
	if c.TrustProxy != nil {
		config.TrustProxy = *c.TrustProxy
	}

	if c.SessionLifetime != nil {
		config.SessionLifetime = c.SessionLifetime.Duration
	}
	if c.ProbeTimeout != nil {
		config.ProbeTimeout = c.ProbeTimeout.Duration
	}
	if c.SessionSweepInterval != nil {
		config.SessionSweepInterval = c.SessionSweepInterval.Duration
	}
	if c.ShutdownTimeout != nil {
		config.ShutdownTimeout = c.ShutdownTimeout.Duration
	}
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}
