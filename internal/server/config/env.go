package config

import (
	"github.com/caarlos0/env/v11"
)

// EnvPrefix is prepended to every variable name in the env tags of Config.
const EnvPrefix = "GATEKEEPER_"

// parseEnv overlays GATEKEEPER_* variables onto config. Unset variables keep
// the current value. environ replaces the process environment when non-nil.
func parseEnv(config *Config, environ map[string]string) {
	opts := env.Options{Prefix: EnvPrefix}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(config, opts); err != nil {
		panic(err)
	}
}
