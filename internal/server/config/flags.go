package config

import (
	"flag"

	"github.com/dmitrijs2005/gatekeeper/internal/flagx"
)

// parseFlags populates Config fields from command-line flags.
//
// Supported flags:
//
//	-a string     HTTP bind address (e.g., ":8080")
//	-d string     credentials directory
//	-f string     generated env file
//	-e string     vault entropy (passphrase)
//	-l duration   session lifetime
//	-t int        CSRF token length in hex characters
//	-m int        max failed login attempts
//
// args are filtered with flagx.FilterArgs first so flags owned by other
// components (such as -c) do not make parsing fail.
func parseFlags(config *Config, args []string) {
	args = flagx.FilterArgs(args, []string{"-a", "-d", "-f", "-e", "-l", "-t", "-m"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.HTTPAddr, "a", config.HTTPAddr, "address and port to run server")
	fs.StringVar(&config.CredentialsDir, "d", config.CredentialsDir, "credentials directory")
	fs.StringVar(&config.EnvFile, "f", config.EnvFile, "generated runtime env file")
	fs.StringVar(&config.Entropy, "e", config.Entropy, "vault entropy")
	fs.DurationVar(&config.SessionLifetime, "l", config.SessionLifetime, "session lifetime")
	fs.IntVar(&config.CSRFTokenLength, "t", config.CSRFTokenLength, "csrf token length")
	fs.IntVar(&config.MaxLoginAttempts, "m", config.MaxLoginAttempts, "max failed login attempts")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
}
