// Package vaultctl implements the vaultctl command: it seals, inspects and
// exports credential sets of the gatekeeper server from the terminal.
package vaultctl

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/vault"
	"golang.org/x/term"
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

// vaultOptions lets tests lower the key derivation cost.
var vaultOptions []vault.Option

const usage = `usage: vaultctl <command> [flags] [args]

commands:
  save [-name db] NAME=VALUE ...   seal a credential set (NAME:int=1, NAME:bool=true for typed values)
  show [-name db] [-reveal]        print a credential set, secrets masked
  generate-env [-name db] -o FILE  write the plain runtime env file
  exists [-name db]                exit 0 if the credential set exists

flags shared by all commands:
  -d DIR   credentials directory (GATEKEEPER_CREDENTIALS_DIR, default "credentials")

The passphrase is read from GATEKEEPER_ENTROPY or prompted for.
`

// Environment carries the settings vaultctl shares with the server.
type Environment struct {
	CredentialsDir string `env:"GATEKEEPER_CREDENTIALS_DIR" envDefault:"credentials"`
	Entropy        string `env:"GATEKEEPER_ENTROPY"`
}

type App struct {
	env    Environment
	stdout io.Writer
	stderr io.Writer
}

// NewApp reads the environment; environ replaces the process environment
// when non-nil.
func NewApp(environ map[string]string, stdout, stderr io.Writer) (*App, error) {
	opts := env.Options{}
	if environ != nil {
		opts.Environment = environ
	}
	var e Environment
	if err := env.ParseWithOptions(&e, opts); err != nil {
		return nil, err
	}
	return &App{env: e, stdout: stdout, stderr: stderr}, nil
}

// Run executes one command and returns the process exit code.
func (a *App) Run(args []string) int {
	if len(args) == 0 {
		fmt.Fprint(a.stderr, usage)
		return 2
	}

	var err error
	switch args[0] {
	case "save":
		err = a.save(args[1:])
	case "show":
		err = a.show(args[1:])
	case "generate-env":
		err = a.generateEnv(args[1:])
	case "exists":
		var ok bool
		ok, err = a.exists(args[1:])
		if err == nil && !ok {
			return 1
		}
	case "help", "-h", "--help":
		fmt.Fprint(a.stdout, usage)
		return 0
	default:
		fmt.Fprintf(a.stderr, "unknown command %q\n\n%s", args[0], usage)
		return 2
	}

	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(a.stderr, "vaultctl %s: %v\n", args[0], err)
		return 1
	}
	return 0
}

type commonFlags struct {
	dir  string
	name string
}

func (a *App) flagSet(cmd string, cf *commonFlags) *flag.FlagSet {
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	fs.StringVar(&cf.dir, "d", a.env.CredentialsDir, "credentials directory")
	fs.StringVar(&cf.name, "name", common.DatabaseVaultName, "credential set name")
	return fs
}

func (a *App) vault(cf commonFlags) *vault.Vault {
	return vault.New(cf.dir, vaultOptions...)
}

// passphrase returns the configured entropy or prompts for it on the
// terminal.
func (a *App) passphrase() (string, error) {
	if a.env.Entropy != "" {
		return a.env.Entropy, nil
	}
	fmt.Fprint(a.stderr, "Passphrase: ")
	pw, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(a.stderr)
	if err != nil {
		return "", fmt.Errorf("read passphrase: %w", err)
	}
	defer common.WipeByteArray(pw)
	if len(pw) == 0 {
		return "", fmt.Errorf("%w: empty passphrase", common.ErrInvalidArgument)
	}
	return string(pw), nil
}

func (a *App) save(args []string) error {
	var cf commonFlags
	fs := a.flagSet("save", &cf)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return fmt.Errorf("%w: no fields given", common.ErrInvalidArgument)
	}

	rec, err := ParseFields(fs.Args())
	if err != nil {
		return err
	}
	pass, err := a.passphrase()
	if err != nil {
		return err
	}
	if err := a.vault(cf).Save(cf.name, rec, pass); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "saved %d fields to %s\n", len(rec), a.vault(cf).Path(cf.name))
	return nil
}

func (a *App) show(args []string) error {
	var cf commonFlags
	var reveal bool
	fs := a.flagSet("show", &cf)
	fs.BoolVar(&reveal, "reveal", false, "print secret values")
	if err := fs.Parse(args); err != nil {
		return err
	}

	pass, err := a.passphrase()
	if err != nil {
		return err
	}
	rec, err := a.vault(cf).Read(cf.name, pass)
	if err != nil {
		return err
	}

	envs := rec.Env()
	names := make([]string, 0, len(envs))
	for name := range envs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		value := envs[name]
		if !reveal && isSecret(name) {
			value = "********"
		}
		fmt.Fprintf(a.stdout, "%s=%s\n", name, value)
	}
	return nil
}

func (a *App) generateEnv(args []string) error {
	var cf commonFlags
	var target string
	fs := a.flagSet("generate-env", &cf)
	fs.StringVar(&target, "o", "", "output file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if target == "" {
		return fmt.Errorf("%w: -o is required", common.ErrInvalidArgument)
	}

	pass, err := a.passphrase()
	if err != nil {
		return err
	}
	if err := a.vault(cf).GenerateEnv(cf.name, pass, target); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "wrote %s\n", target)
	return nil
}

func (a *App) exists(args []string) (bool, error) {
	var cf commonFlags
	fs := a.flagSet("exists", &cf)
	if err := fs.Parse(args); err != nil {
		return false, err
	}
	ok := a.vault(cf).Exists(cf.name)
	if ok {
		fmt.Fprintln(a.stdout, "yes")
	} else {
		fmt.Fprintln(a.stdout, "no")
	}
	return ok, nil
}

func isSecret(name string) bool {
	n := strings.ToUpper(name)
	return strings.Contains(n, "PASSWORD") || strings.Contains(n, "SECRET") || strings.Contains(n, "TOKEN")
}
