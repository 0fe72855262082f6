// Package vault keeps deployment secrets encrypted at rest.
//
// Each named credential set is a Record sealed with a passphrase into
// <dir>/<name>.vault. Writes are atomic and serialized both inside the
// process and across processes through a <name>.vault.lock file.
package vault

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/cryptox"
	"github.com/dmitrijs2005/gatekeeper/internal/filex"
	"github.com/gofrs/flock"
)

const (
	fileExt = ".vault"
	lockExt = ".lock"
)

// DatabaseFields must be set before the database credential set is saved.
var DatabaseFields = []string{"DB_HOST", "DB_USER", "DB_PASSWORD", "DB_NAME"}

// requiredFields lists the mandatory fields per credential set name.
var requiredFields = map[string][]string{
	common.DatabaseVaultName: DatabaseFields,
}

// Vault stores credential sets under a single directory.
type Vault struct {
	dir    string
	params cryptox.KDFParams

	mu sync.Mutex
}

type Option func(*Vault)

// WithKDFParams overrides the Argon2id cost used for new envelopes.
// Existing envelopes always open with the parameters they were sealed with.
func WithKDFParams(p cryptox.KDFParams) Option {
	return func(v *Vault) { v.params = p }
}

func New(dir string, opts ...Option) *Vault {
	v := &Vault{dir: dir, params: cryptox.DefaultKDFParams}
	for _, o := range opts {
		o(v)
	}
	return v
}

// Path returns the envelope location for name.
func (v *Vault) Path(name string) string {
	return filepath.Join(v.dir, name+fileExt)
}

// Exists reports whether an envelope for name is on disk. It does not try
// to decrypt it and never fails.
func (v *Vault) Exists(name string) bool {
	if checkName(name) != nil {
		return false
	}
	st, err := os.Stat(v.Path(name))
	return err == nil && st.Mode().IsRegular()
}

// Save validates rec, seals it under passphrase and atomically replaces the
// envelope for name.
func (v *Vault) Save(name string, rec Record, passphrase string) error {
	if err := checkName(name); err != nil {
		return err
	}
	if err := rec.Validate(requiredFields[name]...); err != nil {
		return err
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("%w: %w", common.ErrValidation, err)
	}
	defer common.WipeByteArray(payload)

	env, err := cryptox.Seal(payload, []byte(passphrase), v.params)
	if err != nil {
		return fmt.Errorf("seal %s: %w", name, err)
	}
	data, err := cryptox.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}

	if _, err := filex.EnsureDir(v.dir); err != nil {
		return fmt.Errorf("%w: %w", common.ErrWrite, err)
	}

	return v.locked(v.Path(name), func() error {
		return filex.WriteFileAtomic(v.Path(name), data, 0o600)
	})
}

// Read opens the envelope for name. A wrong passphrase or any corruption
// yields common.ErrDecode and no record; a missing envelope yields
// common.ErrConfigurationMissing.
func (v *Vault) Read(name string, passphrase string) (Record, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(v.Path(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: credential set %q", common.ErrConfigurationMissing, name)
		}
		return nil, fmt.Errorf("read %s: %w", name, err)
	}

	env, err := cryptox.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	payload, err := cryptox.Open(env, []byte(passphrase))
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(payload)

	var rec Record
	if err := json.Unmarshal(payload, &rec); err != nil {
		return nil, fmt.Errorf("%w: payload: %v", common.ErrDecode, err)
	}
	return rec, nil
}

// GenerateEnv decrypts name and writes its fields as KEY=value lines to
// target with mode 0600. Decoding fails exactly as in Read, and target is
// left untouched in that case.
func (v *Vault) GenerateEnv(name, passphrase, target string) error {
	rec, err := v.Read(name, passphrase)
	if err != nil {
		return err
	}

	if _, err := filex.EnsureDir(filepath.Dir(target)); err != nil {
		return fmt.Errorf("%w: %w", common.ErrWrite, err)
	}

	return v.locked(target, func() error {
		return filex.WriteFileAtomic(target, renderEnv(rec), 0o600)
	})
}

// locked runs fn while holding the in-process mutex and the lock file next
// to path.
func (v *Vault) locked(path string, fn func() error) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	lock := flock.New(path + lockExt)
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("%w: lock %s: %w", common.ErrWrite, path, err)
	}
	defer lock.Unlock()

	if err := fn(); err != nil {
		return fmt.Errorf("%w: %w", common.ErrWrite, err)
	}
	return nil
}

func checkName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: bad credential set name %q", common.ErrInvalidArgument, name)
	}
	return nil
}
