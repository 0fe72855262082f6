package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"golang.org/x/crypto/argon2"
)

// Argon2id cost for stored passwords.
const (
	PasswordMemoryKiB = 131072
	PasswordTime      = 4
	PasswordThreads   = 2

	passwordSaltLength = 16
	passwordKeyLength  = 32
)

type hashParams struct {
	memory  uint32
	time    uint32
	threads uint8
}

var defaultHashParams = hashParams{memory: PasswordMemoryKiB, time: PasswordTime, threads: PasswordThreads}

// HashPassword returns an Argon2id hash of plain in PHC string format:
//
//	$argon2id$v=19$m=131072,t=4,p=2$<salt>$<key>
func HashPassword(plain string) (string, error) {
	return hashWithParams(plain, defaultHashParams)
}

func hashWithParams(plain string, p hashParams) (string, error) {
	salt := make([]byte, passwordSaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	key := argon2.IDKey([]byte(plain), salt, p.time, p.memory, p.threads, passwordKeyLength)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, p.memory, p.time, p.threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key)), nil
}

// VerifyPassword recomputes the hash of plain with the parameters stored in
// hash and compares the keys in constant time. A malformed hash is an
// error; a mismatch is false with a nil error.
func VerifyPassword(plain, hash string) (bool, error) {
	p, salt, key, err := decodeHash(hash)
	if err != nil {
		return false, err
	}
	candidate := argon2.IDKey([]byte(plain), salt, p.time, p.memory, p.threads, uint32(len(key)))
	return subtle.ConstantTimeCompare(candidate, key) == 1, nil
}

func decodeHash(hash string) (hashParams, []byte, []byte, error) {
	var p hashParams

	// "", "argon2id", "v=19", "m=..,t=..,p=..", salt, key
	parts := strings.Split(hash, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return p, nil, nil, fmt.Errorf("%w: not an argon2id hash", common.ErrInvalidArgument)
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return p, nil, nil, fmt.Errorf("%w: unsupported argon2 version", common.ErrInvalidArgument)
	}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.memory, &p.time, &p.threads); err != nil {
		return p, nil, nil, fmt.Errorf("%w: bad argon2 parameters: %v", common.ErrInvalidArgument, err)
	}
	if p.memory == 0 || p.time == 0 || p.threads == 0 {
		return p, nil, nil, fmt.Errorf("%w: bad argon2 parameters", common.ErrInvalidArgument)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return p, nil, nil, fmt.Errorf("%w: bad salt encoding", common.ErrInvalidArgument)
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) == 0 {
		return p, nil, nil, fmt.Errorf("%w: bad key encoding", common.ErrInvalidArgument)
	}
	return p, salt, key, nil
}
