// Package cryptox seals small secrets under a passphrase.
//
// A key is derived from the passphrase with Argon2id and a random salt, and
// the payload is encrypted with AES-256-GCM. Everything needed to re-derive
// the key travels in the Envelope header, and the header itself is bound to
// the ciphertext as GCM additional data, so a wrong passphrase or any
// tampering with header or payload makes Open fail instead of returning
// different bytes.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"golang.org/x/crypto/argon2"
)

const (
	// EnvelopeVersion is the only envelope layout understood by Open.
	EnvelopeVersion = 1
	// KDFArgon2id names the key derivation function recorded in envelopes.
	KDFArgon2id = "argon2id"

	keyLength   = 32
	saltLength  = 16
	nonceLength = 12

	maxMemoryKiB = 1 << 20
	maxTime      = 16
)

// KDFParams are the Argon2id cost parameters used to derive the envelope key.
type KDFParams struct {
	Time    uint32
	Memory  uint32
	Threads uint8
}

// DefaultKDFParams matches the cost used for master keys: one pass over
// 64 MiB with four lanes.
var DefaultKDFParams = KDFParams{Time: 1, Memory: 64 * 1024, Threads: 4}

// Envelope is the at-rest form of a sealed payload.
type Envelope struct {
	Version    int    `json:"version"`
	KDF        string `json:"kdf"`
	Salt       []byte `json:"salt"`
	Time       uint32 `json:"time"`
	Memory     uint32 `json:"memory"`
	Threads    uint8  `json:"threads"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

func deriveKey(password, salt []byte, p KDFParams) []byte {
	return argon2.IDKey(password, salt, p.Time, p.Memory, p.Threads, keyLength)
}

// Seal encrypts plaintext under a key derived from passphrase.
//
// A fresh salt and nonce are drawn for every call, so sealing the same data
// twice yields unrelated envelopes.
func Seal(plaintext, passphrase []byte, params KDFParams) (*Envelope, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}

	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	nonce := make([]byte, nonceLength)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	env := &Envelope{
		Version: EnvelopeVersion,
		KDF:     KDFArgon2id,
		Salt:    salt,
		Time:    params.Time,
		Memory:  params.Memory,
		Threads: params.Threads,
		Nonce:   nonce,
	}

	key := deriveKey(passphrase, salt, params)
	defer common.WipeByteArray(key)

	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	env.Ciphertext = aead.Seal(nil, nonce, plaintext, env.additionalData())

	return env, nil
}

// Open decrypts env with a key derived from passphrase. Every failure,
// including a wrong passphrase, is reported as common.ErrDecode and no
// plaintext is returned.
func Open(env *Envelope, passphrase []byte) ([]byte, error) {
	if env == nil {
		return nil, fmt.Errorf("%w: empty envelope", common.ErrDecode)
	}
	if err := env.validateHeader(); err != nil {
		return nil, err
	}

	key := deriveKey(passphrase, env.Salt, env.params())
	defer common.WipeByteArray(key)

	aead, err := newGCM(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrDecode, err)
	}

	plaintext, err := aead.Open(nil, env.Nonce, env.Ciphertext, env.additionalData())
	if err != nil {
		return nil, fmt.Errorf("%w: authentication failed (wrong passphrase or corrupt envelope)", common.ErrDecode)
	}
	return plaintext, nil
}

// Marshal encodes env as JSON.
func Marshal(env *Envelope) ([]byte, error) {
	return json.MarshalIndent(env, "", "  ")
}

// Unmarshal parses a JSON envelope. Malformed input yields common.ErrDecode.
func Unmarshal(data []byte) (*Envelope, error) {
	env := &Envelope{}
	if err := json.Unmarshal(data, env); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrDecode, err)
	}
	return env, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func (e *Envelope) params() KDFParams {
	return KDFParams{Time: e.Time, Memory: e.Memory, Threads: e.Threads}
}

// additionalData covers every header field so they cannot be swapped
// without breaking authentication.
func (e *Envelope) additionalData() []byte {
	b := make([]byte, 0, 96)
	b = strconv.AppendInt(b, int64(e.Version), 10)
	b = append(b, '|')
	b = append(b, e.KDF...)
	b = append(b, '|')
	b = strconv.AppendUint(b, uint64(e.Time), 10)
	b = append(b, '|')
	b = strconv.AppendUint(b, uint64(e.Memory), 10)
	b = append(b, '|')
	b = strconv.AppendUint(b, uint64(e.Threads), 10)
	b = append(b, '|')
	b = hex.AppendEncode(b, e.Salt)
	return b
}

func (e *Envelope) validateHeader() error {
	switch {
	case e.Version != EnvelopeVersion:
		return fmt.Errorf("%w: unsupported envelope version %d", common.ErrDecode, e.Version)
	case e.KDF != KDFArgon2id:
		return fmt.Errorf("%w: unsupported kdf %q", common.ErrDecode, e.KDF)
	case len(e.Salt) < saltLength:
		return fmt.Errorf("%w: salt too short", common.ErrDecode)
	case len(e.Nonce) != nonceLength:
		return fmt.Errorf("%w: bad nonce length", common.ErrDecode)
	}
	if err := e.params().validate(); err != nil {
		return fmt.Errorf("%w: %v", common.ErrDecode, err)
	}
	return nil
}

// validate bounds the cost parameters so a tampered envelope cannot make
// Open allocate unbounded memory.
func (p KDFParams) validate() error {
	switch {
	case p.Time == 0 || p.Time > maxTime:
		return fmt.Errorf("%w: kdf time %d out of range", common.ErrInvalidArgument, p.Time)
	case p.Memory < 8*uint32(p.Threads) || p.Memory > maxMemoryKiB:
		return fmt.Errorf("%w: kdf memory %d out of range", common.ErrInvalidArgument, p.Memory)
	case p.Threads == 0:
		return fmt.Errorf("%w: kdf threads must be positive", common.ErrInvalidArgument)
	}
	return nil
}
