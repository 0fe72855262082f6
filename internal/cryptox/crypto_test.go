package cryptox

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testParams keeps the KDF cheap; the envelope format is the same.
var testParams = KDFParams{Time: 1, Memory: 8 * 1024, Threads: 1}

func randomBytes(t *testing.T, n int) []byte {
	t.Helper()
	b := make([]byte, n)
	_, err := rand.Read(b)
	require.NoError(t, err)
	return b
}

func TestDeriveKey_Deterministic(t *testing.T) {
	password := []byte("secret-password")
	salt := []byte("fixed-salt-16byt")

	key1 := deriveKey(password, salt, DefaultKDFParams)
	key2 := deriveKey(password, salt, DefaultKDFParams)

	// same inputs -> same key
	if !bytes.Equal(key1, key2) {
		t.Errorf("expected same result for same inputs, got different")
	}
	assert.Len(t, key1, 32)
}

func TestDeriveKey_DifferentInputs(t *testing.T) {
	password := []byte("secret-password")

	key1 := deriveKey(password, []byte("salt-1"), DefaultKDFParams)
	key2 := deriveKey(password, []byte("salt-2"), DefaultKDFParams)

	if bytes.Equal(key1, key2) {
		t.Errorf("expected different results for different salts, got same")
	}
}

func TestSealOpen_RoundTrip(t *testing.T) {
	sizes := []int{0, 1, 15, 16, 17, 4096, 64 * 1024, 1 << 20}
	passphrase := []byte("correct horse battery staple")

	for _, n := range sizes {
		data := randomBytes(t, n)

		env, err := Seal(data, passphrase, testParams)
		require.NoError(t, err, "size %d", n)

		got, err := Open(env, passphrase)
		require.NoError(t, err, "size %d", n)
		require.True(t, bytes.Equal(data, got), "round trip mismatch at size %d", n)
	}
}

func TestOpen_WrongPassphraseFails(t *testing.T) {
	for _, n := range []int{0, 32, 1 << 20} {
		data := randomBytes(t, n)
		env, err := Seal(data, []byte("right"), testParams)
		require.NoError(t, err)

		got, err := Open(env, []byte("wrong"))
		require.ErrorIs(t, err, common.ErrDecode)
		require.Nil(t, got, "no plaintext may be returned on failure")
	}
}

func TestOpen_SurvivesMarshalling(t *testing.T) {
	env, err := Seal([]byte(`{"a":1}`), []byte("pw"), testParams)
	require.NoError(t, err)

	raw, err := Marshal(env)
	require.NoError(t, err)

	decoded, err := Unmarshal(raw)
	require.NoError(t, err)

	got, err := Open(decoded, []byte("pw"))
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(got))
}

func TestOpen_TamperingDetected(t *testing.T) {
	tamper := map[string]func(e *Envelope){
		"ciphertext bit": func(e *Envelope) { e.Ciphertext[0] ^= 0x01 },
		"nonce bit":      func(e *Envelope) { e.Nonce[0] ^= 0x01 },
		"salt bit":       func(e *Envelope) { e.Salt[0] ^= 0x01 },
		"time":           func(e *Envelope) { e.Time++ },
		"version":        func(e *Envelope) { e.Version = 2 },
		"kdf":            func(e *Envelope) { e.KDF = "scrypt" },
		"huge memory":    func(e *Envelope) { e.Memory = 1 << 30 },
		"short nonce":    func(e *Envelope) { e.Nonce = e.Nonce[:4] },
		"truncated":      func(e *Envelope) { e.Ciphertext = e.Ciphertext[:len(e.Ciphertext)-1] },
	}

	for name, mutate := range tamper {
		t.Run(name, func(t *testing.T) {
			env, err := Seal([]byte("payload"), []byte("pw"), testParams)
			require.NoError(t, err)

			mutate(env)

			got, err := Open(env, []byte("pw"))
			require.ErrorIs(t, err, common.ErrDecode)
			require.Nil(t, got)
		})
	}
}

func TestOpen_NilEnvelope(t *testing.T) {
	_, err := Open(nil, []byte("pw"))
	require.ErrorIs(t, err, common.ErrDecode)
}

func TestUnmarshal_Garbage(t *testing.T) {
	_, err := Unmarshal([]byte("{ not json"))
	require.ErrorIs(t, err, common.ErrDecode)
}

func TestSeal_FreshSaltAndNonce(t *testing.T) {
	a, err := Seal([]byte("same"), []byte("pw"), testParams)
	require.NoError(t, err)
	b, err := Seal([]byte("same"), []byte("pw"), testParams)
	require.NoError(t, err)

	assert.NotEqual(t, a.Salt, b.Salt)
	assert.NotEqual(t, a.Nonce, b.Nonce)
	assert.NotEqual(t, a.Ciphertext, b.Ciphertext)
}

func TestSeal_RejectsBadParams(t *testing.T) {
	_, err := Seal([]byte("x"), []byte("pw"), KDFParams{Time: 0, Memory: 1024, Threads: 1})
	require.ErrorIs(t, err, common.ErrInvalidArgument)

	_, err = Seal([]byte("x"), []byte("pw"), KDFParams{Time: 1, Memory: 1024, Threads: 0})
	require.ErrorIs(t, err, common.ErrInvalidArgument)
}
