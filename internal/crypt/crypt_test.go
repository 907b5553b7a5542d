package crypt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	plain := []byte("some archive state payload")

	sealed, err := Encrypt(plain, "hunter2")
	require.NoError(t, err)
	assert.NotEqual(t, plain, sealed)
	assert.Greater(t, len(sealed), len(plain))

	opened, err := Decrypt(sealed, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, plain, opened)
}

func TestDecryptWrongPassword(t *testing.T) {
	sealed, err := Encrypt([]byte("payload"), "right")
	require.NoError(t, err)

	_, err = Decrypt(sealed, "wrong")
	assert.ErrorIs(t, err, ErrDecryption)
}

func TestDecryptTamperedPayload(t *testing.T) {
	sealed, err := Encrypt([]byte("payload"), "pw")
	require.NoError(t, err)

	sealed[len(sealed)-1] ^= 0xff
	_, err = Decrypt(sealed, "pw")
	assert.ErrorIs(t, err, ErrDecryption)
}

func TestDecryptTooShort(t *testing.T) {
	_, err := Decrypt([]byte("short"), "pw")
	assert.ErrorIs(t, err, ErrDecryption)
}

func TestEncryptIsSalted(t *testing.T) {
	a, err := Encrypt([]byte("payload"), "pw")
	require.NoError(t, err)
	b, err := Encrypt([]byte("payload"), "pw")
	require.NoError(t, err)
	// fresh salt and nonce every time, identical input must not repeat
	assert.NotEqual(t, a, b)
}
