// Package crypt provides the symmetric encryption used for archive
// state and blob files: an scrypt-derived key with NaCl secretbox
// (XSalsa20-Poly1305) sealing. The authenticated cipher is what lets a
// wrong password be reported as a distinct failure instead of garbage
// output.
package crypt

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/scrypt"
)

// ErrDecryption is returned when sealed data does not authenticate,
// either because the password is wrong or the data is corrupted.
var ErrDecryption = errors.New("decryption failed")

const (
	saltSize  = 16
	nonceSize = 24
	keySize   = 32

	// scrypt cost parameters (N, r, p)
	scryptN = 1 << 15
	scryptR = 8
	scryptP = 1
)

func deriveKey(password string, salt []byte) (*[keySize]byte, error) {
	raw, err := scrypt.Key([]byte(password), salt, scryptN, scryptR, scryptP, keySize)
	if err != nil {
		return nil, fmt.Errorf("deriving key: %w", err)
	}
	var key [keySize]byte
	copy(key[:], raw)
	return &key, nil
}

// Encrypt seals data with a key derived from password. The output is
// salt || nonce || box and is self-contained for Decrypt.
func Encrypt(data []byte, password string) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("generating salt: %w", err)
	}
	key, err := deriveKey(password, salt)
	if err != nil {
		return nil, err
	}
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}
	out := make([]byte, 0, saltSize+nonceSize+len(data)+secretbox.Overhead)
	out = append(out, salt...)
	out = append(out, nonce[:]...)
	return secretbox.Seal(out, data, &nonce, key), nil
}

// Decrypt opens data previously sealed by Encrypt. A wrong password or
// tampered payload returns ErrDecryption.
func Decrypt(data []byte, password string) ([]byte, error) {
	if len(data) < saltSize+nonceSize+secretbox.Overhead {
		return nil, ErrDecryption
	}
	key, err := deriveKey(password, data[:saltSize])
	if err != nil {
		return nil, err
	}
	var nonce [nonceSize]byte
	copy(nonce[:], data[saltSize:saltSize+nonceSize])
	plain, ok := secretbox.Open(nil, data[saltSize+nonceSize:], &nonce, key)
	if !ok {
		return nil, ErrDecryption
	}
	return plain, nil
}
