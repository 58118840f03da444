// Package credentials stores per-user vendor API keys encrypted at rest.
//
// Keys are sealed with AES-256-GCM under a key derived from a master
// secret with PBKDF2-SHA-256. Sealed values have the form
// "enc:v1:" + base64(nonce|ciphertext|tag).
package credentials

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// Prefix marks a sealed value and its format version.
const Prefix = "enc:v1:"

const (
	keySize = 32

	// Iterations is the PBKDF2 work factor (OWASP 2023 guidance for SHA-256).
	Iterations = 600000
)

// ErrDecrypt is returned when a sealed value is malformed, was sealed under
// another key, or has been tampered with.
var ErrDecrypt = errors.New("credential decryption failed")

// Cipher seals and opens credential values. It is safe for concurrent use.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher derives the encryption key from masterKey and salt.
func NewCipher(masterKey, salt string) (*Cipher, error) {
	if masterKey == "" {
		return nil, errors.New("credentials: master key is required")
	}
	if salt == "" {
		return nil, errors.New("credentials: salt is required")
	}

	key := pbkdf2.Key([]byte(masterKey), []byte(salt), Iterations, keySize, sha256.New)
	defer zero(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("credentials: creating block cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("credentials: creating GCM: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

// Encrypt seals plaintext with a fresh random nonce.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("credentials: generating nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return Prefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt.
func (c *Cipher) Decrypt(value string) (string, error) {
	encoded, ok := strings.CutPrefix(value, Prefix)
	if !ok {
		return "", fmt.Errorf("%w: missing %q prefix", ErrDecrypt, Prefix)
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	ns := c.aead.NonceSize()
	if len(raw) < ns+c.aead.Overhead() {
		return "", fmt.Errorf("%w: value too short", ErrDecrypt)
	}
	plain, err := c.aead.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		return "", ErrDecrypt
	}
	return string(plain), nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
