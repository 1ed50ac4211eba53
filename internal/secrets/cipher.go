package secrets

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// ErrDecrypt is returned when a ciphertext fails authentication or is
// structurally invalid. Callers must treat it as distinct from "no value
// stored": it usually means the encryption key was rotated or the
// ciphertext was corrupted in storage or transit.
var ErrDecrypt = errors.New("ciphertext authentication failed")

// KeySize is the required length in bytes of the decoded encryption key.
const KeySize = chacha20poly1305.KeySize

// Cipher seals and opens short secrets with XChaCha20-Poly1305. A single
// Cipher is constructed at startup from the process-wide key and shared by
// every component that touches stored credentials.
type Cipher struct {
	key []byte
}

// NewCipher creates a Cipher from a base64-encoded 32-byte key.
func NewCipher(encodedKey string) (*Cipher, error) {
	key, err := base64.StdEncoding.DecodeString(encodedKey)
	if err != nil {
		return nil, fmt.Errorf("decoding encryption key: %w", err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("encryption key must be %d bytes, got %d", KeySize, len(key))
	}
	return &Cipher{key: key}, nil
}

// GenerateKey returns a new random base64-encoded key suitable for NewCipher.
func GenerateKey() (string, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("generating key bytes: %w", err)
	}
	return base64.StdEncoding.EncodeToString(key), nil
}

// EncryptString seals plaintext and returns a base64 string safe for storage
// or an HTTP body. The random nonce is prepended to the ciphertext.
func (c *Cipher) EncryptString(plaintext string) (string, error) {
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return "", fmt.Errorf("creating cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}

	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// DecryptString opens a value produced by EncryptString. Any tampering with
// the ciphertext, or a key mismatch, yields ErrDecrypt rather than garbled
// plaintext.
func (c *Cipher) DecryptString(encoded string) (string, error) {
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", ErrDecrypt
	}

	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return "", fmt.Errorf("creating cipher: %w", err)
	}

	if len(sealed) < aead.NonceSize() {
		return "", ErrDecrypt
	}

	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrDecrypt
	}

	return string(plaintext), nil
}
