// Package secrets encrypts per-user provider API keys before they are
// persisted. The scheme is AES-256-GCM with a random 16-byte IV and a
// random 64-byte salt per encryption; the stored form is
// "iv:authTag:salt:encrypted" with each segment hex-encoded.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

const (
	keyLength     = 32
	ivLength      = 16
	authTagLength = 16
	saltLength    = 64
)

// ErrMalformedCiphertext is returned when a stored value does not have
// the expected four-segment form.
var ErrMalformedCiphertext = errors.New("malformed ciphertext")

// Cipher encrypts and decrypts strings with a fixed key.
type Cipher struct {
	key []byte
}

// New creates a Cipher. The key must be at least 32 characters; only
// the first 32 bytes are used.
func New(key string) (*Cipher, error) {
	if len(key) < keyLength {
		return nil, fmt.Errorf("encryption key must be at least %d characters", keyLength)
	}
	return &Cipher{key: []byte(key[:keyLength])}, nil
}

// EncryptForStorage encrypts plaintext and returns the storage form
// "iv:authTag:salt:encrypted". Each call uses a fresh IV and salt.
func (c *Cipher) EncryptForStorage(plaintext string) (string, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", fmt.Errorf("creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, ivLength)
	if err != nil {
		return "", fmt.Errorf("creating GCM: %w", err)
	}

	iv := make([]byte, ivLength)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("generating IV: %w", err)
	}
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}

	// Seal appends the auth tag to the ciphertext; the storage form
	// keeps them in separate segments.
	sealed := gcm.Seal(nil, iv, []byte(plaintext), nil)
	encrypted := sealed[:len(sealed)-authTagLength]
	authTag := sealed[len(sealed)-authTagLength:]

	return strings.Join([]string{
		hex.EncodeToString(iv),
		hex.EncodeToString(authTag),
		hex.EncodeToString(salt),
		hex.EncodeToString(encrypted),
	}, ":"), nil
}

// DecryptFromStorage parses a stored "iv:authTag:salt:encrypted" value
// and returns the plaintext.
func (c *Cipher) DecryptFromStorage(stored string) (string, error) {
	parts := strings.Split(stored, ":")
	if len(parts) != 4 {
		return "", ErrMalformedCiphertext
	}

	iv, err := hex.DecodeString(parts[0])
	if err != nil || len(iv) != ivLength {
		return "", ErrMalformedCiphertext
	}
	authTag, err := hex.DecodeString(parts[1])
	if err != nil || len(authTag) != authTagLength {
		return "", ErrMalformedCiphertext
	}
	encrypted, err := hex.DecodeString(parts[3])
	if err != nil {
		return "", ErrMalformedCiphertext
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", fmt.Errorf("creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, ivLength)
	if err != nil {
		return "", fmt.Errorf("creating GCM: %w", err)
	}

	plaintext, err := gcm.Open(nil, iv, append(encrypted, authTag...), nil)
	if err != nil {
		return "", fmt.Errorf("decrypting: %w", err)
	}
	return string(plaintext), nil
}

// GenerateKey returns a random hex key suitable for configuration.
func GenerateKey() (string, error) {
	raw := make([]byte, keyLength)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generating key: %w", err)
	}
	return hex.EncodeToString(raw), nil
}
