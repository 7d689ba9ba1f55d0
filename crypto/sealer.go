package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
)

// KeySize is the secretbox key length in bytes.
const KeySize = 32

var (
	// ErrInvalidKey is returned when the sealing key has the wrong length.
	ErrInvalidKey = errors.New("sealing key must be 32 bytes")

	// ErrDecryptionFailed is returned when a sealed value cannot be opened,
	// either because it was tampered with or sealed under a different key.
	ErrDecryptionFailed = errors.New("failed to open sealed value")
)

// Sealer encrypts values before they are written to durable storage so a
// session token at rest is never plaintext.
type Sealer struct {
	key [KeySize]byte
}

// NewSealer creates a sealer from a 32-byte key.
func NewSealer(key []byte) (*Sealer, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}
	s := &Sealer{}
	copy(s.key[:], key)
	return s, nil
}

// Seal encrypts plaintext and returns a base64-encoded nonce||ciphertext blob.
func (s *Sealer) Seal(plaintext string) (string, error) {
	var nonce [24]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &s.key)
	return base64.URLEncoding.EncodeToString(sealed), nil
}

// Open decrypts a value produced by Seal.
func (s *Sealer) Open(sealed string) (string, error) {
	raw, err := base64.URLEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("failed to decode sealed value: %w", err)
	}
	if len(raw) < 24 {
		return "", ErrDecryptionFailed
	}
	var nonce [24]byte
	copy(nonce[:], raw[:24])
	plaintext, ok := secretbox.Open(nil, raw[24:], &nonce, &s.key)
	if !ok {
		return "", ErrDecryptionFailed
	}
	return string(plaintext), nil
}
