// Package seal provides authenticated encryption for the small secrets
// credlock persists through the user store: TOTP seeds and backup codes.
// XChaCha20-Poly1305 with a random 24-byte nonce prepended to each box,
// so sealing the same plaintext twice never yields the same bytes.
package seal

import (
	"crypto/rand"
	"errors"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

var (
	// ErrInvalidKey is returned when the key is not exactly 32 bytes.
	ErrInvalidKey = errors.New("seal key must be 32 bytes")
	// ErrInvalidBox is returned when a sealed value is too short or fails
	// authentication.
	ErrInvalidBox = errors.New("sealed value invalid")
)

// Sealer encrypts and decrypts fixed-key secret boxes.
type Sealer struct {
	key [chacha20poly1305.KeySize]byte
}

// New creates a [Sealer] from a 32-byte key. The key is copied; callers may
// zero their slice afterwards.
func New(key []byte) (*Sealer, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, ErrInvalidKey
	}

	s := &Sealer{}
	copy(s.key[:], key)
	return s, nil
}

// Seal encrypts plaintext and returns the nonce followed by the ciphertext.
func (s *Sealer) Seal(plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(s.key[:])
	if err != nil {
		return nil, err
	}

	box := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, box); err != nil {
		return nil, err
	}

	return aead.Seal(box, box[:aead.NonceSize()], plaintext, nil), nil
}

// Open authenticates and decrypts a value produced by Seal.
func (s *Sealer) Open(box []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(s.key[:])
	if err != nil {
		return nil, err
	}

	if len(box) < aead.NonceSize()+aead.Overhead() {
		return nil, ErrInvalidBox
	}

	plaintext, err := aead.Open(nil, box[:aead.NonceSize()], box[aead.NonceSize():], nil)
	if err != nil {
		return nil, ErrInvalidBox
	}
	return plaintext, nil
}
