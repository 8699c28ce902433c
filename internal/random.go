package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"math/big"
	"strings"

	"github.com/google/uuid"
)

const (
	refreshTokenRawSize = 48
	refreshSecretSize   = 32
	sessionIDRawSize    = 16
)

// backupCodeAlphabet avoids characters users confuse when reading codes
// off paper (0/O, 1/l/I).
const backupCodeAlphabet = "abcdefghjkmnpqrstuvwxyz23456789"

// NewSessionID returns a random v4 UUID in canonical string form.
func NewSessionID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

func NewRefreshSecret() ([refreshSecretSize]byte, error) {
	var secret [refreshSecretSize]byte
	_, err := rand.Read(secret[:])
	return secret, err
}

func HashRefreshSecret(secret [refreshSecretSize]byte) [32]byte {
	return sha256.Sum256(secret[:])
}

// EncodeRefreshToken packs the session UUID (16 raw bytes) and the refresh
// secret (32 bytes) into one opaque base64url token. The session half lets
// the rotation path address the session record without a secondary lookup.
func EncodeRefreshToken(sessionID string, secret [refreshSecretSize]byte) (string, error) {
	sid, err := uuid.Parse(sessionID)
	if err != nil {
		return "", err
	}

	var raw [refreshTokenRawSize]byte
	copy(raw[:sessionIDRawSize], sid[:])
	copy(raw[sessionIDRawSize:], secret[:])

	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

func DecodeRefreshToken(token string) (string, [refreshSecretSize]byte, error) {
	var secret [refreshSecretSize]byte

	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", secret, err
	}
	if len(raw) != refreshTokenRawSize {
		return "", secret, errors.New("invalid refresh token size")
	}

	sid, err := uuid.FromBytes(raw[:sessionIDRawSize])
	if err != nil {
		return "", secret, err
	}
	copy(secret[:], raw[sessionIDRawSize:])

	return sid.String(), secret, nil
}

// FingerprintToken returns the hex SHA-256 of a raw access token. The
// revocation registry stores fingerprints, never the token itself.
func FingerprintToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func NewBackupCode(length int) (string, error) {
	if length < 8 || length > 64 {
		return "", errors.New("invalid backup code length")
	}

	var b strings.Builder
	b.Grow(length)

	max := big.NewInt(int64(len(backupCodeAlphabet)))
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(backupCodeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

func NewBackupCodes(count, length int) ([]string, error) {
	if count < 1 || count > 64 {
		return nil, errors.New("invalid backup code count")
	}

	codes := make([]string, 0, count)
	for i := 0; i < count; i++ {
		code, err := NewBackupCode(length)
		if err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}
	return codes, nil
}
