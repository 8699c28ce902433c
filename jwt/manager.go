package jwt

import (
	"crypto/ed25519"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SigningMethod selects the token signature algorithm.
type SigningMethod string

const (
	SigningHS256 SigningMethod = "hs256"
	SigningEdDSA SigningMethod = "ed25519"
)

const (
	minHS256KeyLen = 32
	maxLeeway      = 2 * time.Minute
)

// Config holds token issuance and verification parameters.
type Config struct {
	AccessTTL     time.Duration
	SigningMethod SigningMethod

	// PrivateKey is the HMAC secret for HS256, or an Ed25519 private key
	// (raw seed, raw private key, or PKCS#8 PEM) for EdDSA.
	PrivateKey []byte
	// PublicKey is ignored for HS256. For EdDSA it may be empty, in which
	// case it is derived from the private key.
	PublicKey []byte

	Issuer   string
	Audience string
	Leeway   time.Duration
}

// AccessClaims is the claim set carried by every access token. The subject
// is the user ID; sid binds the token to the session that issued it.
type AccessClaims struct {
	Email     string `json:"email,omitempty"`
	Role      string `json:"role,omitempty"`
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// UserID returns the subject claim.
func (c *AccessClaims) UserID() string {
	return c.Subject
}

// Manager signs and parses access tokens for a single key configuration.
type Manager struct {
	config    Config
	method    jwt.SigningMethod
	signKey   interface{}
	verifyKey interface{}
	parser    *jwt.Parser
}

// NewManager validates the configuration and prepares the signing keys.
// All key-material problems surface here, never at issue time.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 {
		return nil, errors.New("access ttl must be positive")
	}
	if cfg.Leeway < 0 || cfg.Leeway > maxLeeway {
		return nil, errors.New("leeway must be between 0 and 2 minutes")
	}

	m := &Manager{config: cfg}

	switch cfg.SigningMethod {
	case SigningHS256:
		if len(cfg.PrivateKey) < minHS256KeyLen {
			return nil, errors.New("hs256 key must be at least 32 bytes")
		}
		m.method = jwt.SigningMethodHS256
		m.signKey = cfg.PrivateKey
		m.verifyKey = cfg.PrivateKey

	case SigningEdDSA:
		priv, err := parseEdPrivateKey(cfg.PrivateKey)
		if err != nil {
			return nil, err
		}
		pub, err := parseEdPublicKey(cfg.PublicKey, priv)
		if err != nil {
			return nil, err
		}
		m.method = jwt.SigningMethodEdDSA
		m.signKey = priv
		m.verifyKey = pub

	default:
		return nil, fmt.Errorf("unsupported signing method %q", cfg.SigningMethod)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.method.Alg()}),
		jwt.WithLeeway(cfg.Leeway),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	m.parser = jwt.NewParser(opts...)

	return m, nil
}

// IssueAccess signs an access token anchored at now. The expiry is returned
// so callers can size revocation TTLs without reparsing.
func (m *Manager) IssueAccess(userID, email, role, sessionID string, now time.Time) (string, time.Time, error) {
	expiresAt := now.Add(m.config.AccessTTL)

	claims := &AccessClaims{
		Email:     email,
		Role:      role,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    m.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	if m.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{m.config.Audience}
	}

	signed, err := jwt.NewWithClaims(m.method, claims).SignedString(m.signKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// ParseAccess verifies signature, algorithm, and registered-claim validity.
// Errors are the raw jwt/v5 chain (jwt.ErrTokenExpired and friends) so
// callers keep the full distinction; the Engine folds them into its public
// taxonomy.
func (m *Manager) ParseAccess(tokenString string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if _, err := m.parser.ParseWithClaims(tokenString, claims, m.keyFunc); err != nil {
		return nil, err
	}

	if claims.Subject == "" || claims.SessionID == "" {
		return nil, fmt.Errorf("%w: missing subject or session binding", jwt.ErrTokenInvalidClaims)
	}

	return claims, nil
}

// IsExpired reports whether a ParseAccess error means the token was
// well-formed and authentic but past its expiry. Every other parse
// failure (bad signature, wrong algorithm, mangled payload, missing
// claims) reports false.
func IsExpired(err error) bool {
	return errors.Is(err, jwt.ErrTokenExpired)
}

// AccessTTL exposes the configured token lifetime.
func (m *Manager) AccessTTL() time.Duration {
	return m.config.AccessTTL
}

func (m *Manager) keyFunc(_ *jwt.Token) (interface{}, error) {
	return m.verifyKey, nil
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	switch len(key) {
	case 0:
		return nil, errors.New("eddsa private key required")
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(key), nil
	case ed25519.PrivateKeySize:
		return ed25519.PrivateKey(key), nil
	}

	block, _ := pem.Decode(key)
	if block == nil {
		return nil, errors.New("eddsa private key must be raw or PEM encoded")
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse eddsa private key: %v", err)
	}
	priv, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("pem block is not an ed25519 private key")
	}
	return priv, nil
}

func parseEdPublicKey(key []byte, priv ed25519.PrivateKey) (ed25519.PublicKey, error) {
	if len(key) == 0 {
		pub, ok := priv.Public().(ed25519.PublicKey)
		if !ok {
			return nil, errors.New("derive eddsa public key")
		}
		return pub, nil
	}
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}

	block, _ := pem.Decode(key)
	if block == nil {
		return nil, errors.New("eddsa public key must be raw or PEM encoded")
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse eddsa public key: %v", err)
	}
	pub, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("pem block is not an ed25519 public key")
	}
	return pub, nil
}
