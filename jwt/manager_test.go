package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"strings"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

func hsConfig() Config {
	return Config{
		AccessTTL:     15 * time.Minute,
		SigningMethod: SigningHS256,
		PrivateKey:    testKey,
		Issuer:        "credlock",
		Audience:      "api",
		Leeway:        30 * time.Second,
	}
}

func newHSManager(t *testing.T) *Manager {
	t.Helper()

	m, err := NewManager(hsConfig())
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	return m
}

func TestIssueAndParseHS256(t *testing.T) {
	m := newHSManager(t)

	now := time.Now()
	token, expiresAt, err := m.IssueAccess("u1", "alice@example.com", "member", "s1", now)
	if err != nil {
		t.Fatalf("IssueAccess failed: %v", err)
	}
	if want := now.Add(15 * time.Minute); !expiresAt.Equal(want) {
		t.Fatalf("expected expiry %v, got %v", want, expiresAt)
	}

	claims, err := m.ParseAccess(token)
	if err != nil {
		t.Fatalf("ParseAccess failed: %v", err)
	}
	if claims.UserID() != "u1" || claims.Email != "alice@example.com" || claims.Role != "member" {
		t.Fatalf("identity claims mismatch: %+v", claims)
	}
	if claims.SessionID != "s1" {
		t.Fatalf("expected session binding s1, got %q", claims.SessionID)
	}
	if claims.Issuer != "credlock" {
		t.Fatalf("expected issuer claim, got %q", claims.Issuer)
	}
	if len(claims.Audience) != 1 || claims.Audience[0] != "api" {
		t.Fatalf("expected audience claim, got %v", claims.Audience)
	}
	if claims.ExpiresAt.Unix() != expiresAt.Unix() {
		t.Fatal("exp claim disagrees with returned expiry")
	}
}

func TestIssueAndParseEdDSA(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}

	cfg := hsConfig()
	cfg.SigningMethod = SigningEdDSA
	cfg.PrivateKey = priv
	cfg.PublicKey = pub
	m, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	token, _, err := m.IssueAccess("u1", "", "", "s1", time.Now())
	if err != nil {
		t.Fatalf("IssueAccess failed: %v", err)
	}
	claims, err := m.ParseAccess(token)
	if err != nil {
		t.Fatalf("ParseAccess failed: %v", err)
	}
	if claims.UserID() != "u1" || claims.SessionID != "s1" {
		t.Fatalf("claims mismatch: %+v", claims)
	}
}

func TestEdDSADerivesPublicKeyFromSeed(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}

	cfg := hsConfig()
	cfg.SigningMethod = SigningEdDSA
	cfg.PrivateKey = priv.Seed()
	cfg.PublicKey = nil
	m, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	token, _, err := m.IssueAccess("u1", "", "", "s1", time.Now())
	if err != nil {
		t.Fatalf("IssueAccess failed: %v", err)
	}
	if _, err := m.ParseAccess(token); err != nil {
		t.Fatalf("ParseAccess failed: %v", err)
	}
}

func TestParseRejectsForeignKey(t *testing.T) {
	m := newHSManager(t)

	otherCfg := hsConfig()
	otherCfg.PrivateKey = []byte(strings.Repeat("f", 32))
	other, err := NewManager(otherCfg)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	token, _, err := other.IssueAccess("u1", "", "", "s1", time.Now())
	if err != nil {
		t.Fatalf("IssueAccess failed: %v", err)
	}
	if _, err := m.ParseAccess(token); err == nil {
		t.Fatal("expected signature rejection")
	} else if IsExpired(err) {
		t.Fatal("signature failure must not read as expiry")
	}
}

func TestParseRejectsAlgorithmSwap(t *testing.T) {
	hs := newHSManager(t)

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	cfg := hsConfig()
	cfg.SigningMethod = SigningEdDSA
	cfg.PrivateKey = priv
	ed, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	token, _, err := hs.IssueAccess("u1", "", "", "s1", time.Now())
	if err != nil {
		t.Fatalf("IssueAccess failed: %v", err)
	}
	if _, err := ed.ParseAccess(token); err == nil {
		t.Fatal("expected algorithm rejection")
	}
}

func TestParseExpiryAroundLeeway(t *testing.T) {
	m := newHSManager(t)

	// 10 seconds stale: inside the 30-second leeway.
	issuedAt := time.Now().Add(-15 * time.Minute).Add(-10 * time.Second)
	token, _, err := m.IssueAccess("u1", "", "", "s1", issuedAt)
	if err != nil {
		t.Fatalf("IssueAccess failed: %v", err)
	}
	if _, err := m.ParseAccess(token); err != nil {
		t.Fatalf("expected leeway to admit the token, got %v", err)
	}

	// Two minutes stale: beyond it.
	issuedAt = time.Now().Add(-15 * time.Minute).Add(-2 * time.Minute)
	token, _, err = m.IssueAccess("u1", "", "", "s1", issuedAt)
	if err != nil {
		t.Fatalf("IssueAccess failed: %v", err)
	}
	_, err = m.ParseAccess(token)
	if err == nil {
		t.Fatal("expected expiry rejection")
	}
	if !IsExpired(err) {
		t.Fatalf("expected expiry classification, got %v", err)
	}
}

func TestParseRejectsWrongIssuerAndAudience(t *testing.T) {
	m := newHSManager(t)

	strayIssuer := hsConfig()
	strayIssuer.Issuer = "someone-else"
	stray, err := NewManager(strayIssuer)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	token, _, err := stray.IssueAccess("u1", "", "", "s1", time.Now())
	if err != nil {
		t.Fatalf("IssueAccess failed: %v", err)
	}
	if _, err := m.ParseAccess(token); err == nil {
		t.Fatal("expected issuer rejection")
	}

	strayAudience := hsConfig()
	strayAudience.Audience = "other-api"
	stray, err = NewManager(strayAudience)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	token, _, err = stray.IssueAccess("u1", "", "", "s1", time.Now())
	if err != nil {
		t.Fatalf("IssueAccess failed: %v", err)
	}
	if _, err := m.ParseAccess(token); err == nil {
		t.Fatal("expected audience rejection")
	}
}

func TestParseRejectsMissingBindings(t *testing.T) {
	m := newHSManager(t)
	exp := jwtlib.NewNumericDate(time.Now().Add(time.Hour))

	// No session binding.
	noSid := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, jwtlib.MapClaims{
		"sub": "u1",
		"iss": "credlock",
		"aud": "api",
		"exp": exp,
	})
	token, err := noSid.SignedString(testKey)
	if err != nil {
		t.Fatalf("SignedString failed: %v", err)
	}
	if _, err := m.ParseAccess(token); err == nil {
		t.Fatal("expected rejection without session binding")
	}

	// No subject.
	noSub := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, jwtlib.MapClaims{
		"sid": "s1",
		"iss": "credlock",
		"aud": "api",
		"exp": exp,
	})
	token, err = noSub.SignedString(testKey)
	if err != nil {
		t.Fatalf("SignedString failed: %v", err)
	}
	if _, err := m.ParseAccess(token); err == nil {
		t.Fatal("expected rejection without subject")
	}

	// No expiry at all.
	noExp := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, jwtlib.MapClaims{
		"sub": "u1",
		"sid": "s1",
		"iss": "credlock",
		"aud": "api",
	})
	token, err = noExp.SignedString(testKey)
	if err != nil {
		t.Fatalf("SignedString failed: %v", err)
	}
	if _, err := m.ParseAccess(token); err == nil {
		t.Fatal("expected rejection without exp claim")
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	m := newHSManager(t)

	for _, token := range []string{"", "garbage", "a.b.c"} {
		if _, err := m.ParseAccess(token); err == nil {
			t.Fatalf("expected rejection for %q", token)
		}
	}
}

func TestNewManagerValidation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero ttl", func(c *Config) { c.AccessTTL = 0 }},
		{"excessive leeway", func(c *Config) { c.Leeway = 3 * time.Minute }},
		{"negative leeway", func(c *Config) { c.Leeway = -time.Second }},
		{"short hs256 key", func(c *Config) { c.PrivateKey = []byte("short") }},
		{"unknown method", func(c *Config) { c.SigningMethod = "rs256" }},
		{"missing eddsa key", func(c *Config) {
			c.SigningMethod = SigningEdDSA
			c.PrivateKey = nil
		}},
		{"malformed eddsa key", func(c *Config) {
			c.SigningMethod = SigningEdDSA
			c.PrivateKey = []byte("not a key, not pem either")
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := hsConfig()
			tc.mutate(&cfg)
			if _, err := NewManager(cfg); err == nil {
				t.Fatal("expected configuration rejection")
			}
		})
	}
}

func TestAccessTTLAccessor(t *testing.T) {
	m := newHSManager(t)
	if m.AccessTTL() != 15*time.Minute {
		t.Fatalf("expected 15m, got %v", m.AccessTTL())
	}
}
