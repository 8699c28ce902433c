package credlock

import (
	"fmt"
	"time"
)

// Config carries every tunable of the Engine. Values are copied at Build
// time and treated as immutable afterwards.
type Config struct {
	// ProductionMode tightens Validate: short access tokens, bounded
	// refresh lifetimes, and mandatory replay protection.
	ProductionMode bool

	JWT        JWTConfig
	Session    SessionConfig
	Revocation RevocationConfig
	MFA        MFAConfig
	Password   PasswordConfig
	RateLimit  RateLimitConfig
	Audit      AuditConfig
	Metrics    MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig controls access-token issuance and the refresh lineage TTL.
type JWTConfig struct {
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	SigningMethod string // "hs256" (default) or "ed25519"
	PrivateKey    []byte
	PublicKey     []byte

	Issuer   string
	Audience string
	Leeway   time.Duration
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls the session registry keyspace.
type SessionConfig struct {
	RedisPrefix string
}

/*
====================================
REVOCATION CONFIG
====================================
*/

// RevocationConfig controls the revoked-token registry keyspace.
type RevocationConfig struct {
	RedisPrefix string
}

/*
====================================
MFA CONFIG
====================================
*/

// MFAConfig controls TOTP enrollment, verification, backup codes, and the
// two-phase login challenge.
type MFAConfig struct {
	// Issuer names this service in provisioning URIs. Falls back to
	// JWT.Issuer when empty.
	Issuer string

	Digits     int // 6 (default), 7, or 8
	Period     int // step length in seconds
	Skew       int // accepted steps either side of now
	SecretSize int // raw secret bytes before base32

	// SealKey encrypts TOTP secrets and backup codes at rest. 32 bytes.
	// MFA operations fail with ErrMisconfiguration while it is unset.
	SealKey []byte

	// ReplayProtection refuses a TOTP code whose time-step counter does
	// not advance past the last accepted one.
	ReplayProtection bool

	ChallengeTTL         time.Duration
	ChallengeMaxAttempts int

	BackupCodeCount  int
	BackupCodeLength int
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig carries the argon2id cost parameters. Memory is in KB.
type PasswordConfig struct {
	Memory         uint32
	Time           uint32
	Parallelism    uint8
	SaltLength     uint32
	KeyLength      uint32
	UpgradeOnLogin bool
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RateLimitConfig controls the Redis fixed-window throttles. Login counts
// per identifier, refresh per session, IP failures feed the default
// IP-reputation implementation.
type RateLimitConfig struct {
	EnableLoginThrottle bool
	MaxLoginAttempts    int
	LoginWindow         time.Duration

	EnableRefreshThrottle bool
	MaxRefreshAttempts    int
	RefreshWindow         time.Duration

	MaxIPFailures   int
	IPFailureWindow time.Duration
}

/*
====================================
AUDIT CONFIG
====================================
*/

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	// DropIfFull sheds events instead of blocking hot paths when the
	// buffer is full. Dropped counts are observable.
	DropIfFull bool
}

/*
====================================
METRICS CONFIG
====================================
*/

// MetricsConfig controls the in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     5 * time.Minute,
			RefreshTTL:    7 * 24 * time.Hour,
			SigningMethod: "hs256",
			Issuer:        "credlock",
			Leeway:        30 * time.Second,
		},
		Session: SessionConfig{
			RedisPrefix: "cls",
		},
		Revocation: RevocationConfig{
			RedisPrefix: "clrv",
		},
		MFA: MFAConfig{
			Digits:               6,
			Period:               30,
			Skew:                 1,
			SecretSize:           20,
			ReplayProtection:     true,
			ChallengeTTL:         3 * time.Minute,
			ChallengeMaxAttempts: 5,
			BackupCodeCount:      10,
			BackupCodeLength:     10,
		},
		Password: PasswordConfig{
			Memory:         65536,
			Time:           3,
			Parallelism:    2,
			SaltLength:     16,
			KeyLength:      32,
			UpgradeOnLogin: true,
		},
		RateLimit: RateLimitConfig{
			EnableLoginThrottle:   true,
			MaxLoginAttempts:      5,
			LoginWindow:           15 * time.Minute,
			EnableRefreshThrottle: true,
			MaxRefreshAttempts:    20,
			RefreshWindow:         time.Minute,
			MaxIPFailures:         50,
			IPFailureWindow:       15 * time.Minute,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: false,
		},
	}
}

// Validate checks the configuration before the Engine is built. Every
// failure wraps ErrMisconfiguration and is fatal: the Engine never starts
// half-configured.
func (c *Config) Validate() error {
	if c.JWT.AccessTTL <= 0 {
		return fmt.Errorf("%w: jwt access ttl must be positive", ErrMisconfiguration)
	}
	if c.JWT.RefreshTTL < time.Minute {
		return fmt.Errorf("%w: jwt refresh ttl must be at least 1 minute", ErrMisconfiguration)
	}
	if c.JWT.RefreshTTL <= c.JWT.AccessTTL {
		return fmt.Errorf("%w: jwt refresh ttl must exceed access ttl", ErrMisconfiguration)
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return fmt.Errorf("%w: jwt leeway must be between 0 and 2 minutes", ErrMisconfiguration)
	}

	switch c.JWT.SigningMethod {
	case "hs256":
		if len(c.JWT.PrivateKey) < 32 {
			return fmt.Errorf("%w: hs256 key must be at least 32 bytes", ErrMisconfiguration)
		}
	case "ed25519":
		if len(c.JWT.PrivateKey) == 0 {
			return fmt.Errorf("%w: ed25519 private key required", ErrMisconfiguration)
		}
	default:
		return fmt.Errorf("%w: unsupported signing method %q", ErrMisconfiguration, c.JWT.SigningMethod)
	}

	if c.Session.RedisPrefix == "" {
		return fmt.Errorf("%w: session redis prefix required", ErrMisconfiguration)
	}
	if c.Revocation.RedisPrefix == "" {
		return fmt.Errorf("%w: revocation redis prefix required", ErrMisconfiguration)
	}
	if c.Session.RedisPrefix == c.Revocation.RedisPrefix {
		return fmt.Errorf("%w: session and revocation prefixes must differ", ErrMisconfiguration)
	}

	if c.MFA.Digits < 6 || c.MFA.Digits > 8 {
		return fmt.Errorf("%w: mfa digits must be 6, 7, or 8", ErrMisconfiguration)
	}
	if c.MFA.Period < 15 || c.MFA.Period > 120 {
		return fmt.Errorf("%w: mfa period must be between 15 and 120 seconds", ErrMisconfiguration)
	}
	if c.MFA.Skew < 0 || c.MFA.Skew > 2 {
		return fmt.Errorf("%w: mfa skew must be between 0 and 2 steps", ErrMisconfiguration)
	}
	if c.MFA.SecretSize < 10 || c.MFA.SecretSize > 64 {
		return fmt.Errorf("%w: mfa secret size must be between 10 and 64 bytes", ErrMisconfiguration)
	}
	if len(c.MFA.SealKey) != 0 && len(c.MFA.SealKey) != 32 {
		return fmt.Errorf("%w: mfa seal key must be 32 bytes", ErrMisconfiguration)
	}
	if c.MFA.ChallengeTTL < 30*time.Second || c.MFA.ChallengeTTL > 30*time.Minute {
		return fmt.Errorf("%w: mfa challenge ttl must be between 30s and 30m", ErrMisconfiguration)
	}
	if c.MFA.ChallengeMaxAttempts < 1 || c.MFA.ChallengeMaxAttempts > 10 {
		return fmt.Errorf("%w: mfa challenge attempts must be between 1 and 10", ErrMisconfiguration)
	}
	if c.MFA.BackupCodeCount < 1 || c.MFA.BackupCodeCount > 64 {
		return fmt.Errorf("%w: mfa backup code count must be between 1 and 64", ErrMisconfiguration)
	}
	if c.MFA.BackupCodeLength < 8 || c.MFA.BackupCodeLength > 64 {
		return fmt.Errorf("%w: mfa backup code length must be between 8 and 64", ErrMisconfiguration)
	}

	if c.Password.Memory < 8*1024 {
		return fmt.Errorf("%w: password memory must be >= 8192 KB", ErrMisconfiguration)
	}
	if c.Password.Time < 1 {
		return fmt.Errorf("%w: password time must be >= 1", ErrMisconfiguration)
	}
	if c.Password.Parallelism < 1 {
		return fmt.Errorf("%w: password parallelism must be >= 1", ErrMisconfiguration)
	}
	if c.Password.SaltLength < 16 {
		return fmt.Errorf("%w: password salt length must be >= 16", ErrMisconfiguration)
	}
	if c.Password.KeyLength < 16 {
		return fmt.Errorf("%w: password key length must be >= 16", ErrMisconfiguration)
	}

	if c.RateLimit.EnableLoginThrottle {
		if c.RateLimit.MaxLoginAttempts < 1 {
			return fmt.Errorf("%w: max login attempts must be >= 1", ErrMisconfiguration)
		}
		if c.RateLimit.LoginWindow <= 0 {
			return fmt.Errorf("%w: login window must be positive", ErrMisconfiguration)
		}
	}
	if c.RateLimit.EnableRefreshThrottle {
		if c.RateLimit.MaxRefreshAttempts < 1 {
			return fmt.Errorf("%w: max refresh attempts must be >= 1", ErrMisconfiguration)
		}
		if c.RateLimit.RefreshWindow <= 0 {
			return fmt.Errorf("%w: refresh window must be positive", ErrMisconfiguration)
		}
	}
	if c.RateLimit.MaxIPFailures < 1 {
		return fmt.Errorf("%w: max ip failures must be >= 1", ErrMisconfiguration)
	}
	if c.RateLimit.IPFailureWindow <= 0 {
		return fmt.Errorf("%w: ip failure window must be positive", ErrMisconfiguration)
	}

	if c.Audit.Enabled && c.Audit.BufferSize < 1 {
		return fmt.Errorf("%w: audit buffer size must be >= 1", ErrMisconfiguration)
	}

	if c.ProductionMode {
		if c.JWT.AccessTTL > 15*time.Minute {
			return fmt.Errorf("%w: production access ttl must be <= 15 minutes", ErrMisconfiguration)
		}
		if c.JWT.RefreshTTL > 30*24*time.Hour {
			return fmt.Errorf("%w: production refresh ttl must be <= 30 days", ErrMisconfiguration)
		}
		if !c.MFA.ReplayProtection {
			return fmt.Errorf("%w: production requires mfa replay protection", ErrMisconfiguration)
		}
	}

	return nil
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	out.MFA.SealKey = cloneBytes(cfg.MFA.SealKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
