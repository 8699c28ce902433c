package credlock

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"time"
)

// DefaultConfig returns the baseline configuration with a freshly
// generated ed25519 keypair, so the result passes Validate and can boot
// an Engine with no further setup. Generated keys are process-local:
// access tokens stop verifying after a restart. Supply persistent key
// material, and a 32-byte MFA.SealKey if MFA is wanted, before
// production use.
func DefaultConfig() Config {
	cfg := defaultConfig()

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		panic(fmt.Sprintf("credlock: ed25519 key generation failed: %v", err))
	}
	cfg.JWT.SigningMethod = "ed25519"
	cfg.JWT.PrivateKey = priv
	cfg.JWT.PublicKey = pub
	return cfg
}

// HighSecurityConfig returns a production-mode preset: short token
// lifetimes, heavier password hashing, tight throttles, and lossless
// audit delivery. Key material is generated the same way DefaultConfig
// generates it and needs the same replacement before deployment.
func HighSecurityConfig() Config {
	cfg := DefaultConfig()
	cfg.ProductionMode = true

	cfg.JWT.AccessTTL = 5 * time.Minute
	cfg.JWT.RefreshTTL = 14 * 24 * time.Hour
	cfg.JWT.Leeway = 10 * time.Second

	cfg.MFA.ChallengeTTL = 2 * time.Minute
	cfg.MFA.ChallengeMaxAttempts = 3

	cfg.Password.Memory = 128 * 1024
	cfg.Password.Time = 4

	cfg.RateLimit.MaxLoginAttempts = 3
	cfg.RateLimit.LoginWindow = 30 * time.Minute
	cfg.RateLimit.MaxRefreshAttempts = 10
	cfg.RateLimit.MaxIPFailures = 20

	cfg.Audit.Enabled = true
	cfg.Audit.DropIfFull = false
	return cfg
}

// HighThroughputConfig returns a production-mode preset tuned for busy
// APIs: access tokens at the production ceiling so refresh traffic
// stays low, lighter password hashing, and generous throttle budgets.
func HighThroughputConfig() Config {
	cfg := DefaultConfig()
	cfg.ProductionMode = true

	cfg.JWT.AccessTTL = 15 * time.Minute
	cfg.JWT.RefreshTTL = 30 * 24 * time.Hour

	cfg.Password.Memory = 32 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 4

	cfg.RateLimit.MaxRefreshAttempts = 120
	cfg.RateLimit.MaxIPFailures = 500

	cfg.Metrics.EnableLatencyHistograms = false
	return cfg
}
