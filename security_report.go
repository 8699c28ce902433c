package credlock

import "time"

// SecurityReport is a point-in-time summary of the engine's security
// posture, derived from the immutable build configuration. It carries no
// secrets and is safe to log or expose on an operator surface.
type SecurityReport struct {
	ProductionMode   bool
	SigningAlgorithm string
	AccessTTL        time.Duration
	RefreshTTL       time.Duration

	Argon2 PasswordConfigReport

	MFASealKeyConfigured bool
	MFAReplayProtection  bool

	LoginThrottleActive   bool
	RefreshThrottleActive bool

	AuditEnabled   bool
	MetricsEnabled bool
}

// PasswordConfigReport echoes the argon2id cost parameters in use.
type PasswordConfigReport struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// SecurityReport reports the engine's effective security configuration.
func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	return SecurityReport{
		ProductionMode:   e.config.ProductionMode,
		SigningAlgorithm: e.config.JWT.SigningMethod,
		AccessTTL:        e.config.JWT.AccessTTL,
		RefreshTTL:       e.config.JWT.RefreshTTL,
		Argon2: PasswordConfigReport{
			Memory:      e.config.Password.Memory,
			Time:        e.config.Password.Time,
			Parallelism: e.config.Password.Parallelism,
			SaltLength:  e.config.Password.SaltLength,
			KeyLength:   e.config.Password.KeyLength,
		},
		MFASealKeyConfigured:  len(e.config.MFA.SealKey) == 32,
		MFAReplayProtection:   e.config.MFA.ReplayProtection,
		LoginThrottleActive:   e.config.RateLimit.EnableLoginThrottle,
		RefreshThrottleActive: e.config.RateLimit.EnableRefreshThrottle,
		AuditEnabled:          e.config.Audit.Enabled,
		MetricsEnabled:        e.config.Metrics.Enabled,
	}
}
