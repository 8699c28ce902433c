package credlock

import (
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// totpManager wraps the otp library with engine configuration. The
// library's one-shot helpers validate a whole skew window at once but
// never report WHICH time step matched; replay protection needs that
// counter, so verification walks the window one step at a time.
type totpManager struct {
	config MFAConfig
}

func newTOTPManager(cfg MFAConfig) *totpManager {
	return &totpManager{config: cfg}
}

// GenerateSecret provisions a fresh secret for account. It returns the
// base32 secret (what verifiers consume) and the otpauth:// URI that
// enrollment QR codes encode.
func (m *totpManager) GenerateSecret(account string) (string, string, error) {
	if m == nil {
		return "", "", ErrEngineNotReady
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      m.config.Issuer,
		AccountName: account,
		Period:      uint(m.config.Period),
		SecretSize:  uint(m.config.SecretSize),
		Digits:      otp.Digits(m.config.Digits),
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", "", err
	}

	return key.Secret(), key.URL(), nil
}

// VerifyCode checks code against the base32 secret within the
// configured skew window. On a match it also returns the time-step
// counter the code belongs to; callers enforce the replay floor with
// it. A malformed code is a plain mismatch, not an error.
func (m *totpManager) VerifyCode(secret, code string, now time.Time) (bool, uint64, error) {
	if m == nil {
		return false, 0, ErrEngineNotReady
	}

	trimmed := strings.TrimSpace(code)
	if len(trimmed) != m.config.Digits || !isNumericString(trimmed) {
		return false, 0, nil
	}
	if secret == "" {
		return false, 0, ErrMFANotConfigured
	}

	opts := totp.ValidateOpts{
		Period:    uint(m.config.Period),
		Skew:      0,
		Digits:    otp.Digits(m.config.Digits),
		Algorithm: otp.AlgorithmSHA1,
	}

	period := int64(m.config.Period)
	for step := -m.config.Skew; step <= m.config.Skew; step++ {
		at := now.Add(time.Duration(int64(step)*period) * time.Second)
		if at.Unix() < 0 {
			continue
		}
		ok, err := totp.ValidateCustom(trimmed, secret, at, opts)
		if err != nil {
			return false, 0, err
		}
		if ok {
			return true, uint64(at.Unix() / period), nil
		}
	}

	return false, 0, nil
}

func isNumericString(v string) bool {
	if v == "" {
		return false
	}
	for _, r := range v {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
