package credlock

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/credlock/credlock/internal/rate"
)

// Login authenticates a password credential. The outcome is one of:
//
//   - (*LoginResult, nil) — session created, tokens inside.
//   - (*LoginResult{MFARequired: true, ...}, ErrMFARequired) — password
//     accepted but the account requires a second factor and none was
//     supplied inline; finish with CompleteMFALogin.
//   - (nil, err) — rejected.
//
// A missing user, a wrong password, and an inactive account all come
// back as ErrInvalidCredentials so callers cannot probe which accounts
// exist; the audit stream records the real reason.
func (e *Engine) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	if e == nil || e.passwordHash == nil || e.userStore == nil {
		return nil, ErrEngineNotReady
	}
	ip := clientIPFromContext(ctx)

	// Source reputation runs before anything touches credentials.
	if e.ipReputation != nil && ip != "" {
		banned, err := e.ipReputation.IsBanned(ctx, ip)
		if err != nil {
			return nil, err
		}
		if banned {
			e.metricInc(MetricLoginRateLimited)
			e.emitAudit(ctx, auditEventLoginRateLimited, false, "", "", ErrRateLimited, func() map[string]string {
				return map[string]string{
					"identifier": req.Email,
					"reason":     "ip_banned",
				}
			})
			e.emitRateLimit(ctx, "login_ip", nil)
			return nil, ErrRateLimited
		}
	}

	if e.rateLimiter != nil {
		if err := e.rateLimiter.CheckLogin(ctx, req.Email); err != nil {
			if !errors.Is(err, rate.ErrRateLimited) {
				return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
			}
			e.metricInc(MetricLoginRateLimited)
			e.emitAudit(ctx, auditEventLoginRateLimited, false, "", "", ErrRateLimited, func() map[string]string {
				return map[string]string{
					"identifier": req.Email,
				}
			})
			e.emitRateLimit(ctx, "login", func() map[string]string {
				return map[string]string{
					"identifier": req.Email,
				}
			})
			return nil, ErrRateLimited
		}
	}

	if req.Password == "" {
		if err := e.trackFailedLogin(ctx, req.Email, ip); err != nil {
			return nil, err
		}
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, "", "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{
				"identifier": req.Email,
				"reason":     "empty_password",
			}
		})
		return nil, ErrInvalidCredentials
	}

	user, err := e.userStore.FindByEmail(ctx, req.Email)
	if err != nil {
		if !errors.Is(err, ErrUserNotFound) {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		if err := e.trackFailedLogin(ctx, req.Email, ip); err != nil {
			return nil, err
		}
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, "", "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{
				"identifier": req.Email,
				"reason":     "user_not_found",
			}
		})
		return nil, ErrInvalidCredentials
	}

	ok, err := e.passwordHash.Verify(req.Password, user.PasswordHash)
	if err != nil || !ok {
		if err := e.trackFailedLogin(ctx, req.Email, ip); err != nil {
			return nil, err
		}
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, user.ID, "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{
				"identifier": req.Email,
				"reason":     "password_mismatch",
			}
		})
		return nil, ErrInvalidCredentials
	}

	// Valid credentials for a disabled account: indistinguishable from a
	// bad password outward, but the throttles are not fed.
	if !user.Active {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, user.ID, "", ErrAccountInactive, func() map[string]string {
			return map[string]string{
				"identifier": req.Email,
				"reason":     "account_inactive",
			}
		})
		return nil, ErrInvalidCredentials
	}

	if e.config.Password.UpgradeOnLogin {
		if needsUpgrade, err := e.passwordHash.NeedsUpgrade(user.PasswordHash); err == nil && needsUpgrade {
			if upgradedHash, err := e.passwordHash.Hash(req.Password); err == nil {
				// Rehash update is best-effort and must not block the login.
				if err := e.userStore.UpdatePasswordHash(ctx, user.ID, upgradedHash); err != nil {
					log.Print("credlock: password hash upgrade update failed")
				}
			} else {
				log.Print("credlock: password hash upgrade generation failed")
			}
		}
	}

	if user.MFAEnabled {
		result, err := e.loginMFAGate(ctx, user, req)
		if result != nil || err != nil {
			return result, err
		}
	}

	if e.rateLimiter != nil {
		if err := e.rateLimiter.ResetLogin(ctx, req.Email); err != nil {
			log.Print("credlock: login limiter reset failed")
		}
	}
	if err := e.userStore.UpdateLastLogin(ctx, user.ID, e.now()); err != nil {
		log.Print("credlock: last-login update failed")
	}

	result, err := e.issueSession(ctx, user)
	if err != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, user.ID, "", err, func() map[string]string {
			return map[string]string{
				"identifier": req.Email,
				"reason":     "session_issue_failed",
			}
		})
		return nil, err
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, user.ID, result.SessionID, nil, func() map[string]string {
		return map[string]string{
			"identifier": req.Email,
		}
	})
	return result, nil
}

// loginMFAGate handles the second factor after the password has been
// accepted. A nil, nil return means the caller may proceed to mint the
// session (inline proof verified).
func (e *Engine) loginMFAGate(ctx context.Context, user *User, req LoginRequest) (*LoginResult, error) {
	if req.TOTPCode != "" || req.BackupCode != "" {
		method, err := e.verifyMFAProofForUser(ctx, user, MFAProof{
			TOTPCode:   req.TOTPCode,
			BackupCode: req.BackupCode,
		})
		if err != nil {
			e.metricInc(MetricMFAFailure)
			e.emitAudit(ctx, auditEventLoginFailure, false, user.ID, "", err, func() map[string]string {
				return map[string]string{
					"identifier": req.Email,
					"reason":     "mfa_proof_rejected",
				}
			})
			return nil, err
		}
		e.metricInc(MetricMFASuccess)
		e.emitAudit(ctx, auditEventMFALoginSuccess, true, user.ID, "", nil, func() map[string]string {
			return map[string]string{
				"method": method,
				"phase":  "inline",
			}
		})
		return nil, nil
	}

	challengeID, err := e.createMFAChallenge(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricMFARequired)
	e.emitAudit(ctx, auditEventMFARequired, false, user.ID, "", ErrMFARequired, func() map[string]string {
		return map[string]string{
			"identifier": req.Email,
		}
	})
	return &LoginResult{
		UserID:       user.ID,
		MFARequired:  true,
		MFAType:      "totp",
		MFAChallenge: challengeID,
	}, ErrMFARequired
}

// trackFailedLogin feeds both failure counters. It returns ErrRateLimited
// when the identifier just crossed its ceiling, so the caller surfaces
// the throttle instead of ErrInvalidCredentials.
func (e *Engine) trackFailedLogin(ctx context.Context, identifier, ip string) error {
	if e.ipReputation != nil && ip != "" {
		if err := e.ipReputation.TrackFailedAttempt(ctx, ip); err != nil {
			log.Print("credlock: ip reputation tracking failed")
		}
	}

	if e.rateLimiter == nil {
		return nil
	}
	err := e.rateLimiter.IncrementLogin(ctx, identifier)
	if err == nil {
		return nil
	}
	if errors.Is(err, rate.ErrRateLimited) {
		e.metricInc(MetricLoginRateLimited)
		e.emitAudit(ctx, auditEventLoginRateLimited, false, "", "", ErrRateLimited, func() map[string]string {
			return map[string]string{
				"identifier": identifier,
			}
		})
		e.emitRateLimit(ctx, "login", func() map[string]string {
			return map[string]string{
				"identifier": identifier,
			}
		})
		return ErrRateLimited
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}
