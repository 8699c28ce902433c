package credlock

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/credlock/credlock/internal"
)

// CompleteMFALogin finishes a login that Login suspended behind a
// challenge. method selects the proof kind: "totp" (default when empty)
// or "backup". The challenge is single-use; the first caller to verify
// a proof consumes it and everyone racing behind gets
// ErrChallengeReplay.
func (e *Engine) CompleteMFALogin(ctx context.Context, challengeID, code, method string) (*LoginResult, error) {
	if e == nil || e.challengeStore == nil || e.userStore == nil || e.totp == nil {
		return nil, ErrEngineNotReady
	}
	if challengeID == "" {
		return nil, ErrChallengeInvalid
	}

	record, err := e.challengeStore.Get(ctx, challengeID, e.now())
	if err != nil {
		mapped := mapChallengeStoreError(err)
		e.metricInc(MetricMFAFailure)
		e.emitAudit(ctx, auditEventMFALoginFailure, false, "", "", mapped, func() map[string]string {
			return map[string]string{
				"reason": "challenge_load_failed",
			}
		})
		return nil, mapped
	}

	user, err := e.userStore.FindByID(ctx, record.UserID)
	if err != nil {
		if !errors.Is(err, ErrUserNotFound) {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		_, _ = e.challengeStore.Delete(ctx, challengeID)
		e.metricInc(MetricMFAFailure)
		e.emitAudit(ctx, auditEventMFALoginFailure, false, record.UserID, "", ErrChallengeInvalid, func() map[string]string {
			return map[string]string{
				"reason": "user_not_found",
			}
		})
		return nil, ErrChallengeInvalid
	}
	// The account check deferred from phase one surfaces here, after the
	// challenge proved the caller holds a real pending login.
	if !user.Active {
		_, _ = e.challengeStore.Delete(ctx, challengeID)
		e.metricInc(MetricMFAFailure)
		e.emitAudit(ctx, auditEventMFALoginFailure, false, user.ID, "", ErrAccountInactive, func() map[string]string {
			return map[string]string{
				"reason": "account_inactive",
			}
		})
		return nil, ErrAccountInactive
	}
	if !user.MFAEnabled || len(user.MFASecret) == 0 {
		_, _ = e.challengeStore.Delete(ctx, challengeID)
		e.metricInc(MetricMFAFailure)
		e.emitAudit(ctx, auditEventMFALoginFailure, false, user.ID, "", ErrChallengeInvalid, func() map[string]string {
			return map[string]string{
				"reason": "mfa_no_longer_enabled",
			}
		})
		return nil, ErrChallengeInvalid
	}
	if code == "" {
		return e.failMFAAttempt(ctx, challengeID, user.ID)
	}

	var proof MFAProof
	switch strings.ToLower(strings.TrimSpace(method)) {
	case "", "totp":
		proof = MFAProof{TOTPCode: code}
	case "backup":
		proof = MFAProof{BackupCode: code}
	default:
		return e.failMFAAttempt(ctx, challengeID, user.ID)
	}

	verifiedMethod, err := e.verifyMFAProofForUser(ctx, user, proof)
	if err != nil {
		if errors.Is(err, ErrMFAInvalidCode) {
			return e.failMFAAttempt(ctx, challengeID, user.ID)
		}
		e.metricInc(MetricMFAFailure)
		e.emitAudit(ctx, auditEventMFALoginFailure, false, user.ID, "", err, nil)
		return nil, err
	}

	deleted, err := e.challengeStore.Delete(ctx, challengeID)
	if err != nil {
		e.metricInc(MetricMFAFailure)
		e.emitAudit(ctx, auditEventMFALoginFailure, false, user.ID, "", ErrStoreUnavailable, nil)
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !deleted {
		// Someone else consumed the challenge between verify and delete.
		e.metricInc(MetricMFAFailure)
		e.emitAudit(ctx, auditEventMFALoginFailure, false, user.ID, "", ErrChallengeReplay, nil)
		return nil, ErrChallengeReplay
	}

	result, err := e.issueSession(ctx, user)
	if err != nil {
		e.metricInc(MetricMFAFailure)
		e.emitAudit(ctx, auditEventMFALoginFailure, false, user.ID, "", err, nil)
		return nil, err
	}

	e.metricInc(MetricMFASuccess)
	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventMFALoginSuccess, true, user.ID, result.SessionID, nil, func() map[string]string {
		return map[string]string{
			"method": verifiedMethod,
			"phase":  "challenge",
		}
	})
	return result, nil
}

// failMFAAttempt charges one failed attempt against the challenge and
// folds the outcome: the cap deletes the challenge and surfaces
// ErrChallengeAttemptsExceeded, otherwise the caller sees
// ErrMFAInvalidCode and may try again.
func (e *Engine) failMFAAttempt(ctx context.Context, challengeID, userID string) (*LoginResult, error) {
	exceeded, recErr := e.challengeStore.RecordFailure(ctx, challengeID, e.config.MFA.ChallengeMaxAttempts, e.now())
	if recErr != nil {
		mapped := mapChallengeStoreError(recErr)
		e.metricInc(MetricMFAFailure)
		e.emitAudit(ctx, auditEventMFALoginFailure, false, userID, "", mapped, nil)
		return nil, mapped
	}
	if exceeded {
		e.metricInc(MetricMFAFailure)
		e.emitAudit(ctx, auditEventMFAAttemptsExceeded, false, userID, "", ErrChallengeAttemptsExceeded, nil)
		return nil, ErrChallengeAttemptsExceeded
	}
	e.metricInc(MetricMFAFailure)
	e.emitAudit(ctx, auditEventMFALoginFailure, false, userID, "", ErrMFAInvalidCode, nil)
	return nil, ErrMFAInvalidCode
}

// createMFAChallenge parks a password-verified login in Redis and
// returns the handle the client must bring to CompleteMFALogin.
func (e *Engine) createMFAChallenge(ctx context.Context, userID string) (string, error) {
	challengeID, err := internal.NewSessionID()
	if err != nil {
		return "", err
	}

	ttl := e.config.MFA.ChallengeTTL
	record := &mfaChallenge{
		UserID:    userID,
		ExpiresAt: e.now().Add(ttl).Unix(),
	}
	if err := e.challengeStore.Save(ctx, challengeID, record, ttl); err != nil {
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return challengeID, nil
}

func mapChallengeStoreError(err error) error {
	switch {
	case errors.Is(err, errMFAChallengeNotFound):
		return ErrChallengeInvalid
	case errors.Is(err, errMFAChallengeExpired):
		return ErrChallengeExpired
	default:
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
}
