package credlock

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/credlock/credlock/internal"
	"github.com/credlock/credlock/seal"
)

// SetupMFA provisions TOTP material for a user: a fresh secret, the
// otpauth:// URI, and one batch of backup codes. The return value is
// the only moment the plaintext exists outside the authenticator app;
// everything persisted is sealed. Re-running setup before EnableMFA
// replaces the pending material; running it on an enabled account is
// refused.
func (e *Engine) SetupMFA(ctx context.Context, userID string) (*MFASetup, error) {
	if e == nil || e.totp == nil || e.userStore == nil {
		return nil, ErrEngineNotReady
	}
	sealer, err := e.mfaSealer()
	if err != nil {
		return nil, err
	}
	user, err := e.loadMFAUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.MFAEnabled {
		return nil, ErrMFAAlreadyEnabled
	}

	account := user.Email
	if account == "" {
		account = user.ID
	}
	secret, uri, err := e.totp.GenerateSecret(account)
	if err != nil {
		return nil, err
	}

	codes, err := internal.NewBackupCodes(e.config.MFA.BackupCodeCount, e.config.MFA.BackupCodeLength)
	if err != nil {
		return nil, err
	}

	sealedSecret, err := sealer.Seal([]byte(secret))
	if err != nil {
		return nil, err
	}
	sealedCodes := make([][]byte, 0, len(codes))
	for _, code := range codes {
		sealed, err := sealer.Seal([]byte(code))
		if err != nil {
			return nil, err
		}
		sealedCodes = append(sealedCodes, sealed)
	}

	update := MFAUpdate{
		Enabled:     false,
		Secret:      sealedSecret,
		BackupCodes: sealedCodes,
		LastCounter: 0,
	}
	if err := e.userStore.UpdateMFA(ctx, user.ID, update); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.emitAudit(ctx, auditEventMFASetup, true, user.ID, "", nil, nil)
	return &MFASetup{
		Secret:          secret,
		ProvisioningURI: uri,
		BackupCodes:     codes,
	}, nil
}

// EnableMFA flips the account to enabled after the user proves they
// captured the pending secret. Every live session is invalidated on
// success: they were authenticated under the weaker, pre-MFA policy.
func (e *Engine) EnableMFA(ctx context.Context, userID, code string) error {
	if e == nil || e.totp == nil || e.userStore == nil {
		return ErrEngineNotReady
	}
	sealer, err := e.mfaSealer()
	if err != nil {
		return err
	}
	user, err := e.loadMFAUser(ctx, userID)
	if err != nil {
		return err
	}
	if user.MFAEnabled {
		return ErrMFAAlreadyEnabled
	}
	if len(user.MFASecret) == 0 {
		return ErrMFANotConfigured
	}

	secret, err := sealer.Open(user.MFASecret)
	if err != nil {
		return fmt.Errorf("%w: sealed TOTP secret unreadable", ErrStoreUnavailable)
	}
	ok, counter, err := e.totp.VerifyCode(string(secret), code, e.now())
	if err != nil || !ok {
		e.metricInc(MetricMFAFailure)
		e.emitAudit(ctx, auditEventMFALoginFailure, false, user.ID, "", ErrMFAInvalidCode, func() map[string]string {
			return map[string]string{
				"phase": "enable",
			}
		})
		return ErrMFAInvalidCode
	}

	update := MFAUpdate{
		Enabled:     true,
		Secret:      user.MFASecret,
		BackupCodes: user.MFABackupCodes,
		LastCounter: counter,
	}
	if err := e.userStore.UpdateMFA(ctx, user.ID, update); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	count, err := e.sessionStore.InvalidateAllForUser(ctx, user.ID)
	if err != nil {
		log.Print("credlock: session sweep failed after MFA enable")
	} else if count > 0 {
		e.metricInc(MetricSessionInvalidated)
	}

	e.metricInc(MetricMFASuccess)
	e.emitAudit(ctx, auditEventMFAEnabled, true, user.ID, "", nil, nil)
	return nil
}

// DisableMFA clears all MFA state after a current TOTP proof. Backup
// codes are deliberately not accepted here: a stolen backup code must
// not be enough to strip the second factor off an account.
func (e *Engine) DisableMFA(ctx context.Context, userID, code string) error {
	if e == nil || e.totp == nil || e.userStore == nil {
		return ErrEngineNotReady
	}
	sealer, err := e.mfaSealer()
	if err != nil {
		return err
	}
	user, err := e.loadMFAUser(ctx, userID)
	if err != nil {
		return err
	}
	if !user.MFAEnabled {
		return ErrMFANotEnabled
	}
	if len(user.MFASecret) == 0 {
		return ErrMFANotConfigured
	}

	secret, err := sealer.Open(user.MFASecret)
	if err != nil {
		return fmt.Errorf("%w: sealed TOTP secret unreadable", ErrStoreUnavailable)
	}
	ok, counter, err := e.totp.VerifyCode(string(secret), code, e.now())
	if err != nil || !ok {
		e.metricInc(MetricMFAFailure)
		e.emitAudit(ctx, auditEventMFALoginFailure, false, user.ID, "", ErrMFAInvalidCode, func() map[string]string {
			return map[string]string{
				"phase": "disable",
			}
		})
		return ErrMFAInvalidCode
	}
	if e.config.MFA.ReplayProtection && counter <= user.MFALastCounter {
		e.metricInc(MetricMFAFailure)
		e.emitAudit(ctx, auditEventMFALoginFailure, false, user.ID, "", ErrMFAInvalidCode, func() map[string]string {
			return map[string]string{
				"phase":  "disable",
				"reason": "replay_floor",
			}
		})
		return ErrMFAInvalidCode
	}

	update := MFAUpdate{
		Enabled:     false,
		Secret:      nil,
		BackupCodes: nil,
		LastCounter: 0,
	}
	if err := e.userStore.UpdateMFA(ctx, user.ID, update); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.emitAudit(ctx, auditEventMFADisabled, true, user.ID, "", nil, nil)
	return nil
}

// VerifyMFA checks a second-factor proof for an enabled account. TOTP
// takes precedence when both fields are set; a matched backup code is
// consumed before the call returns.
func (e *Engine) VerifyMFA(ctx context.Context, userID string, proof MFAProof) error {
	if e == nil || e.totp == nil || e.userStore == nil {
		return ErrEngineNotReady
	}
	user, err := e.loadMFAUser(ctx, userID)
	if err != nil {
		return err
	}
	if !user.MFAEnabled {
		return ErrMFANotEnabled
	}

	if _, err := e.verifyMFAProofForUser(ctx, user, proof); err != nil {
		e.metricInc(MetricMFAFailure)
		return err
	}
	e.metricInc(MetricMFASuccess)
	return nil
}

// MFAStatus reports the account's MFA posture without exposing any
// sealed material.
func (e *Engine) MFAStatus(ctx context.Context, userID string) (*MFAStatus, error) {
	if e == nil || e.userStore == nil {
		return nil, ErrEngineNotReady
	}
	user, err := e.loadMFAUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &MFAStatus{
		Enabled:              user.MFAEnabled,
		Configured:           len(user.MFASecret) > 0,
		RemainingBackupCodes: len(user.MFABackupCodes),
	}, nil
}

// RegenerateBackupCodes replaces the whole batch after a fresh TOTP
// proof. Unused codes from the old batch stop working immediately.
func (e *Engine) RegenerateBackupCodes(ctx context.Context, userID, totpCode string) ([]string, error) {
	if e == nil || e.totp == nil || e.userStore == nil {
		return nil, ErrEngineNotReady
	}
	sealer, err := e.mfaSealer()
	if err != nil {
		return nil, err
	}
	user, err := e.loadMFAUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.MFAEnabled {
		return nil, ErrMFANotEnabled
	}
	if totpCode == "" {
		return nil, ErrMFAInvalidCode
	}

	if _, err := e.verifyMFAProofForUser(ctx, user, MFAProof{TOTPCode: totpCode}); err != nil {
		e.metricInc(MetricMFAFailure)
		return nil, err
	}

	codes, err := internal.NewBackupCodes(e.config.MFA.BackupCodeCount, e.config.MFA.BackupCodeLength)
	if err != nil {
		return nil, err
	}
	sealedCodes := make([][]byte, 0, len(codes))
	for _, code := range codes {
		sealed, err := sealer.Seal([]byte(code))
		if err != nil {
			return nil, err
		}
		sealedCodes = append(sealedCodes, sealed)
	}

	update := MFAUpdate{
		Enabled:     user.MFAEnabled,
		Secret:      user.MFASecret,
		BackupCodes: sealedCodes,
		LastCounter: user.MFALastCounter,
	}
	if err := e.userStore.UpdateMFA(ctx, user.ID, update); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.emitAudit(ctx, auditEventBackupCodesRotated, true, user.ID, "", nil, nil)
	return codes, nil
}

// verifyMFAProofForUser checks one proof against an already-loaded user.
// It returns the method that matched ("totp" or "backup") and mutates
// user in place when the proof consumed state (replay counter, backup
// code) so callers keep a consistent view.
func (e *Engine) verifyMFAProofForUser(ctx context.Context, user *User, proof MFAProof) (string, error) {
	sealer, err := e.mfaSealer()
	if err != nil {
		return "", err
	}

	if proof.TOTPCode != "" {
		if len(user.MFASecret) == 0 {
			return "", ErrMFANotConfigured
		}
		secret, err := sealer.Open(user.MFASecret)
		if err != nil {
			return "", fmt.Errorf("%w: sealed TOTP secret unreadable", ErrStoreUnavailable)
		}
		ok, counter, err := e.totp.VerifyCode(string(secret), proof.TOTPCode, e.now())
		if err != nil {
			if errors.Is(err, ErrMFANotConfigured) {
				return "", ErrMFANotConfigured
			}
			return "", ErrMFAInvalidCode
		}
		if !ok {
			return "", ErrMFAInvalidCode
		}
		if e.config.MFA.ReplayProtection {
			if counter <= user.MFALastCounter {
				return "", ErrMFAInvalidCode
			}
			update := MFAUpdate{
				Enabled:     user.MFAEnabled,
				Secret:      user.MFASecret,
				BackupCodes: user.MFABackupCodes,
				LastCounter: counter,
			}
			if err := e.userStore.UpdateMFA(ctx, user.ID, update); err != nil {
				return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
			}
			user.MFALastCounter = counter
		}
		return "totp", nil
	}

	if proof.BackupCode != "" {
		return e.consumeBackupCode(ctx, sealer, user, proof.BackupCode)
	}

	return "", ErrMFAInvalidCode
}

// consumeBackupCode finds the sealed code matching the proof, removes
// it, and persists the shrunken batch. Each stored code is opened and
// compared in constant time.
func (e *Engine) consumeBackupCode(ctx context.Context, sealer *seal.Sealer, user *User, code string) (string, error) {
	if len(user.MFABackupCodes) == 0 {
		return "", ErrMFAInvalidCode
	}

	normalized := strings.ToLower(strings.TrimSpace(code))
	matched := -1
	for i, sealed := range user.MFABackupCodes {
		plain, err := sealer.Open(sealed)
		if err != nil {
			continue
		}
		if subtle.ConstantTimeCompare(plain, []byte(normalized)) == 1 {
			matched = i
			break
		}
	}
	if matched < 0 {
		return "", ErrMFAInvalidCode
	}

	remaining := make([][]byte, 0, len(user.MFABackupCodes)-1)
	remaining = append(remaining, user.MFABackupCodes[:matched]...)
	remaining = append(remaining, user.MFABackupCodes[matched+1:]...)

	update := MFAUpdate{
		Enabled:     user.MFAEnabled,
		Secret:      user.MFASecret,
		BackupCodes: remaining,
		LastCounter: user.MFALastCounter,
	}
	if err := e.userStore.UpdateMFA(ctx, user.ID, update); err != nil {
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	user.MFABackupCodes = remaining
	return "backup", nil
}

// loadMFAUser is the shared lookup for the MFA management surface:
// missing users and store failures are folded, inactive accounts are
// refused outright.
func (e *Engine) loadMFAUser(ctx context.Context, userID string) (*User, error) {
	if userID == "" {
		return nil, ErrUserNotFound
	}
	user, err := e.userStore.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !user.Active {
		return nil, ErrAccountInactive
	}
	return user, nil
}

func (e *Engine) mfaSealer() (*seal.Sealer, error) {
	if e.sealer == nil {
		return nil, fmt.Errorf("%w: MFA seal key not configured", ErrMisconfiguration)
	}
	return e.sealer, nil
}
