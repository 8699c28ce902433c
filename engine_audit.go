package credlock

import (
	"context"
	"errors"
	"time"
)

const (
	auditEventLoginSuccess     = "login_success"
	auditEventLoginFailure     = "login_failure"
	auditEventLoginRateLimited = "login_rate_limited"

	auditEventMFARequired         = "mfa_required"
	auditEventMFALoginSuccess     = "mfa_login_success"
	auditEventMFALoginFailure     = "mfa_login_failure"
	auditEventMFAAttemptsExceeded = "mfa_attempts_exceeded"
	auditEventMFASetup            = "mfa_setup"
	auditEventMFAEnabled          = "mfa_enabled"
	auditEventMFADisabled         = "mfa_disabled"
	auditEventBackupCodesRotated  = "backup_codes_rotated"

	auditEventRefreshSuccess     = "refresh_success"
	auditEventRefreshFailure     = "refresh_failure"
	auditEventRefreshRateLimited = "refresh_rate_limited"
	auditEventRefreshReuse       = "refresh_reuse_detected"

	auditEventLogoutSession = "logout_session"
	auditEventLogoutAll     = "logout_all"
	auditEventTokenRevoked  = "token_revoked"

	auditEventRateLimitTriggered = "rate_limit_triggered"
)

// AuditErrorCode is the stable machine-readable failure label carried by
// audit events.
type AuditErrorCode string

const (
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrAccountInactive    AuditErrorCode = "account_inactive"
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrMFARequired        AuditErrorCode = "mfa_required"
	auditErrMFAInvalid         AuditErrorCode = "mfa_invalid"
	auditErrMFANotEnabled      AuditErrorCode = "mfa_not_enabled"
	auditErrMFAAlreadyEnabled  AuditErrorCode = "mfa_already_enabled"
	auditErrMFANotConfigured   AuditErrorCode = "mfa_not_configured"
	auditErrChallengeInvalid   AuditErrorCode = "challenge_invalid"
	auditErrChallengeExpired   AuditErrorCode = "challenge_expired"
	auditErrChallengeExceeded  AuditErrorCode = "challenge_attempts_exceeded"
	auditErrChallengeReplay    AuditErrorCode = "challenge_replay"
	auditErrReuseDetected      AuditErrorCode = "refresh_reuse"
	auditErrTokenExpired       AuditErrorCode = "token_expired"
	auditErrTokenMalformed     AuditErrorCode = "token_malformed"
	auditErrTokenRevoked       AuditErrorCode = "token_revoked"
	auditErrSessionNotFound    AuditErrorCode = "session_not_found"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrMisconfiguration   AuditErrorCode = "misconfiguration"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	sessionID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		UserID:    userID,
		SessionID: sessionID,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func (e *Engine) emitRateLimit(ctx context.Context, scope string, metadataBuilder func() map[string]string) {
	e.emitAudit(ctx, auditEventRateLimitTriggered, false, "", "", nil, func() map[string]string {
		base := map[string]string{
			"scope": scope,
		}
		if metadataBuilder == nil {
			return base
		}
		for k, v := range metadataBuilder() {
			base[k] = v
		}
		return base
	})
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	// ErrReuseDetected wraps ErrTokenExpired, so it must match first.
	case errors.Is(err, ErrReuseDetected):
		return auditErrReuseDetected
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrAccountInactive):
		return auditErrAccountInactive
	case errors.Is(err, ErrRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrMFARequired):
		return auditErrMFARequired
	case errors.Is(err, ErrMFAInvalidCode):
		return auditErrMFAInvalid
	case errors.Is(err, ErrMFANotEnabled):
		return auditErrMFANotEnabled
	case errors.Is(err, ErrMFAAlreadyEnabled):
		return auditErrMFAAlreadyEnabled
	case errors.Is(err, ErrMFANotConfigured):
		return auditErrMFANotConfigured
	case errors.Is(err, ErrChallengeInvalid):
		return auditErrChallengeInvalid
	case errors.Is(err, ErrChallengeExpired):
		return auditErrChallengeExpired
	case errors.Is(err, ErrChallengeAttemptsExceeded):
		return auditErrChallengeExceeded
	case errors.Is(err, ErrChallengeReplay):
		return auditErrChallengeReplay
	case errors.Is(err, ErrTokenExpired):
		return auditErrTokenExpired
	case errors.Is(err, ErrTokenMalformed):
		return auditErrTokenMalformed
	case errors.Is(err, ErrTokenRevoked):
		return auditErrTokenRevoked
	case errors.Is(err, ErrSessionNotFound):
		return auditErrSessionNotFound
	case errors.Is(err, ErrStoreUnavailable):
		return auditErrUnavailable
	case errors.Is(err, ErrMisconfiguration):
		return auditErrMisconfiguration
	default:
		return auditErrInternal
	}
}
