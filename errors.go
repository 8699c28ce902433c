package credlock

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCredentials covers unknown user, wrong password, and
	// inactive account alike so responses cannot be used to enumerate
	// accounts. Audit events carry the real reason.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountInactive is returned where it cannot leak account
	// existence, such as the second phase of an MFA login or a refresh.
	ErrAccountInactive = errors.New("account inactive")
	// ErrUserNotFound is the user store's miss sentinel.
	ErrUserNotFound = errors.New("user not found")

	// ErrMFARequired reports that password verification succeeded and a
	// second factor must complete the login. It travels alongside a
	// LoginResult carrying the challenge ID.
	ErrMFARequired = errors.New("mfa required")
	// ErrMFAInvalidCode rejects a TOTP code, a backup code, or a replayed
	// TOTP code.
	ErrMFAInvalidCode = errors.New("mfa code invalid")
	// ErrMFAAlreadyEnabled rejects setup or enable on an enabled account.
	ErrMFAAlreadyEnabled = errors.New("mfa already enabled")
	// ErrMFANotEnabled rejects verify or disable before MFA is enabled.
	ErrMFANotEnabled = errors.New("mfa not enabled")
	// ErrMFANotConfigured rejects enable before setup was run.
	ErrMFANotConfigured = errors.New("mfa not configured")

	// ErrChallengeInvalid is returned for unknown MFA login challenges.
	ErrChallengeInvalid = errors.New("mfa challenge invalid")
	// ErrChallengeExpired is returned for timed-out MFA login challenges.
	ErrChallengeExpired = errors.New("mfa challenge expired")
	// ErrChallengeAttemptsExceeded locks an MFA login challenge after too
	// many wrong codes.
	ErrChallengeAttemptsExceeded = errors.New("mfa challenge attempts exceeded")
	// ErrChallengeReplay is returned when a challenge completes twice;
	// only the first completion issues tokens.
	ErrChallengeReplay = errors.New("mfa challenge replayed")

	// ErrTokenExpired covers expired access tokens and refresh lineages
	// that ended (expiry or revocation).
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenMalformed covers tokens that fail decoding, signature, or
	// claim validation.
	ErrTokenMalformed = errors.New("token malformed")
	// ErrTokenRevoked is returned when the token fingerprint is registered
	// or the backing session was revoked.
	ErrTokenRevoked = errors.New("token revoked")
	// ErrSessionNotFound is returned when no live session backs the
	// presented token.
	ErrSessionNotFound = errors.New("session not found")

	// ErrRateLimited rejects an attempt because a fixed window filled up.
	ErrRateLimited = errors.New("rate limited")
	// ErrStoreUnavailable wraps backend failures (Redis, user store).
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrMisconfiguration marks construction-time configuration failures.
	// These are fatal; the Engine never starts half-configured.
	ErrMisconfiguration = errors.New("misconfiguration")
	// ErrEngineNotReady guards calls on a nil or partially built Engine.
	ErrEngineNotReady = errors.New("engine not ready")
)

// ErrReuseDetected marks a refresh token replay. It wraps ErrTokenExpired:
// security-aware callers can distinguish reuse with errors.Is, while generic
// callers see an ordinary expired-token failure and re-authenticate.
var ErrReuseDetected = fmt.Errorf("refresh token reuse detected: %w", ErrTokenExpired)
