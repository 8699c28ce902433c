package credlock

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/credlock/credlock/internal"
	"github.com/credlock/credlock/internal/rate"
	"github.com/credlock/credlock/jwt"
	"github.com/credlock/credlock/password"
	"github.com/credlock/credlock/revocation"
	"github.com/credlock/credlock/seal"
	"github.com/credlock/credlock/session"
)

// Engine is the credential and session lifecycle manager. It owns token
// issuance, refresh rotation, revocation, per-user session bookkeeping,
// and the MFA state machine, with Redis as the only shared state.
//
// Build one through the Builder; a zero Engine is not usable. All
// methods are safe for concurrent use.
type Engine struct {
	config          Config
	sessionStore    *session.Store
	revocationStore *revocation.Store
	rateLimiter     *rate.Limiter
	ipReputation    IPReputation
	challengeStore  *mfaChallengeStore
	audit           *auditDispatcher
	metrics         *Metrics
	passwordHash    *password.Hasher
	totp            *totpManager
	sealer          *seal.Sealer
	jwtManager      *jwt.Manager
	userStore       UserStore
	clock           Clock
}

// Close drains the audit dispatcher. The engine keeps no other
// background state; Redis connections belong to the caller.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit events were discarded because the
// dispatcher buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) now() time.Time {
	if e.clock != nil {
		return e.clock.Now()
	}
	return time.Now()
}

// Authenticate validates an access token end to end: signature and
// standard claims first, then the revocation registry, then the session
// it is bound to. A token is accepted only while its session is alive
// and unrevoked and still belongs to the token's subject.
func (e *Engine) Authenticate(ctx context.Context, accessToken string) (*AuthResult, error) {
	if e == nil || e.jwtManager == nil {
		return nil, ErrEngineNotReady
	}
	if e.metrics != nil && e.metrics.LatencyEnabled() {
		start := time.Now()
		defer func() {
			e.metrics.Observe(MetricAuthenticateLatency, time.Since(start))
		}()
	}

	claims, err := e.jwtManager.ParseAccess(accessToken)
	if err != nil {
		e.metricInc(MetricAuthenticateFailure)
		if jwt.IsExpired(err) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenMalformed
	}

	revoked, err := e.revocationStore.IsRevoked(ctx, internal.FingerprintToken(accessToken))
	if err != nil {
		e.metricInc(MetricAuthenticateFailure)
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if revoked {
		e.metricInc(MetricAuthenticateFailure)
		return nil, ErrTokenRevoked
	}

	sess, err := e.sessionStore.GetReadOnly(ctx, claims.SessionID)
	if err != nil {
		e.metricInc(MetricAuthenticateFailure)
		if errors.Is(err, session.ErrRedisUnavailable) {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		return nil, ErrSessionNotFound
	}
	if sess.Revoked {
		e.metricInc(MetricAuthenticateFailure)
		return nil, ErrTokenRevoked
	}
	// A session ID collision or a re-minted token must not cross user
	// boundaries.
	if sess.UserID != claims.Subject {
		e.metricInc(MetricAuthenticateFailure)
		return nil, ErrSessionNotFound
	}

	e.metricInc(MetricAuthenticateSuccess)
	return &AuthResult{
		UserID:    claims.Subject,
		Email:     claims.Email,
		Role:      claims.Role,
		SessionID: claims.SessionID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// Refresh rotates a refresh token: the presented token is consumed and a
// new access/refresh pair is issued for the same session. Presenting an
// already-consumed token is treated as theft evidence; every session of
// the affected user is invalidated and ErrReuseDetected returned.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if e == nil || e.sessionStore == nil || e.userStore == nil {
		return nil, ErrEngineNotReady
	}

	sessionID, providedSecret, err := internal.DecodeRefreshToken(refreshToken)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshFailure, false, "", "", ErrTokenMalformed, func() map[string]string {
			return map[string]string{
				"reason": "decode_failed",
			}
		})
		return nil, ErrTokenMalformed
	}

	if e.rateLimiter != nil {
		if err := e.rateLimiter.CheckRefresh(ctx, sessionID); err != nil {
			if errors.Is(err, rate.ErrRateLimited) {
				e.metricInc(MetricRefreshRateLimited)
				e.emitAudit(ctx, auditEventRefreshRateLimited, false, "", sessionID, ErrRateLimited, nil)
				e.emitRateLimit(ctx, "refresh", func() map[string]string {
					return map[string]string{
						"session_id": sessionID,
					}
				})
				return nil, ErrRateLimited
			}
			e.metricInc(MetricRefreshFailure)
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}

	nextSecret, err := internal.NewRefreshSecret()
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		return nil, err
	}

	now := e.now()
	sess, err := e.sessionStore.Rotate(
		ctx,
		sessionID,
		internal.HashRefreshSecret(providedSecret),
		internal.HashRefreshSecret(nextSecret),
		now,
		e.config.JWT.RefreshTTL,
	)
	if err != nil {
		return nil, e.refreshRotateError(ctx, sessionID, err)
	}

	user, err := e.userStore.FindByID(ctx, sess.UserID)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		if errors.Is(err, ErrUserNotFound) {
			// Account is gone; the session has no owner anymore.
			if _, invErr := e.sessionStore.Invalidate(ctx, sessionID); invErr != nil {
				log.Print("credlock: orphaned session invalidation failed")
			} else {
				e.metricInc(MetricSessionInvalidated)
			}
			e.emitAudit(ctx, auditEventRefreshFailure, false, sess.UserID, sessionID, ErrSessionNotFound, func() map[string]string {
				return map[string]string{
					"reason": "user_not_found",
				}
			})
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !user.Active {
		if _, invErr := e.sessionStore.Invalidate(ctx, sessionID); invErr != nil {
			log.Print("credlock: inactive account session invalidation failed")
		} else {
			e.metricInc(MetricSessionInvalidated)
		}
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshFailure, false, user.ID, sessionID, ErrAccountInactive, func() map[string]string {
			return map[string]string{
				"reason": "account_inactive",
			}
		})
		return nil, ErrAccountInactive
	}

	access, expiresAt, err := e.jwtManager.IssueAccess(user.ID, user.Email, user.Role, sess.SessionID, now)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshFailure, false, user.ID, sess.SessionID, err, func() map[string]string {
			return map[string]string{
				"reason": "issue_access_failed",
			}
		})
		return nil, err
	}

	refresh, err := internal.EncodeRefreshToken(sess.SessionID, nextSecret)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		return nil, err
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, user.ID, sess.SessionID, nil, nil)

	return &TokenPair{
		SessionID:    sess.SessionID,
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    expiresAt,
	}, nil
}

// refreshRotateError folds a rotation failure into the public taxonomy
// and runs the reuse response when the store reports one.
func (e *Engine) refreshRotateError(ctx context.Context, sessionID string, err error) error {
	var reuse *session.ReuseError
	switch {
	case errors.As(err, &reuse):
		e.metricInc(MetricRefreshReuseDetected)
		count, invErr := e.sessionStore.InvalidateAllForUser(ctx, reuse.UserID)
		if invErr != nil {
			log.Print("credlock: session sweep failed after refresh reuse")
		} else if count > 0 {
			e.metricInc(MetricSessionInvalidated)
		}
		e.emitAudit(ctx, auditEventRefreshReuse, false, reuse.UserID, sessionID, ErrReuseDetected, func() map[string]string {
			return map[string]string{
				"sessions_invalidated": strconv.Itoa(count),
			}
		})
		return ErrReuseDetected

	case errors.Is(err, session.ErrNotFound), errors.Is(err, session.ErrHashMismatch):
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshFailure, false, "", sessionID, ErrSessionNotFound, func() map[string]string {
			return map[string]string{
				"reason": "session_not_found",
			}
		})
		return ErrSessionNotFound

	case errors.Is(err, session.ErrExpired), errors.Is(err, session.ErrRevoked):
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshFailure, false, "", sessionID, ErrTokenExpired, func() map[string]string {
			return map[string]string{
				"reason": "session_terminated",
			}
		})
		return ErrTokenExpired

	default:
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshFailure, false, "", sessionID, ErrStoreUnavailable, func() map[string]string {
			return map[string]string{
				"reason": "rotate_failed",
			}
		})
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
}

// Logout revokes the access token and invalidates its session. When
// sessionID is empty the token's own session binding is used; passing a
// different ID logs out that session instead (the token must still be
// valid, it is the proof of identity for the call).
func (e *Engine) Logout(ctx context.Context, accessToken, sessionID string) error {
	if e == nil || e.jwtManager == nil {
		return ErrEngineNotReady
	}

	claims, err := e.jwtManager.ParseAccess(accessToken)
	if err != nil {
		outErr := ErrTokenMalformed
		if jwt.IsExpired(err) {
			outErr = ErrTokenExpired
		}
		e.emitAudit(ctx, auditEventLogoutSession, false, "", sessionID, outErr, func() map[string]string {
			return map[string]string{
				"reason": "invalid_access_token",
			}
		})
		return outErr
	}
	if sessionID == "" {
		sessionID = claims.SessionID
	}

	now := e.now()
	if remaining := claims.ExpiresAt.Time.Sub(now); remaining > 0 {
		fp := internal.FingerprintToken(accessToken)
		if err := e.revocationStore.Revoke(ctx, fp, revocation.ReasonLogout, remaining); err != nil {
			e.emitAudit(ctx, auditEventLogoutSession, false, claims.Subject, sessionID, ErrStoreUnavailable, func() map[string]string {
				return map[string]string{
					"reason": "revoke_failed",
				}
			})
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		e.metricInc(MetricTokenRevoked)
		e.emitAudit(ctx, auditEventTokenRevoked, true, claims.Subject, sessionID, nil, func() map[string]string {
			return map[string]string{
				"reason": revocation.ReasonLogout,
			}
		})
	}

	revoked, err := e.sessionStore.Invalidate(ctx, sessionID)
	if err != nil {
		e.emitAudit(ctx, auditEventLogoutSession, false, claims.Subject, sessionID, ErrStoreUnavailable, func() map[string]string {
			return map[string]string{
				"reason": "invalidate_failed",
			}
		})
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if revoked {
		e.metricInc(MetricSessionInvalidated)
	}

	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogoutSession, true, claims.Subject, sessionID, nil, nil)
	return nil
}

// LogoutAll invalidates every live session of the user and returns how
// many were actually torn down. Access tokens already in the wild stay
// cryptographically valid until expiry but fail Authenticate because
// their sessions are gone.
func (e *Engine) LogoutAll(ctx context.Context, userID string) (int, error) {
	if e == nil || e.sessionStore == nil {
		return 0, ErrEngineNotReady
	}
	if userID == "" {
		return 0, ErrUserNotFound
	}

	count, err := e.sessionStore.InvalidateAllForUser(ctx, userID)
	if err != nil {
		e.emitAudit(ctx, auditEventLogoutAll, false, userID, "", ErrStoreUnavailable, nil)
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.metricInc(MetricLogoutAll)
	if count > 0 {
		e.metricInc(MetricSessionInvalidated)
	}
	e.emitAudit(ctx, auditEventLogoutAll, true, userID, "", nil, func() map[string]string {
		return map[string]string{
			"sessions_invalidated": strconv.Itoa(count),
		}
	})
	return count, nil
}

// ListSessions returns the live sessions of a user for device-management
// surfaces. Revoked and expired entries are filtered out.
func (e *Engine) ListSessions(ctx context.Context, userID string) ([]SessionInfo, error) {
	if e == nil || e.sessionStore == nil {
		return nil, ErrEngineNotReady
	}

	sessions, err := e.sessionStore.ActiveSessions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	out := make([]SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, sessionInfoFromRecord(s))
	}
	return out, nil
}

// IsSessionValid reports whether the session exists, is unexpired, and
// has not been revoked.
func (e *Engine) IsSessionValid(ctx context.Context, sessionID string) (bool, error) {
	if e == nil || e.sessionStore == nil {
		return false, ErrEngineNotReady
	}

	sess, err := e.sessionStore.GetReadOnly(ctx, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrRedisUnavailable) {
			return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		return false, nil
	}
	return !sess.Revoked, nil
}

// InvalidateSession tears down a single session by ID. Idempotent: a
// missing or already-revoked session is not an error.
func (e *Engine) InvalidateSession(ctx context.Context, sessionID string) error {
	if e == nil || e.sessionStore == nil {
		return ErrEngineNotReady
	}

	revoked, err := e.sessionStore.Invalidate(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if revoked {
		e.metricInc(MetricSessionInvalidated)
	}
	return nil
}

// issueSession creates a fresh session for user and mints the token
// pair. Shared by the password phase of Login and by CompleteMFALogin.
func (e *Engine) issueSession(ctx context.Context, user *User) (*LoginResult, error) {
	sessionID, err := internal.NewSessionID()
	if err != nil {
		return nil, err
	}
	refreshSecret, err := internal.NewRefreshSecret()
	if err != nil {
		return nil, err
	}

	now := e.now()
	ttl := e.config.JWT.RefreshTTL
	sess := &session.Session{
		SessionID:     sessionID,
		UserID:        user.ID,
		UserAgent:     userAgentFromContext(ctx),
		IP:            clientIPFromContext(ctx),
		RefreshHash:   internal.HashRefreshSecret(refreshSecret),
		CreatedAt:     now.Unix(),
		LastRotatedAt: now.Unix(),
		ExpiresAt:     now.Add(ttl).Unix(),
	}

	if err := e.sessionStore.Save(ctx, sess, ttl); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	access, expiresAt, err := e.jwtManager.IssueAccess(user.ID, user.Email, user.Role, sessionID, now)
	if err != nil {
		return nil, err
	}

	refresh, err := internal.EncodeRefreshToken(sessionID, refreshSecret)
	if err != nil {
		return nil, err
	}

	return &LoginResult{
		UserID:       user.ID,
		SessionID:    sessionID,
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    expiresAt,
	}, nil
}
