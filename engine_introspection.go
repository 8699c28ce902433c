package credlock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/credlock/credlock/session"
)

// HealthStatus is an on-demand backend health probe result.
type HealthStatus struct {
	RedisAvailable bool
	RedisLatency   time.Duration
}

// ActiveSessionCount returns the user's live session count from the
// per-user counter. O(1): no session blobs are read.
func (e *Engine) ActiveSessionCount(ctx context.Context, userID string) (int64, error) {
	if e == nil || e.sessionStore == nil {
		return 0, ErrEngineNotReady
	}
	if userID == "" {
		return 0, ErrUserNotFound
	}

	count, err := e.sessionStore.ActiveSessionCount(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return count, nil
}

// GetSessionInfo returns the introspection view of one live session.
// Unknown, expired, and revoked sessions all surface ErrSessionNotFound.
func (e *Engine) GetSessionInfo(ctx context.Context, sessionID string) (*SessionInfo, error) {
	if e == nil || e.sessionStore == nil {
		return nil, ErrEngineNotReady
	}
	if sessionID == "" {
		return nil, ErrSessionNotFound
	}

	sess, err := e.sessionStore.GetReadOnly(ctx, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrRedisUnavailable) {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		return nil, ErrSessionNotFound
	}
	if sess.Revoked {
		return nil, ErrSessionNotFound
	}

	info := sessionInfoFromRecord(sess)
	return &info, nil
}

// Health reports Redis reachability with a round-trip latency sample.
func (e *Engine) Health(ctx context.Context) HealthStatus {
	if e == nil || e.sessionStore == nil {
		return HealthStatus{}
	}

	start := time.Now()
	err := e.sessionStore.Ping(ctx)
	return HealthStatus{
		RedisAvailable: err == nil,
		RedisLatency:   time.Since(start),
	}
}

// LoginAttempts reports the identifier's failure count in the current
// throttle window. Always zero while the login throttle is disabled.
func (e *Engine) LoginAttempts(ctx context.Context, identifier string) (int, error) {
	if e == nil || e.rateLimiter == nil || identifier == "" {
		return 0, nil
	}

	count, err := e.rateLimiter.LoginAttempts(ctx, identifier)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return count, nil
}

func sessionInfoFromRecord(s *session.Session) SessionInfo {
	return SessionInfo{
		SessionID:     s.SessionID,
		UserAgent:     s.UserAgent,
		IP:            s.IP,
		CreatedAt:     time.Unix(s.CreatedAt, 0).UTC(),
		LastRotatedAt: time.Unix(s.LastRotatedAt, 0).UTC(),
		ExpiresAt:     time.Unix(s.ExpiresAt, 0).UTC(),
	}
}
