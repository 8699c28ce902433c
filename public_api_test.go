package credlock_test

import (
	"context"
	"net/http"
	"testing"

	credlock "github.com/credlock/credlock"
	"github.com/credlock/credlock/middleware"
)

// TestPublicAPISurfaceCompile pins the exported surface consumers build
// against. A signature change here is a breaking release.
func TestPublicAPISurfaceCompile(t *testing.T) {
	_ = credlock.New

	var _ *credlock.Engine
	var _ credlock.Config
	var _ credlock.LoginRequest
	var _ credlock.LoginResult
	var _ credlock.TokenPair
	var _ credlock.AuthResult
	var _ credlock.SessionInfo
	var _ credlock.MFASetup
	var _ credlock.MFAProof
	var _ credlock.MFAStatus
	var _ credlock.MFAUpdate
	var _ credlock.User
	var _ credlock.UserStore
	var _ credlock.AuditSink
	var _ credlock.AuditEvent
	var _ credlock.HealthStatus
	var _ credlock.SecurityReport

	var _ func() credlock.Config = credlock.DefaultConfig
	var _ func() credlock.Config = credlock.HighSecurityConfig
	var _ func() credlock.Config = credlock.HighThroughputConfig

	var _ error = credlock.ErrInvalidCredentials
	var _ error = credlock.ErrAccountInactive
	var _ error = credlock.ErrUserNotFound
	var _ error = credlock.ErrMFARequired
	var _ error = credlock.ErrMFAInvalidCode
	var _ error = credlock.ErrChallengeExpired
	var _ error = credlock.ErrChallengeReplay
	var _ error = credlock.ErrTokenExpired
	var _ error = credlock.ErrTokenMalformed
	var _ error = credlock.ErrTokenRevoked
	var _ error = credlock.ErrSessionNotFound
	var _ error = credlock.ErrRateLimited
	var _ error = credlock.ErrReuseDetected
	var _ error = credlock.ErrStoreUnavailable

	var _ func(*credlock.Engine) func(http.Handler) http.Handler = middleware.Guard
	var _ func(*credlock.Engine, ...string) func(http.Handler) http.Handler = middleware.RequireRole

	var _ func(*credlock.Engine, context.Context, credlock.LoginRequest) (*credlock.LoginResult, error) = (*credlock.Engine).Login
	var _ func(*credlock.Engine, context.Context, string, string, string) (*credlock.LoginResult, error) = (*credlock.Engine).CompleteMFALogin
	var _ func(*credlock.Engine, context.Context, string) (*credlock.AuthResult, error) = (*credlock.Engine).Authenticate
	var _ func(*credlock.Engine, context.Context, string) (*credlock.TokenPair, error) = (*credlock.Engine).Refresh
	var _ func(*credlock.Engine, context.Context, string, string) error = (*credlock.Engine).Logout
	var _ func(*credlock.Engine, context.Context, string) (int, error) = (*credlock.Engine).LogoutAll
	var _ func(*credlock.Engine, context.Context, string) ([]credlock.SessionInfo, error) = (*credlock.Engine).ListSessions
}
