package credlock

import (
	"context"
	"time"
)

// User is the record credlock reads from the external user store. The MFA
// fields hold sealed bytes (see the seal package); credlock never hands the
// store plaintext TOTP material.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	Role         string
	Active       bool

	MFAEnabled     bool
	MFASecret      []byte
	MFABackupCodes [][]byte
	MFALastCounter uint64
}

// MFAUpdate replaces the user's whole MFA state in one write. Partial
// updates are deliberately impossible: a consumed backup code and the
// replay counter must land together or not at all.
type MFAUpdate struct {
	Enabled     bool
	Secret      []byte
	BackupCodes [][]byte
	LastCounter uint64
}

// UserStore is the external user-record collaborator. Implementations own
// storage and uniqueness; FindByEmail and FindByID return ErrUserNotFound
// for misses. All methods must be safe for concurrent use.
type UserStore interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id string) (*User, error)
	UpdateMFA(ctx context.Context, userID string, update MFAUpdate) error
	UpdatePasswordHash(ctx context.Context, userID, passwordHash string) error
	UpdateLastLogin(ctx context.Context, userID string, at time.Time) error
}

// Clock abstracts time so token and session lifetimes are testable.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now()
}

// LoginRequest carries one login attempt. TOTPCode or BackupCode, when set,
// complete MFA inline; leaving both empty on an MFA-enabled account starts
// a two-phase challenge instead.
type LoginRequest struct {
	Email    string
	Password string

	TOTPCode   string
	BackupCode string
}

// LoginResult is returned by Login and CompleteMFALogin. When MFARequired
// is set the token fields are empty and MFAChallenge must be completed via
// CompleteMFALogin.
type LoginResult struct {
	UserID       string
	SessionID    string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time

	MFARequired  bool
	MFAType      string
	MFAChallenge string
}

// TokenPair is the product of a successful refresh rotation. The session
// identity is unchanged; both tokens are new.
type TokenPair struct {
	SessionID    string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// AuthResult is the identity attached to a validated access token.
type AuthResult struct {
	UserID    string
	Email     string
	Role      string
	SessionID string
	ExpiresAt time.Time
}

// SessionInfo is the read-only per-session view returned by ListSessions.
type SessionInfo struct {
	SessionID     string
	UserAgent     string
	IP            string
	CreatedAt     time.Time
	LastRotatedAt time.Time
	ExpiresAt     time.Time
}

// MFASetup carries enrollment material. This is the only time the secret
// and backup codes exist in plaintext outside the authenticator app; they
// are sealed before the user store sees them.
type MFASetup struct {
	Secret          string
	ProvisioningURI string
	BackupCodes     []string
}

// MFAProof carries a second-factor proof. Exactly one field should be set;
// when both are present the TOTP code is tried and the backup code ignored.
type MFAProof struct {
	TOTPCode   string
	BackupCode string
}

// MFAStatus summarizes a user's MFA state without exposing secrets.
type MFAStatus struct {
	Enabled              bool
	Configured           bool
	RemainingBackupCodes int
}
