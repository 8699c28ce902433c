package session

// Session is the Redis-persisted record backing one refresh lineage.
//
// RefreshHash holds the SHA-256 of the currently valid refresh secret and
// PrevRefreshHash the one retired by the most recent rotation. A presented
// hash matching the prior slot is proof of token reuse. Revoked sessions
// keep their record (hashes zeroed, flag set) until natural TTL expiry so
// rotation can tell "revoked" apart from "never existed".
type Session struct {
	SessionID string
	UserID    string
	UserAgent string
	IP        string

	Revoked bool

	RefreshHash     [32]byte
	PrevRefreshHash [32]byte

	CreatedAt     int64
	LastRotatedAt int64
	ExpiresAt     int64
}
