package revocation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Revocation reasons recorded alongside a fingerprint.
const (
	ReasonLogout = "logout"
	ReasonReuse  = "reuse"
)

// ErrRedisUnavailable wraps transport-level Redis failures.
var ErrRedisUnavailable = errors.New("redis unavailable")

// Store is a Redis-backed registry of revoked token fingerprints.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// NewStore creates a revocation [Store] backed by the given Redis client.
func NewStore(redisClient redis.UniversalClient, prefix string) *Store {
	return &Store{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *Store) key(fingerprint string) string {
	return s.prefix + ":" + fingerprint
}

// Revoke records a fingerprint for ttl. A non-positive ttl means the token
// is already expired and there is nothing left to block; the call is a no-op.
func (s *Store) Revoke(ctx context.Context, fingerprint, reason string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}

	if err := s.redis.Set(ctx, s.key(fingerprint), reason, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// IsRevoked reports whether the fingerprint is currently registered.
// One EXISTS; this sits on the authenticate hot path.
func (s *Store) IsRevoked(ctx context.Context, fingerprint string) (bool, error) {
	n, err := s.redis.Exists(ctx, s.key(fingerprint)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return n > 0, nil
}

// Reason returns the stored revocation reason. The bool is false when the
// fingerprint is not registered.
func (s *Store) Reason(ctx context.Context, fingerprint string) (string, bool, error) {
	reason, err := s.redis.Get(ctx, s.key(fingerprint)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return reason, true, nil
}
