package credlock

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const ipReputationKeyPrefix = "clip"

// IPReputation screens source addresses before credentials are touched.
// The engine consults IsBanned at the top of Login and reports failed
// attempts through TrackFailedAttempt; everything else (scoring,
// decay, allowlists) is the implementation's business.
//
// Implementations must be safe for concurrent use.
type IPReputation interface {
	// IsBanned reports whether logins from ip should be refused outright.
	IsBanned(ctx context.Context, ip string) (bool, error)

	// TrackFailedAttempt records one failed login originating from ip.
	TrackFailedAttempt(ctx context.Context, ip string) error
}

// redisIPReputation is the default IPReputation: a fixed-window failure
// counter per address. An address is banned while its window counter
// sits at or above the configured ceiling; the ban lapses when the
// window key expires.
type redisIPReputation struct {
	redis       redis.UniversalClient
	maxFailures int
	window      time.Duration
}

func newRedisIPReputation(redisClient redis.UniversalClient, cfg RateLimitConfig) *redisIPReputation {
	return &redisIPReputation{
		redis:       redisClient,
		maxFailures: cfg.MaxIPFailures,
		window:      cfg.IPFailureWindow,
	}
}

func ipReputationKey(ip string) string {
	return ipReputationKeyPrefix + ":" + ip
}

func (r *redisIPReputation) IsBanned(ctx context.Context, ip string) (bool, error) {
	if ip == "" {
		return false, nil
	}

	val, err := r.redis.Get(ctx, ipReputationKey(ip)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	count, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return false, nil
	}
	return count >= int64(r.maxFailures), nil
}

func (r *redisIPReputation) TrackFailedAttempt(ctx context.Context, ip string) error {
	if ip == "" {
		return nil
	}

	key := ipReputationKey(ip)
	count, err := r.redis.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := r.redis.Expire(ctx, key, r.window).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}
	return nil
}
