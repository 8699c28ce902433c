package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrRedisUnavailable wraps transport-level Redis failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
	// ErrNotFound is returned when the session does not exist.
	ErrNotFound = errors.New("session not found")
	// ErrExpired is returned when the session record outlived its expiry.
	ErrExpired = errors.New("session expired")
	// ErrHashMismatch is returned when a presented refresh hash matches
	// neither the current nor the prior slot.
	ErrHashMismatch = errors.New("refresh hash mismatch")
	// ErrRevoked is returned when the session carries the revoked flag.
	ErrRevoked = errors.New("session revoked")
	// ErrReuse is returned when a presented refresh hash matches the prior
	// slot: the token was already rotated away and is being replayed.
	ErrReuse = errors.New("refresh token reuse")
)

// ReuseError carries the owning user so the caller can widen the response
// from one session to the whole family. Unwraps to [ErrReuse].
type ReuseError struct {
	UserID string
}

func (e *ReuseError) Error() string {
	return "refresh token reuse"
}

func (e *ReuseError) Unwrap() error {
	return ErrReuse
}

const (
	rotateStatusNotFound int64 = 0
	rotateStatusExpired  int64 = 1
	rotateStatusMismatch int64 = 2
	rotateStatusRotated  int64 = 3
	rotateStatusCorrupt  int64 = 4
	rotateStatusReuse    int64 = 5
	rotateStatusRevoked  int64 = 6
)

// rotateScript implements the refresh compare-and-swap against the v1 blob
// layout (see encoder.go; Lua offsets are 1-based, so current hash = 3..34,
// prior hash = 35..66, expires at = 83..90, user id length = byte 91).
//
// Outcomes: {0} missing, {1} expired, {2} hash matches neither slot (the
// blob is left untouched), {3, blob} rotated, {4} undecodable, {5, user_id}
// prior-slot match (the session is revoked in place and the caller decides
// how wide the response goes), {6} already revoked.
const rotateScript = `
local function read_be64(s, i)
  local b1 = string.byte(s, i)
  local b2 = string.byte(s, i + 1)
  local b3 = string.byte(s, i + 2)
  local b4 = string.byte(s, i + 3)
  local b5 = string.byte(s, i + 4)
  local b6 = string.byte(s, i + 5)
  local b7 = string.byte(s, i + 6)
  local b8 = string.byte(s, i + 7)
  if not b8 then
    return nil
  end
  return ((((((((b1 * 256) + b2) * 256 + b3) * 256 + b4) * 256 + b5) * 256 + b6) * 256 + b7) * 256 + b8)
end

local function write_be64(v)
  local out = {}
  for i = 8, 1, -1 do
    out[i] = string.char(v % 256)
    v = math.floor(v / 256)
  end
  return table.concat(out)
end

local function decrement_count(count_key)
  local count = tonumber(redis.call("GET", count_key) or "0")
  if count > 1 then
    redis.call("DECR", count_key)
  elseif count == 1 then
    redis.call("DEL", count_key)
  end
end

local session_key = KEYS[1]
local session_id = ARGV[1]
local user_prefix = ARGV[2]
local count_prefix = ARGV[3]
local provided_hash = ARGV[4]
local next_hash = ARGV[5]
local now_unix = tonumber(ARGV[6])
local ttl_ms = tonumber(ARGV[7])

local data = redis.call("GET", session_key)
if not data then
  return {0}
end

if #data < 91 or string.byte(data, 1) ~= 1 then
  return {4}
end

local user_len = string.byte(data, 91)
if not user_len or user_len == 0 or #data < 91 + user_len then
  return {4}
end
local user_id = string.sub(data, 92, 91 + user_len)
local user_key = user_prefix .. user_id
local count_key = count_prefix .. user_id

local expires_at = read_be64(data, 83)
if not expires_at then
  return {4}
end

if string.byte(data, 2) % 2 == 1 then
  return {6}
end

if expires_at <= now_unix then
  local deleted = redis.call("DEL", session_key)
  redis.call("SREM", user_key, session_id)
  if deleted == 1 then
    decrement_count(count_key)
  end
  return {1}
end

local cur_hash = string.sub(data, 3, 34)
local prev_hash = string.sub(data, 35, 66)

if cur_hash == provided_hash then
  local updated = string.sub(data, 1, 2)
    .. next_hash
    .. cur_hash
    .. string.sub(data, 67, 74)
    .. write_be64(now_unix)
    .. write_be64(now_unix + math.floor(ttl_ms / 1000))
    .. string.sub(data, 91)
  redis.call("SET", session_key, updated, "PX", ttl_ms)
  redis.call("SADD", user_key, session_id)
  return {3, updated}
end

local zero_hash = string.rep("\0", 32)
if prev_hash ~= zero_hash and prev_hash == provided_hash then
  local ttl = redis.call("PTTL", session_key)
  if ttl <= 0 then
    local deleted = redis.call("DEL", session_key)
    redis.call("SREM", user_key, session_id)
    if deleted == 1 then
      decrement_count(count_key)
    end
    return {1}
  end
  local revoked = string.sub(data, 1, 1)
    .. string.char(1)
    .. zero_hash
    .. zero_hash
    .. string.sub(data, 67)
  redis.call("SET", session_key, revoked, "PX", ttl)
  redis.call("SREM", user_key, session_id)
  decrement_count(count_key)
  return {5, user_id}
end

return {2}
`

var rotateLua = redis.NewScript(rotateScript)

// invalidateScript tombstones a session: revoked flag set, both hashes
// zeroed, remaining TTL preserved so the record dies on its own schedule.
// Returns 1 only when this call did the revoking, which keeps Invalidate
// idempotent and the active counter exact.
const invalidateScript = `
local function decrement_count(count_key)
  local count = tonumber(redis.call("GET", count_key) or "0")
  if count > 1 then
    redis.call("DECR", count_key)
  elseif count == 1 then
    redis.call("DEL", count_key)
  end
end

local session_key = KEYS[1]
local session_id = ARGV[1]
local user_prefix = ARGV[2]
local count_prefix = ARGV[3]

local data = redis.call("GET", session_key)
if not data then
  return 0
end

if #data < 91 or string.byte(data, 1) ~= 1 then
  redis.call("DEL", session_key)
  return 0
end

local user_len = string.byte(data, 91)
if not user_len or user_len == 0 or #data < 91 + user_len then
  redis.call("DEL", session_key)
  return 0
end
local user_id = string.sub(data, 92, 91 + user_len)
local user_key = user_prefix .. user_id
local count_key = count_prefix .. user_id

if string.byte(data, 2) % 2 == 1 then
  redis.call("SREM", user_key, session_id)
  return 0
end

local ttl = redis.call("PTTL", session_key)
local zero_hash = string.rep("\0", 32)
local revoked = string.sub(data, 1, 1)
  .. string.char(1)
  .. zero_hash
  .. zero_hash
  .. string.sub(data, 67)

if ttl > 0 then
  redis.call("SET", session_key, revoked, "PX", ttl)
else
  redis.call("DEL", session_key)
end

redis.call("SREM", user_key, session_id)
decrement_count(count_key)
return 1
`

var invalidateLua = redis.NewScript(invalidateScript)

// Store is a Redis-backed session store handling persistence, the per-user
// session index, and atomic refresh-hash rotation.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// NewStore creates a session [Store] backed by the given Redis client.
// prefix sets the Redis key namespace.
func NewStore(redisClient redis.UniversalClient, prefix string) *Store {
	return &Store{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *Store) key(sessionID string) string {
	return s.prefix + ":" + sessionID
}

func (s *Store) userPrefix() string {
	return s.prefix + "u:"
}

func (s *Store) countPrefix() string {
	return s.prefix + "c:"
}

func (s *Store) userKey(userID string) string {
	return s.userPrefix() + userID
}

func (s *Store) countKey(userID string) string {
	return s.countPrefix() + userID
}

// Save persists a [Session] with the given TTL and registers it in the
// owner's session index.
func (s *Store) Save(ctx context.Context, sess *Session, ttl time.Duration) error {
	data, err := Encode(sess)
	if err != nil {
		return err
	}

	sessionKey := s.key(sess.SessionID)
	userKey := s.userKey(sess.UserID)
	countKey := s.countKey(sess.UserID)

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, sessionKey, data, ttl)
		pipe.SAdd(ctx, userKey, sess.SessionID)
		pipe.Incr(ctx, countKey)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return nil
}

// GetReadOnly fetches a session without touching its TTL. Revoked sessions
// are returned with the flag set; interpreting that is the caller's job.
func (s *Store) GetReadOnly(ctx context.Context, sessionID string) (*Session, error) {
	data, err := s.redis.Get(ctx, s.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, errors.Join(redis.Nil, ErrNotFound)
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sess, err := Decode(sessionID, data)
	if err != nil {
		return nil, err
	}
	if sess.ExpiresAt <= time.Now().Unix() {
		return nil, errors.Join(redis.Nil, ErrExpired)
	}

	return sess, nil
}

// Rotate runs the refresh compare-and-swap. On success it returns the
// updated session; the provided hash now sits in the prior slot and
// nextHash is live. On prior-slot reuse it returns a [*ReuseError] carrying
// the owning user; the session itself is already revoked server-side.
func (s *Store) Rotate(
	ctx context.Context,
	sessionID string,
	providedHash [32]byte,
	nextHash [32]byte,
	now time.Time,
	ttl time.Duration,
) (*Session, error) {
	raw, err := rotateLua.Run(ctx, s.redis,
		[]string{s.key(sessionID)},
		sessionID,
		s.userPrefix(),
		s.countPrefix(),
		string(providedHash[:]),
		string(nextHash[:]),
		now.Unix(),
		ttl.Milliseconds(),
	).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	reply, ok := raw.([]interface{})
	if !ok || len(reply) == 0 {
		return nil, fmt.Errorf("%w: unexpected rotate reply", ErrRedisUnavailable)
	}
	status, ok := reply[0].(int64)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected rotate status", ErrRedisUnavailable)
	}

	switch status {
	case rotateStatusNotFound:
		return nil, errors.Join(redis.Nil, ErrNotFound)
	case rotateStatusExpired:
		return nil, errors.Join(redis.Nil, ErrExpired)
	case rotateStatusMismatch:
		return nil, ErrHashMismatch
	case rotateStatusRevoked:
		return nil, ErrRevoked
	case rotateStatusCorrupt:
		return nil, ErrCorrupt
	case rotateStatusReuse:
		if len(reply) < 2 {
			return nil, fmt.Errorf("%w: reuse reply missing user", ErrRedisUnavailable)
		}
		userID, ok := reply[1].(string)
		if !ok {
			return nil, fmt.Errorf("%w: reuse reply missing user", ErrRedisUnavailable)
		}
		return nil, &ReuseError{UserID: userID}
	case rotateStatusRotated:
		if len(reply) < 2 {
			return nil, fmt.Errorf("%w: rotate reply missing blob", ErrRedisUnavailable)
		}
		blob, ok := reply[1].(string)
		if !ok {
			return nil, fmt.Errorf("%w: rotate reply missing blob", ErrRedisUnavailable)
		}
		return Decode(sessionID, []byte(blob))
	default:
		return nil, fmt.Errorf("%w: unknown rotate status %d", ErrRedisUnavailable, status)
	}
}

// Invalidate tombstones one session. The bool reports whether this call
// performed the revocation (false for missing or already-revoked sessions).
func (s *Store) Invalidate(ctx context.Context, sessionID string) (bool, error) {
	n, err := invalidateLua.Run(ctx, s.redis,
		[]string{s.key(sessionID)},
		sessionID,
		s.userPrefix(),
		s.countPrefix(),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return n == 1, nil
}

// InvalidateAllForUser tombstones every live session of the user and returns
// how many this call revoked.
//
// ATOMICITY NOTE: the SMEMBERS read and the per-session scripts are separate
// round trips. A session created between them survives; sessions revoked
// concurrently are simply not counted twice. Both are acceptable for a
// logout-all sweep.
func (s *Store) InvalidateAllForUser(ctx context.Context, userID string) (int, error) {
	ids, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	invalidated := 0
	for _, id := range ids {
		done, err := s.Invalidate(ctx, id)
		if err != nil {
			return invalidated, err
		}
		if done {
			invalidated++
		}
	}

	return invalidated, nil
}

// ActiveSessions returns the user's live sessions, skipping entries that
// expired or were revoked since the index was written.
func (s *Store) ActiveSessions(ctx context.Context, userID string) ([]*Session, error) {
	ids, err := s.ActiveSessionIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	pipe := s.redis.Pipeline()
	cmds := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.Get(ctx, s.key(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	now := time.Now().Unix()
	sessions := make([]*Session, 0, len(ids))
	for i, cmd := range cmds {
		data, err := cmd.Bytes()
		if err != nil {
			continue
		}
		sess, err := Decode(ids[i], data)
		if err != nil {
			continue
		}
		if sess.Revoked || sess.ExpiresAt <= now {
			continue
		}
		sessions = append(sessions, sess)
	}

	return sessions, nil
}

// ActiveSessionIDs returns the raw per-user index.
func (s *Store) ActiveSessionIDs(ctx context.Context, userID string) ([]string, error) {
	ids, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return ids, nil
}

// ActiveSessionCount returns the per-user active session counter.
func (s *Store) ActiveSessionCount(ctx context.Context, userID string) (int64, error) {
	count, err := s.redis.Get(ctx, s.countKey(userID)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return count, nil
}

// Ping verifies Redis connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
