package credlock

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	mfaChallengeKeyPrefix = "clc"
	mfaChallengeVersion1  = 1
)

// Package-private sentinels. The engine maps these onto the public
// ErrChallenge* taxonomy so callers never see storage details.
var (
	errMFAChallengeNotFound = errors.New("mfa challenge not found")
	errMFAChallengeExpired  = errors.New("mfa challenge expired")
	errMFAChallengeBackend  = errors.New("mfa challenge backend unavailable")
)

// mfaChallenge is the server-side half of a suspended login. The
// challenge ID handed to the client is the only lookup handle; the
// record itself carries no secret material.
type mfaChallenge struct {
	UserID    string
	ExpiresAt int64
	Attempts  uint16
}

type mfaChallengeStore struct {
	redis redis.UniversalClient
}

func newMFAChallengeStore(redisClient redis.UniversalClient) *mfaChallengeStore {
	return &mfaChallengeStore{redis: redisClient}
}

func (s *mfaChallengeStore) key(challengeID string) string {
	return mfaChallengeKeyPrefix + ":" + challengeID
}

func (s *mfaChallengeStore) Save(
	ctx context.Context,
	challengeID string,
	record *mfaChallenge,
	ttl time.Duration,
) error {
	encoded, err := encodeMFAChallenge(record)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(challengeID), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", errMFAChallengeBackend, err)
	}
	return nil
}

// Get loads the challenge or reports notFound/expired. The caller
// supplies now so the expiry check shares the engine clock.
func (s *mfaChallengeStore) Get(ctx context.Context, challengeID string, now time.Time) (*mfaChallenge, error) {
	data, err := s.redis.Get(ctx, s.key(challengeID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, errMFAChallengeNotFound
		}
		return nil, fmt.Errorf("%w: %v", errMFAChallengeBackend, err)
	}

	record, err := decodeMFAChallenge(data)
	if err != nil {
		return nil, err
	}
	if now.Unix() > record.ExpiresAt {
		_, _ = s.redis.Del(ctx, s.key(challengeID)).Result()
		return nil, errMFAChallengeExpired
	}
	return record, nil
}

// Delete removes the challenge and reports whether this call removed
// it. Completion hinges on that bool: the goroutine that observes true
// is the only one allowed to mint tokens for the challenge.
func (s *mfaChallengeStore) Delete(ctx context.Context, challengeID string) (bool, error) {
	n, err := s.redis.Del(ctx, s.key(challengeID)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", errMFAChallengeBackend, err)
	}
	return n > 0, nil
}

// RecordFailure bumps the attempt counter under WATCH so concurrent
// failures cannot lose increments. It returns true when the counter
// reached maxAttempts, in which case the challenge is already gone.
func (s *mfaChallengeStore) RecordFailure(
	ctx context.Context,
	challengeID string,
	maxAttempts int,
	now time.Time,
) (bool, error) {
	const maxRetries = 4
	key := s.key(challengeID)

	for i := 0; i < maxRetries; i++ {
		var exceeded bool
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			record, err := decodeMFAChallenge(data)
			if err != nil {
				return err
			}
			if now.Unix() > record.ExpiresAt {
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				if err != nil {
					return err
				}
				return errMFAChallengeExpired
			}

			record.Attempts++
			if int(record.Attempts) >= maxAttempts {
				exceeded = true
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				if err != nil {
					return err
				}
				return nil
			}

			ttl := time.Unix(record.ExpiresAt, 0).Sub(now)
			if ttl <= 0 {
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				if err != nil {
					return err
				}
				return errMFAChallengeExpired
			}

			updated, err := encodeMFAChallenge(record)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, updated, ttl)
				return nil
			})
			return err
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return false, errMFAChallengeNotFound
			}
			if errors.Is(err, errMFAChallengeExpired) {
				return false, err
			}
			return false, fmt.Errorf("%w: %v", errMFAChallengeBackend, err)
		}
		return exceeded, nil
	}

	return false, errMFAChallengeNotFound
}

func encodeMFAChallenge(record *mfaChallenge) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(mfaChallengeVersion1)

	if err := binary.Write(&buf, binary.BigEndian, record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}

	if len(record.UserID) > 65535 {
		return nil, errors.New("mfa challenge user id length exceeded")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(record.UserID))); err != nil {
		return nil, err
	}
	buf.WriteString(record.UserID)

	return buf.Bytes(), nil
}

func decodeMFAChallenge(data []byte) (*mfaChallenge, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != mfaChallengeVersion1 {
		return nil, errors.New("invalid mfa challenge version")
	}

	record := &mfaChallenge{}
	if err := binary.Read(reader, binary.BigEndian, &record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}

	var userLen uint16
	if err := binary.Read(reader, binary.BigEndian, &userLen); err != nil {
		return nil, err
	}
	user := make([]byte, userLen)
	if _, err := io.ReadFull(reader, user); err != nil {
		return nil, err
	}
	record.UserID = string(user)

	return record, nil
}
