package stores

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const twoFactorRecordVersionV1 = 1

// TwoFactorChallenge is the pending-login state between a correct password
// and a confirmed second factor. Only the SHA-256 of the emailed code is
// stored.
type TwoFactorChallenge struct {
	AccountID string
	CodeHash  [32]byte
	ExpiresAt int64
	Attempts  uint16
}

// TwoFactorStore persists pending challenges keyed by the opaque temp token
// handed to the client.
type TwoFactorStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewTwoFactorStore creates a challenge store under the given key prefix.
func NewTwoFactorStore(redisClient redis.UniversalClient, prefix string) *TwoFactorStore {
	return &TwoFactorStore{redis: redisClient, prefix: prefix}
}

func (s *TwoFactorStore) key(challengeID string) string {
	return s.prefix + ":" + challengeID
}

// Save stores a fresh challenge with the given TTL.
func (s *TwoFactorStore) Save(ctx context.Context, challengeID string, challenge *TwoFactorChallenge, ttl time.Duration) error {
	encoded, err := encodeTwoFactorChallenge(challenge)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(challengeID), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}

// Consume verifies providedHash against the challenge. A match destroys the
// challenge and returns it; a mismatch advances the attempt counter under
// WATCH and returns [ErrCodeMismatch], or [ErrCodeAttemptsExceeded] once the
// budget is spent. An unknown or expired challengeID returns
// [ErrCodeNotFound]; callers must collapse all three into one uniform
// failure so the temp token is not probeable.
func (s *TwoFactorStore) Consume(ctx context.Context, challengeID string, providedHash [32]byte, maxAttempts int) (*TwoFactorChallenge, error) {
	const maxRetries = 4
	key := s.key(challengeID)

	for i := 0; i < maxRetries; i++ {
		var matched *TwoFactorChallenge

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			challenge, err := decodeTwoFactorChallenge(data)
			if err != nil {
				return err
			}

			if time.Now().Unix() > challenge.ExpiresAt {
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				if err != nil {
					return err
				}
				return ErrCodeNotFound
			}

			if subtle.ConstantTimeCompare(challenge.CodeHash[:], providedHash[:]) != 1 {
				challenge.Attempts++
				if int(challenge.Attempts) >= maxAttempts {
					_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
						pipe.Del(ctx, key)
						return nil
					})
					if err != nil {
						return err
					}
					return ErrCodeAttemptsExceeded
				}

				ttl := time.Until(time.Unix(challenge.ExpiresAt, 0))
				if ttl <= 0 {
					_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
						pipe.Del(ctx, key)
						return nil
					})
					if err != nil {
						return err
					}
					return ErrCodeNotFound
				}

				updated, err := encodeTwoFactorChallenge(challenge)
				if err != nil {
					return err
				}
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Set(ctx, key, updated, ttl)
					return nil
				})
				if err != nil {
					return err
				}
				return ErrCodeMismatch
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key)
				return nil
			})
			if err != nil {
				return err
			}

			matched = challenge
			return nil
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			switch {
			case errors.Is(err, redis.Nil):
				return nil, ErrCodeNotFound
			case errors.Is(err, ErrCodeNotFound), errors.Is(err, ErrCodeMismatch), errors.Is(err, ErrCodeAttemptsExceeded):
				return nil, err
			default:
				return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
			}
		}

		return matched, nil
	}

	return nil, ErrCodeNotFound
}

// Delete removes a pending challenge, used on abandonment. Idempotent.
func (s *TwoFactorStore) Delete(ctx context.Context, challengeID string) error {
	if err := s.redis.Del(ctx, s.key(challengeID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}

func encodeTwoFactorChallenge(challenge *TwoFactorChallenge) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(twoFactorRecordVersionV1)
	if err := binary.Write(&buf, binary.BigEndian, challenge.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, challenge.ExpiresAt); err != nil {
		return nil, err
	}

	if len(challenge.AccountID) > 255 {
		return nil, errors.New("two-factor account id too long")
	}
	buf.WriteByte(byte(len(challenge.AccountID)))
	buf.WriteString(challenge.AccountID)
	buf.Write(challenge.CodeHash[:])

	return buf.Bytes(), nil
}

func decodeTwoFactorChallenge(data []byte) (*TwoFactorChallenge, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != twoFactorRecordVersionV1 {
		return nil, errors.New("invalid two-factor record version")
	}

	challenge := &TwoFactorChallenge{}
	if err := binary.Read(reader, binary.BigEndian, &challenge.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &challenge.ExpiresAt); err != nil {
		return nil, err
	}

	idLen, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	accountID := make([]byte, idLen)
	if _, err := io.ReadFull(reader, accountID); err != nil {
		return nil, err
	}
	challenge.AccountID = string(accountID)

	if _, err := io.ReadFull(reader, challenge.CodeHash[:]); err != nil {
		return nil, err
	}

	return challenge, nil
}
