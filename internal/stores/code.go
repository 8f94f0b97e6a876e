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

const codeRecordVersionV1 = 1

// codeRecord is the persisted form of one outstanding one-time code.
type codeRecord struct {
	SecretHash [32]byte
	ExpiresAt  int64
	Attempts   uint16
}

// CodeStore persists one-time numeric codes keyed by normalized email.
// Saving a new code overwrites any outstanding one: at most one code per
// email is ever valid.
type CodeStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewCodeStore creates a code store under the given key prefix
// (verification and reset codes use distinct prefixes).
func NewCodeStore(redisClient redis.UniversalClient, prefix string) *CodeStore {
	return &CodeStore{redis: redisClient, prefix: prefix}
}

func (s *CodeStore) key(email string) string {
	return s.prefix + ":" + email
}

// Save stores the code hash with the given TTL, replacing any prior record
// for the email.
func (s *CodeStore) Save(ctx context.Context, email string, secretHash [32]byte, ttl time.Duration) error {
	record := &codeRecord{
		SecretHash: secretHash,
		ExpiresAt:  time.Now().Add(ttl).Unix(),
	}
	encoded, err := encodeCodeRecord(record)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(email), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}

// Delete removes any outstanding code for the email. Idempotent.
func (s *CodeStore) Delete(ctx context.Context, email string) error {
	if err := s.redis.Del(ctx, s.key(email)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}

// Consume checks providedHash against the stored record. On match the
// record is deleted and remaining == 0. On mismatch the attempt counter is
// advanced transactionally and the attempts still available are returned
// alongside [ErrCodeMismatch]; once the budget is spent the record is
// destroyed and [ErrCodeAttemptsExceeded] is returned.
func (s *CodeStore) Consume(ctx context.Context, email string, providedHash [32]byte, maxAttempts int) (int, error) {
	const maxRetries = 4
	key := s.key(email)

	for i := 0; i < maxRetries; i++ {
		remaining := 0

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			record, err := decodeCodeRecord(data)
			if err != nil {
				return err
			}

			if time.Now().Unix() > record.ExpiresAt {
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				if err != nil {
					return err
				}
				return ErrCodeNotFound
			}

			if subtle.ConstantTimeCompare(record.SecretHash[:], providedHash[:]) != 1 {
				record.Attempts++
				if int(record.Attempts) >= maxAttempts {
					_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
						pipe.Del(ctx, key)
						return nil
					})
					if err != nil {
						return err
					}
					return ErrCodeAttemptsExceeded
				}
				remaining = maxAttempts - int(record.Attempts)

				ttl := time.Until(time.Unix(record.ExpiresAt, 0))
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

				updated, err := encodeCodeRecord(record)
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
			return err
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			switch {
			case errors.Is(err, redis.Nil):
				return 0, ErrCodeNotFound
			case errors.Is(err, ErrCodeNotFound), errors.Is(err, ErrCodeMismatch), errors.Is(err, ErrCodeAttemptsExceeded):
				return remaining, err
			default:
				return 0, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
			}
		}

		return 0, nil
	}

	return 0, ErrCodeNotFound
}

func encodeCodeRecord(record *codeRecord) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(codeRecordVersionV1)
	if err := binary.Write(&buf, binary.BigEndian, record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}
	buf.Write(record.SecretHash[:])

	return buf.Bytes(), nil
}

func decodeCodeRecord(data []byte) (*codeRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != codeRecordVersionV1 {
		return nil, errors.New("invalid code record version")
	}

	record := &codeRecord{}
	if err := binary.Read(reader, binary.BigEndian, &record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(reader, record.SecretHash[:]); err != nil {
		return nil, err
	}

	return record, nil
}
