package session

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

const sessionRecordVersionV1 = 1

var (
	// ErrNotFound is returned when the session does not exist or its TTL
	// elapsed.
	ErrNotFound = errors.New("session not found")
	// ErrExpired is returned when the record exists but its embedded expiry
	// instant has passed.
	ErrExpired = errors.New("session expired")
	// ErrRefreshMismatch is returned when the presented refresh secret does
	// not hash to the stored value, including after rotation.
	ErrRefreshMismatch = errors.New("refresh hash mismatch")
	// ErrRedisUnavailable wraps Redis transport failures.
	ErrRedisUnavailable = errors.New("session redis unavailable")
)

// Store persists sessions under <prefix>:s:<sessionID> with a per-account
// index set under <prefix>:u:<accountID>.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// NewStore creates a session store under the given key prefix.
func NewStore(redisClient redis.UniversalClient, prefix string) *Store {
	return &Store{redis: redisClient, prefix: prefix}
}

func (s *Store) sessionKey(sessionID string) string {
	return s.prefix + ":s:" + sessionID
}

func (s *Store) indexKey(accountID string) string {
	return s.prefix + ":u:" + accountID
}

// Create persists a new session and adds it to the account index. The
// Redis TTL and the embedded ExpiresAt carry the same instant; the TTL is
// the cleanup mechanism, the embedded value is the authoritative check.
func (s *Store) Create(ctx context.Context, session *Session) error {
	encoded, err := encodeSession(session)
	if err != nil {
		return err
	}
	ttl := time.Until(time.Unix(session.ExpiresAt, 0))
	if ttl <= 0 {
		return ErrExpired
	}

	pipe := s.redis.TxPipeline()
	pipe.Set(ctx, s.sessionKey(session.SessionID), encoded, ttl)
	pipe.SAdd(ctx, s.indexKey(session.AccountID), session.SessionID)
	pipe.Expire(ctx, s.indexKey(session.AccountID), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Get loads a session, reporting [ErrNotFound] or [ErrExpired].
func (s *Store) Get(ctx context.Context, sessionID string) (*Session, error) {
	data, err := s.redis.Get(ctx, s.sessionKey(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	session, err := decodeSession(data)
	if err != nil {
		return nil, err
	}
	if time.Now().Unix() > session.ExpiresAt {
		_ = s.redis.Del(ctx, s.sessionKey(sessionID)).Err()
		return nil, ErrExpired
	}
	return session, nil
}

// Rotate swaps the refresh hash after verifying the presented one, under
// WATCH so two concurrent refreshes cannot both succeed against the same
// secret: the loser observes the new hash and fails with
// [ErrRefreshMismatch].
func (s *Store) Rotate(ctx context.Context, sessionID string, presentedHash, nextHash [32]byte) (*Session, error) {
	const maxRetries = 4
	key := s.sessionKey(sessionID)

	for i := 0; i < maxRetries; i++ {
		var rotated *Session

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			session, err := decodeSession(data)
			if err != nil {
				return err
			}
			if time.Now().Unix() > session.ExpiresAt {
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				if err != nil {
					return err
				}
				return ErrExpired
			}
			if subtle.ConstantTimeCompare(session.RefreshHash[:], presentedHash[:]) != 1 {
				return ErrRefreshMismatch
			}

			session.RefreshHash = nextHash
			encoded, err := encodeSession(session)
			if err != nil {
				return err
			}
			ttl := time.Until(time.Unix(session.ExpiresAt, 0))
			if ttl <= 0 {
				return ErrExpired
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, encoded, ttl)
				return nil
			})
			if err != nil {
				return err
			}

			rotated = session
			return nil
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			switch {
			case errors.Is(err, redis.Nil):
				return nil, ErrNotFound
			case errors.Is(err, ErrNotFound), errors.Is(err, ErrExpired), errors.Is(err, ErrRefreshMismatch):
				return nil, err
			default:
				return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
			}
		}

		return rotated, nil
	}

	return nil, ErrRefreshMismatch
}

// Delete removes one session and its index entry. Idempotent: deleting an
// unknown session succeeds.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	data, err := s.redis.Get(ctx, s.sessionKey(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	session, err := decodeSession(data)
	if err != nil {
		// Corrupt record: drop the key anyway.
		_ = s.redis.Del(ctx, s.sessionKey(sessionID)).Err()
		return nil
	}

	pipe := s.redis.TxPipeline()
	pipe.Del(ctx, s.sessionKey(sessionID))
	pipe.SRem(ctx, s.indexKey(session.AccountID), sessionID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// DeleteAll invalidates every session of an account, used on password reset
// and change. Returns the number of sessions removed.
func (s *Store) DeleteAll(ctx context.Context, accountID string) (int, error) {
	ids, err := s.redis.SMembers(ctx, s.indexKey(accountID)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, s.sessionKey(id))
	}
	keys = append(keys, s.indexKey(accountID))

	if err := s.redis.Del(ctx, keys...).Err(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return len(ids), nil
}

func encodeSession(session *Session) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(sessionRecordVersionV1)
	if err := binary.Write(&buf, binary.BigEndian, session.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, session.ExpiresAt); err != nil {
		return nil, err
	}

	for _, field := range []string{session.SessionID, session.AccountID, session.Device} {
		if len(field) > 255 {
			return nil, errors.New("session field too long")
		}
		buf.WriteByte(byte(len(field)))
		buf.WriteString(field)
	}
	buf.Write(session.RefreshHash[:])

	return buf.Bytes(), nil
}

func decodeSession(data []byte) (*Session, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != sessionRecordVersionV1 {
		return nil, errors.New("invalid session record version")
	}

	session := &Session{}
	if err := binary.Read(reader, binary.BigEndian, &session.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &session.ExpiresAt); err != nil {
		return nil, err
	}

	for _, field := range []*string{&session.SessionID, &session.AccountID, &session.Device} {
		length, err := reader.ReadByte()
		if err != nil {
			return nil, err
		}
		raw := make([]byte, length)
		if _, err := io.ReadFull(reader, raw); err != nil {
			return nil, err
		}
		*field = string(raw)
	}

	if _, err := io.ReadFull(reader, session.RefreshHash[:]); err != nil {
		return nil, err
	}

	return session, nil
}
