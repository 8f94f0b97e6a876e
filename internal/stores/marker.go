package stores

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// MarkerStore records that an email passed code confirmation, bridging the
// gap between verify-email-code and register. Markers are single-use and
// TTL-bound.
type MarkerStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewMarkerStore creates a marker store under the given key prefix.
func NewMarkerStore(redisClient redis.UniversalClient, prefix string) *MarkerStore {
	return &MarkerStore{redis: redisClient, prefix: prefix}
}

func (s *MarkerStore) key(email string) string {
	return s.prefix + ":" + email
}

// Set marks the email as confirmed for the duration of ttl.
func (s *MarkerStore) Set(ctx context.Context, email string, ttl time.Duration) error {
	if err := s.redis.Set(ctx, s.key(email), "1", ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}

// Consume atomically removes the marker and reports whether it existed.
// Registration calls this exactly once; a second registration attempt with
// the same confirmation must repeat the code flow.
func (s *MarkerStore) Consume(ctx context.Context, email string) (bool, error) {
	n, err := s.redis.Del(ctx, s.key(email)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return n > 0, nil
}
