// Package rate implements the server-side throttling layers: the tiered
// per-identifier/per-IP failure lockout and the fixed-window endpoint
// limiter. Both keep their counters in Redis so they stay authoritative
// across service instances; client-side cooldown timers are cosmetic and
// are not a security control.
package rate

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// LockoutConfig holds the escalation tiers for consecutive auth failures.
type LockoutConfig struct {
	// CooldownThreshold failures start a CooldownDuration block;
	// LockThreshold failures start a LockDuration block.
	CooldownThreshold int
	CooldownDuration  time.Duration
	LockThreshold     int
	LockDuration      time.Duration
	EnableIPThrottle  bool
}

// Lockout tracks consecutive authentication failures per email and,
// optionally, per IP. Check runs before any credential comparison so a
// locked identifier never reaches the password hasher.
type Lockout struct {
	redis  redis.UniversalClient
	config LockoutConfig
}

// NewLockout creates a lockout tracker backed by the given Redis client.
func NewLockout(redisClient redis.UniversalClient, cfg LockoutConfig) *Lockout {
	return &Lockout{redis: redisClient, config: cfg}
}

func failureKey(id string) string { return "lf:" + id }
func blockKey(id string) string   { return "lb:" + id }
func ipKey(ip string) string      { return "ip:" + ip }

// Check reports whether the email or IP is currently blocked. A non-zero
// retryAfter accompanies [ErrLocked].
func (l *Lockout) Check(ctx context.Context, email, ip string) (time.Duration, error) {
	if retry, err := l.checkBlock(ctx, email); err != nil || retry > 0 {
		return retry, err
	}
	if l.config.EnableIPThrottle && ip != "" {
		return l.checkBlock(ctx, ipKey(ip))
	}
	return 0, nil
}

func (l *Lockout) checkBlock(ctx context.Context, id string) (time.Duration, error) {
	ttl, err := l.redis.PTTL(ctx, blockKey(id)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if ttl > 0 {
		return ttl, ErrLocked
	}
	return 0, nil
}

// RecordFailure advances the consecutive-failure counter and installs the
// block key when a threshold is crossed. The counter key carries the lock
// window as its TTL, so an idle identifier decays back to zero.
func (l *Lockout) RecordFailure(ctx context.Context, email, ip string) error {
	if email != "" {
		if err := l.recordFailure(ctx, email); err != nil {
			return err
		}
	}
	if l.config.EnableIPThrottle && ip != "" {
		return l.recordFailure(ctx, ipKey(ip))
	}
	return nil
}

func (l *Lockout) recordFailure(ctx context.Context, id string) error {
	pipe := l.redis.TxPipeline()
	incr := pipe.Incr(ctx, failureKey(id))
	pipe.Expire(ctx, failureKey(id), l.config.LockDuration)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	count := int(incr.Val())
	var block time.Duration
	switch {
	case count >= l.config.LockThreshold:
		block = l.config.LockDuration
	case count >= l.config.CooldownThreshold:
		block = l.config.CooldownDuration
	default:
		return nil
	}

	if err := l.redis.Set(ctx, blockKey(id), count, block).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Reset clears the counters after a successful authentication.
func (l *Lockout) Reset(ctx context.Context, email, ip string) error {
	keys := []string{failureKey(email), blockKey(email)}
	if l.config.EnableIPThrottle && ip != "" {
		keys = append(keys, failureKey(ipKey(ip)), blockKey(ipKey(ip)))
	}
	if err := l.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Failures returns the current consecutive-failure count for an email.
// Missing keys report zero and do not reveal account existence.
func (l *Lockout) Failures(ctx context.Context, email string) (int, error) {
	count, err := l.redis.Get(ctx, failureKey(email)).Int()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return count, nil
}
