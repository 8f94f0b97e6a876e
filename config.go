package authcore

import (
	"errors"
	"time"
)

// Config carries every tunable of the engine. Zero values are filled with
// the defaults from [DefaultConfig] during [Builder.Build]; Validate rejects
// combinations that would weaken the security posture.
type Config struct {
	Token        TokenConfig
	Password     PasswordConfig
	Lockout      LockoutConfig
	Verification VerificationConfig
	Reset        ResetConfig
	TwoFactor    TwoFactorConfig
	Session      SessionConfig
	Audit        AuditConfig
	Metrics      MetricsConfig

	// Permissions maps each role to the permission names returned by
	// [Engine.Permissions]. Defaults cover the LMS surface.
	Permissions map[Role][]string
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig configures the JWT access token and the opaque refresh token.
type TokenConfig struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod string // "hs256" (default) or "ed25519"
	Secret        []byte // hs256 signing secret
	PrivateKey    []byte // ed25519
	PublicKey     []byte // ed25519
	Issuer        string
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds the argon2id parameters and the password policy.
type PasswordConfig struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32

	// MinLength is the minimum password length in bytes accepted at
	// registration, reset, and change.
	MinLength int
}

/*
====================================
LOCKOUT CONFIG
====================================
*/

// LockoutConfig tunes the account-level failure counter. The counter lives
// in Redis so it is authoritative across instances; the tiers mirror the
// client-side escalation but are the actual security boundary.
type LockoutConfig struct {
	// CooldownThreshold consecutive failures impose CooldownDuration between
	// attempts. LockThreshold failures impose LockDuration.
	CooldownThreshold int
	CooldownDuration  time.Duration
	LockThreshold     int
	LockDuration      time.Duration

	// EnableIPThrottle adds a parallel per-IP counter alongside the
	// per-email one, so one attacker cannot burn the email budget of many
	// accounts from a single address.
	EnableIPThrottle bool
}

/*
====================================
CHALLENGE CONFIGS
====================================
*/

// VerificationConfig tunes email verification codes.
type VerificationConfig struct {
	CodeTTL     time.Duration
	MaxAttempts int
	CodeDigits  int

	// MarkerTTL bounds how long a confirmed email stays registrable before
	// the confirmation must be repeated.
	MarkerTTL time.Duration
}

// ResetConfig tunes password reset codes.
type ResetConfig struct {
	CodeTTL     time.Duration
	MaxAttempts int
	CodeDigits  int
}

// TwoFactorConfig tunes the login step-up challenge.
type TwoFactorConfig struct {
	ChallengeTTL time.Duration
	MaxAttempts  int
	CodeDigits   int
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig tunes the Redis session store.
type SessionConfig struct {
	RedisPrefix string
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

// AuditConfig tunes the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	// DropIfFull sheds events instead of blocking the request path when the
	// buffer is saturated. Dropped counts are observable via
	// [Engine.AuditDropped].
	DropIfFull bool
}

// MetricsConfig enables the engine's internal counters.
type MetricsConfig struct {
	Enabled bool
}

// DefaultConfig returns the production defaults: 15-minute access tokens,
// 7-day refresh tokens, 10-minute 6-digit codes, and the 3/60s + 5/15m
// lockout tiers.
func DefaultConfig() Config {
	return Config{
		Token: TokenConfig{
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    7 * 24 * time.Hour,
			SigningMethod: "hs256",
			Issuer:        "lumenlms",
		},
		Password: PasswordConfig{
			Memory:      64 * 1024,
			Time:        2,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
			MinLength:   10,
		},
		Lockout: LockoutConfig{
			CooldownThreshold: 3,
			CooldownDuration:  60 * time.Second,
			LockThreshold:     5,
			LockDuration:      15 * time.Minute,
			EnableIPThrottle:  true,
		},
		Verification: VerificationConfig{
			CodeTTL:     10 * time.Minute,
			MaxAttempts: 5,
			CodeDigits:  6,
			MarkerTTL:   30 * time.Minute,
		},
		Reset: ResetConfig{
			CodeTTL:     10 * time.Minute,
			MaxAttempts: 5,
			CodeDigits:  6,
		},
		TwoFactor: TwoFactorConfig{
			ChallengeTTL: 5 * time.Minute,
			MaxAttempts:  5,
			CodeDigits:   6,
		},
		Session: SessionConfig{
			RedisPrefix: "lms",
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Permissions: defaultPermissions(),
	}
}

func defaultPermissions() map[Role][]string {
	return map[Role][]string{
		RoleStudent: {
			"course.read", "lecture.read", "assignment.read",
			"assignment.submit", "certificate.read", "profile.edit",
		},
		RoleInstructor: {
			"course.read", "course.create", "course.edit",
			"lecture.read", "lecture.create", "lecture.edit",
			"assignment.read", "assignment.create", "assignment.grade",
			"enrollment.read", "analytics.read", "profile.edit",
		},
		RoleAdmin: {
			"course.read", "course.create", "course.edit", "course.delete",
			"lecture.read", "lecture.create", "lecture.edit", "lecture.delete",
			"assignment.read", "assignment.create", "assignment.grade",
			"enrollment.read", "enrollment.edit", "analytics.read",
			"account.read", "account.suspend", "profile.edit",
		},
	}
}

// Validate rejects configurations the engine refuses to run with. It is
// called by [Builder.Build] after defaults are applied.
func (c *Config) Validate() error {
	if c.Token.AccessTTL <= 0 || c.Token.RefreshTTL <= 0 {
		return errors.New("token TTLs must be positive")
	}
	if c.Token.AccessTTL > 7*24*time.Hour {
		return errors.New("access TTL must not exceed 7 days")
	}
	if c.Token.RefreshTTL < c.Token.AccessTTL {
		return errors.New("refresh TTL must not be shorter than access TTL")
	}
	switch c.Token.SigningMethod {
	case "hs256":
		if len(c.Token.Secret) < 32 {
			return errors.New("hs256 requires a secret of at least 32 bytes")
		}
	case "ed25519":
		if len(c.Token.PrivateKey) == 0 || len(c.Token.PublicKey) == 0 {
			return errors.New("ed25519 requires private and public keys")
		}
	default:
		return errors.New("unsupported signing method")
	}
	if c.Password.MinLength < 8 {
		return errors.New("password minimum length must be at least 8")
	}
	if c.Lockout.CooldownThreshold <= 0 || c.Lockout.LockThreshold <= c.Lockout.CooldownThreshold {
		return errors.New("lockout thresholds must be positive and ordered")
	}
	if c.Lockout.CooldownDuration <= 0 || c.Lockout.LockDuration <= 0 {
		return errors.New("lockout durations must be positive")
	}
	for _, cfg := range []struct {
		ttl      time.Duration
		attempts int
		digits   int
	}{
		{c.Verification.CodeTTL, c.Verification.MaxAttempts, c.Verification.CodeDigits},
		{c.Reset.CodeTTL, c.Reset.MaxAttempts, c.Reset.CodeDigits},
		{c.TwoFactor.ChallengeTTL, c.TwoFactor.MaxAttempts, c.TwoFactor.CodeDigits},
	} {
		if cfg.ttl <= 0 {
			return errors.New("challenge TTLs must be positive")
		}
		if cfg.attempts < 1 {
			return errors.New("challenge attempt budgets must be at least 1")
		}
		if cfg.digits < 6 || cfg.digits > 10 {
			return errors.New("challenge codes must be 6 to 10 digits")
		}
	}
	if len(c.Permissions) == 0 {
		return errors.New("permissions map must not be empty")
	}
	return nil
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Token.Secret = append([]byte(nil), cfg.Token.Secret...)
	out.Token.PrivateKey = append([]byte(nil), cfg.Token.PrivateKey...)
	out.Token.PublicKey = append([]byte(nil), cfg.Token.PublicKey...)
	if cfg.Permissions != nil {
		out.Permissions = make(map[Role][]string, len(cfg.Permissions))
		for role, perms := range cfg.Permissions {
			out.Permissions[role] = append([]string(nil), perms...)
		}
	}
	return out
}
