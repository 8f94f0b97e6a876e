package authcore

import (
	"errors"

	"github.com/lumenlms/authcore/internal/rate"
	"github.com/lumenlms/authcore/internal/stores"
	"github.com/lumenlms/authcore/password"
	"github.com/lumenlms/authcore/session"
	"github.com/lumenlms/authcore/token"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an [Engine]. Construction is allocation-only; no I/O
// happens until the first Engine method call.
type Builder struct {
	config   Config
	redis    redis.UniversalClient
	accounts AccountStore
	mailer   Mailer
	sink     AuditSink

	built bool
}

// New returns a builder preloaded with [DefaultConfig].
func New() *Builder {
	return &Builder{config: DefaultConfig()}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the Redis client backing sessions, challenge stores, and
// lockout counters.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithAccountStore sets the account persistence implementation.
func (b *Builder) WithAccountStore(store AccountStore) *Builder {
	b.accounts = store
	return b
}

// WithMailer sets the code delivery implementation.
func (b *Builder) WithMailer(m Mailer) *Builder {
	b.mailer = m
	return b
}

// WithAuditSink sets the destination for audit events.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.sink = sink
	return b
}

// WithSigningSecret sets the hs256 secret, the common production path.
func (b *Builder) WithSigningSecret(secret []byte) *Builder {
	b.config.Token.SigningMethod = "hs256"
	b.config.Token.Secret = secret
	return b
}

// Build validates the configuration and wires the engine. The builder is
// single-use.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if cfg.Permissions == nil {
		cfg.Permissions = defaultPermissions()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.accounts == nil {
		return nil, errors.New("account store required")
	}
	if b.mailer == nil {
		return nil, errors.New("mailer required")
	}

	hasher, err := password.New(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}

	tokens, err := token.NewManager(token.Config{
		AccessTTL:     cfg.Token.AccessTTL,
		SigningMethod: token.SigningMethod(cfg.Token.SigningMethod),
		Secret:        cfg.Token.Secret,
		PrivateKey:    cfg.Token.PrivateKey,
		PublicKey:     cfg.Token.PublicKey,
		Issuer:        cfg.Token.Issuer,
	})
	if err != nil {
		return nil, err
	}

	prefix := cfg.Session.RedisPrefix
	engine := &Engine{
		config:   cfg,
		accounts: b.accounts,
		mailer:   b.mailer,
		hasher:   hasher,
		tokens:   tokens,
		sessions: session.NewStore(b.redis, prefix),
		verifySt: stores.NewCodeStore(b.redis, prefix+":vc"),
		verified: stores.NewMarkerStore(b.redis, prefix+":vm"),
		resetSt:  stores.NewCodeStore(b.redis, prefix+":rc"),
		twoFactor: stores.NewTwoFactorStore(
			b.redis, prefix+":2fa",
		),
		lockout: rate.NewLockout(b.redis, rate.LockoutConfig{
			CooldownThreshold: cfg.Lockout.CooldownThreshold,
			CooldownDuration:  cfg.Lockout.CooldownDuration,
			LockThreshold:     cfg.Lockout.LockThreshold,
			LockDuration:      cfg.Lockout.LockDuration,
			EnableIPThrottle:  cfg.Lockout.EnableIPThrottle,
		}),
		audit:   newAuditDispatcher(cfg.Audit, b.sink),
		metrics: newMetrics(cfg.Metrics),
	}

	b.built = true
	return engine, nil
}
