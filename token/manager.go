// Package token issues and verifies the self-contained JWT access tokens.
// Verification is pure: signature plus expiry, no store round-trip, so the
// per-request auth guard stays off the database hot path. Revocation is
// approximated by short TTLs plus refresh rotation; there is no denylist.
package token

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SigningMethod selects the JWT signature scheme.
type SigningMethod string

const (
	// MethodHS256 signs with a shared symmetric secret.
	MethodHS256 SigningMethod = "hs256"
	// MethodEd25519 signs with an ed25519 key pair.
	MethodEd25519 SigningMethod = "ed25519"
)

var (
	// ErrExpired is the only error an unexpired-signature-valid token past
	// its expiry instant may produce.
	ErrExpired = errors.New("token expired")
	// ErrSignature is returned when the signature does not verify.
	ErrSignature = errors.New("token signature invalid")
	// ErrMalformed is returned for anything that is not a structurally valid
	// token for this issuer.
	ErrMalformed = errors.New("token malformed")
)

// Config holds the signing material and TTL for access tokens.
type Config struct {
	AccessTTL     time.Duration
	SigningMethod SigningMethod
	Secret        []byte // hs256
	PrivateKey    []byte // ed25519 seed or private key
	PublicKey     []byte // ed25519
	Issuer        string
	Leeway        time.Duration
}

// Claims is the decoded payload of an access token: subject identity, role,
// and the session the token was minted under.
type Claims struct {
	Role      string `json:"role"`
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// Manager issues and verifies access tokens. Safe for concurrent use.
type Manager struct {
	config     Config
	signKey    any
	verifyKey  any
	signMethod jwt.SigningMethod
}

// NewManager validates the configuration and prepares the key material.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}

	m := &Manager{config: cfg}
	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.Secret) < 32 {
			return nil, errors.New("hs256 requires a secret of at least 32 bytes")
		}
		m.signMethod = jwt.SigningMethodHS256
		m.signKey = cfg.Secret
		m.verifyKey = cfg.Secret
	case MethodEd25519:
		priv, err := parseEdPrivateKey(cfg.PrivateKey)
		if err != nil {
			return nil, err
		}
		pub, err := parseEdPublicKey(cfg.PublicKey)
		if err != nil {
			return nil, err
		}
		m.signMethod = jwt.SigningMethodEdDSA
		m.signKey = priv
		m.verifyKey = pub
	default:
		return nil, errors.New("unsupported signing method")
	}

	return m, nil
}

// Issue mints a signed access token for the subject/role/session triple
// with the configured TTL.
func (m *Manager) Issue(accountID, role, sessionID string) (string, error) {
	return m.IssueWithTTL(accountID, role, sessionID, m.config.AccessTTL)
}

// IssueWithTTL mints a token with an explicit TTL, used by tests and by
// short-lived administrative tokens.
func (m *Manager) IssueWithTTL(accountID, role, sessionID string, ttl time.Duration) (string, error) {
	if ttl <= 0 || ttl > m.config.AccessTTL {
		ttl = m.config.AccessTTL
	}

	now := time.Now()
	claims := Claims{
		Role:      role,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID,
			Issuer:    m.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	return jwt.NewWithClaims(m.signMethod, claims).SignedString(m.signKey)
}

// Verify parses and validates a token, returning exactly one of
// [ErrExpired], [ErrSignature], or [ErrMalformed] on failure. Expiry is
// reported only for tokens whose signature verified, so an expired token
// never degrades into a generic failure.
func (m *Manager) Verify(tokenStr string) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.signMethod.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}

	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(*jwt.Token) (any, error) {
		return m.verifyKey, nil
	}, options...)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrSignatureInvalid):
			return nil, ErrSignature
		default:
			return nil, ErrMalformed
		}
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || claims.Subject == "" {
		return nil, ErrMalformed
	}
	return claims, nil
}

func parseEdPrivateKey(raw []byte) (ed25519.PrivateKey, error) {
	switch len(raw) {
	case ed25519.PrivateKeySize:
		return ed25519.PrivateKey(raw), nil
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(raw), nil
	default:
		return nil, fmt.Errorf("invalid ed25519 private key size %d", len(raw))
	}
}

func parseEdPublicKey(raw []byte) (ed25519.PublicKey, error) {
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("invalid ed25519 public key size %d", len(raw))
	}
	return ed25519.PublicKey(raw), nil
}
