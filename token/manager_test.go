package token

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"testing"
	"time"
)

func hsConfig() Config {
	return Config{
		AccessTTL:     15 * time.Minute,
		SigningMethod: MethodHS256,
		Secret:        []byte("unit-test-secret-0123456789abcdef"),
		Issuer:        "lumenlms",
	}
}

func TestIssueAndVerify(t *testing.T) {
	m, err := NewManager(hsConfig())
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	tok, err := m.Issue("acct-1", "student", "sess-1")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	claims, err := m.Verify(tok)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if claims.Subject != "acct-1" || claims.Role != "student" || claims.SessionID != "sess-1" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestVerifyExpiredIsOnlyExpired(t *testing.T) {
	m, err := NewManager(hsConfig())
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	tok, err := m.IssueWithTTL("acct-1", "student", "sess-1", time.Second)
	if err != nil {
		t.Fatalf("IssueWithTTL failed: %v", err)
	}

	time.Sleep(1100 * time.Millisecond)

	_, err = m.Verify(tok)
	if !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
	if errors.Is(err, ErrSignature) || errors.Is(err, ErrMalformed) {
		t.Fatal("an expired but otherwise valid token must classify as expired only")
	}
}

func TestVerifyWrongSecret(t *testing.T) {
	issuer, err := NewManager(hsConfig())
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	other := hsConfig()
	other.Secret = []byte("a-completely-different-32b-secret!")
	verifier, err := NewManager(other)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	tok, err := issuer.Issue("acct-1", "student", "sess-1")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if _, err := verifier.Verify(tok); !errors.Is(err, ErrSignature) {
		t.Fatalf("expected ErrSignature, got %v", err)
	}
}

func TestVerifyGarbage(t *testing.T) {
	m, err := NewManager(hsConfig())
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	for _, tok := range []string{"", "garbage", "a.b", "a.b.c"} {
		if _, err := m.Verify(tok); !errors.Is(err, ErrMalformed) {
			t.Fatalf("token %q: expected ErrMalformed, got %v", tok, err)
		}
	}
}

func TestVerifyTamperedPayload(t *testing.T) {
	m, err := NewManager(hsConfig())
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	tok, err := m.Issue("acct-1", "student", "sess-1")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	tampered := []byte(tok)
	mid := len(tampered) / 2
	if tampered[mid] == 'A' {
		tampered[mid] = 'B'
	} else {
		tampered[mid] = 'A'
	}

	if _, err := m.Verify(string(tampered)); err == nil {
		t.Fatal("expected tampered token to be rejected")
	}
}

func TestEd25519RoundTrip(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}

	m, err := NewManager(Config{
		AccessTTL:     15 * time.Minute,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     pub,
		Issuer:        "lumenlms",
	})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	tok, err := m.Issue("acct-1", "instructor", "sess-9")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	claims, err := m.Verify(tok)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if claims.Role != "instructor" {
		t.Fatalf("unexpected role %q", claims.Role)
	}
}

func TestNewManagerRejectsBadConfig(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
	}{
		{"zero ttl", Config{SigningMethod: MethodHS256, Secret: []byte("unit-test-secret-0123456789abcdef")}},
		{"short secret", Config{AccessTTL: time.Minute, SigningMethod: MethodHS256, Secret: []byte("short")}},
		{"unknown method", Config{AccessTTL: time.Minute, SigningMethod: "rs256"}},
		{"excess leeway", Config{AccessTTL: time.Minute, SigningMethod: MethodHS256, Secret: []byte("unit-test-secret-0123456789abcdef"), Leeway: 5 * time.Minute}},
	}
	for _, tc := range cases {
		if _, err := NewManager(tc.cfg); err == nil {
			t.Errorf("%s: expected NewManager to fail", tc.name)
		}
	}
}

func TestIssueWithTTLClampsToConfig(t *testing.T) {
	m, err := NewManager(hsConfig())
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	tok, err := m.IssueWithTTL("acct-1", "student", "sess-1", 10*time.Hour)
	if err != nil {
		t.Fatalf("IssueWithTTL failed: %v", err)
	}
	claims, err := m.Verify(tok)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	ttl := time.Until(claims.ExpiresAt.Time)
	if ttl > 15*time.Minute {
		t.Fatalf("TTL must clamp to the configured maximum, got %v", ttl)
	}
}
