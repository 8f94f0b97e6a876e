package authcore

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLoginSuccess(t *testing.T) {
	engine, accounts, _, _ := newTestEngine(t, testConfig())
	seedAccount(t, accounts, "alice@example.com", "correct-password-123", nil)

	res, err := engine.Login(context.Background(), "alice@example.com", "correct-password-123")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if res.AccessToken == "" || res.RefreshToken == "" {
		t.Fatal("expected a token pair")
	}
	if res.TwoFactorRequired {
		t.Fatal("unexpected two-factor challenge")
	}
	if res.Account.Email != "alice@example.com" {
		t.Fatalf("unexpected account email %q", res.Account.Email)
	}

	claims, err := engine.Tokens().Verify(res.AccessToken)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if claims.Role != string(RoleStudent) {
		t.Fatalf("expected role student in claims, got %q", claims.Role)
	}
	if claims.SessionID == "" {
		t.Fatal("expected session id in claims")
	}
}

func TestLoginEmailCaseInsensitive(t *testing.T) {
	engine, accounts, _, _ := newTestEngine(t, testConfig())
	seedAccount(t, accounts, "alice@example.com", "correct-password-123", nil)

	if _, err := engine.Login(context.Background(), "  Alice@Example.COM ", "correct-password-123"); err != nil {
		t.Fatalf("Login with unnormalized email failed: %v", err)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	engine, accounts, _, _ := newTestEngine(t, testConfig())
	seedAccount(t, accounts, "alice@example.com", "correct-password-123", nil)

	_, err := engine.Login(context.Background(), "alice@example.com", "wrong-password-456")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestLoginUnknownEmailSameError(t *testing.T) {
	engine, accounts, _, _ := newTestEngine(t, testConfig())
	seedAccount(t, accounts, "alice@example.com", "correct-password-123", nil)

	wrongPass := func() error {
		_, err := engine.Login(context.Background(), "alice@example.com", "wrong-password-456")
		return err
	}
	unknown := func() error {
		_, err := engine.Login(context.Background(), "nobody@example.com", "wrong-password-456")
		return err
	}

	errA, errB := wrongPass(), unknown()
	if !errors.Is(errA, ErrInvalidCredentials) || !errors.Is(errB, ErrInvalidCredentials) {
		t.Fatalf("expected uniform ErrInvalidCredentials, got %v / %v", errA, errB)
	}
	if errA.Error() != errB.Error() {
		t.Fatal("wrong-password and unknown-email must be indistinguishable")
	}
}

func TestLoginEmptyPasswordRejected(t *testing.T) {
	engine, accounts, _, _ := newTestEngine(t, testConfig())
	seedAccount(t, accounts, "alice@example.com", "correct-password-123", nil)

	_, err := engine.Login(context.Background(), "alice@example.com", "")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestLoginUnverifiedEmail(t *testing.T) {
	engine, accounts, _, _ := newTestEngine(t, testConfig())
	seedAccount(t, accounts, "alice@example.com", "correct-password-123", func(a *Account) {
		a.EmailVerified = false
	})

	_, err := engine.Login(context.Background(), "alice@example.com", "correct-password-123")
	if !errors.Is(err, ErrEmailNotVerified) {
		t.Fatalf("expected ErrEmailNotVerified, got %v", err)
	}

	// The unverified signal only fires on the right password; a wrong
	// password must look like any other credential failure.
	_, err = engine.Login(context.Background(), "alice@example.com", "wrong-password-456")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestLoginSuspendedAndBanned(t *testing.T) {
	engine, accounts, _, _ := newTestEngine(t, testConfig())
	seedAccount(t, accounts, "suspended@example.com", "correct-password-123", func(a *Account) {
		a.Status = StatusSuspended
	})
	seedAccount(t, accounts, "banned@example.com", "correct-password-123", func(a *Account) {
		a.Status = StatusBanned
	})

	if _, err := engine.Login(context.Background(), "suspended@example.com", "correct-password-123"); !errors.Is(err, ErrAccountSuspended) {
		t.Fatalf("expected ErrAccountSuspended, got %v", err)
	}
	if _, err := engine.Login(context.Background(), "banned@example.com", "correct-password-123"); !errors.Is(err, ErrAccountBanned) {
		t.Fatalf("expected ErrAccountBanned, got %v", err)
	}
}

func TestLoginCooldownAfterThreeFailures(t *testing.T) {
	engine, accounts, _, _ := newTestEngine(t, testConfig())
	seedAccount(t, accounts, "alice@example.com", "correct-password-123", nil)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := engine.Login(ctx, "alice@example.com", "wrong-password-456"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i+1, err)
		}
	}

	_, err := engine.Login(ctx, "alice@example.com", "correct-password-123")
	var locked *LockedError
	if !errors.As(err, &locked) {
		t.Fatalf("expected LockedError after 3 failures, got %v", err)
	}
	if locked.RetryAfter <= 0 || locked.RetryAfter > time.Minute {
		t.Fatalf("unexpected cooldown duration %v", locked.RetryAfter)
	}
}

func TestLockoutShortCircuitsBeforeStoreLookup(t *testing.T) {
	engine, accounts, _, _ := newTestEngine(t, testConfig())
	seedAccount(t, accounts, "alice@example.com", "correct-password-123", nil)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, _ = engine.Login(ctx, "alice@example.com", "wrong-password-456")
	}

	before := accounts.findByEmailCalls
	_, err := engine.Login(ctx, "alice@example.com", "correct-password-123")
	if !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected lockout, got %v", err)
	}
	if accounts.findByEmailCalls != before {
		t.Fatal("locked login must not reach the account store")
	}
}

func TestLockoutHardLockAfterFiveFailures(t *testing.T) {
	engine, accounts, _, mr := newTestEngine(t, testConfig())
	seedAccount(t, accounts, "alice@example.com", "correct-password-123", nil)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, _ = engine.Login(ctx, "alice@example.com", "wrong-password-456")
		// Step past the 60s cooldown between attempts; with 5 total
		// failures the lock escalates to the long tier anyway.
		mr.FastForward(61 * time.Second)
	}

	_, err := engine.Login(ctx, "alice@example.com", "correct-password-123")
	var locked *LockedError
	if !errors.As(err, &locked) {
		t.Fatalf("expected LockedError after 5 failures, got %v", err)
	}
	if locked.RetryAfter <= time.Minute {
		t.Fatalf("expected long lock tier, got %v", locked.RetryAfter)
	}
}

func TestLockoutExpiresAndResets(t *testing.T) {
	engine, accounts, _, mr := newTestEngine(t, testConfig())
	seedAccount(t, accounts, "alice@example.com", "correct-password-123", nil)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, _ = engine.Login(ctx, "alice@example.com", "wrong-password-456")
	}
	mr.FastForward(61 * time.Second)

	res, err := engine.Login(ctx, "alice@example.com", "correct-password-123")
	if err != nil {
		t.Fatalf("Login after cooldown failed: %v", err)
	}
	if res.AccessToken == "" {
		t.Fatal("expected tokens after cooldown")
	}

	// Success reset the counter: two fresh failures must not lock.
	_, _ = engine.Login(ctx, "alice@example.com", "wrong-password-456")
	_, _ = engine.Login(ctx, "alice@example.com", "wrong-password-456")
	if _, err := engine.Login(ctx, "alice@example.com", "correct-password-123"); err != nil {
		t.Fatalf("expected counter reset after success, got %v", err)
	}
}

func TestLoginMetrics(t *testing.T) {
	engine, accounts, _, _ := newTestEngine(t, testConfig())
	seedAccount(t, accounts, "alice@example.com", "correct-password-123", nil)

	ctx := context.Background()
	_, _ = engine.Login(ctx, "alice@example.com", "correct-password-123")
	_, _ = engine.Login(ctx, "alice@example.com", "wrong-password-456")

	snap := engine.MetricsSnapshot()
	if snap.Counters[MetricLoginSuccess] != 1 {
		t.Fatalf("expected 1 login success, got %d", snap.Counters[MetricLoginSuccess])
	}
	if snap.Counters[MetricLoginFailure] != 1 {
		t.Fatalf("expected 1 login failure, got %d", snap.Counters[MetricLoginFailure])
	}
	if snap.Counters[MetricSessionCreated] != 1 {
		t.Fatalf("expected 1 session created, got %d", snap.Counters[MetricSessionCreated])
	}
}
