package authcore

import (
	"context"
	"errors"
	"testing"
	"time"
)

func seedTwoFactorAccount(t *testing.T, accounts *memAccounts) string {
	t.Helper()
	return seedAccount(t, accounts, "alice@example.com", "correct-password-123", func(a *Account) {
		a.TwoFactor = true
	})
}

func TestTwoFactorLoginReturnsChallengeNotTokens(t *testing.T) {
	engine, accounts, mailer, _ := newTestEngine(t, testConfig())
	seedTwoFactorAccount(t, accounts)

	res, err := engine.Login(context.Background(), "alice@example.com", "correct-password-123")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if !res.TwoFactorRequired {
		t.Fatal("expected TwoFactorRequired")
	}
	if res.TempToken == "" {
		t.Fatal("expected a temp token")
	}
	if res.AccessToken != "" || res.RefreshToken != "" {
		t.Fatal("a two-factor login must never return tokens directly")
	}
	if mailer.lastTwoFactor("alice@example.com") == "" {
		t.Fatal("expected a code to be mailed")
	}
}

func TestTwoFactorChallengeNotIssuedOnWrongPassword(t *testing.T) {
	engine, accounts, mailer, _ := newTestEngine(t, testConfig())
	seedTwoFactorAccount(t, accounts)

	_, err := engine.Login(context.Background(), "alice@example.com", "wrong-password-456")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if mailer.sendCount() != 0 {
		t.Fatal("no code may be sent before the password verifies")
	}
}

func TestVerifyTwoFactorSuccess(t *testing.T) {
	engine, accounts, mailer, _ := newTestEngine(t, testConfig())
	seedTwoFactorAccount(t, accounts)

	ctx := context.Background()
	challenge, err := engine.Login(ctx, "alice@example.com", "correct-password-123")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	res, err := engine.VerifyTwoFactor(ctx, challenge.TempToken, mailer.lastTwoFactor("alice@example.com"))
	if err != nil {
		t.Fatalf("VerifyTwoFactor failed: %v", err)
	}
	if res.AccessToken == "" || res.RefreshToken == "" {
		t.Fatal("expected a token pair after code confirmation")
	}
	if res.Account.Email != "alice@example.com" {
		t.Fatalf("unexpected account %q", res.Account.Email)
	}
}

func TestVerifyTwoFactorWrongCode(t *testing.T) {
	engine, accounts, mailer, _ := newTestEngine(t, testConfig())
	seedTwoFactorAccount(t, accounts)

	ctx := context.Background()
	challenge, err := engine.Login(ctx, "alice@example.com", "correct-password-123")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	code := mailer.lastTwoFactor("alice@example.com")
	wrong := "000000"
	if wrong == code {
		wrong = "111111"
	}

	if _, err := engine.VerifyTwoFactor(ctx, challenge.TempToken, wrong); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("expected ErrInvalidCode, got %v", err)
	}

	// The right code still works after a burned attempt.
	if _, err := engine.VerifyTwoFactor(ctx, challenge.TempToken, code); err != nil {
		t.Fatalf("VerifyTwoFactor after one miss failed: %v", err)
	}
}

func TestVerifyTwoFactorUnknownTempTokenSameError(t *testing.T) {
	engine, accounts, mailer, _ := newTestEngine(t, testConfig())
	seedTwoFactorAccount(t, accounts)

	ctx := context.Background()
	challenge, err := engine.Login(ctx, "alice@example.com", "correct-password-123")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	code := mailer.lastTwoFactor("alice@example.com")
	wrong := "000000"
	if wrong == code {
		wrong = "111111"
	}

	_, errWrongCode := engine.VerifyTwoFactor(ctx, challenge.TempToken, wrong)
	_, errBadToken := engine.VerifyTwoFactor(ctx, "no-such-challenge", code)
	if !errors.Is(errWrongCode, ErrInvalidCode) || !errors.Is(errBadToken, ErrInvalidCode) {
		t.Fatalf("expected uniform ErrInvalidCode, got %v / %v", errWrongCode, errBadToken)
	}
	if errWrongCode.Error() != errBadToken.Error() {
		t.Fatal("temp token must not be probeable separately from the code")
	}
}

func TestVerifyTwoFactorSingleUse(t *testing.T) {
	engine, accounts, mailer, _ := newTestEngine(t, testConfig())
	seedTwoFactorAccount(t, accounts)

	ctx := context.Background()
	challenge, err := engine.Login(ctx, "alice@example.com", "correct-password-123")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	code := mailer.lastTwoFactor("alice@example.com")

	if _, err := engine.VerifyTwoFactor(ctx, challenge.TempToken, code); err != nil {
		t.Fatalf("first VerifyTwoFactor failed: %v", err)
	}
	if _, err := engine.VerifyTwoFactor(ctx, challenge.TempToken, code); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("expected consumed challenge to reject replay, got %v", err)
	}
}

func TestVerifyTwoFactorAttemptsExhausted(t *testing.T) {
	cfg := testConfig()
	cfg.TwoFactor.MaxAttempts = 2
	engine, accounts, mailer, _ := newTestEngine(t, cfg)
	seedTwoFactorAccount(t, accounts)

	ctx := context.Background()
	challenge, err := engine.Login(ctx, "alice@example.com", "correct-password-123")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	code := mailer.lastTwoFactor("alice@example.com")
	wrong := "000000"
	if wrong == code {
		wrong = "111111"
	}

	if _, err := engine.VerifyTwoFactor(ctx, challenge.TempToken, wrong); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("expected ErrInvalidCode, got %v", err)
	}
	if _, err := engine.VerifyTwoFactor(ctx, challenge.TempToken, wrong); !errors.Is(err, ErrCodeAttemptsExceeded) {
		t.Fatalf("expected ErrCodeAttemptsExceeded, got %v", err)
	}

	// The challenge is destroyed; even the right code is dead now.
	if _, err := engine.VerifyTwoFactor(ctx, challenge.TempToken, code); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("expected destroyed challenge, got %v", err)
	}
}

func TestVerifyTwoFactorExpiredChallenge(t *testing.T) {
	engine, accounts, mailer, mr := newTestEngine(t, testConfig())
	seedTwoFactorAccount(t, accounts)

	ctx := context.Background()
	challenge, err := engine.Login(ctx, "alice@example.com", "correct-password-123")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	mr.FastForward(6 * time.Minute)

	code := mailer.lastTwoFactor("alice@example.com")
	if _, err := engine.VerifyTwoFactor(ctx, challenge.TempToken, code); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("expected expired challenge to read as ErrInvalidCode, got %v", err)
	}
}

func TestTwoFactorMailFailureDropsChallenge(t *testing.T) {
	engine, accounts, mailer, _ := newTestEngine(t, testConfig())
	seedTwoFactorAccount(t, accounts)

	mailer.sendErr = errors.New("smtp down")
	_, err := engine.Login(context.Background(), "alice@example.com", "correct-password-123")
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected delivery failure to surface, got %v", err)
	}
}

func TestSetTwoFactorToggle(t *testing.T) {
	engine, accounts, _, _ := newTestEngine(t, testConfig())
	id := seedAccount(t, accounts, "alice@example.com", "correct-password-123", nil)

	ctx := context.Background()
	if err := engine.SetTwoFactor(ctx, id, true); err != nil {
		t.Fatalf("SetTwoFactor failed: %v", err)
	}
	if !accounts.get(id).TwoFactor {
		t.Fatal("expected two-factor enabled")
	}

	if err := engine.SetTwoFactor(ctx, "missing", true); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}
