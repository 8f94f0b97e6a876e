package authcore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lumenlms/authcore/internal"
	"github.com/lumenlms/authcore/session"
)

// LockedError reports how long a locked identifier must wait. It unwraps to
// [ErrAccountLocked] so callers can match with errors.Is.
type LockedError struct {
	RetryAfter time.Duration
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("account temporarily locked, retry in %s", e.RetryAfter.Round(time.Second))
}

// Unwrap implements the errors.Is contract.
func (e *LockedError) Unwrap() error { return ErrAccountLocked }

// Login authenticates an email/password pair.
//
// The lockout check runs before any credential work: a locked identifier is
// rejected without touching the account store or the hasher. Accounts with
// two-factor enabled never receive tokens from Login; they get a challenge
// (temp token) and an emailed code, convertible through [Engine.VerifyTwoFactor].
func (e *Engine) Login(ctx context.Context, email, passwd string) (*LoginResult, error) {
	if e == nil || e.accounts == nil || e.hasher == nil {
		return nil, ErrEngineNotReady
	}

	email = normalizeEmail(email)
	ip := clientIPFromContext(ctx)

	if retry, err := e.lockout.Check(ctx, email, ip); err != nil {
		if retry > 0 {
			e.metricInc(MetricLoginLocked)
			e.emitAudit(ctx, auditEventLoginLocked, false, "", "", ErrAccountLocked, func() map[string]string {
				return map[string]string{"email": email}
			})
			return nil, &LockedError{RetryAfter: retry}
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if passwd == "" {
		return nil, e.loginFailure(ctx, email, ip, "", "empty_password")
	}

	account, err := e.accounts.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, e.loginFailure(ctx, email, ip, "", "account_not_found")
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	ok, err := e.hasher.Verify(passwd, account.PasswordHash)
	if err != nil || !ok {
		return nil, e.loginFailure(ctx, email, ip, account.ID, "password_mismatch")
	}

	if statusErr := statusToError(account.Status); statusErr != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, account.ID, "", statusErr, func() map[string]string {
			return map[string]string{"email": email, "reason": "account_status"}
		})
		return nil, statusErr
	}

	// Password correctness is established before the verification check so
	// the two failure codes do not leak extra information in combination.
	if !account.EmailVerified {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, account.ID, "", ErrEmailNotVerified, func() map[string]string {
			return map[string]string{"email": email, "reason": "email_not_verified"}
		})
		return nil, ErrEmailNotVerified
	}

	if account.TwoFactor {
		return e.issueTwoFactorChallenge(ctx, account)
	}

	if err := e.lockout.Reset(ctx, email, ip); err != nil {
		// Best effort: a stale counter only costs the user headroom.
		e.emitAudit(ctx, auditEventLoginSuccess, true, account.ID, "", err, func() map[string]string {
			return map[string]string{"warning": "lockout_reset_failed"}
		})
	}

	access, refresh, sessionID, err := e.mintSession(ctx, account)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, account.ID, sessionID, nil, nil)

	return &LoginResult{
		AccessToken:  access,
		RefreshToken: refresh,
		Account:      account.Snapshot(),
	}, nil
}

func (e *Engine) loginFailure(ctx context.Context, email, ip, accountID, reason string) error {
	if err := e.lockout.RecordFailure(ctx, email, ip); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	e.metricInc(MetricLoginFailure)
	e.emitAudit(ctx, auditEventLoginFailure, false, accountID, "", ErrInvalidCredentials, func() map[string]string {
		return map[string]string{"email": email, "reason": reason}
	})
	return ErrInvalidCredentials
}

// mintSession creates a session record, the refresh token wrapping its
// secret, and a matching access token.
func (e *Engine) mintSession(ctx context.Context, account *Account) (access, refresh, sessionID string, err error) {
	sid, err := internal.NewSessionID()
	if err != nil {
		return "", "", "", err
	}
	sessionID = sid.String()

	secret, err := internal.NewRefreshSecret()
	if err != nil {
		return "", "", "", err
	}

	now := time.Now()
	record := &session.Session{
		SessionID:   sessionID,
		AccountID:   account.ID,
		RefreshHash: internal.HashSecret(secret[:]),
		Device:      deviceFromContext(ctx),
		CreatedAt:   now.Unix(),
		ExpiresAt:   now.Add(e.config.Token.RefreshTTL).Unix(),
	}
	if err := e.sessions.Create(ctx, record); err != nil {
		return "", "", "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	refresh, err = internal.EncodeRefreshToken(sessionID, secret)
	if err != nil {
		return "", "", "", err
	}

	access, err = e.tokens.Issue(account.ID, string(account.Role), sessionID)
	if err != nil {
		return "", "", "", err
	}

	e.metricInc(MetricSessionCreated)
	return access, refresh, sessionID, nil
}
