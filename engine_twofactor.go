package authcore

import (
	"context"
	"errors"
	"fmt"

	"github.com/lumenlms/authcore/internal"
	"github.com/lumenlms/authcore/internal/stores"
)

// issueTwoFactorChallenge converts a password-verified login into a pending
// challenge: an opaque temp token for the client and a numeric code for the
// account's inbox. No session exists until the code is confirmed.
func (e *Engine) issueTwoFactorChallenge(ctx context.Context, account *Account) (*LoginResult, error) {
	challengeID, err := internal.NewChallengeID()
	if err != nil {
		return nil, err
	}
	code, err := internal.NewOTP(e.config.TwoFactor.CodeDigits)
	if err != nil {
		return nil, err
	}

	challenge := &stores.TwoFactorChallenge{
		AccountID: account.ID,
		CodeHash:  internal.HashSecret([]byte(code)),
		ExpiresAt: expiryUnix(e.config.TwoFactor.ChallengeTTL),
	}
	if err := e.twoFactor.Save(ctx, challengeID, challenge, e.config.TwoFactor.ChallengeTTL); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if err := e.mailer.SendTwoFactorCode(ctx, account.Email, code); err != nil {
		// A challenge the user can never answer is garbage; drop it.
		_ = e.twoFactor.Delete(ctx, challengeID)
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.metricInc(MetricTwoFactorRequired)
	e.emitAudit(ctx, auditEventTwoFactorRequired, true, account.ID, "", nil, nil)

	return &LoginResult{
		TwoFactorRequired: true,
		TempToken:         challengeID,
	}, nil
}

// VerifyTwoFactor converts a pending challenge into a full session. Every
// failure shape (unknown temp token, expired challenge, wrong code) maps
// to the same [ErrInvalidCode] so the temp token cannot be probed
// separately from the code. Attempt exhaustion surfaces as
// [ErrCodeAttemptsExceeded] after destroying the challenge.
func (e *Engine) VerifyTwoFactor(ctx context.Context, tempToken, code string) (*LoginResult, error) {
	if e == nil || e.accounts == nil {
		return nil, ErrEngineNotReady
	}
	if tempToken == "" || code == "" {
		return nil, ErrInvalidCode
	}

	challenge, err := e.twoFactor.Consume(ctx, tempToken, internal.HashSecret([]byte(code)), e.config.TwoFactor.MaxAttempts)
	if err != nil {
		e.metricInc(MetricTwoFactorFailure)
		mapped := ErrInvalidCode
		if errors.Is(err, stores.ErrCodeAttemptsExceeded) {
			mapped = ErrCodeAttemptsExceeded
		} else if errors.Is(err, stores.ErrBackendUnavailable) {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		if recordErr := e.lockout.RecordFailure(ctx, "", clientIPFromContext(ctx)); recordErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, recordErr)
		}
		e.emitAudit(ctx, auditEventTwoFactorFailure, false, "", "", mapped, nil)
		return nil, mapped
	}

	account, err := e.accounts.FindByID(ctx, challenge.AccountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			e.metricInc(MetricTwoFactorFailure)
			e.emitAudit(ctx, auditEventTwoFactorFailure, false, challenge.AccountID, "", ErrAccountNotFound, nil)
			return nil, ErrInvalidCode
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if statusErr := statusToError(account.Status); statusErr != nil {
		e.metricInc(MetricTwoFactorFailure)
		e.emitAudit(ctx, auditEventTwoFactorFailure, false, account.ID, "", statusErr, nil)
		return nil, statusErr
	}

	if err := e.lockout.Reset(ctx, normalizeEmail(account.Email), clientIPFromContext(ctx)); err != nil {
		e.emitAudit(ctx, auditEventTwoFactorSuccess, true, account.ID, "", err, func() map[string]string {
			return map[string]string{"warning": "lockout_reset_failed"}
		})
	}

	access, refresh, sessionID, err := e.mintSession(ctx, account)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricTwoFactorSuccess)
	e.emitAudit(ctx, auditEventTwoFactorSuccess, true, account.ID, sessionID, nil, nil)

	return &LoginResult{
		AccessToken:  access,
		RefreshToken: refresh,
		Account:      account.Snapshot(),
	}, nil
}

// SetTwoFactor toggles the account's second-factor requirement. Disabling
// requires no code: the caller already holds an authenticated session.
func (e *Engine) SetTwoFactor(ctx context.Context, accountID string, enabled bool) error {
	if e == nil || e.accounts == nil {
		return ErrEngineNotReady
	}
	if err := e.accounts.SetTwoFactor(ctx, accountID, enabled); err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}
