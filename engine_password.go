package authcore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lumenlms/authcore/internal"
	"github.com/lumenlms/authcore/internal/stores"
)

// ForgotPassword issues a reset code when the email belongs to an account.
// The return is identical whether or not the account exists, so the endpoint
// cannot be used for account enumeration. Mailer failures for existing
// accounts are surfaced, because a user who never receives a promised code
// is worse than a retried request.
func (e *Engine) ForgotPassword(ctx context.Context, email string) error {
	if e == nil || e.accounts == nil || e.mailer == nil {
		return ErrEngineNotReady
	}

	email = normalizeEmail(email)
	account, err := e.accounts.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			e.emitAudit(ctx, auditEventResetRequested, true, "", "", nil, func() map[string]string {
				return map[string]string{"email": email, "known": "false"}
			})
			return nil
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	code, err := internal.NewOTP(e.config.Reset.CodeDigits)
	if err != nil {
		return err
	}
	if err := e.resetSt.Save(ctx, email, internal.HashSecret([]byte(code)), e.config.Reset.CodeTTL); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if err := e.mailer.SendPasswordResetCode(ctx, email, code); err != nil {
		_ = e.resetSt.Delete(ctx, email)
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.metricInc(MetricResetRequested)
	e.emitAudit(ctx, auditEventResetRequested, true, account.ID, "", nil, func() map[string]string {
		return map[string]string{"email": email, "known": "true"}
	})
	return nil
}

// ResetPassword consumes the reset code and replaces the digest. Every
// live session of the account is destroyed: a reset usually means the old
// password (and possibly old sessions) are compromised.
func (e *Engine) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	if e == nil || e.accounts == nil {
		return ErrEngineNotReady
	}

	email = normalizeEmail(email)
	if len(newPassword) < e.config.Password.MinLength {
		return ErrWeakPassword
	}

	if _, err := e.resetSt.Consume(ctx, email, internal.HashSecret([]byte(code)), e.config.Reset.MaxAttempts); err != nil {
		e.metricInc(MetricResetFailure)
		switch {
		case errors.Is(err, stores.ErrCodeMismatch), errors.Is(err, stores.ErrCodeNotFound), errors.Is(err, stores.ErrCodeAttemptsExceeded):
			e.emitAudit(ctx, auditEventResetFailure, false, "", "", ErrInvalidResetCode, func() map[string]string {
				return map[string]string{"email": email}
			})
			return ErrInvalidResetCode
		default:
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}

	account, err := e.accounts.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return ErrInvalidResetCode
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	hash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	if err := e.accounts.UpdatePasswordHash(ctx, account.ID, hash, time.Now()); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if _, err := e.LogoutAll(ctx, account.ID); err != nil {
		e.emitAudit(ctx, auditEventResetConfirmed, true, account.ID, "", err, func() map[string]string {
			return map[string]string{"warning": "session_invalidation_failed"}
		})
	}
	if err := e.lockout.Reset(ctx, email, clientIPFromContext(ctx)); err != nil {
		e.emitAudit(ctx, auditEventResetConfirmed, true, account.ID, "", err, func() map[string]string {
			return map[string]string{"warning": "lockout_reset_failed"}
		})
	}

	e.metricInc(MetricResetConfirmed)
	e.emitAudit(ctx, auditEventResetConfirmed, true, account.ID, "", nil, nil)
	return nil
}

// ChangePassword replaces the digest for an authenticated account after
// verifying the current password. Every session is invalidated, the
// caller's included: their unexpired access token carries them until the
// next refresh, which re-authenticates against the new credential.
func (e *Engine) ChangePassword(ctx context.Context, accountID, currentPassword, newPassword string) error {
	if e == nil || e.accounts == nil {
		return ErrEngineNotReady
	}
	if len(newPassword) < e.config.Password.MinLength {
		return ErrWeakPassword
	}

	account, err := e.accounts.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	ok, err := e.hasher.Verify(currentPassword, account.PasswordHash)
	if err != nil || !ok {
		e.emitAudit(ctx, auditEventPasswordChangeFail, false, accountID, "", ErrIncorrectPassword, nil)
		return ErrIncorrectPassword
	}
	if currentPassword == newPassword {
		return ErrWeakPassword
	}

	hash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	if err := e.accounts.UpdatePasswordHash(ctx, accountID, hash, time.Now()); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if _, err := e.LogoutAll(ctx, accountID); err != nil {
		e.emitAudit(ctx, auditEventPasswordChanged, true, accountID, "", err, func() map[string]string {
			return map[string]string{"warning": "session_invalidation_failed"}
		})
	}

	e.metricInc(MetricPasswordChanged)
	e.emitAudit(ctx, auditEventPasswordChanged, true, accountID, "", nil, nil)
	return nil
}
