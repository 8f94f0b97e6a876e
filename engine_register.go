package authcore

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"time"

	"github.com/google/uuid"
	"github.com/lumenlms/authcore/internal"
	"github.com/lumenlms/authcore/internal/stores"
)

// CheckEmail reports whether an email is registered and verified. Existence
// leaks here deliberately: the registration form needs it. The
// forgot-password path never uses this.
func (e *Engine) CheckEmail(ctx context.Context, email string) (*EmailStatus, error) {
	if e == nil || e.accounts == nil {
		return nil, ErrEngineNotReady
	}

	account, err := e.accounts.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return &EmailStatus{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return &EmailStatus{Exists: true, Verified: account.EmailVerified}, nil
}

// SendVerification issues a fresh verification code for a not-yet-registered
// email and delivers it. Reissuing replaces the outstanding code, so only
// the most recent one is ever valid.
func (e *Engine) SendVerification(ctx context.Context, email, name string) error {
	if e == nil || e.accounts == nil || e.mailer == nil {
		return ErrEngineNotReady
	}

	email = normalizeEmail(email)
	if _, err := mail.ParseAddress(email); err != nil {
		return ErrInvalidCode
	}

	_, err := e.accounts.FindByEmail(ctx, email)
	if err == nil {
		return ErrEmailExists
	}
	if !errors.Is(err, ErrAccountNotFound) {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	code, err := internal.NewOTP(e.config.Verification.CodeDigits)
	if err != nil {
		return err
	}
	if err := e.verifySt.Save(ctx, email, internal.HashSecret([]byte(code)), e.config.Verification.CodeTTL); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if err := e.mailer.SendVerificationCode(ctx, email, name, code); err != nil {
		_ = e.verifySt.Delete(ctx, email)
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.metricInc(MetricVerificationSent)
	e.emitAudit(ctx, auditEventVerificationSent, true, "", "", nil, func() map[string]string {
		return map[string]string{"email": email}
	})
	return nil
}

// VerifyEmailCode confirms a verification code. Success installs a
// single-use marker that authorizes the subsequent Register call. A wrong
// code burns one attempt and returns [ErrInvalidCode] together with a
// non-nil result carrying the remaining budget; an exhausted or expired
// code requires requesting a fresh one.
func (e *Engine) VerifyEmailCode(ctx context.Context, email, code string) (*VerifyEmailResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	email = normalizeEmail(email)
	remaining, err := e.verifySt.Consume(ctx, email, internal.HashSecret([]byte(code)), e.config.Verification.MaxAttempts)
	if err != nil {
		e.metricInc(MetricVerificationFailure)
		switch {
		case errors.Is(err, stores.ErrCodeMismatch):
			e.emitAudit(ctx, auditEventVerificationResult, false, "", "", ErrInvalidCode, func() map[string]string {
				return map[string]string{"email": email, "reason": "code_mismatch"}
			})
			return &VerifyEmailResult{RemainingAttempts: remaining}, ErrInvalidCode
		case errors.Is(err, stores.ErrCodeAttemptsExceeded):
			return nil, ErrCodeAttemptsExceeded
		case errors.Is(err, stores.ErrCodeNotFound):
			return nil, ErrInvalidCode
		default:
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}

	if err := e.verified.Set(ctx, email, e.config.Verification.MarkerTTL); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.emitAudit(ctx, auditEventVerificationResult, true, "", "", nil, func() map[string]string {
		return map[string]string{"email": email}
	})
	return &VerifyEmailResult{Verified: true}, nil
}

// Register creates the account after the email passed code confirmation.
// The account record does not exist until this point; abandoning the code
// flow leaves no trace beyond an expiring Redis key. Registration auto-logs
// the account in.
func (e *Engine) Register(ctx context.Context, input RegisterInput) (*RegisterResult, error) {
	if e == nil || e.accounts == nil {
		return nil, ErrEngineNotReady
	}

	email := normalizeEmail(input.Email)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, ErrEmailUnconfirmed
	}
	role := input.Role
	if role == "" {
		role = RoleStudent
	}
	if !role.Valid() || role == RoleAdmin {
		// Admin accounts are provisioned administratively, never
		// self-registered.
		return nil, ErrInvalidRole
	}
	if len(input.Password) < e.config.Password.MinLength {
		return nil, ErrWeakPassword
	}

	confirmed, err := e.verified.Consume(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !confirmed {
		return nil, ErrEmailUnconfirmed
	}

	hash, err := e.hasher.Hash(input.Password)
	if err != nil {
		return nil, err
	}

	account := &Account{
		ID:            uuid.NewString(),
		Email:         email,
		Name:          input.Name,
		PasswordHash:  hash,
		Role:          role,
		Status:        StatusActive,
		EmailVerified: true,
		CreatedAt:     time.Now(),
	}
	if err := e.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, ErrEmailExists) {
			e.metricInc(MetricRegisterDuplicate)
			e.emitAudit(ctx, auditEventRegisterFailure, false, "", "", ErrEmailExists, func() map[string]string {
				return map[string]string{"email": email}
			})
			return nil, ErrEmailExists
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	access, refresh, sessionID, err := e.mintSession(ctx, account)
	if err != nil {
		// The account exists; the caller can still log in normally.
		e.emitAudit(ctx, auditEventRegisterSuccess, true, account.ID, "", err, func() map[string]string {
			return map[string]string{"warning": "auto_login_failed"}
		})
		return &RegisterResult{Account: account.Snapshot()}, nil
	}

	e.metricInc(MetricRegisterSuccess)
	e.emitAudit(ctx, auditEventRegisterSuccess, true, account.ID, sessionID, nil, nil)

	return &RegisterResult{
		Account:      account.Snapshot(),
		AccessToken:  access,
		RefreshToken: refresh,
	}, nil
}
