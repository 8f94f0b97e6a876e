package authcore

import (
	"context"
	"errors"
	"fmt"

	"github.com/lumenlms/authcore/internal"
	"github.com/lumenlms/authcore/session"
)

// RefreshResult carries the rotated token pair and a fresh account
// snapshot, so clients can pick up role or status changes on every refresh.
type RefreshResult struct {
	AccessToken  string
	RefreshToken string
	Account      AccountSnapshot
}

// Refresh exchanges a refresh token for a new access token, rotating the
// refresh secret in the same step. Rotation means a captured old refresh
// token dies the moment the legitimate client refreshes; the WATCH in the
// session store guarantees at most one of two racing refreshes wins.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	if e == nil || e.accounts == nil {
		return nil, ErrEngineNotReady
	}

	sessionID, secret, err := internal.DecodeRefreshToken(refreshToken)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		return nil, ErrInvalidRefreshToken
	}

	nextSecret, err := internal.NewRefreshSecret()
	if err != nil {
		return nil, err
	}

	record, err := e.sessions.Rotate(ctx, sessionID, internal.HashSecret(secret[:]), internal.HashSecret(nextSecret[:]))
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		switch {
		case errors.Is(err, session.ErrNotFound), errors.Is(err, session.ErrExpired), errors.Is(err, session.ErrRefreshMismatch):
			e.emitAudit(ctx, auditEventRefreshFailure, false, "", sessionID, err, nil)
			return nil, ErrInvalidRefreshToken
		default:
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}

	account, err := e.accounts.FindByID(ctx, record.AccountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			// Session outlived the account; tear it down.
			_ = e.sessions.Delete(ctx, sessionID)
			e.metricInc(MetricRefreshFailure)
			return nil, ErrInvalidRefreshToken
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if statusErr := statusToError(account.Status); statusErr != nil {
		_ = e.sessions.Delete(ctx, sessionID)
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshFailure, false, account.ID, sessionID, statusErr, nil)
		return nil, statusErr
	}

	newRefresh, err := internal.EncodeRefreshToken(sessionID, nextSecret)
	if err != nil {
		return nil, err
	}
	access, err := e.tokens.Issue(account.ID, string(account.Role), sessionID)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, account.ID, sessionID, nil, nil)

	return &RefreshResult{
		AccessToken:  access,
		RefreshToken: newRefresh,
		Account:      account.Snapshot(),
	}, nil
}

// Logout destroys the session behind a refresh token. It is idempotent and
// tolerant: an unparseable or already-dead token still succeeds, because
// the client is discarding its copy regardless and must never be stranded
// half logged out.
func (e *Engine) Logout(ctx context.Context, refreshToken string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	sessionID, _, err := internal.DecodeRefreshToken(refreshToken)
	if err != nil {
		return nil
	}
	if err := e.sessions.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.metricInc(MetricLogout)
	e.metricInc(MetricSessionInvalidated)
	e.emitAudit(ctx, auditEventLogout, true, "", sessionID, nil, nil)
	return nil
}

// LogoutAll destroys every session of an account, used by password reset
// and change.
func (e *Engine) LogoutAll(ctx context.Context, accountID string) (int, error) {
	if e == nil {
		return 0, ErrEngineNotReady
	}
	removed, err := e.sessions.DeleteAll(ctx, accountID)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	for i := 0; i < removed; i++ {
		e.metricInc(MetricSessionInvalidated)
	}
	return removed, nil
}
