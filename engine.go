package authcore

import (
	"context"
	"strings"
	"time"

	"github.com/lumenlms/authcore/internal/rate"
	"github.com/lumenlms/authcore/internal/stores"
	"github.com/lumenlms/authcore/password"
	"github.com/lumenlms/authcore/session"
	"github.com/lumenlms/authcore/token"
)

// Engine orchestrates every authentication flow. Build one through
// [Builder]; all methods are safe for concurrent use afterwards.
type Engine struct {
	config   Config
	accounts AccountStore
	mailer   Mailer

	hasher    *password.Hasher
	tokens    *token.Manager
	sessions  *session.Store
	verifySt  *stores.CodeStore
	verified  *stores.MarkerStore
	resetSt   *stores.CodeStore
	twoFactor *stores.TwoFactorStore
	lockout   *rate.Lockout

	audit   *auditDispatcher
	metrics *Metrics
}

// Close flushes the audit dispatcher. The engine must not be used after.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// MetricsSnapshot copies the engine counters for export.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}}
	}
	return e.metrics.Snapshot()
}

// AuditDropped reports audit events shed under backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// AccountByID resolves an account for the auth middleware. The per-request
// lookup trades a store round-trip for freshness of role and status.
func (e *Engine) AccountByID(ctx context.Context, id string) (*Account, error) {
	if e == nil || e.accounts == nil {
		return nil, ErrEngineNotReady
	}
	return e.accounts.FindByID(ctx, id)
}

// Permissions returns the permission names granted to a role. Unknown roles
// get an empty set, not an error: a stale token with a retired role must
// not crash the permissions endpoint.
func (e *Engine) Permissions(role Role) []string {
	perms := e.config.Permissions[role]
	out := make([]string, len(perms))
	copy(out, perms)
	return out
}

// Tokens exposes the token manager to the auth middleware.
func (e *Engine) Tokens() *token.Manager {
	return e.tokens
}

// AccessTTL reports the configured access-token lifetime, used by clients
// to schedule proactive refresh.
func (e *Engine) AccessTTL() time.Duration {
	return e.config.Token.AccessTTL
}

// NoteRateLimited counts a request shed by the transport's per-IP window
// limiter. The limiter lives in the HTTP layer; the engine only owns the
// counter so it shows up in the same metrics snapshot as everything else.
func (e *Engine) NoteRateLimited() {
	e.metricInc(MetricRateLimited)
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) emitAudit(ctx context.Context, eventType string, success bool, accountID, sessionID string, failure error, metadata func() map[string]string) {
	if e == nil || e.audit == nil {
		return
	}

	event := AuditEvent{
		Timestamp: time.Now(),
		EventType: eventType,
		AccountID: accountID,
		SessionID: sessionID,
		IP:        clientIPFromContext(ctx),
		Device:    deviceFromContext(ctx),
		Success:   success,
	}
	if failure != nil {
		event.Error = failure.Error()
	}
	if metadata != nil {
		event.Metadata = metadata()
	}

	e.audit.Emit(ctx, event)
}

// normalizeEmail is the canonical form used for store keys and lookups.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func expiryUnix(ttl time.Duration) int64 {
	return time.Now().Add(ttl).Unix()
}

func statusToError(status AccountStatus) error {
	switch status {
	case StatusSuspended:
		return ErrAccountSuspended
	case StatusBanned:
		return ErrAccountBanned
	}
	return nil
}
