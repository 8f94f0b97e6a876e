package authcore

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"time"
)

// AuditEvent is one security-relevant occurrence emitted by the engine.
type AuditEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType string            `json:"event_type"`
	AccountID string            `json:"account_id,omitempty"`
	SessionID string            `json:"session_id,omitempty"`
	IP        string            `json:"ip,omitempty"`
	Device    string            `json:"device,omitempty"`
	Success   bool              `json:"success"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

const (
	auditEventLoginSuccess       = "login.success"
	auditEventLoginFailure       = "login.failure"
	auditEventLoginLocked        = "login.locked"
	auditEventTwoFactorRequired  = "login.two_factor_required"
	auditEventTwoFactorSuccess   = "two_factor.success"
	auditEventTwoFactorFailure   = "two_factor.failure"
	auditEventRegisterSuccess    = "register.success"
	auditEventRegisterFailure    = "register.failure"
	auditEventVerificationSent   = "verification.sent"
	auditEventVerificationResult = "verification.result"
	auditEventRefreshSuccess     = "refresh.success"
	auditEventRefreshFailure     = "refresh.failure"
	auditEventLogout             = "logout"
	auditEventResetRequested     = "password_reset.requested"
	auditEventResetConfirmed     = "password_reset.confirmed"
	auditEventResetFailure       = "password_reset.failure"
	auditEventPasswordChanged    = "password.changed"
	auditEventPasswordChangeFail = "password.change_failure"
)

// AuditSink receives engine audit events. Emit must be cheap or internally
// buffered; it is called from the async dispatcher goroutine, never from
// the request path.
type AuditSink interface {
	Emit(ctx context.Context, event AuditEvent)
}

// NoOpSink discards all events.
type NoOpSink struct{}

// Emit implements [AuditSink].
func (NoOpSink) Emit(context.Context, AuditEvent) {}

// JSONWriterSink writes one JSON object per line to an io.Writer.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

// NewJSONWriterSink wraps w as an audit sink.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{writer: w}
}

// Emit implements [AuditSink].
func (s *JSONWriterSink) Emit(_ context.Context, event AuditEvent) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(data)
	_, _ = s.writer.Write([]byte("\n"))
}

// SlogSink forwards events to a structured logger.
type SlogSink struct {
	logger *slog.Logger
}

// NewSlogSink wraps logger as an audit sink.
func NewSlogSink(logger *slog.Logger) *SlogSink {
	return &SlogSink{logger: logger}
}

// Emit implements [AuditSink].
func (s *SlogSink) Emit(ctx context.Context, event AuditEvent) {
	if s == nil || s.logger == nil {
		return
	}
	attrs := []any{
		slog.String("event", event.EventType),
		slog.Bool("success", event.Success),
	}
	if event.AccountID != "" {
		attrs = append(attrs, slog.String("account_id", event.AccountID))
	}
	if event.SessionID != "" {
		attrs = append(attrs, slog.String("session_id", event.SessionID))
	}
	if event.IP != "" {
		attrs = append(attrs, slog.String("ip", event.IP))
	}
	if event.Error != "" {
		attrs = append(attrs, slog.String("error", event.Error))
	}
	for k, v := range event.Metadata {
		attrs = append(attrs, slog.String(k, v))
	}
	s.logger.LogAttrs(ctx, slog.LevelInfo, "audit", toAttrs(attrs)...)
}

func toAttrs(kv []any) []slog.Attr {
	attrs := make([]slog.Attr, 0, len(kv))
	for _, v := range kv {
		if attr, ok := v.(slog.Attr); ok {
			attrs = append(attrs, attr)
		}
	}
	return attrs
}
