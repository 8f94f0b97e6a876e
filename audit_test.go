package authcore

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"
)

// captureSink records emitted events for inspection.
type captureSink struct {
	mu     sync.Mutex
	events []AuditEvent
}

func (s *captureSink) Emit(_ context.Context, event AuditEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *captureSink) all() []AuditEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]AuditEvent, len(s.events))
	copy(out, s.events)
	return out
}

func (s *captureSink) types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.events))
	for i, e := range s.events {
		out[i] = e.EventType
	}
	return out
}

// blockingSink holds every Emit until released, to force buffer saturation.
type blockingSink struct {
	release chan struct{}
}

func (s *blockingSink) Emit(context.Context, AuditEvent) {
	<-s.release
}

func TestJSONWriterSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)

	sink.Emit(context.Background(), AuditEvent{
		Timestamp: time.Now(),
		EventType: auditEventLoginSuccess,
		AccountID: "acct-1",
		Success:   true,
	})
	sink.Emit(context.Background(), AuditEvent{
		Timestamp: time.Now(),
		EventType: auditEventLoginFailure,
		Error:     "invalid credentials",
	})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}

	var first AuditEvent
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("line 1 is not valid JSON: %v", err)
	}
	if first.EventType != auditEventLoginSuccess || !first.Success {
		t.Fatalf("unexpected first event: %+v", first)
	}
}

func TestDispatcherDeliversAll(t *testing.T) {
	sink := &captureSink{}
	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 16}, sink)

	for i := 0; i < 10; i++ {
		d.Emit(context.Background(), AuditEvent{EventType: auditEventLogout})
	}
	d.Close()

	if got := len(sink.all()); got != 10 {
		t.Fatalf("expected 10 delivered events, got %d", got)
	}
	if d.Dropped() != 0 {
		t.Fatalf("expected no drops, got %d", d.Dropped())
	}
}

func TestDispatcherDropsWhenSaturated(t *testing.T) {
	sink := &blockingSink{release: make(chan struct{})}
	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)

	// The first event occupies the worker, the second fills the buffer,
	// everything after that must be shed without blocking.
	for i := 0; i < 10; i++ {
		d.Emit(context.Background(), AuditEvent{EventType: auditEventLoginFailure})
	}

	if d.Dropped() == 0 {
		t.Fatal("expected dropped events under saturation")
	}

	close(sink.release)
	d.Close()
}

func TestDispatcherDisabled(t *testing.T) {
	d := newAuditDispatcher(AuditConfig{Enabled: false}, &captureSink{})
	if d != nil {
		t.Fatal("disabled audit must not start a dispatcher")
	}

	// Nil dispatchers are safe to use.
	d.Emit(context.Background(), AuditEvent{EventType: auditEventLogout})
	d.Close()
	if d.Dropped() != 0 {
		t.Fatal("nil dispatcher reported drops")
	}
}

func TestDispatcherCloseIdempotent(t *testing.T) {
	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 4}, &captureSink{})
	d.Close()
	d.Close()

	// Emitting after close is a no-op.
	d.Emit(context.Background(), AuditEvent{EventType: auditEventLogout})
}

func TestEngineEmitsAuditTrail(t *testing.T) {
	_, rdb := newTestRedis(t)
	accounts := newMemAccounts()
	mailer := newMemMailer()
	sink := &captureSink{}

	cfg := testConfig()
	cfg.Audit.Enabled = true
	cfg.Audit.BufferSize = 64

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithAccountStore(accounts).
		WithMailer(mailer).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	seedAccount(t, accounts, "alice@example.com", "correct horse battery", nil)

	ctx := WithClientIP(context.Background(), "203.0.113.9")
	if _, err := engine.Login(ctx, "alice@example.com", "wrong"); err == nil {
		t.Fatal("expected login failure")
	}
	if _, err := engine.Login(ctx, "alice@example.com", "correct horse battery"); err != nil {
		t.Fatalf("login failed: %v", err)
	}

	// Close drains the dispatcher, so every event is visible afterwards.
	engine.Close()

	types := sink.types()
	var sawFailure, sawSuccess bool
	for _, typ := range types {
		switch typ {
		case auditEventLoginFailure:
			sawFailure = true
		case auditEventLoginSuccess:
			sawSuccess = true
		}
	}
	if !sawFailure || !sawSuccess {
		t.Fatalf("expected failure and success events, got %v", types)
	}

	for _, event := range sink.all() {
		if event.IP != "203.0.113.9" {
			t.Fatalf("expected client IP on event %q, got %q", event.EventType, event.IP)
		}
		if event.Timestamp.IsZero() {
			t.Fatalf("event %q missing timestamp", event.EventType)
		}
	}
}
