package promexport

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/lumenlms/authcore"
)

// emptyAccounts satisfies the store interface without holding any accounts,
// enough to drive login failures through the engine.
type emptyAccounts struct{}

func (emptyAccounts) FindByEmail(context.Context, string) (*authcore.Account, error) {
	return nil, authcore.ErrAccountNotFound
}

func (emptyAccounts) FindByID(context.Context, string) (*authcore.Account, error) {
	return nil, authcore.ErrAccountNotFound
}

func (emptyAccounts) Create(context.Context, *authcore.Account) error { return nil }

func (emptyAccounts) UpdatePasswordHash(context.Context, string, string, time.Time) error {
	return nil
}

func (emptyAccounts) SetEmailVerified(context.Context, string, bool) error { return nil }
func (emptyAccounts) SetTwoFactor(context.Context, string, bool) error     { return nil }

type nopMailer struct{}

func (nopMailer) SendVerificationCode(context.Context, string, string, string) error { return nil }
func (nopMailer) SendPasswordResetCode(context.Context, string, string) error        { return nil }
func (nopMailer) SendTwoFactorCode(context.Context, string, string) error            { return nil }

func newTestEngine(t *testing.T) *authcore.Engine {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	cfg := authcore.DefaultConfig()
	cfg.Token.Secret = []byte("test-signing-secret-0123456789abcdef")
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Audit.Enabled = false

	engine, err := authcore.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithAccountStore(emptyAccounts{}).
		WithMailer(nopMailer{}).
		Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)
	return engine
}

func TestCollectorRegisters(t *testing.T) {
	engine := newTestEngine(t)
	collector := NewCollector(engine)

	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(collector))

	// Every engine counter plus the audit drop gauge.
	count := testutil.CollectAndCount(collector)
	require.Equal(t, len(engine.MetricsSnapshot().Counters)+1, count)
}

func TestCollectorCountsLoginFailures(t *testing.T) {
	engine := newTestEngine(t)
	collector := NewCollector(engine)

	for i := 0; i < 3; i++ {
		_, err := engine.Login(context.Background(), "ghost@example.com", "whatever")
		require.Error(t, err)
	}

	expected := `
# HELP authcore_login_failure_total Engine counter login_failure.
# TYPE authcore_login_failure_total counter
authcore_login_failure_total 3
`
	require.NoError(t, testutil.CollectAndCompare(collector, strings.NewReader(expected), "authcore_login_failure_total"))
}

func TestCollectorReportsAuditDrops(t *testing.T) {
	engine := newTestEngine(t)
	collector := NewCollector(engine)

	expected := `
# HELP authcore_audit_dropped_total Audit events dropped because the dispatcher buffer was full.
# TYPE authcore_audit_dropped_total counter
authcore_audit_dropped_total 0
`
	require.NoError(t, testutil.CollectAndCompare(collector, strings.NewReader(expected), "authcore_audit_dropped_total"))
}
