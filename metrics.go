package authcore

import "sync/atomic"

// MetricID identifies one engine counter.
type MetricID uint16

const (
	// MetricLoginSuccess counts successful logins.
	MetricLoginSuccess MetricID = iota
	// MetricLoginFailure counts failed logins.
	MetricLoginFailure
	// MetricLoginLocked counts logins rejected by the lockout policy.
	MetricLoginLocked
	// MetricTwoFactorRequired counts logins deferred to a second factor.
	MetricTwoFactorRequired
	// MetricTwoFactorSuccess counts confirmed two-factor challenges.
	MetricTwoFactorSuccess
	// MetricTwoFactorFailure counts failed two-factor confirmations.
	MetricTwoFactorFailure
	// MetricRegisterSuccess counts created accounts.
	MetricRegisterSuccess
	// MetricRegisterDuplicate counts registrations rejected as duplicates.
	MetricRegisterDuplicate
	// MetricVerificationSent counts issued email verification codes.
	MetricVerificationSent
	// MetricVerificationFailure counts failed code confirmations.
	MetricVerificationFailure
	// MetricRefreshSuccess counts successful token refreshes.
	MetricRefreshSuccess
	// MetricRefreshFailure counts rejected refresh tokens.
	MetricRefreshFailure
	// MetricLogout counts logout operations.
	MetricLogout
	// MetricSessionCreated counts minted sessions.
	MetricSessionCreated
	// MetricSessionInvalidated counts destroyed sessions.
	MetricSessionInvalidated
	// MetricResetRequested counts password reset requests.
	MetricResetRequested
	// MetricResetConfirmed counts confirmed password resets.
	MetricResetConfirmed
	// MetricResetFailure counts failed reset confirmations.
	MetricResetFailure
	// MetricPasswordChanged counts successful password changes.
	MetricPasswordChanged
	// MetricRateLimited counts requests shed by the window limiter.
	MetricRateLimited

	metricCount
)

// Metrics is a fixed-size set of atomic counters. Inc is wait-free; it sits
// on the login path and must never block.
type Metrics struct {
	counters [metricCount]atomic.Uint64
}

// MetricsSnapshot is a point-in-time copy of all counters.
type MetricsSnapshot struct {
	Counters map[MetricID]uint64
}

func newMetrics(cfg MetricsConfig) *Metrics {
	if !cfg.Enabled {
		return nil
	}
	return &Metrics{}
}

// Inc adds one to the counter. Nil receivers are a no-op so the engine can
// run without metrics.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || id >= metricCount {
		return
	}
	m.counters[id].Add(1)
}

// String returns the stable snake_case name of the counter, used as the
// metric name suffix by the prometheus exporter.
func (id MetricID) String() string {
	if int(id) < len(metricNames) {
		return metricNames[id]
	}
	return "unknown"
}

var metricNames = [metricCount]string{
	MetricLoginSuccess:        "login_success",
	MetricLoginFailure:        "login_failure",
	MetricLoginLocked:         "login_locked",
	MetricTwoFactorRequired:   "two_factor_required",
	MetricTwoFactorSuccess:    "two_factor_success",
	MetricTwoFactorFailure:    "two_factor_failure",
	MetricRegisterSuccess:     "register_success",
	MetricRegisterDuplicate:   "register_duplicate",
	MetricVerificationSent:    "verification_sent",
	MetricVerificationFailure: "verification_failure",
	MetricRefreshSuccess:      "refresh_success",
	MetricRefreshFailure:      "refresh_failure",
	MetricLogout:              "logout",
	MetricSessionCreated:      "session_created",
	MetricSessionInvalidated:  "session_invalidated",
	MetricResetRequested:      "reset_requested",
	MetricResetConfirmed:      "reset_confirmed",
	MetricResetFailure:        "reset_failure",
	MetricPasswordChanged:     "password_changed",
	MetricRateLimited:         "rate_limited",
}

// Snapshot copies every counter.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snapshot := MetricsSnapshot{Counters: make(map[MetricID]uint64, metricCount)}
	if m == nil {
		return snapshot
	}
	for id := MetricID(0); id < metricCount; id++ {
		snapshot.Counters[id] = m.counters[id].Load()
	}
	return snapshot
}
