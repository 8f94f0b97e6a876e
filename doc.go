// Package authcore implements the authentication and session-lifecycle
// engine for the Lumen LMS backend: credential verification, JWT access
// tokens, rotating opaque refresh tokens, email verification and password
// reset codes, two-factor login step-up, and failure lockout policy.
//
// The package is designed for concurrent server workloads: Engine methods
// are safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// authcore is the flow-controller surface. It exposes [Engine], [Builder],
// [Config], and value types (Account, LoginResult, MetricsSnapshot). All
// internal coordination (challenge stores, lockout counters, session
// encoding) lives under internal/ and is never exported. Persistence of
// account records is delegated to an [AccountStore] implementation
// (mongostore in this repository); email delivery is delegated to a
// [Mailer].
//
// # What this package must NOT do
//
//   - Expose Redis clients, internal stores, or encoding details in its
//     public API.
//   - Parse HTTP requests or write HTTP responses (httpapi owns that).
//   - Perform I/O outside of Engine methods (construction via Builder is
//     allocation-only until Build).
//
// # Performance contract
//
// Access-token verification is the hot path: it is pure signature + expiry
// checking with no Redis or Mongo round-trips. Login, Refresh, and the
// challenge flows are allowed one store round-trip per step.
package authcore
