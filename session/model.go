// Package session persists refresh sessions in Redis: one record per
// device login, holding the SHA-256 of the current refresh secret. Rotation
// swaps the hash atomically so a presented stale secret can never mint
// tokens, and a per-account index set supports invalidate-all on password
// change.
package session

// Session is one live refresh session. The refresh secret itself never
// touches Redis; only its hash does.
type Session struct {
	SessionID   string
	AccountID   string
	RefreshHash [32]byte
	Device      string
	CreatedAt   int64
	ExpiresAt   int64
}
