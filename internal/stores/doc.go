// Package stores implements the short-lived challenge records backing email
// verification, password reset, and two-factor login: Redis-persisted binary
// records with TTL expiry, constant-time secret comparison, and WATCH-based
// consume so concurrent attempts cannot under-count failures.
package stores
