package stores

import "errors"

var (
	// ErrCodeNotFound is returned when no record exists for the key, either
	// because none was issued or because the TTL elapsed.
	ErrCodeNotFound = errors.New("code record not found")
	// ErrCodeMismatch is returned when the presented secret does not match.
	// The attempt counter has already been advanced when this is returned.
	ErrCodeMismatch = errors.New("code secret mismatch")
	// ErrCodeAttemptsExceeded is returned when the attempt budget is spent;
	// the record is destroyed before this is returned.
	ErrCodeAttemptsExceeded = errors.New("code attempts exceeded")
	// ErrBackendUnavailable wraps Redis transport failures.
	ErrBackendUnavailable = errors.New("challenge store unavailable")
)
