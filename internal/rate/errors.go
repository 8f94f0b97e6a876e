package rate

import "errors"

var (
	// ErrLocked is returned when an identifier/IP is inside a cooldown or
	// lockout window.
	ErrLocked = errors.New("locked out")
	// ErrLimited is returned when a fixed-window budget is spent.
	ErrLimited = errors.New("window limit exceeded")
	// ErrRedisUnavailable wraps Redis transport failures.
	ErrRedisUnavailable = errors.New("rate limiter redis unavailable")
)
