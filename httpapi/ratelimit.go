package httpapi

import (
	"errors"
	"net"
	"net/http"

	"github.com/lumenlms/authcore/internal/rate"
)

// limitByIP wraps a route with a per-IP fixed-window budget. The sensitive
// auth endpoints each get their own window so a burst of registrations
// cannot starve logins.
func limitByIP(limiter *rate.Window, onLimited func()) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter == nil {
				next.ServeHTTP(w, r)
				return
			}

			retryAfter, err := limiter.Allow(r.Context(), clientIP(r))
			if err != nil {
				if errors.Is(err, rate.ErrLimited) {
					if onLimited != nil {
						onLimited()
					}
					writeErrorBody(w, http.StatusTooManyRequests, errorBody{
						Code:       codeRateLimited,
						Message:    "too many requests",
						RetryAfter: int64(retryAfter.Seconds()),
					})
					return
				}
				// Redis being down must not take logins with it.
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP trusts chi's RealIP middleware to have rewritten RemoteAddr from
// X-Forwarded-For when the service runs behind a proxy.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
