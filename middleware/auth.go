// Package middleware provides the per-request authentication gate used by
// every protected route: bearer extraction, pure token verification, and a
// single account-store lookup that keeps role and status fresh.
package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	authcore "github.com/lumenlms/authcore"
	"github.com/lumenlms/authcore/token"
)

// 401 codes, shared with the client SDK. TOKEN_EXPIRED is the only one that
// should trigger a silent refresh; everything else forces logout.
const (
	CodeUnauthenticated = "UNAUTHENTICATED"
	CodeTokenExpired    = "TOKEN_EXPIRED"
	CodeInvalidToken    = "INVALID_TOKEN"
	CodeUserNotFound    = "USER_NOT_FOUND"
	CodeForbidden       = "FORBIDDEN"
)

type principalContextKey struct{}

// Principal is the resolved caller attached to the request context. The
// account snapshot never carries the password digest.
type Principal struct {
	Account   authcore.AccountSnapshot
	SessionID string
}

// PrincipalFromContext returns the authenticated caller, if any.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(*Principal)
	return p, ok
}

// RequireAuth gates a route on a valid bearer token. The header check runs
// before anything else; verification is pure; the one store lookup resolves
// the live account so a suspension takes effect on the next request, not
// the next token renewal.
func RequireAuth(engine *authcore.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				writeError(w, http.StatusUnauthorized, CodeUnauthenticated, "unauthenticated")
				return
			}

			bearer, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				writeError(w, http.StatusUnauthorized, CodeUnauthenticated, "missing bearer token")
				return
			}

			claims, err := engine.Tokens().Verify(bearer)
			if err != nil {
				switch {
				case errors.Is(err, token.ErrExpired):
					writeError(w, http.StatusUnauthorized, CodeTokenExpired, "access token expired")
				default:
					writeError(w, http.StatusUnauthorized, CodeInvalidToken, "invalid access token")
				}
				return
			}

			account, err := engine.AccountByID(r.Context(), claims.Subject)
			if err != nil {
				if errors.Is(err, authcore.ErrAccountNotFound) {
					writeError(w, http.StatusUnauthorized, CodeUserNotFound, "account not found")
					return
				}
				writeError(w, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "account lookup failed")
				return
			}
			switch account.Status {
			case authcore.StatusSuspended:
				writeError(w, http.StatusForbidden, CodeForbidden, "account suspended")
				return
			case authcore.StatusBanned:
				writeError(w, http.StatusForbidden, CodeForbidden, "account banned")
				return
			}

			principal := &Principal{
				Account:   account.Snapshot(),
				SessionID: claims.SessionID,
			}
			ctx := context.WithValue(r.Context(), principalContextKey{}, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole gates a route on the caller holding one of the given roles.
// It must run inside RequireAuth.
func RequireRole(roles ...authcore.Role) func(http.Handler) http.Handler {
	allowed := make(map[authcore.Role]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := PrincipalFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, CodeUnauthenticated, "unauthenticated")
				return
			}
			if _, ok := allowed[principal.Account.Role]; !ok {
				writeError(w, http.StatusForbidden, CodeForbidden, "insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	raw := value[len(bearer):]
	if raw == "" {
		return "", false
	}
	return raw, true
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}
