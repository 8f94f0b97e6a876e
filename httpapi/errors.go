package httpapi

import (
	"errors"
	"net/http"

	"github.com/lumenlms/authcore"
)

// Stable machine-readable error codes. Adding a code is safe; changing one
// breaks deployed clients.
const (
	codeInvalidCredentials   = "INVALID_CREDENTIALS"
	codeAccountLocked        = "ACCOUNT_LOCKED"
	codeRateLimited          = "RATE_LIMITED"
	codeEmailExists          = "EMAIL_EXISTS"
	codeEmailNotVerified     = "EMAIL_NOT_VERIFIED"
	codeEmailUnconfirmed     = "EMAIL_UNCONFIRMED"
	codeWeakPassword         = "WEAK_PASSWORD"
	codeInvalidRole          = "INVALID_ROLE"
	codeAccountSuspended     = "ACCOUNT_SUSPENDED"
	codeAccountBanned        = "ACCOUNT_BANNED"
	codeInvalidCode          = "INVALID_CODE"
	codeCodeAttemptsExceeded = "CODE_ATTEMPTS_EXCEEDED"
	codeInvalidResetCode     = "INVALID_RESET_CODE"
	codeIncorrectPassword    = "INCORRECT_PASSWORD"
	codeInvalidRefreshToken  = "INVALID_REFRESH_TOKEN"
	codeAccountNotFound      = "ACCOUNT_NOT_FOUND"
	codeStoreUnavailable     = "STORE_UNAVAILABLE"
	codeBadRequest           = "BAD_REQUEST"
	codeInternal             = "INTERNAL"
)

// writeEngineError maps an engine error to its HTTP status and stable code.
// Lockouts get 423 with a retryAfter so clients can render a countdown.
func writeEngineError(w http.ResponseWriter, err error) {
	var locked *authcore.LockedError
	if errors.As(err, &locked) {
		writeErrorBody(w, http.StatusLocked, errorBody{
			Code:       codeAccountLocked,
			Message:    "too many failed attempts, try again later",
			RetryAfter: int64(locked.RetryAfter.Seconds()),
		})
		return
	}

	switch {
	case errors.Is(err, authcore.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, codeInvalidCredentials, "invalid email or password")
	case errors.Is(err, authcore.ErrAccountLocked):
		writeError(w, http.StatusLocked, codeAccountLocked, "too many failed attempts, try again later")
	case errors.Is(err, authcore.ErrEmailExists):
		writeError(w, http.StatusConflict, codeEmailExists, "email already registered")
	case errors.Is(err, authcore.ErrEmailNotVerified):
		writeError(w, http.StatusForbidden, codeEmailNotVerified, "email address not verified")
	case errors.Is(err, authcore.ErrEmailUnconfirmed):
		writeError(w, http.StatusForbidden, codeEmailUnconfirmed, "email address must be confirmed first")
	case errors.Is(err, authcore.ErrWeakPassword):
		writeError(w, http.StatusUnprocessableEntity, codeWeakPassword, "password does not meet requirements")
	case errors.Is(err, authcore.ErrInvalidRole):
		writeError(w, http.StatusUnprocessableEntity, codeInvalidRole, "role not allowed")
	case errors.Is(err, authcore.ErrAccountSuspended):
		writeError(w, http.StatusForbidden, codeAccountSuspended, "account suspended")
	case errors.Is(err, authcore.ErrAccountBanned):
		writeError(w, http.StatusForbidden, codeAccountBanned, "account banned")
	case errors.Is(err, authcore.ErrCodeAttemptsExceeded):
		writeError(w, http.StatusTooManyRequests, codeCodeAttemptsExceeded, "too many wrong codes, request a new one")
	case errors.Is(err, authcore.ErrInvalidResetCode):
		writeError(w, http.StatusBadRequest, codeInvalidResetCode, "invalid or expired reset code")
	case errors.Is(err, authcore.ErrInvalidCode):
		writeError(w, http.StatusBadRequest, codeInvalidCode, "invalid or expired code")
	case errors.Is(err, authcore.ErrIncorrectPassword):
		writeError(w, http.StatusForbidden, codeIncorrectPassword, "current password is incorrect")
	case errors.Is(err, authcore.ErrInvalidRefreshToken):
		writeError(w, http.StatusUnauthorized, codeInvalidRefreshToken, "invalid refresh token")
	case errors.Is(err, authcore.ErrAccountNotFound):
		writeError(w, http.StatusNotFound, codeAccountNotFound, "account not found")
	case errors.Is(err, authcore.ErrStoreUnavailable):
		writeError(w, http.StatusServiceUnavailable, codeStoreUnavailable, "backing store unavailable")
	default:
		writeError(w, http.StatusInternalServerError, codeInternal, "internal error")
	}
}
