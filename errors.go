package authcore

import "errors"

var (
	// ErrInvalidCredentials is returned when the email/password pair does not
	// match a verified account. It is deliberately indistinguishable between
	// "no such account" and "wrong password".
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountNotFound is returned by account lookups for unknown IDs.
	ErrAccountNotFound = errors.New("account not found")
	// ErrEmailExists is returned when registration targets an email that is
	// already bound to an account.
	ErrEmailExists = errors.New("email already registered")
	// ErrEmailNotVerified is returned by Login when the account exists and the
	// password matched but the email was never confirmed.
	ErrEmailNotVerified = errors.New("email not verified")
	// ErrEmailUnconfirmed is returned by Register when the email has no valid
	// verification marker (the code confirmation step was skipped or expired).
	ErrEmailUnconfirmed = errors.New("email verification required before registration")
	// ErrWeakPassword is returned when the supplied password fails the policy.
	ErrWeakPassword = errors.New("password does not meet policy")
	// ErrInvalidRole is returned when registration names an unknown role.
	ErrInvalidRole = errors.New("invalid account role")
	// ErrAccountSuspended is returned for accounts in the suspended state.
	ErrAccountSuspended = errors.New("account suspended")
	// ErrAccountBanned is returned for accounts in the banned state.
	ErrAccountBanned = errors.New("account banned")

	// ErrAccountLocked is returned when the failure counter crossed the
	// lockout threshold. The lockout check runs before any credential
	// comparison.
	ErrAccountLocked = errors.New("account temporarily locked")

	// ErrInvalidCode is returned by code confirmation (email verification and
	// two-factor) for a wrong, expired, or unknown code. A single error covers
	// all cases so callers cannot probe which part was wrong.
	ErrInvalidCode = errors.New("invalid or expired code")
	// ErrCodeAttemptsExceeded is returned when a challenge burned through its
	// attempt budget and was destroyed.
	ErrCodeAttemptsExceeded = errors.New("code attempts exceeded")
	// ErrInvalidResetCode is returned by ResetPassword for a code that does
	// not match the most recently issued reset code for the email.
	ErrInvalidResetCode = errors.New("invalid or expired reset code")
	// ErrIncorrectPassword is returned by ChangePassword when the current
	// password does not verify against the stored digest.
	ErrIncorrectPassword = errors.New("current password incorrect")

	// ErrInvalidRefreshToken is returned when a refresh token cannot be
	// associated with a live session, including after rotation made the
	// presented secret stale.
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	// ErrTwoFactorRequired is returned by token-only login helpers when the
	// account requires a second factor.
	ErrTwoFactorRequired = errors.New("two-factor verification required")

	// ErrStoreUnavailable wraps backend (Redis/Mongo) failures so transport
	// layers can map them to 503 instead of leaking driver errors.
	ErrStoreUnavailable = errors.New("auth backend unavailable")
	// ErrEngineNotReady is returned when an Engine method is called on a
	// partially constructed engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)
