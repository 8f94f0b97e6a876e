package authcore

import (
	"context"
	"time"
)

// Role is the coarse authorization class of an account. Roles are fixed at
// registration; administrative reassignment happens outside this engine.
type Role string

const (
	// RoleStudent is the default role for self-registered accounts.
	RoleStudent Role = "student"
	// RoleInstructor marks accounts that can author courses and grade work.
	RoleInstructor Role = "instructor"
	// RoleAdmin marks administrative accounts.
	RoleAdmin Role = "admin"
)

// Valid reports whether r is one of the three known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleInstructor, RoleAdmin:
		return true
	}
	return false
}

// AccountStatus represents the lifecycle state of an account.
type AccountStatus string

const (
	// StatusActive is the normal state.
	StatusActive AccountStatus = "active"
	// StatusSuspended blocks authentication until an administrator clears it.
	StatusSuspended AccountStatus = "suspended"
	// StatusBanned permanently blocks authentication.
	StatusBanned AccountStatus = "banned"
)

// Account is the persisted principal record. PasswordHash is a PHC-encoded
// argon2id digest and must never be serialized outward; [Account.Snapshot]
// produces the transport-safe view.
type Account struct {
	ID              string        `bson:"_id"`
	Email           string        `bson:"email"`
	Name            string        `bson:"name"`
	PasswordHash    string        `bson:"password_hash" json:"-"`
	Role            Role          `bson:"role"`
	Status          AccountStatus `bson:"status"`
	EmailVerified   bool          `bson:"email_verified"`
	TwoFactor       bool          `bson:"two_factor_enabled"`
	CreatedAt       time.Time     `bson:"created_at"`
	PasswordChanged time.Time     `bson:"password_changed_at,omitempty"`
}

// AccountSnapshot is the outward representation of an account: everything a
// client may see, with the credential digest stripped.
type AccountSnapshot struct {
	ID            string        `json:"id"`
	Email         string        `json:"email"`
	Name          string        `json:"name"`
	Role          Role          `json:"role"`
	Status        AccountStatus `json:"status"`
	EmailVerified bool          `json:"emailVerified"`
	TwoFactor     bool          `json:"twoFactorEnabled"`
	CreatedAt     time.Time     `json:"createdAt"`
}

// Snapshot strips the password digest and returns the transport-safe view.
func (a *Account) Snapshot() AccountSnapshot {
	return AccountSnapshot{
		ID:            a.ID,
		Email:         a.Email,
		Name:          a.Name,
		Role:          a.Role,
		Status:        a.Status,
		EmailVerified: a.EmailVerified,
		TwoFactor:     a.TwoFactor,
		CreatedAt:     a.CreatedAt,
	}
}

// AccountStore is the persistence interface the engine requires. The
// mongostore package provides the production implementation. All mutations
// are field-level updates so concurrent requests cannot lose writes through
// whole-document rewrites.
type AccountStore interface {
	FindByEmail(ctx context.Context, email string) (*Account, error)
	FindByID(ctx context.Context, id string) (*Account, error)
	// Create inserts a new account. Implementations must return
	// [ErrEmailExists] when the email is already taken (unique index).
	Create(ctx context.Context, account *Account) error
	UpdatePasswordHash(ctx context.Context, id, hash string, changedAt time.Time) error
	SetEmailVerified(ctx context.Context, id string, verified bool) error
	SetTwoFactor(ctx context.Context, id string, enabled bool) error
}

// Mailer delivers the one-time codes the engine issues. Implementations live
// in the mailer package; failures are propagated so callers never believe a
// code was delivered when it was not.
type Mailer interface {
	SendVerificationCode(ctx context.Context, email, name, code string) error
	SendPasswordResetCode(ctx context.Context, email, code string) error
	SendTwoFactorCode(ctx context.Context, email, code string) error
}

// TokenPair is an access/refresh token pair bound to one session.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// LoginResult is returned by [Engine.Login] and [Engine.VerifyTwoFactor].
// Exactly one of the two shapes is populated: tokens plus account snapshot,
// or TwoFactorRequired plus TempToken.
type LoginResult struct {
	AccessToken  string
	RefreshToken string
	Account      AccountSnapshot

	TwoFactorRequired bool
	TempToken         string
}

// RegisterInput is the input for [Engine.Register].
type RegisterInput struct {
	Name     string
	Email    string
	Password string
	Role     Role
}

// RegisterResult is returned by [Engine.Register]. Registration auto-logs
// the new account in, so a token pair accompanies the snapshot.
type RegisterResult struct {
	Account      AccountSnapshot
	AccessToken  string
	RefreshToken string
}

// EmailStatus is returned by [Engine.CheckEmail]. CheckEmail reveals whether
// an address is registered; the forgot-password path never does.
type EmailStatus struct {
	Exists   bool
	Verified bool
}

// VerifyEmailResult reports the outcome of a code confirmation attempt.
// RemainingAttempts is only meaningful when Verified is false.
type VerifyEmailResult struct {
	Verified          bool
	RemainingAttempts int
}
