package client

import (
	"context"
	"net/http"

	"github.com/lumenlms/authcore"
)

// LoginOutcome is the result of a login attempt. When TwoFactorRequired is
// set the client holds no session yet; pass TempToken and the emailed code
// to [Client.VerifyTwoFactor] to finish.
type LoginOutcome struct {
	User              *authcore.AccountSnapshot
	TwoFactorRequired bool
	TempToken         string
}

type sessionBody struct {
	User         authcore.AccountSnapshot `json:"user"`
	AccessToken  string                   `json:"accessToken"`
	RefreshToken string                   `json:"refreshToken"`
}

// Login authenticates with email and password. On success the session is
// installed and persisted; on a two-factor account the outcome carries the
// challenge instead.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginOutcome, error) {
	var body struct {
		sessionBody
		TwoFactorRequired bool   `json:"twoFactorRequired"`
		TempToken         string `json:"tempToken"`
	}
	err := c.post(ctx, "/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, &body)
	if err != nil {
		return nil, err
	}

	if body.TwoFactorRequired {
		return &LoginOutcome{TwoFactorRequired: true, TempToken: body.TempToken}, nil
	}

	c.setSession(body.AccessToken, body.RefreshToken, &body.User)
	return &LoginOutcome{User: &body.User}, nil
}

// VerifyTwoFactor completes a two-factor login.
func (c *Client) VerifyTwoFactor(ctx context.Context, tempToken, code string) (*authcore.AccountSnapshot, error) {
	var body sessionBody
	err := c.post(ctx, "/auth/verify-2fa", map[string]string{
		"tempToken": tempToken,
		"code":      code,
	}, &body)
	if err != nil {
		return nil, err
	}

	c.setSession(body.AccessToken, body.RefreshToken, &body.User)
	return &body.User, nil
}

// CheckEmail reports whether an email is already registered.
func (c *Client) CheckEmail(ctx context.Context, email string) (exists, verified bool, err error) {
	var body struct {
		Exists   bool `json:"exists"`
		Verified bool `json:"verified"`
	}
	err = c.post(ctx, "/auth/check-email", map[string]string{"email": email}, &body)
	return body.Exists, body.Verified, err
}

// SendVerification requests an email confirmation code ahead of
// registration.
func (c *Client) SendVerification(ctx context.Context, email, name string) error {
	return c.post(ctx, "/auth/send-verification", map[string]string{
		"email": email,
		"name":  name,
	}, nil)
}

// VerifyEmailCode submits the emailed confirmation code. On a wrong code
// the remaining attempt budget is returned.
func (c *Client) VerifyEmailCode(ctx context.Context, email, code string) (verified bool, remaining int, err error) {
	var body struct {
		Verified          bool `json:"verified"`
		RemainingAttempts int  `json:"remainingAttempts"`
	}
	err = c.post(ctx, "/auth/verify-email-code", map[string]string{
		"email": email,
		"code":  code,
	}, &body)
	return body.Verified, body.RemainingAttempts, err
}

// Register creates an account for a confirmed email and installs the
// resulting session.
func (c *Client) Register(ctx context.Context, name, email, password string, role authcore.Role) (*authcore.AccountSnapshot, error) {
	var body sessionBody
	err := c.post(ctx, "/auth/register", map[string]string{
		"name":     name,
		"email":    email,
		"password": password,
		"role":     string(role),
	}, &body)
	if err != nil {
		return nil, err
	}

	c.setSession(body.AccessToken, body.RefreshToken, &body.User)
	return &body.User, nil
}

// Logout revokes the session server-side and always clears local state,
// even when the server call fails: an unreachable server must not pin a
// user into a session they asked to leave.
func (c *Client) Logout(ctx context.Context) error {
	c.mu.Lock()
	refreshToken := c.tokens.RefreshToken
	c.mu.Unlock()

	var err error
	if refreshToken != "" {
		err = c.post(ctx, "/auth/logout", map[string]string{"refreshToken": refreshToken}, nil)
	}
	c.clearSession(false)
	return err
}

// ForgotPassword requests a reset code. The server responds identically
// for unknown emails.
func (c *Client) ForgotPassword(ctx context.Context, email string) error {
	return c.post(ctx, "/auth/forgot-password", map[string]string{"email": email}, nil)
}

// ResetPassword sets a new password using an emailed reset code.
func (c *Client) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	return c.post(ctx, "/auth/reset-password", map[string]string{
		"email":       email,
		"code":        code,
		"newPassword": newPassword,
	}, nil)
}

// ChangePassword rotates the password for the logged-in account. The
// server revokes every session, this one included, so the caller should
// expect to log in again once the current access token ages out.
func (c *Client) ChangePassword(ctx context.Context, currentPassword, newPassword string) error {
	return c.Do(ctx, http.MethodPost, "/auth/change-password", map[string]string{
		"currentPassword": currentPassword,
		"newPassword":     newPassword,
	}, nil)
}

// SetTwoFactor enables or disables email two-factor for the logged-in
// account.
func (c *Client) SetTwoFactor(ctx context.Context, enabled bool) error {
	return c.Do(ctx, http.MethodPut, "/auth/two-factor", map[string]bool{"enabled": enabled}, nil)
}

// Permissions fetches the permission list for the caller's role.
func (c *Client) Permissions(ctx context.Context) ([]string, error) {
	var body struct {
		Role        authcore.Role `json:"role"`
		Permissions []string      `json:"permissions"`
	}
	if err := c.Do(ctx, http.MethodGet, "/auth/permissions", nil, &body); err != nil {
		return nil, err
	}
	return body.Permissions, nil
}

// LogoutAll revokes every session for the account, then clears local
// state.
func (c *Client) LogoutAll(ctx context.Context) (int, error) {
	var body struct {
		SessionsRevoked int `json:"sessionsRevoked"`
	}
	err := c.Do(ctx, http.MethodPost, "/auth/logout-all", nil, &body)
	c.clearSession(false)
	return body.SessionsRevoked, err
}
