// Package mailer delivers the one-time codes the engine issues. A low-level
// EmailSender (Postmark in production, a log/file sender in development)
// carries the transport; CodeMailer renders the messages and satisfies the
// engine's Mailer interface.
package mailer

import (
	"context"
	"errors"
	"fmt"
)

// ErrSendFailed wraps transport-level delivery failures.
var ErrSendFailed = errors.New("email send failed")

// Message is one outbound email.
type Message struct {
	To       string
	Subject  string
	BodyHTML string
	Tag      string
}

// EmailSender is the transport abstraction. Implementations must treat a
// returned nil as "accepted by the provider", not "delivered".
type EmailSender interface {
	Send(ctx context.Context, msg Message) error
}

// CodeMailer renders verification, reset, and two-factor messages and hands
// them to the sender. It implements the engine's Mailer interface.
type CodeMailer struct {
	sender  EmailSender
	appName string
}

// NewCodeMailer wraps sender with the application branding used in
// subjects and bodies.
func NewCodeMailer(sender EmailSender, appName string) *CodeMailer {
	if appName == "" {
		appName = "Lumen LMS"
	}
	return &CodeMailer{sender: sender, appName: appName}
}

// SendVerificationCode delivers the registration email confirmation code.
func (m *CodeMailer) SendVerificationCode(ctx context.Context, email, name, code string) error {
	return m.sender.Send(ctx, Message{
		To:       email,
		Subject:  fmt.Sprintf("%s: confirm your email", m.appName),
		BodyHTML: renderVerification(m.appName, name, code),
		Tag:      "email-verification",
	})
}

// SendPasswordResetCode delivers the password reset code.
func (m *CodeMailer) SendPasswordResetCode(ctx context.Context, email, code string) error {
	return m.sender.Send(ctx, Message{
		To:       email,
		Subject:  fmt.Sprintf("%s: password reset code", m.appName),
		BodyHTML: renderReset(m.appName, code),
		Tag:      "password-reset",
	})
}

// SendTwoFactorCode delivers the login step-up code.
func (m *CodeMailer) SendTwoFactorCode(ctx context.Context, email, code string) error {
	return m.sender.Send(ctx, Message{
		To:       email,
		Subject:  fmt.Sprintf("%s: your sign-in code", m.appName),
		BodyHTML: renderTwoFactor(m.appName, code),
		Tag:      "two-factor",
	})
}
