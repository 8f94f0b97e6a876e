package mailer

import (
	"context"
	"errors"
	"fmt"

	"github.com/mrz1836/postmark"
)

// PostmarkConfig holds the Postmark credentials and sender identity.
// SenderEmail establishes the From address; SupportEmail is the Reply-To so
// student responses reach a monitored inbox.
type PostmarkConfig struct {
	ServerToken  string
	AccountToken string
	SenderEmail  string
	SupportEmail string
}

type postmarkSender struct {
	client *postmark.Client
	config PostmarkConfig
}

// NewPostmarkSender creates the production email transport. Tokens are
// required: a silently unconfigured mailer would drop verification codes.
func NewPostmarkSender(cfg PostmarkConfig) (EmailSender, error) {
	if cfg.ServerToken == "" {
		return nil, errors.New("postmark server token required")
	}
	if cfg.SenderEmail == "" {
		return nil, errors.New("postmark sender email required")
	}

	return &postmarkSender{
		client: postmark.NewClient(cfg.ServerToken, cfg.AccountToken),
		config: cfg,
	}, nil
}

func (s *postmarkSender) Send(ctx context.Context, msg Message) error {
	resp, err := s.client.SendEmail(ctx, postmark.Email{
		From:     s.config.SenderEmail,
		ReplyTo:  s.config.SupportEmail,
		To:       msg.To,
		Subject:  msg.Subject,
		HTMLBody: msg.BodyHTML,
		Tag:      msg.Tag,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	if resp.ErrorCode != 0 {
		return fmt.Errorf("%w: postmark error %d: %s", ErrSendFailed, resp.ErrorCode, resp.Message)
	}
	return nil
}
