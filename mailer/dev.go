package mailer

import (
	"context"
	"log/slog"
	"sync"
)

// DevSender logs outbound messages instead of delivering them, for local
// development and tests. It also retains the last message per recipient so
// tests can read the code back.
type DevSender struct {
	logger *slog.Logger

	mu   sync.Mutex
	last map[string]Message
}

// NewDevSender creates a logging sender. A nil logger discards the log line
// but still records the message.
func NewDevSender(logger *slog.Logger) *DevSender {
	return &DevSender{
		logger: logger,
		last:   make(map[string]Message),
	}
}

// Send implements [EmailSender].
func (d *DevSender) Send(_ context.Context, msg Message) error {
	d.mu.Lock()
	d.last[msg.To] = msg
	d.mu.Unlock()

	if d.logger != nil {
		d.logger.Info("email (dev sender, not delivered)",
			slog.String("to", msg.To),
			slog.String("subject", msg.Subject),
			slog.String("tag", msg.Tag),
		)
	}
	return nil
}

// Last returns the most recent message sent to the recipient.
func (d *DevSender) Last(to string) (Message, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	msg, ok := d.last[to]
	return msg, ok
}
