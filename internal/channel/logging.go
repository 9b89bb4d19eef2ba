package channel

import (
	"context"
	"sync/atomic"

	"github.com/jwalitptl/card-notifier/pkg/logger"
)

// LogSMS writes messages to the log instead of a provider. Used in local mode.
type LogSMS struct {
	logger *logger.Logger
	sent   atomic.Int64
}

func NewLogSMS(log *logger.Logger) *LogSMS {
	return &LogSMS{logger: log}
}

func (c *LogSMS) Send(_ context.Context, recipient, message string) error {
	c.sent.Add(1)
	c.logger.Info("SMS (mock)", "to", recipient, "message", message)
	return nil
}

func (c *LogSMS) Sent() int64 {
	return c.sent.Load()
}

// LogEmail writes emails to the log instead of an SMTP relay.
type LogEmail struct {
	logger *logger.Logger
	sent   atomic.Int64
}

func NewLogEmail(log *logger.Logger) *LogEmail {
	return &LogEmail{logger: log}
}

func (c *LogEmail) Send(_ context.Context, from, to, subject, body string) error {
	c.sent.Add(1)
	c.logger.Info("Email (mock)", "from", from, "to", to, "subject", subject, "body_length", len(body))
	return nil
}

func (c *LogEmail) Sent() int64 {
	return c.sent.Load()
}
