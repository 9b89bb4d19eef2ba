package channel

import (
	"context"
	"fmt"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"gopkg.in/gomail.v2"

	"github.com/jwalitptl/card-notifier/pkg/logger"
)

type SMTPConfig struct {
	Host       string
	Port       int
	Username   string
	Password   string
	Retries    uint
	RetryDelay time.Duration
}

// SMTPEmail sends plain-text mail through an SMTP relay.
type SMTPEmail struct {
	dialer *gomail.Dialer
	cfg    SMTPConfig
	logger *logger.Logger
}

func NewSMTPEmail(cfg SMTPConfig, log *logger.Logger) *SMTPEmail {
	if cfg.Retries == 0 {
		cfg.Retries = 1
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	return &SMTPEmail{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		cfg:    cfg,
		logger: log,
	}
}

func (s *SMTPEmail) Send(ctx context.Context, from, to, subject, body string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	err := retry.Do(
		func() error {
			return s.dialer.DialAndSend(m)
		},
		retry.Attempts(s.cfg.Retries),
		retry.Delay(s.cfg.RetryDelay),
		retry.MaxDelay(time.Minute),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			s.logger.Warn("Retrying SMTP send after error", "attempt", n, "to", to, "error", err.Error())
		}),
	)
	if err != nil {
		return fmt.Errorf("smtp send to %s: %w", to, err)
	}
	return nil
}
