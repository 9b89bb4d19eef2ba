// Package channel holds the SMS and email transports the jobs send through.
package channel

import "context"

// SmsChannel delivers one text message.
type SmsChannel interface {
	Send(ctx context.Context, recipient, message string) error
}

// EmailChannel delivers one email.
type EmailChannel interface {
	Send(ctx context.Context, from, to, subject, body string) error
}

// SmsFunc adapts a function to SmsChannel.
type SmsFunc func(ctx context.Context, recipient, message string) error

func (f SmsFunc) Send(ctx context.Context, recipient, message string) error {
	return f(ctx, recipient, message)
}

// EmailFunc adapts a function to EmailChannel.
type EmailFunc func(ctx context.Context, from, to, subject, body string) error

func (f EmailFunc) Send(ctx context.Context, from, to, subject, body string) error {
	return f(ctx, from, to, subject, body)
}

const (
	NameSMS   = "sms"
	NameEmail = "email"
)
