package channel

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/jwalitptl/card-notifier/pkg/circuitbreaker"
	"github.com/jwalitptl/card-notifier/pkg/metrics"
)

// guard wraps one send with the breaker and the metrics shared by both channel kinds.
type guard struct {
	name    string
	breaker *circuitbreaker.CircuitBreaker
	metrics *metrics.Metrics
}

func (g guard) run(send func() error) error {
	var err error
	if g.breaker != nil {
		err = g.breaker.Execute(send)
	} else {
		err = send()
	}

	if g.metrics != nil {
		status := "success"
		switch {
		case errors.Is(err, circuitbreaker.ErrOpen):
			status = "rejected"
			g.metrics.BreakerRejections.WithLabelValues(g.name).Inc()
		case err != nil:
			status = "failure"
		}
		g.metrics.ChannelSends.WithLabelValues(g.name, status).Inc()
	}
	return err
}

// GuardedSMS adds an optional circuit breaker and send metrics to an SMS channel.
func GuardedSMS(next SmsChannel, breaker *circuitbreaker.CircuitBreaker, m *metrics.Metrics) SmsChannel {
	g := guard{name: NameSMS, breaker: breaker, metrics: m}
	return SmsFunc(func(ctx context.Context, recipient, message string) error {
		return g.run(func() error { return next.Send(ctx, recipient, message) })
	})
}

// GuardedEmail adds an optional circuit breaker and send metrics to an email channel.
func GuardedEmail(next EmailChannel, breaker *circuitbreaker.CircuitBreaker, m *metrics.Metrics) EmailChannel {
	g := guard{name: NameEmail, breaker: breaker, metrics: m}
	return EmailFunc(func(ctx context.Context, from, to, subject, body string) error {
		return g.run(func() error { return next.Send(ctx, from, to, subject, body) })
	})
}

// RateLimitedSMS blocks each send until the limiter admits it or ctx ends.
func RateLimitedSMS(next SmsChannel, limiter *rate.Limiter) SmsChannel {
	return SmsFunc(func(ctx context.Context, recipient, message string) error {
		if err := limiter.Wait(ctx); err != nil {
			return fmt.Errorf("sms rate limit: %w", err)
		}
		return next.Send(ctx, recipient, message)
	})
}
