package worker

import (
	"context"

	"github.com/jwalitptl/card-notifier/internal/clock"
	"github.com/jwalitptl/card-notifier/internal/service/delayedmessage"
	"github.com/jwalitptl/card-notifier/internal/service/sentcard"
	"github.com/jwalitptl/card-notifier/internal/service/summary"
	"github.com/jwalitptl/card-notifier/pkg/logbuffer"
)

const (
	JobDelayedMessages  = "delayed-messages"
	JobUndeliveredCards = "undelivered-cards"
	JobDailySummary     = "daily-summary"
)

// Job is one periodic unit of work. Run returns how many items it handled
// and writes one line per item to sink.
type Job interface {
	Name() string
	Run(ctx context.Context, sink logbuffer.Sink) (int, error)
}

type funcJob struct {
	name string
	run  func(ctx context.Context, sink logbuffer.Sink) (int, error)
}

func (j funcJob) Name() string { return j.name }

func (j funcJob) Run(ctx context.Context, sink logbuffer.Sink) (int, error) {
	return j.run(ctx, sink)
}

// NewJob wraps a function as a Job.
func NewJob(name string, run func(ctx context.Context, sink logbuffer.Sink) (int, error)) Job {
	return funcJob{name: name, run: run}
}

// DelayedMessagesJob sends every delayed message due at the time of the tick.
func DelayedMessagesJob(svc *delayedmessage.Service, clk clock.Clock) Job {
	return NewJob(JobDelayedMessages, func(ctx context.Context, sink logbuffer.Sink) (int, error) {
		res, err := svc.SendDue(ctx, clk.Now(), sink)
		return res.Sent, err
	})
}

func UndeliveredCardsJob(n *sentcard.Notifier) Job {
	return NewJob(JobUndeliveredCards, n.NotifyUndelivered)
}

func DailySummaryJob(s *summary.Scheduler) Job {
	return NewJob(JobDailySummary, s.Run)
}
