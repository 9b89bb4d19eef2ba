// Package sentcard escalates card SMS messages that never got a delivery report.
package sentcard

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jwalitptl/card-notifier/internal/channel"
	"github.com/jwalitptl/card-notifier/internal/clock"
	"github.com/jwalitptl/card-notifier/internal/model"
	"github.com/jwalitptl/card-notifier/internal/repository"
	"github.com/jwalitptl/card-notifier/internal/service/smsmessage"
	apperrors "github.com/jwalitptl/card-notifier/pkg/errors"
	"github.com/jwalitptl/card-notifier/pkg/logbuffer"
	"github.com/jwalitptl/card-notifier/pkg/logger"
)

type Config struct {
	IdleMinutes  int
	WatchedTypes []model.SmsMessageType
	From         string
	// FallbackRecipient receives notices for SMS whose card or owner is gone.
	FallbackRecipient string
}

type Notifier struct {
	tracker  *smsmessage.IdleTracker
	sms      repository.SmsMessageRepository
	resolver *Resolver
	email    channel.EmailChannel
	clock    clock.Clock
	logger   *logger.Logger
	cfg      Config
}

func NewNotifier(
	tracker *smsmessage.IdleTracker,
	sms repository.SmsMessageRepository,
	resolver *Resolver,
	email channel.EmailChannel,
	clk clock.Clock,
	log *logger.Logger,
	cfg Config,
) *Notifier {
	return &Notifier{
		tracker:  tracker,
		sms:      sms,
		resolver: resolver,
		email:    email,
		clock:    clk,
		logger:   log,
		cfg:      cfg,
	}
}

// FindIdle returns the messages the next NotifyUndelivered pass would escalate.
func (n *Notifier) FindIdle(ctx context.Context) ([]*model.SmsMessage, error) {
	return n.tracker.FindIdle(ctx, n.cfg.IdleMinutes, n.cfg.WatchedTypes...)
}

// NotifyUndelivered emails a notice for every idle SMS and then force-stops it,
// so each message is escalated at most once. It returns how many were escalated.
func (n *Notifier) NotifyUndelivered(ctx context.Context, sink logbuffer.Sink) (int, error) {
	idle, err := n.FindIdle(ctx)
	if err != nil {
		return 0, err
	}

	notified := 0
	for _, msg := range idle {
		if err := ctx.Err(); err != nil {
			return notified, err
		}

		notice, err := n.compose(ctx, msg)
		if err != nil {
			return notified, err
		}
		if notice.to == "" {
			sink.Printf("sms message %d has no one to notify, left as %s", msg.ID, msg.Status)
			continue
		}

		if err := n.email.Send(ctx, n.cfg.From, notice.to, notice.subject, notice.body); err != nil {
			sink.Printf("sms message %d notice to %s failed: %v", msg.ID, notice.to, err)
			n.logger.Warn("Undelivered card notice failed", "sms_id", msg.ID, "to", notice.to, "error", err.Error())
			continue
		}

		msg.Status = model.SmsMessageStatusForcedStop
		msg.UpdatedAt = n.clock.Now()
		if err := n.sms.Update(ctx, msg); err != nil {
			return notified, apperrors.Persistence("update sms message", err)
		}
		notified++
		sink.Printf("sms message %d (%s) to %s escalated to %s", msg.ID, msg.Type, msg.Recipient, notice.to)
	}

	return notified, nil
}

type notice struct {
	to      string
	subject string
	body    string
}

func (n *Notifier) compose(ctx context.Context, msg *model.SmsMessage) (notice, error) {
	card, err := msg.CardRef().Resolve(ctx, n.resolver.Card)
	if err != nil {
		return notice{}, err
	}

	var owner *model.User
	if card != nil {
		if owner, err = n.resolver.User(ctx, card.UserID); err != nil {
			return notice{}, err
		}
	}

	idleFor := n.clock.Now().Sub(msg.UpdatedAt).Truncate(time.Minute)

	if card == nil || owner == nil || owner.Email == "" {
		var b strings.Builder
		fmt.Fprintf(&b, "SMS message %d of type %s to %s has not been delivered after %s.\n", msg.ID, msg.Type, msg.Recipient, idleFor)
		if card != nil {
			fmt.Fprintf(&b, "It carried card %d sent to %s.\n", card.ID, card.FullName)
		} else if ref := msg.CardRef(); ref.Valid {
			fmt.Fprintf(&b, "It referenced card %d, which no longer exists.\n", ref.ID)
		}
		return notice{
			to:      n.cfg.FallbackRecipient,
			subject: fmt.Sprintf("Undelivered SMS #%d", msg.ID),
			body:    b.String(),
		}, nil
	}

	name := card.FullName
	if name == "" {
		name = msg.Recipient
	}
	return notice{
		to:      owner.Email,
		subject: fmt.Sprintf("Your card to %s was not delivered", name),
		body: fmt.Sprintf(
			"Hi %s,\n\nThe card you sent to %s (%s) on %s has not been delivered after %s.\nYou may want to resend it or reach them another way.\n",
			owner.Username,
			name,
			msg.Recipient,
			card.DateSent.In(owner.Location()).Format("Jan 2, 2006 15:04"),
			idleFor,
		),
	}, nil
}
