// Package summary sends each active user one digest of their sent cards per
// local calendar day, starting when their timezone crosses midnight.
package summary

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jwalitptl/card-notifier/internal/channel"
	"github.com/jwalitptl/card-notifier/internal/clock"
	"github.com/jwalitptl/card-notifier/internal/model"
	"github.com/jwalitptl/card-notifier/internal/repository"
	apperrors "github.com/jwalitptl/card-notifier/pkg/errors"
	"github.com/jwalitptl/card-notifier/pkg/logbuffer"
	"github.com/jwalitptl/card-notifier/pkg/logger"
)

// maxListedCards bounds the card lines written into one digest body.
const maxListedCards = 25

type Config struct {
	// Window is how long after local midnight an offset stays due. Every tick
	// inside it retries users still missing today's summary, so it must span
	// several ticks. Values under a minute become a minute.
	Window  time.Duration
	From    string
	Subject string
}

type Scheduler struct {
	users     repository.UserRepository
	cards     repository.SentCardRepository
	summaries repository.SummaryEmailRepository
	email     channel.EmailChannel
	clock     clock.Clock
	logger    *logger.Logger
	cfg       Config
}

func NewScheduler(stores repository.Stores, email channel.EmailChannel, clk clock.Clock, log *logger.Logger, cfg Config) *Scheduler {
	if cfg.Window < time.Minute {
		cfg.Window = time.Minute
	}
	return &Scheduler{
		users:     stores.Users,
		cards:     stores.SentCards,
		summaries: stores.SummaryEmails,
		email:     email,
		clock:     clk,
		logger:    log,
		cfg:       cfg,
	}
}

// InMidnightWindow reports whether local lies in [00:00, 00:00+window).
func InMidnightWindow(local time.Time, window time.Duration) bool {
	if window < time.Minute {
		window = time.Minute
	}
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, local.Location())
	return local.Sub(midnight) < window
}

// DueOffsets returns the active-user offsets whose local clock is inside the
// window that opens at midnight.
func (s *Scheduler) DueOffsets(ctx context.Context, now time.Time) ([]int, error) {
	offsets, err := s.users.FindAllAvailableTimezoneOffset(ctx)
	if err != nil {
		return nil, apperrors.Persistence("list timezone offsets", err)
	}

	due := make([]int, 0, len(offsets))
	for _, offset := range offsets {
		if InMidnightWindow(now.In(model.OffsetLocation(offset)), s.cfg.Window) {
			due = append(due, offset)
		}
	}
	return due, nil
}

// Run emails every due user who has no summary for the current local day
// and returns how many were emailed. A user whose send failed is picked up
// again by the next run inside the window; one already emailed is not.
func (s *Scheduler) Run(ctx context.Context, sink logbuffer.Sink) (int, error) {
	now := s.clock.Now()

	offsets, err := s.DueOffsets(ctx, now)
	if err != nil {
		return 0, err
	}

	emailed := 0
	for _, offset := range offsets {
		users, err := s.users.FindActiveByTimezoneOffset(ctx, offset)
		if err != nil {
			return emailed, apperrors.Persistence("find users by offset", err)
		}

		for _, user := range users {
			if err := ctx.Err(); err != nil {
				return emailed, err
			}
			sent, err := s.summarize(ctx, user, now, sink)
			if err != nil {
				return emailed, err
			}
			if sent {
				emailed++
			}
		}
	}

	s.logger.Debug("Daily summary pass finished", "due_offsets", len(offsets), "emailed", emailed)
	return emailed, nil
}

func (s *Scheduler) summarize(ctx context.Context, user *model.User, now time.Time, sink logbuffer.Sink) (bool, error) {
	local := now.In(user.Location())
	dayStart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, local.Location())
	day := dayStart.Format("2006-01-02")

	exists, err := s.summaries.ExistsBetween(ctx, user.ID, model.SummaryTypeDaily, dayStart, dayStart.AddDate(0, 0, 1))
	if err != nil {
		return false, apperrors.Persistence("check summary email", err)
	}
	if exists {
		sink.Printf("user %d (%s) already has a summary for %s", user.ID, user.Username, day)
		return false, nil
	}

	if user.Email == "" {
		sink.Printf("user %d (%s) has no email address, summary for %s skipped", user.ID, user.Username, day)
		return false, nil
	}

	since := user.CreatedAt
	last, err := s.summaries.FindLatest(ctx, user.ID, model.SummaryTypeDaily)
	if err != nil {
		return false, apperrors.Persistence("find latest summary email", err)
	}
	if last != nil {
		since = last.CreatedAt
	}

	cards, err := s.cards.FindByUserCreatedBetween(ctx, user.ID, since, now)
	if err != nil {
		return false, apperrors.Persistence("find sent cards", err)
	}

	body := digestBody(user, cards, day)
	if err := s.email.Send(ctx, s.cfg.From, user.Email, s.cfg.Subject, body); err != nil {
		sink.Printf("user %d (%s) summary for %s failed: %v", user.ID, user.Username, day, err)
		s.logger.Warn("Daily summary send failed", "user_id", user.ID, "error", err.Error())
		return false, nil
	}

	summary := &model.SummaryEmail{
		UserID:               user.ID,
		SummaryType:          model.SummaryTypeDaily,
		CardsIncludedOnEmail: len(cards),
		CreatedAt:            now,
	}
	if err := s.summaries.Create(ctx, summary); err != nil {
		return false, apperrors.Persistence("create summary email", err)
	}

	sink.Printf("user %d (%s) emailed summary for %s with %d cards", user.ID, user.Username, day, len(cards))
	return true, nil
}

func digestBody(user *model.User, cards []*model.SentCard, day string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\n\n", user.Username)
	switch len(cards) {
	case 0:
		fmt.Fprintf(&b, "You did not send any cards since your last summary (%s).\n", day)
		return b.String()
	case 1:
		b.WriteString("You sent 1 card since your last summary:\n\n")
	default:
		fmt.Fprintf(&b, "You sent %d cards since your last summary:\n\n", len(cards))
	}

	loc := user.Location()
	for i, card := range cards {
		if i == maxListedCards {
			fmt.Fprintf(&b, "  ... and %d more\n", len(cards)-maxListedCards)
			break
		}
		fmt.Fprintf(&b, "  - %s, %s\n", card.FullName, card.DateSent.In(loc).Format("Jan 2 15:04"))
	}
	return b.String()
}
