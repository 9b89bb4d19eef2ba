package memory

import (
	"context"
	"sort"
	"time"

	"github.com/jwalitptl/card-notifier/internal/clock"
	"github.com/jwalitptl/card-notifier/internal/model"
	"github.com/jwalitptl/card-notifier/internal/repository"
	apperrors "github.com/jwalitptl/card-notifier/pkg/errors"
)

// NewStores returns a fresh set of empty in-memory stores. Rows created with a
// zero CreatedAt are stamped from clk.
func NewStores(clk clock.Clock) repository.Stores {
	return repository.Stores{
		DelayedMessages: NewDelayedMessageRepository(clk),
		SmsMessages:     NewSmsMessageRepository(clk),
		SentCards:       NewSentCardRepository(clk),
		SummaryEmails:   NewSummaryEmailRepository(clk),
		Users:           NewUserRepository(clk),
	}
}

func stamp(clk clock.Clock, created, updated *time.Time) {
	now := clk.Now()
	if created.IsZero() {
		*created = now
	}
	if updated != nil && updated.IsZero() {
		*updated = *created
	}
}

type delayedMessageRepository struct {
	clk  clock.Clock
	rows *table[model.DelayedMessage]
}

func NewDelayedMessageRepository(clk clock.Clock) repository.DelayedMessageRepository {
	return &delayedMessageRepository{
		clk:  clk,
		rows: newTable("delayed message", func(m *model.DelayedMessage) *int64 { return &m.ID }),
	}
}

func (r *delayedMessageRepository) Create(_ context.Context, msg *model.DelayedMessage) error {
	stamp(r.clk, &msg.CreatedAt, &msg.UpdatedAt)
	if msg.Status == "" {
		msg.Status = model.DelayedMessageStatusPending
	}
	r.rows.insert(msg)
	return nil
}

func (r *delayedMessageRepository) Update(_ context.Context, msg *model.DelayedMessage) error {
	return r.rows.update(msg)
}

func (r *delayedMessageRepository) FindByPk(_ context.Context, id int64) (*model.DelayedMessage, error) {
	return r.rows.get(id)
}

func (r *delayedMessageRepository) FindAll(_ context.Context) ([]*model.DelayedMessage, error) {
	return r.rows.filter(nil), nil
}

func (r *delayedMessageRepository) Count(_ context.Context) (int64, error) {
	return r.rows.count(nil), nil
}

func (r *delayedMessageRepository) CountByStatus(_ context.Context, status model.DelayedMessageStatus) (int64, error) {
	return r.rows.count(func(m *model.DelayedMessage) bool { return m.Status == status }), nil
}

func (r *delayedMessageRepository) FindDelayedMessagesToSend(_ context.Context, now time.Time) ([]*model.DelayedMessage, error) {
	return r.rows.filter(func(m *model.DelayedMessage) bool { return m.IsDue(now) }), nil
}

type smsMessageRepository struct {
	clk  clock.Clock
	rows *table[model.SmsMessage]
}

func NewSmsMessageRepository(clk clock.Clock) repository.SmsMessageRepository {
	return &smsMessageRepository{
		clk:  clk,
		rows: newTable("sms message", func(m *model.SmsMessage) *int64 { return &m.ID }),
	}
}

func (r *smsMessageRepository) Create(_ context.Context, msg *model.SmsMessage) error {
	stamp(r.clk, &msg.CreatedAt, &msg.UpdatedAt)
	if msg.Status == "" {
		msg.Status = model.SmsMessageStatusNew
	}
	r.rows.insert(msg)
	return nil
}

func (r *smsMessageRepository) Update(_ context.Context, msg *model.SmsMessage) error {
	return r.rows.update(msg)
}

func (r *smsMessageRepository) FindByPk(_ context.Context, id int64) (*model.SmsMessage, error) {
	return r.rows.get(id)
}

func (r *smsMessageRepository) FindAll(_ context.Context) ([]*model.SmsMessage, error) {
	return r.rows.filter(nil), nil
}

func (r *smsMessageRepository) Count(_ context.Context) (int64, error) {
	return r.rows.count(nil), nil
}

func (r *smsMessageRepository) FindIdledSmsMessages(_ context.Context, idleSince time.Time, types ...model.SmsMessageType) ([]*model.SmsMessage, error) {
	return r.rows.filter(func(m *model.SmsMessage) bool {
		if !m.Status.Undelivered() || m.UpdatedAt.After(idleSince) {
			return false
		}
		for _, t := range types {
			if m.Type == t {
				return true
			}
		}
		return false
	}), nil
}

type sentCardRepository struct {
	clk  clock.Clock
	rows *table[model.SentCard]
}

func NewSentCardRepository(clk clock.Clock) repository.SentCardRepository {
	return &sentCardRepository{
		clk:  clk,
		rows: newTable("sent card", func(c *model.SentCard) *int64 { return &c.ID }),
	}
}

func (r *sentCardRepository) Create(_ context.Context, card *model.SentCard) error {
	stamp(r.clk, &card.CreatedAt, &card.UpdatedAt)
	if card.DateSent.IsZero() {
		card.DateSent = card.CreatedAt
	}
	r.rows.insert(card)
	return nil
}

func (r *sentCardRepository) Update(_ context.Context, card *model.SentCard) error {
	return r.rows.update(card)
}

func (r *sentCardRepository) FindByPk(_ context.Context, id int64) (*model.SentCard, error) {
	return r.rows.get(id)
}

func (r *sentCardRepository) FindAll(_ context.Context) ([]*model.SentCard, error) {
	return r.rows.filter(nil), nil
}

func (r *sentCardRepository) Count(_ context.Context) (int64, error) {
	return r.rows.count(nil), nil
}

func (r *sentCardRepository) FindByUserCreatedBetween(_ context.Context, userID int64, from, to time.Time) ([]*model.SentCard, error) {
	return r.rows.filter(func(c *model.SentCard) bool {
		return c.UserID == userID && !c.CreatedAt.Before(from) && c.CreatedAt.Before(to)
	}), nil
}

type summaryEmailRepository struct {
	clk  clock.Clock
	rows *table[model.SummaryEmail]
}

func NewSummaryEmailRepository(clk clock.Clock) repository.SummaryEmailRepository {
	return &summaryEmailRepository{
		clk:  clk,
		rows: newTable("summary email", func(s *model.SummaryEmail) *int64 { return &s.ID }),
	}
}

func (r *summaryEmailRepository) Create(_ context.Context, summary *model.SummaryEmail) error {
	stamp(r.clk, &summary.CreatedAt, nil)
	r.rows.insert(summary)
	return nil
}

func (r *summaryEmailRepository) FindByPk(_ context.Context, id int64) (*model.SummaryEmail, error) {
	return r.rows.get(id)
}

func (r *summaryEmailRepository) FindAll(_ context.Context) ([]*model.SummaryEmail, error) {
	return r.rows.filter(nil), nil
}

func (r *summaryEmailRepository) Count(_ context.Context) (int64, error) {
	return r.rows.count(nil), nil
}

func (r *summaryEmailRepository) FindLatest(_ context.Context, userID int64, summaryType model.SummaryType) (*model.SummaryEmail, error) {
	var latest *model.SummaryEmail
	for _, s := range r.rows.filter(func(s *model.SummaryEmail) bool {
		return s.UserID == userID && s.SummaryType == summaryType
	}) {
		if latest == nil || !s.CreatedAt.Before(latest.CreatedAt) {
			latest = s
		}
	}
	return latest, nil
}

func (r *summaryEmailRepository) ExistsBetween(_ context.Context, userID int64, summaryType model.SummaryType, from, to time.Time) (bool, error) {
	n := r.rows.count(func(s *model.SummaryEmail) bool {
		return s.UserID == userID && s.SummaryType == summaryType &&
			!s.CreatedAt.Before(from) && s.CreatedAt.Before(to)
	})
	return n > 0, nil
}

type userRepository struct {
	clk  clock.Clock
	rows *table[model.User]
}

func NewUserRepository(clk clock.Clock) repository.UserRepository {
	return &userRepository{
		clk:  clk,
		rows: newTable("user", func(u *model.User) *int64 { return &u.ID }),
	}
}

func (r *userRepository) Create(ctx context.Context, user *model.User) error {
	if _, err := r.FindByUsername(ctx, user.Username); err == nil {
		return apperrors.InvalidPayload("username already taken", nil)
	}
	stamp(r.clk, &user.CreatedAt, &user.UpdatedAt)
	if user.AccountType == "" {
		user.AccountType = model.AccountTypeFree
	}
	r.rows.insert(user)
	return nil
}

func (r *userRepository) Update(_ context.Context, user *model.User) error {
	return r.rows.update(user)
}

func (r *userRepository) FindByPk(_ context.Context, id int64) (*model.User, error) {
	return r.rows.get(id)
}

func (r *userRepository) FindAll(_ context.Context) ([]*model.User, error) {
	return r.rows.filter(nil), nil
}

func (r *userRepository) Count(_ context.Context) (int64, error) {
	return r.rows.count(nil), nil
}

func (r *userRepository) FindByUsername(_ context.Context, username string) (*model.User, error) {
	users := r.rows.filter(func(u *model.User) bool { return u.Username == username })
	if len(users) == 0 {
		return nil, apperrors.NotFound("user", nil)
	}
	return users[0], nil
}

func (r *userRepository) FindAllAvailableTimezoneOffset(_ context.Context) ([]int, error) {
	seen := make(map[int]bool)
	offsets := make([]int, 0)
	for _, u := range r.rows.filter(func(u *model.User) bool { return u.Active }) {
		if !seen[u.TimezoneOffsetMinutes] {
			seen[u.TimezoneOffsetMinutes] = true
			offsets = append(offsets, u.TimezoneOffsetMinutes)
		}
	}
	sort.Ints(offsets)
	return offsets, nil
}

func (r *userRepository) FindActiveByTimezoneOffset(_ context.Context, offsetMinutes int) ([]*model.User, error) {
	return r.rows.filter(func(u *model.User) bool {
		return u.Active && u.TimezoneOffsetMinutes == offsetMinutes
	}), nil
}
