package repository

import (
	"context"
	"time"

	"github.com/jwalitptl/card-notifier/internal/model"
)

// All repository interfaces in one file.
// FindByPk returns an errors.ErrNotFound AppError when the row does not exist.
type (
	DelayedMessageRepository interface {
		Create(ctx context.Context, msg *model.DelayedMessage) error
		Update(ctx context.Context, msg *model.DelayedMessage) error
		FindByPk(ctx context.Context, id int64) (*model.DelayedMessage, error)
		FindAll(ctx context.Context) ([]*model.DelayedMessage, error)
		Count(ctx context.Context) (int64, error)
		CountByStatus(ctx context.Context, status model.DelayedMessageStatus) (int64, error)
		// FindDelayedMessagesToSend returns PENDING messages whose scheduled
		// time is at or before now, ordered by ascending id.
		FindDelayedMessagesToSend(ctx context.Context, now time.Time) ([]*model.DelayedMessage, error)
	}

	SmsMessageRepository interface {
		Create(ctx context.Context, msg *model.SmsMessage) error
		Update(ctx context.Context, msg *model.SmsMessage) error
		FindByPk(ctx context.Context, id int64) (*model.SmsMessage, error)
		FindAll(ctx context.Context) ([]*model.SmsMessage, error)
		Count(ctx context.Context) (int64, error)
		// FindIdledSmsMessages returns NEW or SENT messages of the given types
		// last updated at or before idleSince, ordered by ascending id.
		FindIdledSmsMessages(ctx context.Context, idleSince time.Time, types ...model.SmsMessageType) ([]*model.SmsMessage, error)
	}

	SentCardRepository interface {
		Create(ctx context.Context, card *model.SentCard) error
		Update(ctx context.Context, card *model.SentCard) error
		FindByPk(ctx context.Context, id int64) (*model.SentCard, error)
		FindAll(ctx context.Context) ([]*model.SentCard, error)
		Count(ctx context.Context) (int64, error)
		// FindByUserCreatedBetween returns the user's cards with from <= created_at < to.
		FindByUserCreatedBetween(ctx context.Context, userID int64, from, to time.Time) ([]*model.SentCard, error)
	}

	SummaryEmailRepository interface {
		Create(ctx context.Context, summary *model.SummaryEmail) error
		FindByPk(ctx context.Context, id int64) (*model.SummaryEmail, error)
		FindAll(ctx context.Context) ([]*model.SummaryEmail, error)
		Count(ctx context.Context) (int64, error)
		// FindLatest returns the most recent summary of the type, or (nil, nil).
		FindLatest(ctx context.Context, userID int64, summaryType model.SummaryType) (*model.SummaryEmail, error)
		// ExistsBetween reports whether a summary was created with from <= created_at < to.
		ExistsBetween(ctx context.Context, userID int64, summaryType model.SummaryType, from, to time.Time) (bool, error)
	}

	UserRepository interface {
		Create(ctx context.Context, user *model.User) error
		Update(ctx context.Context, user *model.User) error
		FindByPk(ctx context.Context, id int64) (*model.User, error)
		FindAll(ctx context.Context) ([]*model.User, error)
		Count(ctx context.Context) (int64, error)
		FindByUsername(ctx context.Context, username string) (*model.User, error)
		// FindAllAvailableTimezoneOffset returns the distinct offsets of active users, ascending.
		FindAllAvailableTimezoneOffset(ctx context.Context) ([]int, error)
		FindActiveByTimezoneOffset(ctx context.Context, offsetMinutes int) ([]*model.User, error)
	}
)

// Stores bundles every repository a worker needs.
type Stores struct {
	DelayedMessages DelayedMessageRepository
	SmsMessages     SmsMessageRepository
	SentCards       SentCardRepository
	SummaryEmails   SummaryEmailRepository
	Users           UserRepository
}
