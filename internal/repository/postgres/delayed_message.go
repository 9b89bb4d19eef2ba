package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jwalitptl/card-notifier/internal/model"
	"github.com/jwalitptl/card-notifier/internal/repository"
)

const delayedMessageColumns = `id, type, payload, delay_minutes, status, attempts, last_error, sent_at, created_at, updated_at`

type delayedMessageRepository struct {
	BaseRepository
}

func NewDelayedMessageRepository(base BaseRepository) repository.DelayedMessageRepository {
	return &delayedMessageRepository{base}
}

func (r *delayedMessageRepository) Create(ctx context.Context, msg *model.DelayedMessage) error {
	query := `
		INSERT INTO delayed_messages (
			type, payload, delay_minutes, status, attempts,
			last_error, sent_at, created_at, updated_at
		) VALUES ($1, $2::jsonb, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`

	stamp(&msg.CreatedAt, &msg.UpdatedAt)
	if msg.Status == "" {
		msg.Status = model.DelayedMessageStatusPending
	}

	err := r.db.QueryRowxContext(ctx, query,
		msg.Type,
		string(msg.Payload),
		msg.DelayMinutes,
		msg.Status,
		msg.Attempts,
		msg.LastError,
		msg.SentAt,
		msg.CreatedAt,
		msg.UpdatedAt,
	).Scan(&msg.ID)
	if err != nil {
		return fmt.Errorf("failed to create delayed message: %w", err)
	}
	return nil
}

func (r *delayedMessageRepository) Update(ctx context.Context, msg *model.DelayedMessage) error {
	query := `
		UPDATE delayed_messages SET
			status = $1,
			attempts = $2,
			last_error = $3,
			sent_at = $4,
			updated_at = $5
		WHERE id = $6
	`

	result, err := r.db.ExecContext(ctx, query,
		msg.Status,
		msg.Attempts,
		msg.LastError,
		msg.SentAt,
		msg.UpdatedAt,
		msg.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update delayed message: %w", err)
	}
	return expectOne(result, "delayed message")
}

func (r *delayedMessageRepository) FindByPk(ctx context.Context, id int64) (*model.DelayedMessage, error) {
	var msg model.DelayedMessage
	query := `SELECT ` + delayedMessageColumns + ` FROM delayed_messages WHERE id = $1`
	if err := r.get(ctx, "delayed message", &msg, query, id); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (r *delayedMessageRepository) FindAll(ctx context.Context) ([]*model.DelayedMessage, error) {
	var msgs []*model.DelayedMessage
	query := `SELECT ` + delayedMessageColumns + ` FROM delayed_messages ORDER BY id`
	if err := r.db.SelectContext(ctx, &msgs, query); err != nil {
		return nil, fmt.Errorf("failed to list delayed messages: %w", err)
	}
	return msgs, nil
}

func (r *delayedMessageRepository) Count(ctx context.Context) (int64, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM delayed_messages`)
}

func (r *delayedMessageRepository) CountByStatus(ctx context.Context, status model.DelayedMessageStatus) (int64, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM delayed_messages WHERE status = $1`, status)
}

func (r *delayedMessageRepository) FindDelayedMessagesToSend(ctx context.Context, now time.Time) ([]*model.DelayedMessage, error) {
	query := `
		SELECT ` + delayedMessageColumns + `
		FROM delayed_messages
		WHERE status = $1
		AND created_at + delay_minutes * INTERVAL '1 minute' <= $2
		ORDER BY id
	`

	var msgs []*model.DelayedMessage
	if err := r.db.SelectContext(ctx, &msgs, query, model.DelayedMessageStatusPending, now); err != nil {
		return nil, fmt.Errorf("failed to find due delayed messages: %w", err)
	}
	return msgs, nil
}
