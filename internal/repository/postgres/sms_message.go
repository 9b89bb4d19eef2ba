package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/jwalitptl/card-notifier/internal/model"
	"github.com/jwalitptl/card-notifier/internal/repository"
)

const smsMessageColumns = `id, user_id, recipient, message, sms_message_type, message_status, error_code, target_object_id, created_at, updated_at`

type smsMessageRepository struct {
	BaseRepository
}

func NewSmsMessageRepository(base BaseRepository) repository.SmsMessageRepository {
	return &smsMessageRepository{base}
}

func (r *smsMessageRepository) Create(ctx context.Context, msg *model.SmsMessage) error {
	query := `
		INSERT INTO sms_messages (
			user_id, recipient, message, sms_message_type, message_status,
			error_code, target_object_id, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`

	stamp(&msg.CreatedAt, &msg.UpdatedAt)
	if msg.Status == "" {
		msg.Status = model.SmsMessageStatusNew
	}

	err := r.db.QueryRowxContext(ctx, query,
		msg.UserID,
		msg.Recipient,
		msg.Message,
		msg.Type,
		msg.Status,
		msg.ErrorCode,
		msg.TargetObjectID,
		msg.CreatedAt,
		msg.UpdatedAt,
	).Scan(&msg.ID)
	if err != nil {
		return fmt.Errorf("failed to create sms message: %w", err)
	}
	return nil
}

func (r *smsMessageRepository) Update(ctx context.Context, msg *model.SmsMessage) error {
	query := `
		UPDATE sms_messages SET
			message_status = $1,
			error_code = $2,
			updated_at = $3
		WHERE id = $4
	`

	result, err := r.db.ExecContext(ctx, query, msg.Status, msg.ErrorCode, msg.UpdatedAt, msg.ID)
	if err != nil {
		return fmt.Errorf("failed to update sms message: %w", err)
	}
	return expectOne(result, "sms message")
}

func (r *smsMessageRepository) FindByPk(ctx context.Context, id int64) (*model.SmsMessage, error) {
	var msg model.SmsMessage
	query := `SELECT ` + smsMessageColumns + ` FROM sms_messages WHERE id = $1`
	if err := r.get(ctx, "sms message", &msg, query, id); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (r *smsMessageRepository) FindAll(ctx context.Context) ([]*model.SmsMessage, error) {
	var msgs []*model.SmsMessage
	query := `SELECT ` + smsMessageColumns + ` FROM sms_messages ORDER BY id`
	if err := r.db.SelectContext(ctx, &msgs, query); err != nil {
		return nil, fmt.Errorf("failed to list sms messages: %w", err)
	}
	return msgs, nil
}

func (r *smsMessageRepository) Count(ctx context.Context) (int64, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM sms_messages`)
}

func (r *smsMessageRepository) FindIdledSmsMessages(ctx context.Context, idleSince time.Time, types ...model.SmsMessageType) ([]*model.SmsMessage, error) {
	if len(types) == 0 {
		return []*model.SmsMessage{}, nil
	}

	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}

	query := `
		SELECT ` + smsMessageColumns + `
		FROM sms_messages
		WHERE message_status IN ($1, $2)
		AND updated_at <= $3
		AND sms_message_type = ANY($4)
		ORDER BY id
	`

	var msgs []*model.SmsMessage
	err := r.db.SelectContext(ctx, &msgs, query,
		model.SmsMessageStatusNew,
		model.SmsMessageStatusSent,
		idleSince,
		pq.Array(names),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to find idle sms messages: %w", err)
	}
	return msgs, nil
}
