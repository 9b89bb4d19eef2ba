package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jwalitptl/card-notifier/internal/model"
	"github.com/jwalitptl/card-notifier/internal/repository"
)

const sentCardColumns = `id, user_id, profile_id, full_name, email_address, phone_number, notes, date_sent, created_at, updated_at`

type sentCardRepository struct {
	BaseRepository
}

func NewSentCardRepository(base BaseRepository) repository.SentCardRepository {
	return &sentCardRepository{base}
}

func (r *sentCardRepository) Create(ctx context.Context, card *model.SentCard) error {
	query := `
		INSERT INTO sent_cards (
			user_id, profile_id, full_name, email_address, phone_number,
			notes, date_sent, created_at, updated_at
		) VALUES (:user_id, :profile_id, :full_name, :email_address, :phone_number,
			:notes, :date_sent, :created_at, :updated_at)
		RETURNING id
	`

	stamp(&card.CreatedAt, &card.UpdatedAt)
	if card.DateSent.IsZero() {
		card.DateSent = card.CreatedAt
	}

	rows, err := r.db.NamedQueryContext(ctx, query, card)
	if err != nil {
		return fmt.Errorf("failed to create sent card: %w", err)
	}
	defer rows.Close()
	if rows.Next() {
		if err := rows.Scan(&card.ID); err != nil {
			return fmt.Errorf("failed to read sent card id: %w", err)
		}
	}
	return rows.Err()
}

func (r *sentCardRepository) Update(ctx context.Context, card *model.SentCard) error {
	query := `
		UPDATE sent_cards SET
			profile_id = :profile_id,
			full_name = :full_name,
			email_address = :email_address,
			phone_number = :phone_number,
			notes = :notes,
			date_sent = :date_sent,
			created_at = :created_at,
			updated_at = :updated_at
		WHERE id = :id
	`

	result, err := r.db.NamedExecContext(ctx, query, card)
	if err != nil {
		return fmt.Errorf("failed to update sent card: %w", err)
	}
	return expectOne(result, "sent card")
}

func (r *sentCardRepository) FindByPk(ctx context.Context, id int64) (*model.SentCard, error) {
	var card model.SentCard
	query := `SELECT ` + sentCardColumns + ` FROM sent_cards WHERE id = $1`
	if err := r.get(ctx, "sent card", &card, query, id); err != nil {
		return nil, err
	}
	return &card, nil
}

func (r *sentCardRepository) FindAll(ctx context.Context) ([]*model.SentCard, error) {
	var cards []*model.SentCard
	query := `SELECT ` + sentCardColumns + ` FROM sent_cards ORDER BY id`
	if err := r.db.SelectContext(ctx, &cards, query); err != nil {
		return nil, fmt.Errorf("failed to list sent cards: %w", err)
	}
	return cards, nil
}

func (r *sentCardRepository) Count(ctx context.Context) (int64, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM sent_cards`)
}

func (r *sentCardRepository) FindByUserCreatedBetween(ctx context.Context, userID int64, from, to time.Time) ([]*model.SentCard, error) {
	query := `
		SELECT ` + sentCardColumns + `
		FROM sent_cards
		WHERE user_id = $1 AND created_at >= $2 AND created_at < $3
		ORDER BY id
	`

	var cards []*model.SentCard
	if err := r.db.SelectContext(ctx, &cards, query, userID, from, to); err != nil {
		return nil, fmt.Errorf("failed to find sent cards: %w", err)
	}
	return cards, nil
}
