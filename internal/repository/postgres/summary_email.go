package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jwalitptl/card-notifier/internal/model"
	"github.com/jwalitptl/card-notifier/internal/repository"
	apperrors "github.com/jwalitptl/card-notifier/pkg/errors"
)

const summaryEmailColumns = `id, user_id, summary_type, cards_included_on_email, created_at`

type summaryEmailRepository struct {
	BaseRepository
}

func NewSummaryEmailRepository(base BaseRepository) repository.SummaryEmailRepository {
	return &summaryEmailRepository{base}
}

func (r *summaryEmailRepository) Create(ctx context.Context, summary *model.SummaryEmail) error {
	query := `
		INSERT INTO summary_emails (user_id, summary_type, cards_included_on_email, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`

	stamp(&summary.CreatedAt, nil)

	err := r.db.QueryRowxContext(ctx, query,
		summary.UserID,
		summary.SummaryType,
		summary.CardsIncludedOnEmail,
		summary.CreatedAt,
	).Scan(&summary.ID)
	if err != nil {
		return fmt.Errorf("failed to create summary email: %w", err)
	}
	return nil
}

func (r *summaryEmailRepository) FindByPk(ctx context.Context, id int64) (*model.SummaryEmail, error) {
	var summary model.SummaryEmail
	query := `SELECT ` + summaryEmailColumns + ` FROM summary_emails WHERE id = $1`
	if err := r.get(ctx, "summary email", &summary, query, id); err != nil {
		return nil, err
	}
	return &summary, nil
}

func (r *summaryEmailRepository) FindAll(ctx context.Context) ([]*model.SummaryEmail, error) {
	var summaries []*model.SummaryEmail
	query := `SELECT ` + summaryEmailColumns + ` FROM summary_emails ORDER BY id`
	if err := r.db.SelectContext(ctx, &summaries, query); err != nil {
		return nil, fmt.Errorf("failed to list summary emails: %w", err)
	}
	return summaries, nil
}

func (r *summaryEmailRepository) Count(ctx context.Context) (int64, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM summary_emails`)
}

func (r *summaryEmailRepository) FindLatest(ctx context.Context, userID int64, summaryType model.SummaryType) (*model.SummaryEmail, error) {
	query := `
		SELECT ` + summaryEmailColumns + `
		FROM summary_emails
		WHERE user_id = $1 AND summary_type = $2
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`

	var summary model.SummaryEmail
	if err := r.get(ctx, "summary email", &summary, query, userID, summaryType); err != nil {
		if apperrors.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &summary, nil
}

func (r *summaryEmailRepository) ExistsBetween(ctx context.Context, userID int64, summaryType model.SummaryType, from, to time.Time) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM summary_emails
			WHERE user_id = $1 AND summary_type = $2
			AND created_at >= $3 AND created_at < $4
		)
	`

	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, userID, summaryType, from, to); err != nil {
		return false, fmt.Errorf("failed to check summary email: %w", err)
	}
	return exists, nil
}
