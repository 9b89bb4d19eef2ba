package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	apperrors "github.com/jwalitptl/card-notifier/pkg/errors"
)

// BaseRepository provides common functionality for all repositories
type BaseRepository struct {
	db *sqlx.DB
}

// NewBaseRepository creates a new base repository
func NewBaseRepository(db *sqlx.DB) BaseRepository {
	return BaseRepository{db: db}
}

// WithTx executes a function within a transaction
func (r *BaseRepository) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit()
}

// get loads one row into dest, mapping sql.ErrNoRows to a NotFound AppError.
func (r *BaseRepository) get(ctx context.Context, resource string, dest interface{}, query string, args ...interface{}) error {
	if err := r.db.GetContext(ctx, dest, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.NotFound(resource, err)
		}
		return fmt.Errorf("failed to get %s: %w", resource, err)
	}
	return nil
}

func (r *BaseRepository) count(ctx context.Context, query string, args ...interface{}) (int64, error) {
	var n int64
	if err := r.db.GetContext(ctx, &n, query, args...); err != nil {
		return 0, fmt.Errorf("failed to count: %w", err)
	}
	return n, nil
}

// expectOne turns a zero-row update into a NotFound AppError.
func expectOne(result sql.Result, resource string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return apperrors.NotFound(resource, nil)
	}
	return nil
}

func stamp(created, updated *time.Time) {
	if created.IsZero() {
		*created = time.Now().UTC()
	}
	if updated != nil && updated.IsZero() {
		*updated = *created
	}
}
