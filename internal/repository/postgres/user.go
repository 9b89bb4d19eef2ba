package postgres

import (
	"context"
	"fmt"

	"github.com/jwalitptl/card-notifier/internal/model"
	"github.com/jwalitptl/card-notifier/internal/repository"
)

const userColumns = `id, username, email, timezone_offset_minutes, account_type, active, created_at, updated_at`

type userRepository struct {
	BaseRepository
}

func NewUserRepository(base BaseRepository) repository.UserRepository {
	return &userRepository{base}
}

func (r *userRepository) Create(ctx context.Context, user *model.User) error {
	query := `
		INSERT INTO users (
			username, email, timezone_offset_minutes, account_type,
			active, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`

	stamp(&user.CreatedAt, &user.UpdatedAt)
	if user.AccountType == "" {
		user.AccountType = model.AccountTypeFree
	}

	err := r.db.QueryRowxContext(ctx, query,
		user.Username,
		user.Email,
		user.TimezoneOffsetMinutes,
		user.AccountType,
		user.Active,
		user.CreatedAt,
		user.UpdatedAt,
	).Scan(&user.ID)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (r *userRepository) Update(ctx context.Context, user *model.User) error {
	query := `
		UPDATE users SET
			username = $1,
			email = $2,
			timezone_offset_minutes = $3,
			account_type = $4,
			active = $5,
			updated_at = $6
		WHERE id = $7
	`

	result, err := r.db.ExecContext(ctx, query,
		user.Username,
		user.Email,
		user.TimezoneOffsetMinutes,
		user.AccountType,
		user.Active,
		user.UpdatedAt,
		user.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	return expectOne(result, "user")
}

func (r *userRepository) FindByPk(ctx context.Context, id int64) (*model.User, error) {
	var user model.User
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	if err := r.get(ctx, "user", &user, query, id); err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) FindAll(ctx context.Context) ([]*model.User, error) {
	var users []*model.User
	query := `SELECT ` + userColumns + ` FROM users ORDER BY id`
	if err := r.db.SelectContext(ctx, &users, query); err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

func (r *userRepository) Count(ctx context.Context) (int64, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM users`)
}

func (r *userRepository) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	var user model.User
	query := `SELECT ` + userColumns + ` FROM users WHERE username = $1`
	if err := r.get(ctx, "user", &user, query, username); err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) FindAllAvailableTimezoneOffset(ctx context.Context) ([]int, error) {
	query := `
		SELECT DISTINCT timezone_offset_minutes
		FROM users
		WHERE active
		ORDER BY timezone_offset_minutes
	`

	var offsets []int
	if err := r.db.SelectContext(ctx, &offsets, query); err != nil {
		return nil, fmt.Errorf("failed to list timezone offsets: %w", err)
	}
	return offsets, nil
}

func (r *userRepository) FindActiveByTimezoneOffset(ctx context.Context, offsetMinutes int) ([]*model.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE active AND timezone_offset_minutes = $1
		ORDER BY id
	`

	var users []*model.User
	if err := r.db.SelectContext(ctx, &users, query, offsetMinutes); err != nil {
		return nil, fmt.Errorf("failed to find users by offset: %w", err)
	}
	return users, nil
}
