package postgres

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/jwalitptl/card-notifier/internal/config"
	"github.com/jwalitptl/card-notifier/internal/repository"
)

//go:embed schema.sql
var schema string

func NewDB(ctx context.Context, cfg config.DatabaseConfig) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.MaxConns)
	}

	// Test the connection
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// Migrate creates the tables and indexes if they do not exist yet.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	base := NewBaseRepository(db)
	err := base.WithTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, schema)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// NewStores wires every postgres repository onto one connection pool.
func NewStores(db *sqlx.DB) repository.Stores {
	base := NewBaseRepository(db)
	return repository.Stores{
		DelayedMessages: NewDelayedMessageRepository(base),
		SmsMessages:     NewSmsMessageRepository(base),
		SentCards:       NewSentCardRepository(base),
		SummaryEmails:   NewSummaryEmailRepository(base),
		Users:           NewUserRepository(base),
	}
}
