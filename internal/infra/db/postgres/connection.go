package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"telegram-ai-consult/internal/domain"
)

//go:embed schema.sql
var schemaSQL string

// Connect returns a live *pgxpool.Pool for dsn.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	if dsn == "" {
		return nil, errors.New("postgres: DATABASE_URL is required")
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	pool, err := pgxpool.Connect(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.Connect failed: %w", err)
	}
	return pool, nil
}

// EnsureSchema creates the pending and ledger tables when missing.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply postgres schema: %w", err)
	}
	return nil
}

type executor interface {
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

func execSQL(ctx context.Context, db executor, q string, args ...interface{}) (pgconn.CommandTag, error) {
	tag, err := db.Exec(ctx, q, args...)
	if err != nil {
		return nil, mapErr(err)
	}
	return tag, nil
}

// mapErr translates driver errors into the domain taxonomy.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return domain.ErrAlreadyExists
	}
	return fmt.Errorf("%w: %v", domain.ErrStorage, err)
}
