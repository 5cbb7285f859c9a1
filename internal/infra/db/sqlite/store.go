package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"telegram-ai-consult/internal/domain"
)

const privateDirPerm = 0o700

// Store owns the embedded SQLite database backing the pending store and the
// ledger. It is the default durable backend for single-instance deployments.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database file at path and applies the schema.
func Open(path string) (*Store, error) {
	path = filepath.Clean(strings.TrimSpace(path))
	if path == "" || path == "." {
		return nil, fmt.Errorf("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), privateDirPerm); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}

	dsn := path + "?" + url.Values{
		"_pragma": []string{
			"busy_timeout(30000)",
			"journal_mode(WAL)",
			"synchronous(FULL)",
		},
	}.Encode()

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// one writer; statements are short and serialized by the driver anyway
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &Store{db: db}
	if err := s.initSchema(context.Background()); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, errors.Join(err, fmt.Errorf("close sqlite db after schema init failure: %w", closeErr))
		}
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS pending_payments (
		invoice_id INTEGER PRIMARY KEY,
		user_id TEXT NOT NULL,
		tariff_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		duration_seconds INTEGER NOT NULL,
		label TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		status TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_pending_created_at ON pending_payments(created_at);

	CREATE TABLE IF NOT EXISTS payment_records (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		user_id TEXT NOT NULL,
		invoice_id INTEGER NOT NULL DEFAULT 0,
		amount TEXT NOT NULL,
		method TEXT NOT NULL,
		duration_seconds INTEGER NOT NULL,
		label TEXT NOT NULL,
		confirmed_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_records_user ON payment_records(user_id, seq);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("init sqlite schema: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return storageErr(err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Pending() *PendingRepo { return &PendingRepo{db: s.db} }
func (s *Store) Ledger() *LedgerRepo   { return &LedgerRepo{db: s.db} }

func storageErr(err error) error {
	return fmt.Errorf("%w: %v", domain.ErrStorage, err)
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
