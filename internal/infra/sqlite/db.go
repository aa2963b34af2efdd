// Package sqlite is the embedded remote.Backend. It keeps one table per
// entity, with link tables for a goal's linked categories and bill names,
// and scopes every row by the session's partition key.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/dvloznov/twocents/internal/remote"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		owner_key TEXT NOT NULL,
		household_id TEXT,
		date TEXT NOT NULL,
		amount REAL NOT NULL,
		category TEXT,
		note TEXT,
		who TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_owner_date ON transactions(owner_key, date DESC)`,
	`CREATE TABLE IF NOT EXISTS goals (
		id TEXT PRIMARY KEY,
		owner_key TEXT NOT NULL,
		household_id TEXT,
		name TEXT NOT NULL,
		current REAL NOT NULL DEFAULT 0,
		target REAL NOT NULL,
		category TEXT NOT NULL,
		target_date TEXT,
		color TEXT NOT NULL,
		is_debt INTEGER DEFAULT 0,
		original_debt REAL,
		completed_at TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS goal_linked_categories (
		goal_id TEXT NOT NULL,
		category TEXT NOT NULL,
		PRIMARY KEY (goal_id, category),
		FOREIGN KEY (goal_id) REFERENCES goals(id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS goal_linked_bills (
		goal_id TEXT NOT NULL,
		bill_name TEXT NOT NULL,
		PRIMARY KEY (goal_id, bill_name),
		FOREIGN KEY (goal_id) REFERENCES goals(id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS recurring_bills (
		id TEXT PRIMARY KEY,
		owner_key TEXT NOT NULL,
		household_id TEXT,
		name TEXT NOT NULL,
		amount REAL NOT NULL,
		due_day INTEGER NOT NULL,
		last_paid TEXT,
		linked_goal_id TEXT,
		category TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (linked_goal_id) REFERENCES goals(id) ON DELETE SET NULL
	)`,
	`CREATE TABLE IF NOT EXISTS settings (
		owner_key TEXT NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (owner_key, key)
	)`,
	`CREATE TABLE IF NOT EXISTS categories (
		id TEXT NOT NULL,
		owner_key TEXT NOT NULL,
		name TEXT NOT NULL COLLATE NOCASE,
		limit_amount REAL NOT NULL DEFAULT 0,
		position INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (owner_key, id),
		UNIQUE (owner_key, name)
	)`,
}

// DB is an open embedded database shared by every session backend.
type DB struct {
	db  *sql.DB
	log zerolog.Logger
}

// Open opens (or creates) the database at path and ensures the schema
// exists. ":memory:" opens a private in-memory database.
func Open(ctx context.Context, path string, log zerolog.Logger) (*DB, error) {
	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("Open: %w", err)
	}
	// One connection keeps writes serialized and an in-memory database
	// visible to every query.
	db.SetMaxOpenConns(1)

	d := &DB{db: db, log: log.With().Str("component", "sqlite").Logger()}
	if err := d.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	d.log.Debug().Str("path", path).Msg("Database opened")
	return d, nil
}

func dsn(path string) string {
	pragmas := "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	if path == ":memory:" {
		return "file::memory:?" + pragmas
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + pragmas + "&_pragma=journal_mode(WAL)"
}

// Migrate creates missing tables and indexes.
func (d *DB) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("Migrate: %w", err)
		}
	}
	return nil
}

// Backend returns a view of the database scoped to the session.
func (d *DB) Backend(s remote.Session) *Backend {
	return &Backend{db: d.db, session: s}
}

// Factory adapts d to remote.Factory.
func (d *DB) Factory() remote.Factory {
	return func(s remote.Session) remote.Backend {
		return d.Backend(s)
	}
}

// Close closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// withTx runs fn in a transaction, committing when it returns nil.
func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
