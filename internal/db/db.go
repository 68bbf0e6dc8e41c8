// Package db owns the entity store and its transaction boundary.
//
// Every write to persisted state goes through Transaction. Callbacks
// registered with Tx.AfterCommit run only once the commit has durably
// succeeded, which is how in-memory caches stay exactly consistent with
// committed data and never observe a write that could still roll back.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	_ "modernc.org/sqlite" // pure go sqlite driver
)

const schema = `
CREATE TABLE IF NOT EXISTS projects (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	name        TEXT    NOT NULL UNIQUE,
	public_read INTEGER NOT NULL DEFAULT 0,
	forked_from INTEGER REFERENCES projects(id)
);
CREATE TABLE IF NOT EXISTS branch_protections (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	project_id    INTEGER NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	branch        TEXT    NOT NULL,
	no_deletion   INTEGER NOT NULL DEFAULT 1,
	no_force_push INTEGER NOT NULL DEFAULT 1
);
CREATE TABLE IF NOT EXISTS tag_protections (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	project_id  INTEGER NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	tag         TEXT    NOT NULL,
	no_deletion INTEGER NOT NULL DEFAULT 1,
	no_update   INTEGER NOT NULL DEFAULT 1
);
CREATE TABLE IF NOT EXISTS users (
	id    INTEGER PRIMARY KEY AUTOINCREMENT,
	name  TEXT    NOT NULL UNIQUE,
	admin INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS groups (
	id   INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT    NOT NULL UNIQUE
);
CREATE TABLE IF NOT EXISTS memberships (
	user_id  INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	group_id INTEGER NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
	PRIMARY KEY (user_id, group_id)
);
CREATE TABLE IF NOT EXISTS user_authorizations (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id    INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	project_id INTEGER NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	privilege  TEXT    NOT NULL
);
CREATE TABLE IF NOT EXISTS group_authorizations (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	group_id   INTEGER NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
	project_id INTEGER NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	privilege  TEXT    NOT NULL
);
`

// DB wraps the SQLite entity store.
type DB struct {
	sql *sql.DB
	log *zap.Logger
}

// Open opens (creating if needed) the entity store at path and applies the
// schema. Use ":memory:" for an ephemeral store in tests.
func Open(path string, log *zap.Logger) (*DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// The modernc driver serializes writes itself, but a single connection
	// keeps ":memory:" stores from silently splitting into one store per
	// pooled connection.
	sqlDB.SetMaxOpenConns(1)
	if _, err := sqlDB.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &DB{sql: sqlDB, log: log}, nil
}

// SQL exposes the underlying handle for reads outside a transaction.
func (d *DB) SQL() *sql.DB {
	return d.sql
}

// Close closes the entity store.
func (d *DB) Close() error {
	return d.sql.Close()
}

// Tx is one unit of work. Post-commit callbacks registered on it run in
// registration order after Commit succeeds, and never run on rollback.
type Tx struct {
	*sql.Tx
	afterCommit []func()
}

// AfterCommit schedules fn to run once this transaction has durably
// committed.
func (t *Tx) AfterCommit(fn func()) {
	t.afterCommit = append(t.afterCommit, fn)
}

// Transaction runs fn in a transaction. If fn returns an error the
// transaction is rolled back and its post-commit callbacks are discarded;
// otherwise it is committed and the callbacks run.
func (d *DB) Transaction(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, err := d.sql.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	tx := &Tx{Tx: sqlTx}
	if err := fn(tx); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			d.log.Error("rollback failed", zap.Error(rbErr))
		}
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	for _, fn := range tx.afterCommit {
		fn()
	}
	return nil
}
