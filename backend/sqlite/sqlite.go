// Package sqlite implements backend.Store over an embedded SQLite database, the persistent
// option behind Store.Open(WithBackendKind(BackendPersistent)). A single table holds each TVar's current
// value and version; WithExclusive opens a BEGIN IMMEDIATE transaction so validation and CAS
// updates run under SQLite's own exclusive-write mode, matching the linearization point the
// engine's commit protocol requires.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/haldanelabs/tvarstm/backend"
)

const schema = `
CREATE TABLE IF NOT EXISTS tvars (
	id      TEXT PRIMARY KEY,
	value   TEXT NOT NULL,
	version INTEGER NOT NULL
);`

// Store is a SQLite-backed backend.Store.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) a SQLite database file at path and ensures its schema
// exists. Use ":memory:" for an ephemeral database that still exercises the real driver and SQL
// dialect.
func Open(path string) (*Store, error) {
	dsn := path + "?_txlock=immediate"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite serializes writers anyway; avoid pool contention on BEGIN IMMEDIATE.
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: create schema: %w", err)
	}
	return &Store{db: db}, nil
}

var _ backend.Store = (*Store)(nil)

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Insert(ctx context.Context, id string, value []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tvars (id, value, version) VALUES (?, ?, 0)`, id, string(value))
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			return backend.ErrAlreadyExists
		}
		return fmt.Errorf("sqlite: insert %q: %w", id, err)
	}
	return nil
}

func (s *Store) SelectValueVersion(ctx context.Context, id string) ([]byte, uint64, bool, error) {
	return selectValueVersion(ctx, s.db, id)
}

func (s *Store) SelectVersion(ctx context.Context, id string) (uint64, bool, error) {
	return selectVersion(ctx, s.db, id)
}

func (s *Store) WithExclusive(ctx context.Context, fn func(context.Context, backend.ExclusiveTx) error) error {
	// The "_txlock=immediate" DSN parameter set in Open makes every BeginTx issue a SQLite
	// BEGIN IMMEDIATE, acquiring the write lock up front rather than on first write.
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin immediate: %w", err)
	}
	if err := fn(ctx, exclusiveTx{tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	return nil
}

type dbOrTx interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func selectValueVersion(ctx context.Context, q dbOrTx, id string) ([]byte, uint64, bool, error) {
	var value string
	var version uint64
	err := q.QueryRowContext(ctx, `SELECT value, version FROM tvars WHERE id = ?`, id).Scan(&value, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, false, nil
	}
	if err != nil {
		return nil, 0, false, fmt.Errorf("sqlite: select %q: %w", id, err)
	}
	return []byte(value), version, true, nil
}

func selectVersion(ctx context.Context, q dbOrTx, id string) (uint64, bool, error) {
	var version uint64
	err := q.QueryRowContext(ctx, `SELECT version FROM tvars WHERE id = ?`, id).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("sqlite: select version %q: %w", id, err)
	}
	return version, true, nil
}

type exclusiveTx struct {
	tx *sql.Tx
}

func (e exclusiveTx) SelectVersion(ctx context.Context, id string) (uint64, bool, error) {
	return selectVersion(ctx, e.tx, id)
}

func (e exclusiveTx) SelectValueVersion(ctx context.Context, id string) ([]byte, uint64, bool, error) {
	return selectValueVersion(ctx, e.tx, id)
}

func (e exclusiveTx) CASUpdate(ctx context.Context, id string, newValue []byte, expectedVersion uint64) (bool, error) {
	res, err := e.tx.ExecContext(ctx,
		`UPDATE tvars SET value = ?, version = version + 1 WHERE id = ? AND version = ?`,
		string(newValue), id, expectedVersion)
	if err != nil {
		return false, fmt.Errorf("sqlite: cas update %q: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: rows affected %q: %w", id, err)
	}
	return n == 1, nil
}
