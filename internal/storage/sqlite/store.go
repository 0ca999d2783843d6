// Package sqlite provides a SQLite-backed actor flag store.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jwebster45206/combat-ledger/pkg/storage"
)

//go:embed schema.sql
var schema string

// Store persists actor flags in SQLite.
type Store struct {
	sqlDB *sql.DB
}

var _ storage.FlagStore = (*Store)(nil)

// Open opens a SQLite flag store and applies the schema.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Ping checks the database handle.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.sqlDB == nil {
		return storage.ErrNotConfigured
	}
	return s.sqlDB.PingContext(ctx)
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// GetFlag returns one flag record, or nil if it is unset.
func (s *Store) GetFlag(ctx context.Context, actorID, namespace string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, storage.ErrNotConfigured
	}
	var data []byte
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT data FROM actor_flags WHERE actor_id = ? AND namespace = ?`,
		actorID, namespace,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get flag %s: %w", namespace, err)
	}
	return data, nil
}

// SetFlag upserts one flag record.
func (s *Store) SetFlag(ctx context.Context, actorID, namespace string, data []byte) error {
	return s.SetFlags(ctx, actorID, map[string][]byte{namespace: data})
}

// SetFlags upserts every record inside one transaction.
func (s *Store) SetFlags(ctx context.Context, actorID string, records map[string][]byte) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return storage.ErrNotConfigured
	}
	if strings.TrimSpace(actorID) == "" {
		return fmt.Errorf("actor id is required")
	}
	if len(records) == 0 {
		return nil
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC().UnixMilli()
	for ns, data := range records {
		if data == nil {
			data = []byte("null")
		}
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO actor_flags (actor_id, namespace, data, updated_at)
			 VALUES (?, ?, ?, ?)
			 ON CONFLICT (actor_id, namespace) DO UPDATE SET
			   data = excluded.data,
			   updated_at = excluded.updated_at`,
			actorID, ns, data, now,
		); err != nil {
			return fmt.Errorf("set flag %s: %w", ns, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit flags: %w", err)
	}
	return nil
}

// DeleteFlag removes the given namespaces of an actor.
func (s *Store) DeleteFlag(ctx context.Context, actorID string, namespaces ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return storage.ErrNotConfigured
	}
	if len(namespaces) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(namespaces)), ",")
	args := make([]any, 0, len(namespaces)+1)
	args = append(args, actorID)
	for _, ns := range namespaces {
		args = append(args, ns)
	}
	if _, err := s.sqlDB.ExecContext(ctx,
		`DELETE FROM actor_flags WHERE actor_id = ? AND namespace IN (`+placeholders+`)`,
		args...,
	); err != nil {
		return fmt.Errorf("delete flags: %w", err)
	}
	return nil
}
