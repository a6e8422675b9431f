/*
Package sqlite provides a SQLite-backed implementation of generic.TxStore.

PURPOSE:
  Persists every tontine record (config, state, members, rounds,
  distributions, fees, events) as a JSON blob in one keyed table. The
  domain layer never sees SQL.

KEY TABLE:
  records(namespace, key, value, updated_at)
  PRIMARY KEY (namespace, key) serves both point lookups and ordered
  namespace scans.

TRANSACTIONS:
  WithTx wraps one *sql.Tx. Every Load/Save/Range made through the
  EntityStore handed to fn uses that transaction, so a tontine operation
  reads its own writes and rolls back as a unit.

CONCURRENCY:
  Writers are serialized with a mutex and the pool is capped at one
  connection, which also keeps ":memory:" databases consistent across calls.

WAL MODE:
  File databases are opened with WAL (Write-Ahead Logging):
  - Readers don't block the writer
  - Better crash recovery

MIGRATIONS:
  Versioned goose migrations are embedded from migrations/ and applied on
  New().

USAGE:
  store, err := sqlite.New("./data/tontine.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := tontine.NewEngine(store, tontine.Options{})

SEE ALSO:
  - generic/store.go: Interface definitions
  - generic/store/memory.go: In-memory implementation for testing
  - store/badger: Embedded key-value alternative
*/
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
	log "github.com/sirupsen/logrus"
	"github.com/warp/tontine-engine/generic"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// Store implements generic.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	dsn := dbPath + "?_foreign_keys=on"
	if dbPath != ":memory:" {
		dsn += "&_journal_mode=WAL"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func migrate(db *sql.DB) error {
	goose.SetBaseFS(embedMigrations)
	goose.SetLogger(log.StandardLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// =============================================================================
// ENTITY STORE (generic.EntityStore interface)
// =============================================================================

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) Load(ctx context.Context, ns generic.Namespace, key string, out any) error {
	return load(ctx, s.db, ns, key, out)
}

func (s *Store) Save(ctx context.Context, ns generic.Namespace, key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return save(ctx, s.db, ns, key, value)
}

func (s *Store) Has(ctx context.Context, ns generic.Namespace, key string) (bool, error) {
	return has(ctx, s.db, ns, key)
}

func (s *Store) Remove(ctx context.Context, ns generic.Namespace, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return remove(ctx, s.db, ns, key)
}

func (s *Store) Range(ctx context.Context, ns generic.Namespace, fn generic.RangeFunc) error {
	return scan(ctx, s.db, ns, fn)
}

func load(ctx context.Context, q querier, ns generic.Namespace, key string, out any) error {
	var raw []byte
	err := q.QueryRowContext(ctx,
		`SELECT value FROM records WHERE namespace = ? AND key = ?`, string(ns), key,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return &generic.KeyError{Namespace: ns, Key: key, Err: generic.ErrNotFound}
	}
	if err != nil {
		return &generic.KeyError{Namespace: ns, Key: key, Err: fmt.Errorf("%w: %v", generic.ErrStoreFailure, err)}
	}
	return decode(ns, key, raw, out)
}

func save(ctx context.Context, q querier, ns generic.Namespace, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return &generic.KeyError{Namespace: ns, Key: key, Err: fmt.Errorf("%w: %v", generic.ErrEncoding, err)}
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO records (namespace, key, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(namespace, key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`, string(ns), key, raw, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return &generic.KeyError{Namespace: ns, Key: key, Err: fmt.Errorf("%w: %v", generic.ErrStoreFailure, err)}
	}
	return nil
}

func has(ctx context.Context, q querier, ns generic.Namespace, key string) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM records WHERE namespace = ? AND key = ?`, string(ns), key,
	).Scan(&n)
	if err != nil {
		return false, &generic.KeyError{Namespace: ns, Key: key, Err: fmt.Errorf("%w: %v", generic.ErrStoreFailure, err)}
	}
	return n > 0, nil
}

func remove(ctx context.Context, q querier, ns generic.Namespace, key string) error {
	_, err := q.ExecContext(ctx, `DELETE FROM records WHERE namespace = ? AND key = ?`, string(ns), key)
	if err != nil {
		return &generic.KeyError{Namespace: ns, Key: key, Err: fmt.Errorf("%w: %v", generic.ErrStoreFailure, err)}
	}
	return nil
}

// scan reads the whole namespace before calling fn, so fn may issue further
// queries on the same single connection.
func scan(ctx context.Context, q querier, ns generic.Namespace, fn generic.RangeFunc) error {
	rows, err := q.QueryContext(ctx,
		`SELECT key, value FROM records WHERE namespace = ? ORDER BY key`, string(ns))
	if err != nil {
		return fmt.Errorf("range %s: %w: %v", ns, generic.ErrStoreFailure, err)
	}

	type row struct {
		key string
		raw []byte
	}
	var all []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.key, &r.raw); err != nil {
			rows.Close()
			return fmt.Errorf("range %s: %w: %v", ns, generic.ErrStoreFailure, err)
		}
		all = append(all, r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("range %s: %w: %v", ns, generic.ErrStoreFailure, err)
	}
	rows.Close()

	for _, r := range all {
		if err := fn(r.key, func(out any) error { return decode(ns, r.key, r.raw, out) }); err != nil {
			return err
		}
	}
	return nil
}

func decode(ns generic.Namespace, key string, raw []byte, out any) error {
	if err := json.Unmarshal(raw, out); err != nil {
		return &generic.KeyError{Namespace: ns, Key: key, Err: fmt.Errorf("%w: %v", generic.ErrEncoding, err)}
	}
	return nil
}

// =============================================================================
// TRANSACTIONAL STORE (generic.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(generic.EntityStore) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w: %v", generic.ErrStoreFailure, err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w: %v", generic.ErrStoreFailure, err)
	}
	return nil
}

type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) Load(ctx context.Context, ns generic.Namespace, key string, out any) error {
	return load(ctx, ts.tx, ns, key, out)
}

func (ts *txStore) Save(ctx context.Context, ns generic.Namespace, key string, value any) error {
	return save(ctx, ts.tx, ns, key, value)
}

func (ts *txStore) Has(ctx context.Context, ns generic.Namespace, key string) (bool, error) {
	return has(ctx, ts.tx, ns, key)
}

func (ts *txStore) Remove(ctx context.Context, ns generic.Namespace, key string) error {
	return remove(ctx, ts.tx, ns, key)
}

func (ts *txStore) Range(ctx context.Context, ns generic.Namespace, fn generic.RangeFunc) error {
	return scan(ctx, ts.tx, ns, fn)
}

// =============================================================================
// ADMIN
// =============================================================================

// Reset deletes every record. Used when loading a demo scenario.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx, `DELETE FROM records`); err != nil {
		return fmt.Errorf("reset: %w: %v", generic.ErrStoreFailure, err)
	}
	return nil
}

// Count returns the number of records in ns.
func (s *Store) Count(ctx context.Context, ns generic.Namespace) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM records WHERE namespace = ?`, string(ns)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w: %v", ns, generic.ErrStoreFailure, err)
	}
	return n, nil
}
