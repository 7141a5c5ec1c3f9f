// Package sqlite implements the storage.Backend interface over SQLite via
// ncruces/go-sqlite3, a pure-Go (no cgo) driver. Schema, pragmas and the
// BEGIN IMMEDIATE transaction model follow the teacher's
// internal/storage/sqlite package; the table layout and LWW materialization
// rules follow original_source/crates/storage/src/schema.rs.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/untoldecay/beadsreplica/internal/storage"
)

// Store is the SQLite-backed storage.Backend.
type Store struct {
	db   *sql.DB
	path string
	// execer is either *sql.DB (outside a transaction) or *sql.Tx (inside
	// RunInTransaction), so the same query helpers serve both paths.
	execer execer
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

var _ storage.Backend = (*Store)(nil)

// New opens (creating if necessary) the SQLite database at path and applies
// the schema.
func New(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, wrapDBErrorf(err, "open %s", path)
	}
	db.SetMaxOpenConns(1) // WAL + single-writer: one connection avoids SQLITE_BUSY churn

	if _, err := db.ExecContext(ctx, pragmaSQL); err != nil {
		db.Close()
		return nil, wrapDBError("apply pragmas", err)
	}
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		db.Close()
		return nil, wrapDBError("apply schema", err)
	}

	s := &Store{db: db, path: path}
	s.execer = db
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return wrapDBError("close", s.db.Close())
}

// Path returns the database file path this store was opened with.
func (s *Store) Path() string { return s.path }

// UnderlyingDB returns the underlying *sql.DB.
func (s *Store) UnderlyingDB() *sql.DB { return s.db }

// RunInTransaction executes fn inside a single BEGIN IMMEDIATE transaction.
// IMMEDIATE mode acquires the write lock up front, which avoids the
// deadlock-prone upgrade from a read lock that plain BEGIN allows under
// concurrent writers. A single dedicated connection is checked out for the
// duration (the store otherwise runs with a one-connection pool, so this
// never contends with itself).
func (s *Store) RunInTransaction(ctx context.Context, fn func(ctx context.Context, tx storage.Backend) error) (err error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return wrapDBError("acquire connection", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return wrapDBError("begin immediate", err)
	}

	txStore := &Store{db: s.db, path: s.path, execer: conn}

	defer func() {
		if p := recover(); p != nil {
			_, _ = conn.ExecContext(ctx, "ROLLBACK")
			panic(p)
		}
		if err != nil {
			_, _ = conn.ExecContext(ctx, "ROLLBACK")
			return
		}
		if _, cerr := conn.ExecContext(ctx, "COMMIT"); cerr != nil {
			err = wrapDBError("commit", cerr)
		}
	}()

	err = fn(ctx, txStore)
	return err
}

func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.execer.ExecContext(ctx, query, args...)
}

func (s *Store) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.execer.QueryContext(ctx, query, args...)
}

func (s *Store) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.execer.QueryRowContext(ctx, query, args...)
}

func nullable(b []byte) any {
	if b == nil {
		return nil
	}
	return b
}

func nullableString(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func scanOptionalBlob(dest *[]byte, src any) error {
	if src == nil {
		*dest = nil
		return nil
	}
	b, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("sqlite: expected []byte, got %T", src)
	}
	*dest = append([]byte(nil), b...)
	return nil
}
