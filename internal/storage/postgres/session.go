// Package postgres registers the "postgres" storage backend (pgx/v5).
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"csvload/internal/ident"
	"csvload/internal/storage"
)

/*
Session implements storage.Session for Postgres on a pgx pool.

DDL is transactional in Postgres, but schema changes still run on the pool so
that columns added for one file stay in place even if that file's rows are
rolled back. Identifiers are always double-quoted, so column names keep the
exact case the normalizer produced.
*/
type Session struct {
	pool *pgxpool.Pool
	tx   pgx.Tx

	// isolate wraps every insert in a savepoint; see IsolateRows.
	isolate bool
}

// querier is the part of *pgxpool.Pool and pgx.Tx the session uses.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func init() {
	storage.Register("postgres", NewSession)
}

// NewSession creates a pool for cfg.DSN and verifies it with a ping.
func NewSession(ctx context.Context, cfg storage.Config) (storage.Session, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, storage.Connection(fmt.Errorf("postgres: pool: %w", err))
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, storage.Connection(fmt.Errorf("postgres: ping: %w", err))
	}
	return &Session{pool: pool}, nil
}

// Close rolls back any open transaction and closes the pool.
func (s *Session) Close() {
	if s.tx != nil {
		_ = s.tx.Rollback(context.Background())
		s.tx = nil
	}
	s.pool.Close()
}

// FoldsCase is false: quoted identifiers are case-sensitive, so "Name" and
// "name" are different columns.
func (*Session) FoldsCase() bool { return false }

// IsolateRows turns per-row savepoints on or off. A failed statement aborts a
// Postgres transaction, so without them a partial file could not be
// committed.
func (s *Session) IsolateRows(on bool) { s.isolate = on }

func (s *Session) q() querier {
	if s.tx != nil {
		return s.tx
	}
	return s.pool
}

func (s *Session) TableExists(ctx context.Context, t ident.Table) (bool, error) {
	q, args := tableExistsSQL(t)
	return s.exists(ctx, q, args, "table exists "+t.String())
}

func (s *Session) ColumnExists(ctx context.Context, t ident.Table, c ident.Column) (bool, error) {
	q, args := columnExistsSQL(t, c)
	return s.exists(ctx, q, args, "column exists "+t.String()+"."+c.String())
}

func (s *Session) exists(ctx context.Context, q string, args []any, what string) (bool, error) {
	var ok bool
	if err := s.q().QueryRow(ctx, q, args...).Scan(&ok); err != nil {
		return false, wrap(what, err)
	}
	return ok, nil
}

func (s *Session) CreateTable(ctx context.Context, l storage.Layout) error {
	return s.execDDL(ctx, "create table "+l.Table.String(), createTableSQL(l))
}

func (s *Session) AddKeyColumn(ctx context.Context, l storage.Layout) error {
	return s.execDDL(ctx, "add key column "+l.Key.String(), addKeyColumnSQL(l))
}

func (s *Session) AddTextColumn(ctx context.Context, t ident.Table, c ident.Column) error {
	return s.execDDL(ctx, "add column "+c.String(), addTextColumnSQL(t, c))
}

func (s *Session) execDDL(ctx context.Context, what, sql string) error {
	if _, err := s.pool.Exec(ctx, sql); err != nil {
		return wrap(what, err)
	}
	return nil
}

func (s *Session) SelectKeys(ctx context.Context, t ident.Table, key ident.Column) ([]string, error) {
	rows, err := s.q().Query(ctx, selectKeysSQL(t, key))
	if err != nil {
		return nil, wrap("select keys", err)
	}
	keys, err := pgx.CollectRows(rows, pgx.RowTo[pgtype.Text])
	if err != nil {
		return nil, wrap("select keys", err)
	}
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if k.Valid {
			out = append(out, k.String)
		}
	}
	return out, nil
}

func (s *Session) Begin(ctx context.Context) error {
	if s.tx != nil {
		return fmt.Errorf("postgres: begin: %w", storage.ErrTxState)
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return storage.Connection(fmt.Errorf("postgres: begin: %w", err))
	}
	s.tx = tx
	return nil
}

func (s *Session) InsertRow(ctx context.Context, t ident.Table, columns []ident.Column, values []any) error {
	if len(columns) != len(values) {
		return fmt.Errorf("postgres: insert: %d values for %d columns", len(values), len(columns))
	}
	// pgx caches the prepared statement per SQL text, so rebuilding the string
	// per row costs no extra round trips.
	q := insertSQL(t, columns)
	if s.tx == nil || !s.isolate {
		if _, err := s.q().Exec(ctx, q, values...); err != nil {
			return wrap("insert", err)
		}
		return nil
	}

	sp, err := s.tx.Begin(ctx)
	if err != nil {
		return wrap("savepoint", err)
	}
	if _, err := sp.Exec(ctx, q, values...); err != nil {
		if rbErr := sp.Rollback(ctx); rbErr != nil {
			return wrap("insert", errors.Join(err, rbErr))
		}
		return wrap("insert", err)
	}
	if err := sp.Commit(ctx); err != nil {
		return wrap("release savepoint", err)
	}
	return nil
}

func (s *Session) Commit(ctx context.Context) error {
	if s.tx == nil {
		return fmt.Errorf("postgres: commit: %w", storage.ErrTxState)
	}
	tx := s.tx
	s.tx = nil
	if err := tx.Commit(ctx); err != nil {
		return wrap("commit", err)
	}
	return nil
}

func (s *Session) Rollback(ctx context.Context) error {
	if s.tx == nil {
		return nil
	}
	tx := s.tx
	s.tx = nil
	if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return wrap("rollback", err)
	}
	return nil
}

// wrap prefixes err and promotes timeouts and dropped connections to
// storage.ErrConnection.
func wrap(what string, err error) error {
	err = fmt.Errorf("postgres: %s: %w", what, err)
	if pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return storage.Connection(err)
	}
	return err
}

var (
	_ storage.Session     = (*Session)(nil)
	_ storage.CaseFolder  = (*Session)(nil)
	_ storage.RowIsolator = (*Session)(nil)
)
