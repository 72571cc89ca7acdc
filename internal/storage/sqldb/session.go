package sqldb

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"

	"csvload/internal/ident"
	"csvload/internal/storage"
)

// querier is the subset of *sql.DB and *sql.Tx the session uses.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Session implements storage.Session for any database/sql driver.
type Session struct {
	db      *sql.DB
	tx      *sql.Tx
	dialect Dialect
	name    string

	// insert statements keyed by table + column list; a file reuses one shape.
	inserts map[string]string
}

// Open opens driverName with dsn, pings it and wraps it in a Session. name
// prefixes error messages ("sqlite", "mysql", ...).
func Open(ctx context.Context, name, driverName, dsn string, d Dialect) (*Session, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, storage.Connection(fmt.Errorf("%s: open: %w", name, err))
	}
	return Connect(ctx, name, db, d)
}

// Connect pings an unverified handle (e.g. from sql.OpenDB with a driver
// connector) and wraps it. The handle is closed on failure.
func Connect(ctx context.Context, name string, db *sql.DB, d Dialect) (*Session, error) {
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, storage.Connection(fmt.Errorf("%s: ping: %w", name, err))
	}
	return New(db, name, d), nil
}

// New wraps an already open handle.
func New(db *sql.DB, name string, d Dialect) *Session {
	return &Session{db: db, dialect: d, name: name, inserts: map[string]string{}}
}

// DB exposes the underlying handle (tests, pool tuning).
func (s *Session) DB() *sql.DB { return s.db }

func (s *Session) Close() {
	if s.tx != nil {
		_ = s.tx.Rollback()
		s.tx = nil
	}
	_ = s.db.Close()
}

func (s *Session) q() querier {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

func (s *Session) TableExists(ctx context.Context, t ident.Table) (bool, error) {
	q, args := s.dialect.TableExistsSQL(t)
	return s.count(ctx, q, args, "table exists "+t.String())
}

func (s *Session) ColumnExists(ctx context.Context, t ident.Table, c ident.Column) (bool, error) {
	q, args := s.dialect.ColumnExistsSQL(t, c)
	return s.count(ctx, q, args, "column exists "+t.String()+"."+c.String())
}

func (s *Session) count(ctx context.Context, q string, args []any, what string) (bool, error) {
	var n int64
	if err := s.q().QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		return false, s.wrap(what, err)
	}
	return n > 0, nil
}

func (s *Session) CreateTable(ctx context.Context, l storage.Layout) error {
	return s.execDDL(ctx, "create table "+l.Table.String(), s.dialect.CreateTableSQL(l)...)
}

func (s *Session) AddKeyColumn(ctx context.Context, l storage.Layout) error {
	return s.execDDL(ctx, "add key column "+l.Key.String(), s.dialect.AddKeyColumnSQL(l)...)
}

func (s *Session) AddTextColumn(ctx context.Context, t ident.Table, c ident.Column) error {
	return s.execDDL(ctx, "add column "+c.String(), s.dialect.AddTextColumnSQL(t, c))
}

// execDDL always uses the pool, never the open transaction.
func (s *Session) execDDL(ctx context.Context, what string, stmts ...string) error {
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return s.wrap(what, err)
		}
	}
	return nil
}

func (s *Session) SelectKeys(ctx context.Context, t ident.Table, key ident.Column) ([]string, error) {
	rows, err := s.q().QueryContext(ctx, SelectKeysSQL(s.dialect, t, key))
	if err != nil {
		return nil, s.wrap("select keys", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var k sql.NullString
		if err := rows.Scan(&k); err != nil {
			return nil, s.wrap("scan key", err)
		}
		if k.Valid {
			out = append(out, k.String)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, s.wrap("select keys", err)
	}
	return out, nil
}

func (s *Session) Begin(ctx context.Context) error {
	if s.tx != nil {
		return fmt.Errorf("%s: begin: %w", s.name, storage.ErrTxState)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storage.Connection(fmt.Errorf("%s: begin: %w", s.name, err))
	}
	s.tx = tx
	return nil
}

func (s *Session) InsertRow(ctx context.Context, t ident.Table, columns []ident.Column, values []any) error {
	if len(columns) != len(values) {
		return fmt.Errorf("%s: insert: %d values for %d columns", s.name, len(values), len(columns))
	}
	if _, err := s.q().ExecContext(ctx, s.insertSQL(t, columns), values...); err != nil {
		return s.wrap("insert", err)
	}
	return nil
}

func (s *Session) insertSQL(t ident.Table, columns []ident.Column) string {
	var b strings.Builder
	b.WriteString(t.String())
	for _, c := range columns {
		b.WriteByte(0)
		b.WriteString(c.String())
	}
	k := b.String()
	if q, ok := s.inserts[k]; ok {
		return q
	}
	q := InsertSQL(s.dialect, t, columns)
	s.inserts[k] = q
	return q
}

func (s *Session) Commit(ctx context.Context) error {
	if s.tx == nil {
		return fmt.Errorf("%s: commit: %w", s.name, storage.ErrTxState)
	}
	tx := s.tx
	s.tx = nil
	if err := tx.Commit(); err != nil {
		return s.wrap("commit", err)
	}
	return nil
}

func (s *Session) Rollback(ctx context.Context) error {
	if s.tx == nil {
		return nil
	}
	tx := s.tx
	s.tx = nil
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return s.wrap("rollback", err)
	}
	return nil
}

// wrap prefixes err and promotes lost connections to storage.ErrConnection.
func (s *Session) wrap(what string, err error) error {
	err = fmt.Errorf("%s: %s: %w", s.name, what, err)
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return storage.Connection(err)
	}
	return err
}

var _ storage.Session = (*Session)(nil)
