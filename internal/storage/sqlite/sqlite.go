// Package sqlite registers the "sqlite" storage backend (modernc.org/sqlite,
// pure Go, no cgo).
//
// Key differences vs the server backends:
//   - ALTER TABLE ... ADD COLUMN cannot carry UNIQUE, so the key column gets a
//     separate unique index.
//   - The pool is pinned to one connection. Ingestion is sequential anyway, and
//     it keeps ":memory:" databases alive across calls.
package sqlite

import (
	"context"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"csvload/internal/ident"
	"csvload/internal/storage"
	"csvload/internal/storage/sqldb"
)

func init() {
	storage.Register("sqlite", NewSession)
}

// NewSession opens cfg.DSN with the modernc driver.
func NewSession(ctx context.Context, cfg storage.Config) (storage.Session, error) {
	s, err := sqldb.Open(ctx, "sqlite", "sqlite", cfg.DSN, Dialect{})
	if err != nil {
		return nil, err
	}
	s.DB().SetMaxOpenConns(1)
	return s, nil
}

// Dialect is the SQLite flavour of sqldb.Dialect.
type Dialect struct{}

func (Dialect) Quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (Dialect) Placeholder(int) string { return "?" }

func (d Dialect) TableExistsSQL(t ident.Table) (string, []any) {
	schema, name := t.Parts()
	master := "sqlite_master"
	if schema != "" {
		master = d.Quote(schema) + ".sqlite_master"
	}
	return fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE type = 'table' AND name = ?`, master), []any{name}
}

func (Dialect) ColumnExistsSQL(t ident.Table, c ident.Column) (string, []any) {
	schema, name := t.Parts()
	if schema == "" {
		return `SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ? COLLATE NOCASE`, []any{name, c.String()}
	}
	return `SELECT COUNT(*) FROM pragma_table_info(?, ?) WHERE name = ? COLLATE NOCASE`, []any{name, schema, c.String()}
}

func (d Dialect) CreateTableSQL(l storage.Layout) []string {
	return []string{fmt.Sprintf(
		`CREATE TABLE %s (%s INTEGER PRIMARY KEY AUTOINCREMENT, %s VARCHAR(%d) UNIQUE)`,
		sqldb.QuoteTable(d, l.Table), d.Quote(l.ID.String()), d.Quote(l.Key.String()), storage.KeyLen,
	)}
}

func (d Dialect) AddKeyColumnSQL(l storage.Layout) []string {
	schema, name := l.Table.Parts()
	index := d.Quote(l.IndexName())
	if schema != "" {
		index = d.Quote(schema) + "." + index
	}
	return []string{
		fmt.Sprintf(`ALTER TABLE %s ADD COLUMN %s VARCHAR(%d)`,
			sqldb.QuoteTable(d, l.Table), d.Quote(l.Key.String()), storage.KeyLen),
		fmt.Sprintf(`CREATE UNIQUE INDEX %s ON %s (%s)`,
			index, d.Quote(name), d.Quote(l.Key.String())),
	}
}

func (d Dialect) AddTextColumnSQL(t ident.Table, c ident.Column) string {
	return fmt.Sprintf(`ALTER TABLE %s ADD COLUMN %s TEXT`, sqldb.QuoteTable(d, t), d.Quote(c.String()))
}

var _ sqldb.Dialect = Dialect{}
