// Package mysql registers the "mysql" storage backend (go-sql-driver/mysql).
//
// Tables are created InnoDB/utf8mb4 so Cyrillic and other non-Latin cell
// values round-trip. MySQL commits DDL implicitly, which is why the importer
// never runs schema changes inside the per-file transaction.
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	driver "github.com/go-sql-driver/mysql"

	"csvload/internal/ident"
	"csvload/internal/storage"
	"csvload/internal/storage/sqldb"
)

func init() {
	storage.Register("mysql", NewSession)
}

// NewSession parses cfg.DSN (user:pass@tcp(host:3306)/db) and connects. The
// driver's default connection collation is already utf8mb4.
func NewSession(ctx context.Context, cfg storage.Config) (storage.Session, error) {
	dc, err := ParseDSN(cfg.DSN)
	if err != nil {
		return nil, err
	}
	conn, err := driver.NewConnector(dc)
	if err != nil {
		return nil, storage.Connection(fmt.Errorf("mysql: connector: %w", err))
	}
	return sqldb.Connect(ctx, "mysql", sql.OpenDB(conn), Dialect{})
}

// ParseDSN parses dsn and requires a database name: unqualified table lookups
// go through DATABASE().
func ParseDSN(dsn string) (*driver.Config, error) {
	dc, err := driver.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("mysql: parse dsn: %w", err)
	}
	if dc.DBName == "" {
		return nil, fmt.Errorf("mysql: dsn must select a database (user:pass@tcp(host:3306)/dbname)")
	}
	return dc, nil
}

// Dialect is the MySQL flavour of sqldb.Dialect.
type Dialect struct{}

func (Dialect) Quote(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func (Dialect) Placeholder(int) string { return "?" }

func (Dialect) TableExistsSQL(t ident.Table) (string, []any) {
	schema, name := t.Parts()
	if schema == "" {
		return `SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name = ?`, []any{name}
	}
	return `SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = ? AND table_name = ?`, []any{schema, name}
}

func (Dialect) ColumnExistsSQL(t ident.Table, c ident.Column) (string, []any) {
	schema, name := t.Parts()
	if schema == "" {
		return `SELECT COUNT(*) FROM information_schema.columns WHERE table_schema = DATABASE() AND table_name = ? AND column_name = ?`,
			[]any{name, c.String()}
	}
	return `SELECT COUNT(*) FROM information_schema.columns WHERE table_schema = ? AND table_name = ? AND column_name = ?`,
		[]any{schema, name, c.String()}
}

func (d Dialect) CreateTableSQL(l storage.Layout) []string {
	return []string{fmt.Sprintf(
		"CREATE TABLE %s (%s INT AUTO_INCREMENT PRIMARY KEY, %s VARCHAR(%d) UNIQUE) "+
			"ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci",
		sqldb.QuoteTable(d, l.Table), d.Quote(l.ID.String()), d.Quote(l.Key.String()), storage.KeyLen,
	)}
}

func (d Dialect) AddKeyColumnSQL(l storage.Layout) []string {
	return []string{fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s VARCHAR(%d) UNIQUE",
		sqldb.QuoteTable(d, l.Table), d.Quote(l.Key.String()), storage.KeyLen)}
}

func (d Dialect) AddTextColumnSQL(t ident.Table, c ident.Column) string {
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s TEXT", sqldb.QuoteTable(d, t), d.Quote(c.String()))
}

var _ sqldb.Dialect = Dialect{}
