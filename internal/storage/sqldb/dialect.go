// Package sqldb implements storage.Session on top of database/sql. Backends
// plug in a Dialect that knows their quoting, placeholders and DDL.
package sqldb

import (
	"strings"

	"csvload/internal/ident"
	"csvload/internal/storage"
)

// Dialect produces backend-specific SQL. All builders are pure so they can be
// unit tested without a database.
type Dialect interface {
	// Quote quotes one identifier part.
	Quote(name string) string
	// Placeholder returns the n-th (1-based) bind marker.
	Placeholder(n int) string

	TableExistsSQL(t ident.Table) (string, []any)
	ColumnExistsSQL(t ident.Table, c ident.Column) (string, []any)
	CreateTableSQL(l storage.Layout) []string
	AddKeyColumnSQL(l storage.Layout) []string
	AddTextColumnSQL(t ident.Table, c ident.Column) string
}

// QuoteTable quotes every part of a possibly schema-qualified name.
func QuoteTable(d Dialect, t ident.Table) string {
	schema, name := t.Parts()
	if schema == "" {
		return d.Quote(name)
	}
	return d.Quote(schema) + "." + d.Quote(name)
}

// InsertSQL builds a single-row INSERT for columns.
func InsertSQL(d Dialect, t ident.Table, columns []ident.Column) string {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(QuoteTable(d, t))
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(d.Quote(c.String()))
	}
	b.WriteString(") VALUES (")
	for i := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(d.Placeholder(i + 1))
	}
	b.WriteString(")")
	return b.String()
}

// SelectKeysSQL selects every non-null key value.
func SelectKeysSQL(d Dialect, t ident.Table, key ident.Column) string {
	k := d.Quote(key.String())
	return "SELECT " + k + " FROM " + QuoteTable(d, t) + " WHERE " + k + " IS NOT NULL"
}
