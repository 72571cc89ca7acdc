package postgres

import (
	"fmt"
	"strings"

	"csvload/internal/ident"
	"csvload/internal/storage"
)

// The builders below are pure and deterministic, so SQL shape and placeholder
// numbering are unit tested without a database.

// pgIdent double-quotes an identifier part.
func pgIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func pgTable(t ident.Table) string {
	schema, name := t.Parts()
	if schema == "" {
		return pgIdent(name)
	}
	return pgIdent(schema) + "." + pgIdent(name)
}

func tableExistsSQL(t ident.Table) (string, []any) {
	schema, name := t.Parts()
	if schema == "" {
		return `SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = $1)`,
			[]any{name}
	}
	return `SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = $1 AND table_name = $2)`,
		[]any{schema, name}
}

func columnExistsSQL(t ident.Table, c ident.Column) (string, []any) {
	schema, name := t.Parts()
	if schema == "" {
		return `SELECT EXISTS (SELECT 1 FROM information_schema.columns WHERE table_schema = current_schema() AND table_name = $1 AND column_name = $2)`,
			[]any{name, c.String()}
	}
	return `SELECT EXISTS (SELECT 1 FROM information_schema.columns WHERE table_schema = $1 AND table_name = $2 AND column_name = $3)`,
		[]any{schema, name, c.String()}
}

func createTableSQL(l storage.Layout) string {
	return fmt.Sprintf(`CREATE TABLE %s (%s BIGSERIAL PRIMARY KEY, %s VARCHAR(%d) UNIQUE)`,
		pgTable(l.Table), pgIdent(l.ID.String()), pgIdent(l.Key.String()), storage.KeyLen)
}

func addKeyColumnSQL(l storage.Layout) string {
	return fmt.Sprintf(`ALTER TABLE %s ADD COLUMN %s VARCHAR(%d) UNIQUE`,
		pgTable(l.Table), pgIdent(l.Key.String()), storage.KeyLen)
}

func addTextColumnSQL(t ident.Table, c ident.Column) string {
	return fmt.Sprintf(`ALTER TABLE %s ADD COLUMN %s TEXT`, pgTable(t), pgIdent(c.String()))
}

func selectKeysSQL(t ident.Table, key ident.Column) string {
	k := pgIdent(key.String())
	return fmt.Sprintf(`SELECT %s FROM %s WHERE %s IS NOT NULL`, k, pgTable(t), k)
}

// insertSQL builds a single-row INSERT with $1..$n placeholders.
func insertSQL(t ident.Table, columns []ident.Column) string {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(pgTable(t))
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(pgIdent(c.String()))
	}
	b.WriteString(") VALUES (")
	for i := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(fmt.Sprintf("$%d", i+1))
	}
	b.WriteString(")")
	return b.String()
}
