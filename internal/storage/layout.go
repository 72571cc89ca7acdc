package storage

import (
	"fmt"

	"csvload/internal/ident"
)

// KeyLen is the width of the fingerprint column (hex SHA-256).
const KeyLen = 64

var (
	DefaultID  = ident.MustColumn("id")
	DefaultKey = ident.MustColumn("record_hash")
)

// Layout names the destination table and its two fixed columns.
type Layout struct {
	Table ident.Table
	ID    ident.Column
	Key   ident.Column
}

// NewLayout parses the configured names, applying defaults for empty columns.
func NewLayout(table, id, key string) (Layout, error) {
	t, err := ident.ParseTable(table)
	if err != nil {
		return Layout{}, fmt.Errorf("storage: table: %w", err)
	}
	l := Layout{Table: t, ID: DefaultID, Key: DefaultKey}
	if id != "" {
		if l.ID, err = ident.ParseColumn(id); err != nil {
			return Layout{}, fmt.Errorf("storage: id column: %w", err)
		}
	}
	if key != "" {
		if l.Key, err = ident.ParseColumn(key); err != nil {
			return Layout{}, fmt.Errorf("storage: key column: %w", err)
		}
	}
	if l.ID.Equal(l.Key) {
		return Layout{}, fmt.Errorf("storage: id and key columns must differ (both %q)", l.ID)
	}
	return l, nil
}

// Reserved reports whether c collides with one of the fixed columns,
// case-insensitively.
func (l Layout) Reserved(c ident.Column) bool {
	return l.ReservedCase(c, true)
}

// ReservedCase is Reserved with the comparison chosen by fold.
func (l Layout) ReservedCase(c ident.Column, fold bool) bool {
	k := c.Key(fold)
	return k == l.ID.Key(fold) || k == l.Key.Key(fold)
}

// IndexName derives the name of the unique index some backends need for the
// key column ("ux_articles_record_hash"). It is always a valid identifier.
func (l Layout) IndexName() string {
	n := "ux_" + l.Table.Name() + "_" + l.Key.String()
	if len(n) > ident.MaxLen {
		n = n[:ident.MaxLen]
	}
	return n
}
