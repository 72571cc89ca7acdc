// Package ident holds the validated identifier types used to build dynamic
// schema statements.
//
// Column values can only be created by the header normalizer or by ParseColumn,
// both of which restrict names to [A-Za-z0-9_]. Backends still quote them with
// their dialect quoting, but no raw header text ever reaches a SQL statement.
package ident

import (
	"errors"
	"fmt"
	"strings"
)

// MaxLen is the longest identifier we emit. Postgres silently truncates names
// longer than 63 bytes, which would break the "does column exist" probe.
const MaxLen = 63

// ErrInvalid is returned when text is not a valid identifier.
var ErrInvalid = errors.New("ident: invalid identifier")

// Column is a sanitized column identifier.
type Column struct {
	name string
}

// ParseColumn validates s as-is. It does not transliterate or clean; use
// Normalize for header text.
func ParseColumn(s string) (Column, error) {
	if !valid(s) {
		return Column{}, fmt.Errorf("%w: column %q", ErrInvalid, s)
	}
	return Column{name: s}, nil
}

// MustColumn is ParseColumn for compile-time constants.
func MustColumn(s string) Column {
	c, err := ParseColumn(s)
	if err != nil {
		panic(err)
	}
	return c
}

func (c Column) String() string { return c.name }

// IsZero reports whether c was never initialised.
func (c Column) IsZero() bool { return c.name == "" }

// MarshalText renders c as its bare name in JSON and structured logs.
func (c Column) MarshalText() ([]byte, error) { return []byte(c.name), nil }

// Equal compares case-insensitively; MySQL, SQL Server and SQLite all treat
// column names that way.
func (c Column) Equal(o Column) bool { return strings.EqualFold(c.name, o.name) }

// Key is the name used to match c against other columns. With fold set it is
// lowercased; backends with case-sensitive identifiers (Postgres, quoted) pass
// false and compare exact names.
func (c Column) Key(fold bool) string {
	if fold {
		return strings.ToLower(c.name)
	}
	return c.name
}

// Table is a validated, optionally schema-qualified table name ("dbo.articles").
type Table struct {
	parts []string
}

// ParseTable validates a configured table name. Each dot-separated part must be
// a valid identifier.
func ParseTable(s string) (Table, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Table{}, fmt.Errorf("%w: empty table name", ErrInvalid)
	}
	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return Table{}, fmt.Errorf("%w: table %q has more than one schema qualifier", ErrInvalid, s)
	}
	for _, p := range parts {
		if !valid(p) {
			return Table{}, fmt.Errorf("%w: table %q", ErrInvalid, s)
		}
	}
	return Table{parts: parts}, nil
}

// Parts returns the schema (possibly empty) and the bare table name.
func (t Table) Parts() (schema, name string) {
	switch len(t.parts) {
	case 0:
		return "", ""
	case 1:
		return "", t.parts[0]
	default:
		return t.parts[0], t.parts[1]
	}
}

// Name returns the unqualified table name.
func (t Table) Name() string {
	_, n := t.Parts()
	return n
}

func (t Table) String() string { return strings.Join(t.parts, ".") }

func (t Table) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t Table) IsZero() bool { return len(t.parts) == 0 }

func valid(s string) bool {
	if s == "" || len(s) > MaxLen {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !allowed(s[i]) {
			return false
		}
	}
	return true
}

func allowed(b byte) bool {
	return b == '_' ||
		(b >= 'a' && b <= 'z') ||
		(b >= 'A' && b <= 'Z') ||
		(b >= '0' && b <= '9')
}
