package dedup

import (
	"context"
	"errors"
	"fmt"
	"io"

	"csvload/internal/ident"
	"csvload/internal/parser/csv"
)

// RowSource yields data rows until io.EOF. *csv.Reader satisfies it.
type RowSource interface {
	Next() (csv.Record, error)
}

// Inserter is the write side of storage.Session.
type Inserter interface {
	InsertRow(ctx context.Context, t ident.Table, columns []ident.Column, values []any) error
}

// Stats summarises one Ingest call. Padded and Truncated count rows.
type Stats struct {
	Rows       int
	Inserted   int
	Duplicates int
	Padded     int
	Truncated  int
}

// Row error operations.
const (
	OpRead   = "read"
	OpInsert = "insert"
)

// RowError reports the row that stopped ingestion.
type RowError struct {
	Op   string
	Line int
	Err  error
}

func (e *RowError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("dedup: %s row at line %d: %v", e.Op, e.Line, e.Err)
	}
	return fmt.Sprintf("dedup: %s row: %v", e.Op, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

// Ingestor inserts rows of one file. Columns are the file's data columns in
// header order; each row is aligned to them by position.
type Ingestor struct {
	Store   Inserter
	Table   ident.Table
	Columns []ident.Column
	Key     ident.Column
	Scheme  Scheme

	// Known must be seeded from the table (LoadKnown). Accepted fingerprints
	// are added as rows are inserted, so repeats within the file are skipped.
	Known *KnownSet
}

// Ingest consumes rows until io.EOF. It stops at the first read or insert
// error and returns the stats gathered so far with a *RowError.
func (in *Ingestor) Ingest(ctx context.Context, rows RowSource) (Stats, error) {
	var st Stats
	if in.Known == nil {
		in.Known = NewKnownSet()
	}

	cols := make([]ident.Column, 0, len(in.Columns)+1)
	cols = append(cols, in.Columns...)
	cols = append(cols, in.Key)
	args := make([]any, len(cols))

	for {
		if err := ctx.Err(); err != nil {
			return st, err
		}

		rec, err := rows.Next()
		if errors.Is(err, io.EOF) {
			return st, nil
		}
		if err != nil {
			return st, &RowError{Op: OpRead, Line: rec.Line, Err: err}
		}
		st.Rows++

		vals, padded, truncated := Align(rec.Fields, len(in.Columns))
		if padded > 0 {
			st.Padded++
		}
		if truncated > 0 {
			st.Truncated++
		}

		fp := Fingerprint(vals, in.Scheme)
		if in.Known.Has(fp) {
			st.Duplicates++
			continue
		}

		for i, v := range vals {
			if v == nil {
				args[i] = nil
			} else {
				args[i] = *v
			}
		}
		args[len(vals)] = fp

		if err := in.Store.InsertRow(ctx, in.Table, cols, args); err != nil {
			return st, &RowError{Op: OpInsert, Line: rec.Line, Err: err}
		}
		in.Known.Add(fp)
		st.Inserted++
	}
}
