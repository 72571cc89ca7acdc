// Package importer drives one pass over input files: header normalization,
// schema reconciliation and deduplicated ingestion, one file at a time.
package importer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"csvload/internal/config"
	"csvload/internal/dedup"
	"csvload/internal/ident"
	"csvload/internal/metrics"
	"csvload/internal/parser/csv"
	"csvload/internal/schema"
	"csvload/internal/source"
	"csvload/internal/storage"
)

// Options tune a run.
type Options struct {
	Scheme dedup.Scheme

	// KeepPartial commits the rows inserted before a failing row. By default
	// a failing file is rolled back as a whole. Sessions implementing
	// storage.RowIsolator are switched to per-row savepoints for it.
	KeepPartial bool

	// Parser is passed to csv.NewReader.
	Parser config.Options
}

// Importer owns the session for the duration of a run. It is not safe for
// concurrent use; files are processed strictly one after another.
type Importer struct {
	Session storage.Session
	Layout  storage.Layout
	Options Options

	schema *schema.Reconciler
}

func New(s storage.Session, l storage.Layout, opt Options) *Importer {
	if opt.Scheme == "" {
		opt.Scheme = dedup.SchemeSeparated
	}
	if ri, ok := s.(storage.RowIsolator); ok {
		ri.IsolateRows(opt.KeepPartial)
	}
	return &Importer{Session: s, Layout: l, Options: opt, schema: schema.New(s, l)}
}

// Outcome reports one file. Err is nil on success and a *FileError otherwise.
type Outcome struct {
	File string

	// Header holds the raw header fields; Columns the identifiers that
	// survived normalization, aligned with data values by index. Dropped
	// lists the header positions that did not survive.
	Header     []string
	Columns    []ident.Column
	Dropped    []int
	Duplicated []ident.Column

	Created      bool
	KeyAdded     bool
	ColumnsAdded []ident.Column

	Rows       int
	Inserted   int
	Duplicates int
	Padded     int
	Truncated  int

	// RolledBack counts rows inserted and then discarded by the file's
	// rollback.
	RolledBack int

	Err      error
	Duration time.Duration
}

// Status is "ok", "skipped" for unusable input, or "failed".
func (o Outcome) Status() string {
	switch {
	case o.Err == nil:
		return "ok"
	case StageOf(o.Err) == StageRead:
		return "skipped"
	default:
		return "failed"
	}
}

// Summary totals a run.
type Summary struct {
	Files        int
	Imported     int
	Skipped      int
	Failed       int
	Inserted     int
	Duplicates   int
	ColumnsAdded int
}

func (s *Summary) add(o Outcome) {
	s.Files++
	switch o.Status() {
	case "ok":
		s.Imported++
	case "skipped":
		s.Skipped++
	default:
		s.Failed++
	}
	s.Inserted += o.Inserted
	s.Duplicates += o.Duplicates
	s.ColumnsAdded += len(o.ColumnsAdded)
}

// Fatal reports whether err must stop the run: lost connections and
// cancellation. Everything else is confined to its file.
func Fatal(err error) bool {
	return errors.Is(err, storage.ErrConnection) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// Run imports files in order. report, when non-nil, is called after each
// file. It returns early with the fatal error when Fatal says so; per-file
// failures only show up in the outcomes and the summary.
func (im *Importer) Run(ctx context.Context, files []source.File, report func(Outcome)) (Summary, error) {
	var sum Summary
	im.schema.Forget()

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		out := im.ImportFile(ctx, f)
		sum.add(out)
		if report != nil {
			report(out)
		}
		if out.Err != nil && Fatal(out.Err) {
			return sum, out.Err
		}
	}
	return sum, nil
}

// ImportFile processes one file end to end and never panics on bad input.
func (im *Importer) ImportFile(ctx context.Context, f source.File) (out Outcome) {
	start := time.Now()
	out.File = f.Name
	defer func() {
		out.Duration = time.Since(start)
		recordMetrics(out)
	}()

	fail := func(stage Stage, err error) Outcome {
		out.Err = &FileError{Stage: stage, File: f.Name, Err: err}
		return out
	}

	rc, err := f.Open()
	if err != nil {
		return fail(StageRead, err)
	}
	defer rc.Close()

	r := csv.NewReader(rc, im.Options.Parser)
	hdr, err := r.ReadHeader()
	if errors.Is(err, csv.ErrNoHeader) {
		return fail(StageRead, ErrEmptyHeader)
	}
	if err != nil {
		return fail(StageRead, err)
	}
	out.Header = hdr
	if blank(hdr) {
		return fail(StageRead, ErrEmptyHeader)
	}

	h := ident.NormalizeHeader(hdr)
	out.Columns = h.Columns
	out.Dropped = h.Dropped
	out.Duplicated = ident.FindDuplicates(h.Columns, storage.FoldsCase(im.Session))
	if len(h.Columns) == 0 {
		return fail(StageRead, ErrNoColumns)
	}
	if len(out.Duplicated) > 0 {
		return fail(StageSchema, fmt.Errorf("%w: %s", ErrDuplicateColumn, joinColumns(out.Duplicated)))
	}

	// DDL must finish before the transaction opens: some backends hold a
	// single connection.
	res, err := im.schema.Reconcile(ctx, h.Columns)
	out.Created, out.KeyAdded, out.ColumnsAdded = res.Created, res.KeyAdded, res.Added
	if err != nil {
		im.schema.Forget()
		return fail(StageSchema, err)
	}

	if err := im.Session.Begin(ctx); err != nil {
		return fail(StageInsert, err)
	}

	known, err := dedup.LoadKnown(ctx, im.Session, im.Layout.Table, im.Layout.Key)
	if err != nil {
		_ = im.Session.Rollback(ctx)
		return fail(StageInsert, err)
	}

	ing := &dedup.Ingestor{
		Store:   im.Session,
		Table:   im.Layout.Table,
		Columns: h.Columns,
		Key:     im.Layout.Key,
		Scheme:  im.Options.Scheme,
		Known:   known,
	}
	st, ingErr := ing.Ingest(ctx, r)
	out.Rows, out.Inserted, out.Duplicates = st.Rows, st.Inserted, st.Duplicates
	out.Padded, out.Truncated = st.Padded, st.Truncated

	if ingErr != nil {
		stage := StageInsert
		var re *dedup.RowError
		if errors.As(ingErr, &re) && re.Op == dedup.OpRead {
			stage = StageRead
		}
		if im.Options.KeepPartial && st.Inserted > 0 && !Fatal(ingErr) {
			if err := im.Session.Commit(ctx); err != nil {
				im.discard(ctx, &out)
				return fail(StageCommit, err)
			}
			return fail(stage, ingErr)
		}
		im.discard(ctx, &out)
		return fail(stage, ingErr)
	}

	if err := im.Session.Commit(ctx); err != nil {
		im.discard(ctx, &out)
		return fail(StageCommit, err)
	}
	return out
}

func (im *Importer) discard(ctx context.Context, out *Outcome) {
	_ = im.Session.Rollback(context.WithoutCancel(ctx))
	out.RolledBack = out.Inserted
	out.Inserted = 0
}

func recordMetrics(o Outcome) {
	metrics.RecordFile(o.Status(), o.Duration.Seconds())
	metrics.RecordRows(metrics.RowsInserted, o.Inserted)
	metrics.RecordRows(metrics.RowsDuplicate, o.Duplicates)
	metrics.RecordRows(metrics.RowsPadded, o.Padded)
	metrics.RecordRows(metrics.RowsTruncated, o.Truncated)
	metrics.RecordColumnsAdded(len(o.ColumnsAdded))
}

func blank(fields []string) bool {
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

func joinColumns(cols []ident.Column) string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.String()
	}
	return strings.Join(names, ", ")
}
