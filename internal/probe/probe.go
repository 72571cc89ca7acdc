// Package probe inspects input files without touching a database.
//
// It runs the same header normalization, row alignment and fingerprinting
// the importer uses, and reports what an import would see: surviving and
// dropped columns, ragged rows, in-file duplicates and per-column
// cardinality. cmd/csvload exposes it through -dry-run.
package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"csvload/internal/config"
	"csvload/internal/dedup"
	"csvload/internal/ident"
	"csvload/internal/parser/csv"
	"csvload/internal/source"
)

// distinctCapPerColumn bounds the per-column distinct sets so that
// high-cardinality columns (ids, free text) cannot exhaust memory.
const distinctCapPerColumn = 10000

var (
	ErrEmptyHeader = errors.New("probe: empty header")
	ErrNoColumns   = errors.New("probe: no usable columns")
)

// Options tune an inspection.
type Options struct {
	Parser config.Options
	Scheme dedup.Scheme

	// MaxRows stops reading after that many data rows; 0 reads everything.
	MaxRows int
}

// ColumnStats is the bounded cardinality of one column. Filled counts rows
// where the value is present and not blank; it is the ratio denominator.
type ColumnStats struct {
	Column   ident.Column
	Filled   int
	Distinct int
	Capped   bool
}

// Ratio is Distinct/Filled, or 0 when the column never had a value.
func (c ColumnStats) Ratio() float64 {
	if c.Filled == 0 {
		return 0
	}
	return float64(c.Distinct) / float64(c.Filled)
}

// Report describes one file.
type Report struct {
	File       string
	Header     []string
	Columns    []ident.Column
	Dropped    []int
	Duplicated []ident.Column

	Rows      int
	Padded    int
	Truncated int

	// Unique counts distinct row fingerprints within the file; Rows-Unique
	// rows would be skipped as duplicates even against an empty table.
	Unique int

	// Sampled is set when reading stopped at Options.MaxRows.
	Sampled bool

	Stats []ColumnStats
}

// Inspect reads f and builds its Report. Header problems are returned as
// errors together with whatever the report had gathered so far.
func Inspect(ctx context.Context, f source.File, opt Options) (Report, error) {
	rep := Report{File: f.Name}
	if opt.Scheme == "" {
		opt.Scheme = dedup.SchemeSeparated
	}

	rc, err := f.Open()
	if err != nil {
		return rep, err
	}
	defer rc.Close()

	r := csv.NewReader(rc, opt.Parser)
	hdr, err := r.ReadHeader()
	if errors.Is(err, csv.ErrNoHeader) {
		return rep, ErrEmptyHeader
	}
	if err != nil {
		return rep, fmt.Errorf("probe: %s: %w", f.Name, err)
	}
	rep.Header = hdr

	h := ident.NormalizeHeader(hdr)
	rep.Columns, rep.Dropped = h.Columns, h.Dropped
	rep.Duplicated = ident.Duplicates(h.Columns)
	if len(h.Columns) == 0 {
		return rep, ErrNoColumns
	}

	n := len(h.Columns)
	seen := dedup.NewKnownSet()
	stats := newUniqueness(h.Columns)

	for opt.MaxRows <= 0 || rep.Rows < opt.MaxRows {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return rep, fmt.Errorf("probe: %s after row %d: %w", f.Name, rep.Rows, err)
		}
		rep.Rows++

		vals, padded, truncated := dedup.Align(rec.Fields, n)
		if padded > 0 {
			rep.Padded++
		}
		if truncated > 0 {
			rep.Truncated++
		}
		if seen.Add(dedup.Fingerprint(vals, opt.Scheme)) {
			rep.Unique++
		}
		stats.observe(vals)
	}
	if opt.MaxRows > 0 && rep.Rows >= opt.MaxRows {
		rep.Sampled = true
	}
	rep.Stats = stats.result()
	return rep, nil
}

type uniqueness struct {
	sets  []map[string]struct{}
	stats []ColumnStats
}

func newUniqueness(cols []ident.Column) *uniqueness {
	u := &uniqueness{
		sets:  make([]map[string]struct{}, len(cols)),
		stats: make([]ColumnStats, len(cols)),
	}
	for i, c := range cols {
		u.sets[i] = make(map[string]struct{})
		u.stats[i].Column = c
	}
	return u
}

func (u *uniqueness) observe(vals []*string) {
	for i, p := range vals {
		if p == nil {
			continue
		}
		v := strings.TrimSpace(*p)
		if v == "" {
			continue
		}
		st := &u.stats[i]
		st.Filled++
		if st.Capped {
			continue
		}
		u.sets[i][v] = struct{}{}
		if len(u.sets[i]) >= distinctCapPerColumn {
			st.Capped = true
			u.sets[i] = nil
		}
	}
}

func (u *uniqueness) result() []ColumnStats {
	out := make([]ColumnStats, len(u.stats))
	for i, st := range u.stats {
		if st.Capped {
			st.Distinct = distinctCapPerColumn
		} else {
			st.Distinct = len(u.sets[i])
		}
		out[i] = st
	}
	return out
}

// Format writes a human-readable report. Columns are listed from least to
// most unique; columns that never had a value are left out.
func Format(w io.Writer, rep Report) error {
	var b strings.Builder
	fmt.Fprintf(&b, "file: %s\n", rep.File)
	fmt.Fprintf(&b, "columns: %d kept, %d dropped\n", len(rep.Columns), len(rep.Dropped))
	for _, i := range rep.Dropped {
		if i < len(rep.Header) {
			fmt.Fprintf(&b, "  dropped #%d %q\n", i, rep.Header[i])
		}
	}
	if len(rep.Duplicated) > 0 {
		names := make([]string, len(rep.Duplicated))
		for i, c := range rep.Duplicated {
			names[i] = c.String()
		}
		fmt.Fprintf(&b, "  duplicate columns: %s (import would fail)\n", strings.Join(names, ", "))
	}

	rows := fmt.Sprintf("%d", rep.Rows)
	if rep.Sampled {
		rows += " (sampled)"
	}
	fmt.Fprintf(&b, "rows: %s, unique %d, duplicate %d, padded %d, truncated %d\n",
		rows, rep.Unique, rep.Rows-rep.Unique, rep.Padded, rep.Truncated)

	stats := make([]ColumnStats, 0, len(rep.Stats))
	for _, st := range rep.Stats {
		if st.Filled > 0 {
			stats = append(stats, st)
		}
	}
	sort.SliceStable(stats, func(i, j int) bool {
		ri, rj := stats[i].Ratio(), stats[j].Ratio()
		if ri == rj {
			return stats[i].Column.String() < stats[j].Column.String()
		}
		return ri < rj
	})
	if len(stats) > 0 {
		fmt.Fprintf(&b, "%-24s\t%-7s\t%-7s\tratio\tcapped\n", "col", "unique", "rows")
		for _, st := range stats {
			fmt.Fprintf(&b, "%-24s\t%-7d\t%-7d\t%.1f%%\t%t\n",
				st.Column, st.Distinct, st.Filled, st.Ratio()*100, st.Capped)
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}
