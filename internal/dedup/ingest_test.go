package dedup

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"csvload/internal/ident"
	"csvload/internal/parser/csv"
)

type sliceSource struct {
	recs []csv.Record
	err  error // returned after recs are exhausted, instead of io.EOF
}

func (s *sliceSource) Next() (csv.Record, error) {
	if len(s.recs) == 0 {
		if s.err != nil {
			return csv.Record{}, s.err
		}
		return csv.Record{}, io.EOF
	}
	r := s.recs[0]
	s.recs = s.recs[1:]
	return r, nil
}

func rows(lines ...string) *sliceSource {
	s := &sliceSource{}
	for i, l := range lines {
		s.recs = append(s.recs, csv.Record{Line: i + 2, Fields: strings.Split(l, ";")})
	}
	return s
}

type insertCall struct {
	columns []string
	values  []any
}

type fakeStore struct {
	calls  []insertCall
	failAt int // 1-based call number that fails; 0 never
	keys   []string
	err    error
}

func (f *fakeStore) InsertRow(_ context.Context, _ ident.Table, columns []ident.Column, values []any) error {
	if f.failAt > 0 && len(f.calls)+1 == f.failAt {
		return errors.New("duplicate key")
	}
	names := make([]string, len(columns))
	for i, c := range columns {
		names[i] = c.String()
	}
	f.calls = append(f.calls, insertCall{columns: names, values: append([]any(nil), values...)})
	return nil
}

func (f *fakeStore) SelectKeys(context.Context, ident.Table, ident.Column) ([]string, error) {
	return f.keys, f.err
}

func newIngestor(store Inserter, known *KnownSet, cols ...string) *Ingestor {
	tbl, _ := ident.ParseTable("articles")
	ic := make([]ident.Column, len(cols))
	for i, c := range cols {
		ic[i] = ident.MustColumn(c)
	}
	return &Ingestor{
		Store:   store,
		Table:   tbl,
		Columns: ic,
		Key:     ident.MustColumn("record_hash"),
		Scheme:  SchemeSeparated,
		Known:   known,
	}
}

func TestIngest_SkipsRepeatsWithinFile(t *testing.T) {
	store := &fakeStore{}
	in := newIngestor(store, NewKnownSet(), "Imja", "Vozrad")

	st, err := in.Ingest(context.Background(), rows("Ann;30", "Ann;30", "Bob;41"))
	require.NoError(t, err)

	assert.Equal(t, Stats{Rows: 3, Inserted: 2, Duplicates: 1}, st)
	require.Len(t, store.calls, 2)
	assert.Equal(t, []string{"Imja", "Vozrad", "record_hash"}, store.calls[0].columns)
	assert.Equal(t, []any{"Ann", "30", Fingerprint(strs("Ann", "30"), SchemeSeparated)}, store.calls[0].values)
	assert.Equal(t, 2, in.Known.Len())
}

func TestIngest_SkipsStoredFingerprints(t *testing.T) {
	store := &fakeStore{}
	known := NewKnownSet(Fingerprint(strs("Ann", "30"), SchemeSeparated))
	in := newIngestor(store, known, "Imja", "Vozrad")

	st, err := in.Ingest(context.Background(), rows("Ann;30"))
	require.NoError(t, err)
	assert.Equal(t, 0, st.Inserted)
	assert.Equal(t, 1, st.Duplicates)
	assert.Empty(t, store.calls)
}

func TestIngest_PadsAndTruncates(t *testing.T) {
	store := &fakeStore{}
	in := newIngestor(store, nil, "a", "b", "c")

	st, err := in.Ingest(context.Background(), rows("1", "1;2;3;4;5", "1;2;3"))
	require.NoError(t, err)

	// the truncated row and the exact row align to the same values
	assert.Equal(t, Stats{Rows: 3, Inserted: 2, Duplicates: 1, Padded: 1, Truncated: 1}, st)
	assert.Equal(t, []any{"1", nil, nil}, store.calls[0].values[:3])
	assert.Equal(t, []any{"1", "2", "3"}, store.calls[1].values[:3])
	assert.Equal(t, Fingerprint(strs("1", "2", "3"), SchemeSeparated), store.calls[1].values[3])
}

func TestIngest_InsertErrorStopsWithLine(t *testing.T) {
	store := &fakeStore{failAt: 2}
	in := newIngestor(store, NewKnownSet(), "a")

	st, err := in.Ingest(context.Background(), rows("x", "y", "z"))
	require.Error(t, err)

	var re *RowError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, OpInsert, re.Op)
	assert.Equal(t, 3, re.Line)
	assert.Equal(t, 1, st.Inserted)
	assert.Equal(t, 2, st.Rows)
	assert.False(t, in.Known.Has(Fingerprint(strs("y"), SchemeSeparated)))
}

func TestIngest_ReadError(t *testing.T) {
	src := rows("x")
	src.err = errors.New("bare quote")
	in := newIngestor(&fakeStore{}, nil, "a")

	st, err := in.Ingest(context.Background(), src)
	var re *RowError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, OpRead, re.Op)
	assert.Equal(t, 1, st.Inserted)
}

func TestIngest_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	in := newIngestor(&fakeStore{}, nil, "a")

	_, err := in.Ingest(ctx, rows("x"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoadKnown(t *testing.T) {
	tbl, _ := ident.ParseTable("articles")
	key := ident.MustColumn("record_hash")

	set, err := LoadKnown(context.Background(), &fakeStore{keys: []string{"a", "b", "a"}}, tbl, key)
	require.NoError(t, err)
	assert.Equal(t, 2, set.Len())
	assert.True(t, set.Has("a"))
	assert.False(t, set.Has("c"))

	boom := errors.New("gone")
	_, err = LoadKnown(context.Background(), &fakeStore{err: boom}, tbl, key)
	assert.ErrorIs(t, err, boom)
}

func TestKnownSet_Add(t *testing.T) {
	s := NewKnownSet()
	assert.True(t, s.Add("k"))
	assert.False(t, s.Add("k"))
	assert.Equal(t, 1, s.Len())
}
