package schema

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"csvload/internal/ident"
	"csvload/internal/storage"
	_ "csvload/internal/storage/sqlite"
)

// fakeStore keeps an in-memory table definition and logs every call. With
// exact set it matches column names case-sensitively, like quoted Postgres
// identifiers.
type fakeStore struct {
	exists  bool
	columns map[string]bool
	calls   []string
	failOn  string
	exact   bool
}

func (f *fakeStore) FoldsCase() bool { return !f.exact }

func (f *fakeStore) key(name string) string {
	if f.exact {
		return name
	}
	return strings.ToLower(name)
}

func (f *fakeStore) record(call string) error {
	f.calls = append(f.calls, call)
	if f.failOn != "" && strings.HasPrefix(call, f.failOn) {
		return errors.New("boom")
	}
	return nil
}

func (f *fakeStore) TableExists(_ context.Context, t ident.Table) (bool, error) {
	return f.exists, f.record("exists " + t.String())
}

func (f *fakeStore) ColumnExists(_ context.Context, _ ident.Table, c ident.Column) (bool, error) {
	return f.columns[f.key(c.String())], f.record("has " + c.String())
}

func (f *fakeStore) CreateTable(_ context.Context, l storage.Layout) error {
	if err := f.record("create " + l.Table.String()); err != nil {
		return err
	}
	f.exists = true
	f.columns = map[string]bool{"id": true, f.key(l.Key.String()): true}
	return nil
}

func (f *fakeStore) AddKeyColumn(_ context.Context, l storage.Layout) error {
	if err := f.record("addkey " + l.Key.String()); err != nil {
		return err
	}
	f.columns[f.key(l.Key.String())] = true
	return nil
}

func (f *fakeStore) AddTextColumn(_ context.Context, _ ident.Table, c ident.Column) error {
	if err := f.record("add " + c.String()); err != nil {
		return err
	}
	f.columns[f.key(c.String())] = true
	return nil
}

func cols(names ...string) []ident.Column {
	out := make([]ident.Column, len(names))
	for i, n := range names {
		out[i] = ident.MustColumn(n)
	}
	return out
}

func testLayout(t *testing.T) storage.Layout {
	t.Helper()
	l, err := storage.NewLayout("articles", "", "")
	require.NoError(t, err)
	return l
}

func TestReconcile_CreatesAbsentTable(t *testing.T) {
	f := &fakeStore{}
	r := New(f, testLayout(t))

	res, err := r.Reconcile(context.Background(), cols("Imja", "Vozrad"))
	require.NoError(t, err)

	assert.True(t, res.Created)
	assert.False(t, res.KeyAdded)
	assert.Equal(t, cols("Imja", "Vozrad"), res.Added)
	assert.Equal(t, []string{"exists articles", "create articles", "add Imja", "add Vozrad"}, f.calls)
}

func TestReconcile_AddsKeyToLegacyTable(t *testing.T) {
	f := &fakeStore{exists: true, columns: map[string]bool{"id": true, "imja": true}}
	r := New(f, testLayout(t))

	res, err := r.Reconcile(context.Background(), cols("Imja", "Vozrad"))
	require.NoError(t, err)

	assert.False(t, res.Created)
	assert.True(t, res.KeyAdded)
	assert.Equal(t, cols("Vozrad"), res.Added)
	assert.Equal(t, []string{
		"exists articles", "has record_hash", "addkey record_hash",
		"has Imja", "has Vozrad", "add Vozrad",
	}, f.calls)
}

func TestReconcile_CachesAcrossFiles(t *testing.T) {
	f := &fakeStore{}
	r := New(f, testLayout(t))

	_, err := r.Reconcile(context.Background(), cols("a", "b"))
	require.NoError(t, err)
	f.calls = nil

	res, err := r.Reconcile(context.Background(), cols("B", "c", "a"))
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.Equal(t, cols("c"), res.Added)
	assert.Equal(t, []string{"has c", "add c"}, f.calls)

	f.calls = nil
	res, err = r.Reconcile(context.Background(), cols("a", "c"))
	require.NoError(t, err)
	assert.False(t, res.Changed())
	assert.Empty(t, f.calls)
}

func TestReconcile_RepeatedColumnInOneHeader(t *testing.T) {
	f := &fakeStore{}
	r := New(f, testLayout(t))

	res, err := r.Reconcile(context.Background(), cols("Name", "name"))
	require.NoError(t, err)
	assert.Equal(t, cols("Name"), res.Added)
}

func TestReconcile_ReservedColumn(t *testing.T) {
	f := &fakeStore{}
	r := New(f, testLayout(t))

	_, err := r.Reconcile(context.Background(), cols("Imja", "ID"))
	assert.ErrorIs(t, err, ErrSchema)
	assert.ErrorIs(t, err, ErrReserved)
	assert.Empty(t, f.calls, "no DDL may run for a rejected header")
}

func TestReconcile_Errors(t *testing.T) {
	for _, op := range []string{"exists", "create", "add Imja"} {
		t.Run(op, func(t *testing.T) {
			f := &fakeStore{failOn: op}
			r := New(f, testLayout(t))
			_, err := r.Reconcile(context.Background(), cols("Imja"))
			assert.ErrorIs(t, err, ErrSchema)
		})
	}
}

func TestReconcile_ForgetRechecksColumns(t *testing.T) {
	f := &fakeStore{}
	r := New(f, testLayout(t))
	_, err := r.Reconcile(context.Background(), cols("a"))
	require.NoError(t, err)

	r.Forget()
	f.calls = nil
	_, err = r.Reconcile(context.Background(), cols("a"))
	require.NoError(t, err)
	assert.Equal(t, []string{"exists articles", "has record_hash", "has a"}, f.calls)
}

func TestReconcile_SQLite(t *testing.T) {
	ctx := context.Background()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	s, err := storage.Open(ctx, storage.Config{Kind: "sqlite", DSN: dsn})
	require.NoError(t, err)
	t.Cleanup(s.Close)

	l := testLayout(t)
	r := New(s, l)

	res, err := r.Reconcile(ctx, cols("Imja", "Vozrad"))
	require.NoError(t, err)
	assert.True(t, res.Created)

	// a fresh reconciler sees the existing table and adds only the new column
	r2 := New(s, l)
	res, err = r2.Reconcile(ctx, cols("imja", "Gorod"))
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.False(t, res.KeyAdded)
	assert.Equal(t, cols("Gorod"), res.Added)

	for _, c := range cols("id", "record_hash", "Imja", "Vozrad", "Gorod") {
		ok, err := s.ColumnExists(ctx, l.Table, c)
		require.NoError(t, err)
		assert.True(t, ok, c.String())
	}
}

func TestReconcile_CaseSensitiveStore(t *testing.T) {
	f := &fakeStore{exact: true}
	r := New(f, testLayout(t))
	require.False(t, r.FoldCase)

	res, err := r.Reconcile(context.Background(), cols("Name"))
	require.NoError(t, err)
	assert.Equal(t, cols("Name"), res.Added)

	res, err = r.Reconcile(context.Background(), cols("name", "Name"))
	require.NoError(t, err)
	assert.Equal(t, cols("name"), res.Added)
	assert.True(t, f.columns["Name"])
	assert.True(t, f.columns["name"])
}

func TestReconcile_CaseSensitiveReservedNames(t *testing.T) {
	f := &fakeStore{exact: true}
	r := New(f, testLayout(t))

	res, err := r.Reconcile(context.Background(), cols("ID"))
	require.NoError(t, err, "ID is a distinct column from id when case matters")
	assert.Equal(t, cols("ID"), res.Added)

	_, err = r.Reconcile(context.Background(), cols("id"))
	assert.ErrorIs(t, err, ErrReserved)
}
