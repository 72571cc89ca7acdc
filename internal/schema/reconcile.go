// Package schema makes sure the destination table can hold a file's columns.
// It only ever creates the table or adds columns; nothing is renamed,
// retyped or dropped.
package schema

import (
	"context"
	"errors"
	"fmt"

	"csvload/internal/ident"
	"csvload/internal/storage"
)

// ErrSchema wraps every reconciliation failure.
var ErrSchema = errors.New("schema: reconcile failed")

// ErrReserved is returned when a data column has the name of the id or key
// column.
var ErrReserved = errors.New("schema: column name is reserved")

// Store is the DDL side of storage.Session.
type Store interface {
	TableExists(ctx context.Context, t ident.Table) (bool, error)
	ColumnExists(ctx context.Context, t ident.Table, c ident.Column) (bool, error)
	CreateTable(ctx context.Context, l storage.Layout) error
	AddKeyColumn(ctx context.Context, l storage.Layout) error
	AddTextColumn(ctx context.Context, t ident.Table, c ident.Column) error
}

// Result describes what Reconcile changed.
type Result struct {
	Created  bool
	KeyAdded bool
	Added    []ident.Column
}

// Changed reports whether any DDL ran.
func (r Result) Changed() bool {
	return r.Created || r.KeyAdded || len(r.Added) > 0
}

// Reconciler tracks the table state across the files of one run:
//
//	absent -> present without key -> present with key
//
// Columns confirmed to exist are remembered so later files only probe new
// names.
type Reconciler struct {
	Store  Store
	Layout storage.Layout

	// FoldCase makes names differing only in case the same column. New takes
	// it from the store (storage.FoldsCase).
	FoldCase bool

	keyed   bool
	ensured map[string]bool
}

func New(store Store, l storage.Layout) *Reconciler {
	return &Reconciler{Store: store, Layout: l, FoldCase: storage.FoldsCase(store)}
}

// Reconcile guarantees the table exists with its id and key columns and
// every column in cols. Names are matched per FoldCase, so a column repeated
// in cols is handled once.
func (r *Reconciler) Reconcile(ctx context.Context, cols []ident.Column) (Result, error) {
	var res Result
	if r.ensured == nil {
		r.ensured = make(map[string]bool)
	}

	for _, c := range cols {
		if r.Layout.ReservedCase(c, r.FoldCase) {
			return res, fmt.Errorf("%w: %w: %q", ErrSchema, ErrReserved, c)
		}
	}

	if !r.keyed {
		created, keyAdded, err := r.ensureTable(ctx)
		res.Created, res.KeyAdded = created, keyAdded
		if err != nil {
			return res, err
		}
		r.keyed = true
	}

	t := r.Layout.Table
	for _, c := range cols {
		k := c.Key(r.FoldCase)
		if r.ensured[k] {
			continue
		}
		if !res.Created {
			ok, err := r.Store.ColumnExists(ctx, t, c)
			if err != nil {
				return res, fmt.Errorf("%w: check column %s: %w", ErrSchema, c, err)
			}
			if ok {
				r.ensured[k] = true
				continue
			}
		}
		if err := r.Store.AddTextColumn(ctx, t, c); err != nil {
			return res, fmt.Errorf("%w: add column %s: %w", ErrSchema, c, err)
		}
		r.ensured[k] = true
		res.Added = append(res.Added, c)
	}
	return res, nil
}

func (r *Reconciler) ensureTable(ctx context.Context) (created, keyAdded bool, err error) {
	l := r.Layout
	exists, err := r.Store.TableExists(ctx, l.Table)
	if err != nil {
		return false, false, fmt.Errorf("%w: check table %s: %w", ErrSchema, l.Table, err)
	}
	if !exists {
		if err := r.Store.CreateTable(ctx, l); err != nil {
			return false, false, fmt.Errorf("%w: create table %s: %w", ErrSchema, l.Table, err)
		}
		return true, false, nil
	}

	hasKey, err := r.Store.ColumnExists(ctx, l.Table, l.Key)
	if err != nil {
		return false, false, fmt.Errorf("%w: check key column: %w", ErrSchema, err)
	}
	if hasKey {
		return false, false, nil
	}
	if err := r.Store.AddKeyColumn(ctx, l); err != nil {
		return false, false, fmt.Errorf("%w: add key column %s: %w", ErrSchema, l.Key, err)
	}
	return false, true, nil
}

// Forget drops cached state so the next Reconcile probes the table again.
// Use it after a failure that may have left the cache ahead of the database.
func (r *Reconciler) Forget() {
	r.keyed = false
	r.ensured = nil
}
