package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"csvload/internal/ident"
)

// ErrConnection marks failures reaching the backing store (open, ping, begin).
// The importer treats these as fatal for the whole run.
var ErrConnection = errors.New("storage: connection failed")

// ErrTxState is returned when Begin/Commit/Rollback are called out of order.
var ErrTxState = errors.New("storage: invalid transaction state")

// Connection wraps err so errors.Is(err, ErrConnection) holds while keeping the
// driver error reachable.
func Connection(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrConnection, err)
}

// Config is the minimal configuration needed to open a Session.
//
// Edge cases:
//   - Kind must be non-empty and must match a registered backend kind.
//   - DSN is passed through to the backend factory; validation is backend-specific.
type Config struct {
	Kind string
	DSN  string
}

// Session is the backing-store surface the importer needs. One Session is
// owned by one importer and is never shared between goroutines.
//
// Schema calls (CreateTable, AddKeyColumn, AddTextColumn) always run outside
// any open transaction. Reads and inserts go through the open transaction when
// there is one.
type Session interface {
	// Close releases backend resources. Call once.
	Close()

	TableExists(ctx context.Context, t ident.Table) (bool, error)
	ColumnExists(ctx context.Context, t ident.Table, c ident.Column) (bool, error)

	// CreateTable creates the table with the surrogate key and the unique
	// fingerprint column described by l.
	CreateTable(ctx context.Context, l Layout) error
	// AddKeyColumn adds the fingerprint column, with a uniqueness constraint,
	// to a table that predates it.
	AddKeyColumn(ctx context.Context, l Layout) error
	// AddTextColumn adds one nullable free-text column.
	AddTextColumn(ctx context.Context, t ident.Table, c ident.Column) error

	// SelectKeys returns every non-null value of column key.
	SelectKeys(ctx context.Context, t ident.Table, key ident.Column) ([]string, error)

	// Begin opens the unit of work used by InsertRow and SelectKeys.
	Begin(ctx context.Context) error
	// InsertRow inserts one row; values[i] belongs to columns[i]. Values are
	// nil (SQL NULL) or string.
	InsertRow(ctx context.Context, t ident.Table, columns []ident.Column, values []any) error
	Commit(ctx context.Context) error
	// Rollback discards the open unit of work. It is a no-op when none is open.
	Rollback(ctx context.Context) error
}

// CaseFolder is implemented by sessions that can tell whether column names
// differing only in case name the same column.
type CaseFolder interface {
	FoldsCase() bool
}

// FoldsCase reports how s matches column names. Sessions that do not
// implement CaseFolder are treated as case-insensitive.
func FoldsCase(s any) bool {
	if cf, ok := s.(CaseFolder); ok {
		return cf.FoldsCase()
	}
	return true
}

// RowIsolator is implemented by sessions where one failed statement poisons
// the open transaction. With isolation on, each InsertRow runs in its own
// savepoint, so the rows before a failure can still be committed.
type RowIsolator interface {
	IsolateRows(on bool)
}

type Factory func(ctx context.Context, cfg Config) (Session, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register registers a backend under a kind (e.g. "postgres", "sqlite").
//
// When to use:
//   - Call Register from an init() function in a backend package.
//
// Panics:
//   - If kind is empty, f is nil, or kind is already registered.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("storage: Register called with empty kind")
	}
	if f == nil {
		panic("storage: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("storage: factory already registered for kind=%q", kind))
	}
	factories[kind] = f
}

// Kinds lists the registered backend kinds.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	return out
}

// Open constructs a Session using the registered backend factory.
//
// Errors:
//   - Returns an error if cfg.Kind is empty or unsupported.
//   - Factory failures are returned as-is; backends wrap reachability
//     problems with Connection.
func Open(ctx context.Context, cfg Config) (Session, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("storage: unsupported kind=%s", cfg.Kind)
	}
	return f(ctx, cfg)
}
