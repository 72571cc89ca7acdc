// Package metrics is a small process-wide facade over a pluggable backend.
// Import code records through the helpers below and never sees a vendor SDK.
package metrics

import "sync"

// Labels are metric dimensions. Backends may ignore labels they do not know.
type Labels map[string]string

// Backend receives metric events.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
}

// Flusher is implemented by backends that buffer.
type Flusher interface {
	Flush() error
}

// Metric names.
const (
	FilesTotal          = "csvload_files_total"
	RowsTotal           = "csvload_rows_total"
	ColumnsAddedTotal   = "csvload_columns_added_total"
	FileDurationSeconds = "csvload_file_duration_seconds"
)

// Row kinds for RowsTotal.
const (
	RowsInserted  = "inserted"
	RowsDuplicate = "duplicate"
	RowsPadded    = "padded"
	RowsTruncated = "truncated"
)

type nop struct{}

func (nop) IncCounter(string, float64, Labels)       {}
func (nop) ObserveHistogram(string, float64, Labels) {}

var (
	mu      sync.RWMutex
	backend Backend = nop{}
)

// SetBackend installs b; nil restores the no-op backend.
func SetBackend(b Backend) {
	mu.Lock()
	defer mu.Unlock()
	if b == nil {
		b = nop{}
	}
	backend = b
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

func IncCounter(name string, delta float64, labels Labels) {
	current().IncCounter(name, delta, labels)
}

func ObserveHistogram(name string, value float64, labels Labels) {
	current().ObserveHistogram(name, value, labels)
}

// Flush flushes the backend when it buffers; otherwise it is a no-op.
func Flush() error {
	if f, ok := current().(Flusher); ok {
		return f.Flush()
	}
	return nil
}

// RecordFile counts one processed file and its duration. status is "ok",
// "skipped" or "failed".
func RecordFile(status string, seconds float64) {
	l := Labels{"status": status}
	IncCounter(FilesTotal, 1, l)
	ObserveHistogram(FileDurationSeconds, seconds, l)
}

// RecordRows counts rows of one kind; zero counts are dropped.
func RecordRows(kind string, n int) {
	if n <= 0 {
		return
	}
	IncCounter(RowsTotal, float64(n), Labels{"kind": kind})
}

func RecordColumnsAdded(n int) {
	if n <= 0 {
		return
	}
	IncCounter(ColumnsAddedTotal, float64(n), nil)
}
