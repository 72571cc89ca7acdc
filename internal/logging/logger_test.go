package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"csvload/internal/ident"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNew_JSONFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "warn", "json")
	l.Info("hidden")
	l.Warn("shown", "file", "a.csv")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1: %q", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("not JSON: %v", err)
	}
	if entry["msg"] != "shown" || entry["file"] != "a.csv" {
		t.Errorf("entry = %v", entry)
	}
}

func TestWithFields_CarriesRunID(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(New(&buf, "debug", "text"))
	defer slog.SetDefault(prev)

	ctx := WithRunID(context.Background(), "run-1")
	if RunID(ctx) != "run-1" {
		t.Fatalf("RunID = %q", RunID(ctx))
	}
	WithFields(ctx, "file", "a.csv").Info("imported")

	out := buf.String()
	if !strings.Contains(out, "run_id=run-1") || !strings.Contains(out, "file=a.csv") {
		t.Errorf("log line missing fields: %q", out)
	}
}

func TestFromContext_NoRunID(t *testing.T) {
	if RunID(context.Background()) != "" {
		t.Fatal("expected empty run id")
	}
	if FromContext(context.Background()) == nil {
		t.Fatal("nil logger")
	}
}

func TestNew_JSONRendersIdentifiers(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "info", "json")
	l.Info("file imported",
		"columns", []ident.Column{ident.MustColumn("Imja"), ident.MustColumn("Vozrad")},
		"columns_added", []ident.Column{ident.MustColumn("Vozrad")},
	)

	var entry struct {
		Columns      []string `json:"columns"`
		ColumnsAdded []string `json:"columns_added"`
	}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("not JSON: %v: %s", err, buf.String())
	}
	if len(entry.Columns) != 2 || entry.Columns[0] != "Imja" || entry.Columns[1] != "Vozrad" {
		t.Errorf("columns = %q, want [Imja Vozrad]", entry.Columns)
	}
	if len(entry.ColumnsAdded) != 1 || entry.ColumnsAdded[0] != "Vozrad" {
		t.Errorf("columns_added = %q, want [Vozrad]", entry.ColumnsAdded)
	}
}

func TestNew_TextRendersIdentifiers(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, "info", "text").Info("x", "columns", []ident.Column{ident.MustColumn("Imja")})
	if !strings.Contains(buf.String(), "columns=[Imja]") {
		t.Errorf("text line = %q", buf.String())
	}
}
