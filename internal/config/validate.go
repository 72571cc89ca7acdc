package config

import (
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
	"golang.org/x/text/encoding/htmlindex"

	"csvload/internal/storage"
)

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is a single validation finding. Path uses the JSON field names
// ("storage.dsn").
type Issue struct {
	Severity Severity
	Path     string
	Message  string
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: %s: %s", i.Severity, i.Path, i.Message)
}

// Kinds lists the storage backends a config may name.
var Kinds = []string{"mssql", "mysql", "postgres", "sqlite"}

var fingerprints = map[string]bool{"separated": true, "concat": true}

// Validate reports every problem in p. A pipeline is runnable when no issue
// has SeverityError; see HasErrors.
func Validate(p *Pipeline) []Issue {
	var out []Issue
	add := func(sev Severity, path, format string, args ...any) {
		out = append(out, Issue{Severity: sev, Path: path, Message: fmt.Sprintf(format, args...)})
	}

	if strings.TrimSpace(p.Source.Dir) == "" {
		add(SeverityError, "source.dir", "is required")
	}
	if len(p.Source.Extensions) == 0 {
		add(SeverityError, "source.extensions", "at least one extension is required")
	}
	for i, ext := range p.Source.Extensions {
		if !strings.HasPrefix(ext, ".") || len(ext) < 2 {
			add(SeverityError, fmt.Sprintf("source.extensions[%d]", i), "%q must start with a dot", ext)
		}
	}
	if p.Source.Encoding != "" {
		if _, err := htmlindex.Get(p.Source.Encoding); err != nil {
			add(SeverityError, "source.encoding", "unknown encoding %q", p.Source.Encoding)
		}
	}

	comma := p.Parser.Options.Rune("comma", ';')
	if v, ok := p.Parser.Options.Any("comma").(string); ok && p.Parser.Options.Rune("comma", 0) == 0 {
		add(SeverityError, "parser.options.comma", "must be a single character, got %q", v)
	}
	if comma == '"' || comma == '\r' || comma == '\n' {
		add(SeverityError, "parser.options.comma", "%q cannot be used as a delimiter", comma)
	}

	if p.Storage.Kind == "" {
		add(SeverityError, "storage.kind", "is required (one of %s)", strings.Join(Kinds, ", "))
	} else if !contains(Kinds, p.Storage.Kind) {
		add(SeverityError, "storage.kind", "unknown backend %q (one of %s)", p.Storage.Kind, strings.Join(Kinds, ", "))
	}
	if strings.TrimSpace(p.Storage.DSN) == "" {
		add(SeverityError, "storage.dsn", "is required")
	}
	if _, err := storage.NewLayout(p.Storage.Table, p.Storage.IDColumn, p.Storage.KeyColumn); err != nil {
		add(SeverityError, "storage.table", "%v", err)
	}

	if !fingerprints[p.Ingest.Fingerprint] {
		add(SeverityError, "ingest.fingerprint", "must be separated or concat, got %q", p.Ingest.Fingerprint)
	}
	if p.Ingest.KeepPartial {
		add(SeverityWarning, "ingest.keep_partial", "a failing row leaves its file partially imported")
	}

	if p.Runtime.Schedule != "" {
		if _, err := cron.ParseStandard(p.Runtime.Schedule); err != nil {
			add(SeverityError, "runtime.schedule", "invalid cron expression: %v", err)
		}
	}
	if p.Runtime.Debounce.Duration < 0 {
		add(SeverityError, "runtime.debounce", "must not be negative")
	}

	switch strings.ToLower(p.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		add(SeverityError, "logging.level", "must be one of debug, info, warn, error, got %q", p.Logging.Level)
	}
	switch strings.ToLower(p.Logging.Format) {
	case "text", "json":
	default:
		add(SeverityError, "logging.format", "must be text or json, got %q", p.Logging.Format)
	}

	return out
}

func HasErrors(issues []Issue) bool {
	for _, i := range issues {
		if i.Severity == SeverityError {
			return true
		}
	}
	return false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
