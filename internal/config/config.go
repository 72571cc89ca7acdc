// Package config loads the JSON pipeline config, applies environment
// overrides and validates the result.
package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Pipeline is the whole run configuration.
type Pipeline struct {
	Job     string  `json:"job"`
	Source  Source  `json:"source"`
	Parser  Parser  `json:"parser"`
	Storage Storage `json:"storage"`
	Ingest  Ingest  `json:"ingest"`
	Runtime Runtime `json:"runtime"`
	Logging Logging `json:"logging"`
}

// Source describes where input files come from.
type Source struct {
	// Dir is scanned (non-recursively) for input files.
	Dir string `json:"dir" env:"CSVLOAD_SOURCE_DIR" default:"csv"`

	// Extensions filters file names, case-insensitively. Compressed variants
	// (".csv.gz", ".csv.zst", ...) match their base extension.
	Extensions []string `json:"extensions" env:"CSVLOAD_SOURCE_EXTENSIONS" default:".csv"`

	// Encoding is a WHATWG label ("utf-8", "windows-1251", "koi8-r").
	Encoding string `json:"encoding" env:"CSVLOAD_SOURCE_ENCODING" default:"utf-8"`
}

// Parser holds delimited-reader options (comma, lazy_quotes, trim_space).
type Parser struct {
	Options Options `json:"options"`
}

// Storage selects the backend and the destination table.
type Storage struct {
	// Kind is a registered backend: sqlite, mysql, postgres, mssql.
	Kind string `json:"kind" env:"CSVLOAD_STORAGE_KIND"`

	// DSN supports ${VAR} expansion so secrets stay out of the file.
	DSN string `json:"dsn" env:"CSVLOAD_DSN"`

	Table     string `json:"table" env:"CSVLOAD_TABLE" default:"articles"`
	IDColumn  string `json:"id_column" default:"id"`
	KeyColumn string `json:"key_column" default:"record_hash"`
}

// Ingest controls deduplication and commit behaviour.
type Ingest struct {
	// Fingerprint is "separated" (fields joined with 0x1F) or "concat" (no
	// separator, compatible with tables filled by older tooling).
	Fingerprint string `json:"fingerprint" env:"CSVLOAD_FINGERPRINT" default:"separated"`

	// KeepPartial commits the rows inserted before a failing row instead of
	// rolling the whole file back.
	KeepPartial bool `json:"keep_partial" env:"CSVLOAD_KEEP_PARTIAL"`
}

// Runtime controls re-run triggers.
type Runtime struct {
	// Watch re-runs the import when files in Source.Dir change.
	Watch bool `json:"watch" env:"CSVLOAD_WATCH"`

	// Schedule is a cron expression ("@every 1h", "0 3 * * *").
	Schedule string `json:"schedule" env:"CSVLOAD_SCHEDULE"`

	// Debounce delays watch-triggered runs until writes settle.
	Debounce Duration `json:"debounce" env:"CSVLOAD_DEBOUNCE" default:"500ms"`
}

type Logging struct {
	Level  string `json:"level" env:"LOG_LEVEL" default:"info"`
	Format string `json:"format" env:"LOG_FORMAT" default:"text"`
}

// Duration decodes from a JSON string ("500ms") or a number of nanoseconds.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch t := v.(type) {
	case float64:
		d.Duration = time.Duration(t)
	case string:
		p, err := time.ParseDuration(strings.TrimSpace(t))
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", t, err)
		}
		d.Duration = p
	case nil:
		d.Duration = 0
	default:
		return fmt.Errorf("invalid duration %s", string(b))
	}
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}
