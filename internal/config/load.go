package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

var durationType = reflect.TypeOf(Duration{})

// Load reads the JSON file at path (skipped when path is empty), applies
// environment overrides and defaults, and expands ${VAR} references in the
// DSN. It does not validate; call Validate for that.
func Load(path string) (*Pipeline, error) {
	p := &Pipeline{}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := Decode(b, p); err != nil {
			return nil, fmt.Errorf("config: %s: %w", path, err)
		}
	}
	if err := applyEnv(reflect.ValueOf(p).Elem()); err != nil {
		return nil, fmt.Errorf("config: env: %w", err)
	}
	if err := applyDefaults(reflect.ValueOf(p).Elem()); err != nil {
		return nil, fmt.Errorf("config: defaults: %w", err)
	}
	p.Storage.DSN = os.ExpandEnv(p.Storage.DSN)
	return p, nil
}

// Decode strictly decodes a JSON pipeline; unknown fields are rejected.
func Decode(b []byte, p *Pipeline) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(p); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}

// applyEnv overrides fields tagged `env:"NAME"` when NAME is set and non-empty.
func applyEnv(v reflect.Value) error {
	return walk(v, func(field reflect.StructField, fv reflect.Value) error {
		name := field.Tag.Get("env")
		if name == "" {
			return nil
		}
		value := strings.TrimSpace(os.Getenv(name))
		if value == "" {
			return nil
		}
		if err := setField(fv, value); err != nil {
			return fmt.Errorf("%s=%q: %w", name, value, err)
		}
		return nil
	})
}

// applyDefaults fills zero-valued fields from their `default` tag.
func applyDefaults(v reflect.Value) error {
	return walk(v, func(field reflect.StructField, fv reflect.Value) error {
		def, ok := field.Tag.Lookup("default")
		if !ok || !fv.IsZero() {
			return nil
		}
		if err := setField(fv, def); err != nil {
			return fmt.Errorf("%s: %w", field.Name, err)
		}
		return nil
	})
}

func walk(v reflect.Value, fn func(reflect.StructField, reflect.Value) error) error {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fv := v.Field(i)
		if !fv.CanSet() {
			continue
		}
		if field.Type.Kind() == reflect.Struct && field.Type != durationType {
			if err := walk(fv, fn); err != nil {
				return err
			}
			continue
		}
		if err := fn(field, fv); err != nil {
			return err
		}
	}
	return nil
}

func setField(field reflect.Value, value string) error {
	if field.Type() == durationType {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration: %w", err)
		}
		field.Set(reflect.ValueOf(Duration{d}))
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int64:
		i, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid integer: %w", err)
		}
		field.SetInt(i)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		field.SetBool(b)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type: %s", field.Type().Elem().Kind())
		}
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		field.Set(reflect.ValueOf(out))
	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}
	return nil
}

// String renders the pipeline for logs with the DSN masked.
func (p *Pipeline) String() string {
	dsn := ""
	if p.Storage.DSN != "" {
		dsn = "[MASKED]"
	}
	return fmt.Sprintf("Pipeline{Source: {Dir: %q, Extensions: %v, Encoding: %q}, Storage: {Kind: %q, DSN: %s, Table: %q}, Ingest: {Fingerprint: %q, KeepPartial: %v}, Runtime: {Watch: %v, Schedule: %q, Debounce: %s}}",
		p.Source.Dir, p.Source.Extensions, p.Source.Encoding,
		p.Storage.Kind, dsn, p.Storage.Table,
		p.Ingest.Fingerprint, p.Ingest.KeepPartial,
		p.Runtime.Watch, p.Runtime.Schedule, p.Runtime.Debounce.Duration)
}
