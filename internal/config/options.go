package config

import (
	"strconv"
	"unicode/utf8"
)

// Options is a loosely-typed option bag decoded from JSON. Accessors apply a
// default when the key is missing or has an unusable type.
type Options map[string]any

func (o Options) Any(key string) any {
	if o == nil {
		return nil
	}
	return o[key]
}

func (o Options) String(key, def string) string {
	if s, ok := o.Any(key).(string); ok {
		return s
	}
	return def
}

func (o Options) Bool(key string, def bool) bool {
	switch v := o.Any(key).(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

// Int accepts JSON numbers (float64), ints and numeric strings.
func (o Options) Int(key string, def int) int {
	switch v := o.Any(key).(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// Rune returns the first rune of a one-character string option. "\t" written
// as a JSON escape arrives here as a real tab.
func (o Options) Rune(key string, def rune) rune {
	s, ok := o.Any(key).(string)
	if !ok || s == "" {
		return def
	}
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError || size != len(s) {
		return def
	}
	return r
}

func (o Options) StringMap(key string) map[string]string {
	out := map[string]string{}
	switch m := o.Any(key).(type) {
	case map[string]any:
		for k, v := range m {
			if s, ok := v.(string); ok {
				out[k] = s
			}
		}
	case map[string]string:
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}
