// Package dedup computes row fingerprints and inserts only rows whose
// fingerprint is not already stored.
package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
)

// Scheme selects how row values are combined before hashing.
type Scheme string

const (
	// SchemeSeparated joins values with the ASCII unit separator (0x1F), so
	// ["ab","c"] and ["a","bc"] hash differently.
	SchemeSeparated Scheme = "separated"

	// SchemeConcat concatenates values with nothing in between. It matches
	// fingerprints written by older tooling and keeps its collisions.
	SchemeConcat Scheme = "concat"
)

const unitSeparator = 0x1f

// ParseScheme maps a config value to a Scheme; "" means SchemeSeparated.
func ParseScheme(s string) (Scheme, error) {
	switch Scheme(s) {
	case "", SchemeSeparated:
		return SchemeSeparated, nil
	case SchemeConcat:
		return SchemeConcat, nil
	}
	return "", fmt.Errorf("dedup: unknown fingerprint scheme %q", s)
}

// Fingerprint returns the lowercase hex SHA-256 of values combined per
// scheme. A nil value contributes an empty segment.
func Fingerprint(values []*string, scheme Scheme) string {
	h := sha256.New()
	writeValues(h, values, scheme)
	return hex.EncodeToString(h.Sum(nil))
}

func writeValues(h hash.Hash, values []*string, scheme Scheme) {
	sep := []byte{unitSeparator}
	for i, v := range values {
		if i > 0 && scheme != SchemeConcat {
			h.Write(sep)
		}
		if v != nil {
			h.Write([]byte(*v))
		}
	}
}

// Align fits raw to exactly n values. Missing trailing values become nil;
// values past n are discarded. padded and truncated count the values added
// and dropped.
func Align(raw []string, n int) (vals []*string, padded, truncated int) {
	vals = make([]*string, n)
	for i := 0; i < n && i < len(raw); i++ {
		v := raw[i]
		vals[i] = &v
	}
	if len(raw) < n {
		padded = n - len(raw)
	} else {
		truncated = len(raw) - n
	}
	return vals, padded, truncated
}
