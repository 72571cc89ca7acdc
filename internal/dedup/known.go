package dedup

import (
	"context"
	"fmt"

	"csvload/internal/ident"
)

// KnownSet holds fingerprints already present in the table.
type KnownSet struct {
	m map[string]struct{}
}

func NewKnownSet(keys ...string) *KnownSet {
	s := &KnownSet{m: make(map[string]struct{}, len(keys))}
	for _, k := range keys {
		s.m[k] = struct{}{}
	}
	return s
}

// Add records k and reports whether it was new.
func (s *KnownSet) Add(k string) bool {
	if _, ok := s.m[k]; ok {
		return false
	}
	s.m[k] = struct{}{}
	return true
}

func (s *KnownSet) Has(k string) bool {
	_, ok := s.m[k]
	return ok
}

func (s *KnownSet) Len() int { return len(s.m) }

// KeyReader is the read side of storage.Session used to seed a KnownSet.
type KeyReader interface {
	SelectKeys(ctx context.Context, t ident.Table, key ident.Column) ([]string, error)
}

// LoadKnown reads every stored fingerprint of t into a new KnownSet.
func LoadKnown(ctx context.Context, r KeyReader, t ident.Table, key ident.Column) (*KnownSet, error) {
	keys, err := r.SelectKeys(ctx, t, key)
	if err != nil {
		return nil, fmt.Errorf("dedup: load known keys: %w", err)
	}
	return NewKnownSet(keys...), nil
}
