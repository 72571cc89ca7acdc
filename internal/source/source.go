// Package source finds input files in a directory and opens them as
// decompressed, UTF-8 decoded streams.
package source

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
)

// File is one discovered input.
type File struct {
	Path        string
	Name        string
	Size        int64
	Compression Compression

	// Encoding is a WHATWG label; empty or "utf-8" means no decoding.
	Encoding string
}

// Discover lists regular files directly under dir whose name (compression
// suffix removed) ends with one of exts, case-insensitively. The result is
// sorted by name so runs are reproducible.
func Discover(dir string, exts []string) ([]File, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("source: read dir %s: %w", dir, err)
	}

	var files []File
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if !Match(e.Name(), exts) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("source: stat %s: %w", e.Name(), err)
		}
		files = append(files, File{
			Path:        filepath.Join(dir, e.Name()),
			Name:        e.Name(),
			Size:        info.Size(),
			Compression: DetectCompression(e.Name()),
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

// Match reports whether name has one of exts once any compression suffix is
// removed. Hidden files never match.
func Match(name string, exts []string) bool {
	if strings.HasPrefix(name, ".") {
		return false
	}
	base := strings.ToLower(TrimCompression(name))
	for _, ext := range exts {
		if strings.HasSuffix(base, strings.ToLower(ext)) {
			return true
		}
	}
	return false
}

// WithEncoding sets the input charset on every file.
func WithEncoding(files []File, label string) []File {
	for i := range files {
		files[i].Encoding = label
	}
	return files
}

// Open returns the file content decompressed and decoded to UTF-8.
func (f File) Open() (io.ReadCloser, error) {
	enc, err := lookupEncoding(f.Encoding)
	if err != nil {
		return nil, fmt.Errorf("source: %s: %w", f.Name, err)
	}

	fh, err := os.Open(f.Path)
	if err != nil {
		return nil, fmt.Errorf("source: open: %w", err)
	}
	r, closeDec, err := decompress(f.Compression, fh)
	if err != nil {
		_ = fh.Close()
		return nil, fmt.Errorf("source: %s: %w", f.Name, err)
	}
	if enc != nil {
		r = transform.NewReader(r, enc.NewDecoder())
	}
	return &readCloser{Reader: r, closers: []func() error{closeDec, fh.Close}}, nil
}

func lookupEncoding(label string) (encoding.Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "", "utf-8", "utf8":
		return nil, nil
	}
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, fmt.Errorf("unknown encoding %q: %w", label, err)
	}
	return enc, nil
}

type readCloser struct {
	io.Reader
	closers []func() error
}

func (rc *readCloser) Close() error {
	var errs []error
	for _, c := range rc.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
