// Package csv reads delimited text files with a header row. Values are kept
// as raw strings; alignment to columns is the caller's job.
package csv

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"csvload/internal/config"
)

// ErrNoHeader is returned by ReadHeader when the input has no rows at all.
var ErrNoHeader = errors.New("csv: missing header row")

// ErrInvalidUTF8 is returned for a header or row that is not valid UTF-8
// after decoding. Set source.encoding for files in a legacy charset.
var ErrInvalidUTF8 = errors.New("csv: invalid UTF-8")

// Record is one data row with its 1-based line number in the input.
type Record struct {
	Line   int
	Fields []string
}

// Reader wraps encoding/csv with the options the importer exposes:
//
//	comma       delimiter, default ';'
//	lazy_quotes tolerate bare quotes inside fields
//	trim_space  trim surrounding whitespace from data values
//	comment     lines starting with this rune are skipped
type Reader struct {
	cr         *csv.Reader
	trim       bool
	headerRead bool
}

func NewReader(r io.Reader, opt config.Options) *Reader {
	cr := csv.NewReader(r)
	cr.Comma = opt.Rune("comma", ';')
	cr.LazyQuotes = opt.Bool("lazy_quotes", false)
	cr.Comment = opt.Rune("comment", 0)
	cr.FieldsPerRecord = -1
	return &Reader{cr: cr, trim: opt.Bool("trim_space", false)}
}

// ReadHeader returns the first row with a leading UTF-8 BOM removed. It must
// be called once before Next.
func (r *Reader) ReadHeader() ([]string, error) {
	if r.headerRead {
		return nil, errors.New("csv: header already read")
	}
	r.headerRead = true

	rec, err := r.cr.Read()
	if err == io.EOF {
		return nil, ErrNoHeader
	}
	if err != nil {
		return nil, fmt.Errorf("csv: read header: %w", err)
	}
	if len(rec) > 0 {
		rec[0] = strings.TrimPrefix(rec[0], "\uFEFF")
	}
	if i := invalidField(rec); i >= 0 {
		return nil, fmt.Errorf("%w: header field %d", ErrInvalidUTF8, i+1)
	}
	return rec, nil
}

// Next returns the next data row, or io.EOF. Blank lines are skipped by the
// underlying reader and do not produce records.
func (r *Reader) Next() (Record, error) {
	if !r.headerRead {
		return Record{}, errors.New("csv: Next called before ReadHeader")
	}
	rec, err := r.cr.Read()
	if err == io.EOF {
		return Record{}, io.EOF
	}
	if err != nil {
		return Record{}, fmt.Errorf("csv: %w", err)
	}
	line, _ := r.cr.FieldPos(0)
	if i := invalidField(rec); i >= 0 {
		return Record{Line: line}, fmt.Errorf("%w: line %d field %d", ErrInvalidUTF8, line, i+1)
	}
	if r.trim {
		for i, v := range rec {
			rec[i] = strings.TrimSpace(v)
		}
	}
	return Record{Line: line, Fields: rec}, nil
}

func invalidField(rec []string) int {
	for i, f := range rec {
		if !utf8.ValidString(f) {
			return i
		}
	}
	return -1
}
