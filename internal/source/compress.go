package source

import (
	"compress/bzip2"
	"compress/gzip"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// Compression identifies a supported input compression by file suffix.
type Compression string

const (
	CompressionNone Compression = ""
	CompressionGZ   Compression = ".gz"
	CompressionBZ2  Compression = ".bz2"
	CompressionXZ   Compression = ".xz"
	CompressionZSTD Compression = ".zst"
)

var compressions = []Compression{CompressionGZ, CompressionBZ2, CompressionXZ, CompressionZSTD}

// DetectCompression inspects the file name suffix, case-insensitively.
func DetectCompression(name string) Compression {
	lower := strings.ToLower(name)
	for _, c := range compressions {
		if strings.HasSuffix(lower, string(c)) {
			return c
		}
	}
	return CompressionNone
}

// TrimCompression strips a compression suffix: "a.csv.gz" -> "a.csv".
func TrimCompression(name string) string {
	if c := DetectCompression(name); c != CompressionNone {
		return name[:len(name)-len(c)]
	}
	return name
}

// decompress wraps r; the returned close func releases decoder state only,
// the caller still closes r.
func decompress(c Compression, r io.Reader) (io.Reader, func() error, error) {
	nop := func() error { return nil }
	switch c {
	case CompressionNone:
		return r, nop, nil
	case CompressionGZ:
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("gzip: %w", err)
		}
		return gz, gz.Close, nil
	case CompressionBZ2:
		return bzip2.NewReader(r), nop, nil
	case CompressionXZ:
		x, err := xz.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("xz: %w", err)
		}
		return x, nop, nil
	case CompressionZSTD:
		d, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("zstd: %w", err)
		}
		return d, func() error { d.Close(); return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unsupported compression %q", c)
	}
}
