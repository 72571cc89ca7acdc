package source

import (
	"bytes"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"
	"golang.org/x/text/encoding/charmap"
)

const sample = "Имя;Возраст\nAnn;30\n"

func write(t *testing.T, dir, name string, data []byte) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0o644))
}

func readFile(t *testing.T, f File) string {
	t.Helper()
	rc, err := f.Open()
	require.NoError(t, err)
	defer rc.Close()
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(b)
}

func TestDiscover_FiltersAndSorts(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "b.csv", []byte(sample))
	write(t, dir, "a.CSV", []byte(sample))
	write(t, dir, "c.csv.gz", []byte{})
	write(t, dir, "notes.txt", []byte("x"))
	write(t, dir, ".hidden.csv", []byte("x"))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.csv"), 0o755))

	files, err := Discover(dir, []string{".csv"})
	require.NoError(t, err)

	var names []string
	for _, f := range files {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"a.CSV", "b.csv", "c.csv.gz"}, names)
	assert.Equal(t, CompressionGZ, files[2].Compression)
	assert.Equal(t, int64(len(sample)), files[1].Size)
}

func TestDiscover_MissingDir(t *testing.T) {
	_, err := Discover(filepath.Join(t.TempDir(), "nope"), []string{".csv"})
	assert.Error(t, err)
}

func TestDetectCompression(t *testing.T) {
	tests := map[string]Compression{
		"a.csv":     CompressionNone,
		"a.csv.gz":  CompressionGZ,
		"a.CSV.BZ2": CompressionBZ2,
		"a.csv.xz":  CompressionXZ,
		"a.csv.zst": CompressionZSTD,
	}
	for name, want := range tests {
		assert.Equal(t, want, DetectCompression(name), name)
	}
	assert.Equal(t, "a.csv", TrimCompression("a.csv.zst"))
}

func TestOpen_Compressed(t *testing.T) {
	dir := t.TempDir()

	var gz bytes.Buffer
	gw := gzip.NewWriter(&gz)
	_, _ = gw.Write([]byte(sample))
	require.NoError(t, gw.Close())
	write(t, dir, "a.csv.gz", gz.Bytes())

	var xb bytes.Buffer
	xw, err := xz.NewWriter(&xb)
	require.NoError(t, err)
	_, _ = xw.Write([]byte(sample))
	require.NoError(t, xw.Close())
	write(t, dir, "b.csv.xz", xb.Bytes())

	var zb bytes.Buffer
	zw, err := zstd.NewWriter(&zb)
	require.NoError(t, err)
	_, _ = zw.Write([]byte(sample))
	require.NoError(t, zw.Close())
	write(t, dir, "c.csv.zst", zb.Bytes())

	write(t, dir, "d.csv", []byte(sample))

	files, err := Discover(dir, []string{".csv"})
	require.NoError(t, err)
	require.Len(t, files, 4)
	for _, f := range files {
		assert.Equal(t, sample, readFile(t, f), f.Name)
	}
}

func TestOpen_CorruptGzip(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "a.csv.gz", []byte("not gzip"))
	files, err := Discover(dir, []string{".csv"})
	require.NoError(t, err)
	_, err = files[0].Open()
	assert.Error(t, err)
}

func TestOpen_DecodesCharset(t *testing.T) {
	dir := t.TempDir()
	encoded, err := charmap.Windows1251.NewEncoder().Bytes([]byte(sample))
	require.NoError(t, err)
	write(t, dir, "cp.csv", encoded)

	files, err := Discover(dir, []string{".csv"})
	require.NoError(t, err)
	files = WithEncoding(files, "windows-1251")
	assert.Equal(t, sample, readFile(t, files[0]))
}

func TestOpen_UnknownEncoding(t *testing.T) {
	f := File{Path: "x.csv", Name: "x.csv", Encoding: "klingon"}
	_, err := f.Open()
	assert.Error(t, err)
}
