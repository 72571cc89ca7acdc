package csv

import (
	"errors"
	"io"
	"strings"
	"testing"

	"csvload/internal/config"
)

func readAll(t *testing.T, r *Reader) []Record {
	t.Helper()
	var out []Record
	for {
		rec, err := r.Next()
		if err == io.EOF {
			return out
		}
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		out = append(out, rec)
	}
}

func TestReader_SemicolonDefault(t *testing.T) {
	in := "\uFEFFИмя;Возраст\r\nAnn;30\r\n\r\n\"Smith; John\";\"say \"\"hi\"\"\"\r\nBob\r\n"
	r := NewReader(strings.NewReader(in), nil)

	hdr, err := r.ReadHeader()
	if err != nil {
		t.Fatalf("ReadHeader() error = %v", err)
	}
	if len(hdr) != 2 || hdr[0] != "Имя" || hdr[1] != "Возраст" {
		t.Fatalf("header = %q", hdr)
	}

	recs := readAll(t, r)
	if len(recs) != 3 {
		t.Fatalf("got %d records, want 3", len(recs))
	}
	if recs[0].Line != 2 || recs[0].Fields[0] != "Ann" || recs[0].Fields[1] != "30" {
		t.Errorf("rec[0] = %+v", recs[0])
	}
	if recs[1].Line != 4 || recs[1].Fields[0] != "Smith; John" || recs[1].Fields[1] != `say "hi"` {
		t.Errorf("rec[1] = %+v", recs[1])
	}
	if len(recs[2].Fields) != 1 {
		t.Errorf("short row should keep its own width, got %q", recs[2].Fields)
	}
}

func TestReader_Options(t *testing.T) {
	in := "a,b\n# note\n  x , y \n"
	r := NewReader(strings.NewReader(in), config.Options{
		"comma":      ",",
		"comment":    "#",
		"trim_space": true,
	})
	if _, err := r.ReadHeader(); err != nil {
		t.Fatal(err)
	}
	recs := readAll(t, r)
	if len(recs) != 1 {
		t.Fatalf("got %d records, want 1", len(recs))
	}
	if recs[0].Fields[0] != "x" || recs[0].Fields[1] != "y" {
		t.Errorf("fields = %q", recs[0].Fields)
	}
	if recs[0].Line != 3 {
		t.Errorf("line = %d, want 3", recs[0].Line)
	}
}

func TestReader_KeepsSpacesByDefault(t *testing.T) {
	r := NewReader(strings.NewReader("a\n x \n"), nil)
	if _, err := r.ReadHeader(); err != nil {
		t.Fatal(err)
	}
	recs := readAll(t, r)
	if recs[0].Fields[0] != " x " {
		t.Errorf("value = %q, want untrimmed", recs[0].Fields[0])
	}
}

func TestReader_EmptyInput(t *testing.T) {
	r := NewReader(strings.NewReader(""), nil)
	if _, err := r.ReadHeader(); !errors.Is(err, ErrNoHeader) {
		t.Fatalf("err = %v, want ErrNoHeader", err)
	}
}

func TestReader_BareQuote(t *testing.T) {
	in := "a;b\nfoo \"bar\";1\n"

	strict := NewReader(strings.NewReader(in), nil)
	if _, err := strict.ReadHeader(); err != nil {
		t.Fatal(err)
	}
	if _, err := strict.Next(); err == nil {
		t.Fatal("expected a parse error for a bare quote")
	}

	lazy := NewReader(strings.NewReader(in), config.Options{"lazy_quotes": true})
	if _, err := lazy.ReadHeader(); err != nil {
		t.Fatal(err)
	}
	rec, err := lazy.Next()
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if rec.Fields[0] != `foo "bar"` {
		t.Errorf("field = %q", rec.Fields[0])
	}
}

func TestReader_NextBeforeHeader(t *testing.T) {
	r := NewReader(strings.NewReader("a\n1\n"), nil)
	if _, err := r.Next(); err == nil {
		t.Fatal("expected error")
	}
}

func TestReader_InvalidUTF8Header(t *testing.T) {
	r := NewReader(strings.NewReader("ok;\xcf\xf0\xe8\n1;2\n"), nil)
	if _, err := r.ReadHeader(); !errors.Is(err, ErrInvalidUTF8) {
		t.Fatalf("err = %v, want ErrInvalidUTF8", err)
	}
}

func TestReader_InvalidUTF8Row(t *testing.T) {
	r := NewReader(strings.NewReader("a;b\n1;2\nx;\xff\n"), nil)
	if _, err := r.ReadHeader(); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Next(); err != nil {
		t.Fatalf("first row: %v", err)
	}
	rec, err := r.Next()
	if !errors.Is(err, ErrInvalidUTF8) {
		t.Fatalf("err = %v, want ErrInvalidUTF8", err)
	}
	if rec.Line != 3 {
		t.Errorf("line = %d, want 3", rec.Line)
	}
}

func TestReader_BlankLinesProduceNoRecord(t *testing.T) {
	r := NewReader(strings.NewReader("a;b\n\n\n1;2\n\n"), nil)
	if _, err := r.ReadHeader(); err != nil {
		t.Fatal(err)
	}
	recs := readAll(t, r)
	if len(recs) != 1 || recs[0].Line != 4 {
		t.Fatalf("records = %+v, want only line 4", recs)
	}
}
