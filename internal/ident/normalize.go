package ident

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// cyrillic maps Cyrillic letters to a phonetic Latin spelling. Lowercase
// entries are authoritative; uppercase letters reuse them with the first Latin
// letter capitalised (Щ -> Sch). Hard and soft signs become an apostrophe, which
// the sanitizer later turns into an underscore.
var cyrillic = map[rune]string{
	'а': "a", 'б': "b", 'в': "v", 'г': "g", 'д': "d", 'е': "e", 'ё': "e",
	'ж': "zh", 'з': "z", 'и': "i", 'й': "j", 'к': "k", 'л': "l", 'м': "m",
	'н': "n", 'о': "o", 'п': "p", 'р': "r", 'с': "s", 'т': "t", 'у': "u",
	'ф': "f", 'х': "h", 'ц': "ts", 'ч': "ch", 'ш': "sh", 'щ': "sch",
	'ъ': "'", 'ы': "y", 'ь': "'", 'э': "e", 'ю': "ju", 'я': "ja",
	// Ukrainian / Belarusian
	'і': "i", 'ї': "ji", 'є': "je", 'ґ': "g", 'ў': "u",
}

// Transliterate replaces Cyrillic letters with their Latin spelling. Other
// runes pass through unchanged.
func Transliterate(s string) string {
	var b strings.Builder
	b.Grow(len(s) + len(s)/2)
	for _, r := range s {
		lower := unicode.ToLower(r)
		lat, ok := cyrillic[lower]
		if !ok {
			b.WriteRune(r)
			continue
		}
		if lower != r && lat != "" {
			lat = strings.ToUpper(lat[:1]) + lat[1:]
		}
		b.WriteString(lat)
	}
	return b.String()
}

// foldMarks strips combining marks so Latin text with diacritics keeps its
// letters ("Café" -> "Cafe") instead of losing them to the sanitizer.
func foldMarks(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// sanitize replaces every byte outside [A-Za-z0-9_] with '_', collapses runs of
// underscores and trims them from both ends.
func sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prevUnderscore := false
	for _, r := range s {
		c := byte('_')
		if r < 0x80 && allowed(byte(r)) {
			c = byte(r)
		}
		if c == '_' {
			if prevUnderscore {
				continue
			}
			prevUnderscore = true
		} else {
			prevUnderscore = false
		}
		b.WriteByte(c)
	}
	return strings.Trim(b.String(), "_")
}

// Normalize converts one raw header field into a column identifier. The second
// result is false when the field must be dropped (blank, or nothing usable
// remains after cleaning).
func Normalize(raw string) (Column, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Column{}, false
	}

	// NFC first so decomposed input (и + breve) still hits the table as й.
	s = norm.NFC.String(s)
	s = Transliterate(s)
	s = foldMarks(s)
	s = sanitize(s)

	if len(s) > MaxLen {
		s = strings.TrimRight(s[:MaxLen], "_")
	}
	if s == "" {
		return Column{}, false
	}
	return Column{name: s}, true
}

// Header is the result of normalizing one header row.
//
// Columns[i] came from raw header position Source[i]. Data rows are aligned by
// index against Columns, not against Source: a dropped field shifts every
// later value one slot to the left.
type Header struct {
	Raw     []string
	Columns []Column
	Source  []int
	Dropped []int
}

// NormalizeHeader normalizes every field, keeping the original order and
// skipping dropped fields.
func NormalizeHeader(fields []string) Header {
	h := Header{
		Raw:     append([]string(nil), fields...),
		Columns: make([]Column, 0, len(fields)),
		Source:  make([]int, 0, len(fields)),
	}
	for i, f := range fields {
		c, ok := Normalize(f)
		if !ok {
			h.Dropped = append(h.Dropped, i)
			continue
		}
		h.Columns = append(h.Columns, c)
		h.Source = append(h.Source, i)
	}
	return h
}

// Names returns the identifiers as plain strings.
func (h Header) Names() []string {
	out := make([]string, len(h.Columns))
	for i, c := range h.Columns {
		out[i] = c.String()
	}
	return out
}

// Duplicates returns every identifier that appears more than once in cols
// (case-insensitively), in first-seen order. Collisions are not resolved here.
func Duplicates(cols []Column) []Column {
	return FindDuplicates(cols, true)
}

// FindDuplicates is Duplicates with the comparison chosen by fold; see
// Column.Key.
func FindDuplicates(cols []Column, fold bool) []Column {
	seen := make(map[string]int, len(cols))
	var out []Column
	for _, c := range cols {
		k := c.Key(fold)
		seen[k]++
		if seen[k] == 2 {
			out = append(out, c)
		}
	}
	return out
}
