package domain

import (
	"errors"
	"testing"
)

// FuzzDecodeDocument checks that no document body panics the decoder and
// that every accepted document comes out normalized.
func FuzzDecodeDocument(f *testing.F) {
	seeds := []string{
		`{"id": 1, "title": "Attention"}`,
		`{"id": "2401.00001", "title": "String id"}`,
		`{"title": "no id"}`,
		`{"id": 1}`,
		`{"id": null, "title": "null id"}`,
		`{"id": 1.5, "title": "float id"}`,
		`{"id": 1, "title": "x", "published_date": "not a date"}`,
		`{"id": 1, "title": "x", "authors": "Ada Lovelace"}`,
		`{"id": 1, "title": "x", "authors": ["", "  ", "Ada"]}`,
		`{"id": 1, "title": "x", "keywords": ["A", "a", " a ", "b"]}`,
		`{"id": 1, "title": "<script>alert(1)</script>"}`,
		`{"id": "'; DROP TABLE papers; --", "title": "x"}`,
		`[]`,
		`null`,
		``,
		`{`,
		"{\"id\": 1, \"title\": \"\u202Ertl\u202C\"}",
	}
	for _, s := range seeds {
		f.Add([]byte(s))
	}

	f.Fuzz(func(t *testing.T, data []byte) {
		p, err := DecodeDocument("fuzz.json", data)
		if err != nil {
			var derr *DocumentError
			if !errors.As(err, &derr) {
				t.Fatalf("error is not a DocumentError: %T %v", err, err)
			}
			if p != nil {
				t.Fatalf("paper returned alongside error %v", err)
			}
			return
		}
		if p.ID == "" {
			t.Fatalf("accepted document has empty id: %q", data)
		}
		seen := make(map[string]bool)
		for _, kw := range p.NormalizedKeywords() {
			if kw != NormalizeKeyword(kw) || !IsIndexableKeyword(kw) {
				t.Fatalf("keyword %q is not normalized", kw)
			}
			if seen[kw] {
				t.Fatalf("duplicate keyword %q", kw)
			}
			seen[kw] = true
		}
		for _, a := range p.Authors {
			if a == "" {
				t.Fatal("empty author kept")
			}
		}
		if p.Title == "" {
			t.Fatal("accepted document has empty title")
		}
	})
}
