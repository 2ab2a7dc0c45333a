// Package index derives the date-bucket and keyword lookup tables over a
// corpus. Indexes are rebuilt from scratch whenever the corpus changes.
package index

import (
	"sort"

	"github.com/helixir/paper-timeline/internal/domain"
	"github.com/helixir/paper-timeline/internal/locale"
)

// UnknownPeriodKey is the bucket key for papers without a usable date.
const UnknownPeriodKey = "unknown"

// Bucket is a named subgroup of the corpus in corpus order.
type Bucket struct {
	// Key is stable across locales: "2024-01", "unknown" or a normalized keyword.
	Key string
	// Label is the display form of Key.
	Label  string
	Papers []*domain.Paper
}

// Count returns the number of papers in the bucket.
func (b *Bucket) Count() int {
	return len(b.Papers)
}

// DateIndex maps coarse publication periods to papers.
type DateIndex struct {
	buckets map[string]*Bucket
	keys    []string
}

// Get returns the bucket for key.
func (d *DateIndex) Get(key string) (*Bucket, bool) {
	b, ok := d.buckets[key]
	return b, ok
}

// Buckets returns the buckets newest period first, with the unknown bucket last.
func (d *DateIndex) Buckets() []*Bucket {
	out := make([]*Bucket, len(d.keys))
	for i, k := range d.keys {
		out[i] = d.buckets[k]
	}
	return out
}

// Len returns the number of buckets.
func (d *DateIndex) Len() int {
	return len(d.keys)
}

// KeywordIndex maps normalized keywords to papers.
type KeywordIndex struct {
	buckets map[string]*Bucket
	keys    []string
}

// Get returns the bucket for a keyword. The keyword is normalized first.
func (k *KeywordIndex) Get(keyword string) (*Bucket, bool) {
	b, ok := k.buckets[domain.NormalizeKeyword(keyword)]
	return b, ok
}

// Buckets returns keyword buckets by paper count descending, then by key.
func (k *KeywordIndex) Buckets() []*Bucket {
	out := make([]*Bucket, len(k.keys))
	for i, key := range k.keys {
		out[i] = k.buckets[key]
	}
	return out
}

// Len returns the number of distinct keywords.
func (k *KeywordIndex) Len() int {
	return len(k.keys)
}

// Indexes bundles both secondary indexes built from one corpus.
type Indexes struct {
	Date    *DateIndex
	Keyword *KeywordIndex
	Total   int
}

// Build derives both indexes. It is deterministic and never fails; papers
// with no date land in the unknown bucket.
func Build(corpus domain.Corpus, loc *locale.Locale) *Indexes {
	if loc == nil {
		loc = locale.Default()
	}

	date := &DateIndex{buckets: make(map[string]*Bucket)}
	kw := &KeywordIndex{buckets: make(map[string]*Bucket)}

	for _, p := range corpus {
		key, label := UnknownPeriodKey, loc.UnknownPeriod
		if p.PublishedDate != nil {
			key, label = locale.PeriodKey(*p.PublishedDate), loc.Period(*p.PublishedDate)
		}
		b, ok := date.buckets[key]
		if !ok {
			b = &Bucket{Key: key, Label: label}
			date.buckets[key] = b
			date.keys = append(date.keys, key)
		}
		b.Papers = append(b.Papers, p)

		for _, k := range p.NormalizedKeywords() {
			b, ok := kw.buckets[k]
			if !ok {
				b = &Bucket{Key: k, Label: k}
				kw.buckets[k] = b
				kw.keys = append(kw.keys, k)
			}
			b.Papers = append(b.Papers, p)
		}
	}

	sort.Slice(date.keys, func(i, j int) bool {
		a, b := date.keys[i], date.keys[j]
		if a == UnknownPeriodKey {
			return false
		}
		if b == UnknownPeriodKey {
			return true
		}
		return a > b
	})
	sort.Slice(kw.keys, func(i, j int) bool {
		a, b := kw.buckets[kw.keys[i]], kw.buckets[kw.keys[j]]
		if len(a.Papers) != len(b.Papers) {
			return len(a.Papers) > len(b.Papers)
		}
		return a.Key < b.Key
	})

	return &Indexes{Date: date, Keyword: kw, Total: len(corpus)}
}
