// Package view projects a corpus subset into display order. Projections never
// mutate the input slice; every call works on its own copy.
package view

import (
	"slices"

	"github.com/helixir/paper-timeline/internal/domain"
	"github.com/helixir/paper-timeline/internal/locale"
)

// SortMode selects the display order.
type SortMode string

// Supported sort modes.
const (
	SortDate    SortMode = "date"
	SortKeyword SortMode = "keyword"
	SortLikes   SortMode = "likes"
)

// DefaultSort is used when no mode is given.
const DefaultSort = SortDate

// ParseSortMode parses a sort mode. An empty string yields DefaultSort.
func ParseSortMode(s string) (SortMode, error) {
	switch SortMode(s) {
	case "":
		return DefaultSort, nil
	case SortDate, SortKeyword, SortLikes:
		return SortMode(s), nil
	default:
		return "", domain.NewValidationError("sort", "must be one of date, keyword, likes")
	}
}

// String implements fmt.Stringer.
func (m SortMode) String() string {
	return string(m)
}

// Projection is an ordered view over part of the corpus.
type Projection struct {
	Papers []*domain.Paper
	Sort   SortMode
	// Empty is set when there is nothing to show. Renderers show the
	// locale's "no matches" message instead of an empty list.
	Empty bool
}

// Len returns the number of projected papers.
func (p Projection) Len() int {
	return len(p.Papers)
}

// Project orders a copy of papers by mode.
//
// Date order is newest first; papers without a date sort as the Unix epoch.
// Keyword order compares each paper's first normalized keyword with the
// locale's collation, breaking ties by date. Likes order is highest count
// first. All orders are stable, so equal papers keep their input order.
func Project(papers []*domain.Paper, mode SortMode, loc *locale.Locale) Projection {
	if mode == "" {
		mode = DefaultSort
	}
	out := Projection{Sort: mode, Empty: len(papers) == 0}
	if out.Empty {
		return out
	}

	sorted := slices.Clone(papers)
	switch mode {
	case SortKeyword:
		if loc == nil {
			loc = locale.Default()
		}
		// Collators are not safe for concurrent use; one per call.
		col := loc.NewCollator()
		keys := make(map[*domain.Paper]string, len(sorted))
		for _, p := range sorted {
			keys[p] = p.FirstKeyword()
		}
		slices.SortStableFunc(sorted, func(a, b *domain.Paper) int {
			if c := col.CompareString(keys[a], keys[b]); c != 0 {
				return c
			}
			return byDateDesc(a, b)
		})
	case SortLikes:
		counts := make(map[*domain.Paper]int64, len(sorted))
		for _, p := range sorted {
			counts[p] = p.Likes()
		}
		slices.SortStableFunc(sorted, func(a, b *domain.Paper) int {
			switch {
			case counts[a] > counts[b]:
				return -1
			case counts[a] < counts[b]:
				return 1
			}
			return 0
		})
	default:
		slices.SortStableFunc(sorted, byDateDesc)
	}

	out.Papers = sorted
	return out
}

func byDateDesc(a, b *domain.Paper) int {
	return b.SortTime().Compare(a.SortTime())
}
