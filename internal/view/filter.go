package view

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/text/cases"

	"github.com/helixir/paper-timeline/internal/domain"
	"github.com/helixir/paper-timeline/internal/index"
)

// FilterKind selects which subset of the corpus a Filter keeps.
type FilterKind string

// Filter kinds.
const (
	FilterNone    FilterKind = ""
	FilterDate    FilterKind = "date"
	FilterKeyword FilterKind = "keyword"
	FilterSearch  FilterKind = "search"
)

// Filter narrows the corpus before projection.
type Filter struct {
	Kind FilterKind
	// Value is a period key ("2024-01" or "unknown"), a keyword or a
	// search term depending on Kind.
	Value string
}

// IsZero reports whether f keeps the whole corpus.
func (f Filter) IsZero() bool {
	return f.Kind == FilterNone
}

// ByDate keeps the papers of one date bucket.
func ByDate(periodKey string) Filter {
	return Filter{Kind: FilterDate, Value: periodKey}
}

// ByKeyword keeps the papers indexed under keyword.
func ByKeyword(keyword string) Filter {
	return Filter{Kind: FilterKeyword, Value: keyword}
}

// BySearch keeps papers whose title, abstract or keywords contain term.
func BySearch(term string) Filter {
	return Filter{Kind: FilterSearch, Value: term}
}

// Apply returns the papers f keeps, in corpus order. Date and keyword
// filters read the prebuilt buckets; an unknown bucket yields no papers.
// Search always scans the full corpus, independent of any earlier filter.
// The returned slice must not be modified.
func (f Filter) Apply(corpus domain.Corpus, idx *index.Indexes) []*domain.Paper {
	switch f.Kind {
	case FilterDate:
		if idx == nil {
			return nil
		}
		if b, ok := idx.Date.Get(f.Value); ok {
			return b.Papers
		}
		return nil
	case FilterKeyword:
		if idx == nil {
			return nil
		}
		if b, ok := idx.Keyword.Get(f.Value); ok {
			return b.Papers
		}
		return nil
	case FilterSearch:
		return Search(corpus, f.Value)
	default:
		return corpus
	}
}

// Search returns the papers matching term caselessly. A blank term matches
// every paper.
func Search(corpus domain.Corpus, term string) []*domain.Paper {
	term = strings.TrimSpace(term)
	if term == "" {
		return corpus
	}

	fold := cases.Fold()
	needle := fold.String(term)

	var out []*domain.Paper
	for _, p := range corpus {
		if matches(fold, p, needle) {
			out = append(out, p)
		}
	}
	return out
}

func matches(fold cases.Caser, p *domain.Paper, needle string) bool {
	if strings.Contains(fold.String(p.Title), needle) ||
		strings.Contains(fold.String(p.Abstract), needle) {
		return true
	}
	for _, kw := range p.Keywords {
		if strings.Contains(fold.String(kw), needle) {
			return true
		}
	}
	return false
}

var queryValidator = validator.New(validator.WithRequiredStructEnabled())

// Query is the user-facing form of a view request, as read from URL
// parameters or CLI flags. At most one of Date, Keyword and Search may be set.
type Query struct {
	Sort    string `validate:"omitempty,oneof=date keyword likes"`
	Date    string `validate:"omitempty,max=32"`
	Keyword string `validate:"omitempty,max=128"`
	Search  string `validate:"omitempty,max=256" json:"q"`
}

// Parse validates q and returns its sort mode and filter.
func (q Query) Parse() (SortMode, Filter, error) {
	if err := queryValidator.Struct(q); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return "", Filter{}, domain.NewValidationError(strings.ToLower(verrs[0].Field()), verrs[0].Tag())
		}
		return "", Filter{}, domain.NewValidationError("query", err.Error())
	}

	mode, err := ParseSortMode(q.Sort)
	if err != nil {
		return "", Filter{}, err
	}

	var filters []Filter
	if q.Date != "" {
		filters = append(filters, ByDate(q.Date))
	}
	if q.Keyword != "" {
		filters = append(filters, ByKeyword(q.Keyword))
	}
	if strings.TrimSpace(q.Search) != "" {
		filters = append(filters, BySearch(q.Search))
	}
	switch len(filters) {
	case 0:
		return mode, Filter{}, nil
	case 1:
		return mode, filters[0], nil
	default:
		return "", Filter{}, domain.NewValidationError("filter", "date, keyword and search are mutually exclusive")
	}
}
