// Package render turns projections and papers into HTML pages and plain
// text. It only reads plain data handed over by the timeline.
package render

import (
	"html/template"
	"strings"

	"github.com/helixir/paper-timeline/internal/domain"
	"github.com/helixir/paper-timeline/internal/locale"
)

// MaxCardAuthors is the number of authors listed on a card.
const MaxCardAuthors = 2

// MaxCardTags is the number of keyword tags shown on a card.
const MaxCardTags = 3

// Card is the summary shown for one paper in a list.
type Card struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Date     string   `json:"date"`
	Authors  string   `json:"authors"`
	Abstract string   `json:"abstract"`
	Tags     []string `json:"tags"`
	Likes    int64    `json:"likes"`
}

// NewCard builds the card for p.
func NewCard(p *domain.Paper, loc *locale.Locale) Card {
	if loc == nil {
		loc = locale.Default()
	}
	return Card{
		ID:       p.ID.String(),
		Title:    p.Title,
		Date:     DateString(p, loc),
		Authors:  AuthorLine(p.Authors, loc),
		Abstract: orDefault(p.Abstract, loc.NoAbstract),
		Tags:     Tags(p.Keywords, MaxCardTags),
		Likes:    p.Likes(),
	}
}

// NewCards builds cards for papers in order.
func NewCards(papers []*domain.Paper, loc *locale.Locale) []Card {
	cards := make([]Card, len(papers))
	for i, p := range papers {
		cards[i] = NewCard(p, loc)
	}
	return cards
}

// DateString returns the published day as YYYY-MM-DD, or the locale's
// unknown date text.
func DateString(p *domain.Paper, loc *locale.Locale) string {
	if p.PublishedDate == nil {
		return loc.UnknownDate
	}
	return p.PublishedDate.Format("2006-01-02")
}

// AuthorLine lists the first MaxCardAuthors authors and marks the rest with
// the locale's "et al." suffix.
func AuthorLine(authors []string, loc *locale.Locale) string {
	switch {
	case len(authors) == 0:
		return loc.UnknownAuthor
	case len(authors) > MaxCardAuthors:
		return strings.Join(authors[:MaxCardAuthors], ", ") + loc.EtAl
	default:
		return strings.Join(authors, ", ")
	}
}

// Tags returns up to n trimmed, non-empty keywords in their original case.
func Tags(keywords []string, n int) []string {
	var out []string
	for _, kw := range keywords {
		if len(out) == n {
			break
		}
		if kw = strings.TrimSpace(kw); kw != "" {
			out = append(out, kw)
		}
	}
	return out
}

// QA is one rendered question and answer.
type QA struct {
	Question string        `json:"question"`
	Answer   template.HTML `json:"answer_html"`
}

// Detail is the full view of one paper.
type Detail struct {
	Card
	AllAuthors string        `json:"all_authors"`
	URL        string        `json:"url,omitempty"`
	Summary    template.HTML `json:"summary_html"`
	QA         []QA          `json:"qa_pairs,omitempty"`
}

// NewDetail builds the detail view. The summary falls back to the abstract
// and is rendered from markdown, as are the answers.
func NewDetail(p *domain.Paper, loc *locale.Locale) Detail {
	if loc == nil {
		loc = locale.Default()
	}
	d := Detail{
		Card:       NewCard(p, loc),
		AllAuthors: orDefault(strings.Join(p.Authors, ", "), loc.UnknownAuthor),
		URL:        p.URL,
		Summary:    Markdown(orDefault(p.DetailedSummary, p.Abstract)),
	}
	for _, qa := range p.QAPairs {
		d.QA = append(d.QA, QA{Question: qa.Question, Answer: Markdown(qa.Answer)})
	}
	return d
}

func orDefault(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}
