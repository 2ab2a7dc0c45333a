package httpserver

import (
	"github.com/helixir/paper-timeline/internal/domain"
	"github.com/helixir/paper-timeline/internal/locale"
	"github.com/helixir/paper-timeline/internal/render"
	"github.com/helixir/paper-timeline/internal/view"
)

// Response types for JSON serialization.

type filterResponse struct {
	Kind  string `json:"kind"`
	Value string `json:"value"`
}

type listPapersResponse struct {
	Papers     []render.Card   `json:"papers"`
	Sort       string          `json:"sort"`
	Filter     *filterResponse `json:"filter,omitempty"`
	Empty      bool            `json:"empty"`
	Message    string          `json:"message,omitempty"`
	TotalCount int             `json:"total_count"`
}

type qaResponse struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

type paperResponse struct {
	render.Card
	AllAuthors      []string     `json:"all_authors"`
	PublishedDate   string       `json:"published_date,omitempty"`
	Keywords        []string     `json:"keywords"`
	URL             string       `json:"url,omitempty"`
	DetailedSummary string       `json:"detailed_summary,omitempty"`
	SummaryHTML     string       `json:"summary_html,omitempty"`
	QAPairs         []qaResponse `json:"qa_pairs,omitempty"`
	HasRemoteRecord bool         `json:"has_remote_record"`
}

type likeResponse struct {
	PaperID string `json:"paper_id"`
	Likes   int64  `json:"likes"`
	Status  string `json:"status"`
}

type reloadResponse struct {
	Status     string `json:"status"`
	TotalCount int    `json:"total_count"`
}

// Converter functions

func projectionToResponse(proj view.Projection, f view.Filter, total int, loc *locale.Locale) listPapersResponse {
	resp := listPapersResponse{
		Papers:     render.NewCards(proj.Papers, loc),
		Sort:       proj.Sort.String(),
		Empty:      proj.Empty,
		TotalCount: total,
	}
	if !f.IsZero() {
		resp.Filter = &filterResponse{Kind: string(f.Kind), Value: f.Value}
	}
	if proj.Empty {
		resp.Message = loc.NoMatches
	}
	return resp
}

func domainPaperToResponse(p *domain.Paper, loc *locale.Locale) paperResponse {
	detail := render.NewDetail(p, loc)
	resp := paperResponse{
		Card:            detail.Card,
		AllAuthors:      p.Authors,
		Keywords:        p.Keywords,
		URL:             p.URL,
		DetailedSummary: p.DetailedSummary,
		SummaryHTML:     string(detail.Summary),
		HasRemoteRecord: p.HasRemoteRecord(),
	}
	if resp.AllAuthors == nil {
		resp.AllAuthors = []string{}
	}
	if resp.Keywords == nil {
		resp.Keywords = []string{}
	}
	if p.PublishedDate != nil {
		resp.PublishedDate = p.PublishedDate.Format("2006-01-02")
	}
	for _, qa := range p.QAPairs {
		resp.QAPairs = append(resp.QAPairs, qaResponse{Question: qa.Question, Answer: qa.Answer})
	}
	return resp
}
