package render

import (
	"context"
	"fmt"
	"html/template"
	"io"
	"net/url"
	"sync"

	"github.com/helixir/paper-timeline/internal/locale"
	"github.com/helixir/paper-timeline/internal/timeline"
	"github.com/helixir/paper-timeline/internal/view"
)

// Page is the data of the timeline page.
type Page struct {
	Lang      string
	AllLabel  string
	NoMatches string
	Total     int
	Sort      string
	Search    string
	Sidebar   timeline.Sidebar
	Cards     []Card
	Empty     bool
	Error     string
}

// DetailPage is the data of a single paper page.
type DetailPage struct {
	Lang   string
	Detail Detail
}

var templates = template.Must(template.New("").Funcs(template.FuncMap{
	"filterURL": filterURL,
}).Parse(`
{{define "head"}}<!DOCTYPE html>
<html lang="{{.Lang}}">
<head>
	<meta charset="utf-8">
	<meta name="viewport" content="width=device-width, initial-scale=1">
	<title>Paper Timeline</title>
</head>
<body>
{{end}}

{{define "foot"}}
</body>
</html>
{{end}}

{{define "sidebar"}}
<nav class="sidebar">
	<a class="filter-item{{if .All.Active}} active{{end}}" href="/">{{.All.Label}} <span class="count">{{.All.Count}}</span></a>
	{{range .Dates}}<a class="filter-item{{if .Active}} active{{end}}" href="{{filterURL "date" .Key}}">{{.Label}} <span class="count">{{.Count}}</span></a>
	{{end}}
	{{if .Keywords}}<div class="keywords">
	{{range .Keywords}}<a class="tag{{if .Active}} active{{end}}" href="{{filterURL "keyword" .Key}}">#{{.Label}} <span class="count">{{.Count}}</span></a>
	{{end}}</div>{{end}}
</nav>
{{end}}

{{define "card"}}
<div class="paper-card" id="paper-{{.ID}}">
	<div class="paper-date">{{.Date}} · {{.Authors}}</div>
	<h3 class="paper-title"><a href="/papers/{{.ID}}">{{.Title}}</a></h3>
	<div class="paper-abstract">{{.Abstract}}</div>
	<div class="paper-keywords">{{range .Tags}}<span class="tag">#{{.}}</span>{{end}}</div>
	<form class="like-container" method="post" action="/api/v1/papers/{{.ID}}/like">
		<button type="submit" class="like-icon">❤️</button>
		<span class="like-count" id="count-{{.ID}}">{{.Likes}}</span>
	</form>
</div>
{{end}}

{{define "page"}}{{template "head" .}}
<header>
	<form class="search" action="/" method="get">
		<input type="text" name="q" value="{{.Search}}">
		<input type="hidden" name="sort" value="{{.Sort}}">
	</form>
	<span class="total">{{.AllLabel}}: {{.Total}}</span>
</header>
{{if .Error}}
<div class="error">{{.Error}}</div>
{{else}}
{{template "sidebar" .Sidebar}}
<main class="timeline">
{{if .Empty}}<div class="empty"><p>⚠️ {{.NoMatches}}</p></div>
{{else}}{{range .Cards}}{{template "card" .}}{{end}}{{end}}
</main>
{{end}}
{{template "foot" .}}{{end}}

{{define "detail"}}{{template "head" .}}
{{with .Detail}}
<article class="paper-detail">
	<h1>{{.Title}}</h1>
	<div class="paper-meta">{{.AllAuthors}}</div>
	<div class="paper-meta">{{.Date}}</div>
	{{if .URL}}<div class="paper-meta"><a href="{{.URL}}" target="_blank" rel="noopener">{{.URL}}</a></div>{{end}}
	<section class="summary">{{.Summary}}</section>
	{{if .QA}}<section class="qa">
	{{range .QA}}<div class="qa-item">
		<div class="question">{{.Question}}</div>
		<div class="answer">{{.Answer}}</div>
	</div>
	{{end}}</section>{{end}}
	<div class="like-count">{{.Likes}}</div>
</article>
{{end}}
{{template "foot" .}}{{end}}
`))

func filterURL(kind, key string) string {
	q := url.Values{}
	q.Set(kind, key)
	return "/?" + q.Encode()
}

// WritePage writes the timeline page.
func WritePage(w io.Writer, page Page) error {
	if err := templates.ExecuteTemplate(w, "page", page); err != nil {
		return fmt.Errorf("render page: %w", err)
	}
	return nil
}

// WriteDetail writes a single paper page.
func WriteDetail(w io.Writer, page DetailPage) error {
	if err := templates.ExecuteTemplate(w, "detail", page); err != nil {
		return fmt.Errorf("render detail: %w", err)
	}
	return nil
}

// NewPage assembles page data for a projection.
func NewPage(proj view.Projection, sidebar timeline.Sidebar, f view.Filter, loc *locale.Locale) Page {
	page := Page{
		Lang:      loc.Tag.String(),
		AllLabel:  loc.AllPapers,
		NoMatches: loc.NoMatches,
		Total:     sidebar.All.Count,
		Sort:      proj.Sort.String(),
		Sidebar:   sidebar,
		Cards:     NewCards(proj.Papers, loc),
		Empty:     proj.Empty,
	}
	if f.Kind == view.FilterSearch {
		page.Search = f.Value
	}
	return page
}

// HTML implements timeline.Renderer by writing a full page per render.
type HTML struct {
	w   io.Writer
	loc *locale.Locale

	mu      sync.Mutex
	sidebar timeline.Sidebar
}

var _ timeline.Renderer = (*HTML)(nil)

// NewHTML creates an HTML renderer writing to w.
func NewHTML(w io.Writer, loc *locale.Locale) *HTML {
	if loc == nil {
		loc = locale.Default()
	}
	return &HTML{w: w, loc: loc}
}

// RenderSidebar implements timeline.Renderer. The sidebar is written with
// the next page.
func (h *HTML) RenderSidebar(ctx context.Context, sidebar timeline.Sidebar) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sidebar = sidebar
	return nil
}

// Render implements timeline.Renderer.
func (h *HTML) Render(ctx context.Context, proj view.Projection) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return WritePage(h.w, NewPage(proj, h.sidebar, view.Filter{}, h.loc))
}

// RenderError implements timeline.Renderer.
func (h *HTML) RenderError(ctx context.Context, err error) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return WritePage(h.w, Page{
		Lang:     h.loc.Tag.String(),
		AllLabel: h.loc.AllPapers,
		Error:    err.Error(),
	})
}
