package render

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/helixir/paper-timeline/internal/domain"
	"github.com/helixir/paper-timeline/internal/locale"
	"github.com/helixir/paper-timeline/internal/timeline"
	"github.com/helixir/paper-timeline/internal/view"
)

// Text implements timeline.Renderer for terminals.
type Text struct {
	w   io.Writer
	loc *locale.Locale
	mu  sync.Mutex
}

var _ timeline.Renderer = (*Text)(nil)

// NewText creates a text renderer writing to w.
func NewText(w io.Writer, loc *locale.Locale) *Text {
	if loc == nil {
		loc = locale.Default()
	}
	return &Text{w: w, loc: loc}
}

// Render implements timeline.Renderer. One block per paper.
func (t *Text) Render(ctx context.Context, proj view.Projection) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if proj.Empty {
		_, err := fmt.Fprintln(t.w, t.loc.NoMatches)
		return err
	}

	var b strings.Builder
	for _, p := range proj.Papers {
		c := NewCard(p, t.loc)
		fmt.Fprintf(&b, "[%s] %s · %s\n", c.ID, c.Date, c.Authors)
		fmt.Fprintf(&b, "  %s\n", c.Title)
		if len(c.Tags) > 0 {
			fmt.Fprintf(&b, "  #%s\n", strings.Join(c.Tags, " #"))
		}
		fmt.Fprintf(&b, "  ♥ %d\n", c.Likes)
	}
	_, err := io.WriteString(t.w, b.String())
	return err
}

// RenderSidebar implements timeline.Renderer.
func (t *Text) RenderSidebar(ctx context.Context, sb timeline.Sidebar) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	var b strings.Builder
	fmt.Fprintf(&b, "%s (%d)\n", sb.All.Label, sb.All.Count)
	for _, e := range sb.Dates {
		fmt.Fprintf(&b, "  %-12s %d\n", e.Label, e.Count)
	}
	if len(sb.Keywords) > 0 {
		b.WriteString("\n")
		for _, e := range sb.Keywords {
			fmt.Fprintf(&b, "  #%-24s %d\n", e.Label, e.Count)
		}
	}
	_, err := io.WriteString(t.w, b.String())
	return err
}

// RenderError implements timeline.Renderer.
func (t *Text) RenderError(ctx context.Context, err error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, werr := fmt.Fprintf(t.w, "error: %v\n", err)
	return werr
}

// RenderDetail writes the full view of one paper. Markdown is shown as
// written.
func (t *Text) RenderDetail(p *domain.Paper) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	c := NewCard(p, t.loc)
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", c.Title)
	fmt.Fprintf(&b, "%s\n", orDefault(strings.Join(p.Authors, ", "), t.loc.UnknownAuthor))
	fmt.Fprintf(&b, "%s\n", c.Date)
	if p.URL != "" {
		fmt.Fprintf(&b, "%s\n", p.URL)
	}
	fmt.Fprintf(&b, "\n%s\n", orDefault(p.DetailedSummary, c.Abstract))
	for _, qa := range p.QAPairs {
		fmt.Fprintf(&b, "\nQ: %s\nA: %s\n", qa.Question, qa.Answer)
	}
	fmt.Fprintf(&b, "\n♥ %d\n", c.Likes)
	_, err := io.WriteString(t.w, b.String())
	return err
}
