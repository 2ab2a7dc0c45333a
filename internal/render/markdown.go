package render

import (
	"html/template"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
)

// Markdown renders src to HTML. Raw HTML in the source is dropped, so the
// result is safe to embed in a page.
func Markdown(src string) template.HTML {
	if strings.TrimSpace(src) == "" {
		return ""
	}

	// Parsers keep state between calls and cannot be shared.
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.NoEmptyLineBeforeBlock)
	r := html.NewRenderer(html.RendererOptions{
		Flags: html.CommonFlags | html.SkipHTML | html.HrefTargetBlank | html.Safelink,
	})

	out := markdown.ToHTML([]byte(src), p, r)
	return template.HTML(out)
}
