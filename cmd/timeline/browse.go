package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/helixir/paper-timeline/internal/domain"
	"github.com/helixir/paper-timeline/internal/likes"
	"github.com/helixir/paper-timeline/internal/locale"
	"github.com/helixir/paper-timeline/internal/render"
	"github.com/helixir/paper-timeline/internal/timeline"
	"github.com/helixir/paper-timeline/internal/view"
)

func init() {
	rootCmd.AddCommand(browseCmd)
}

var browseCmd = &cobra.Command{
	Use:   "browse",
	Short: "Browse the timeline interactively",
	Long: `Load the timeline and read commands from stdin. Each command changes
the view the way the sidebar and sort buttons of the page do.

Commands:
  sort date|keyword|likes   change the sort order
  date <period>             show one period, e.g. 2024-01
  keyword <keyword>         show papers tagged with a keyword
  search <text>             substring search; empty text shows everything
  all                       clear the filter
  sidebar                   list periods and keywords
  show <id>                 show one paper
  like <id>                 like a paper
  reload                    reload the corpus and like counts
  quit`,
	Args: cobra.NoArgs,
	RunE: runBrowse,
}

func runBrowse(cmd *cobra.Command, args []string) error {
	var text *render.Text
	s, err := openSession(cmd.Context(), func(loc *locale.Locale) timeline.Renderer {
		text = render.NewText(os.Stdout, loc)
		return text
	})
	if err != nil {
		return err
	}
	defer s.Close()

	return browse(cmd.Context(), s.timeline, text, os.Stdin, os.Stdout)
}

// browse runs the command loop until quit or end of input. Command errors
// are printed and the loop continues.
func browse(ctx context.Context, tl *timeline.Timeline, text *render.Text, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	fmt.Fprint(out, "> ")
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		verb, arg, _ := strings.Cut(strings.TrimSpace(scanner.Text()), " ")
		arg = strings.TrimSpace(arg)

		var err error
		switch strings.ToLower(verb) {
		case "":
		case "quit", "exit", "q":
			return nil
		case "sort":
			var mode view.SortMode
			if mode, err = view.ParseSortMode(arg); err == nil {
				err = tl.SetSort(ctx, mode)
			}
		case "date":
			err = tl.FilterBy(ctx, view.ByDate(arg))
		case "keyword", "tag":
			err = tl.FilterBy(ctx, view.ByKeyword(arg))
		case "search":
			err = tl.Search(ctx, arg)
		case "all":
			err = tl.Reset(ctx)
		case "sidebar":
			var sb timeline.Sidebar
			if sb, err = tl.Sidebar(); err == nil {
				err = text.RenderSidebar(ctx, sb)
			}
		case "show":
			var p *domain.Paper
			if p, err = tl.Paper(domain.PaperID(arg)); err == nil {
				err = text.RenderDetail(p)
			}
		case "like":
			// The write finishes in the background; the session waits for
			// it on close.
			var pending *likes.PendingWrite
			if pending, err = tl.Like(ctx, domain.PaperID(arg)); err == nil {
				fmt.Fprintf(out, "♥ %s %d\n", arg, pending.State.Count)
			}
		case "reload":
			err = tl.Reload(ctx)
		default:
			fmt.Fprintf(out, "unknown command %q; type quit to leave\n", verb)
		}
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
		}
		fmt.Fprint(out, "> ")
	}
	return scanner.Err()
}
