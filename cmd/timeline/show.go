package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/helixir/paper-timeline/internal/domain"
	"github.com/helixir/paper-timeline/internal/render"
)

func init() {
	rootCmd.AddCommand(showCmd)
}

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one paper with its summary and Q&A",
	Long: `Show the detail view of one paper. The id is the document's own id
or, when it has none, the hash of its title as printed by list.

Example:
  timeline show 99162322 --human`,
	Args: cobra.ExactArgs(1),
	RunE: runShow,
}

func runShow(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd.Context(), nil)
	if err != nil {
		return err
	}
	defer s.Close()

	p, err := s.timeline.Paper(domain.PaperID(args[0]))
	if err != nil {
		return err
	}

	if humanOutput {
		return render.NewText(os.Stdout, s.timeline.Locale()).RenderDetail(p)
	}
	return outputJSON(render.NewDetail(p, s.timeline.Locale()))
}
