package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/helixir/paper-timeline/internal/render"
)

func init() {
	addQueryFlags(listCmd)
	rootCmd.AddCommand(listCmd)
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List papers in timeline order",
	Long: `List the loaded papers. At most one of --date, --keyword and --search
may be given.

Examples:
  timeline list --human
  timeline list --sort likes --keyword nlp
  timeline list --date 2024-01`,
	Args: cobra.NoArgs,
	RunE: runList,
}

// listResponse is the JSON form of a projection.
type listResponse struct {
	Sort   string        `json:"sort"`
	Filter string        `json:"filter,omitempty"`
	Total  int           `json:"total"`
	Papers []render.Card `json:"papers"`
}

func runList(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd.Context(), nil)
	if err != nil {
		return err
	}
	defer s.Close()

	proj, f, err := s.timeline.Query(queryFromFlags())
	if err != nil {
		return err
	}

	if humanOutput {
		return render.NewText(os.Stdout, s.timeline.Locale()).Render(cmd.Context(), proj)
	}

	resp := listResponse{
		Sort:   proj.Sort.String(),
		Filter: filterLabel(f),
		Total:  s.timeline.Total(),
		Papers: render.NewCards(proj.Papers, s.timeline.Locale()),
	}
	if resp.Papers == nil {
		resp.Papers = []render.Card{}
	}
	return outputJSON(resp)
}
