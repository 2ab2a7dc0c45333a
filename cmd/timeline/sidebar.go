package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/helixir/paper-timeline/internal/render"
)

func init() {
	rootCmd.AddCommand(sidebarCmd)
}

var sidebarCmd = &cobra.Command{
	Use:   "sidebar",
	Short: "List the date periods and keywords with their paper counts",
	Args:  cobra.NoArgs,
	RunE:  runSidebar,
}

func runSidebar(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd.Context(), nil)
	if err != nil {
		return err
	}
	defer s.Close()

	sb, err := s.timeline.Sidebar()
	if err != nil {
		return err
	}
	if humanOutput {
		return render.NewText(os.Stdout, s.timeline.Locale()).RenderSidebar(cmd.Context(), sb)
	}
	return outputJSON(sb)
}
