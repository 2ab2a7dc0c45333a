package main

import (
	"bytes"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/helixir/paper-timeline/internal/locale"
	"github.com/helixir/paper-timeline/internal/render"
	"github.com/helixir/paper-timeline/internal/timeline"
	"github.com/helixir/paper-timeline/internal/view"
)

var exportOut string

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "index.html", "Output file ('-' for stdout)")
	addQueryFlags(exportCmd)
	rootCmd.AddCommand(exportCmd)
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the timeline as a static HTML page",
	Long: `Render the timeline page the server shows at / into a file.

Examples:
  timeline export -o public/index.html
  timeline export --keyword nlp --sort likes -o nlp.html`,
	Args: cobra.NoArgs,
	RunE: runExport,
}

func runExport(cmd *cobra.Command, args []string) error {
	q := queryFromFlags()
	mode, f, err := q.Parse()
	if err != nil {
		return err
	}

	// Every state change renders a full page; the buffer keeps the last.
	var buf bytes.Buffer
	s, err := openSession(cmd.Context(), func(loc *locale.Locale) timeline.Renderer {
		return render.NewHTML(&buf, loc)
	})
	if err != nil {
		return err
	}
	defer s.Close()

	if q.Sort != "" {
		buf.Reset()
		if err := s.timeline.SetSort(cmd.Context(), mode); err != nil {
			return err
		}
	}
	if !f.IsZero() {
		buf.Reset()
		if err := s.timeline.FilterBy(cmd.Context(), f); err != nil {
			return err
		}
	}

	if exportOut == "-" {
		_, err := os.Stdout.Write(buf.Bytes())
		return err
	}
	if err := os.WriteFile(exportOut, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", exportOut, err)
	}

	proj, _, _ := s.timeline.Current()
	if humanOutput {
		fmt.Printf("wrote %d papers to %s\n", proj.Len(), exportOut)
		return nil
	}
	return outputJSON(map[string]interface{}{
		"out":    exportOut,
		"papers": proj.Len(),
		"filter": filterLabel(f),
	})
}

func filterLabel(f view.Filter) string {
	if f.IsZero() {
		return ""
	}
	return string(f.Kind) + "=" + f.Value
}
