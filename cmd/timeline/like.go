package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/helixir/paper-timeline/internal/domain"
)

func init() {
	rootCmd.AddCommand(likeCmd)
}

var likeCmd = &cobra.Command{
	Use:   "like <id>...",
	Short: "Like one or more papers",
	Long: `Increment the like count of each paper and wait until the remote
store has the new count. A paper without a remote row gets one.

Example:
  timeline like 1 99162322`,
	Args: cobra.MinimumNArgs(1),
	RunE: runLike,
}

// likeResult reports one persisted like.
type likeResult struct {
	PaperID   string `json:"paper_id"`
	Likes     int64  `json:"likes"`
	Operation string `json:"operation"`
	Persisted bool   `json:"persisted"`
	Error     string `json:"error,omitempty"`
}

func runLike(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd.Context(), nil)
	if err != nil {
		return err
	}
	defer s.Close()

	var (
		results []likeResult
		failed  int
	)
	for _, id := range args {
		pending, err := s.timeline.Like(cmd.Context(), domain.PaperID(id))
		if err != nil {
			return err
		}
		res := likeResult{PaperID: id, Likes: pending.State.Count}
		if werr := pending.Wait(); werr != nil {
			res.Error = werr.Error()
			failed++
		} else {
			res.Persisted = true
		}
		res.Operation = pending.Operation()

		// A rollback lowers the displayed count again.
		if p, err := s.timeline.Paper(domain.PaperID(id)); err == nil {
			res.Likes = p.Likes()
		}
		results = append(results, res)
	}

	if humanOutput {
		for _, r := range results {
			if r.Persisted {
				fmt.Printf("♥ %s now has %d likes (%s)\n", r.PaperID, r.Likes, r.Operation)
			} else {
				fmt.Printf("✗ %s: %s\n", r.PaperID, r.Error)
			}
		}
	} else if err := outputJSON(results); err != nil {
		return err
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d likes were not persisted", failed, len(args))
	}
	return nil
}
