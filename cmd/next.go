package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-queue/internal/facematch"
	"github.com/kozaktomas/face-queue/internal/queue"
)

var nextCmd = &cobra.Command{
	Use:   "next [label]",
	Short: "Show the next candidates for a label",
	Long: `Print the best ranked faces for a label without deciding on them. Without
a label the most confident undecided face is shown (seed mode).

Exits with status 2 when the queue is empty.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runNext,
}

func init() {
	rootCmd.AddCommand(nextCmd)
	nextCmd.Flags().Int("limit", 1, "Number of candidates to show")
	nextCmd.Flags().Float64("min-similarity", -1, "Minimum similarity (default from config)")
	nextCmd.Flags().Bool("json", false, "Output as JSON")
}

func runNext(cmd *cobra.Command, args []string) error {
	a, logger, err := openArchive(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck
	defer a.Close() //nolint:errcheck

	var candidates []facematch.Candidate
	label := ""
	if len(args) == 1 {
		label = args[0]
		minSim := mustGetFloat64(cmd, "min-similarity")
		if minSim < 0 {
			minSim = a.Session.Options().MinSimilarity
		}
		candidates, err = a.Session.RankedBatch(cmd.Context(), label, mustGetInt(cmd, "limit"), minSim)
		if err != nil {
			return err
		}
	} else if c := a.Session.SeedCandidate(); c != nil {
		candidates = append(candidates, *c)
	}

	if len(candidates) == 0 {
		if label == "" {
			return fmt.Errorf("every face is decided: %w", queue.ErrEmptyQueue)
		}
		return fmt.Errorf("queue for %q: %w", label, queue.ErrEmptyQueue)
	}

	if mustGetBool(cmd, "json") {
		return outputJSON(candidates)
	}
	rows := make([][]string, 0, len(candidates))
	for _, c := range candidates {
		sim := "-"
		if c.Similarity != nil {
			sim = fmt.Sprintf("%.3f", *c.Similarity)
		}
		rows = append(rows, []string{c.FaceID, c.BucketID, sim, fmt.Sprintf("%.2f", c.Confidence), strings.Join(c.LabelHints, ", ")})
	}
	fmt.Println(renderTable([]string{"Face", "Bucket", "Similarity", "Confidence", "Hints"}, rows, 2, 3))
	return nil
}
