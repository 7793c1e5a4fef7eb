package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show labeling progress",
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
	statsCmd.Flags().Bool("json", false, "Output as JSON")
}

func runStats(cmd *cobra.Command, args []string) error {
	a, logger, err := openArchive(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck
	defer a.Close() //nolint:errcheck

	summary := a.Session.Summary()
	if mustGetBool(cmd, "json") {
		return outputJSON(summary)
	}

	done := 0.0
	if summary.Detections > 0 {
		done = 100 * float64(summary.Detections-summary.Remaining) / float64(summary.Detections)
	}
	rows := [][]string{
		{"Detections", strconv.Itoa(summary.Detections)},
		{"Labeled", strconv.Itoa(summary.Labeled)},
		{"Ignored", strconv.Itoa(summary.Ignored)},
		{"Remaining", strconv.Itoa(summary.Remaining)},
		{"People", strconv.Itoa(summary.Labels)},
		{"Photos", strconv.Itoa(summary.Photos)},
		{"Manual boxes", strconv.Itoa(summary.ManualBoxes)},
		{"Decided", fmt.Sprintf("%.1f%%", done)},
	}
	fmt.Println(renderTable([]string{"", "Count"}, rows, 1))
	return nil
}
