package cmd

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-queue/internal/queue"
)

var clustersCmd = &cobra.Command{
	Use:   "clusters",
	Short: "List groups of similar unlabeled faces",
	Long: `Group the unlabeled faces by embedding similarity and list the largest
groups. A whole group can then be labeled at once.

Examples:
  face-queue clusters --limit 10
  face-queue clusters --label 3fa9c01b22de "Marie Novak"`,
	Args: cobra.MaximumNArgs(1),
	RunE: runClusters,
}

func init() {
	rootCmd.AddCommand(clustersCmd)

	clustersCmd.Flags().Int("limit", 20, "Number of clusters to list")
	clustersCmd.Flags().Int("min-faces", 0, "Hide clusters with fewer faces")
	clustersCmd.Flags().String("label", "", "Cluster ID to label with the given argument")
	clustersCmd.Flags().Bool("json", false, "Output as JSON")
}

func runClusters(cmd *cobra.Command, args []string) error {
	a, logger, err := openArchive(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck
	defer a.Close() //nolint:errcheck

	if id := mustGetString(cmd, "label"); id != "" {
		if len(args) != 1 {
			return errors.New("--label needs the person label as argument")
		}
		res, err := a.Session.LabelCluster(cmd.Context(), id, args[0])
		if err != nil {
			return err
		}
		if mustGetBool(cmd, "json") {
			return outputJSON(res)
		}
		fmt.Printf("Labeled %d face(s) as %s, %d already labeled.\n", len(res.Accepted), res.Label, len(res.AlreadyLabeled))
		return nil
	}

	page, err := a.Session.ListClusters(cmd.Context(), queue.ClusterQuery{
		Limit:    mustGetInt(cmd, "limit"),
		MinFaces: mustGetInt(cmd, "min-faces"),
	})
	if err != nil {
		return err
	}
	if mustGetBool(cmd, "json") {
		return outputJSON(page)
	}
	if page.Total == 0 {
		fmt.Println("No clusters found.")
		return nil
	}
	fmt.Println(renderTable([]string{"Cluster", "Faces", "Open", "Photos", "Similarity", "Representative"}, clusterRows(page.Clusters), 1, 2, 3, 4))
	fmt.Printf("%d of %d cluster(s), %d eligible face(s)\n", len(page.Clusters), page.Total, page.Info.Stats.EligibleFaces)
	return nil
}

func clusterRows(clusters []queue.ClusterEntry) [][]string {
	rows := make([][]string, 0, len(clusters))
	for _, c := range clusters {
		rows = append(rows, []string{
			c.ID,
			strconv.Itoa(c.FaceCount),
			strconv.Itoa(c.OpenCount),
			strconv.Itoa(len(c.BucketIDs)),
			strconv.FormatFloat(c.Summary.AvgSimilarity, 'f', 3, 64),
			c.Representative.FaceID,
		})
	}
	return rows
}
