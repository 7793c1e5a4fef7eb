package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-queue/internal/constants"
	"github.com/kozaktomas/face-queue/internal/database"
	"github.com/kozaktomas/face-queue/internal/queue"
)

var photosCmd = &cobra.Command{
	Use:   "photos",
	Short: "List photos that still have unlabeled faces",
	Long: `List photos ordered by priority, number of unlabeled faces and detector
confidence, the same order the web UI uses.`,
	RunE: runPhotos,
}

var photosDoneCmd = &cobra.Command{
	Use:   "done <bucket-id>",
	Short: "Mark a photo as done (or open again with --undo)",
	Args:  cobra.ExactArgs(1),
	RunE:  runPhotosDone,
}

var priorityCmd = &cobra.Command{
	Use:   "priority <bucket-id> <low|normal|high>",
	Short: "Set the review priority of a photo",
	Args:  cobra.ExactArgs(2),
	RunE:  runPriority,
}

func init() {
	rootCmd.AddCommand(photosCmd)
	rootCmd.AddCommand(priorityCmd)
	photosCmd.AddCommand(photosDoneCmd)

	photosCmd.Flags().Int("limit", constants.DefaultCLIListLimit, "Maximum number of photos to list")
	photosCmd.Flags().Int("cursor", 0, "Offset into the ordering")
	photosCmd.Flags().String("priority", "", "Only photos with this priority")
	photosCmd.Flags().String("mode", queue.ModeUnlabeled, "unlabeled or review")
	photosCmd.Flags().Float64("min-confidence", 0, "Ignore faces below this detector confidence")
	photosCmd.Flags().Bool("include-done", false, "Include photos marked as done")
	photosCmd.Flags().Bool("json", false, "Output as JSON")

	photosDoneCmd.Flags().Bool("undo", false, "Open the photo again")
}

func runPhotos(cmd *cobra.Command, args []string) error {
	a, logger, err := openArchive(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck
	defer a.Close() //nolint:errcheck

	page, err := a.Session.ListPhotos(queue.PhotoQuery{
		Cursor:        mustGetInt(cmd, "cursor"),
		Limit:         mustGetInt(cmd, "limit"),
		Priority:      database.Priority(mustGetString(cmd, "priority")),
		MinConfidence: mustGetFloat64(cmd, "min-confidence"),
		Mode:          mustGetString(cmd, "mode"),
		IncludeDone:   mustGetBool(cmd, "include-done"),
	})
	if err != nil {
		return err
	}

	if mustGetBool(cmd, "json") {
		return outputJSON(page)
	}
	if len(page.Photos) == 0 {
		fmt.Println("No photos match.")
		return nil
	}

	rows := make([][]string, 0, len(page.Photos))
	for _, p := range page.Photos {
		done := ""
		if p.Done {
			done = "done"
		}
		rows = append(rows, []string{
			p.BucketID,
			p.BucketPrefix,
			string(p.Priority),
			strconv.Itoa(p.FaceCount),
			strconv.Itoa(p.UnlabeledCount),
			strconv.Itoa(p.LabeledCount),
			fmt.Sprintf("%.2f", p.MaxConfidence),
			done,
		})
	}
	fmt.Println(renderTable([]string{"Bucket", "Prefix", "Priority", "Faces", "Open", "Labeled", "Max conf", ""}, rows, 3, 4, 5, 6))
	if page.NextCursor != nil {
		fmt.Printf("%d of %d photos shown, next page: --cursor %d\n", len(page.Photos), page.Total, *page.NextCursor)
	}
	return nil
}

func runPhotosDone(cmd *cobra.Command, args []string) error {
	a, logger, err := openArchive(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck
	defer a.Close() //nolint:errcheck

	done := !mustGetBool(cmd, "undo")
	if err := a.Session.SetPhotoDone(args[0], done); err != nil {
		return err
	}
	if done {
		fmt.Printf("Marked %s as done\n", args[0])
	} else {
		fmt.Printf("Opened %s again\n", args[0])
	}
	return nil
}

func runPriority(cmd *cobra.Command, args []string) error {
	a, logger, err := openArchive(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck
	defer a.Close() //nolint:errcheck

	p, err := a.Session.SetPriority(args[0], args[1])
	if err != nil {
		return err
	}
	fmt.Printf("Priority of %s set to %s\n", args[0], p)
	return nil
}
