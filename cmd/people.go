package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-queue/internal/facematch"
	"github.com/kozaktomas/face-queue/internal/queue"
)

var peopleCmd = &cobra.Command{
	Use:   "people",
	Short: "List labeled people",
	Long: `List every label with its face count, the number of faces still offered
for it and its metadata. Pinned people come first.`,
	RunE: runPeople,
}

var mergeCmd = &cobra.Command{
	Use:   "merge <source> <target>",
	Short: "Rename a label or merge it into another",
	Long: `Move every face of source to target. When target does not exist yet the
label is renamed and its reject votes follow it.

Example:
  face-queue merge "Grandma" "Marie Novak"`,
	Args: cobra.ExactArgs(2),
	RunE: runMerge,
}

func init() {
	rootCmd.AddCommand(peopleCmd)
	rootCmd.AddCommand(mergeCmd)

	peopleCmd.Flags().Bool("json", false, "Output as JSON")
	peopleCmd.Flags().Bool("hide-ignored", false, "Hide people marked as ignored")
}

func runPeople(cmd *cobra.Command, args []string) error {
	a, logger, err := openArchive(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck
	defer a.Close() //nolint:errcheck

	people, err := a.Session.ListPeople(cmd.Context())
	if err != nil {
		return err
	}
	if mustGetBool(cmd, "hide-ignored") {
		kept := people[:0]
		for _, p := range people {
			if !p.Ignored {
				kept = append(kept, p)
			}
		}
		people = kept
	}

	if mustGetBool(cmd, "json") {
		return outputJSON(people)
	}
	if len(people) == 0 {
		fmt.Println("No labels yet. Seed one with the web UI or POST /api/v1/labels/seed.")
		return nil
	}
	fmt.Println(renderTable([]string{"Label", "Faces", "Pending", "Last seen", "Group", "Flags"}, peopleRows(people), 1, 2))
	return nil
}

func peopleRows(people []queue.Person) [][]string {
	rows := make([][]string, 0, len(people))
	for _, p := range people {
		lastSeen := "-"
		if p.LastSeen != nil {
			lastSeen = p.LastSeen.Local().Format("2006-01-02 15:04")
		}
		var flags []string
		if p.Pinned {
			flags = append(flags, "pinned")
		}
		if p.Ignored {
			flags = append(flags, "ignored")
		}
		rows = append(rows, []string{
			p.Label,
			strconv.Itoa(p.FaceCount),
			strconv.Itoa(p.PendingCount),
			lastSeen,
			p.Group,
			strings.Join(flags, " "),
		})
	}
	return rows
}

func runMerge(cmd *cobra.Command, args []string) error {
	a, logger, err := openArchive(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck
	defer a.Close() //nolint:errcheck

	people, err := a.Session.MergeLabels(cmd.Context(), args[0], args[1])
	if err != nil {
		return err
	}
	for _, p := range people {
		if facematch.NormalizeLabel(p.Label) == facematch.NormalizeLabel(args[1]) {
			fmt.Printf("Merged %q into %q: %d faces\n", args[0], p.Label, p.FaceCount)
			return nil
		}
	}
	fmt.Printf("Merged %q into %q\n", args[0], args[1])
	return nil
}
