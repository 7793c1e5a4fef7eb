package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-queue/internal/archive"
	"github.com/kozaktomas/face-queue/internal/constants"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Manage the HNSW candidate index",
}

var indexBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build the HNSW index over the catalog and save it",
	Long: `Build the approximate nearest-neighbour index used to shortlist candidates
and save it to matcher.index_path. The server loads it on start instead of
building it again.`,
	RunE: runIndexBuild,
}

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.AddCommand(indexBuildCmd)
	indexBuildCmd.Flags().String("output", "", "Index file (defaults to matcher.index_path)")
}

func runIndexBuild(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	path := mustGetString(cmd, "output")
	if path == "" {
		path = cfg.IndexPath()
	}
	if path == "" {
		return errors.New("no index path: set matcher.index_path or pass --output")
	}

	cat, closers, err := archive.LoadCatalog(cmd.Context(), cfg, logger)
	defer func() {
		for _, c := range closers {
			_ = c()
		}
	}()
	if err != nil {
		return err
	}
	m := archive.NewMatcher(cfg, cat, logger)

	var progress func()
	if m.Len() >= constants.IndexProgressThreshold {
		bar := progressbar.NewOptions(m.Len(),
			progressbar.OptionSetDescription("Building index"),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("faces"),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionFullWidth(),
		)
		defer bar.Finish() //nolint:errcheck
		progress = func() { _ = bar.Add(1) }
	}

	start := time.Now()
	idx, err := archive.BuildIndex(m, path, progress)
	if err != nil {
		return err
	}
	fmt.Printf("\nIndexed %d faces (dim %d) in %s, saved to %s\n",
		idx.Len(), m.Dim(), time.Since(start).Round(time.Millisecond), path)
	return nil
}
