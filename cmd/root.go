package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kozaktomas/face-queue/internal/archive"
	"github.com/kozaktomas/face-queue/internal/config"
	"github.com/kozaktomas/face-queue/internal/logging"
	"github.com/kozaktomas/face-queue/internal/queue"
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "face-queue",
	Short: "Label the faces of a scanned photo archive",
	Long: `Face Queue loads the face detections of a photo archive and offers them
one by one for labeling, ranked by similarity to the faces already labeled.
Decisions are stored next to the archive and every step can be undone.`,
	SilenceUsage: true,
}

// Execute runs the root command. An exhausted queue exits with status 2.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if errors.Is(err, queue.ErrEmptyQueue) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.SilenceErrors = true
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file (overrides FACE_QUEUE_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
	if configPath != "" {
		_ = os.Setenv("FACE_QUEUE_CONFIG", configPath)
	}
}

// loadConfig loads the configuration and builds the logger for a command.
func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// openArchive loads the configuration and opens the archive it describes.
// The caller closes the archive and syncs the logger.
func openArchive(cmd *cobra.Command) (*archive.Archive, *zap.Logger, error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	a, err := archive.Open(cmd.Context(), cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, nil, fmt.Errorf("opening archive: %w", err)
	}
	return a, logger, nil
}
