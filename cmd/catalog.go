package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-queue/internal/database/postgres"
	"github.com/kozaktomas/face-queue/internal/database/sqlite"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Manage the detection catalog",
}

var catalogImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Copy detections from the archive database into PostgreSQL",
	Long: `Read every usable detection from the archive SQLite database
(catalog.path) and upsert it into the PostgreSQL faces table (catalog.url),
so several machines can share one catalog.`,
	RunE: runCatalogImport,
}

func init() {
	rootCmd.AddCommand(catalogCmd)
	catalogCmd.AddCommand(catalogImportCmd)
}

func runCatalogImport(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	if cfg.Catalog.URL == "" {
		return errors.New("DATABASE_URL (catalog.url) is required")
	}
	ctx := cmd.Context()

	db, err := sqlite.OpenCatalog(cfg.CatalogPath())
	if err != nil {
		return err
	}
	defer db.Close() //nolint:errcheck
	detections, err := sqlite.NewCatalogSource(db, cfg.Catalog.Variants, cfg.Catalog.MinConfidence, logger.Named("sqlite")).LoadDetections(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Connecting to PostgreSQL database...\n")
	pool, err := postgres.Open(ctx, &cfg.Catalog)
	if err != nil {
		return fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	defer pool.Close() //nolint:errcheck

	repo := postgres.NewDetectionRepository(pool, cfg.Catalog.Variants, cfg.Catalog.MinConfidence, logger.Named("postgres"))
	if err := repo.SaveDetections(ctx, detections); err != nil {
		return err
	}
	total, err := repo.Count(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Imported %d detections, %d in the catalog\n", len(detections), total)
	return nil
}
