package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kozaktomas/face-queue/internal/archive"
	"github.com/kozaktomas/face-queue/internal/constants"
	"github.com/kozaktomas/face-queue/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server",
	Long: `Start the Face Queue web server.
The server exposes the labeling queue, the people list and the photo
triage endpoints under /api/v1 and serves bucket images under /buckets.
Send SIGHUP to re-read the decision stores from disk.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (overrides WEB_PORT)")
	serveCmd.Flags().String("host", "", "Host to bind to (overrides WEB_HOST)")
}

func runServe(cmd *cobra.Command, args []string) error {
	a, logger, err := openArchive(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck
	defer a.Close() //nolint:errcheck

	cfg := a.Config()
	if port := mustGetInt(cmd, "port"); port > 0 {
		cfg.Web.Port = port
	}
	if host := mustGetString(cmd, "host"); host != "" {
		cfg.Web.Host = host
	}

	server := web.NewServer(cfg, a.Session, logger)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigChan)

	go handleSignals(ctx, sigChan, a, server, logger)

	summary := a.Session.Summary()
	fmt.Printf("Starting Face Queue on http://%s:%d (%d faces, %d remaining)\n",
		cfg.Web.Host, cfg.Web.Port, summary.Detections, summary.Remaining)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}

// handleSignals reloads the stores on SIGHUP and shuts the server down on
// SIGINT or SIGTERM.
func handleSignals(ctx context.Context, sigChan <-chan os.Signal, a *archive.Archive, server *web.Server, logger *zap.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-sigChan:
			if sig == syscall.SIGHUP {
				if err := a.Session.Reload(); err != nil {
					logger.Error("reload failed", zap.Error(err))
				} else {
					logger.Info("stores reloaded", zap.Int("remaining", a.Session.RemainingUnlabeled()))
				}
				continue
			}

			fmt.Println("\nShutting down...")
			shutdownCtx, shutdownCancel := context.WithTimeout(ctx, constants.ShutdownTimeout)
			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.Error("error during shutdown", zap.Error(err))
			}
			shutdownCancel()
			return
		}
	}
}
