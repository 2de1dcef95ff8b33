package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/olbboy/streviz-engine/internal/scanner"
)

// serveCmd starts the long-running background maintenance for this engine
// instance. The scheduler and supervisor are driven by the embedding
// service, not this CLI; what this command owns is the periodic cache
// janitor, which has nowhere else to live once the process that created a
// merge job's cache entries exits.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run background maintenance (the normalize cache janitor) until stopped",
	Long: `serve starts the normalize cache janitor on its configured cron schedule
and blocks until SIGINT/SIGTERM. It does not run the scheduler or supervisor
directly — those are library components meant to be embedded by the
service that owns the public request surface.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) error {
	logger := slog.Default()

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if !cfg.Janitor.Enabled {
		logger.Info("cache janitor disabled by config, serve has nothing to do")
		return waitForShutdown(logger)
	}

	mgr, cleanup, err := openCacheManager()
	if err != nil {
		return fmt.Errorf("opening cache manager: %w", err)
	}
	defer cleanup()

	janitor := scanner.NewCacheJanitor(mgr, logger)
	if err := janitor.Start(cfg.Janitor.Cron); err != nil {
		return fmt.Errorf("starting cache janitor: %w", err)
	}
	defer janitor.Stop()

	logger.Info("streviz-engine serving", slog.String("janitor_cron", cfg.Janitor.Cron))

	return waitForShutdown(logger)
}

// waitForShutdown blocks until a termination signal is received.
func waitForShutdown(logger *slog.Logger) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received shutdown signal", slog.String("signal", sig.String()))
	return nil
}
