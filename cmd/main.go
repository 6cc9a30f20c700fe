package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"arcsync/internal/app"
	"arcsync/internal/config"
	"arcsync/internal/errdefs"
	"arcsync/internal/logger"
	"arcsync/internal/version"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "arcsync [flags] [rows] COLLECTION...",
	Short: "Resumable collection sync for archive and bucket sources",
	Long: `arcsync mirrors remote collections into local directories. Each pass
fetches the collection's catalog, diffs it against the recorded sync state,
downloads only new or updated items, and records every success so an
interrupted run resumes where it stopped.`,
	Args:          cobra.ArbitraryArgs,
	Version:       version.String(),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runSync,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (YAML)")

	rootCmd.Flags().String("root", ".", "Root directory holding one subdirectory per collection")
	rootCmd.Flags().BoolP("dry-run", "n", false, "Report the plan without transferring or recording")
	rootCmd.Flags().BoolP("verbose", "v", false, "Debug logging")
	rootCmd.Flags().String("log-level", "info", "Log level (debug/info/warn/error)")

	// Source flags
	rootCmd.Flags().String("source", config.SourceArchive, "Source backend (archive/bucket)")
	rootCmd.Flags().String("base-url", "", "Archive base URL")
	rootCmd.Flags().String("file-ext", "zip", "Archive artifact extension")
	rootCmd.Flags().String("bucket-endpoint", "", "S3 endpoint for the bucket source")
	rootCmd.Flags().String("bucket-access-key", "", "S3 access key")
	rootCmd.Flags().String("bucket-secret-key", "", "S3 secret key")
	rootCmd.Flags().Bool("bucket-secure", true, "Use HTTPS for the bucket source")
	rootCmd.Flags().String("bucket-prefix", "", "Key prefix filter for the bucket source")

	// Sync flags
	rootCmd.Flags().Int("retries", 3, "Catalog fetch attempts")
	rootCmd.Flags().Int("retry-backoff-ms", 2000, "Backoff between catalog attempts in milliseconds")
	rootCmd.Flags().String("state-backend", config.StateFile, "State backend (file/sqlite)")
	rootCmd.Flags().String("metrics-addr", "", "Expose Prometheus metrics on this address (e.g. :9090)")
}

func runSync(cmd *cobra.Command, args []string) error {
	// Positional arguments are checked before the config file is touched.
	rows, collections, err := config.ParseArgs(args)
	if err != nil {
		return err
	}

	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return err
	}

	cfg.Run.Collections = collections
	cfg.Run.Rows = rows
	if cfg.Run.Rows == 0 {
		cfg.Run.Rows = cfg.Catalog.Rows
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	a, err := app.New(cfg, log)
	if err != nil {
		return err
	}

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info("Received shutdown signal, gracefully stopping...")
		cancel()
	}()

	return a.Run(ctx)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(errdefs.ExitCode(err))
	}
}
