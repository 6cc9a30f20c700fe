// Package app wires configuration into a runnable sync: it builds the
// remote source, drives one pass per requested collection, and aggregates
// the process outcome.
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"arcsync/internal/catalog"
	"arcsync/internal/config"
	"arcsync/internal/errdefs"
	"arcsync/internal/metrics"
	"arcsync/internal/progress"
	"arcsync/internal/remote"
	"arcsync/internal/state"
	"arcsync/internal/syncer"
)

const reportInterval = 10 * time.Second

// App is the assembled sync application.
type App struct {
	cfg       *config.Config
	logger    *zap.Logger
	source    remote.Source
	collector *metrics.Collector
}

// New creates the application from validated configuration.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	source, err := newSource(cfg)
	if err != nil {
		return nil, err
	}

	return &App{
		cfg:       cfg,
		logger:    logger,
		source:    source,
		collector: metrics.New(),
	}, nil
}

// newSource builds the configured remote source backend.
func newSource(cfg *config.Config) (remote.Source, error) {
	connectTimeout := time.Duration(cfg.Transfer.ConnectTimeoutSec) * time.Second

	switch cfg.Source.Type {
	case config.SourceArchive:
		return remote.NewArchiveSource(remote.ArchiveOptions{
			BaseURL:        cfg.Source.Archive.BaseURL,
			FileExt:        cfg.Source.Archive.FileExt,
			ConnectTimeout: connectTimeout,
		})
	case config.SourceBucket:
		return remote.NewBucketSource(remote.BucketOptions{
			Endpoint:  cfg.Source.Bucket.Endpoint,
			AccessKey: cfg.Source.Bucket.AccessKey,
			SecretKey: cfg.Source.Bucket.SecretKey,
			Secure:    cfg.Source.Bucket.Secure,
			Prefix:    cfg.Source.Bucket.Prefix,
		})
	default:
		return nil, errdefs.Newf(errdefs.KindDependency, "init",
			"source backend %q is not available in this build", cfg.Source.Type)
	}
}

// Run syncs every requested collection in order. One collection's failure
// does not stop the next; the first failure decides the process outcome.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("Starting sync",
		zap.String("root", a.cfg.RootDir),
		zap.String("source", a.cfg.Source.Type),
		zap.Strings("collections", a.cfg.Run.Collections),
		zap.Int("rows", a.cfg.Run.Rows),
		zap.Bool("dry_run", a.cfg.Run.DryRun),
	)

	if addr := a.cfg.Metrics.Addr; addr != "" {
		go func() {
			if err := a.collector.StartServer(addr); err != nil {
				a.logger.Error("Failed to start metrics server", zap.Error(err))
			}
		}()
		a.logger.Info("Metrics server enabled", zap.String("addr", addr))
	}

	if !a.cfg.Run.DryRun {
		reporter := progress.NewReporter(a.collector.GetProgressTracker(), reportInterval, a.logger)
		reporter.Start()
		defer reporter.Stop()
	}

	fetcher := catalog.NewFetcher(a.source, catalog.Options{
		Attempts: a.cfg.Catalog.Attempts,
		Backoff:  time.Duration(a.cfg.Catalog.RetryBackoffMs) * time.Millisecond,
		Timeout:  time.Duration(a.cfg.Catalog.TimeoutSec) * time.Second,
	}, a.logger)

	var firstErr error
	failed := 0
	for _, collection := range a.cfg.Run.Collections {
		if ctx.Err() != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("sync interrupted: %w", ctx.Err())
			}
			break
		}

		runner := syncer.NewRunner(syncer.Config{
			Collection:      collection,
			Root:            a.cfg.RootDir,
			Rows:            a.cfg.Run.Rows,
			DryRun:          a.cfg.Run.DryRun,
			TransferTimeout: time.Duration(a.cfg.Transfer.TimeoutSec) * time.Second,
		}, a.source, fetcher, a.openStore, a.collector, a.logger)

		if _, err := runner.Run(ctx); err != nil {
			failed++
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	status := a.collector.GetProgressTracker().GetStatus()
	a.logger.Info("Sync finished",
		zap.Int("collections", len(a.cfg.Run.Collections)),
		zap.Int("collections_failed", failed),
		zap.Int64("planned", status.PlannedItems),
		zap.Int64("synced", status.SyncedItems),
		zap.Int64("failed", status.FailedItems),
		zap.String("bytes", progress.FormatBytes(status.SyncedBytes)),
		zap.Duration("duration", time.Since(status.StartTime)),
	)

	return firstErr
}

// openStore opens the configured state backend in a working directory.
func (a *App) openStore(dir string) (state.Store, error) {
	switch a.cfg.State.Backend {
	case config.StateSQLite:
		return state.NewSQLiteStore(dir)
	default:
		return state.NewFileStore(dir), nil
	}
}
