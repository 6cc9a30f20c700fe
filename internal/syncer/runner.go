// Package syncer drives one collection through a full sync pass: rotate
// state, fetch the catalog, plan the diff, transfer planned items in order,
// and record each success before moving on.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"arcsync/internal/catalog"
	"arcsync/internal/errdefs"
	"arcsync/internal/metrics"
	"arcsync/internal/planner"
	"arcsync/internal/remote"
	"arcsync/internal/state"
	"arcsync/internal/transfer"
)

// phase names the stage a pass is in; logged so interrupted runs show where
// they stopped.
type phase string

const (
	phaseInitializing phase = "initializing"
	phaseCatalogFetch phase = "catalog_fetch"
	phasePlanning     phase = "planning"
	phaseTransferring phase = "transferring"
	phaseSummarizing  phase = "summarizing"
	phaseDone         phase = "done"
)

// Summary reports one collection pass.
type Summary struct {
	Collection string
	Total      int // catalog size
	Planned    int
	Synced     int
	Failed     int
	Duration   time.Duration
}

// Config parameterizes a collection pass.
type Config struct {
	Collection      string
	Root            string
	Rows            int
	DryRun          bool
	TransferTimeout time.Duration
}

// Runner runs a single collection pass. A failed item never aborts the
// pass; a state-store failure always does.
type Runner struct {
	cfg       Config
	source    remote.Source
	fetcher   *catalog.Fetcher
	openStore func(dir string) (state.Store, error)
	collector *metrics.Collector
	logger    *zap.Logger
}

// NewRunner creates a runner. openStore opens the state backend inside the
// collection's working directory.
func NewRunner(cfg Config, source remote.Source, fetcher *catalog.Fetcher,
	openStore func(dir string) (state.Store, error),
	collector *metrics.Collector, logger *zap.Logger) *Runner {
	return &Runner{
		cfg:       cfg,
		source:    source,
		fetcher:   fetcher,
		openStore: openStore,
		collector: collector,
		logger:    logger,
	}
}

// Run executes the pass. The summary is valid even when err is non-nil.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	start := time.Now()
	summary := Summary{Collection: r.cfg.Collection}

	r.enter(phaseInitializing)
	workdir := filepath.Join(r.cfg.Root, r.cfg.Collection)
	if err := os.MkdirAll(workdir, 0o755); err != nil {
		return r.finish(summary, start,
			errdefs.New(errdefs.KindFilesystem, "init", err).WithCollection(r.cfg.Collection))
	}

	store, err := r.openStore(workdir)
	if err != nil {
		return r.finish(summary, start, r.tag(err))
	}
	defer store.Close()

	if err := store.Rotate(); err != nil {
		return r.finish(summary, start, r.tag(err))
	}

	r.enter(phaseCatalogFetch)
	items, err := r.fetcher.Fetch(ctx, r.cfg.Collection, r.cfg.Rows)
	if err != nil {
		return r.finish(summary, start, r.tag(err))
	}
	summary.Total = len(items)

	r.enter(phasePlanning)
	recorded, err := store.Load()
	if err != nil {
		return r.finish(summary, start, r.tag(err))
	}
	plan := planner.Plan(items, recorded)
	summary.Planned = len(plan)
	r.collector.AddPlanned(int64(len(plan)))
	r.collector.AddUpToDate(int64(summary.Total - len(plan)))
	r.logger.Info("Plan computed",
		zap.String("collection", r.cfg.Collection),
		zap.Int("catalog", summary.Total),
		zap.Int("planned", summary.Planned),
	)

	if len(plan) == 0 {
		r.enter(phaseSummarizing)
		return r.finish(summary, start, nil)
	}

	if r.cfg.DryRun {
		for _, item := range plan {
			r.logger.Info("Would sync item",
				zap.String("collection", r.cfg.Collection),
				zap.String("identifier", item.Identifier),
				zap.String("marker", item.Marker),
			)
		}
		r.enter(phaseSummarizing)
		return r.finish(summary, start, nil)
	}

	r.enter(phaseTransferring)
	executor := transfer.NewExecutor(r.source, r.cfg.Collection, workdir, r.cfg.TransferTimeout)
	for _, item := range plan {
		if ctx.Err() != nil {
			return r.finish(summary, start, fmt.Errorf("sync interrupted: %w", ctx.Err()))
		}

		itemStart := time.Now()
		written, err := executor.Transfer(ctx, item)
		if err != nil {
			summary.Failed++
			r.collector.IncFailed()
			r.logger.Error("Item transfer failed",
				zap.String("collection", r.cfg.Collection),
				zap.String("identifier", item.Identifier),
				zap.Error(err),
			)
			continue
		}

		// Record before moving on, so an interrupted run resumes past
		// every item that actually landed.
		if err := store.Record(item.Identifier, item.Marker); err != nil {
			return r.finish(summary, start, r.tag(err))
		}

		summary.Synced++
		r.collector.IncSynced(written)
		r.collector.ObserveDuration(time.Since(itemStart))
		r.logger.Info("Item synced",
			zap.String("collection", r.cfg.Collection),
			zap.String("identifier", item.Identifier),
			zap.Int64("bytes", written),
			zap.Duration("duration", time.Since(itemStart)),
		)
	}

	r.enter(phaseSummarizing)
	if summary.Failed > 0 {
		return r.finish(summary, start, errdefs.Newf(errdefs.KindTransfer, "sync",
			"%d of %d transfers failed", summary.Failed, summary.Planned).WithCollection(r.cfg.Collection))
	}
	return r.finish(summary, start, nil)
}

func (r *Runner) enter(p phase) {
	r.logger.Debug("Phase entered",
		zap.String("collection", r.cfg.Collection),
		zap.String("phase", string(p)),
	)
}

// finish closes the pass either way, always reporting the counts.
func (r *Runner) finish(summary Summary, start time.Time, err error) (Summary, error) {
	summary.Duration = time.Since(start)
	r.enter(phaseDone)

	fields := []zap.Field{
		zap.String("collection", summary.Collection),
		zap.Int("catalog", summary.Total),
		zap.Int("planned", summary.Planned),
		zap.Int("synced", summary.Synced),
		zap.Int("failed", summary.Failed),
		zap.Duration("duration", summary.Duration),
		zap.Bool("dry_run", r.cfg.DryRun),
	}

	if err != nil {
		r.collector.IncRun("failed")
		r.logger.Error("Collection sync failed", append(fields, zap.Error(err))...)
		return summary, err
	}

	r.collector.IncRun("ok")
	r.logger.Info("Collection sync completed", fields...)
	return summary, nil
}

// tag adds the collection to taxonomy errors that lack one.
func (r *Runner) tag(err error) error {
	var e *errdefs.Error
	if errors.As(err, &e) && e.Collection == "" {
		e.Collection = r.cfg.Collection
	}
	return err
}
