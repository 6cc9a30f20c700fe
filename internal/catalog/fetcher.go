// Package catalog turns a remote source's listing into the ordered item
// catalog a sync run diffs against, retrying transient failures.
package catalog

import (
	"context"
	"time"

	"go.uber.org/zap"

	"arcsync/internal/errdefs"
	"arcsync/internal/remote"
)

// Options controls the retry policy.
type Options struct {
	// Attempts bounds how often a transient failure is retried.
	Attempts int
	// Backoff is the fixed sleep between attempts.
	Backoff time.Duration
	// Timeout bounds each individual attempt; zero means no per-attempt
	// bound beyond the caller's context.
	Timeout time.Duration
}

// Fetcher fetches a collection's catalog from a remote source.
type Fetcher struct {
	source remote.Source
	opts   Options
	logger *zap.Logger
}

// NewFetcher creates a fetcher. Attempts below 1 are raised to 1.
func NewFetcher(source remote.Source, opts Options, logger *zap.Logger) *Fetcher {
	if opts.Attempts < 1 {
		opts.Attempts = 1
	}
	return &Fetcher{source: source, opts: opts, logger: logger}
}

// Fetch queries the collection's catalog, at most rows items. Transient
// failures are retried up to the attempt bound with a fixed backoff;
// not-found, rate-limited and malformed responses fail immediately. The
// returned error carries the kind of the last failure.
func (f *Fetcher) Fetch(ctx context.Context, collection string, rows int) ([]remote.Item, error) {
	var lastErr error
	for attempt := 1; attempt <= f.opts.Attempts; attempt++ {
		items, err := f.query(ctx, collection, rows)
		if err == nil {
			f.logger.Debug("Catalog fetched",
				zap.String("collection", collection),
				zap.Int("items", len(items)),
				zap.Int("attempt", attempt),
			)
			return items, nil
		}

		lastErr = err
		f.logger.Warn("Catalog fetch attempt failed",
			zap.String("collection", collection),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)

		if !errdefs.IsTransient(err) {
			break
		}
		if ctx.Err() != nil {
			break
		}

		if attempt < f.opts.Attempts {
			select {
			case <-time.After(f.opts.Backoff):
			case <-ctx.Done():
				return nil, lastErr
			}
		}
	}
	return nil, lastErr
}

func (f *Fetcher) query(ctx context.Context, collection string, rows int) ([]remote.Item, error) {
	if f.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.opts.Timeout)
		defer cancel()
	}
	return f.source.Query(ctx, collection, rows)
}
