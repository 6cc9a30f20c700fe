package progress

import (
	"time"

	"go.uber.org/zap"
)

// Reporter logs a progress snapshot at a fixed interval while transfers are
// running. It replaces a terminal progress bar so output stays line-oriented
// and greppable when redirected.
type Reporter struct {
	tracker  *Tracker
	logger   *zap.Logger
	interval time.Duration
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewReporter creates a reporter; it does nothing until Start.
func NewReporter(tracker *Tracker, interval time.Duration, logger *zap.Logger) *Reporter {
	return &Reporter{
		tracker:  tracker,
		logger:   logger,
		interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start starts the reporting loop.
func (r *Reporter) Start() {
	go r.reportLoop()
}

// Stop stops the reporting loop and waits for it to exit.
func (r *Reporter) Stop() {
	close(r.stopCh)
	<-r.doneCh
}

func (r *Reporter) reportLoop() {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.report()
		case <-r.stopCh:
			return
		}
	}
}

func (r *Reporter) report() {
	status := r.tracker.GetStatus()
	if status.Processed() == 0 && status.PlannedItems == 0 {
		return
	}

	r.logger.Info("Sync progress",
		zap.Int64("planned", status.PlannedItems),
		zap.Int64("synced", status.SyncedItems),
		zap.Int64("failed", status.FailedItems),
		zap.String("bytes", FormatBytes(status.SyncedBytes)),
		zap.Float64("percent", r.tracker.GetProgressPercent()),
		zap.Duration("elapsed", time.Since(status.StartTime)),
	)
}
