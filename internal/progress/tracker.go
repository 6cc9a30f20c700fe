// Package progress tracks live counters for a sync run and reports them
// periodically through the logger.
package progress

import (
	"fmt"
	"sync"
	"time"
)

// Status is a point-in-time snapshot of the run.
type Status struct {
	PlannedItems int64
	SyncedItems  int64
	FailedItems  int64
	SyncedBytes  int64
	StartTime    time.Time
	LastUpdate   time.Time
}

// Processed returns how many planned items have been resolved either way.
func (s Status) Processed() int64 {
	return s.SyncedItems + s.FailedItems
}

// Tracker accumulates counters across all collections of a run.
type Tracker struct {
	mu     sync.RWMutex
	status Status
}

// NewTracker creates a tracker with the clock started.
func NewTracker() *Tracker {
	now := time.Now()
	return &Tracker{
		status: Status{
			StartTime:  now,
			LastUpdate: now,
		},
	}
}

// AddPlanned grows the planned-item total, once per collection plan.
func (t *Tracker) AddPlanned(items int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.status.PlannedItems += items
	t.status.LastUpdate = time.Now()
}

// AddSynced records one successfully transferred item.
func (t *Tracker) AddSynced(bytes int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.status.SyncedItems++
	t.status.SyncedBytes += bytes
	t.status.LastUpdate = time.Now()
}

// AddFailed records one failed item.
func (t *Tracker) AddFailed() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.status.FailedItems++
	t.status.LastUpdate = time.Now()
}

// GetStatus returns the current status (thread-safe).
func (t *Tracker) GetStatus() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.status
}

// GetProgressPercent returns processed items relative to planned items.
func (t *Tracker) GetProgressPercent() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.status.PlannedItems == 0 {
		return 0
	}
	return float64(t.status.SyncedItems+t.status.FailedItems) / float64(t.status.PlannedItems) * 100
}

// FormatBytes formats bytes in human readable format
func FormatBytes(bytes int64) string {
	if bytes < 1024 {
		return fmt.Sprintf("%d B", bytes)
	} else if bytes < 1024*1024 {
		return fmt.Sprintf("%.1f KB", float64(bytes)/1024)
	} else if bytes < 1024*1024*1024 {
		return fmt.Sprintf("%.1f MB", float64(bytes)/(1024*1024))
	} else {
		return fmt.Sprintf("%.1f GB", float64(bytes)/(1024*1024*1024))
	}
}
