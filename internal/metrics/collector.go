// Package metrics exposes sync counters in Prometheus format. The /metrics
// endpoint is opt-in; without a configured address the collector only feeds
// the progress tracker.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"arcsync/internal/progress"
)

// Collector collects and exposes metrics for a sync process.
type Collector struct {
	registry   *prometheus.Registry
	itemsTotal *prometheus.CounterVec
	bytesTotal prometheus.Counter
	runsTotal  *prometheus.CounterVec
	duration   prometheus.Histogram
	tracker    *progress.Tracker
}

// New creates a collector with its own registry, so constructing several
// collectors in one process is safe.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		itemsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arcsync_items_total",
				Help: "Total number of items processed",
			},
			[]string{"status"},
		),
		bytesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "arcsync_bytes_total",
				Help: "Total bytes downloaded",
			},
		),
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arcsync_runs_total",
				Help: "Collection passes by result",
			},
			[]string{"result"},
		),
		duration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "arcsync_item_duration_seconds",
				Help:    "Time taken to transfer an item",
				Buckets: prometheus.DefBuckets,
			},
		),
		tracker: progress.NewTracker(),
	}

	c.registry.MustRegister(c.itemsTotal)
	c.registry.MustRegister(c.bytesTotal)
	c.registry.MustRegister(c.runsTotal)
	c.registry.MustRegister(c.duration)

	return c
}

// AddPlanned records a collection's planned item count.
func (c *Collector) AddPlanned(items int64) {
	c.tracker.AddPlanned(items)
}

// IncSynced records one successful transfer and its size.
func (c *Collector) IncSynced(bytes int64) {
	c.itemsTotal.WithLabelValues("synced").Inc()
	c.bytesTotal.Add(float64(bytes))
	c.tracker.AddSynced(bytes)
}

// IncFailed records one failed transfer.
func (c *Collector) IncFailed() {
	c.itemsTotal.WithLabelValues("failed").Inc()
	c.tracker.AddFailed()
}

// AddUpToDate records catalog items the plan skipped because they are
// already in sync.
func (c *Collector) AddUpToDate(items int64) {
	c.itemsTotal.WithLabelValues("uptodate").Add(float64(items))
}

// IncRun records a finished collection pass with result "ok" or "failed".
func (c *Collector) IncRun(result string) {
	c.runsTotal.WithLabelValues(result).Inc()
}

// ObserveDuration observes one item's transfer duration.
func (c *Collector) ObserveDuration(duration time.Duration) {
	c.duration.Observe(duration.Seconds())
}

// GetProgressTracker returns the progress tracker fed by this collector.
func (c *Collector) GetProgressTracker() *progress.Tracker {
	return c.tracker
}

// StartServer serves /metrics on addr; it blocks like ListenAndServe.
func (c *Collector) StartServer(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{}))
	return http.ListenAndServe(addr, mux)
}
