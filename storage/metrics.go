package storage

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts autosave outcomes. Collectors are registered on the
// registry passed to NewMetrics, never the global default.
type Metrics struct {
	Saves      prometheus.Counter
	Failures   prometheus.Counter
	Superseded prometheus.Counter
	Rejected   prometheus.Counter
	Bytes      prometheus.Histogram
	Queue      prometheus.Gauge
}

// NewMetrics creates autosave metrics under namespace and registers them on reg.
// A nil reg leaves them unregistered.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Saves: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "autosave",
			Name:      "writes_total",
			Help:      "Snapshots written to storage",
		}),
		Failures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "autosave",
			Name:      "failures_total",
			Help:      "Snapshot writes that returned an error",
		}),
		Superseded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "autosave",
			Name:      "superseded_total",
			Help:      "Queued snapshots replaced by a newer one before being written",
		}),
		Rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "autosave",
			Name:      "rejected_total",
			Help:      "Snapshots dropped because the storage breaker was open",
		}),
		Bytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "autosave",
			Name:      "snapshot_bytes",
			Help:      "Size of written snapshots",
			Buckets:   prometheus.ExponentialBuckets(256, 4, 8),
		}),
		Queue: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "autosave",
			Name:      "pending",
			Help:      "Canvases waiting to be written",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Saves, m.Failures, m.Superseded, m.Rejected, m.Bytes, m.Queue)
	}
	return m
}
