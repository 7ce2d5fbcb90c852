package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder implements domain repository.Metrics using Prometheus.
type Recorder struct {
	cacheLookups *prometheus.CounterVec
	fetchErrors  *prometheus.CounterVec
	fetchLatency *prometheus.HistogramVec
	lazyLoads    *prometheus.CounterVec
	prefetches   *prometheus.CounterVec
}

// New creates a Prometheus recorder and registers it with reg.
// A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	r := &Recorder{
		cacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalboard_snapshot_cache_lookups_total",
				Help: "Snapshot cache lookups by result",
			},
			[]string{"source", "key_class", "result"},
		),
		fetchErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalboard_snapshot_fetch_errors_total",
				Help: "Failed upstream snapshot fetches",
			},
			[]string{"source", "key_class"},
		),
		fetchLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "signalboard_snapshot_fetch_duration_seconds",
				Help:    "Upstream snapshot fetch duration in seconds, retries included",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"source", "key_class"},
		),
		lazyLoads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalboard_lazy_unit_loads_total",
				Help: "Lazy view unit load outcomes",
			},
			[]string{"unit", "outcome"},
		),
		prefetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalboard_prefetch_tasks_total",
				Help: "Startup prefetch task outcomes",
			},
			[]string{"task", "result"},
		),
	}
	reg.MustRegister(r.cacheLookups, r.fetchErrors, r.fetchLatency, r.lazyLoads, r.prefetches)
	return r
}

// RecordCacheHit records a fresh cache read.
func (r *Recorder) RecordCacheHit(source, keyClass string) {
	r.cacheLookups.WithLabelValues(source, keyClass, "hit").Inc()
}

// RecordCacheMiss records a read that required an upstream fetch.
func (r *Recorder) RecordCacheMiss(source, keyClass string) {
	r.cacheLookups.WithLabelValues(source, keyClass, "miss").Inc()
}

// RecordFetch records fetch latency and failures.
func (r *Recorder) RecordFetch(source, keyClass string, d time.Duration, err error) {
	r.fetchLatency.WithLabelValues(source, keyClass).Observe(d.Seconds())
	if err != nil {
		r.fetchErrors.WithLabelValues(source, keyClass).Inc()
	}
}

// RecordLazyLoad records a lazy unit outcome (loaded, reload, inert).
func (r *Recorder) RecordLazyLoad(unit, outcome string) {
	r.lazyLoads.WithLabelValues(unit, outcome).Inc()
}

// RecordPrefetch records a startup prefetch task outcome.
func (r *Recorder) RecordPrefetch(task string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.prefetches.WithLabelValues(task, result).Inc()
}
