// Package metrics exposes Prometheus collectors for the area/weight cache.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Artifact kinds used as label values.
const (
	KindArea    = "area"
	KindWeights = "weights"
)

// Collector groups the regridding metrics. A nil *Collector is valid and
// records nothing.
type Collector struct {
	hits       *prometheus.CounterVec
	misses     *prometheus.CounterVec
	failures   *prometheus.CounterVec
	generation *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		hits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "climeval",
			Subsystem: "regrid",
			Name:      "cache_hits_total",
			Help:      "Area and weight files found valid on disk.",
		}, []string{"kind"}),
		misses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "climeval",
			Subsystem: "regrid",
			Name:      "cache_misses_total",
			Help:      "Area and weight files missing, empty or forced to rebuild.",
		}, []string{"kind"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "climeval",
			Subsystem: "regrid",
			Name:      "generation_failures_total",
			Help:      "Failed area and weight generations.",
		}, []string{"kind"}),
		generation: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "climeval",
			Subsystem: "regrid",
			Name:      "generation_seconds",
			Help:      "Time spent generating area and weight files.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		}, []string{"kind"}),
	}
	if reg != nil {
		reg.MustRegister(c.hits, c.misses, c.failures, c.generation)
	}
	return c
}

// CacheHit counts a valid cached file.
func (c *Collector) CacheHit(kind string) {
	if c == nil {
		return
	}
	c.hits.WithLabelValues(kind).Inc()
}

// CacheMiss counts a regeneration.
func (c *Collector) CacheMiss(kind string) {
	if c == nil {
		return
	}
	c.misses.WithLabelValues(kind).Inc()
}

// Generated records the outcome of one generation started at start.
func (c *Collector) Generated(kind string, start time.Time, err error) {
	if c == nil {
		return
	}
	if err != nil {
		c.failures.WithLabelValues(kind).Inc()
		return
	}
	c.generation.WithLabelValues(kind).Observe(time.Since(start).Seconds())
}

// Hits returns the hit counter, for tests.
func (c *Collector) Hits() *prometheus.CounterVec { return c.hits }

// Misses returns the miss counter, for tests.
func (c *Collector) Misses() *prometheus.CounterVec { return c.misses }
