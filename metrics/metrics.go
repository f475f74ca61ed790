// Package metrics exposes cachesim's read-only instrumentation (spec §6)
// as real Prometheus metrics. Grounded on GabrielNunesIT-go-libs/metrics'
// Registry (namespace/subsystem-scoped counter/gauge/histogram factories),
// reimplemented directly against prometheus/client_golang so this package
// has no dependency on that library's unrelated transitive graph.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry wraps a prometheus.Registry with a namespace/subsystem,
// mirroring the teacher pack's functional-options Registry.
type Registry struct {
	prom      *prometheus.Registry
	namespace string
	subsystem string
}

// Option configures a Registry.
type Option func(*Registry)

// WithNamespace sets the metric namespace prefix (e.g. "cachesim").
func WithNamespace(ns string) Option {
	return func(r *Registry) { r.namespace = ns }
}

// WithSubsystem sets the metric subsystem prefix (e.g. a cache's name).
func WithSubsystem(sub string) Option {
	return func(r *Registry) { r.subsystem = sub }
}

// New creates a Registry backed by a private prometheus.Registry.
func New(opts ...Option) *Registry {
	r := &Registry{prom: prometheus.NewRegistry()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// PrometheusRegistry exposes the underlying registry for exposition
// (e.g. promhttp.HandlerFor), which stays the driver's responsibility.
func (r *Registry) PrometheusRegistry() *prometheus.Registry { return r.prom }

//nolint:ireturn // prometheus.Counter has no exported concrete type
func (r *Registry) newCounter(name, help string) prometheus.Counter {
	c := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: r.namespace,
		Subsystem: r.subsystem,
		Name:      name,
		Help:      help,
	})
	r.prom.MustRegister(c)
	return c
}

//nolint:ireturn
func (r *Registry) newGauge(name, help string) prometheus.Gauge {
	g := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: r.namespace,
		Subsystem: r.subsystem,
		Name:      name,
		Help:      help,
	})
	r.prom.MustRegister(g)
	return g
}

//nolint:ireturn
func (r *Registry) newHistogram(name, help string, buckets []float64) prometheus.Histogram {
	h := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: r.namespace,
		Subsystem: r.subsystem,
		Name:      name,
		Help:      help,
		Buckets:   buckets,
	})
	r.prom.MustRegister(h)
	return h
}

//nolint:ireturn
func (r *Registry) newCounterVec(name, help string, labels []string) *prometheus.CounterVec {
	v := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: r.namespace,
		Subsystem: r.subsystem,
		Name:      name,
		Help:      help,
	}, labels)
	r.prom.MustRegister(v)
	return v
}

// ageBuckets are eviction-age histogram buckets, in logical-time units
// (request counts), skewed toward the near term since most workloads
// evict recently-admitted objects.
var ageBuckets = []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000, 5000}

// CacheMetrics is the per-cache-instance metric set backing spec §6's
// read-only instrumentation surface.
type CacheMetrics struct {
	Hits             prometheus.Counter
	Misses           prometheus.Counter
	Evictions        prometheus.Counter
	OccupiedBytes    prometheus.Gauge
	NObj             prometheus.Gauge
	EvictionAge      prometheus.Histogram
	PolicyOp         *prometheus.CounterVec // labeled by "op", policy-specific counters
	TrainingDuration prometheus.Histogram   // registered for every cache; no policy records into it
	TrainingLoss     prometheus.Gauge       // registered for every cache; no policy sets it
}

// NewCacheMetrics registers and returns a CacheMetrics set under reg.
func NewCacheMetrics(reg *Registry) *CacheMetrics {
	return &CacheMetrics{
		Hits:             reg.newCounter("hits_total", "Total number of cache hits."),
		Misses:           reg.newCounter("misses_total", "Total number of cache misses."),
		Evictions:        reg.newCounter("evictions_total", "Total number of cache evictions."),
		OccupiedBytes:    reg.newGauge("occupied_bytes", "Current occupied bytes."),
		NObj:             reg.newGauge("objects", "Current resident object count."),
		EvictionAge:      reg.newHistogram("eviction_age", "Age (in requests) of evicted objects.", ageBuckets),
		PolicyOp:         reg.newCounterVec("policy_ops_total", "Policy-specific operation counters.", []string{"op"}),
		TrainingDuration: reg.newHistogram("training_duration_seconds", "3L-Cache training batch duration.", prometheus.DefBuckets),
		TrainingLoss:     reg.newGauge("training_loss", "3L-Cache's most recent training loss."),
	}
}

// RecordHit increments the hit counter.
func (m *CacheMetrics) RecordHit() { m.Hits.Inc() }

// RecordMiss increments the miss counter.
func (m *CacheMetrics) RecordMiss() { m.Misses.Inc() }

// RecordEviction increments the eviction counter.
func (m *CacheMetrics) RecordEviction() {
	m.Evictions.Inc()
}

// ObserveEvictionAge records the age (in requests since admission) of an
// object that just left the cache.
func (m *CacheMetrics) ObserveEvictionAge(age float64) {
	m.EvictionAge.Observe(age)
}

// SetOccupancy updates the occupied-bytes and object-count gauges.
func (m *CacheMetrics) SetOccupancy(bytes uint64, nObj int) {
	m.OccupiedBytes.Set(float64(bytes))
	m.NObj.Set(float64(nObj))
}

// RecordPolicyOp increments a named policy-specific counter, e.g.
// "admit_to_small", "move_to_main", "quick_demotion".
func (m *CacheMetrics) RecordPolicyOp(op string) {
	m.PolicyOp.WithLabelValues(op).Inc()
}
