// Package prometheus exports membank operation metrics through
// github.com/prometheus/client_golang.
//
//	collector := prometheus.New(prom.DefaultRegisterer)
//	bank, _ := membank.New(n, 2048, 10, 0.1, membank.WithMetricsCollector(collector))
//	http.Handle("/metrics", promhttp.Handler())
package prometheus

import (
	"time"

	"github.com/hupe1980/membank"
	"github.com/prometheus/client_golang/prometheus"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "membank"

var _ membank.MetricsCollector = (*Collector)(nil)

// Collector implements membank.MetricsCollector.
type Collector struct {
	opLatency  *prometheus.HistogramVec
	ops        *prometheus.CounterVec
	samples    *prometheus.CounterVec
	fillBatch  prometheus.Counter
	lastMineK  prometheus.Gauge
	lastMineN  prometheus.Gauge
	predictQry prometheus.Counter
}

// Option configures a Collector.
type Option func(*options)

type options struct {
	namespace string
	buckets   []float64
}

// WithNamespace overrides DefaultNamespace.
func WithNamespace(ns string) Option {
	return func(o *options) {
		o.namespace = ns
	}
}

// WithBuckets sets the latency histogram buckets in seconds.
func WithBuckets(b []float64) Option {
	return func(o *options) {
		o.buckets = b
	}
}

// New creates a Collector and registers it with reg. A nil reg skips
// registration.
func New(reg prometheus.Registerer, opts ...Option) *Collector {
	o := options{
		namespace: DefaultNamespace,
		buckets:   prometheus.DefBuckets,
	}
	for _, fn := range opts {
		fn(&o)
	}

	c := &Collector{
		opLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: o.namespace,
			Name:      "operation_latency_seconds",
			Help:      "Latency of memory bank operations",
			Buckets:   o.buckets,
		}, []string{"op", "status"}),
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: o.namespace,
			Name:      "operations_total",
			Help:      "Memory bank operations by outcome",
		}, []string{"op", "status"}),
		samples: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: o.namespace,
			Name:      "samples_total",
			Help:      "Samples processed",
		}, []string{"op"}),
		fillBatch: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: o.namespace,
			Name:      "fill_batches_total",
			Help:      "Batches consumed by population passes",
		}),
		lastMineK: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: o.namespace,
			Name:      "mine_last_k",
			Help:      "Neighbor count of the most recent mining run",
		}),
		lastMineN: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: o.namespace,
			Name:      "mine_last_rows",
			Help:      "Bank size of the most recent mining run",
		}),
		predictQry: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: o.namespace,
			Name:      "predict_queries_total",
			Help:      "Queries answered by kNN prediction",
		}),
	}

	if reg != nil {
		reg.MustRegister(c.opLatency, c.ops, c.samples, c.fillBatch, c.lastMineK, c.lastMineN, c.predictQry)
	}
	return c
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func (c *Collector) observe(op string, d time.Duration, err error) {
	s := status(err)
	c.opLatency.WithLabelValues(op, s).Observe(d.Seconds())
	c.ops.WithLabelValues(op, s).Inc()
}

// RecordUpdate implements membank.MetricsCollector.
func (c *Collector) RecordUpdate(count int, d time.Duration, err error) {
	c.observe("update", d, err)
	if err == nil {
		c.samples.WithLabelValues("update").Add(float64(count))
	}
}

// RecordFill implements membank.MetricsCollector.
func (c *Collector) RecordFill(batches, samples int, d time.Duration, err error) {
	c.observe("fill", d, err)
	c.fillBatch.Add(float64(batches))
	c.samples.WithLabelValues("fill").Add(float64(samples))
}

// RecordMine implements membank.MetricsCollector.
func (c *Collector) RecordMine(n, k int, d time.Duration, err error) {
	c.observe("mine", d, err)
	if err == nil {
		c.lastMineN.Set(float64(n))
		c.lastMineK.Set(float64(k))
		c.samples.WithLabelValues("mine").Add(float64(n))
	}
}

// RecordPredict implements membank.MetricsCollector.
func (c *Collector) RecordPredict(queries, _ int, d time.Duration, err error) {
	c.observe("predict", d, err)
	if err == nil {
		c.predictQry.Add(float64(queries))
	}
}
