// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package metric provides the counters, gauges and histograms exported by
// relcore. Every metric is backed by a prometheus collector so that a
// Registry can be scraped directly, and keeps its own atomic value so that
// callers and tests can read it back without going through the exporter.
package metric

import (
	"math"
	"reflect"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// Metadata holds the name and help text of a metric.
type Metadata struct {
	Name string
	Help string
}

// Iterable is implemented by every metric type in this package.
type Iterable interface {
	prometheus.Collector
	GetName() string
}

// Counter is a monotonically increasing count.
type Counter struct {
	Metadata
	c     prometheus.Counter
	count atomic.Int64
}

// NewCounter creates a counter.
func NewCounter(md Metadata) *Counter {
	return &Counter{
		Metadata: md,
		c:        prometheus.NewCounter(prometheus.CounterOpts{Name: md.Name, Help: md.Help}),
	}
}

// GetName returns the metric's name.
func (c *Counter) GetName() string { return c.Name }

// Inc increments the counter by v.
func (c *Counter) Inc(v int64) {
	c.count.Add(v)
	c.c.Add(float64(v))
}

// Count returns the current value of the counter.
func (c *Counter) Count() int64 { return c.count.Load() }

// Describe is part of the prometheus.Collector interface.
func (c *Counter) Describe(ch chan<- *prometheus.Desc) { c.c.Describe(ch) }

// Collect is part of the prometheus.Collector interface.
func (c *Counter) Collect(ch chan<- prometheus.Metric) { c.c.Collect(ch) }

// Gauge is an instantaneous value.
type Gauge struct {
	Metadata
	value atomic.Int64
	g     prometheus.GaugeFunc
}

// NewGauge creates a gauge.
func NewGauge(md Metadata) *Gauge {
	g := &Gauge{Metadata: md}
	g.g = prometheus.NewGaugeFunc(prometheus.GaugeOpts{Name: md.Name, Help: md.Help},
		func() float64 { return float64(g.value.Load()) })
	return g
}

// GetName returns the metric's name.
func (g *Gauge) GetName() string { return g.Name }

// Update sets the gauge's value.
func (g *Gauge) Update(v int64) { g.value.Store(v) }

// UpdateIfHigher raises the gauge to v if v exceeds the current value. Gauges
// updated this way from several partitions aggregate by maximum.
func (g *Gauge) UpdateIfHigher(v int64) {
	for {
		cur := g.value.Load()
		if v <= cur || g.value.CompareAndSwap(cur, v) {
			return
		}
	}
}

// Value returns the gauge's current value.
func (g *Gauge) Value() int64 { return g.value.Load() }

// Describe is part of the prometheus.Collector interface.
func (g *Gauge) Describe(ch chan<- *prometheus.Desc) { g.g.Describe(ch) }

// Collect is part of the prometheus.Collector interface.
func (g *Gauge) Collect(ch chan<- prometheus.Metric) { g.g.Collect(ch) }

// Histogram records a distribution of values.
type Histogram struct {
	Metadata
	h     prometheus.Histogram
	count atomic.Int64
	sum   atomic.Uint64
	max   atomic.Int64
}

// NewHistogram creates a histogram with exponential buckets starting at
// start and growing by factor.
func NewHistogram(md Metadata, start, factor float64, count int) *Histogram {
	return &Histogram{
		Metadata: md,
		h: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    md.Name,
			Help:    md.Help,
			Buckets: prometheus.ExponentialBuckets(start, factor, count),
		}),
	}
}

// GetName returns the metric's name.
func (h *Histogram) GetName() string { return h.Name }

// RecordValue adds v to the histogram.
func (h *Histogram) RecordValue(v int64) {
	h.h.Observe(float64(v))
	h.count.Add(1)
	for {
		old := h.sum.Load()
		if h.sum.CompareAndSwap(old, math.Float64bits(math.Float64frombits(old)+float64(v))) {
			break
		}
	}
	for {
		cur := h.max.Load()
		if v <= cur || h.max.CompareAndSwap(cur, v) {
			break
		}
	}
}

// TotalCount returns the number of recorded values.
func (h *Histogram) TotalCount() int64 { return h.count.Load() }

// TotalSum returns the sum of recorded values.
func (h *Histogram) TotalSum() float64 { return math.Float64frombits(h.sum.Load()) }

// Max returns the largest recorded value.
func (h *Histogram) Max() int64 { return h.max.Load() }

// Describe is part of the prometheus.Collector interface.
func (h *Histogram) Describe(ch chan<- *prometheus.Desc) { h.h.Describe(ch) }

// Collect is part of the prometheus.Collector interface.
func (h *Histogram) Collect(ch chan<- prometheus.Metric) { h.h.Collect(ch) }

// HistogramVec is a histogram partitioned by a single label.
type HistogramVec struct {
	Metadata
	vec *prometheus.HistogramVec
}

// NewHistogramVec creates a labeled histogram.
func NewHistogramVec(md Metadata, label string, start, factor float64, count int) *HistogramVec {
	return &HistogramVec{
		Metadata: md,
		vec: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    md.Name,
			Help:    md.Help,
			Buckets: prometheus.ExponentialBuckets(start, factor, count),
		}, []string{label}),
	}
}

// GetName returns the metric's name.
func (h *HistogramVec) GetName() string { return h.Name }

// RecordValue adds v to the histogram for the given label value.
func (h *HistogramVec) RecordValue(label string, v float64) {
	h.vec.WithLabelValues(label).Observe(v)
}

// Describe is part of the prometheus.Collector interface.
func (h *HistogramVec) Describe(ch chan<- *prometheus.Desc) { h.vec.Describe(ch) }

// Collect is part of the prometheus.Collector interface.
func (h *HistogramVec) Collect(ch chan<- prometheus.Metric) { h.vec.Collect(ch) }

// Registry groups metrics for export.
type Registry struct {
	*prometheus.Registry
	metrics []Iterable
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{Registry: prometheus.NewRegistry()}
}

// AddMetric registers a single metric.
func (r *Registry) AddMetric(m Iterable) error {
	if err := r.Register(m); err != nil {
		return errors.Wrapf(err, "registering metric %s", m.GetName())
	}
	r.metrics = append(r.metrics, m)
	return nil
}

// AddMetricStruct registers every exported field of the struct pointed to by
// metricStruct that implements Iterable.
func (r *Registry) AddMetricStruct(metricStruct interface{}) error {
	v := reflect.ValueOf(metricStruct)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return errors.AssertionFailedf("expected struct, got %T", metricStruct)
	}
	for i := 0; i < v.NumField(); i++ {
		if !v.Type().Field(i).IsExported() {
			continue
		}
		m, ok := v.Field(i).Interface().(Iterable)
		if !ok || v.Field(i).IsNil() {
			continue
		}
		if err := r.AddMetric(m); err != nil {
			return err
		}
	}
	return nil
}

// Each calls f for every registered metric, in registration order.
func (r *Registry) Each(f func(name string, m Iterable)) {
	for _, m := range r.metrics {
		f(m.GetName(), m)
	}
}
