// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package metric

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type testMetrics struct {
	Rows  *Counter
	Peak  *Gauge
	Sizes *Histogram
	Rules *HistogramVec
	other int
}

func TestRegistryAddMetricStruct(t *testing.T) {
	m := testMetrics{
		Rows:  NewCounter(Metadata{Name: "rows_total", Help: "rows"}),
		Peak:  NewGauge(Metadata{Name: "peak_bytes", Help: "peak"}),
		Sizes: NewHistogram(Metadata{Name: "sizes", Help: "sizes"}, 16, 2, 10),
		Rules: NewHistogramVec(Metadata{Name: "rule_seconds", Help: "rules"}, "rule", 1e-6, 4, 10),
	}
	r := NewRegistry()
	require.NoError(t, r.AddMetricStruct(&m))

	var names []string
	r.Each(func(name string, _ Iterable) { names = append(names, name) })
	require.Equal(t, []string{"rows_total", "peak_bytes", "sizes", "rule_seconds"}, names)

	m.Rules.RecordValue("MergeSelects", 0.001)
	families, err := r.Gather()
	require.NoError(t, err)
	require.Len(t, families, 4)
}

func TestConcurrentUpdates(t *testing.T) {
	c := NewCounter(Metadata{Name: "c"})
	g := NewGauge(Metadata{Name: "g"})
	h := NewHistogram(Metadata{Name: "h"}, 1, 2, 4)
	var wg sync.WaitGroup
	for i := 1; i <= 8; i++ {
		wg.Add(1)
		go func(v int64) {
			defer wg.Done()
			c.Inc(v)
			g.UpdateIfHigher(v * 10)
			h.RecordValue(v)
		}(int64(i))
	}
	wg.Wait()
	require.Equal(t, int64(36), c.Count())
	require.Equal(t, int64(80), g.Value())
	require.Equal(t, int64(8), h.TotalCount())
	require.Equal(t, 36.0, h.TotalSum())
	require.Equal(t, int64(8), h.Max())
}
