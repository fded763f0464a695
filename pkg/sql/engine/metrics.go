// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package engine

import (
	"github.com/cockroachdb/relcore/pkg/sql/execgen"
	"github.com/cockroachdb/relcore/pkg/sql/opt/xform"
	"github.com/cockroachdb/relcore/pkg/sql/querycache"
	"github.com/cockroachdb/relcore/pkg/sql/rowexec"
	"github.com/cockroachdb/relcore/pkg/util/metric"
)

// Metrics are the metrics of an engine. Every query adds to them, and the
// partitions of a query add to them concurrently.
type Metrics struct {
	Exec      rowexec.Metrics
	Opt       xform.Metrics
	Codegen   execgen.Metrics
	PlanCache querycache.Metrics
}

// MakeMetrics creates the metrics of an engine.
func MakeMetrics() Metrics {
	return Metrics{
		Exec:      rowexec.MakeMetrics(),
		Opt:       xform.MakeMetrics(),
		Codegen:   execgen.MakeMetrics(),
		PlanCache: querycache.MakeMetrics(),
	}
}

// register adds every metric to the registry.
func (m *Metrics) register(r *metric.Registry) error {
	for _, s := range []interface{}{&m.Exec, &m.Opt, &m.Codegen, &m.PlanCache} {
		if err := r.AddMetricStruct(s); err != nil {
			return err
		}
	}
	return nil
}
