// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package rowexec contains the pull-based row iterators that execute the
// operators of a physical plan within one partition.
package rowexec

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/cockroachdb/relcore/pkg/sql/execgen"
	"github.com/cockroachdb/relcore/pkg/sql/opt"
	"github.com/cockroachdb/relcore/pkg/sql/opt/memo"
	"github.com/cockroachdb/relcore/pkg/sql/physicalplan"
	"github.com/cockroachdb/relcore/pkg/sql/sem/eval"
	"github.com/cockroachdb/relcore/pkg/sql/sem/tree"
	"github.com/cockroachdb/relcore/pkg/util/cancelchecker"
	"github.com/cockroachdb/relcore/pkg/util/metric"
	"github.com/cockroachdb/relcore/pkg/util/mon"
	"github.com/marusama/semaphore"
)

// RowSource is a pull-based iterator over the rows of one partition.
type RowSource interface {
	// Next returns the next row, or nil once the source is exhausted. The
	// returned row is only valid until the next call, unless the source
	// documents otherwise.
	Next(ctx context.Context) (tree.Datums, error)
	// Close releases the resources of the source and of its inputs. It
	// may be called before the source is exhausted.
	Close(ctx context.Context)
}

// Metrics are the execution metrics shared by the partitions of every
// query of an engine.
type Metrics struct {
	RowsOutput *metric.Counter
	PeakMemory *metric.Gauge
	SpillBytes *metric.Counter
	SpillCount *metric.Counter
}

// MakeMetrics creates the execution metrics.
func MakeMetrics() Metrics {
	return Metrics{
		RowsOutput: metric.NewCounter(metric.Metadata{
			Name: "sql_exec_rows_output_total",
			Help: "Number of rows produced by query roots",
		}),
		PeakMemory: metric.NewGauge(metric.Metadata{
			Name: "sql_exec_peak_memory_bytes",
			Help: "Largest amount of memory used by a single operator",
		}),
		SpillBytes: metric.NewCounter(metric.Metadata{
			Name: "sql_exec_spill_bytes_total",
			Help: "Number of bytes written to temporary storage by spilling operators",
		}),
		SpillCount: metric.NewCounter(metric.Metadata{
			Name: "sql_exec_spills_total",
			Help: "Number of sorted runs spilled to temporary storage",
		}),
	}
}

// FlowCtx holds the state shared by the operators of one query. It is
// read-only once execution starts; every partition may use it
// concurrently.
type FlowCtx struct {
	Metadata *opt.Metadata
	// Subqueries holds the values of the subqueries of the plan, which are
	// computed before the operators that refer to them are set up.
	Subqueries physicalplan.SubqueryValues
	EvalCtx    *eval.Context

	// Compiler compiles the programs of the nodes that the planner fused.
	// If nil, every program is interpreted.
	Compiler *execgen.Compiler

	// Mon is the parent of the monitors of memory-intensive operators.
	Mon *mon.BytesMonitor
	// WorkMem is the amount of memory that a hash table or sort buffer may
	// use before spilling.
	WorkMem  int64
	PageSize int

	// TempFS and TempDir hold the files of spilled sorted runs. SpillSem
	// bounds the number of runs written concurrently; it may be nil.
	TempFS   vfs.FS
	TempDir  string
	SpillSem semaphore.Semaphore

	CancelCheckInterval int

	Metrics *Metrics
}

func (f *FlowCtx) evalCtx() *eval.Context {
	if f.EvalCtx == nil {
		return &eval.Context{}
	}
	return f.EvalCtx
}

// unregistered collects the metrics of flows that do not report them.
var unregistered = MakeMetrics()

func (f *FlowCtx) metrics() *Metrics {
	if f.Metrics == nil {
		return &unregistered
	}
	return f.Metrics
}

// bind substitutes the subqueries of e and binds it to the given layout.
func (f *FlowCtx) bind(e memo.ScalarExpr, layout opt.ColList) (memo.ScalarExpr, error) {
	return f.Subqueries.Bind(e, layout)
}

// cancelChecker returns a checker polling ctx at the configured interval.
func (f *FlowCtx) cancelChecker(ctx context.Context) cancelchecker.CancelChecker {
	var c cancelchecker.CancelChecker
	c.Reset(ctx, f.CancelCheckInterval)
	return c
}

// ordinals returns the positions of cols in layout.
func ordinals(layout, cols opt.ColList) ([]int, error) {
	res := make([]int, len(cols))
	for i, c := range cols {
		idx, ok := layout.Find(c)
		if !ok {
			return nil, errors.AssertionFailedf("column @%d is not produced by the input %s", c, layout)
		}
		res[i] = idx
	}
	return res, nil
}

// project copies the values at the given ordinals of row into dst.
func project(dst, row tree.Datums, ords []int) tree.Datums {
	dst = dst[:0]
	for _, o := range ords {
		dst = append(dst, row[o])
	}
	return dst
}

func hasNull(row tree.Datums) bool {
	for _, d := range row {
		if d == tree.DNull {
			return true
		}
	}
	return false
}

func nullRow(n int) tree.Datums {
	row := make(tree.Datums, n)
	for i := range row {
		row[i] = tree.DNull
	}
	return row
}
