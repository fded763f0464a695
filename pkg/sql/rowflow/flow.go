// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package rowflow runs physical plans on the local machine. Every partition
// of an operator is a pipeline of rowexec iterators; exchanges are the
// boundaries between pipelines. The input partitions of an exchange run in
// parallel and their rows are routed to buffers that the partitions of the
// consumer read from.
package rowflow

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/relcore/pkg/sql/opt"
	"github.com/cockroachdb/relcore/pkg/sql/opt/memo"
	"github.com/cockroachdb/relcore/pkg/sql/opt/props/physical"
	"github.com/cockroachdb/relcore/pkg/sql/physicalplan"
	"github.com/cockroachdb/relcore/pkg/sql/rowexec"
	"github.com/cockroachdb/relcore/pkg/sql/sem/tree"
	"github.com/cockroachdb/relcore/pkg/util/log"
	"github.com/cockroachdb/relcore/pkg/util/mon"
	"golang.org/x/sync/errgroup"
)

// ErrSubqueryRows is the marker of a scalar subquery that returned more
// than one row.
var ErrSubqueryRows = errors.New("more than one row returned by a subquery used as an expression")

// exchangeOutput holds the rows of every output partition of an exchange.
// A broadcast exchange has a single output that every consumer partition
// reads.
type exchangeOutput struct {
	parts     [][]tree.Datums
	broadcast bool
}

func (o *exchangeOutput) partition(p int) []tree.Datums {
	if o.broadcast {
		return o.parts[0]
	}
	return o.parts[p]
}

// Flow executes one physical plan.
type Flow struct {
	flowCtx *rowexec.FlowCtx
	plan    *physicalplan.Plan

	exchanges map[*physicalplan.ExchangeNode]*exchangeOutput
	// tables hold the build sides shared by every partition of broadcast
	// joins and cartesian products, which build one table per right
	// partition.
	tables   map[physicalplan.Node][]*rowexec.HashTable
	prepared map[physicalplan.Node]bool
	accMu    sync.Mutex
	accounts []*mon.BoundAccount
}

// NewFlow prepares the execution of plan. The subquery values of flowCtx
// are filled in by Run.
func NewFlow(flowCtx *rowexec.FlowCtx, plan *physicalplan.Plan) *Flow {
	if flowCtx.Mon == nil {
		flowCtx.Mon = mon.NewMonitor("flow", 0 /* limit */, nil /* parent */)
	}
	if flowCtx.Metadata == nil {
		flowCtx.Metadata = plan.Metadata
	}
	if flowCtx.Metrics == nil {
		m := rowexec.MakeMetrics()
		flowCtx.Metrics = &m
	}
	return &Flow{
		flowCtx:   flowCtx,
		plan:      plan,
		exchanges: make(map[*physicalplan.ExchangeNode]*exchangeOutput),
		tables:    make(map[physicalplan.Node][]*rowexec.HashTable),
		prepared:  make(map[physicalplan.Node]bool),
	}
}

// Run executes the subqueries of the plan, then its root, and returns the
// rows of the root.
func (f *Flow) Run(ctx context.Context) ([]tree.Datums, error) {
	defer f.cleanup(ctx)
	for i := range f.plan.Subqueries {
		sq := &f.plan.Subqueries[i]
		rows, err := f.runRoot(ctx, sq.Root)
		if err != nil {
			return nil, errors.Wrapf(err, "subquery %d", i+1)
		}
		val, err := subqueryValue(sq.Expr, rows)
		if err != nil {
			return nil, err
		}
		if f.flowCtx.Subqueries == nil {
			f.flowCtx.Subqueries = make(physicalplan.SubqueryValues)
		}
		f.flowCtx.Subqueries[sq.Expr] = val
		log.VEventf(ctx, 2, "subquery %d = %s", i+1, val)
	}
	rows, err := f.runRoot(ctx, f.plan.Root)
	if err != nil {
		return nil, err
	}
	f.flowCtx.Metrics.RowsOutput.Inc(int64(len(rows)))
	return rows, nil
}

func subqueryValue(e memo.ScalarExpr, rows []tree.Datums) (tree.Datum, error) {
	switch e.(type) {
	case *memo.ExistsExpr:
		return tree.MakeDBool(tree.DBool(len(rows) > 0)), nil
	case *memo.SubqueryExpr:
		switch len(rows) {
		case 0:
			return tree.DNull, nil
		case 1:
			return rows[0][0], nil
		}
		return nil, errors.Mark(errors.Newf("subquery returned %d rows", len(rows)), ErrSubqueryRows)
	}
	return nil, errors.AssertionFailedf("unexpected subquery expression %T", e)
}

// runRoot runs every partition of root and returns their rows, in the
// order of the partitions.
func (f *Flow) runRoot(ctx context.Context, root physicalplan.Node) ([]tree.Datums, error) {
	if err := f.prepare(ctx, root); err != nil {
		return nil, err
	}
	parts, err := f.runPartitions(ctx, root, rowexec.Materialize)
	if err != nil {
		return nil, err
	}
	return serialSync(parts), nil
}

// runPartitions sets up and runs every partition of n concurrently, and
// returns the results of fn for each of them.
func (f *Flow) runPartitions(
	ctx context.Context,
	n physicalplan.Node,
	fn func(ctx context.Context, src rowexec.RowSource) ([]tree.Datums, error),
) ([][]tree.Datums, error) {
	count := n.Partitioning().NumPartitions()
	res := make([][]tree.Datums, count)
	g, gCtx := errgroup.WithContext(ctx)
	for p := 0; p < count; p++ {
		p := p
		g.Go(func() error {
			ctx := log.WithLogTag(gCtx, "part", p)
			src, err := f.setup(ctx, n, p)
			if err != nil {
				return err
			}
			res[p], err = fn(ctx, src)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return res, nil
}

// prepare materializes the exchanges and shared build tables below n,
// children first.
func (f *Flow) prepare(ctx context.Context, n physicalplan.Node) error {
	if f.prepared[n] {
		return nil
	}
	for _, c := range n.Children() {
		if err := f.prepare(ctx, c); err != nil {
			return err
		}
	}
	f.prepared[n] = true

	switch t := n.(type) {
	case *physicalplan.ExchangeNode:
		return f.exchange(ctx, t)

	case *physicalplan.HashJoinNode:
		if !t.Broadcast {
			return nil
		}
		build, keys := t.Right, t.RightKeys
		if !t.BuildRight {
			build, keys = t.Left, t.LeftKeys
		}
		return f.buildShared(ctx, t, build, keys)

	case *physicalplan.NestedLoopJoinNode:
		build := t.Right
		if !t.BuildRight {
			build = t.Left
		}
		return f.buildShared(ctx, t, build, nil /* keys */)

	case *physicalplan.CartesianProductNode:
		parts, err := f.runPartitions(ctx, t.Right, rowexec.Materialize)
		if err != nil {
			return err
		}
		for _, rows := range parts {
			table, err := rowexec.BuildHashTable(ctx, f.flowCtx, rows, nil /* keyOrds */)
			if err != nil {
				return err
			}
			f.tables[t] = append(f.tables[t], table)
		}
	}
	return nil
}

// buildShared builds the table of the broadcast build side of a join.
func (f *Flow) buildShared(
	ctx context.Context, n, build physicalplan.Node, keys opt.ColList,
) error {
	keyOrds, err := columnOrdinals(build.OutputCols(), keys)
	if err != nil {
		return err
	}
	var rows []tree.Datums
	if ex, ok := build.(*physicalplan.ExchangeNode); ok && ex.Target.Type == physical.BroadcastPartitioning {
		rows = f.exchanges[ex].partition(0)
	} else {
		parts, err := f.runPartitions(ctx, build, rowexec.Materialize)
		if err != nil {
			return err
		}
		rows = serialSync(parts)
	}
	table, err := rowexec.BuildHashTable(ctx, f.flowCtx, rows, keyOrds)
	if err != nil {
		return err
	}
	log.VEventf(ctx, 2, "built shared table of %d rows", table.NumRows())
	f.tables[n] = []*rowexec.HashTable{table}
	return nil
}

// exchange runs the input partitions of ex and routes their rows.
func (f *Flow) exchange(ctx context.Context, ex *physicalplan.ExchangeNode) error {
	inputCols := ex.Input.OutputCols()
	numInputs := ex.Input.Partitioning().NumPartitions()
	routers := make([]router, numInputs)
	for i := range routers {
		acc := f.newAccount()
		r, err := makeRouter(ex.Target, inputCols, acc)
		if err != nil {
			return err
		}
		routers[i] = r
	}

	route := func(ctx context.Context, src rowexec.RowSource, r router) error {
		defer src.Close(ctx)
		for {
			row, err := src.Next(ctx)
			if err != nil || row == nil {
				return err
			}
			if err := r.push(ctx, row); err != nil {
				return err
			}
		}
	}
	g, gCtx := errgroup.WithContext(ctx)
	for p := 0; p < numInputs; p++ {
		p := p
		g.Go(func() error {
			ctx := log.WithLogTag(gCtx, "part", p)
			src, err := f.setup(ctx, ex.Input, p)
			if err != nil {
				return err
			}
			return route(ctx, src, routers[p])
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	out := &exchangeOutput{broadcast: ex.Target.Type == physical.BroadcastPartitioning}
	numOutputs := len(routers[0].outputs())
	out.parts = make([][]tree.Datums, numOutputs)
	for o := 0; o < numOutputs; o++ {
		sources := make([][]tree.Datums, numInputs)
		for i, r := range routers {
			sources[i] = r.outputs()[o]
		}
		if len(ex.Merge) > 0 {
			key, err := rowexec.MakeOrderingKey(inputCols, ex.Merge)
			if err != nil {
				return err
			}
			if out.parts[o], err = orderedSync(ctx, sources, key); err != nil {
				return err
			}
		} else {
			out.parts[o] = serialSync(sources)
		}
	}
	log.VEventf(ctx, 2, "exchange to %s: %d input partitions", ex.Target, numInputs)
	f.exchanges[ex] = out
	return nil
}

func (f *Flow) newAccount() *mon.BoundAccount {
	acc := f.flowCtx.Mon.MakeBoundAccount()
	f.accMu.Lock()
	defer f.accMu.Unlock()
	f.accounts = append(f.accounts, &acc)
	return &acc
}

// setup returns the source of partition p of n.
func (f *Flow) setup(ctx context.Context, n physicalplan.Node, p int) (rowexec.RowSource, error) {
	fc := f.flowCtx
	switch t := n.(type) {
	case *physicalplan.ScanNode:
		return rowexec.NewTableReader(t.Table, p), nil

	case *physicalplan.ValuesNode:
		return rowexec.NewRowsSource(t.Rows), nil

	case *physicalplan.ExchangeNode:
		out, ok := f.exchanges[t]
		if !ok {
			return nil, errors.AssertionFailedf("exchange was not prepared")
		}
		return rowexec.NewRowsSource(out.partition(p)), nil

	case *physicalplan.FilterNode:
		input, err := f.setup(ctx, t.Input, p)
		if err != nil {
			return nil, err
		}
		return rowexec.NewFilterer(ctx, fc, t, input)

	case *physicalplan.ProjectNode:
		input, err := f.setup(ctx, t.Input, p)
		if err != nil {
			return nil, err
		}
		return rowexec.NewProjector(ctx, fc, t, input)

	case *physicalplan.WholeStageNode:
		input, err := f.setup(ctx, t.Input, p)
		if err != nil {
			return nil, err
		}
		return rowexec.NewWholeStage(ctx, fc, t, input)

	case *physicalplan.HashJoinNode:
		stream, build, buildKeys := t.Left, t.Right, t.RightKeys
		if !t.BuildRight {
			stream, build, buildKeys = t.Right, t.Left, t.LeftKeys
		}
		streamSrc, err := f.setup(ctx, stream, p)
		if err != nil {
			return nil, err
		}
		if t.Broadcast {
			return rowexec.NewHashJoiner(ctx, fc, t, streamSrc, f.tables[t][0], false /* ownsTable */)
		}
		table, err := f.buildPartition(ctx, build, p, buildKeys)
		if err != nil {
			streamSrc.Close(ctx)
			return nil, err
		}
		return rowexec.NewHashJoiner(ctx, fc, t, streamSrc, table, true /* ownsTable */)

	case *physicalplan.NestedLoopJoinNode:
		stream := t.Left
		if !t.BuildRight {
			stream = t.Right
		}
		streamSrc, err := f.setup(ctx, stream, p)
		if err != nil {
			return nil, err
		}
		return rowexec.NewNestedLoopJoiner(ctx, fc, t, streamSrc, f.tables[t][0], false /* ownsTable */)

	case *physicalplan.CartesianProductNode:
		tables := f.tables[t]
		left, err := f.setup(ctx, t.Left, p/len(tables))
		if err != nil {
			return nil, err
		}
		return rowexec.NewCartesianProduct(ctx, fc, t, left, tables[p%len(tables)])

	case *physicalplan.MergeJoinNode:
		left, err := f.setup(ctx, t.Left, p)
		if err != nil {
			return nil, err
		}
		right, err := f.setup(ctx, t.Right, p)
		if err != nil {
			left.Close(ctx)
			return nil, err
		}
		return rowexec.NewMergeJoiner(ctx, fc, t, left, right)

	case *physicalplan.AggregateNode:
		input, err := f.setup(ctx, t.Input, p)
		if err != nil {
			return nil, err
		}
		return rowexec.NewHashAggregator(log.WithLogTag(ctx, "agg", nil), fc, t, input)

	case *physicalplan.SortNode:
		input, err := f.setup(ctx, t.Input, p)
		if err != nil {
			return nil, err
		}
		return rowexec.NewSorter(ctx, fc, t, input)

	case *physicalplan.LimitNode:
		input, err := f.setup(ctx, t.Input, p)
		if err != nil {
			return nil, err
		}
		return rowexec.NewLimiter(input, t.Count), nil

	case *physicalplan.UnionAllNode:
		for i, in := range t.Inputs {
			count := in.Partitioning().NumPartitions()
			if p >= count {
				p -= count
				continue
			}
			src, err := f.setup(ctx, in, p)
			if err != nil {
				return nil, err
			}
			ords, err := columnOrdinals(in.OutputCols(), t.InputCols[i])
			if err != nil {
				src.Close(ctx)
				return nil, err
			}
			return rowexec.NewRemapper(src, ords), nil
		}
		return nil, errors.AssertionFailedf("union has no partition %d", p)
	}
	return nil, errors.AssertionFailedf("unsupported physical operator %T", n)
}

// buildPartition builds the table of partition p of the build side of a
// shuffled hash join.
func (f *Flow) buildPartition(
	ctx context.Context, build physicalplan.Node, p int, keys opt.ColList,
) (*rowexec.HashTable, error) {
	keyOrds, err := columnOrdinals(build.OutputCols(), keys)
	if err != nil {
		return nil, err
	}
	src, err := f.setup(ctx, build, p)
	if err != nil {
		return nil, err
	}
	rows, err := rowexec.Materialize(ctx, src)
	if err != nil {
		return nil, err
	}
	return rowexec.BuildHashTable(ctx, f.flowCtx, rows, keyOrds)
}

func (f *Flow) cleanup(ctx context.Context) {
	for _, tables := range f.tables {
		for _, t := range tables {
			t.Close(ctx)
		}
	}
	f.tables = nil
	f.exchanges = nil
	for _, acc := range f.accounts {
		acc.Close(ctx)
	}
	f.accounts = nil
}

func columnOrdinals(layout, cols opt.ColList) ([]int, error) {
	res := make([]int, len(cols))
	for i, c := range cols {
		idx, ok := layout.Find(c)
		if !ok {
			return nil, errors.AssertionFailedf("column @%d is not produced by %s", c, layout)
		}
		res[i] = idx
	}
	return res, nil
}
