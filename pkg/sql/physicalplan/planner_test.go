// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package physicalplan_test

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/relcore/pkg/sql/opt"
	"github.com/cockroachdb/relcore/pkg/sql/opt/memo"
	"github.com/cockroachdb/relcore/pkg/sql/opt/optbuilder"
	"github.com/cockroachdb/relcore/pkg/sql/opt/props/physical"
	"github.com/cockroachdb/relcore/pkg/sql/opt/testutils/testcat"
	"github.com/cockroachdb/relcore/pkg/sql/physicalplan"
	"github.com/stretchr/testify/require"
)

// joinTables have 24 byte rows: small is 240B, mid is 2.4MB and big is
// 240MB.
const joinTables = `
- name: small
  columns: [{name: sk, type: int}, {name: sv, type: int}]
  partitions: [[], []]
  stats: {row-count: 10, columns: {sk: {distinct: 10}}}
- name: mid
  columns: [{name: mk, type: int}, {name: mv, type: int}]
  partitions: [[], []]
  stats: {row-count: 100000, columns: {mk: {distinct: 100000}}}
- name: big
  columns: [{name: bk, type: int}, {name: bv, type: int}]
  partitions: [[], [], [], []]
  stats: {row-count: 10000000, columns: {bk: {distinct: 10000000}}}
`

const aggTables = `
- name: t
  columns: [{name: a, type: int}, {name: b, type: int}, {name: c, type: string}]
  partitions: [[[1, 2, x], [2, 3, y]], [[1, 4, z]]]
- name: one
  columns: [{name: a, type: int}, {name: b, type: int}]
  rows: [[1, 2], [1, 3]]
- name: u
  columns: [{name: x, type: int}, {name: y, type: int}]
  rows: [[1, 2]]
`

func planQuery(
	t *testing.T, tables, query string, cfg physicalplan.Config,
) (*opt.Metadata, *physicalplan.Plan, error) {
	t.Helper()
	catalog := testcat.New()
	require.NoError(t, catalog.LoadYAML([]byte(tables)))
	q, err := optbuilder.ParseQuery([]byte(query))
	require.NoError(t, err)
	md := &opt.Metadata{}
	e, err := optbuilder.New(md, catalog).Build(q)
	require.NoError(t, err)
	plan, err := physicalplan.New(md, cfg).Plan(context.Background(), e)
	return md, plan, err
}

func mustPlan(t *testing.T, tables, query string, cfg physicalplan.Config) *physicalplan.Plan {
	t.Helper()
	_, plan, err := planQuery(t, tables, query, cfg)
	require.NoError(t, err)
	return plan
}

// find returns the nodes of the given type, parents first.
func find[T physicalplan.Node](root physicalplan.Node) []T {
	var res []T
	physicalplan.Walk(root, func(n physicalplan.Node) {
		if t, ok := n.(T); ok {
			res = append(res, t)
		}
	})
	return res
}

func findOne[T physicalplan.Node](t *testing.T, root physicalplan.Node) T {
	t.Helper()
	nodes := find[T](root)
	require.Len(t, nodes, 1, "plan:\n%s", physicalplan.Explain(&physicalplan.Plan{Root: root}, 0))
	return nodes[0]
}

func requireBroadcast(t *testing.T, n physicalplan.Node) {
	t.Helper()
	ex, ok := n.(*physicalplan.ExchangeNode)
	require.True(t, ok, "expected an exchange, found %T", n)
	require.Equal(t, physical.BroadcastPartitioning, ex.Target.Type)
}

func TestBroadcastSmallSide(t *testing.T) {
	cfg := physicalplan.DefaultConfig()

	plan := mustPlan(t, joinTables, `
join: {left: {scan: big}, right: {scan: small}, on: ["=", bk, sk]}
`, cfg)
	hj := findOne[*physicalplan.HashJoinNode](t, plan.Root)
	require.True(t, hj.Broadcast)
	require.True(t, hj.BuildRight)
	requireBroadcast(t, hj.Right)
	require.IsType(t, &physicalplan.ScanNode{}, hj.Left)
	require.Equal(t, 4, hj.Partitioning().NumPartitions())

	// The small table is built even when it is on the left.
	plan = mustPlan(t, joinTables, `
join: {left: {scan: small}, right: {scan: big}, on: ["=", sk, bk]}
`, cfg)
	hj = findOne[*physicalplan.HashJoinNode](t, plan.Root)
	require.True(t, hj.Broadcast)
	require.False(t, hj.BuildRight)
	requireBroadcast(t, hj.Left)
}

func TestBroadcastOuterJoin(t *testing.T) {
	cfg := physicalplan.DefaultConfig()

	// A left join can build its right side.
	plan := mustPlan(t, joinTables, `
join: {type: left, left: {scan: big}, right: {scan: small}, on: ["=", bk, sk]}
`, cfg)
	hj := findOne[*physicalplan.HashJoinNode](t, plan.Root)
	require.True(t, hj.Broadcast)
	require.True(t, hj.BuildRight)

	// A right join can only build its left side, which is too large.
	plan = mustPlan(t, joinTables, `
join: {type: right, left: {scan: big}, right: {scan: small}, on: ["=", bk, sk]}
`, cfg)
	require.Empty(t, find[*physicalplan.HashJoinNode](plan.Root))
	findOne[*physicalplan.MergeJoinNode](t, plan.Root)
}

func TestBroadcastBeatsSortMerge(t *testing.T) {
	const query = `join: {left: {scan: big}, right: {scan: mid}, on: ["=", bk, mk]}`

	plan := mustPlan(t, joinTables, query, physicalplan.DefaultConfig())
	hj := findOne[*physicalplan.HashJoinNode](t, plan.Root)
	require.True(t, hj.Broadcast)
	require.True(t, hj.BuildRight)

	// With broadcasting disabled, both inputs are shuffled and sorted.
	cfg := physicalplan.DefaultConfig()
	cfg.BroadcastThreshold = -1
	plan = mustPlan(t, joinTables, query, cfg)
	mj := findOne[*physicalplan.MergeJoinNode](t, plan.Root)
	for _, in := range []physicalplan.Node{mj.Left, mj.Right} {
		sort, ok := in.(*physicalplan.SortNode)
		require.True(t, ok, "expected a sort, found %T", in)
		ex, ok := sort.Input.(*physicalplan.ExchangeNode)
		require.True(t, ok, "expected an exchange, found %T", sort.Input)
		require.Equal(t, physical.HashPartitioning, ex.Target.Type)
		require.Equal(t, cfg.ShufflePartitions, ex.Target.Count)
	}
	require.Equal(t, opt.ColList{3}, mj.RightKeys)
}

func TestBroadcastHint(t *testing.T) {
	cfg := physicalplan.DefaultConfig()
	cfg.BroadcastThreshold = -1
	plan := mustPlan(t, joinTables, `
join: {left: {scan: mid}, right: {scan: big}, on: ["=", mk, bk], hint: broadcast-right}
`, cfg)
	hj := findOne[*physicalplan.HashJoinNode](t, plan.Root)
	require.True(t, hj.Broadcast)
	require.True(t, hj.BuildRight)
}

func TestShuffleHashJoin(t *testing.T) {
	cfg := physicalplan.DefaultConfig()
	cfg.BroadcastThreshold = 1 << 20
	cfg.PreferSortMergeJoin = false
	const query = `join: {left: {scan: big}, right: {scan: mid}, on: ["=", bk, mk]}`

	plan := mustPlan(t, joinTables, query, cfg)
	hj := findOne[*physicalplan.HashJoinNode](t, plan.Root)
	require.False(t, hj.Broadcast)
	require.True(t, hj.BuildRight)
	for _, in := range []physicalplan.Node{hj.Left, hj.Right} {
		require.Equal(t, physical.HashPartitioning, in.Partitioning().Type)
	}

	// The build side must be much smaller than the other side.
	cfg.ShuffleHashRatio = 1000
	plan = mustPlan(t, joinTables, query, cfg)
	findOne[*physicalplan.MergeJoinNode](t, plan.Root)
}

func TestJoinWithoutKeys(t *testing.T) {
	cfg := physicalplan.DefaultConfig()
	plan := mustPlan(t, joinTables, `
join: {type: left, left: {scan: big}, right: {scan: small}, on: ["<", bk, sk]}
`, cfg)
	nl := findOne[*physicalplan.NestedLoopJoinNode](t, plan.Root)
	require.True(t, nl.BuildRight)
	requireBroadcast(t, nl.Right)

	cfg.BroadcastThreshold = -1
	plan = mustPlan(t, joinTables, `join: {left: {scan: big}, right: {scan: mid}}`, cfg)
	cp := findOne[*physicalplan.CartesianProductNode](t, plan.Root)
	require.Equal(t, 8, cp.Partitioning().NumPartitions())
}

func TestTwoStageAggregation(t *testing.T) {
	plan := mustPlan(t, aggTables, `
aggregate: {input: {scan: t}, group-by: [a], aggs: [{expr: [sum, b], as: s}]}
`, physicalplan.DefaultConfig())
	aggs := find[*physicalplan.AggregateNode](plan.Root)
	require.Len(t, aggs, 2)
	final, partial := aggs[0], aggs[1]
	require.Equal(t, []physicalplan.AggregateMode{physicalplan.Final}, final.Modes())
	require.Equal(t, []physicalplan.AggregateMode{physicalplan.Partial}, partial.Modes())
	require.True(t, final.FinalStage())
	require.False(t, partial.FinalStage())

	ex, ok := final.Input.(*physicalplan.ExchangeNode)
	require.True(t, ok, "expected an exchange, found %T", final.Input)
	require.True(t, ex.Target.Satisfies(physical.Hash(final.GroupingCols, 0)))

	// The partial stage outputs the grouping column and the buffer, which
	// the final stage reads.
	require.Equal(t, len(final.GroupingCols)+1, len(partial.OutputCols()))
	require.Equal(t, partial.Aggs[0].BufferCols, final.Aggs[0].BufferCols)
	require.Equal(t, opt.ColList{1, final.Aggs[0].ResultCol}, final.OutputCols())
}

func TestSinglePartitionAggregation(t *testing.T) {
	plan := mustPlan(t, aggTables, `
aggregate: {input: {scan: one}, aggs: [{expr: [sum, b], as: s}, {expr: [count, "*"], as: n}]}
`, physicalplan.DefaultConfig())
	agg := findOne[*physicalplan.AggregateNode](t, plan.Root)
	require.Equal(t, []physicalplan.AggregateMode{physicalplan.Complete}, agg.Modes())
	require.Empty(t, find[*physicalplan.ExchangeNode](plan.Root))
}

func TestDistinctAggregation(t *testing.T) {
	plan := mustPlan(t, aggTables, `
aggregate:
  input: {scan: t}
  group-by: [a]
  aggs:
  - {expr: {call: count, args: [b], distinct: true}, as: nb}
  - {expr: [sum, b], as: s}
`, physicalplan.DefaultConfig())
	aggs := find[*physicalplan.AggregateNode](plan.Root)
	require.Len(t, aggs, 4)
	require.Equal(t, []physicalplan.AggregateMode{physicalplan.Final}, aggs[0].Modes())
	require.Equal(t,
		[]physicalplan.AggregateMode{physicalplan.Partial, physicalplan.PartialMerge}, aggs[1].Modes())
	require.Equal(t, []physicalplan.AggregateMode{physicalplan.PartialMerge}, aggs[2].Modes())
	require.Equal(t, []physicalplan.AggregateMode{physicalplan.Partial}, aggs[3].Modes())

	// The first two stages group by the distinct argument as well.
	require.Equal(t, opt.ColList{1}, aggs[0].GroupingCols)
	require.Equal(t, opt.ColList{1}, aggs[1].GroupingCols)
	require.Equal(t, opt.ColList{1, 2}, aggs[2].GroupingCols)
	require.Equal(t, opt.ColList{1, 2}, aggs[3].GroupingCols)

	// Functions keep their order.
	require.Equal(t, "count", aggs[0].Aggs[0].Overload.Name)
	require.Equal(t, "sum", aggs[0].Aggs[1].Overload.Name)
	for _, n := range aggs {
		require.NoError(t, physicalplan.CheckModes(n))
	}
}

func TestDistinctAggregationSets(t *testing.T) {
	// Two distinct column sets are rejected when the expression is built,
	// before it reaches the planner.
	catalog := testcat.New()
	require.NoError(t, catalog.LoadYAML([]byte(aggTables)))
	q, err := optbuilder.ParseQuery([]byte(`
aggregate:
  input: {scan: t}
  aggs:
  - {expr: {call: count, args: [a], distinct: true}, as: na}
  - {expr: {call: count, args: [b], distinct: true}, as: nb}
`))
	require.NoError(t, err)
	_, err = optbuilder.New(&opt.Metadata{}, catalog).Build(q)
	require.Error(t, err)
	require.True(t, errors.Is(err, memo.ErrUnsupported), "%v", err)
	require.Contains(t, err.Error(), "DISTINCT over different column sets")

	// The same distinct argument may be shared by several functions.
	plan := mustPlan(t, aggTables, `
aggregate:
  input: {scan: t}
  aggs:
  - {expr: {call: count, args: [b], distinct: true}, as: nb}
  - {expr: {call: sum, args: [b], distinct: true}, as: sb}
`, physicalplan.DefaultConfig())
	require.Len(t, find[*physicalplan.AggregateNode](plan.Root), 4)
}

func TestCheckModes(t *testing.T) {
	mk := func(modes ...physicalplan.AggregateMode) *physicalplan.AggregateNode {
		n := &physicalplan.AggregateNode{}
		for _, m := range modes {
			n.Aggs = append(n.Aggs, physicalplan.AggregateFunc{Mode: m})
		}
		return n
	}
	require.NoError(t, physicalplan.CheckModes(mk()))
	require.NoError(t, physicalplan.CheckModes(mk(physicalplan.Partial, physicalplan.PartialMerge)))
	require.NoError(t, physicalplan.CheckModes(mk(physicalplan.Final, physicalplan.Complete, physicalplan.Final)))
	require.Error(t, physicalplan.CheckModes(mk(physicalplan.Partial, physicalplan.Final)))
	require.Error(t, physicalplan.CheckModes(mk(physicalplan.PartialMerge, physicalplan.Complete)))
}

func TestWholeStageFusion(t *testing.T) {
	const query = `
project:
  input: {filter: {input: {scan: t}, cond: [">", a, 1]}}
  exprs: [{expr: ["+", b, 1], as: p}]
`
	plan := mustPlan(t, aggTables, query, physicalplan.DefaultConfig())
	ws := findOne[*physicalplan.WholeStageNode](t, plan.Root)
	require.Equal(t, 1, ws.ID)
	require.Len(t, ws.Chain, 2)
	require.IsType(t, &physicalplan.ProjectNode{}, ws.Chain[0])
	require.IsType(t, &physicalplan.FilterNode{}, ws.Chain[1])
	require.IsType(t, &physicalplan.ScanNode{}, ws.Input)

	explain := physicalplan.Explain(plan, 0)
	require.Contains(t, explain, "*(1) project")
	require.Contains(t, explain, "*(1) filter")

	cfg := physicalplan.DefaultConfig()
	cfg.Codegen.Enabled = false
	plan = mustPlan(t, aggTables, query, cfg)
	require.Empty(t, find[*physicalplan.WholeStageNode](plan.Root))
	require.NotContains(t, physicalplan.Explain(plan, 0), "*(")
}

func TestStageIDs(t *testing.T) {
	plan := mustPlan(t, joinTables, `
join:
  left: {filter: {input: {scan: big}, cond: [">", bv, 0]}}
  right: {filter: {input: {scan: small}, cond: [">", sv, 0]}}
  on: ["=", bk, sk]
`, physicalplan.DefaultConfig())
	stages := find[*physicalplan.WholeStageNode](plan.Root)
	require.Len(t, stages, 2)
	require.NotEqual(t, stages[0].ID, stages[1].ID)
	for _, s := range stages {
		require.Equal(t, s.ID, physicalplan.Stage(s.Chain[0]))
	}
}

func TestExplainStats(t *testing.T) {
	plan := mustPlan(t, joinTables, `scan: small`, physicalplan.DefaultConfig())
	require.Contains(t, physicalplan.Explain(plan, physicalplan.ExplainShowStats), "rows=10.00 size=240 B")
}

func TestLimitPlanning(t *testing.T) {
	plan := mustPlan(t, aggTables, `limit: {input: {scan: t}, count: 1}`, physicalplan.DefaultConfig())
	limits := find[*physicalplan.LimitNode](plan.Root)
	require.Len(t, limits, 2)
	require.True(t, limits[0].Global)
	require.False(t, limits[1].Global)
	require.Equal(t, physical.SinglePartition, plan.Root.Partitioning().Type)
}

func TestSortMergesPartitions(t *testing.T) {
	plan := mustPlan(t, aggTables, `order-by: {input: {scan: t}, cols: [-a]}`, physicalplan.DefaultConfig())
	ex, ok := plan.Root.(*physicalplan.ExchangeNode)
	require.True(t, ok, "expected an exchange, found %T", plan.Root)
	require.Equal(t, "-1", ex.Merge.String())
	require.IsType(t, &physicalplan.SortNode{}, ex.Input)
}

func TestSubqueries(t *testing.T) {
	plan := mustPlan(t, aggTables, `
filter:
  input: {scan: t}
  cond: [">", a, [subquery, {aggregate: {input: {scan: u}, aggs: [{expr: [max, x], as: m}]}}]]
`, physicalplan.DefaultConfig())
	require.Len(t, plan.Subqueries, 1)
	require.Contains(t, physicalplan.Explain(plan, 0), "subquery 1")

	_, _, err := planQuery(t, aggTables, `
filter:
  input: {scan: u}
  cond: [exists, {filter: {input: {scan: t}, cond: ["=", b, y]}}]
`, physicalplan.DefaultConfig())
	require.True(t, errors.Is(err, memo.ErrUnsupported), "%v", err)
}
