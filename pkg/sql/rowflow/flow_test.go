// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package rowflow

import (
	"context"
	"fmt"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/cockroachdb/relcore/pkg/sql/execgen"
	"github.com/cockroachdb/relcore/pkg/sql/opt"
	"github.com/cockroachdb/relcore/pkg/sql/opt/optbuilder"
	"github.com/cockroachdb/relcore/pkg/sql/opt/props/physical"
	"github.com/cockroachdb/relcore/pkg/sql/opt/testutils/testcat"
	"github.com/cockroachdb/relcore/pkg/sql/physicalplan"
	"github.com/cockroachdb/relcore/pkg/sql/rowexec"
	"github.com/cockroachdb/relcore/pkg/sql/sem/tree"
	"github.com/cockroachdb/relcore/pkg/sql/types"
	"github.com/cockroachdb/relcore/pkg/util/mon"
	"github.com/stretchr/testify/require"
)

const testTables = `
- name: kv
  columns: [{name: k, type: string}, {name: v, type: int}]
  partitions: [[[a, 1], [b, 2]], [[a, 3]], [], [[b, 4], [a, 5]]]
- name: small
  columns: [{name: sk, type: int}, {name: sv, type: string}]
  rows: [[1, s1], [2, s2], [3, s3], [4, s4], [5, s5], [6, s6], [7, s7], [8, s8], [9, s9], [10, s10]]
  stats: {row-count: 10}
- name: big
  columns: [{name: bk, type: int}, {name: bv, type: int}]
  partitions: [[[1, 100], [2, 200]], [[2, 201], [11, 1100]], [[10, 1000]], [[3, 300]]]
  stats: {row-count: 10000000, columns: {bk: {distinct: 10000000}}}
`

type testFlow struct {
	md      *opt.Metadata
	plan    *physicalplan.Plan
	flowCtx *rowexec.FlowCtx
}

func newTestFlow(t *testing.T, query string, cfg physicalplan.Config) *testFlow {
	t.Helper()
	catalog := testcat.New()
	require.NoError(t, catalog.LoadYAML([]byte(testTables)))
	return newTestFlowWithCatalog(t, catalog, query, cfg)
}

func newTestFlowWithCatalog(
	t *testing.T, catalog *testcat.Catalog, query string, cfg physicalplan.Config,
) *testFlow {
	t.Helper()
	q, err := optbuilder.ParseQuery([]byte(query))
	require.NoError(t, err)
	md := &opt.Metadata{}
	e, err := optbuilder.New(md, catalog).Build(q)
	require.NoError(t, err)
	plan, err := physicalplan.New(md, cfg).Plan(context.Background(), e)
	require.NoError(t, err)
	m := rowexec.MakeMetrics()
	return &testFlow{
		md:   md,
		plan: plan,
		flowCtx: &rowexec.FlowCtx{
			Metadata:            md,
			Mon:                 mon.NewMonitor("test", 0 /* limit */, nil /* parent */),
			WorkMem:             64 << 20,
			PageSize:            64 << 10,
			TempFS:              vfs.NewMem(),
			TempDir:             "tmp",
			CancelCheckInterval: 16,
			Metrics:             &m,
		},
	}
}

func (tf *testFlow) run(ctx context.Context) ([]string, error) {
	rows, err := NewFlow(tf.flowCtx, tf.plan).Run(ctx)
	if err != nil {
		return nil, err
	}
	res := make([]string, len(rows))
	for i, r := range rows {
		res[i] = r.String()
	}
	return res, nil
}

func (tf *testFlow) mustRun(t *testing.T) []string {
	t.Helper()
	rows, err := tf.run(context.Background())
	require.NoError(t, err)
	return rows
}

func TestGroupedSum(t *testing.T) {
	const query = `
order-by:
  input: {aggregate: {input: {scan: kv}, group-by: [k], aggs: [{expr: [sum, v], as: s}]}}
  cols: [k]
`
	for _, partitions := range []int{1, 2, 4, 8} {
		for _, codegen := range []bool{false, true} {
			t.Run(fmt.Sprintf("partitions=%d/codegen=%t", partitions, codegen), func(t *testing.T) {
				cfg := physicalplan.DefaultConfig()
				cfg.ShufflePartitions = partitions
				cfg.Codegen.Enabled = codegen
				tf := newTestFlow(t, query, cfg)
				if codegen {
					tf.flowCtx.Compiler = execgen.NewCompiler(cfg.Codegen, execgen.NewCodeCache(16), nil)
				}
				require.Equal(t, []string{`("a", 9)`, `("b", 6)`}, tf.mustRun(t))
				require.Equal(t, int64(2), tf.flowCtx.Metrics.RowsOutput.Count())
			})
		}
	}
}

// manyGroups returns a table of 4 partitions holding 3000 rows in 300
// groups.
func manyGroups(t *testing.T) *testcat.Catalog {
	tab := testcat.NewTable("many",
		testcat.Col("g", types.String), testcat.Col("v", types.Int))
	for i := 0; i < 3000; i++ {
		r := tree.Datums{
			tree.NewDString(fmt.Sprintf("g%03d", (i*13)%300)),
			tree.NewDInt(tree.DInt(i)),
		}
		require.NoError(t, tab.AddRows(i%4, r))
	}
	catalog := testcat.New()
	catalog.AddTable(tab)
	return catalog
}

func TestGroupedSumSpill(t *testing.T) {
	const query = `
order-by:
  input:
    aggregate:
      input: {scan: many}
      group-by: [g]
      aggs: [{expr: [sum, v], as: s}, {expr: [string_agg, g, [str, ","]], as: gs}]
  cols: [g]
`
	catalog := manyGroups(t)
	for _, partitions := range []int{1, 4} {
		t.Run(fmt.Sprintf("partitions=%d", partitions), func(t *testing.T) {
			cfg := physicalplan.DefaultConfig()
			cfg.ShufflePartitions = partitions
			expected := newTestFlowWithCatalog(t, catalog, query, cfg).mustRun(t)
			require.Len(t, expected, 300)

			tf := newTestFlowWithCatalog(t, catalog, query, cfg)
			tf.flowCtx.WorkMem = 4 << 10
			tf.flowCtx.PageSize = 1 << 10
			require.Equal(t, expected, tf.mustRun(t))
			require.Greater(t, tf.flowCtx.Metrics.SpillCount.Count(), int64(0))
			require.Greater(t, tf.flowCtx.Metrics.SpillBytes.Count(), int64(0))
		})
	}
}

func TestBroadcastJoin(t *testing.T) {
	tf := newTestFlow(t, `
order-by:
  input: {join: {left: {scan: big}, right: {scan: small}, on: ["=", bk, sk]}}
  cols: [bv]
`, physicalplan.DefaultConfig())

	var hj *physicalplan.HashJoinNode
	physicalplan.Walk(tf.plan.Root, func(n physicalplan.Node) {
		if j, ok := n.(*physicalplan.HashJoinNode); ok {
			hj = j
		}
	})
	require.NotNil(t, hj)
	require.True(t, hj.Broadcast)
	require.True(t, hj.BuildRight)
	ex, ok := hj.Right.(*physicalplan.ExchangeNode)
	require.True(t, ok)
	require.Equal(t, physical.BroadcastPartitioning, ex.Target.Type)

	require.Equal(t, []string{
		`(1, 100, 1, "s1")`,
		`(2, 200, 2, "s2")`,
		`(2, 201, 2, "s2")`,
		`(3, 300, 3, "s3")`,
		`(10, 1000, 10, "s10")`,
	}, tf.mustRun(t))
}

func TestShuffleJoin(t *testing.T) {
	cfg := physicalplan.DefaultConfig()
	cfg.BroadcastThreshold = -1
	for _, preferMerge := range []bool{false, true} {
		cfg.PreferSortMergeJoin = preferMerge
		tf := newTestFlow(t, `
join: {type: full, left: {scan: big}, right: {scan: small}, on: ["=", bk, sk]}
`, cfg)
		rows := tf.mustRun(t)
		require.Len(t, rows, 5+1+6)
		require.Contains(t, rows, `(11, 1100, NULL, NULL)`)
		require.Contains(t, rows, `(NULL, NULL, 9, "s9")`)
	}
}

func TestOrderedExchange(t *testing.T) {
	cfg := physicalplan.DefaultConfig()
	tf := newTestFlow(t, `
limit:
  input: {order-by: {input: {scan: big}, cols: [-bv]}}
  count: 3
`, cfg)
	require.Equal(t, []string{"(11, 1100)", "(10, 1000)", "(3, 300)"}, tf.mustRun(t))
}

func TestUnionAll(t *testing.T) {
	tf := newTestFlow(t, `
order-by:
  input:
    union-all:
    - {project: {input: {scan: kv}, exprs: [v]}}
    - {project: {input: {scan: big}, exprs: [bk]}}
  cols: [v]
`, physicalplan.DefaultConfig())
	require.Equal(t, []string{
		"(1)", "(1)", "(2)", "(2)", "(2)", "(3)", "(3)", "(4)", "(5)", "(10)", "(11)",
	}, tf.mustRun(t))
}

func TestSubqueries(t *testing.T) {
	tf := newTestFlow(t, `
filter:
  input: {scan: kv}
  cond: ["=", v, [subquery, {aggregate: {input: {scan: kv}, aggs: [{expr: [max, v], as: m}]}}]]
`, physicalplan.DefaultConfig())
	require.NotEmpty(t, tf.plan.Subqueries)
	require.Equal(t, []string{`("a", 5)`}, tf.mustRun(t))

	tf = newTestFlow(t, `
filter:
  input: {scan: kv}
  cond: [exists, {filter: {input: {scan: big}, cond: [">", bv, 5000]}}]
`, physicalplan.DefaultConfig())
	require.Empty(t, tf.mustRun(t))

	// A scalar subquery without rows is NULL.
	tf = newTestFlow(t, `
filter:
  input: {scan: kv}
  cond: [is-null, [subquery, {project: {input: {filter: {input: {scan: big}, cond: [">", bv, 5000]}}, exprs: [bv]}}]]
`, physicalplan.DefaultConfig())
	require.Len(t, tf.mustRun(t), 5)

	tf = newTestFlow(t, `
filter:
  input: {scan: kv}
  cond: ["=", v, [subquery, {project: {input: {scan: big}, exprs: [bv]}}]]
`, physicalplan.DefaultConfig())
	_, err := tf.run(context.Background())
	require.True(t, errors.Is(err, ErrSubqueryRows), "%v", err)
}

func TestCodegenEquivalence(t *testing.T) {
	const query = `
order-by:
  input:
    aggregate:
      input:
        project:
          input: {filter: {input: {scan: big}, cond: [">", [+, bk, 1], 2]}}
          exprs: [bk, {expr: ["*", bv, 2], as: dv}]
      group-by: [bk]
      aggs: [{expr: [sum, dv], as: s}, {expr: [count, "*"], as: n}]
  cols: [bk]
`
	cfg := physicalplan.DefaultConfig()
	interpreted := newTestFlow(t, query, cfg)
	expected := interpreted.mustRun(t)
	require.Equal(t, []string{"(2, 802, 2)", "(3, 600, 1)", "(10, 2000, 1)", "(11, 2200, 1)"}, expected)

	metrics := execgen.MakeMetrics()
	compiled := newTestFlow(t, query, cfg)
	compiled.flowCtx.Compiler = execgen.NewCompiler(cfg.Codegen, execgen.NewCodeCache(16), &metrics)
	require.Equal(t, expected, compiled.mustRun(t))
	require.Greater(t, metrics.CompileCount.Count()+metrics.CacheHits.Count(), int64(0))
	require.Zero(t, metrics.Fallbacks.Count())
}

func TestFlowCancellation(t *testing.T) {
	tf := newTestFlow(t, `
join: {left: {scan: big}, right: {scan: small}, on: true}
`, physicalplan.DefaultConfig())
	tf.flowCtx.CancelCheckInterval = 1
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := tf.run(ctx)
	require.Error(t, err)
}

func TestHashRouter(t *testing.T) {
	ctx := context.Background()
	acc := mon.NewMonitor("test", 0, nil).MakeBoundAccount()
	r, err := makeRouter(physical.Hash(opt.ColList{2}, 4), opt.ColList{1, 2}, &acc)
	require.NoError(t, err)
	for i := 0; i < 100; i++ {
		require.NoError(t, r.push(ctx, tree.Datums{tree.NewDInt(tree.DInt(i)), tree.NewDInt(tree.DInt(i % 10))}))
	}
	outs := r.outputs()
	require.Len(t, outs, 4)
	// Every key is routed to exactly one output.
	seen := make(map[tree.DInt]int)
	var total int
	for p, rows := range outs {
		for _, row := range rows {
			k := *row[1].(*tree.DInt)
			if prev, ok := seen[k]; ok {
				require.Equal(t, prev, p)
			}
			seen[k] = p
			total++
		}
	}
	require.Len(t, seen, 10)
	require.Equal(t, 100, total)
	require.Greater(t, acc.Used(), int64(0))

	_, err = makeRouter(physical.Hash(opt.ColList{3}, 4), opt.ColList{1, 2}, &acc)
	require.Error(t, err)
}
