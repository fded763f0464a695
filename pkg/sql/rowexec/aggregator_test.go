// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package rowexec_test

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"testing"

	"github.com/cockroachdb/relcore/pkg/sql/execgen"
	"github.com/cockroachdb/relcore/pkg/sql/physicalplan"
	"github.com/cockroachdb/relcore/pkg/sql/rowexec"
	"github.com/cockroachdb/relcore/pkg/sql/sem/tree"
	"github.com/stretchr/testify/require"
)

const kvTable = `
- name: kv
  columns: [{name: k, type: string}, {name: v, type: int}]
  rows: [[a, 1], [b, 2], [a, 3], [b, 4], [a, 5]]
- name: kv2
  columns: [{name: k, type: string}, {name: v, type: int}]
  partitions: [[[a, 1], [b, 2], [a, 3]], [[b, 4], [a, 5]]]
- name: nums
  columns: [{name: g, type: int}, {name: v, type: int}, {name: s, type: string}]
  partitions: [[]]
`

func kvRows() []tree.Datums {
	return []tree.Datums{row("a", 1), row("b", 2), row("a", 3), row("b", 4), row("a", 5)}
}

func aggregate(
	t *testing.T, flowCtx *rowexec.FlowCtx, n *physicalplan.AggregateNode, input rowexec.RowSource,
) []string {
	t.Helper()
	agg, err := rowexec.NewHashAggregator(context.Background(), flowCtx, n, input)
	require.NoError(t, err)
	return drain(t, agg)
}

func TestHashAggregatorSum(t *testing.T) {
	tp := planQuery(t, kvTable, `
aggregate: {input: {scan: kv}, group-by: [k], aggs: [{expr: [sum, v], as: s}]}
`, physicalplan.DefaultConfig())
	n := findOne[*physicalplan.AggregateNode](t, tp.plan.Root)
	require.Equal(t, []physicalplan.AggregateMode{physicalplan.Complete}, n.Modes())

	expected := []string{`("a", 9)`, `("b", 6)`}
	require.Equal(t, expected,
		aggregate(t, newFlowCtx(tp.md), n, rowexec.NewTableReader(tp.table(t, "kv"), 0)))

	// The result does not depend on the order of the input.
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 10; i++ {
		rows := kvRows()
		rng.Shuffle(len(rows), func(i, j int) { rows[i], rows[j] = rows[j], rows[i] })
		require.Equal(t, expected, aggregate(t, newFlowCtx(tp.md), n, rowexec.NewRowsSource(rows)))
	}
}

func TestHashAggregatorPartialFinal(t *testing.T) {
	tp := planQuery(t, kvTable, `
aggregate:
  input: {scan: kv2}
  group-by: [k]
  aggs: [{expr: [sum, v], as: s}, {expr: [avg, v], as: a}, {expr: [count, "*"], as: n}]
`, physicalplan.DefaultConfig())
	var final, partial *physicalplan.AggregateNode
	physicalplan.Walk(tp.plan.Root, func(n physicalplan.Node) {
		if agg, ok := n.(*physicalplan.AggregateNode); ok {
			if agg.FinalStage() {
				final = agg
			} else {
				partial = agg
			}
		}
	})
	require.NotNil(t, final)
	require.NotNil(t, partial)

	ctx := context.Background()
	flowCtx := newFlowCtx(tp.md)
	var buffers []tree.Datums
	tab := tp.table(t, "kv2")
	for p := 0; p < tab.PartitionCount(); p++ {
		agg, err := rowexec.NewHashAggregator(ctx, flowCtx, partial, rowexec.NewTableReader(tab, p))
		require.NoError(t, err)
		rows, err := rowexec.Materialize(ctx, agg)
		require.NoError(t, err)
		buffers = append(buffers, rows...)
	}
	// Both partitions have a group for "a" and "b".
	require.Len(t, buffers, 4)

	require.Equal(t, []string{`("a", 9, 3.0, 3)`, `("b", 6, 3.0, 2)`},
		aggregate(t, flowCtx, final, rowexec.NewRowsSource(buffers)))
}

func TestHashAggregatorFilter(t *testing.T) {
	tp := planQuery(t, kvTable, `
aggregate:
  input: {scan: kv}
  group-by: [k]
  aggs:
  - {expr: {call: sum, args: [v], filter: [">", v, 2]}, as: big}
  - {expr: {call: count, args: [v], filter: ["<", v, 2]}, as: small}
`, physicalplan.DefaultConfig())
	n := findOne[*physicalplan.AggregateNode](t, tp.plan.Root)
	require.Equal(t, []string{`("a", 8, 1)`, `("b", 4, 0)`},
		aggregate(t, newFlowCtx(tp.md), n, rowexec.NewRowsSource(kvRows())))
}

func TestHashAggregatorImperative(t *testing.T) {
	tp := planQuery(t, kvTable, `
aggregate:
  input: {scan: kv}
  group-by: [k]
  aggs: [{expr: [string_agg, k, [str, "-"]], as: ks}, {expr: [max, v], as: m}]
`, physicalplan.DefaultConfig())
	n := findOne[*physicalplan.AggregateNode](t, tp.plan.Root)
	require.True(t, n.HasImperative())
	require.Zero(t, physicalplan.Stage(n))
	require.Equal(t, []string{`("a", "a-a-a", 5)`, `("b", "b-b", 4)`},
		aggregate(t, newFlowCtx(tp.md), n, rowexec.NewRowsSource(kvRows())))
}

func TestHashAggregatorEmptyInput(t *testing.T) {
	for _, tc := range []struct {
		query    string
		expected []string
	}{
		{
			// Without grouping columns there is always one group.
			query: `
aggregate: {input: {scan: kv}, aggs: [{expr: [count, "*"], as: n}, {expr: [sum, v], as: s}]}
`,
			expected: []string{`(0, NULL)`},
		},
		{
			query: `
aggregate: {input: {scan: kv}, group-by: [k], aggs: [{expr: [count, "*"], as: n}]}
`,
		},
		{
			query: `
aggregate: {input: {scan: kv}, group-by: [k]}
`,
		},
	} {
		t.Run("", func(t *testing.T) {
			tp := planQuery(t, kvTable, tc.query, physicalplan.DefaultConfig())
			n := findOne[*physicalplan.AggregateNode](t, tp.plan.Root)
			require.Equal(t, tc.expected, aggregate(t, newFlowCtx(tp.md), n, rowexec.NewRowsSource(nil)))
		})
	}
}

func TestHashAggregatorGroupingOnly(t *testing.T) {
	tp := planQuery(t, kvTable, `
aggregate: {input: {scan: kv}, group-by: [k]}
`, physicalplan.DefaultConfig())
	n := findOne[*physicalplan.AggregateNode](t, tp.plan.Root)
	require.Equal(t, []string{`("a")`, `("b")`},
		aggregate(t, newFlowCtx(tp.md), n, rowexec.NewRowsSource(kvRows())))
}

// numsRows returns rows of 500 groups, with NULL values in group 7.
func numsRows() []tree.Datums {
	var rows []tree.Datums
	for i := 0; i < 5000; i++ {
		g := (i * 7919) % 500
		var v interface{} = i
		if g == 7 {
			v = nil
		}
		rows = append(rows, row(g, v, "x"))
	}
	return rows
}

func TestHashAggregatorSpill(t *testing.T) {
	for _, tc := range []struct {
		name string
		aggs string
	}{
		{
			name: "fixed-width",
			aggs: `[{expr: [sum, v], as: s}, {expr: [count, "*"], as: n}, {expr: [min, v], as: lo},
                {expr: [avg, v], as: a}]`,
		},
		{
			name: "imperative",
			aggs: `[{expr: [string_agg, s, [str, ""]], as: ss}, {expr: [count, v], as: n}]`,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			tp := planQuery(t, kvTable, fmt.Sprintf(`
aggregate: {input: {scan: nums}, group-by: [g], aggs: %s}
`, tc.aggs), physicalplan.DefaultConfig())
			n := findOne[*physicalplan.AggregateNode](t, tp.plan.Root)

			expected := aggregate(t, newFlowCtx(tp.md), n, rowexec.NewRowsSource(numsRows()))
			require.Len(t, expected, 500)

			flowCtx := newFlowCtx(tp.md)
			flowCtx.WorkMem = 4 << 10
			flowCtx.PageSize = 1 << 10
			actual := aggregate(t, flowCtx, n, rowexec.NewRowsSource(numsRows()))
			require.Greater(t, flowCtx.Metrics.SpillCount.Count(), int64(0))
			require.Greater(t, flowCtx.Metrics.SpillBytes.Count(), int64(0))
			require.Equal(t, expected, actual)
		})
	}
}

func TestHashAggregatorSpillWithoutTempStorage(t *testing.T) {
	tp := planQuery(t, kvTable, `
aggregate: {input: {scan: nums}, group-by: [g], aggs: [{expr: [sum, v], as: s}]}
`, physicalplan.DefaultConfig())
	n := findOne[*physicalplan.AggregateNode](t, tp.plan.Root)
	flowCtx := newFlowCtx(tp.md)
	flowCtx.WorkMem = 4 << 10
	flowCtx.PageSize = 1 << 10
	flowCtx.TempFS = nil

	ctx := context.Background()
	agg, err := rowexec.NewHashAggregator(ctx, flowCtx, n, rowexec.NewRowsSource(numsRows()))
	require.NoError(t, err)
	defer agg.Close(ctx)
	_, err = rowexec.Materialize(ctx, agg)
	require.Error(t, err)
}

func TestHashAggregatorCodegen(t *testing.T) {
	tp := planQuery(t, kvTable, `
aggregate:
  input: {scan: nums}
  group-by: [g]
  aggs:
  - {expr: [sum, v], as: s}
  - {expr: {call: count, args: [v], filter: [">", v, 100]}, as: n}
  - {expr: [max, v], as: m}
`, physicalplan.DefaultConfig())
	n := findOne[*physicalplan.AggregateNode](t, tp.plan.Root)
	require.NotZero(t, physicalplan.Stage(n))

	interpreted := aggregate(t, newFlowCtx(tp.md), n, rowexec.NewRowsSource(numsRows()))

	metrics := execgen.MakeMetrics()
	flowCtx := newFlowCtx(tp.md)
	flowCtx.Compiler = execgen.NewCompiler(execgen.DefaultConfig(), execgen.NewCodeCache(16), &metrics)
	compiled := aggregate(t, flowCtx, n, rowexec.NewRowsSource(numsRows()))
	require.Equal(t, interpreted, compiled)
	require.Greater(t, metrics.CompileCount.Count(), int64(0))
	require.Zero(t, metrics.Fallbacks.Count())

	// The group with only NULL values has a NULL sum and maximum.
	var nullGroup []string
	for _, r := range compiled {
		if strings.HasPrefix(r, "(7,") {
			nullGroup = append(nullGroup, r)
		}
	}
	require.Equal(t, []string{"(7, NULL, 0, NULL)"}, nullGroup)
	require.True(t, sort.SliceIsSorted(compiled, func(i, j int) bool {
		return groupOf(compiled[i]) < groupOf(compiled[j])
	}))
}

func groupOf(r string) int {
	var g int
	_, _ = fmt.Sscanf(r, "(%d,", &g)
	return g
}
