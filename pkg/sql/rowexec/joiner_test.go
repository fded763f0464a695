// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package rowexec_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/cockroachdb/relcore/pkg/sql/physicalplan"
	"github.com/cockroachdb/relcore/pkg/sql/rowflow"
	"github.com/stretchr/testify/require"
)

// The sizes in the statistics of the join tables make r a candidate for
// broadcast and shuffle hash joins.
const joinTables = `
- name: l
  columns: [{name: a, type: int}, {name: b, type: string}]
  partitions: [[[1, x], [2, u], [null, k]], [[2, z], [3, w]]]
  stats: {row-count: 1000000, size-bytes: 100000000}
- name: r
  columns: [{name: c, type: int}, {name: d, type: string}]
  partitions: [[[2, p], [3, q], [null, m]], [[3, s], [4, t]]]
  stats: {row-count: 100, size-bytes: 10000}
`

func joinConfigs() map[string]physicalplan.Config {
	broadcast := physicalplan.DefaultConfig()

	shuffle := physicalplan.DefaultConfig()
	shuffle.BroadcastThreshold = 5000
	shuffle.PreferSortMergeJoin = false

	merge := physicalplan.DefaultConfig()
	merge.BroadcastThreshold = -1

	return map[string]physicalplan.Config{
		"broadcast-hash": broadcast,
		"shuffle-hash":   shuffle,
		"sort-merge":     merge,
	}
}

// runQuery plans and runs a query, and returns its formatted rows.
func runQuery(t *testing.T, tables, query string, cfg physicalplan.Config) ([]string, testPlan) {
	t.Helper()
	tp := planQuery(t, tables, query, cfg)
	rows, err := rowflow.NewFlow(newFlowCtx(tp.md), tp.plan).Run(context.Background())
	require.NoError(t, err)
	res := make([]string, len(rows))
	for i, r := range rows {
		res[i] = r.String()
	}
	return res, tp
}

func TestEquiJoins(t *testing.T) {
	inner := []string{
		`(2, "u", 2, "p")`, `(2, "z", 2, "p")`, `(3, "w", 3, "q")`, `(3, "w", 3, "s")`,
	}
	leftOnly := []string{`(1, "x", NULL, NULL)`, `(NULL, "k", NULL, NULL)`}
	rightOnly := []string{`(NULL, NULL, 4, "t")`, `(NULL, NULL, NULL, "m")`}
	concat := func(lists ...[]string) []string {
		var res []string
		for _, l := range lists {
			res = append(res, l...)
		}
		return res
	}

	for _, tc := range []struct {
		typ      string
		expected []string
	}{
		{typ: "inner", expected: inner},
		{typ: "left", expected: concat(inner, leftOnly)},
		{typ: "right", expected: concat(inner, rightOnly)},
		{typ: "full", expected: concat(inner, leftOnly, rightOnly)},
		{typ: "semi", expected: []string{`(2, "u")`, `(2, "z")`, `(3, "w")`}},
		{typ: "anti", expected: []string{`(1, "x")`, `(NULL, "k")`}},
	} {
		for name, cfg := range joinConfigs() {
			t.Run(fmt.Sprintf("%s/%s", tc.typ, name), func(t *testing.T) {
				rows, _ := runQuery(t, joinTables, fmt.Sprintf(`
join: {type: %s, left: {scan: l}, right: {scan: r}, on: ["=", a, c]}
`, tc.typ), cfg)
				require.ElementsMatch(t, tc.expected, rows)
			})
		}
	}
}

func TestJoinStrategies(t *testing.T) {
	const query = `
join: {left: {scan: l}, right: {scan: r}, on: ["=", a, c]}
`
	cfgs := joinConfigs()

	tp := planQuery(t, joinTables, query, cfgs["broadcast-hash"])
	hj := findOne[*physicalplan.HashJoinNode](t, tp.plan.Root)
	require.True(t, hj.Broadcast)
	require.True(t, hj.BuildRight)

	tp = planQuery(t, joinTables, query, cfgs["shuffle-hash"])
	hj = findOne[*physicalplan.HashJoinNode](t, tp.plan.Root)
	require.False(t, hj.Broadcast)
	require.True(t, hj.BuildRight)

	tp = planQuery(t, joinTables, query, cfgs["sort-merge"])
	findOne[*physicalplan.MergeJoinNode](t, tp.plan.Root)
}

func TestJoinResidualFilter(t *testing.T) {
	for name, cfg := range joinConfigs() {
		t.Run(name, func(t *testing.T) {
			rows, _ := runQuery(t, joinTables, `
join: {type: left, left: {scan: l}, right: {scan: r}, on: [and, ["=", a, c], ["!=", d, [str, q]]]}
`, cfg)
			require.ElementsMatch(t, []string{
				`(1, "x", NULL, NULL)`, `(2, "u", 2, "p")`, `(NULL, "k", NULL, NULL)`,
				`(2, "z", 2, "p")`, `(3, "w", 3, "s")`,
			}, rows)
		})
	}
}

func TestNestedLoopJoin(t *testing.T) {
	match := `(3, "w", 2, "p")`
	unmatchedLeft := []string{
		`(1, "x", NULL, NULL)`, `(2, "u", NULL, NULL)`, `(NULL, "k", NULL, NULL)`, `(2, "z", NULL, NULL)`,
	}
	unmatchedRight := []string{
		`(NULL, NULL, 3, "q")`, `(NULL, NULL, NULL, "m")`, `(NULL, NULL, 3, "s")`, `(NULL, NULL, 4, "t")`,
	}
	for _, tc := range []struct {
		typ      string
		expected []string
	}{
		{typ: "inner", expected: []string{match}},
		{typ: "left", expected: append([]string{match}, unmatchedLeft...)},
		{typ: "full", expected: append(append([]string{match}, unmatchedLeft...), unmatchedRight...)},
		{typ: "anti", expected: []string{`(1, "x")`, `(2, "u")`, `(NULL, "k")`, `(2, "z")`}},
	} {
		t.Run(tc.typ, func(t *testing.T) {
			rows, tp := runQuery(t, joinTables, fmt.Sprintf(`
join: {type: %s, left: {scan: l}, right: {scan: r}, on: [">", a, c]}
`, tc.typ), physicalplan.DefaultConfig())
			findOne[*physicalplan.NestedLoopJoinNode](t, tp.plan.Root)
			require.ElementsMatch(t, tc.expected, rows)
		})
	}
}

func TestCartesianProduct(t *testing.T) {
	cfg := physicalplan.DefaultConfig()
	cfg.BroadcastThreshold = -1

	rows, tp := runQuery(t, joinTables, `
join: {left: {scan: l}, right: {scan: r}, on: true}
`, cfg)
	cp := findOne[*physicalplan.CartesianProductNode](t, tp.plan.Root)
	require.Equal(t, 4, cp.Partitioning().NumPartitions())
	require.Len(t, rows, 25)

	rows, _ = runQuery(t, joinTables, `
join: {left: {scan: l}, right: {scan: r}, on: [">", a, c]}
`, cfg)
	require.Equal(t, []string{`(3, "w", 2, "p")`}, rows)
}
