// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package xform_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/cockroachdb/datadriven"
	"github.com/cockroachdb/relcore/pkg/sql/opt"
	"github.com/cockroachdb/relcore/pkg/sql/opt/memo"
	"github.com/cockroachdb/relcore/pkg/sql/opt/optbuilder"
	"github.com/cockroachdb/relcore/pkg/sql/opt/testutils/testcat"
	"github.com/cockroachdb/relcore/pkg/sql/opt/xform"
	"github.com/stretchr/testify/require"
)

// TestOptimizer runs data-driven tests of the form:
//
//	optimize [no-reorder]
//	<yaml query>
//	----
//	<optimized plan>
func TestOptimizer(t *testing.T) {
	datadriven.Walk(t, "testdata", func(t *testing.T, path string) {
		catalog := testcat.New()
		datadriven.RunTest(t, path, func(t *testing.T, d *datadriven.TestData) string {
			switch d.Cmd {
			case "create-tables":
				if err := catalog.LoadYAML([]byte(d.Input)); err != nil {
					d.Fatalf(t, "%v", err)
				}
				return ""

			case "optimize":
				md := &opt.Metadata{}
				q, err := optbuilder.ParseQuery([]byte(d.Input))
				if err != nil {
					return fmt.Sprintf("error: %v\n", err)
				}
				e, err := optbuilder.New(md, catalog).Build(q)
				if err != nil {
					return fmt.Sprintf("error: %v\n", err)
				}
				cfg := xform.DefaultConfig()
				cfg.Strict = true
				if d.HasArg("no-reorder") {
					cfg.ReorderJoins = false
				}
				res, err := xform.New(md, cfg, nil).Optimize(context.Background(), e)
				if err != nil {
					return fmt.Sprintf("error: %v\n", err)
				}
				return memo.FormatExpr(res, memo.ExprFmtHideStats|memo.ExprFmtHideTypes, md)

			default:
				d.Fatalf(t, "unsupported command: %s", d.Cmd)
				return ""
			}
		})
	})
}

// starTables is a fact table with foreign keys into two dimension tables.
const starTables = `
- name: f
  columns: [{name: fk1, type: int}, {name: fk2, type: int}, {name: v, type: int}]
  stats: {row-count: 10000000, columns: {fk1: {distinct: 1000}, fk2: {distinct: 100}}}
- name: d1
  columns: [{name: id1, type: int}, {name: n1, type: string}]
  stats: {row-count: 1000, columns: {id1: {distinct: 1000}}}
- name: d2
  columns: [{name: id2, type: int}, {name: n2, type: string}]
  stats: {row-count: 100, columns: {id2: {distinct: 100}}}
`

// chainTables join as c - b - a, with a the smallest.
const chainTables = `
- name: a
  columns: [{name: aj, type: int}]
  stats: {row-count: 10, columns: {aj: {distinct: 10}}}
- name: b
  columns: [{name: bk, type: int}, {name: bj, type: int}]
  stats: {row-count: 1000, columns: {bk: {distinct: 1000}, bj: {distinct: 10}}}
- name: c
  columns: [{name: ck, type: int}]
  stats: {row-count: 1000000, columns: {ck: {distinct: 1000}}}
- name: nostats1
  columns: [{name: p, type: int}]
- name: nostats2
  columns: [{name: q, type: int}]
`

func optimize(t *testing.T, md *opt.Metadata, e memo.RelExpr, cfg xform.Config) (*xform.Optimizer, memo.RelExpr) {
	cfg.Strict = true
	o := xform.New(md, cfg, nil)
	res, err := o.Optimize(context.Background(), e)
	require.NoError(t, err)
	require.True(t, res.OutputCols().Equals(e.OutputCols()))
	return o, res
}

// joinLeaves returns the table names of the leaves of a tree of inner joins,
// from left to right.
func joinLeaves(t *testing.T, e memo.RelExpr) []string {
	switch t2 := e.(type) {
	case *memo.JoinExpr:
		return append(joinLeaves(t, t2.Left), joinLeaves(t, t2.Right)...)
	case *memo.ScanExpr:
		return []string{t2.Table.Name()}
	case *memo.ProjectExpr:
		return joinLeaves(t, t2.Input)
	case *memo.SelectExpr:
		return joinLeaves(t, t2.Input)
	}
	t.Fatalf("unexpected %T in join tree", e)
	return nil
}

func TestReorderStarSchema(t *testing.T) {
	md, e := buildQuery(t, starTables, `
join:
  left: {join: {left: {scan: d1}, right: {scan: d2}}}
  right: {scan: f}
  on: [and, ["=", fk1, id1], ["=", fk2, id2]]
`)
	o, res := optimize(t, md, e, xform.DefaultConfig())

	// The fact table is joined to its dimensions first. The dimension joins
	// are estimated to produce as many rows as the fact table, so they keep
	// their relative order.
	prj, ok := res.(*memo.ProjectExpr)
	require.True(t, ok, "expected a projection restoring the column order, found %T", res)
	require.Equal(t, []string{"f", "d1", "d2"}, joinLeaves(t, prj.Input))
	require.Equal(t, 1, o.Executor().Stats[xform.ReorderJoins].Effective)

	// Every join has an equality condition; the cross join is gone.
	var checkJoins func(e memo.RelExpr)
	checkJoins = func(e memo.RelExpr) {
		if join, ok := e.(*memo.JoinExpr); ok {
			require.False(t, memo.IsTrue(join.On), "cross join in %s", memo.FormatExpr(res, memo.ExprFmtHideStats, md))
			checkJoins(join.Left)
		}
	}
	checkJoins(prj.Input)
}

func TestReorderGreedy(t *testing.T) {
	md, e := buildQuery(t, chainTables, `
join:
  left: {join: {left: {scan: c}, right: {scan: b}, on: ["=", ck, bk]}}
  right: {scan: a}
  on: ["=", bj, aj]
`)
	_, res := optimize(t, md, e, xform.DefaultConfig())
	require.Equal(t, []string{"a", "b", "c"}, joinLeaves(t, res))
}

func TestReorderKeepsCheaperOriginal(t *testing.T) {
	md, e := buildQuery(t, chainTables, `
join:
  left: {join: {left: {scan: a}, right: {scan: b}, on: ["=", bj, aj]}}
  right: {scan: c}
  on: ["=", ck, bk]
`)
	o, res := optimize(t, md, e, xform.DefaultConfig())
	require.Equal(t, []string{"a", "b", "c"}, joinLeaves(t, res))
	require.IsType(t, &memo.JoinExpr{}, res)
	require.Equal(t, 0, o.Executor().Stats[xform.ReorderJoins].Effective)
}

func TestReorderSkipsUnknownStatistics(t *testing.T) {
	query := `
join:
  left: {join: {left: {scan: nostats1}, right: {scan: c}}}
  right: {scan: nostats2}
  on: ["=", p, q]
`
	catalog := loadCatalog(t, chainTables)
	md, e := buildQueryInCatalog(t, catalog, query)
	_, withReorder := optimize(t, md, e, xform.DefaultConfig())
	require.Equal(t, []string{"nostats1", "c", "nostats2"}, joinLeaves(t, withReorder))

	cfg := xform.DefaultConfig()
	cfg.ReorderJoins = false
	md, e = buildQueryInCatalog(t, catalog, query)
	o, without := optimize(t, md, e, cfg)
	require.True(t, memo.Equal(withReorder, without))
	for _, run := range o.Executor().Runs {
		require.NotEqual(t, "join reorder", run.Name)
	}
}

func TestOptimizeRejectsInvalidPlan(t *testing.T) {
	md, e := buildQuery(t, simpleTables, `{scan: t}`)
	bad := &memo.SelectExpr{Input: e, Filter: &memo.VariableExpr{Col: 42}}
	_, err := xform.New(md, xform.DefaultConfig(), nil).Optimize(context.Background(), bad)
	require.Error(t, err)
}
