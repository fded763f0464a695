// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package memo_test

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/relcore/pkg/sql/opt"
	"github.com/cockroachdb/relcore/pkg/sql/opt/memo"
	"github.com/cockroachdb/relcore/pkg/sql/opt/optbuilder"
	"github.com/cockroachdb/relcore/pkg/sql/opt/testutils/testcat"
	"github.com/cockroachdb/relcore/pkg/sql/sem/tree"
	"github.com/cockroachdb/relcore/pkg/sql/types"
	"github.com/stretchr/testify/require"
)

const testTables = `
- name: t
  columns: [{name: a, type: int}, {name: b, type: int}, {name: c, type: string}]
  stats:
    row-count: 1000
    columns:
      a: {distinct: 100, min: 1, max: 100}
      b: {distinct: 10, nulls: 100, min: 0, max: 9}
- name: small
  columns: [{name: k, type: int}, {name: v, type: string}]
  stats: {row-count: 10}
- name: big
  columns: [{name: k, type: int}, {name: w, type: int}]
  stats: {row-count: 10000000}
- name: nostats
  columns: [{name: x, type: int}]
`

func newCatalog(t *testing.T) *testcat.Catalog {
	catalog := testcat.New()
	require.NoError(t, catalog.LoadYAML([]byte(testTables)))
	return catalog
}

func build(t *testing.T, catalog *testcat.Catalog, md *opt.Metadata, query string) memo.RelExpr {
	t.Helper()
	q, err := optbuilder.ParseQuery([]byte(query))
	require.NoError(t, err)
	e, err := optbuilder.New(md, catalog).Build(q)
	require.NoError(t, err)
	return e
}

func rowCount(t *testing.T, sb *memo.StatisticsBuilder, e memo.RelExpr) float64 {
	t.Helper()
	rows, ok := sb.Build(e).RowCount.Get()
	require.True(t, ok, "row count of %s is unknown", e.Op())
	return rows
}

func TestCanonicalizeIsIdempotent(t *testing.T) {
	catalog := newCatalog(t)
	for _, query := range []string{
		`scan: t`,
		`{filter: {input: {scan: t}, cond: [and, ["=", b, 1], [">", a, 2], [or, ["=", a, 5], ["=", 3, a]]]}}`,
		`{project: {input: {scan: t}, exprs: [c, {expr: ["+", 1, a], as: x}]}}`,
		`{join: {left: {scan: small}, right: {scan: big}, on: ["=", big.k, small.k]}}`,
		`{aggregate: {input: {scan: t}, group-by: [c], aggs: [[sum, b], {expr: ["*", 2, [count, "*"]], as: n}]}}`,
		`{filter: {input: {scan: small}, cond: [exists, {filter: {input: {scan: big}, cond: ["=", big.k, small.k]}}]}}`,
		`{union-all: [{project: {input: {scan: t}, exprs: [a]}}, {project: {input: {scan: big}, exprs: [w]}}]}`,
		`{limit: {input: {order-by: {input: {scan: t}, cols: [-b, a]}}, count: 3}}`,
	} {
		t.Run(query, func(t *testing.T) {
			e := build(t, catalog, &opt.Metadata{}, query)
			once := memo.Canonicalize(e)
			twice := memo.Canonicalize(once)
			require.True(t, memo.Equal(once, twice), "%s\n%s",
				memo.FormatExpr(once, memo.ExprFmtHideStats, nil), memo.FormatExpr(twice, memo.ExprFmtHideStats, nil))
			require.Equal(t, memo.Fingerprint(e), memo.Fingerprint(once))
		})
	}
}

func TestFingerprintIgnoresCosmeticDifferences(t *testing.T) {
	catalog := newCatalog(t)

	md1 := &opt.Metadata{}
	e1 := build(t, catalog, md1,
		`{filter: {input: {scan: t}, cond: [and, ["=", a, 1], [">", b, 2]]}}`)

	// Shift the column ids of the second plan and write the conjuncts and
	// comparison operands in a different order.
	md2 := &opt.Metadata{}
	for i := 0; i < 3; i++ {
		md2.AddColumn("pad", types.Int)
	}
	e2 := build(t, catalog, md2,
		`{filter: {input: {scan: t}, cond: [and, ["<", 2, b], ["=", 1, a]]}}`)

	require.False(t, memo.Equal(e1, e2))
	require.True(t, memo.Equal(memo.Canonicalize(e1), memo.Canonicalize(e2)))
	require.Equal(t, memo.Fingerprint(e1), memo.Fingerprint(e2))

	e3 := build(t, catalog, &opt.Metadata{},
		`{filter: {input: {scan: t}, cond: [and, ["=", a, 2], [">", b, 2]]}}`)
	require.NotEqual(t, memo.Fingerprint(e1), memo.Fingerprint(e3))
}

func TestFilterNeverIncreasesRowCount(t *testing.T) {
	catalog := newCatalog(t)
	for _, cond := range []string{
		`["=", a, 5]`,
		`["!=", a, 5]`,
		`["<", a, 51]`,
		`[">=", a, 1000]`,
		`[is-null, b]`,
		`[not, [is-null, b]]`,
		`[or, ["=", a, 5], ["=", b, 3]]`,
		`[and, ["=", a, 5], ["=", a, 6]]`,
		`["=", a, b]`,
		`["=", ["+", a, 1], 7]`,
		`true`,
		`false`,
	} {
		t.Run(cond, func(t *testing.T) {
			md := &opt.Metadata{}
			e := build(t, catalog, md, `{filter: {input: {scan: t}, cond: `+cond+`}}`)
			sb := memo.NewStatisticsBuilder(md, memo.DefaultUnknownSelectivity)
			sel := e.(*memo.SelectExpr)
			in := sb.Build(sel.Input)
			selectivity := sb.Selectivity(sel.Filter, in)
			require.GreaterOrEqual(t, selectivity, 0.0)
			require.LessOrEqual(t, selectivity, 1.0)
			require.LessOrEqual(t, rowCount(t, sb, e), rowCount(t, sb, sel.Input))
		})
	}
}

func TestSelectivityEstimates(t *testing.T) {
	catalog := newCatalog(t)
	testCases := []struct {
		cond string
		rows float64
	}{
		{`["=", a, 5]`, 10},
		{`["=", a, 500]`, 0},
		{`[is-null, b]`, 100},
		{`false`, 0},
		{`true`, 1000},
		{`["=", ["+", a, 1], 7]`, 500},
	}
	for _, tc := range testCases {
		t.Run(tc.cond, func(t *testing.T) {
			md := &opt.Metadata{}
			e := build(t, catalog, md, `{filter: {input: {scan: t}, cond: `+tc.cond+`}}`)
			sb := memo.NewStatisticsBuilder(md, memo.DefaultUnknownSelectivity)
			require.InDelta(t, tc.rows, rowCount(t, sb, e), 1e-6)
		})
	}
}

func TestJoinOfSmallAndLargeTable(t *testing.T) {
	catalog := newCatalog(t)
	md := &opt.Metadata{}
	e := build(t, catalog, md,
		`{join: {left: {scan: small}, right: {scan: big}, on: ["=", small.k, big.k]}}`)
	sb := memo.NewStatisticsBuilder(md, memo.DefaultUnknownSelectivity)
	join := e.(*memo.JoinExpr)

	require.Equal(t, 10.0, rowCount(t, sb, join.Left))
	require.Equal(t, 1e7, rowCount(t, sb, join.Right))
	require.Less(t, sb.Build(join.Left).SizeBytes, sb.Build(join.Right).SizeBytes)

	// Keys with unknown distinct counts are assumed to be unique, so every
	// row of the small side matches at most one row.
	require.InDelta(t, 10, rowCount(t, sb, join), 1e-6)
}

func TestJoinTypeEstimates(t *testing.T) {
	catalog := newCatalog(t)
	for _, tc := range []struct {
		typ  string
		rows float64
	}{
		{"inner", 10},
		{"left", 10},
		{"right", 1e7},
		{"full", 1e7},
		{"semi", 10},
		{"anti", 0},
	} {
		t.Run(tc.typ, func(t *testing.T) {
			md := &opt.Metadata{}
			e := build(t, catalog, md, `{join: {type: `+tc.typ+
				`, left: {scan: small}, right: {scan: big}, on: ["=", small.k, big.k]}}`)
			sb := memo.NewStatisticsBuilder(md, memo.DefaultUnknownSelectivity)
			require.InDelta(t, tc.rows, rowCount(t, sb, e), 1e-6)
		})
	}
}

func TestUnknownStatisticsPropagate(t *testing.T) {
	catalog := newCatalog(t)
	md := &opt.Metadata{}
	e := build(t, catalog, md, `
project:
  input:
    filter: {input: {scan: nostats}, cond: [">", x, 1]}
  exprs: [x]
`)
	sb := memo.NewStatisticsBuilder(md, memo.DefaultUnknownSelectivity)
	s := sb.Build(e)
	require.False(t, s.RowCount.Known())
	require.False(t, s.SizeKnown())

	// A limit bounds an unknown row count.
	lim := build(t, catalog, md, `{limit: {input: {scan: nostats}, count: 5}}`)
	require.Equal(t, 5.0, rowCount(t, sb, lim))

	// A scalar aggregation always returns one row.
	agg := build(t, catalog, md, `{aggregate: {input: {scan: nostats}, aggs: [[count, "*"]]}}`)
	require.Equal(t, 1.0, rowCount(t, sb, agg))
}

func TestStatisticsAreMemoized(t *testing.T) {
	catalog := newCatalog(t)
	md := &opt.Metadata{}
	e := build(t, catalog, md, `{filter: {input: {scan: t}, cond: ["=", ["+", a, 1], 7]}}`)
	first := memo.NewStatisticsBuilder(md, 0.5).Build(e)
	second := memo.NewStatisticsBuilder(md, 0.1).Build(e)
	require.Same(t, first, second)
	require.Same(t, first, e.Statistics())
}

func TestCheckExpr(t *testing.T) {
	catalog := newCatalog(t)
	md := &opt.Metadata{}
	scan := build(t, catalog, md, `scan: small`).(*memo.ScanExpr)
	k, v := scan.Cols[0], scan.Cols[1]
	other := md.AddColumn("other", types.Int)

	testCases := []struct {
		name string
		e    memo.RelExpr
		err  string
	}{
		{
			name: "passthrough not produced",
			e:    &memo.ProjectExpr{Input: scan, Passthrough: opt.ColList{k, other}},
			err:  "passthrough column other:3 is not produced by the input",
		},
		{
			name: "unbound reference",
			e: &memo.SelectExpr{Input: scan, Filter: &memo.ComparisonExpr{
				Operator: tree.EQ, Left: &memo.VariableExpr{Col: other, Typ: types.Int}, Right: memo.NewConst(tree.NewDInt(1)),
			}},
			err: "column reference other:3 cannot be resolved",
		},
		{
			name: "non-boolean filter",
			e:    &memo.SelectExpr{Input: scan, Filter: &memo.VariableExpr{Col: k, Typ: types.Int}},
			err:  "expected boolean expression, found type int",
		},
		{
			name: "aggregate in filter",
			e: &memo.SelectExpr{Input: scan, Filter: &memo.ComparisonExpr{
				Operator: tree.EQ,
				Left:     &memo.AggregateExpr{Name: "count_rows", Typ: types.Int},
				Right:    memo.NewConst(tree.NewDInt(1)),
			}},
			err: "aggregate function count_rows is not allowed in this context",
		},
		{
			name: "grouping column not produced",
			e:    &memo.GroupByExpr{Input: scan, GroupingCols: opt.ColList{other}},
			err:  "grouping column other:3 is not produced by the input",
		},
		{
			name: "ordering column not produced",
			e:    &memo.SortExpr{Input: scan, Ordering: opt.Ordering{opt.MakeOrderingColumn(other, false)}},
			err:  "ordering column other:3 is not produced by the input",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := memo.CheckExpr(md, tc.e)
			require.Error(t, err)
			require.True(t, errors.Is(err, memo.ErrUnresolved), "%v", err)
			require.Contains(t, err.Error(), tc.err)
		})
	}

	require.NoError(t, memo.CheckExpr(md, &memo.ProjectExpr{Input: scan, Passthrough: opt.ColList{v}}))
}

func TestTransform(t *testing.T) {
	catalog := newCatalog(t)
	md := &opt.Metadata{}
	e := build(t, catalog, md,
		`{project: {input: {filter: {input: {scan: t}, cond: ["=", a, 1]}}, exprs: [{expr: ["+", a, b], as: s}]}}`)

	// An identity transformation returns the same tree.
	same := memo.Transform(e, func(e opt.Expr) opt.Expr { return e })
	require.True(t, same == opt.Expr(e))

	// Replacing constants rebuilds only the affected path.
	two := memo.NewConst(tree.NewDInt(2))
	res := memo.Transform(e, func(e opt.Expr) opt.Expr {
		if c, ok := e.(*memo.ConstExpr); ok && c.Value.Compare(tree.NewDInt(1)) == 0 {
			return two
		}
		return e
	}).(*memo.ProjectExpr)
	require.False(t, memo.Equal(e, res))
	orig := e.(*memo.ProjectExpr)
	require.True(t, orig.Input.(*memo.SelectExpr).Input == res.Input.(*memo.SelectExpr).Input)
	require.True(t, orig.Projections[0].Expr == res.Projections[0].Expr)
	require.Equal(t, "a:1 = 2", memo.FormatScalar(res.Input.(*memo.SelectExpr).Filter, md))
}

func TestOperatorExprs(t *testing.T) {
	a := &memo.VariableExpr{Col: 1, Typ: types.Int}
	one := memo.NewConst(tree.NewDInt(1))

	lt := &memo.ComparisonExpr{Operator: tree.LT, Left: a, Right: one}
	gt := &memo.ComparisonExpr{Operator: tree.GT, Left: a, Right: one}
	require.Equal(t, opt.ComparisonOp, lt.Op())
	require.False(t, memo.Equal(lt, gt))
	require.True(t, memo.Equal(lt, &memo.ComparisonExpr{Operator: tree.LT, Left: a, Right: one}))

	plus := &memo.BinaryExpr{Operator: tree.Plus, Left: a, Right: one, Typ: types.Int}
	minus := &memo.BinaryExpr{Operator: tree.Minus, Left: a, Right: one, Typ: types.Int}
	require.Equal(t, opt.BinaryOp, plus.Op())
	require.False(t, memo.Equal(plus, minus))
}
