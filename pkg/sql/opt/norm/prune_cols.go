// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package norm

import (
	"github.com/cockroachdb/relcore/pkg/sql/opt"
	"github.com/cockroachdb/relcore/pkg/sql/opt/memo"
	"github.com/cockroachdb/relcore/pkg/sql/sem/tree"
)

// pruneColumns removes the synthesized columns, aggregates and constant
// columns that nothing above them references. The root of the plan, and of
// every subquery plan, keeps all of its output columns in order. Scans are
// not wrapped in projections; they always produce all of the table's
// columns.
func (c *CustomFuncs) pruneColumns(e memo.RelExpr) memo.RelExpr {
	return c.prune(e, c.OutputCols(e))
}

// prune returns an expression equivalent to e whose output includes at least
// the needed columns, or e itself if there is nothing to remove.
func (c *CustomFuncs) prune(e memo.RelExpr, needed opt.ColSet) memo.RelExpr {
	switch t := e.(type) {
	case *memo.ScanExpr:
		return e

	case *memo.ValuesExpr:
		return c.pruneValues(t, needed)

	case *memo.SelectExpr:
		filter := c.pruneScalar(t.Filter)
		input := c.prune(t.Input, needed.Union(memo.ScalarCols(filter)))
		return c.replaceChildren(e, input, filter)

	case *memo.ProjectExpr:
		var passthrough opt.ColList
		var projections []memo.ProjectionItem
		var inputNeeded opt.ColSet
		for _, col := range t.Passthrough {
			if needed.Contains(col) {
				passthrough = append(passthrough, col)
				inputNeeded.Add(col)
			}
		}
		for _, item := range t.Projections {
			if needed.Contains(item.Col) {
				expr := c.pruneScalar(item.Expr)
				projections = append(projections, memo.ProjectionItem{Col: item.Col, Expr: expr})
				inputNeeded.UnionWith(memo.ScalarCols(expr))
			}
		}
		input := c.prune(t.Input, inputNeeded)
		if len(passthrough) == len(t.Passthrough) && len(projections) == len(t.Projections) {
			children := make([]opt.Expr, 0, 1+len(projections))
			children = append(children, input)
			for i := range projections {
				children = append(children, projections[i].Expr)
			}
			return memo.ReplaceChildren(e, children).(memo.RelExpr)
		}
		return &memo.ProjectExpr{Input: input, Passthrough: passthrough, Projections: projections}

	case *memo.JoinExpr:
		on := c.pruneScalar(t.On)
		all := needed.Union(memo.ScalarCols(on))
		left := c.prune(t.Left, all.Intersection(c.OutputCols(t.Left)))
		right := c.prune(t.Right, all.Intersection(c.OutputCols(t.Right)))
		return c.replaceChildren(e, left, right, on)

	case *memo.GroupByExpr:
		var aggs []memo.AggregationItem
		var inputNeeded opt.ColSet
		for _, col := range t.GroupingCols {
			inputNeeded.Add(col)
		}
		for _, item := range t.Aggregations {
			if needed.Contains(item.Col) {
				agg := c.pruneScalar(item.Agg).(*memo.AggregateExpr)
				aggs = append(aggs, memo.AggregationItem{Col: item.Col, Agg: agg})
				inputNeeded.UnionWith(memo.ScalarCols(agg))
			}
		}
		input := c.prune(t.Input, inputNeeded)
		if len(aggs) == len(t.Aggregations) {
			children := make([]opt.Expr, 0, 1+len(aggs))
			children = append(children, input)
			for i := range aggs {
				children = append(children, aggs[i].Agg)
			}
			return memo.ReplaceChildren(e, children).(memo.RelExpr)
		}
		return &memo.GroupByExpr{Input: input, GroupingCols: t.GroupingCols, Aggregations: aggs}

	case *memo.UnionAllExpr:
		return c.pruneUnion(t, needed)

	case *memo.LimitExpr:
		return c.replaceChildren(e, c.prune(t.Input, needed))

	case *memo.SortExpr:
		return c.replaceChildren(e, c.prune(t.Input, needed.Union(t.Ordering.ColSet())))
	}
	return e
}

func (c *CustomFuncs) replaceChildren(e memo.RelExpr, children ...opt.Expr) memo.RelExpr {
	return memo.ReplaceChildren(e, children).(memo.RelExpr)
}

// pruneScalar prunes the plans of the subqueries embedded in a scalar
// expression, each as a root.
func (c *CustomFuncs) pruneScalar(e memo.ScalarExpr) memo.ScalarExpr {
	if !memo.ContainsSubquery(e) {
		return e
	}
	return memo.TransformScalar(e, func(e memo.ScalarExpr) memo.ScalarExpr {
		switch t := e.(type) {
		case *memo.ExistsExpr:
			return memo.ReplaceChildren(t, []opt.Expr{c.pruneColumns(t.Input)}).(memo.ScalarExpr)
		case *memo.SubqueryExpr:
			return memo.ReplaceChildren(t, []opt.Expr{c.pruneColumns(t.Input)}).(memo.ScalarExpr)
		}
		return e
	})
}

// pruneValues removes the unneeded columns of a Values. At least one column
// is always kept, so that the rows remain distinguishable from no rows.
func (c *CustomFuncs) pruneValues(v *memo.ValuesExpr, needed opt.ColSet) memo.RelExpr {
	var keep []int
	for i, col := range v.Cols {
		if needed.Contains(col) {
			keep = append(keep, i)
		}
	}
	if len(keep) == 0 && len(v.Cols) > 0 {
		keep = []int{0}
	}
	if len(keep) == len(v.Cols) {
		return v
	}
	cols := make(opt.ColList, len(keep))
	for i, ord := range keep {
		cols[i] = v.Cols[ord]
	}
	rows := make([]tree.Datums, len(v.Rows))
	for r, row := range v.Rows {
		rows[r] = make(tree.Datums, len(keep))
		for i, ord := range keep {
			rows[r][i] = row[ord]
		}
	}
	return &memo.ValuesExpr{Cols: cols, Rows: rows}
}

// pruneUnion removes the unneeded output positions of a UNION ALL, and
// prunes each input to the columns that remain. At least one position is
// kept.
func (c *CustomFuncs) pruneUnion(u *memo.UnionAllExpr, needed opt.ColSet) memo.RelExpr {
	var keep []int
	for j, col := range u.Cols {
		if needed.Contains(col) {
			keep = append(keep, j)
		}
	}
	if len(keep) == 0 && len(u.Cols) > 0 {
		keep = []int{0}
	}
	pick := func(cl opt.ColList) opt.ColList {
		if len(keep) == len(cl) {
			return cl
		}
		res := make(opt.ColList, len(keep))
		for i, j := range keep {
			res[i] = cl[j]
		}
		return res
	}
	inputs := make([]opt.Expr, len(u.Inputs))
	inputCols := make([]opt.ColList, len(u.Inputs))
	for i, in := range u.Inputs {
		inputCols[i] = pick(u.InputCols[i])
		inputs[i] = c.prune(in, inputCols[i].ToSet())
	}
	if len(keep) == len(u.Cols) {
		return memo.ReplaceChildren(u, inputs).(memo.RelExpr)
	}
	rels := make([]memo.RelExpr, len(inputs))
	for i := range inputs {
		rels[i] = inputs[i].(memo.RelExpr)
	}
	return &memo.UnionAllExpr{Inputs: rels, InputCols: inputCols, Cols: pick(u.Cols)}
}
