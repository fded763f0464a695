// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package norm

import (
	"github.com/cockroachdb/relcore/pkg/sql/opt"
	"github.com/cockroachdb/relcore/pkg/sql/opt/memo"
)

// eliminateSelect removes a Select whose filter is always true, and replaces
// a Select whose filter is always false or NULL by an empty relation. True
// conjuncts are dropped.
func (c *CustomFuncs) eliminateSelect(e memo.RelExpr) memo.RelExpr {
	sel, ok := e.(*memo.SelectExpr)
	if !ok {
		return e
	}
	if memo.IsFalseOrNull(sel.Filter) {
		return c.ConstructEmpty(sel.OutputCols())
	}
	conds := memo.ConjunctionList(sel.Filter)
	kept := conds[:0:0]
	for _, cond := range conds {
		if memo.IsFalseOrNull(cond) {
			return c.ConstructEmpty(sel.OutputCols())
		}
		if !memo.IsTrue(cond) {
			kept = append(kept, cond)
		}
	}
	if len(kept) == len(conds) {
		return e
	}
	return c.ConstructSelect(sel.Input, kept)
}

// mergeSelects combines a Select over a Select into one.
func (c *CustomFuncs) mergeSelects(e memo.RelExpr) memo.RelExpr {
	sel, ok := e.(*memo.SelectExpr)
	if !ok {
		return e
	}
	inner, ok := sel.Input.(*memo.SelectExpr)
	if !ok {
		return e
	}
	return &memo.SelectExpr{
		Input:  inner.Input,
		Filter: c.AndConds(inner.Filter, memo.ConjunctionList(sel.Filter)),
	}
}

// pushSelectIntoJoin moves the conjuncts of a filter over a join as close
// to the join inputs as the join type allows. For an inner join, conjuncts
// over both inputs become part of the join condition. Conjuncts that only
// reference one input are pushed into it when that input is preserved by
// the join, or when the join is an inner join.
func (c *CustomFuncs) pushSelectIntoJoin(e memo.RelExpr) memo.RelExpr {
	sel, ok := e.(*memo.SelectExpr)
	if !ok {
		return e
	}
	join, ok := sel.Input.(*memo.JoinExpr)
	if !ok || join.Type == memo.FullJoin {
		return e
	}
	leftCols, rightCols := c.OutputCols(join.Left), c.OutputCols(join.Right)
	scope := leftCols.Union(rightCols)

	var toLeft, toRight, toOn, rest []memo.ScalarExpr
	for _, cond := range memo.ConjunctionList(sel.Filter) {
		local := memo.ScalarCols(cond).Intersection(scope)
		switch {
		case local.SubsetOf(leftCols) && join.Type != memo.RightJoin:
			// A condition that references no local column filters the whole
			// input or none of it, so it may go to either side.
			toLeft = append(toLeft, cond)
		case local.SubsetOf(rightCols) && (join.Type == memo.InnerJoin || join.Type == memo.RightJoin):
			toRight = append(toRight, cond)
		case join.Type == memo.InnerJoin && !local.Empty():
			toOn = append(toOn, cond)
		default:
			rest = append(rest, cond)
		}
	}
	if len(toLeft) == 0 && len(toRight) == 0 && len(toOn) == 0 {
		return e
	}
	newJoin := &memo.JoinExpr{
		Type:  join.Type,
		Left:  c.ConstructSelect(join.Left, toLeft),
		Right: c.ConstructSelect(join.Right, toRight),
		On:    join.On,
		Hint:  join.Hint,
	}
	if len(toOn) > 0 {
		newJoin.On = c.AndConds(join.On, toOn)
	}
	return c.ConstructSelect(newJoin, rest)
}

// pushJoinCondIntoInputs moves conjuncts of a join condition that only
// reference one input into that input, where doing so does not change which
// rows the join preserves.
func (c *CustomFuncs) pushJoinCondIntoInputs(e memo.RelExpr) memo.RelExpr {
	join, ok := e.(*memo.JoinExpr)
	if !ok || memo.IsTrue(join.On) {
		return e
	}
	var canLeft, canRight bool
	switch join.Type {
	case memo.InnerJoin, memo.SemiJoin:
		canLeft, canRight = true, true
	case memo.LeftJoin, memo.AntiJoin:
		canRight = true
	case memo.RightJoin:
		canLeft = true
	}
	if !canLeft && !canRight {
		return e
	}
	leftCols, rightCols := c.OutputCols(join.Left), c.OutputCols(join.Right)
	scope := leftCols.Union(rightCols)

	var toLeft, toRight, rest []memo.ScalarExpr
	for _, cond := range memo.ConjunctionList(join.On) {
		switch {
		case canLeft && c.IsBoundBy(cond, scope, leftCols):
			toLeft = append(toLeft, cond)
		case canRight && c.IsBoundBy(cond, scope, rightCols):
			toRight = append(toRight, cond)
		default:
			rest = append(rest, cond)
		}
	}
	if len(toLeft) == 0 && len(toRight) == 0 {
		return e
	}
	return &memo.JoinExpr{
		Type:  join.Type,
		Left:  c.ConstructSelect(join.Left, toLeft),
		Right: c.ConstructSelect(join.Right, toRight),
		On:    memo.MakeConjunction(rest),
		Hint:  join.Hint,
	}
}

// pushSelectThroughProject pushes the conjuncts of a filter over a Project
// below it. Conjuncts that reference a computed column are only pushed when
// the column is a plain column reference or a constant, which is then
// substituted.
func (c *CustomFuncs) pushSelectThroughProject(e memo.RelExpr) memo.RelExpr {
	sel, ok := e.(*memo.SelectExpr)
	if !ok {
		return e
	}
	prj, ok := sel.Input.(*memo.ProjectExpr)
	if !ok {
		return e
	}
	var computed, substitutable opt.ColSet
	repl := make(map[opt.ColumnID]memo.ScalarExpr)
	for _, item := range prj.Projections {
		computed.Add(item.Col)
		switch item.Expr.(type) {
		case *memo.VariableExpr, *memo.ConstExpr:
			substitutable.Add(item.Col)
			repl[item.Col] = item.Expr
		}
	}
	var pushed, rest []memo.ScalarExpr
	for _, cond := range memo.ConjunctionList(sel.Filter) {
		refs := memo.ScalarCols(cond).Intersection(computed)
		if !refs.SubsetOf(substitutable) {
			rest = append(rest, cond)
			continue
		}
		if !refs.Empty() {
			cond = memo.ReplaceColumns(cond, repl)
		}
		pushed = append(pushed, cond)
	}
	if len(pushed) == 0 {
		return e
	}
	return c.ConstructSelect(&memo.ProjectExpr{
		Input:       c.ConstructSelect(prj.Input, pushed),
		Passthrough: prj.Passthrough,
		Projections: prj.Projections,
	}, rest)
}

// pushSelectThroughGroupBy pushes conjuncts that only reference grouping
// columns below a grouped aggregation: such a condition either keeps or
// removes whole groups.
func (c *CustomFuncs) pushSelectThroughGroupBy(e memo.RelExpr) memo.RelExpr {
	sel, ok := e.(*memo.SelectExpr)
	if !ok {
		return e
	}
	gb, ok := sel.Input.(*memo.GroupByExpr)
	if !ok || len(gb.GroupingCols) == 0 {
		return e
	}
	var aggCols opt.ColSet
	for i := range gb.Aggregations {
		aggCols.Add(gb.Aggregations[i].Col)
	}
	pushed, rest := partitionConds(memo.ConjunctionList(sel.Filter), func(cond memo.ScalarExpr) bool {
		return !c.ReferencesAny(cond, aggCols)
	})
	if len(pushed) == 0 {
		return e
	}
	return c.ConstructSelect(&memo.GroupByExpr{
		Input:        c.ConstructSelect(gb.Input, pushed),
		GroupingCols: gb.GroupingCols,
		Aggregations: gb.Aggregations,
	}, rest)
}

// pushSelectThroughUnion pushes a filter into every input of a UNION ALL,
// renaming the union's columns to each input's columns. Conjuncts with
// subqueries stay above the union, since they cannot be renamed into the
// plans they embed without duplicating them.
func (c *CustomFuncs) pushSelectThroughUnion(e memo.RelExpr) memo.RelExpr {
	sel, ok := e.(*memo.SelectExpr)
	if !ok {
		return e
	}
	union, ok := sel.Input.(*memo.UnionAllExpr)
	if !ok {
		return e
	}
	rest, pushed := partitionConds(memo.ConjunctionList(sel.Filter), memo.ContainsSubquery)
	if len(pushed) == 0 {
		return e
	}
	filter := memo.MakeConjunction(pushed)
	inputs := make([]memo.RelExpr, len(union.Inputs))
	for i, in := range union.Inputs {
		repl := make(map[opt.ColumnID]memo.ScalarExpr, len(union.Cols))
		for j, col := range union.Cols {
			inCol := union.InputCols[i][j]
			repl[col] = &memo.VariableExpr{Col: inCol, Typ: c.md.ColumnMeta(inCol).Type}
		}
		inputs[i] = &memo.SelectExpr{Input: in, Filter: memo.ReplaceColumns(filter, repl)}
	}
	return c.ConstructSelect(&memo.UnionAllExpr{
		Inputs:    inputs,
		InputCols: union.InputCols,
		Cols:      union.Cols,
	}, rest)
}

// pushSelectThroughSort filters before sorting.
func (c *CustomFuncs) pushSelectThroughSort(e memo.RelExpr) memo.RelExpr {
	sel, ok := e.(*memo.SelectExpr)
	if !ok {
		return e
	}
	sort, ok := sel.Input.(*memo.SortExpr)
	if !ok {
		return e
	}
	return &memo.SortExpr{
		Input:    &memo.SelectExpr{Input: sort.Input, Filter: sel.Filter},
		Ordering: sort.Ordering,
	}
}
