// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package memo

import (
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/relcore/pkg/sql/opt"
)

// ReplaceChildren returns a new expression of the same kind and with the same
// private fields as e, but with the given children, which must line up with
// e's children. If every child is identical to e's current child, e itself
// is returned.
func ReplaceChildren(e opt.Expr, children []opt.Expr) opt.Expr {
	if len(children) != e.ChildCount() {
		panic(errors.AssertionFailedf("%s expects %d children, got %d",
			e.Op(), e.ChildCount(), len(children)))
	}
	same := true
	for i := range children {
		if children[i] != e.Child(i) {
			same = false
			break
		}
	}
	if same {
		return e
	}

	scalar := func(i int) ScalarExpr { return children[i].(ScalarExpr) }
	rel := func(i int) RelExpr { return children[i].(RelExpr) }
	scalars := func(from, n int) []ScalarExpr {
		res := make([]ScalarExpr, n)
		for i := range res {
			res[i] = scalar(from + i)
		}
		return res
	}

	switch t := e.(type) {
	case *SelectExpr:
		return &SelectExpr{Input: rel(0), Filter: scalar(1)}
	case *ProjectExpr:
		projections := make([]ProjectionItem, len(t.Projections))
		for i := range projections {
			projections[i] = ProjectionItem{Col: t.Projections[i].Col, Expr: scalar(i + 1)}
		}
		return &ProjectExpr{Input: rel(0), Passthrough: t.Passthrough, Projections: projections}
	case *JoinExpr:
		return &JoinExpr{Type: t.Type, Left: rel(0), Right: rel(1), On: scalar(2), Hint: t.Hint}
	case *GroupByExpr:
		aggs := make([]AggregationItem, len(t.Aggregations))
		for i := range aggs {
			aggs[i] = AggregationItem{Col: t.Aggregations[i].Col, Agg: children[i+1].(*AggregateExpr)}
		}
		return &GroupByExpr{Input: rel(0), GroupingCols: t.GroupingCols, Aggregations: aggs}
	case *UnionAllExpr:
		inputs := make([]RelExpr, len(children))
		for i := range inputs {
			inputs[i] = rel(i)
		}
		return &UnionAllExpr{Inputs: inputs, InputCols: t.InputCols, Cols: t.Cols}
	case *LimitExpr:
		return &LimitExpr{Input: rel(0), Count: t.Count}
	case *SortExpr:
		return &SortExpr{Input: rel(0), Ordering: t.Ordering}

	case *AndExpr:
		return &AndExpr{Left: scalar(0), Right: scalar(1)}
	case *OrExpr:
		return &OrExpr{Left: scalar(0), Right: scalar(1)}
	case *NotExpr:
		return &NotExpr{Input: scalar(0)}
	case *ComparisonExpr:
		return &ComparisonExpr{Operator: t.Operator, Left: scalar(0), Right: scalar(1)}
	case *BinaryExpr:
		return &BinaryExpr{Operator: t.Operator, Left: scalar(0), Right: scalar(1), Typ: t.Typ}
	case *UnaryMinusExpr:
		return &UnaryMinusExpr{Input: scalar(0)}
	case *IsNullExpr:
		return &IsNullExpr{Input: scalar(0)}
	case *CoalesceExpr:
		return &CoalesceExpr{Args: scalars(0, len(children)), Typ: t.Typ}
	case *IfExpr:
		return &IfExpr{Cond: scalar(0), Then: scalar(1), Else: scalar(2), Typ: t.Typ}
	case *CastExpr:
		return &CastExpr{Input: scalar(0), Typ: t.Typ}
	case *FunctionExpr:
		return &FunctionExpr{Overload: t.Overload, Args: scalars(0, len(children))}
	case *AggregateExpr:
		res := &AggregateExpr{
			Name: t.Name, Args: scalars(0, len(t.Args)), Distinct: t.Distinct, Typ: t.Typ,
		}
		if t.Filter != nil {
			res.Filter = scalar(len(t.Args))
		}
		return res
	case *ExistsExpr:
		return &ExistsExpr{Input: rel(0)}
	case *SubqueryExpr:
		return &SubqueryExpr{Input: rel(0), Typ: t.Typ}
	}
	panic(errors.AssertionFailedf("unhandled expression: %s", e.Op()))
}

// Transform rebuilds e bottom-up: the children of each node are transformed
// first, then fn is called on the node with its new children. Nodes whose
// subtree is unchanged are reused.
func Transform(e opt.Expr, fn func(opt.Expr) opt.Expr) opt.Expr {
	n := e.ChildCount()
	if n > 0 {
		var children []opt.Expr
		for i := 0; i < n; i++ {
			child := e.Child(i)
			newChild := Transform(child, fn)
			if newChild != child && children == nil {
				children = make([]opt.Expr, n)
				for j := 0; j < i; j++ {
					children[j] = e.Child(j)
				}
			}
			if children != nil {
				children[i] = newChild
			}
		}
		if children != nil {
			e = ReplaceChildren(e, children)
		}
	}
	return fn(e)
}

// TransformRel is Transform restricted to relational expressions.
func TransformRel(e RelExpr, fn func(RelExpr) RelExpr) RelExpr {
	return Transform(e, func(e opt.Expr) opt.Expr {
		if rel, ok := e.(RelExpr); ok {
			return fn(rel)
		}
		return e
	}).(RelExpr)
}

// TransformScalar is Transform restricted to the scalar expressions of a
// scalar tree. It does not descend into subquery plans.
func TransformScalar(e ScalarExpr, fn func(ScalarExpr) ScalarExpr) ScalarExpr {
	switch e.(type) {
	case *ExistsExpr, *SubqueryExpr:
		return fn(e)
	}
	n := e.ChildCount()
	if n > 0 {
		var children []opt.Expr
		for i := 0; i < n; i++ {
			child := e.Child(i).(ScalarExpr)
			newChild := TransformScalar(child, fn)
			if newChild != child && children == nil {
				children = make([]opt.Expr, n)
				for j := 0; j < i; j++ {
					children[j] = e.Child(j)
				}
			}
			if children != nil {
				children[i] = newChild
			}
		}
		if children != nil {
			e = ReplaceChildren(e, children).(ScalarExpr)
		}
	}
	return fn(e)
}

// ReplaceColumns substitutes the given expressions for references to the
// corresponding columns in a scalar expression, including outer references
// made from within subqueries.
func ReplaceColumns(e ScalarExpr, repl map[opt.ColumnID]ScalarExpr) ScalarExpr {
	return Transform(e, func(e opt.Expr) opt.Expr {
		if v, ok := e.(*VariableExpr); ok {
			if r, ok := repl[v.Col]; ok {
				return r
			}
		}
		return e
	}).(ScalarExpr)
}

// RemapColumns renames every column id defined or referenced in e according
// to the given map. Ids missing from the map are left unchanged.
func RemapColumns(e opt.Expr, m map[opt.ColumnID]opt.ColumnID) opt.Expr {
	col := func(c opt.ColumnID) opt.ColumnID {
		if r, ok := m[c]; ok {
			return r
		}
		return c
	}
	list := func(cl opt.ColList) opt.ColList {
		res := make(opt.ColList, len(cl))
		for i, c := range cl {
			res[i] = col(c)
		}
		return res
	}
	var remap func(e opt.Expr) opt.Expr
	remap = func(e opt.Expr) opt.Expr {
		children := make([]opt.Expr, e.ChildCount())
		for i := range children {
			children[i] = remap(e.Child(i))
		}
		switch t := e.(type) {
		case *VariableExpr:
			return &VariableExpr{Col: col(t.Col), Typ: t.Typ}
		case *ScanExpr:
			return &ScanExpr{Table: t.Table, Cols: list(t.Cols)}
		case *ValuesExpr:
			return &ValuesExpr{Cols: list(t.Cols), Rows: t.Rows}
		case *ProjectExpr:
			p := ReplaceChildren(t, children).(*ProjectExpr)
			projections := make([]ProjectionItem, len(p.Projections))
			for i := range projections {
				projections[i] = ProjectionItem{Col: col(p.Projections[i].Col), Expr: p.Projections[i].Expr}
			}
			return &ProjectExpr{Input: p.Input, Passthrough: list(p.Passthrough), Projections: projections}
		case *GroupByExpr:
			g := ReplaceChildren(t, children).(*GroupByExpr)
			aggs := make([]AggregationItem, len(g.Aggregations))
			for i := range aggs {
				aggs[i] = AggregationItem{Col: col(g.Aggregations[i].Col), Agg: g.Aggregations[i].Agg}
			}
			return &GroupByExpr{Input: g.Input, GroupingCols: list(g.GroupingCols), Aggregations: aggs}
		case *UnionAllExpr:
			inputCols := make([]opt.ColList, len(t.InputCols))
			for i := range inputCols {
				inputCols[i] = list(t.InputCols[i])
			}
			u := ReplaceChildren(t, children).(*UnionAllExpr)
			return &UnionAllExpr{Inputs: u.Inputs, InputCols: inputCols, Cols: list(t.Cols)}
		case *SortExpr:
			ordering := make(opt.Ordering, len(t.Ordering))
			for i, oc := range t.Ordering {
				ordering[i] = opt.MakeOrderingColumn(col(oc.ID()), oc.Descending())
			}
			return &SortExpr{Input: children[0].(RelExpr), Ordering: ordering}
		}
		return ReplaceChildren(e, children)
	}
	return remap(e)
}
