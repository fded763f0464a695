// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package xform

import (
	"sort"

	"github.com/cockroachdb/relcore/pkg/sql/opt"
	"github.com/cockroachdb/relcore/pkg/sql/opt/memo"
	"github.com/cockroachdb/relcore/pkg/sql/sem/tree"
)

// uniqueKeyRatio is the fraction of a relation's rows that a column's
// distinct count must reach for the column to be treated as a key.
const uniqueKeyRatio = 0.9

// joinLeaf is an input of a tree of inner joins.
type joinLeaf struct {
	e    memo.RelExpr
	cols opt.ColSet
	rows float64
}

// joinTree is a tree of inner joins flattened into its inputs and the
// conjuncts of all of its join conditions.
type joinTree struct {
	leaves []joinLeaf
	conds  []memo.ScalarExpr
}

// reorderJoins reorders every tree of three or more inner joins whose
// statistics are known, when a cheaper order is found. The cost of an order
// is the sum of the estimated row counts of its joins. A reordered tree is
// wrapped in a projection that restores the original column order.
func (o *Optimizer) reorderJoins(e memo.RelExpr) memo.RelExpr {
	if join, ok := e.(*memo.JoinExpr); ok && isReorderable(join) {
		var t joinTree
		o.flattenJoins(join, &t)
		for i := range t.leaves {
			t.leaves[i].e = o.reorderJoins(t.leaves[i].e)
		}
		if res, ok := o.reorderJoinTree(join, &t); ok {
			return res
		}
		return o.rebuildInPlace(join, &t)
	}

	n := e.ChildCount()
	if n == 0 {
		return e
	}
	children := make([]opt.Expr, n)
	for i := 0; i < n; i++ {
		switch t := e.Child(i).(type) {
		case memo.RelExpr:
			children[i] = o.reorderJoins(t)
		case memo.ScalarExpr:
			children[i] = o.reorderSubqueries(t)
		}
	}
	return memo.ReplaceChildren(e, children).(memo.RelExpr)
}

func (o *Optimizer) reorderSubqueries(e memo.ScalarExpr) memo.ScalarExpr {
	if !memo.ContainsSubquery(e) {
		return e
	}
	return memo.TransformScalar(e, func(e memo.ScalarExpr) memo.ScalarExpr {
		switch t := e.(type) {
		case *memo.ExistsExpr, *memo.SubqueryExpr:
			in := t.Child(0).(memo.RelExpr)
			return memo.ReplaceChildren(t, []opt.Expr{o.reorderJoins(in)}).(memo.ScalarExpr)
		}
		return e
	})
}

func isReorderable(e memo.RelExpr) bool {
	join, ok := e.(*memo.JoinExpr)
	return ok && join.Type == memo.InnerJoin && join.Hint == memo.NoHint
}

func (o *Optimizer) flattenJoins(e memo.RelExpr, t *joinTree) {
	if isReorderable(e) {
		join := e.(*memo.JoinExpr)
		o.flattenJoins(join.Left, t)
		o.flattenJoins(join.Right, t)
		if !memo.IsTrue(join.On) {
			t.conds = append(t.conds, memo.ConjunctionList(join.On)...)
		}
		return
	}
	rows, _ := o.sb.Build(e).RowCount.Get()
	t.leaves = append(t.leaves, joinLeaf{e: e, cols: e.OutputCols().ToSet(), rows: rows})
}

// rebuildInPlace rebuilds the original join tree over the reordered leaves
// in the same left-to-right order.
func (o *Optimizer) rebuildInPlace(e memo.RelExpr, t *joinTree) memo.RelExpr {
	next := 0
	var rebuild func(e memo.RelExpr) memo.RelExpr
	rebuild = func(e memo.RelExpr) memo.RelExpr {
		if !isReorderable(e) {
			leaf := t.leaves[next].e
			next++
			return leaf
		}
		join := e.(*memo.JoinExpr)
		l := rebuild(join.Left)
		r := rebuild(join.Right)
		return memo.ReplaceChildren(join, []opt.Expr{l, r, join.On}).(memo.RelExpr)
	}
	return rebuild(e)
}

// joinCost returns the sum of the estimated row counts of the inner joins of
// the tree rooted at e, or false if one of them is unknown.
func (o *Optimizer) joinCost(e memo.RelExpr) (float64, bool) {
	if !isReorderable(e) {
		return 0, true
	}
	join := e.(*memo.JoinExpr)
	rows, ok := o.sb.Build(join).RowCount.Get()
	if !ok {
		return 0, false
	}
	l, ok := o.joinCost(join.Left)
	if !ok {
		return 0, false
	}
	r, ok := o.joinCost(join.Right)
	if !ok {
		return 0, false
	}
	return rows + l + r, true
}

func (o *Optimizer) reorderJoinTree(orig *memo.JoinExpr, t *joinTree) (memo.RelExpr, bool) {
	if len(t.leaves) < 3 {
		return nil, false
	}
	for i := range t.leaves {
		if !o.sb.Build(t.leaves[i].e).RowCount.Known() {
			return nil, false
		}
	}
	// The cost of the original order is computed over the original tree,
	// whose statistics may already be memoized.
	origCost, ok := o.joinCost(orig)
	if !ok {
		return nil, false
	}

	var order []int
	if o.cfg.StarSchema {
		order = o.starSchemaOrder(t)
	}
	if order == nil {
		order = o.greedyOrder(t, nil)
	}
	res := o.buildLeftDeep(t, order)
	cost, ok := o.joinCost(res)
	if !ok || cost >= origCost {
		return nil, false
	}
	if !res.OutputCols().Equals(orig.OutputCols()) {
		res = &memo.ProjectExpr{Input: res, Passthrough: orig.OutputCols()}
	}
	return res, true
}

// buildLeftDeep joins the leaves in the given order. Each join gets the
// conditions that become evaluable once its right input is added.
func (o *Optimizer) buildLeftDeep(t *joinTree, order []int) memo.RelExpr {
	used := make([]bool, len(t.conds))
	var scope opt.ColSet
	for i := range t.leaves {
		scope.UnionWith(t.leaves[i].cols)
	}
	res := t.leaves[order[0]].e
	cols := t.leaves[order[0]].cols.Copy()
	for k, idx := range order[1:] {
		cols.UnionWith(t.leaves[idx].cols)
		var on []memo.ScalarExpr
		for i, cond := range t.conds {
			if used[i] {
				continue
			}
			local := memo.ScalarCols(cond).Intersection(scope)
			// Conditions that reference no join input go to the last join.
			if (local.Empty() && k == len(order)-2) || (!local.Empty() && local.SubsetOf(cols)) {
				on = append(on, cond)
				used[i] = true
			}
		}
		res = &memo.JoinExpr{
			Type:  memo.InnerJoin,
			Left:  res,
			Right: t.leaves[idx].e,
			On:    memo.MakeConjunction(on),
		}
	}
	return res
}

// connected returns true if some condition references columns of both sets.
func (t *joinTree) connected(a, b opt.ColSet) bool {
	for _, cond := range t.conds {
		cols := memo.ScalarCols(cond)
		if cols.Intersects(a) && cols.Intersects(b) {
			return true
		}
	}
	return false
}

// estimateJoin returns the estimated row count of an inner join of the
// given leaves, in order.
func (o *Optimizer) estimateJoin(t *joinTree, order []int) float64 {
	rows, _ := o.sb.Build(o.buildLeftDeep(t, order)).RowCount.Get()
	return rows
}

func (o *Optimizer) remainingLeaves(t *joinTree, order []int) []int {
	in := make(map[int]bool, len(order))
	for _, i := range order {
		in[i] = true
	}
	var rest []int
	for i := range t.leaves {
		if !in[i] {
			rest = append(rest, i)
		}
	}
	return rest
}

// greedyOrder extends prefix by repeatedly adding the leaf that yields the
// smallest estimated join, preferring leaves connected to the joined set by
// a condition. Without a prefix, it starts from the smallest leaf.
func (o *Optimizer) greedyOrder(t *joinTree, prefix []int) []int {
	order := append([]int(nil), prefix...)
	if len(order) == 0 {
		best := 0
		for i := range t.leaves {
			if t.leaves[i].rows < t.leaves[best].rows {
				best = i
			}
		}
		order = append(order, best)
	}
	for len(order) < len(t.leaves) {
		var cols opt.ColSet
		for _, i := range order {
			cols.UnionWith(t.leaves[i].cols)
		}
		best, bestConnected, bestRows := -1, false, 0.0
		for _, i := range o.remainingLeaves(t, order) {
			conn := t.connected(cols, t.leaves[i].cols)
			if bestConnected && !conn {
				continue
			}
			rows := o.estimateJoin(t, append(order[:len(order):len(order)], i))
			if best == -1 || (conn && !bestConnected) || rows < bestRows {
				best, bestConnected, bestRows = i, conn, rows
			}
		}
		order = append(order, best)
	}
	return order
}

// starSchemaOrder detects a star schema: a fact table, which is the largest
// leaf, joined by equality to the unique keys of at least two dimension
// leaves. It returns an order that joins the fact table to its dimensions
// first, the most selective dimension first, followed by the other leaves in
// greedy order. It returns nil if the leaves do not form a star.
func (o *Optimizer) starSchemaOrder(t *joinTree) []int {
	fact := 0
	for i := range t.leaves {
		if t.leaves[i].rows > t.leaves[fact].rows {
			fact = i
		}
	}
	type dim struct {
		idx  int
		rows float64
	}
	var dims []dim
	for i := range t.leaves {
		if i == fact || !o.joinsOnUniqueKey(t, fact, i) {
			continue
		}
		dims = append(dims, dim{idx: i, rows: o.estimateJoin(t, []int{fact, i})})
	}
	if len(dims) < 2 {
		return nil
	}
	sort.SliceStable(dims, func(i, j int) bool { return dims[i].rows < dims[j].rows })
	order := []int{fact}
	for _, d := range dims {
		order = append(order, d.idx)
	}
	return o.greedyOrder(t, order)
}

// joinsOnUniqueKey returns true if a condition equates a column of the fact
// leaf with a column of the dimension leaf whose values are unique.
func (o *Optimizer) joinsOnUniqueKey(t *joinTree, fact, dim int) bool {
	f, d := t.leaves[fact], t.leaves[dim]
	stats := o.sb.Build(d.e)
	for _, cond := range t.conds {
		cmp, ok := cond.(*memo.ComparisonExpr)
		if !ok || cmp.Operator != tree.EQ {
			continue
		}
		l, lok := cmp.Left.(*memo.VariableExpr)
		r, rok := cmp.Right.(*memo.VariableExpr)
		if !lok || !rok {
			continue
		}
		var dimCol opt.ColumnID
		switch {
		case f.cols.Contains(l.Col) && d.cols.Contains(r.Col):
			dimCol = r.Col
		case f.cols.Contains(r.Col) && d.cols.Contains(l.Col):
			dimCol = l.Col
		default:
			continue
		}
		cs := stats.ColStat(dimCol)
		if cs == nil {
			continue
		}
		if distinct, ok := cs.DistinctCount.Get(); ok && distinct >= uniqueKeyRatio*d.rows {
			return true
		}
	}
	return false
}
