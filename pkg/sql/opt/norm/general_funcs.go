// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package norm

import (
	"github.com/cockroachdb/relcore/pkg/sql/opt"
	"github.com/cockroachdb/relcore/pkg/sql/opt/memo"
	"github.com/cockroachdb/relcore/pkg/sql/sem/tree"
	"github.com/cockroachdb/relcore/pkg/sql/types"
)

// CustomFuncs contains the match and replace functions used by the rules.
type CustomFuncs struct {
	f  *Factory
	md *opt.Metadata
}

// Init initializes a new CustomFuncs with the given factory.
func (c *CustomFuncs) Init(f *Factory) {
	*c = CustomFuncs{
		f:  f,
		md: f.md,
	}
}

// OutputCols returns the set of columns produced by e.
func (c *CustomFuncs) OutputCols(e memo.RelExpr) opt.ColSet {
	return e.OutputCols().ToSet()
}

// IsBoundBy returns true if every column that cond references from the
// given scope is in cols, and cond references at least one of them.
// References to columns outside scope (outer columns) are ignored.
func (c *CustomFuncs) IsBoundBy(cond memo.ScalarExpr, scope, cols opt.ColSet) bool {
	local := memo.ScalarCols(cond).Intersection(scope)
	return !local.Empty() && local.SubsetOf(cols)
}

// ReferencesAny returns true if cond references any of the given columns.
func (c *CustomFuncs) ReferencesAny(cond memo.ScalarExpr, cols opt.ColSet) bool {
	return memo.ScalarCols(cond).Intersects(cols)
}

// partitionConds splits a list of conditions into those that match pred and
// the rest, preserving their order.
func partitionConds(
	conds []memo.ScalarExpr, pred func(memo.ScalarExpr) bool,
) (matched, rest []memo.ScalarExpr) {
	for _, cond := range conds {
		if pred(cond) {
			matched = append(matched, cond)
		} else {
			rest = append(rest, cond)
		}
	}
	return matched, rest
}

// ConstructSelect filters input by the conjunction of conds. No Select is
// added if conds is empty.
func (c *CustomFuncs) ConstructSelect(input memo.RelExpr, conds []memo.ScalarExpr) memo.RelExpr {
	if len(conds) == 0 {
		return input
	}
	return &memo.SelectExpr{Input: input, Filter: memo.MakeConjunction(conds)}
}

// AndConds appends conds to the conjuncts of an existing condition, dropping
// a true condition.
func (c *CustomFuncs) AndConds(e memo.ScalarExpr, conds []memo.ScalarExpr) memo.ScalarExpr {
	var all []memo.ScalarExpr
	if !memo.IsTrue(e) {
		all = memo.ConjunctionList(e)
	}
	return memo.MakeConjunction(append(all, conds...))
}

// ConstructEmpty returns a relation with the given columns and no rows.
func (c *CustomFuncs) ConstructEmpty(cols opt.ColList) memo.RelExpr {
	return &memo.ValuesExpr{Cols: cols}
}

// IsEmpty returns true if e is statically known to produce no rows.
func IsEmpty(e memo.RelExpr) bool {
	v, ok := e.(*memo.ValuesExpr)
	return ok && len(v.Rows) == 0
}

// NullProjections returns a projection of a typed NULL for each column.
func (c *CustomFuncs) NullProjections(cols opt.ColList) []memo.ProjectionItem {
	res := make([]memo.ProjectionItem, len(cols))
	for i, col := range cols {
		res[i] = memo.ProjectionItem{Col: col, Expr: c.TypedNull(c.md.ColumnMeta(col).Type)}
	}
	return res
}

// TypedNull returns a NULL constant of the given type.
func (c *CustomFuncs) TypedNull(typ *types.T) memo.ScalarExpr {
	if typ == types.Unknown {
		return memo.NullSingleton
	}
	return &memo.ConstExpr{Value: tree.DNull, Typ: typ}
}

// OrderingCols returns the columns of an ordering.
func (c *CustomFuncs) OrderingCols(ordering opt.Ordering) opt.ColSet {
	var cols opt.ColSet
	for _, oc := range ordering {
		cols.Add(oc.ID())
	}
	return cols
}
