// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package memo

import "github.com/cockroachdb/relcore/pkg/sql/opt"

// ScalarCols returns the columns referenced by a scalar expression,
// including the outer columns of any subquery it embeds.
func ScalarCols(e ScalarExpr) opt.ColSet {
	var cols opt.ColSet
	walkScalar(e, func(s ScalarExpr) bool {
		switch t := s.(type) {
		case *VariableExpr:
			cols.Add(t.Col)
		case *ExistsExpr:
			cols.UnionWith(OuterCols(t.Input))
		case *SubqueryExpr:
			cols.UnionWith(OuterCols(t.Input))
		}
		return true
	})
	return cols
}

// OuterCols returns the columns referenced by the expressions of a plan that
// are not produced by the inputs of the node containing the reference. A
// plan with no outer columns is uncorrelated.
func OuterCols(e RelExpr) opt.ColSet {
	var outer, inputCols, refs opt.ColSet
	for i, n := 0, e.ChildCount(); i < n; i++ {
		switch t := e.Child(i).(type) {
		case RelExpr:
			outer.UnionWith(OuterCols(t))
			inputCols.UnionWith(t.OutputCols().ToSet())
		case ScalarExpr:
			refs.UnionWith(ScalarCols(t))
		}
	}
	outer.UnionWith(refs.Difference(inputCols))
	return outer
}

// IsCorrelated returns true if the subquery plan references columns of an
// enclosing scope.
func IsCorrelated(e RelExpr) bool {
	return !OuterCols(e).Empty()
}
