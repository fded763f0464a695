// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package norm

import (
	"github.com/cockroachdb/relcore/pkg/sql/opt"
	"github.com/cockroachdb/relcore/pkg/sql/opt/memo"
)

// decorrelateExists rewrites an EXISTS or NOT EXISTS conjunct of a filter
// into a semi or anti join between the filter's input and the subquery. The
// subquery must be a stack of Selects, Projects, Sorts and non-zero Limits
// over an uncorrelated plan; the conditions of its Selects become the join
// condition.
func (c *CustomFuncs) decorrelateExists(e memo.RelExpr) memo.RelExpr {
	sel, ok := e.(*memo.SelectExpr)
	if !ok {
		return e
	}
	conds := memo.ConjunctionList(sel.Filter)
	for i, cond := range conds {
		var exists *memo.ExistsExpr
		typ := memo.SemiJoin
		switch t := cond.(type) {
		case *memo.ExistsExpr:
			exists = t
		case *memo.NotExpr:
			if ex, ok := t.Input.(*memo.ExistsExpr); ok {
				exists, typ = ex, memo.AntiJoin
			}
		}
		if exists == nil {
			continue
		}
		right, on, ok := c.splitExistsPlan(exists.Input, c.OutputCols(sel.Input))
		if !ok {
			continue
		}
		rest := make([]memo.ScalarExpr, 0, len(conds)-1)
		rest = append(append(rest, conds[:i]...), conds[i+1:]...)
		return c.ConstructSelect(&memo.JoinExpr{
			Type:  typ,
			Left:  sel.Input,
			Right: right,
			On:    memo.MakeConjunction(on),
		}, rest)
	}
	return e
}

// splitExistsPlan peels the operators that do not affect whether a plan
// produces any row off the top of an EXISTS subquery, collecting the
// conditions of its Selects. It fails if the remaining plan is correlated,
// or if a condition references columns other than those of the remaining
// plan and of the outer input.
func (c *CustomFuncs) splitExistsPlan(
	sub memo.RelExpr, outerCols opt.ColSet,
) (_ memo.RelExpr, conds []memo.ScalarExpr, ok bool) {
	for {
		switch t := sub.(type) {
		case *memo.SelectExpr:
			conds = append(conds, memo.ConjunctionList(t.Filter)...)
			sub = t.Input
			continue

		case *memo.SortExpr:
			sub = t.Input
			continue

		case *memo.LimitExpr:
			if t.Count > 0 {
				sub = t.Input
				continue
			}

		case *memo.ProjectExpr:
			repl := make(map[opt.ColumnID]memo.ScalarExpr, len(t.Projections))
			for _, item := range t.Projections {
				repl[item.Col] = item.Expr
			}
			for i := range conds {
				if !c.ReferencesAny(conds[i], projectionCols(t)) {
					continue
				}
				for _, item := range t.Projections {
					if !memo.IsDeterministic(item.Expr) || memo.ContainsSubquery(item.Expr) {
						return nil, nil, false
					}
				}
				conds[i] = memo.ReplaceColumns(conds[i], repl)
			}
			sub = t.Input
			continue
		}
		break
	}
	if memo.IsCorrelated(sub) {
		return nil, nil, false
	}
	allowed := outerCols.Union(c.OutputCols(sub))
	for _, cond := range conds {
		if !memo.ScalarCols(cond).SubsetOf(allowed) {
			return nil, nil, false
		}
	}
	return sub, conds, true
}

func projectionCols(prj *memo.ProjectExpr) opt.ColSet {
	var cols opt.ColSet
	for i := range prj.Projections {
		cols.Add(prj.Projections[i].Col)
	}
	return cols
}
