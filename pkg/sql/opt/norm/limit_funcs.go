// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package norm

import "github.com/cockroachdb/relcore/pkg/sql/opt/memo"

// mergeLimits keeps the smaller of two nested limits.
func (c *CustomFuncs) mergeLimits(e memo.RelExpr) memo.RelExpr {
	limit, ok := e.(*memo.LimitExpr)
	if !ok {
		return e
	}
	inner, ok := limit.Input.(*memo.LimitExpr)
	if !ok {
		return e
	}
	n := limit.Count
	if inner.Count < n {
		n = inner.Count
	}
	return &memo.LimitExpr{Input: inner.Input, Count: n}
}

// pushLimitThroughProject limits the input of a Project instead of its
// output; a Project produces exactly one row per input row.
func (c *CustomFuncs) pushLimitThroughProject(e memo.RelExpr) memo.RelExpr {
	limit, ok := e.(*memo.LimitExpr)
	if !ok {
		return e
	}
	prj, ok := limit.Input.(*memo.ProjectExpr)
	if !ok {
		return e
	}
	return &memo.ProjectExpr{
		Input:       &memo.LimitExpr{Input: prj.Input, Count: limit.Count},
		Passthrough: prj.Passthrough,
		Projections: prj.Projections,
	}
}

// pushLimitIntoUnion adds a copy of a limit over a UNION ALL to each of its
// inputs. The outer limit remains. Inputs that are already known to produce
// at most as many rows are left alone, which makes the rule converge.
func (c *CustomFuncs) pushLimitIntoUnion(e memo.RelExpr) memo.RelExpr {
	limit, ok := e.(*memo.LimitExpr)
	if !ok {
		return e
	}
	union, ok := limit.Input.(*memo.UnionAllExpr)
	if !ok {
		return e
	}
	var inputs []memo.RelExpr
	for i, in := range union.Inputs {
		if n, ok := MaxRows(in); ok && n <= limit.Count {
			continue
		}
		if inputs == nil {
			inputs = append([]memo.RelExpr(nil), union.Inputs...)
		}
		inputs[i] = &memo.LimitExpr{Input: in, Count: limit.Count}
	}
	if inputs == nil {
		return e
	}
	return &memo.LimitExpr{
		Input: &memo.UnionAllExpr{Inputs: inputs, InputCols: union.InputCols, Cols: union.Cols},
		Count: limit.Count,
	}
}

// eliminateSort removes sorts whose order cannot be observed: a sort below
// another sort, and a sort below an aggregation.
func (c *CustomFuncs) eliminateSort(e memo.RelExpr) memo.RelExpr {
	switch t := e.(type) {
	case *memo.SortExpr:
		if inner, ok := t.Input.(*memo.SortExpr); ok {
			return &memo.SortExpr{Input: inner.Input, Ordering: t.Ordering}
		}
	case *memo.GroupByExpr:
		if inner, ok := t.Input.(*memo.SortExpr); ok {
			return &memo.GroupByExpr{
				Input:        inner.Input,
				GroupingCols: t.GroupingCols,
				Aggregations: t.Aggregations,
			}
		}
	}
	return e
}

// MaxRows returns an upper bound on the number of rows produced by e, if one
// is known without statistics.
func MaxRows(e memo.RelExpr) (n int64, ok bool) {
	switch t := e.(type) {
	case *memo.LimitExpr:
		if in, ok := MaxRows(t.Input); ok && in < t.Count {
			return in, true
		}
		return t.Count, true
	case *memo.ValuesExpr:
		return int64(len(t.Rows)), true
	case *memo.ProjectExpr:
		return MaxRows(t.Input)
	case *memo.SelectExpr:
		return MaxRows(t.Input)
	case *memo.SortExpr:
		return MaxRows(t.Input)
	case *memo.GroupByExpr:
		if len(t.GroupingCols) == 0 {
			return 1, true
		}
		return MaxRows(t.Input)
	}
	return 0, false
}
