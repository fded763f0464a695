// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package norm

import (
	"github.com/cockroachdb/relcore/pkg/sql/opt"
	"github.com/cockroachdb/relcore/pkg/sql/opt/memo"
)

// propagateEmpty replaces operators that are statically known to produce no
// rows by an empty relation.
func (c *CustomFuncs) propagateEmpty(e memo.RelExpr) memo.RelExpr {
	switch t := e.(type) {
	case *memo.SelectExpr:
		if IsEmpty(t.Input) {
			return c.ConstructEmpty(t.OutputCols())
		}
	case *memo.ProjectExpr:
		if IsEmpty(t.Input) {
			return c.ConstructEmpty(t.OutputCols())
		}
	case *memo.SortExpr:
		if IsEmpty(t.Input) {
			return t.Input
		}
	case *memo.LimitExpr:
		if t.Count <= 0 || IsEmpty(t.Input) {
			return c.ConstructEmpty(t.OutputCols())
		}
	case *memo.GroupByExpr:
		// A scalar aggregation produces a row even for an empty input.
		if len(t.GroupingCols) > 0 && IsEmpty(t.Input) {
			return c.ConstructEmpty(t.OutputCols())
		}
	case *memo.JoinExpr:
		return c.propagateEmptyJoin(t)
	case *memo.UnionAllExpr:
		return c.propagateEmptyUnion(t)
	}
	return e
}

func (c *CustomFuncs) propagateEmptyJoin(join *memo.JoinExpr) memo.RelExpr {
	leftEmpty, rightEmpty := IsEmpty(join.Left), IsEmpty(join.Right)
	switch join.Type {
	case memo.InnerJoin, memo.SemiJoin:
		if leftEmpty || rightEmpty {
			return c.ConstructEmpty(join.OutputCols())
		}
	case memo.AntiJoin:
		if leftEmpty || rightEmpty {
			return join.Left
		}
	case memo.LeftJoin:
		if leftEmpty {
			return c.ConstructEmpty(join.OutputCols())
		}
		if rightEmpty {
			return &memo.ProjectExpr{
				Input:       join.Left,
				Passthrough: join.Left.OutputCols(),
				Projections: c.NullProjections(join.Right.OutputCols()),
			}
		}
	case memo.RightJoin:
		if rightEmpty {
			return c.ConstructEmpty(join.OutputCols())
		}
	case memo.FullJoin:
		if leftEmpty && rightEmpty {
			return c.ConstructEmpty(join.OutputCols())
		}
	}
	return join
}

// propagateEmptyUnion removes the empty inputs of a UNION ALL. A union left
// with a single input is replaced by a projection that renames its columns.
func (c *CustomFuncs) propagateEmptyUnion(union *memo.UnionAllExpr) memo.RelExpr {
	var inputs []memo.RelExpr
	var inputCols []opt.ColList
	for i, in := range union.Inputs {
		if !IsEmpty(in) {
			inputs = append(inputs, in)
			inputCols = append(inputCols, union.InputCols[i])
		}
	}
	switch len(inputs) {
	case len(union.Inputs):
		return union
	case 0:
		return c.ConstructEmpty(union.Cols)
	case 1:
		projections := make([]memo.ProjectionItem, len(union.Cols))
		for j, col := range union.Cols {
			inCol := inputCols[0][j]
			projections[j] = memo.ProjectionItem{
				Col:  col,
				Expr: &memo.VariableExpr{Col: inCol, Typ: c.md.ColumnMeta(inCol).Type},
			}
		}
		return &memo.ProjectExpr{Input: inputs[0], Projections: projections}
	}
	return &memo.UnionAllExpr{Inputs: inputs, InputCols: inputCols, Cols: union.Cols}
}
