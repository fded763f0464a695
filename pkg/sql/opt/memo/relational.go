// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package memo

import (
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/relcore/pkg/sql/opt"
	"github.com/cockroachdb/relcore/pkg/sql/opt/cat"
	"github.com/cockroachdb/relcore/pkg/sql/sem/tree"
)

// ScanExpr reads every row of a base table. Cols[i] is the column id of the
// table's ith column.
type ScanExpr struct {
	relBase
	Table cat.Table
	Cols  opt.ColList
}

// ValuesExpr returns a constant list of rows.
type ValuesExpr struct {
	relBase
	Cols opt.ColList
	Rows []tree.Datums
}

// SelectExpr filters the rows of its input.
type SelectExpr struct {
	relBase
	Input  RelExpr
	Filter ScalarExpr
}

// ProjectExpr produces the Passthrough columns of its input, followed by the
// synthesized Projections.
type ProjectExpr struct {
	relBase
	Input       RelExpr
	Passthrough opt.ColList
	Projections []ProjectionItem
}

// JoinType is the kind of a JoinExpr.
type JoinType uint8

const (
	InnerJoin JoinType = iota
	LeftJoin
	RightJoin
	FullJoin
	// SemiJoin returns the left rows that have a match on the right.
	SemiJoin
	// AntiJoin returns the left rows that have no match on the right.
	AntiJoin
)

var joinTypeNames = [...]string{
	InnerJoin: "inner-join",
	LeftJoin:  "left-join",
	RightJoin: "right-join",
	FullJoin:  "full-join",
	SemiJoin:  "semi-join",
	AntiJoin:  "anti-join",
}

func (t JoinType) String() string { return joinTypeNames[t] }

// JoinHint forces one of the inputs of a join to be broadcast, regardless of
// its estimated size.
type JoinHint uint8

const (
	NoHint JoinHint = iota
	BroadcastLeft
	BroadcastRight
)

func (h JoinHint) String() string {
	switch h {
	case BroadcastLeft:
		return "broadcast-left"
	case BroadcastRight:
		return "broadcast-right"
	}
	return ""
}

// JoinExpr combines the rows of two inputs. Semi and anti joins only produce
// the columns of the left input.
type JoinExpr struct {
	relBase
	Type        JoinType
	Left, Right RelExpr
	On          ScalarExpr
	Hint        JoinHint
}

// GroupByExpr groups the rows of its input by the grouping columns and
// computes aggregates over each group. With no grouping columns it produces
// exactly one row, even if the input is empty.
type GroupByExpr struct {
	relBase
	Input        RelExpr
	GroupingCols opt.ColList
	Aggregations []AggregationItem
}

// UnionAllExpr concatenates the rows of its inputs. InputCols[i] lists the
// columns of Inputs[i] that map positionally to Cols.
type UnionAllExpr struct {
	relBase
	Inputs    []RelExpr
	InputCols []opt.ColList
	Cols      opt.ColList
}

// LimitExpr returns at most Count rows of its input.
type LimitExpr struct {
	relBase
	Input RelExpr
	Count int64
}

// SortExpr orders the rows of its input.
type SortExpr struct {
	relBase
	Input    RelExpr
	Ordering opt.Ordering
}

func (*ScanExpr) Op() opt.Operator     { return opt.ScanOp }
func (*ValuesExpr) Op() opt.Operator   { return opt.ValuesOp }
func (*SelectExpr) Op() opt.Operator   { return opt.SelectOp }
func (*ProjectExpr) Op() opt.Operator  { return opt.ProjectOp }
func (*JoinExpr) Op() opt.Operator     { return opt.JoinOp }
func (*GroupByExpr) Op() opt.Operator  { return opt.GroupByOp }
func (*UnionAllExpr) Op() opt.Operator { return opt.UnionAllOp }
func (*LimitExpr) Op() opt.Operator    { return opt.LimitOp }
func (*SortExpr) Op() opt.Operator     { return opt.SortOp }

func (e *ScanExpr) OutputCols() opt.ColList   { return e.Cols }
func (e *ValuesExpr) OutputCols() opt.ColList { return e.Cols }
func (e *SelectExpr) OutputCols() opt.ColList { return e.Input.OutputCols() }
func (e *ProjectExpr) OutputCols() opt.ColList {
	res := make(opt.ColList, 0, len(e.Passthrough)+len(e.Projections))
	res = append(res, e.Passthrough...)
	for i := range e.Projections {
		res = append(res, e.Projections[i].Col)
	}
	return res
}
func (e *JoinExpr) OutputCols() opt.ColList {
	if e.Type == SemiJoin || e.Type == AntiJoin {
		return e.Left.OutputCols()
	}
	l, r := e.Left.OutputCols(), e.Right.OutputCols()
	res := make(opt.ColList, 0, len(l)+len(r))
	return append(append(res, l...), r...)
}
func (e *GroupByExpr) OutputCols() opt.ColList {
	res := make(opt.ColList, 0, len(e.GroupingCols)+len(e.Aggregations))
	res = append(res, e.GroupingCols...)
	for i := range e.Aggregations {
		res = append(res, e.Aggregations[i].Col)
	}
	return res
}
func (e *UnionAllExpr) OutputCols() opt.ColList { return e.Cols }
func (e *LimitExpr) OutputCols() opt.ColList    { return e.Input.OutputCols() }
func (e *SortExpr) OutputCols() opt.ColList     { return e.Input.OutputCols() }

// Children of relational expressions are their inputs followed by their
// scalar expressions. Projections and aggregations are children in item
// order.

func (*ScanExpr) ChildCount() int       { return 0 }
func (*ScanExpr) Child(nth int) opt.Expr { panic(errChildOutOfRange(nth)) }

func (*ValuesExpr) ChildCount() int       { return 0 }
func (*ValuesExpr) Child(nth int) opt.Expr { panic(errChildOutOfRange(nth)) }

func (*SelectExpr) ChildCount() int { return 2 }
func (e *SelectExpr) Child(nth int) opt.Expr {
	return pick2(nth, e.Input, e.Filter)
}

func (e *ProjectExpr) ChildCount() int { return 1 + len(e.Projections) }
func (e *ProjectExpr) Child(nth int) opt.Expr {
	if nth == 0 {
		return e.Input
	}
	return e.Projections[nth-1].Expr
}

func (*JoinExpr) ChildCount() int { return 3 }
func (e *JoinExpr) Child(nth int) opt.Expr {
	switch nth {
	case 0:
		return e.Left
	case 1:
		return e.Right
	case 2:
		return e.On
	}
	panic(errChildOutOfRange(nth))
}

func (e *GroupByExpr) ChildCount() int { return 1 + len(e.Aggregations) }
func (e *GroupByExpr) Child(nth int) opt.Expr {
	if nth == 0 {
		return e.Input
	}
	return e.Aggregations[nth-1].Agg
}

func (e *UnionAllExpr) ChildCount() int { return len(e.Inputs) }
func (e *UnionAllExpr) Child(nth int) opt.Expr {
	return e.Inputs[nth]
}

func (*LimitExpr) ChildCount() int { return 1 }
func (e *LimitExpr) Child(nth int) opt.Expr {
	return pick1(nth, e.Input)
}

func (*SortExpr) ChildCount() int { return 1 }
func (e *SortExpr) Child(nth int) opt.Expr {
	return pick1(nth, e.Input)
}

func errChildOutOfRange(nth int) error {
	return errors.AssertionFailedf("child index %d out of range", nth)
}

// IsSemiOrAnti returns true for joins that only produce left columns.
func (t JoinType) IsSemiOrAnti() bool {
	return t == SemiJoin || t == AntiJoin
}

// PreservesLeft returns true if every left row appears in the output of an
// outer join of the given type.
func (t JoinType) PreservesLeft() bool {
	return t == LeftJoin || t == FullJoin
}

// PreservesRight returns true if every right row appears in the output of an
// outer join of the given type.
func (t JoinType) PreservesRight() bool {
	return t == RightJoin || t == FullJoin
}

// ExtractEquiCols returns the pairs of columns that the join condition
// equates between the left and right inputs, plus the conjuncts that are
// not such equalities.
func ExtractEquiCols(
	on ScalarExpr, leftCols, rightCols opt.ColSet,
) (left, right opt.ColList, remaining []ScalarExpr) {
	for _, cond := range ConjunctionList(on) {
		if IsTrue(cond) {
			continue
		}
		if cmp, ok := cond.(*ComparisonExpr); ok && cmp.Operator == tree.EQ {
			lv, lok := cmp.Left.(*VariableExpr)
			rv, rok := cmp.Right.(*VariableExpr)
			if lok && rok {
				switch {
				case leftCols.Contains(lv.Col) && rightCols.Contains(rv.Col):
					left = append(left, lv.Col)
					right = append(right, rv.Col)
					continue
				case leftCols.Contains(rv.Col) && rightCols.Contains(lv.Col):
					left = append(left, rv.Col)
					right = append(right, lv.Col)
					continue
				}
			}
		}
		remaining = append(remaining, cond)
	}
	return left, right, remaining
}
