// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package memo

import (
	"github.com/cockroachdb/relcore/pkg/sql/opt"
	"github.com/cockroachdb/relcore/pkg/sql/sem/tree"
)

// Equal returns true if the two expressions are structurally identical: same
// operators, same private fields and equal children. Two separately
// allocated trees with the same shape are equal.
func Equal(a, b opt.Expr) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil || a.Op() != b.Op() || a.ChildCount() != b.ChildCount() {
		return false
	}
	if !privatesEqual(a, b) {
		return false
	}
	for i, n := 0, a.ChildCount(); i < n; i++ {
		if !Equal(a.Child(i), b.Child(i)) {
			return false
		}
	}
	return true
}

// privatesEqual compares the fields of two expressions of the same operator
// that are not children.
func privatesEqual(a, b opt.Expr) bool {
	switch l := a.(type) {
	case *ScanExpr:
		r := b.(*ScanExpr)
		return l.Table == r.Table && l.Cols.Equals(r.Cols)
	case *ValuesExpr:
		r := b.(*ValuesExpr)
		if !l.Cols.Equals(r.Cols) || len(l.Rows) != len(r.Rows) {
			return false
		}
		for i := range l.Rows {
			if !datumsEqual(l.Rows[i], r.Rows[i]) {
				return false
			}
		}
		return true
	case *ProjectExpr:
		r := b.(*ProjectExpr)
		if !l.Passthrough.Equals(r.Passthrough) {
			return false
		}
		for i := range l.Projections {
			if l.Projections[i].Col != r.Projections[i].Col {
				return false
			}
		}
		return true
	case *JoinExpr:
		r := b.(*JoinExpr)
		return l.Type == r.Type && l.Hint == r.Hint
	case *GroupByExpr:
		r := b.(*GroupByExpr)
		if !l.GroupingCols.Equals(r.GroupingCols) {
			return false
		}
		for i := range l.Aggregations {
			if l.Aggregations[i].Col != r.Aggregations[i].Col {
				return false
			}
		}
		return true
	case *UnionAllExpr:
		r := b.(*UnionAllExpr)
		if !l.Cols.Equals(r.Cols) {
			return false
		}
		for i := range l.InputCols {
			if !l.InputCols[i].Equals(r.InputCols[i]) {
				return false
			}
		}
		return true
	case *LimitExpr:
		return l.Count == b.(*LimitExpr).Count
	case *SortExpr:
		return l.Ordering.Equals(b.(*SortExpr).Ordering)

	case *VariableExpr:
		r := b.(*VariableExpr)
		return l.Col == r.Col && l.Typ == r.Typ
	case *OrdinalExpr:
		r := b.(*OrdinalExpr)
		return l.Ordinal == r.Ordinal && l.Typ == r.Typ
	case *ConstExpr:
		r := b.(*ConstExpr)
		return l.Typ == r.Typ && datumEqual(l.Value, r.Value)
	case *ComparisonExpr:
		return l.Operator == b.(*ComparisonExpr).Operator
	case *BinaryExpr:
		r := b.(*BinaryExpr)
		return l.Operator == r.Operator && l.Typ == r.Typ
	case *CoalesceExpr:
		return l.Typ == b.(*CoalesceExpr).Typ
	case *IfExpr:
		return l.Typ == b.(*IfExpr).Typ
	case *CastExpr:
		return l.Typ == b.(*CastExpr).Typ
	case *FunctionExpr:
		return l.Overload == b.(*FunctionExpr).Overload
	case *AggregateExpr:
		r := b.(*AggregateExpr)
		return l.Name == r.Name && l.Distinct == r.Distinct && l.Typ == r.Typ &&
			len(l.Args) == len(r.Args) && (l.Filter == nil) == (r.Filter == nil)
	case *SubqueryExpr:
		return l.Typ == b.(*SubqueryExpr).Typ
	}
	return true
}

// datumEqual returns true if the datums have the same type and value.
// Values of different types never compare equal, so that 1 and 1.0 remain
// distinct constants.
func datumEqual(a, b tree.Datum) bool {
	if a.ResolvedType() != b.ResolvedType() {
		return false
	}
	c, err := tree.CompareError(a, b)
	return err == nil && c == 0
}

func datumsEqual(a, b tree.Datums) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !datumEqual(a[i], b[i]) {
			return false
		}
	}
	return true
}
