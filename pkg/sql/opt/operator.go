// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package opt

import "fmt"

// Operator describes the type of operation that a memo expression performs.
// The set of operators is closed; code switching over operators is expected
// to be exhaustive.
type Operator uint16

const (
	// UnknownOp is not a valid operator.
	UnknownOp Operator = iota

	// -- Relational operators --

	// ScanOp reads all rows of a base table.
	ScanOp
	// ValuesOp returns a constant set of rows.
	ValuesOp
	// SelectOp filters rows of its input.
	SelectOp
	// ProjectOp computes new columns from its input.
	ProjectOp
	// JoinOp combines two inputs; the join type is stored on the expression.
	JoinOp
	// GroupByOp groups rows and computes aggregates.
	GroupByOp
	// UnionAllOp concatenates its inputs.
	UnionAllOp
	// LimitOp returns the first N rows of its input.
	LimitOp
	// SortOp orders the rows of its input.
	SortOp

	// -- Scalar operators --

	// VariableOp refers to a column by ColumnID.
	VariableOp
	// OrdinalOp refers to a position in an input row. It appears only in
	// bound expressions, after column ids have been resolved against a
	// concrete input layout.
	OrdinalOp
	ConstOp
	AndOp
	OrOp
	NotOp
	ComparisonOp
	BinaryOp
	UnaryMinusOp
	IsNullOp
	CoalesceOp
	IfOp
	CastOp
	FunctionOp
	AggregateOp
	// ExistsOp tests whether a subquery returns any rows.
	ExistsOp
	// SubqueryOp returns the single value produced by a subquery.
	SubqueryOp

	// NumOperators tracks the total count of operators.
	NumOperators
)

var opNames = [...]string{
	UnknownOp:    "unknown",
	ScanOp:       "scan",
	ValuesOp:     "values",
	SelectOp:     "select",
	ProjectOp:    "project",
	JoinOp:       "join",
	GroupByOp:    "group-by",
	UnionAllOp:   "union-all",
	LimitOp:      "limit",
	SortOp:       "sort",
	VariableOp:   "variable",
	OrdinalOp:    "ordinal",
	ConstOp:      "const",
	AndOp:        "and",
	OrOp:         "or",
	NotOp:        "not",
	ComparisonOp: "comparison",
	BinaryOp:     "binary",
	UnaryMinusOp: "unary-minus",
	IsNullOp:     "is-null",
	CoalesceOp:   "coalesce",
	IfOp:         "if",
	CastOp:       "cast",
	FunctionOp:   "function",
	AggregateOp:  "aggregate",
	ExistsOp:     "exists",
	SubqueryOp:   "subquery",
}

func (op Operator) String() string {
	if op >= NumOperators {
		return fmt.Sprintf("Operator(%d)", op)
	}
	return opNames[op]
}

// IsRelational returns true for operators producing a set of rows.
func (op Operator) IsRelational() bool {
	return op >= ScanOp && op <= SortOp
}

// Expr is implemented by every node of a plan tree, relational or scalar.
// Expressions are immutable: transformations build new nodes.
type Expr interface {
	// Op returns the operator type of the expression.
	Op() Operator

	// ChildCount returns the number of children of the expression. This
	// count does not include subquery plans embedded in scalar expressions;
	// those are exposed as children of the ExistsOp/SubqueryOp node itself.
	ChildCount() int

	// Child returns the nth child of the expression.
	Child(nth int) Expr
}
