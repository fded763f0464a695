// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package memo defines the plan tree: a closed set of relational and scalar
// expression kinds, together with the routines that traverse, compare,
// canonicalize, type check, format and estimate them.
//
// Expressions are immutable once constructed. Rewrites never modify a node in
// place; they construct a new node (see ReplaceChildren and Transform), which
// means that a subtree may be shared by several trees at once.
package memo

import (
	"sync/atomic"

	"github.com/cockroachdb/relcore/pkg/sql/opt"
	"github.com/cockroachdb/relcore/pkg/sql/opt/props"
	"github.com/cockroachdb/relcore/pkg/sql/sem/tree"
	"github.com/cockroachdb/relcore/pkg/sql/types"
)

// ScalarExpr is a scalar expression, which is an expression that returns a
// primitive-typed value like boolean or string rather than rows and columns.
type ScalarExpr interface {
	opt.Expr

	// DataType is the SQL type of the expression.
	DataType() *types.T
}

// RelExpr is a relational expression, which returns a set of rows.
type RelExpr interface {
	opt.Expr

	// OutputCols returns the columns produced by the expression, in the order
	// in which they appear in its rows.
	OutputCols() opt.ColList

	// Statistics returns the statistics that were derived for the expression,
	// or nil if they have not been built yet. See StatisticsBuilder.
	Statistics() *props.Statistics

	statsSlot() *atomic.Pointer[props.Statistics]
}

// relBase is embedded in every relational expression and holds the lazily
// derived statistics. Expressions must not be copied by value once their
// statistics may have been set.
type relBase struct {
	stats atomic.Pointer[props.Statistics]
}

func (r *relBase) Statistics() *props.Statistics { return r.stats.Load() }

func (r *relBase) statsSlot() *atomic.Pointer[props.Statistics] { return &r.stats }

// -- Leaf scalar expressions --

// VariableExpr is a reference to a column produced by an input expression,
// or by an enclosing scope in the case of an outer reference.
type VariableExpr struct {
	Col opt.ColumnID
	Typ *types.T
}

// OrdinalExpr refers to a position in an input row. It only appears in bound
// expressions (see BindScalar).
type OrdinalExpr struct {
	Ordinal int
	Typ     *types.T
}

// ConstExpr is a literal value.
type ConstExpr struct {
	Value tree.Datum
	Typ   *types.T
}

// NewConst returns a constant expression typed with the value's type.
func NewConst(d tree.Datum) *ConstExpr {
	return &ConstExpr{Value: d, Typ: d.ResolvedType()}
}

// TrueSingleton and FalseSingleton are shared boolean constants.
var (
	TrueSingleton  = &ConstExpr{Value: tree.DBoolTrue, Typ: types.Bool}
	FalseSingleton = &ConstExpr{Value: tree.DBoolFalse, Typ: types.Bool}
)

// NullSingleton is an untyped NULL constant.
var NullSingleton = &ConstExpr{Value: tree.DNull, Typ: types.Unknown}

// -- Boolean connectives --

// AndExpr is the conjunction of two boolean expressions.
type AndExpr struct {
	Left, Right ScalarExpr
}

// OrExpr is the disjunction of two boolean expressions.
type OrExpr struct {
	Left, Right ScalarExpr
}

// NotExpr is the negation of a boolean expression.
type NotExpr struct {
	Input ScalarExpr
}

// ComparisonExpr compares two values.
type ComparisonExpr struct {
	Operator    tree.ComparisonOperator
	Left, Right ScalarExpr
}

// BinaryExpr is an arithmetic or string binary operation.
type BinaryExpr struct {
	Operator    tree.BinaryOperator
	Left, Right ScalarExpr
	Typ         *types.T
}

// UnaryMinusExpr negates a numeric value.
type UnaryMinusExpr struct {
	Input ScalarExpr
}

// IsNullExpr tests whether a value is NULL.
type IsNullExpr struct {
	Input ScalarExpr
}

// CoalesceExpr returns its first non-NULL argument.
type CoalesceExpr struct {
	Args []ScalarExpr
	Typ  *types.T
}

// IfExpr returns Then if Cond is true, and Else otherwise (including when
// Cond is NULL).
type IfExpr struct {
	Cond, Then, Else ScalarExpr
	Typ              *types.T
}

// CastExpr converts its input to another type.
type CastExpr struct {
	Input ScalarExpr
	Typ   *types.T
}

// FunctionExpr invokes a resolved scalar function overload.
type FunctionExpr struct {
	Overload *tree.Overload
	Args     []ScalarExpr
}

// AggregateExpr is an aggregate function call. It may only appear as an
// aggregation of a GroupByExpr.
type AggregateExpr struct {
	Name string
	Args []ScalarExpr
	// Distinct is set for aggregates over the distinct values of their
	// arguments, e.g. count(DISTINCT x).
	Distinct bool
	// Filter, if non-nil, restricts the rows fed to the aggregate.
	Filter ScalarExpr
	Typ    *types.T
}

// ExistsExpr tests whether a subquery returns any rows. The subquery may
// reference columns of the enclosing scope.
type ExistsExpr struct {
	Input RelExpr
}

// SubqueryExpr evaluates a subquery that returns a single column and at
// most one row.
type SubqueryExpr struct {
	Input RelExpr
	Typ   *types.T
}

// ProjectionItem is a column synthesized by a ProjectExpr.
type ProjectionItem struct {
	Col  opt.ColumnID
	Expr ScalarExpr
}

// AggregationItem is an aggregate computed by a GroupByExpr.
type AggregationItem struct {
	Col opt.ColumnID
	Agg *AggregateExpr
}

// Op implementations.

func (*VariableExpr) Op() opt.Operator   { return opt.VariableOp }
func (*OrdinalExpr) Op() opt.Operator    { return opt.OrdinalOp }
func (*ConstExpr) Op() opt.Operator      { return opt.ConstOp }
func (*AndExpr) Op() opt.Operator        { return opt.AndOp }
func (*OrExpr) Op() opt.Operator         { return opt.OrOp }
func (*NotExpr) Op() opt.Operator        { return opt.NotOp }
func (*ComparisonExpr) Op() opt.Operator { return opt.ComparisonOp }
func (*BinaryExpr) Op() opt.Operator     { return opt.BinaryOp }
func (*UnaryMinusExpr) Op() opt.Operator { return opt.UnaryMinusOp }
func (*IsNullExpr) Op() opt.Operator     { return opt.IsNullOp }
func (*CoalesceExpr) Op() opt.Operator   { return opt.CoalesceOp }
func (*IfExpr) Op() opt.Operator         { return opt.IfOp }
func (*CastExpr) Op() opt.Operator       { return opt.CastOp }
func (*FunctionExpr) Op() opt.Operator   { return opt.FunctionOp }
func (*AggregateExpr) Op() opt.Operator  { return opt.AggregateOp }
func (*ExistsExpr) Op() opt.Operator     { return opt.ExistsOp }
func (*SubqueryExpr) Op() opt.Operator   { return opt.SubqueryOp }

// DataType implementations.

func (e *VariableExpr) DataType() *types.T   { return e.Typ }
func (e *OrdinalExpr) DataType() *types.T    { return e.Typ }
func (e *ConstExpr) DataType() *types.T      { return e.Typ }
func (*AndExpr) DataType() *types.T          { return types.Bool }
func (*OrExpr) DataType() *types.T           { return types.Bool }
func (*NotExpr) DataType() *types.T          { return types.Bool }
func (*ComparisonExpr) DataType() *types.T   { return types.Bool }
func (e *BinaryExpr) DataType() *types.T     { return e.Typ }
func (e *UnaryMinusExpr) DataType() *types.T { return e.Input.DataType() }
func (*IsNullExpr) DataType() *types.T       { return types.Bool }
func (e *CoalesceExpr) DataType() *types.T   { return e.Typ }
func (e *IfExpr) DataType() *types.T         { return e.Typ }
func (e *CastExpr) DataType() *types.T       { return e.Typ }
func (e *FunctionExpr) DataType() *types.T   { return e.Overload.ReturnType }
func (e *AggregateExpr) DataType() *types.T  { return e.Typ }
func (*ExistsExpr) DataType() *types.T       { return types.Bool }
func (e *SubqueryExpr) DataType() *types.T   { return e.Typ }

// Child implementations.

func (*VariableExpr) ChildCount() int       { return 0 }
func (*VariableExpr) Child(nth int) opt.Expr { panic(errChildOutOfRange(nth)) }

func (*OrdinalExpr) ChildCount() int       { return 0 }
func (*OrdinalExpr) Child(nth int) opt.Expr { panic(errChildOutOfRange(nth)) }

func (*ConstExpr) ChildCount() int       { return 0 }
func (*ConstExpr) Child(nth int) opt.Expr { panic(errChildOutOfRange(nth)) }

func (*AndExpr) ChildCount() int { return 2 }
func (e *AndExpr) Child(nth int) opt.Expr {
	return pick2(nth, e.Left, e.Right)
}

func (*OrExpr) ChildCount() int { return 2 }
func (e *OrExpr) Child(nth int) opt.Expr {
	return pick2(nth, e.Left, e.Right)
}

func (*NotExpr) ChildCount() int { return 1 }
func (e *NotExpr) Child(nth int) opt.Expr {
	return pick1(nth, e.Input)
}

func (*ComparisonExpr) ChildCount() int { return 2 }
func (e *ComparisonExpr) Child(nth int) opt.Expr {
	return pick2(nth, e.Left, e.Right)
}

func (*BinaryExpr) ChildCount() int { return 2 }
func (e *BinaryExpr) Child(nth int) opt.Expr {
	return pick2(nth, e.Left, e.Right)
}

func (*UnaryMinusExpr) ChildCount() int { return 1 }
func (e *UnaryMinusExpr) Child(nth int) opt.Expr {
	return pick1(nth, e.Input)
}

func (*IsNullExpr) ChildCount() int { return 1 }
func (e *IsNullExpr) Child(nth int) opt.Expr {
	return pick1(nth, e.Input)
}

func (e *CoalesceExpr) ChildCount() int { return len(e.Args) }
func (e *CoalesceExpr) Child(nth int) opt.Expr {
	return e.Args[nth]
}

func (*IfExpr) ChildCount() int { return 3 }
func (e *IfExpr) Child(nth int) opt.Expr {
	switch nth {
	case 0:
		return e.Cond
	case 1:
		return e.Then
	case 2:
		return e.Else
	}
	panic(errChildOutOfRange(nth))
}

func (*CastExpr) ChildCount() int { return 1 }
func (e *CastExpr) Child(nth int) opt.Expr {
	return pick1(nth, e.Input)
}

func (e *FunctionExpr) ChildCount() int { return len(e.Args) }
func (e *FunctionExpr) Child(nth int) opt.Expr {
	return e.Args[nth]
}

// ChildCount returns the number of arguments, plus one if there is a filter.
// The filter is the last child.
func (e *AggregateExpr) ChildCount() int {
	if e.Filter != nil {
		return len(e.Args) + 1
	}
	return len(e.Args)
}

func (e *AggregateExpr) Child(nth int) opt.Expr {
	if nth == len(e.Args) && e.Filter != nil {
		return e.Filter
	}
	return e.Args[nth]
}

func (*ExistsExpr) ChildCount() int { return 1 }
func (e *ExistsExpr) Child(nth int) opt.Expr {
	return pick1(nth, e.Input)
}

func (*SubqueryExpr) ChildCount() int { return 1 }
func (e *SubqueryExpr) Child(nth int) opt.Expr {
	return pick1(nth, e.Input)
}

func pick1(nth int, e opt.Expr) opt.Expr {
	if nth == 0 {
		return e
	}
	panic(errChildOutOfRange(nth))
}

func pick2(nth int, l, r opt.Expr) opt.Expr {
	switch nth {
	case 0:
		return l
	case 1:
		return r
	}
	panic(errChildOutOfRange(nth))
}

// IsConstValue returns true if the expression is a constant.
func IsConstValue(e opt.Expr) bool {
	_, ok := e.(*ConstExpr)
	return ok
}

// ExtractConstDatum returns the datum of a constant expression.
func ExtractConstDatum(e opt.Expr) tree.Datum {
	return e.(*ConstExpr).Value
}

// IsDeterministic returns false if evaluating the scalar expression twice
// over the same row may produce different results.
func IsDeterministic(e ScalarExpr) bool {
	det := true
	walkScalar(e, func(s ScalarExpr) bool {
		if f, ok := s.(*FunctionExpr); ok && f.Overload.Volatile {
			det = false
		}
		return det
	})
	return det
}

// IsFoldable returns true if the scalar expression can be evaluated without
// an input row: it references no columns, aggregates, subqueries, or
// volatile functions.
func IsFoldable(e ScalarExpr) bool {
	foldable := true
	walkScalar(e, func(s ScalarExpr) bool {
		switch t := s.(type) {
		case *VariableExpr, *OrdinalExpr, *AggregateExpr, *ExistsExpr, *SubqueryExpr:
			foldable = false
		case *FunctionExpr:
			if t.Overload.Volatile {
				foldable = false
			}
		}
		return foldable
	})
	return foldable
}

// walkScalar calls fn on e and its scalar descendants in pre-order, without
// descending into subquery plans. Traversal stops early if fn returns false.
func walkScalar(e ScalarExpr, fn func(ScalarExpr) bool) bool {
	if !fn(e) {
		return false
	}
	switch e.(type) {
	case *ExistsExpr, *SubqueryExpr:
		return true
	}
	for i, n := 0, e.ChildCount(); i < n; i++ {
		if !walkScalar(e.Child(i).(ScalarExpr), fn) {
			return false
		}
	}
	return true
}

// ContainsAggregate returns true if the expression contains an aggregate
// function call outside of any subquery.
func ContainsAggregate(e ScalarExpr) bool {
	found := false
	walkScalar(e, func(s ScalarExpr) bool {
		if _, ok := s.(*AggregateExpr); ok {
			found = true
		}
		return !found
	})
	return found
}

// ContainsSubquery returns true if the expression embeds a subquery.
func ContainsSubquery(e ScalarExpr) bool {
	found := false
	walkScalar(e, func(s ScalarExpr) bool {
		switch s.(type) {
		case *ExistsExpr, *SubqueryExpr:
			found = true
		}
		return !found
	})
	return found
}

// ConjunctionList flattens a tree of AndExprs into the list of its
// conjuncts. A nil expression yields an empty list.
func ConjunctionList(e ScalarExpr) []ScalarExpr {
	var res []ScalarExpr
	var walk func(e ScalarExpr)
	walk = func(e ScalarExpr) {
		if and, ok := e.(*AndExpr); ok {
			walk(and.Left)
			walk(and.Right)
			return
		}
		res = append(res, e)
	}
	if e != nil {
		walk(e)
	}
	return res
}

// MakeConjunction combines the given conditions into a left-deep tree of
// AndExprs. An empty list yields TrueSingleton.
func MakeConjunction(conds []ScalarExpr) ScalarExpr {
	if len(conds) == 0 {
		return TrueSingleton
	}
	res := conds[0]
	for _, c := range conds[1:] {
		res = &AndExpr{Left: res, Right: c}
	}
	return res
}

// IsTrue returns true if e is the constant true.
func IsTrue(e ScalarExpr) bool {
	if c, ok := e.(*ConstExpr); ok {
		b, ok := c.Value.(*tree.DBool)
		return ok && bool(*b)
	}
	return false
}

// IsFalseOrNull returns true if e is the constant false or NULL.
func IsFalseOrNull(e ScalarExpr) bool {
	if c, ok := e.(*ConstExpr); ok {
		if c.Value == tree.DNull {
			return true
		}
		b, ok := c.Value.(*tree.DBool)
		return ok && !bool(*b)
	}
	return false
}
