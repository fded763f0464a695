// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package optbuilder

import (
	"github.com/cockroachdb/relcore/pkg/sql/opt/memo"
	"github.com/cockroachdb/relcore/pkg/sql/sem/tree"
	"github.com/cockroachdb/relcore/pkg/sql/types"
)

// RelNode is a node of an unresolved relational query. Columns are referred
// to by name; the Builder binds them to column ids.
type RelNode interface {
	relNode()
}

// ScalarNode is a node of an unresolved scalar expression.
type ScalarNode interface {
	scalarNode()
}

// Table reads all the columns of a catalog table. Alias, if set, replaces
// the table name as the qualifier of its columns.
type Table struct {
	Name  string
	Alias string
}

// ValuesColumn names and types a column of a Values node.
type ValuesColumn struct {
	Name string
	Type *types.T
}

// Values is a constant relation.
type Values struct {
	Columns []ValuesColumn
	Rows    []tree.Datums
}

// Filter keeps the input rows for which Cond is true.
type Filter struct {
	Input RelNode
	Cond  ScalarNode
}

// NamedExpr is an expression with an optional output name. A bare column
// reference with no alias passes the column through.
type NamedExpr struct {
	Expr  ScalarNode
	Alias string
}

// Project computes a new set of columns from its input.
type Project struct {
	Input RelNode
	Exprs []NamedExpr
}

// Join combines two inputs.
type Join struct {
	Type        memo.JoinType
	Left, Right RelNode
	// On is nil for a cross join.
	On   ScalarNode
	Hint memo.JoinHint
}

// Aggregate groups its input by the named columns. Each output expression
// may combine aggregate function calls and grouping columns.
type Aggregate struct {
	Input   RelNode
	GroupBy []string
	Aggs    []NamedExpr
}

// UnionAll concatenates inputs with the same number of columns. Output
// columns are named after the first input.
type UnionAll struct {
	Inputs []RelNode
}

// Limit returns at most Count rows.
type Limit struct {
	Input RelNode
	Count int64
}

// OrderColumn is a sort key.
type OrderColumn struct {
	Name string
	Desc bool
}

// OrderBy sorts its input.
type OrderBy struct {
	Input RelNode
	Cols  []OrderColumn
}

func (*Table) relNode()     {}
func (*Values) relNode()    {}
func (*Filter) relNode()    {}
func (*Project) relNode()   {}
func (*Join) relNode()      {}
func (*Aggregate) relNode() {}
func (*UnionAll) relNode()  {}
func (*Limit) relNode()     {}
func (*OrderBy) relNode()   {}

// ColRef refers to a column by name, optionally qualified as "table.column".
type ColRef struct {
	Name string
}

// Lit is a constant.
type Lit struct {
	Value tree.Datum
}

// Null is a NULL constant of the given type; nil means unknown.
type Null struct {
	Type *types.T
}

// And is a conjunction.
type And struct{ Left, Right ScalarNode }

// Or is a disjunction.
type Or struct{ Left, Right ScalarNode }

// Not is a negation.
type Not struct{ Input ScalarNode }

// Cmp is a comparison.
type Cmp struct {
	Op          tree.ComparisonOperator
	Left, Right ScalarNode
}

// Bin is an arithmetic or concatenation operator.
type Bin struct {
	Op          tree.BinaryOperator
	Left, Right ScalarNode
}

// Neg is a unary minus.
type Neg struct{ Input ScalarNode }

// IsNull tests for NULL.
type IsNull struct{ Input ScalarNode }

// Coalesce returns its first non-NULL argument.
type Coalesce struct{ Args []ScalarNode }

// If is a conditional.
type If struct{ Cond, Then, Else ScalarNode }

// Cast converts its input to Type.
type Cast struct {
	Input ScalarNode
	Type  *types.T
}

// Call is a call to a scalar or aggregate function. Star is set for
// count(*). Distinct and Filter apply only to aggregates.
type Call struct {
	Name     string
	Args     []ScalarNode
	Star     bool
	Distinct bool
	Filter   ScalarNode
}

// Exists tests whether a subquery returns any rows.
type Exists struct{ Sub RelNode }

// Subquery is a scalar subquery returning one column and at most one row.
type Subquery struct{ Sub RelNode }

func (*ColRef) scalarNode()   {}
func (*Lit) scalarNode()      {}
func (*Null) scalarNode()     {}
func (*And) scalarNode()      {}
func (*Or) scalarNode()       {}
func (*Not) scalarNode()      {}
func (*Cmp) scalarNode()      {}
func (*Bin) scalarNode()      {}
func (*Neg) scalarNode()      {}
func (*IsNull) scalarNode()   {}
func (*Coalesce) scalarNode() {}
func (*If) scalarNode()       {}
func (*Cast) scalarNode()     {}
func (*Call) scalarNode()     {}
func (*Exists) scalarNode()   {}
func (*Subquery) scalarNode() {}
