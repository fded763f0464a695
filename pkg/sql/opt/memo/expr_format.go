// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package memo

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/cockroachdb/relcore/pkg/sql/opt"
	"github.com/cockroachdb/relcore/pkg/sql/sem/tree"
	"github.com/cockroachdb/relcore/pkg/sql/types"
	"github.com/cockroachdb/relcore/pkg/util/treeprinter"
)

// ExprFmtFlags controls which properties of the expression are shown in
// formatted output.
type ExprFmtFlags int

const (
	// ExprFmtShowAll shows all properties of the expression.
	ExprFmtShowAll ExprFmtFlags = 0

	// ExprFmtHideStats does not show statistics in the output.
	ExprFmtHideStats ExprFmtFlags = 1 << (iota - 1)

	// ExprFmtHideColumns removes column information.
	ExprFmtHideColumns

	// ExprFmtHideTypes hides type information from columns.
	ExprFmtHideTypes

	// ExprFmtHideAll shows only the basic structure of the expression.
	ExprFmtHideAll ExprFmtFlags = (1 << iota) - 1
)

// HasFlags tests whether the given flags are all set.
func (f ExprFmtFlags) HasFlags(subset ExprFmtFlags) bool {
	return f&subset == subset
}

// FormatExpr returns a string representation of the given expression,
// formatted according to the specified flags. The metadata is used to label
// columns; if it is nil, columns are shown as @id.
func FormatExpr(e opt.Expr, flags ExprFmtFlags, md *opt.Metadata) string {
	f := MakeExprFmtCtx(flags, md)
	f.FormatExpr(e)
	return f.Buffer.String()
}

// FormatScalar returns the single-line SQL-like form of a scalar expression.
// Embedded subqueries are abbreviated.
func FormatScalar(e ScalarExpr, md *opt.Metadata) string {
	f := MakeExprFmtCtx(ExprFmtHideAll, md)
	f.formatScalarText(e)
	return f.Buffer.String()
}

// ExprFmtCtx is passed as context to expression formatting functions, which
// need to know the formatting flags and metadata in order to format.
type ExprFmtCtx struct {
	Buffer *bytes.Buffer

	// Flags controls how the expression is formatted.
	Flags ExprFmtFlags

	// Metadata is used to look up column aliases. It may be nil.
	Metadata *opt.Metadata
}

// MakeExprFmtCtx creates an expression formatting context from a new buffer.
func MakeExprFmtCtx(flags ExprFmtFlags, md *opt.Metadata) ExprFmtCtx {
	return ExprFmtCtx{Buffer: &bytes.Buffer{}, Flags: flags, Metadata: md}
}

// FormatExpr constructs a treeprinter view of the given expression for
// testing and debugging, according to the flags in this context.
func (f *ExprFmtCtx) FormatExpr(e opt.Expr) {
	tp := treeprinter.New()
	f.formatExpr(e, tp)
	f.Buffer.Reset()
	f.Buffer.WriteString(tp.String())
}

func (f *ExprFmtCtx) formatExpr(e opt.Expr, tp treeprinter.Node) {
	if rel, ok := e.(RelExpr); ok {
		f.formatRelational(rel, tp)
		return
	}
	f.formatScalarNode(e.(ScalarExpr), tp)
}

func (f *ExprFmtCtx) formatRelational(e RelExpr, tp treeprinter.Node) {
	f.Buffer.Reset()
	f.Buffer.WriteString(e.Op().String())
	switch t := e.(type) {
	case *ScanExpr:
		fmt.Fprintf(f.Buffer, " %s", t.Table.Name())
	case *JoinExpr:
		f.Buffer.Reset()
		f.Buffer.WriteString(t.Type.String())
		if t.Hint != NoHint {
			fmt.Fprintf(f.Buffer, " (%s)", t.Hint)
		}
	}
	tp = tp.Child(f.Buffer.String())

	if !f.Flags.HasFlags(ExprFmtHideColumns) {
		tp.Child("columns: " + f.colList(e.OutputCols()))
	}
	if s := e.Statistics(); s != nil && !f.Flags.HasFlags(ExprFmtHideStats) {
		tp.Childf("stats: [%s]", s)
	}

	switch t := e.(type) {
	case *ValuesExpr:
		for _, row := range t.Rows {
			tp.Child(row.String())
		}
		return

	case *SelectExpr:
		f.formatRelational(t.Input, tp)
		f.formatConditions("filters", t.Filter, tp)

	case *ProjectExpr:
		f.formatRelational(t.Input, tp)
		if len(t.Projections) > 0 {
			n := tp.Child("projections")
			for i := range t.Projections {
				item := &t.Projections[i]
				f.formatScalarWithLabel(item.Expr, fmt.Sprintf(" [as=%s]", f.colLabel(item.Col)), n)
			}
		}

	case *JoinExpr:
		f.formatRelational(t.Left, tp)
		f.formatRelational(t.Right, tp)
		f.formatConditions("filters", t.On, tp)

	case *GroupByExpr:
		if len(t.GroupingCols) > 0 {
			tp.Child("grouping columns: " + f.colList(t.GroupingCols))
		}
		f.formatRelational(t.Input, tp)
		if len(t.Aggregations) > 0 {
			n := tp.Child("aggregations")
			for i := range t.Aggregations {
				item := &t.Aggregations[i]
				f.formatScalarWithLabel(item.Agg, fmt.Sprintf(" [as=%s]", f.colLabel(item.Col)), n)
			}
		}

	case *UnionAllExpr:
		for i, in := range t.Inputs {
			tp.Childf("input %d: %s", i, f.colList(t.InputCols[i]))
			f.formatRelational(in, tp)
		}

	case *LimitExpr:
		f.formatRelational(t.Input, tp)
		tp.Childf("count: %d", t.Count)

	case *SortExpr:
		tp.Child("ordering: " + t.Ordering.String())
		f.formatRelational(t.Input, tp)
	}
}

// formatConditions formats a conjunction as a list of its conjuncts.
func (f *ExprFmtCtx) formatConditions(label string, cond ScalarExpr, tp treeprinter.Node) {
	if IsTrue(cond) {
		tp.Child(label + " (true)")
		return
	}
	n := tp.Child(label)
	for _, c := range ConjunctionList(cond) {
		f.formatScalarNode(c, n)
	}
}

func (f *ExprFmtCtx) formatScalarNode(e ScalarExpr, tp treeprinter.Node) {
	f.formatScalarWithLabel(e, "", tp)
}

// formatScalarWithLabel formats the scalar on one line, followed by the
// plans of any subqueries it embeds.
func (f *ExprFmtCtx) formatScalarWithLabel(e ScalarExpr, label string, tp treeprinter.Node) {
	f.Buffer.Reset()
	f.formatScalarText(e)
	f.Buffer.WriteString(label)
	n := tp.Child(f.Buffer.String())
	for _, sub := range subqueries(e) {
		f.formatRelational(sub, n)
	}
}

// subqueries returns the plans of the subqueries embedded in a scalar, in
// traversal order.
func subqueries(e ScalarExpr) []RelExpr {
	var res []RelExpr
	walkScalar(e, func(s ScalarExpr) bool {
		switch t := s.(type) {
		case *ExistsExpr:
			res = append(res, t.Input)
		case *SubqueryExpr:
			res = append(res, t.Input)
		}
		return true
	})
	return res
}

func (f *ExprFmtCtx) formatScalarText(e ScalarExpr) {
	buf := f.Buffer
	child := func(c ScalarExpr) {
		switch c.(type) {
		case *AndExpr, *OrExpr, *ComparisonExpr, *BinaryExpr, *IsNullExpr, *NotExpr:
			buf.WriteByte('(')
			f.formatScalarText(c)
			buf.WriteByte(')')
		default:
			f.formatScalarText(c)
		}
	}
	list := func(args []ScalarExpr) {
		for i, a := range args {
			if i > 0 {
				buf.WriteString(", ")
			}
			f.formatScalarText(a)
		}
	}

	switch t := e.(type) {
	case *VariableExpr:
		buf.WriteString(f.colLabel(t.Col))
	case *OrdinalExpr:
		fmt.Fprintf(buf, "$%d", t.Ordinal)
	case *ConstExpr:
		buf.WriteString(t.Value.String())
		if t.Value == tree.DNull && t.Typ != types.Unknown && !f.Flags.HasFlags(ExprFmtHideTypes) {
			fmt.Fprintf(buf, "::%s", t.Typ)
		}
	case *AndExpr:
		child(t.Left)
		buf.WriteString(" AND ")
		child(t.Right)
	case *OrExpr:
		child(t.Left)
		buf.WriteString(" OR ")
		child(t.Right)
	case *NotExpr:
		buf.WriteString("NOT ")
		child(t.Input)
	case *ComparisonExpr:
		child(t.Left)
		fmt.Fprintf(buf, " %s ", t.Operator)
		child(t.Right)
	case *BinaryExpr:
		child(t.Left)
		fmt.Fprintf(buf, " %s ", t.Operator)
		child(t.Right)
	case *UnaryMinusExpr:
		buf.WriteByte('-')
		child(t.Input)
	case *IsNullExpr:
		child(t.Input)
		buf.WriteString(" IS NULL")
	case *CoalesceExpr:
		buf.WriteString("COALESCE(")
		list(t.Args)
		buf.WriteByte(')')
	case *IfExpr:
		buf.WriteString("IF(")
		list([]ScalarExpr{t.Cond, t.Then, t.Else})
		buf.WriteByte(')')
	case *CastExpr:
		buf.WriteString("CAST(")
		f.formatScalarText(t.Input)
		fmt.Fprintf(buf, " AS %s)", t.Typ)
	case *FunctionExpr:
		buf.WriteString(t.Overload.Name)
		buf.WriteByte('(')
		list(t.Args)
		buf.WriteByte(')')
	case *AggregateExpr:
		buf.WriteString(t.Name)
		buf.WriteByte('(')
		if t.Distinct {
			buf.WriteString("DISTINCT ")
		}
		list(t.Args)
		buf.WriteByte(')')
		if t.Filter != nil {
			buf.WriteString(" FILTER (WHERE ")
			f.formatScalarText(t.Filter)
			buf.WriteByte(')')
		}
	case *ExistsExpr:
		buf.WriteString("EXISTS (subquery)")
	case *SubqueryExpr:
		buf.WriteString("(subquery)")
	default:
		fmt.Fprintf(buf, "<%s>", e.Op())
	}
}

// colLabel returns "alias:id" if metadata is available, and "@id"
// otherwise.
func (f *ExprFmtCtx) colLabel(col opt.ColumnID) string {
	if f.Metadata == nil || !f.Metadata.HasColumn(col) {
		return fmt.Sprintf("@%d", col)
	}
	return fmt.Sprintf("%s:%d", f.Metadata.ColumnMeta(col).Alias, col)
}

func (f *ExprFmtCtx) colList(cols opt.ColList) string {
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = f.colLabel(c)
		if f.Metadata != nil && f.Metadata.HasColumn(c) && !f.Flags.HasFlags(ExprFmtHideTypes) {
			parts[i] += "(" + f.Metadata.ColumnMeta(c).Type.String() + ")"
		}
	}
	return strings.Join(parts, " ")
}
