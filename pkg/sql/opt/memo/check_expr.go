// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package memo

import (
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/redact"
	"github.com/cockroachdb/relcore/pkg/sql/opt"
	"github.com/cockroachdb/relcore/pkg/sql/sem/tree"
	"github.com/cockroachdb/relcore/pkg/sql/types"
)

// ErrUnresolved marks errors for plans that reference columns that cannot
// be bound, or that apply operators to operands of incompatible types. Such
// errors are not retryable.
var ErrUnresolved = errors.New("unresolved plan")

// ErrUnsupported marks errors for well-formed plans that use a feature the
// engine does not implement.
var ErrUnsupported = errors.New("unsupported plan")

// CheckExpr verifies that a plan is resolved: every column reference is
// produced by an input of the node that makes it (or, within a subquery, by
// an enclosing scope), and every operator is applied to operands of
// compatible types. The returned error carries the offending fragment.
func CheckExpr(md *opt.Metadata, e RelExpr) error {
	c := checker{md: md}
	return c.checkRel(e, opt.ColSet{})
}

type checker struct {
	md *opt.Metadata
}

func (c *checker) unresolvedf(fragment opt.Expr, format string, args ...interface{}) error {
	err := errors.Newf(format, args...)
	err = errors.WithDetailf(err, "in %s", redact.Safe(c.fragment(fragment)))
	return errors.Mark(err, ErrUnresolved)
}

func (c *checker) fragment(e opt.Expr) string {
	if s, ok := e.(ScalarExpr); ok {
		return FormatScalar(s, c.md)
	}
	return FormatExpr(e, ExprFmtHideStats|ExprFmtHideTypes, c.md)
}

func (c *checker) colLabel(col opt.ColumnID) redact.SafeString {
	f := MakeExprFmtCtx(ExprFmtHideAll, c.md)
	return redact.SafeString(f.colLabel(col))
}

func (c *checker) checkRel(e RelExpr, outer opt.ColSet) error {
	var inputCols opt.ColSet
	for i, n := 0, e.ChildCount(); i < n; i++ {
		if rel, ok := e.Child(i).(RelExpr); ok {
			if err := c.checkRel(rel, outer); err != nil {
				return err
			}
			inputCols.UnionWith(rel.OutputCols().ToSet())
		}
	}
	scope := inputCols.Union(outer)

	requireInput := func(cols opt.ColList, what string) error {
		for _, col := range cols {
			if !inputCols.Contains(col) {
				return c.unresolvedf(e, "%s column %s is not produced by the input",
					redact.SafeString(what), c.colLabel(col))
			}
		}
		return nil
	}

	switch t := e.(type) {
	case *ScanExpr:
		if len(t.Cols) != t.Table.ColumnCount() {
			return errors.AssertionFailedf("scan of %s has %d columns, table has %d",
				redact.Safe(t.Table.Name()), len(t.Cols), t.Table.ColumnCount())
		}

	case *ValuesExpr:
		for _, row := range t.Rows {
			if len(row) != len(t.Cols) {
				return c.unresolvedf(e, "values row has %d columns, expected %d", len(row), len(t.Cols))
			}
			if c.md == nil {
				continue
			}
			for i, d := range row {
				if typ := c.md.ColumnMeta(t.Cols[i]).Type; !d.ResolvedType().Equivalent(typ) {
					return c.unresolvedf(e, "value %s is not of type %s", redact.Safe(d.String()), typ)
				}
			}
		}

	case *SelectExpr:
		return c.checkCondition(t.Filter, scope)

	case *ProjectExpr:
		if err := requireInput(t.Passthrough, "passthrough"); err != nil {
			return err
		}
		for i := range t.Projections {
			if t.Projections[i].Col == 0 {
				return errors.AssertionFailedf("projection column cannot have id 0")
			}
			if err := c.checkScalar(t.Projections[i].Expr, scope, false); err != nil {
				return err
			}
		}

	case *JoinExpr:
		return c.checkCondition(t.On, scope)

	case *GroupByExpr:
		if err := requireInput(t.GroupingCols, "grouping"); err != nil {
			return err
		}
		var distinctCols opt.ColSet
		haveDistinct := false
		for i := range t.Aggregations {
			agg := t.Aggregations[i].Agg
			if err := c.checkScalar(agg, scope, true); err != nil {
				return err
			}
			if !agg.Distinct {
				continue
			}
			var cols opt.ColSet
			for _, arg := range agg.Args {
				v, ok := arg.(*VariableExpr)
				if !ok {
					return errors.Mark(errors.WithHint(
						errors.Newf("DISTINCT argument of %s must be a column", redact.SafeString(agg.Name)),
						"project the argument into a column first"), ErrUnsupported)
				}
				cols.Add(v.Col)
			}
			if haveDistinct && !cols.Equals(distinctCols) {
				return errors.Mark(errors.WithHint(
					errors.Newf("aggregates with DISTINCT over different column sets are not supported: %s and %s",
						distinctCols, cols),
					"rewrite the query with one DISTINCT column set per aggregation"), ErrUnsupported)
			}
			haveDistinct, distinctCols = true, cols
		}

	case *UnionAllExpr:
		if len(t.Inputs) != len(t.InputCols) {
			return errors.AssertionFailedf("union with %d inputs has %d column lists",
				len(t.Inputs), len(t.InputCols))
		}
		for i, in := range t.Inputs {
			cols := t.InputCols[i]
			if len(cols) != len(t.Cols) {
				return c.unresolvedf(e, "union input %d has %d columns, expected %d", i, len(cols), len(t.Cols))
			}
			out := in.OutputCols().ToSet()
			for j, col := range cols {
				if !out.Contains(col) {
					return c.unresolvedf(e, "union column %s is not produced by input %d", c.colLabel(col), i)
				}
				if c.md != nil {
					lt, rt := c.md.ColumnMeta(col).Type, c.md.ColumnMeta(t.Cols[j]).Type
					if !lt.Equivalent(rt) {
						return c.unresolvedf(e, "union column %d has type %s in input %d, expected %s", j, lt, i, rt)
					}
				}
			}
		}

	case *LimitExpr:
		if t.Count < 0 {
			return c.unresolvedf(e, "negative limit %d", t.Count)
		}

	case *SortExpr:
		return requireInput(t.Ordering.ColSet().ToList(), "ordering")
	}
	return nil
}

func (c *checker) checkCondition(e ScalarExpr, scope opt.ColSet) error {
	if err := c.checkScalar(e, scope, false); err != nil {
		return err
	}
	return c.requireBool(e)
}

func (c *checker) requireBool(e ScalarExpr) error {
	if !e.DataType().Equivalent(types.Bool) {
		return c.unresolvedf(e, "expected boolean expression, found type %s", e.DataType())
	}
	return nil
}

// checkScalar checks a scalar expression. Aggregates are allowed only at the
// root of an aggregation.
func (c *checker) checkScalar(e ScalarExpr, scope opt.ColSet, aggAllowed bool) error {
	switch t := e.(type) {
	case *ExistsExpr:
		return c.checkRel(t.Input, scope)
	case *SubqueryExpr:
		if err := c.checkRel(t.Input, scope); err != nil {
			return err
		}
		cols := t.Input.OutputCols()
		if len(cols) != 1 {
			return c.unresolvedf(e, "subquery must return one column, found %d", len(cols))
		}
		if c.md != nil && !c.md.ColumnMeta(cols[0]).Type.Equivalent(t.Typ) {
			return c.unresolvedf(e, "subquery returns type %s, expected %s", c.md.ColumnMeta(cols[0]).Type, t.Typ)
		}
		return nil
	case *AggregateExpr:
		if !aggAllowed {
			return c.unresolvedf(e, "aggregate function %s is not allowed in this context",
				redact.SafeString(t.Name))
		}
	}

	for i, n := 0, e.ChildCount(); i < n; i++ {
		if err := c.checkScalar(e.Child(i).(ScalarExpr), scope, false); err != nil {
			return err
		}
	}

	switch t := e.(type) {
	case *VariableExpr:
		if !scope.Contains(t.Col) {
			return c.unresolvedf(e, "column reference %s cannot be resolved", c.colLabel(t.Col))
		}
		if t.Typ == nil {
			return errors.AssertionFailedf("column reference @%d has no type", t.Col)
		}

	case *OrdinalExpr:
		return errors.AssertionFailedf("unexpected ordinal reference in logical plan")

	case *ConstExpr:
		if t.Value == nil || !t.Value.ResolvedType().Equivalent(t.Typ) {
			return errors.AssertionFailedf("malformed constant of type %s", t.Typ)
		}

	case *AndExpr:
		if err := c.requireBool(t.Left); err != nil {
			return err
		}
		return c.requireBool(t.Right)

	case *OrExpr:
		if err := c.requireBool(t.Left); err != nil {
			return err
		}
		return c.requireBool(t.Right)

	case *NotExpr:
		return c.requireBool(t.Input)

	case *ComparisonExpr:
		l, r := t.Left.DataType(), t.Right.DataType()
		if !l.Equivalent(r) && !(l.IsNumeric() && r.IsNumeric()) {
			return c.unresolvedf(e, "unsupported comparison operator: %s %s %s", l, t.Operator, r)
		}

	case *BinaryExpr:
		l, r := t.Left.DataType(), t.Right.DataType()
		res := tree.BinaryResultType(t.Operator, l, r)
		if res == nil || !res.Equivalent(t.Typ) {
			return c.unresolvedf(e, "unsupported binary operator: %s %s %s", l, t.Operator, r)
		}

	case *UnaryMinusExpr:
		if typ := t.Input.DataType(); !typ.IsNumeric() && typ != types.Unknown {
			return c.unresolvedf(e, "unsupported unary operator: -%s", typ)
		}

	case *CoalesceExpr:
		for _, arg := range t.Args {
			if !arg.DataType().Equivalent(t.Typ) {
				return c.unresolvedf(e, "COALESCE argument of type %s, expected %s", arg.DataType(), t.Typ)
			}
		}

	case *IfExpr:
		if err := c.requireBool(t.Cond); err != nil {
			return err
		}
		if !t.Then.DataType().Equivalent(t.Typ) || !t.Else.DataType().Equivalent(t.Typ) {
			return c.unresolvedf(e, "IF branches of types %s and %s, expected %s",
				t.Then.DataType(), t.Else.DataType(), t.Typ)
		}

	case *CastExpr:
		if !tree.CanCast(t.Input.DataType(), t.Typ) {
			return c.unresolvedf(e, "invalid cast: %s -> %s", t.Input.DataType(), t.Typ)
		}

	case *FunctionExpr:
		if t.Overload == nil {
			return errors.AssertionFailedf("function call without overload")
		}
		argTypes := make([]*types.T, len(t.Args))
		for i, arg := range t.Args {
			argTypes[i] = arg.DataType()
		}
		if !t.Overload.Matches(argTypes) {
			return c.unresolvedf(e, "invalid arguments for %s", redact.Safe(t.Overload.Signature()))
		}

	case *AggregateExpr:
		for _, arg := range t.Args {
			if ContainsAggregate(arg) {
				return c.unresolvedf(e, "aggregate function calls cannot be nested")
			}
		}
		if t.Filter != nil {
			if ContainsAggregate(t.Filter) {
				return c.unresolvedf(e, "aggregate function calls cannot be nested")
			}
			return c.requireBool(t.Filter)
		}
	}
	return nil
}
