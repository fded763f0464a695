// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package eval interprets scalar expressions over rows.
package eval

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/redact"
	"github.com/cockroachdb/relcore/pkg/sql/opt/memo"
	"github.com/cockroachdb/relcore/pkg/sql/sem/tree"
)

// Context holds the state needed to evaluate scalar expressions.
type Context struct {
	// Subquery computes the value of an EXISTS or scalar subquery. It is nil
	// when the expressions being evaluated cannot contain subqueries.
	Subquery func(ctx context.Context, e memo.ScalarExpr) (tree.Datum, error)
}

type evaluator Context

// Expr evaluates a bound scalar expression against a row. Column
// references must have been converted to ordinals with memo.BindScalar.
func Expr(
	ctx context.Context, evalCtx *Context, e memo.ScalarExpr, row tree.Datums,
) (tree.Datum, error) {
	return (*evaluator)(evalCtx).eval(ctx, e, row)
}

// Predicate evaluates a boolean expression; NULL is treated as false.
func Predicate(
	ctx context.Context, evalCtx *Context, e memo.ScalarExpr, row tree.Datums,
) (bool, error) {
	d, err := Expr(ctx, evalCtx, e, row)
	if err != nil {
		return false, err
	}
	return isTrue(d), nil
}

func (ev *evaluator) eval(ctx context.Context, e memo.ScalarExpr, row tree.Datums) (tree.Datum, error) {
	switch t := e.(type) {
	case *memo.ConstExpr:
		return t.Value, nil

	case *memo.OrdinalExpr:
		if t.Ordinal >= len(row) {
			return nil, errors.AssertionFailedf("ordinal $%d out of range for row of %d columns", t.Ordinal, len(row))
		}
		return row[t.Ordinal], nil

	case *memo.VariableExpr:
		return nil, errors.AssertionFailedf("cannot evaluate unbound column reference @%d", t.Col)

	case *memo.AndExpr:
		l, err := ev.eval(ctx, t.Left, row)
		if err != nil {
			return nil, err
		}
		if isFalse(l) {
			return tree.DBoolFalse, nil
		}
		r, err := ev.eval(ctx, t.Right, row)
		if err != nil {
			return nil, err
		}
		switch {
		case isFalse(r):
			return tree.DBoolFalse, nil
		case l == tree.DNull || r == tree.DNull:
			return tree.DNull, nil
		}
		return tree.DBoolTrue, nil

	case *memo.OrExpr:
		l, err := ev.eval(ctx, t.Left, row)
		if err != nil {
			return nil, err
		}
		if isTrue(l) {
			return tree.DBoolTrue, nil
		}
		r, err := ev.eval(ctx, t.Right, row)
		if err != nil {
			return nil, err
		}
		switch {
		case isTrue(r):
			return tree.DBoolTrue, nil
		case l == tree.DNull || r == tree.DNull:
			return tree.DNull, nil
		}
		return tree.DBoolFalse, nil

	case *memo.NotExpr:
		d, err := ev.eval(ctx, t.Input, row)
		if err != nil || d == tree.DNull {
			return d, err
		}
		return tree.MakeDBool(!*d.(*tree.DBool)), nil

	case *memo.ComparisonExpr:
		l, r, err := ev.evalPair(ctx, t.Left, t.Right, row)
		if err != nil {
			return nil, err
		}
		return tree.EvalComparison(t.Operator, l, r)

	case *memo.BinaryExpr:
		l, r, err := ev.evalPair(ctx, t.Left, t.Right, row)
		if err != nil {
			return nil, err
		}
		return tree.EvalBinaryOp(t.Operator, l, r)

	case *memo.UnaryMinusExpr:
		d, err := ev.eval(ctx, t.Input, row)
		if err != nil {
			return nil, err
		}
		return tree.UnaryMinus(d)

	case *memo.IsNullExpr:
		d, err := ev.eval(ctx, t.Input, row)
		if err != nil {
			return nil, err
		}
		return tree.MakeDBool(d == tree.DNull), nil

	case *memo.CoalesceExpr:
		for _, arg := range t.Args {
			d, err := ev.eval(ctx, arg, row)
			if err != nil {
				return nil, err
			}
			if d != tree.DNull {
				return d, nil
			}
		}
		return tree.DNull, nil

	case *memo.IfExpr:
		cond, err := ev.eval(ctx, t.Cond, row)
		if err != nil {
			return nil, err
		}
		if isTrue(cond) {
			return ev.eval(ctx, t.Then, row)
		}
		return ev.eval(ctx, t.Else, row)

	case *memo.CastExpr:
		d, err := ev.eval(ctx, t.Input, row)
		if err != nil {
			return nil, err
		}
		return tree.PerformCast(d, t.Typ)

	case *memo.FunctionExpr:
		args := make(tree.Datums, len(t.Args))
		for i, arg := range t.Args {
			d, err := ev.eval(ctx, arg, row)
			if err != nil {
				return nil, err
			}
			if d == tree.DNull && !t.Overload.NullableArgs {
				return tree.DNull, nil
			}
			args[i] = d
		}
		res, err := t.Overload.Fn(args)
		if err != nil {
			return nil, WrapFunctionError(err, t.Overload.Name, args, t.Overload.ReturnType.String())
		}
		return res, nil

	case *memo.ExistsExpr, *memo.SubqueryExpr:
		if ev.Subquery == nil {
			return nil, errors.AssertionFailedf("subquery evaluation is not available")
		}
		return ev.Subquery(ctx, e)

	case *memo.AggregateExpr:
		return nil, errors.AssertionFailedf("aggregate %s cannot be evaluated as a scalar", redact.SafeString(t.Name))
	}
	return nil, errors.AssertionFailedf("unhandled scalar expression %T", e)
}

func (ev *evaluator) evalPair(
	ctx context.Context, left, right memo.ScalarExpr, row tree.Datums,
) (l, r tree.Datum, err error) {
	if l, err = ev.eval(ctx, left, row); err != nil {
		return nil, nil, err
	}
	if r, err = ev.eval(ctx, right, row); err != nil {
		return nil, nil, err
	}
	return l, r, nil
}

// WrapFunctionError annotates an error returned by a function with the
// function name, the types of its arguments and its return type.
func WrapFunctionError(err error, name string, args tree.Datums, retType string) error {
	var sb strings.Builder
	for i, a := range args {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(a.ResolvedType().String())
	}
	return errors.Wrapf(err, "%s(%s) -> %s",
		redact.SafeString(name), redact.SafeString(sb.String()), redact.SafeString(retType))
}

func isTrue(d tree.Datum) bool {
	b, ok := d.(*tree.DBool)
	return ok && bool(*b)
}

func isFalse(d tree.Datum) bool {
	b, ok := d.(*tree.DBool)
	return ok && !bool(*b)
}
