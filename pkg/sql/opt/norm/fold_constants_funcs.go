// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package norm

import (
	"context"

	"github.com/cockroachdb/relcore/pkg/sql/opt/memo"
	"github.com/cockroachdb/relcore/pkg/sql/sem/eval"
	"github.com/cockroachdb/relcore/pkg/sql/sem/tree"
	"github.com/cockroachdb/relcore/pkg/sql/types"
)

// coerceTypes makes the implicit numeric promotion of comparisons and
// arithmetic explicit: operands of different numeric types are cast to their
// common type. The result is stable; coerced operands have equal types.
func (c *CustomFuncs) coerceTypes(e memo.ScalarExpr) memo.ScalarExpr {
	switch t := e.(type) {
	case *memo.ComparisonExpr:
		l, r, ok := c.coerceOperands(t.Left, t.Right)
		if ok {
			return &memo.ComparisonExpr{Operator: t.Operator, Left: l, Right: r}
		}
	case *memo.BinaryExpr:
		l, r, ok := c.coerceOperands(t.Left, t.Right)
		if ok {
			return &memo.BinaryExpr{Operator: t.Operator, Left: l, Right: r, Typ: t.Typ}
		}
	}
	return e
}

func (c *CustomFuncs) coerceOperands(l, r memo.ScalarExpr) (_, _ memo.ScalarExpr, ok bool) {
	lt, rt := l.DataType(), r.DataType()
	if lt == rt || !lt.IsNumeric() || !rt.IsNumeric() {
		return l, r, false
	}
	common := types.CommonNumeric(lt, rt)
	return c.castTo(l, common), c.castTo(r, common), true
}

func (c *CustomFuncs) castTo(e memo.ScalarExpr, typ *types.T) memo.ScalarExpr {
	if e.DataType() == typ {
		return e
	}
	return &memo.CastExpr{Input: e, Typ: typ}
}

// foldConstant replaces a scalar expression that can be computed without an
// input row by its value. Expressions whose evaluation fails are left
// unchanged, so that the error surfaces at execution time, if at all.
func (c *CustomFuncs) foldConstant(e memo.ScalarExpr) memo.ScalarExpr {
	switch e.(type) {
	case *memo.ConstExpr, *memo.AggregateExpr:
		return e
	}
	if !memo.IsFoldable(e) {
		return e
	}
	d, err := eval.Expr(context.Background(), &c.f.evalCtx, e, nil)
	if err != nil {
		return e
	}
	typ := e.DataType()
	if d == tree.DNull {
		return c.TypedNull(typ)
	}
	if !d.ResolvedType().Equivalent(typ) {
		return e
	}
	return &memo.ConstExpr{Value: d, Typ: typ}
}

// simplifyBoolean applies the identities of three-valued logic that remove
// constants from boolean expressions, and pushes NOT into comparisons.
func (c *CustomFuncs) simplifyBoolean(e memo.ScalarExpr) memo.ScalarExpr {
	switch t := e.(type) {
	case *memo.AndExpr:
		switch {
		case memo.IsTrue(t.Left):
			return t.Right
		case memo.IsTrue(t.Right):
			return t.Left
		case isFalse(t.Left) || isFalse(t.Right):
			return memo.FalseSingleton
		}

	case *memo.OrExpr:
		switch {
		case isFalse(t.Left):
			return t.Right
		case isFalse(t.Right):
			return t.Left
		case memo.IsTrue(t.Left) || memo.IsTrue(t.Right):
			return memo.TrueSingleton
		}

	case *memo.NotExpr:
		switch in := t.Input.(type) {
		case *memo.NotExpr:
			return in.Input
		case *memo.ComparisonExpr:
			return &memo.ComparisonExpr{Operator: in.Operator.Negate(), Left: in.Left, Right: in.Right}
		}

	case *memo.ComparisonExpr:
		// A comparison with NULL is NULL.
		if isNull(t.Left) || isNull(t.Right) {
			return c.TypedNull(types.Bool)
		}
	}
	return e
}

func isFalse(e memo.ScalarExpr) bool {
	return memo.IsFalseOrNull(e) && !isNull(e)
}

func isNull(e memo.ScalarExpr) bool {
	cst, ok := e.(*memo.ConstExpr)
	return ok && cst.Value == tree.DNull
}
