// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package eval

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/relcore/pkg/sql/opt/memo"
	"github.com/cockroachdb/relcore/pkg/sql/sem/tree"
	"github.com/cockroachdb/relcore/pkg/sql/types"
	"github.com/stretchr/testify/require"
)

func TestThreeValuedLogic(t *testing.T) {
	ctx := context.Background()
	evalCtx := &Context{}
	null := &memo.ConstExpr{Value: tree.DNull, Typ: types.Bool}
	testCases := []struct {
		e   memo.ScalarExpr
		exp tree.Datum
	}{
		{&memo.AndExpr{Left: null, Right: memo.FalseSingleton}, tree.DBoolFalse},
		{&memo.AndExpr{Left: null, Right: memo.TrueSingleton}, tree.DNull},
		{&memo.OrExpr{Left: null, Right: memo.TrueSingleton}, tree.DBoolTrue},
		{&memo.OrExpr{Left: null, Right: memo.FalseSingleton}, tree.DNull},
		{&memo.NotExpr{Input: null}, tree.DNull},
		{&memo.IsNullExpr{Input: null}, tree.DBoolTrue},
	}
	for _, tc := range testCases {
		res, err := Expr(ctx, evalCtx, tc.e, nil)
		require.NoError(t, err)
		require.Equal(t, tc.exp, res, "%s", memo.FormatScalar(tc.e, nil))
	}
}

func TestIfIsLazy(t *testing.T) {
	// The division by zero in the untaken branch must not be evaluated.
	div := &memo.BinaryExpr{
		Operator: tree.Div,
		Left:     &memo.OrdinalExpr{Ordinal: 0, Typ: types.Float},
		Right:    memo.NewConst(tree.NewDFloat(0)),
		Typ:      types.Float,
	}
	e := &memo.IfExpr{
		Cond: &memo.IsNullExpr{Input: &memo.OrdinalExpr{Ordinal: 0, Typ: types.Float}},
		Then: memo.NewConst(tree.NewDFloat(1)),
		Else: div,
		Typ:  types.Float,
	}
	res, err := Expr(context.Background(), &Context{}, e, tree.Datums{tree.DNull})
	require.NoError(t, err)
	require.Equal(t, "1.0", res.String())

	_, err = Expr(context.Background(), &Context{}, e, tree.Datums{tree.NewDFloat(2)})
	require.True(t, errors.Is(err, tree.ErrDivByZero))
}

func TestFunctionErrorIsWrapped(t *testing.T) {
	boom := errors.New("boom")
	ov := &tree.Overload{
		Name:       "explode",
		Types:      []*types.T{types.Int},
		ReturnType: types.String,
		Fn:         func(tree.Datums) (tree.Datum, error) { return nil, boom },
	}
	e := &memo.FunctionExpr{Overload: ov, Args: []memo.ScalarExpr{memo.NewConst(tree.NewDInt(1))}}
	_, err := Expr(context.Background(), &Context{}, e, nil)
	require.Error(t, err)
	require.True(t, errors.Is(err, boom))
	require.Equal(t, "explode(int) -> string: boom", err.Error())

	// NULL arguments short-circuit functions that do not handle them.
	e = &memo.FunctionExpr{Overload: ov, Args: []memo.ScalarExpr{&memo.ConstExpr{Value: tree.DNull, Typ: types.Int}}}
	res, err := Expr(context.Background(), &Context{}, e, nil)
	require.NoError(t, err)
	require.Equal(t, tree.DNull, res)
}

func TestSubqueryRequiresCallback(t *testing.T) {
	e := &memo.ExistsExpr{Input: &memo.ValuesExpr{}}
	_, err := Expr(context.Background(), &Context{}, e, nil)
	require.Error(t, err)

	evalCtx := &Context{Subquery: func(context.Context, memo.ScalarExpr) (tree.Datum, error) {
		return tree.DBoolTrue, nil
	}}
	ok, err := Predicate(context.Background(), evalCtx, e, nil)
	require.NoError(t, err)
	require.True(t, ok)
}
