// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package builtins

import (
	"math/rand"
	"strings"
	"unicode/utf8"

	"github.com/cockroachdb/relcore/pkg/sql/sem/tree"
	"github.com/cockroachdb/relcore/pkg/sql/types"
)

func initScalarBuiltins() {
	Builtins["lower"] = []*tree.Overload{{
		Types:      []*types.T{types.String},
		ReturnType: types.String,
		Fn: func(args tree.Datums) (tree.Datum, error) {
			return tree.NewDString(strings.ToLower(string(*args[0].(*tree.DString)))), nil
		},
		CodegenTemplate: "{0}.lower()",
	}}

	Builtins["upper"] = []*tree.Overload{{
		Types:      []*types.T{types.String},
		ReturnType: types.String,
		Fn: func(args tree.Datums) (tree.Datum, error) {
			return tree.NewDString(strings.ToUpper(string(*args[0].(*tree.DString)))), nil
		},
		CodegenTemplate: "{0}.upper()",
	}}

	// length counts characters, which the generated code cannot do without a
	// helper, so it is always interpreted.
	Builtins["length"] = []*tree.Overload{{
		Types:      []*types.T{types.String},
		ReturnType: types.Int,
		Fn: func(args tree.Datums) (tree.Datum, error) {
			return tree.NewDInt(tree.DInt(utf8.RuneCountInString(string(*args[0].(*tree.DString))))), nil
		},
	}}

	Builtins["abs"] = []*tree.Overload{
		{
			Types:      []*types.T{types.Int},
			ReturnType: types.Int,
			Fn: func(args tree.Datums) (tree.Datum, error) {
				if x := *args[0].(*tree.DInt); x < 0 {
					return tree.UnaryMinus(args[0])
				}
				return args[0], nil
			},
			CodegenTemplate: "(-{0} if {0} < 0 else {0})",
		},
		{
			Types:      []*types.T{types.Float},
			ReturnType: types.Float,
			Fn: func(args tree.Datums) (tree.Datum, error) {
				if x := *args[0].(*tree.DFloat); x < 0 {
					return tree.NewDFloat(-x), nil
				}
				return args[0], nil
			},
			CodegenTemplate: "(-{0} if {0} < 0 else {0})",
		},
		{
			Types:      []*types.T{types.Decimal},
			ReturnType: types.Decimal,
			Fn: func(args tree.Datums) (tree.Datum, error) {
				res := &tree.DDecimal{}
				res.Abs(&args[0].(*tree.DDecimal).Decimal)
				return res, nil
			},
		},
	}

	Builtins["random"] = []*tree.Overload{{
		Types:      []*types.T{},
		ReturnType: types.Float,
		Fn: func(tree.Datums) (tree.Datum, error) {
			return tree.NewDFloat(tree.DFloat(rand.Float64())), nil
		},
		Volatile: true,
	}}

	Builtins["greatest"] = comparisonOverloads(1)
	Builtins["least"] = comparisonOverloads(-1)
}

// comparisonOverloads returns two-argument overloads for each orderable type
// that return the argument whose comparison result has the given sign. NULL
// arguments are ignored, which the generated code does not model, so these
// are always interpreted.
func comparisonOverloads(sign int) []*tree.Overload {
	var res []*tree.Overload
	for _, t := range types.Scalar {
		if !t.Orderable() {
			continue
		}
		res = append(res, &tree.Overload{
			Types:        []*types.T{t, t},
			ReturnType:   t,
			NullableArgs: true,
			Fn: func(args tree.Datums) (tree.Datum, error) {
				switch {
				case args[0] == tree.DNull:
					return args[1], nil
				case args[1] == tree.DNull:
					return args[0], nil
				}
				if args[0].Compare(args[1])*sign >= 0 {
					return args[0], nil
				}
				return args[1], nil
			},
		})
	}
	return res
}
