// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package builtins

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/relcore/pkg/sql/opt/memo"
	"github.com/cockroachdb/relcore/pkg/sql/sem/tree"
	"github.com/cockroachdb/relcore/pkg/sql/types"
	"github.com/cockroachdb/relcore/pkg/util/encoding"
)

// AggregateOverload is one implementation of an aggregate function.
//
// A declarative aggregate describes its intermediate state as a list of
// buffer slots together with scalar expressions that compute the new value
// of each slot. The expressions refer to their inputs through ordinals:
//
//   - Update: the buffer slots are $0..$n-1 and the arguments of the
//     aggregate follow, starting at $n.
//   - Merge: the slots of the buffer being updated are $0..$n-1 and the slots
//     of the incoming partial buffer are $n..$2n-1.
//   - Evaluate: the slots are $0..$n-1.
//
// An imperative aggregate keeps an opaque Go value as its state instead. Its
// single buffer slot holds the serialized state whenever the state crosses
// an operator boundary.
type AggregateOverload struct {
	Name       string
	Types      []*types.T
	ReturnType *types.T

	BufferTypes []*types.T
	Initial     tree.Datums
	Update      []memo.ScalarExpr
	Merge       []memo.ScalarExpr
	Evaluate    memo.ScalarExpr

	// NewImperative is set for imperative aggregates.
	NewImperative func() ImperativeAggregate
}

// IsImperative returns true if the aggregate keeps opaque state.
func (a *AggregateOverload) IsImperative() bool {
	return a.NewImperative != nil
}

// Signature returns a string like "sum(int) -> int".
func (a *AggregateOverload) Signature() string {
	ov := tree.Overload{Name: a.Name, Types: a.Types, ReturnType: a.ReturnType}
	return ov.Signature()
}

// ImperativeAggregate accumulates opaque state row by row.
type ImperativeAggregate interface {
	// Add feeds the arguments of one input row.
	Add(args tree.Datums) error
	// Merge adds the state serialized by another instance.
	Merge(serialized tree.Datum) error
	// Serialize returns the state as a datum of the aggregate's buffer type.
	Serialize() tree.Datum
	// Result returns the final value.
	Result() (tree.Datum, error)
	// Size returns the approximate memory footprint of the state in bytes.
	Size() int64
}

var aggregates = map[string][]*AggregateOverload{}

// LookupAggregate resolves an aggregate function call.
func LookupAggregate(name string, argTypes []*types.T) (*AggregateOverload, error) {
	ovs, ok := aggregates[name]
	if !ok {
		return nil, errors.Mark(errors.Newf("unknown aggregate function: %s()", name), ErrUnknownFunction)
	}
	for _, ov := range ovs {
		if len(ov.Types) != len(argTypes) {
			continue
		}
		match := true
		for i, t := range argTypes {
			if !t.Equivalent(ov.Types[i]) {
				match = false
				break
			}
		}
		if match {
			return ov, nil
		}
	}
	return nil, errors.Mark(
		errors.Newf("unknown signature: %s(%s)", name, typeList(argTypes)), ErrUnknownFunction)
}

// IsAggregate returns true if name is the name of an aggregate function.
func IsAggregate(name string) bool {
	_, ok := aggregates[name]
	return ok
}

func ord(i int, typ *types.T) memo.ScalarExpr {
	return &memo.OrdinalExpr{Ordinal: i, Typ: typ}
}

func isNull(e memo.ScalarExpr) memo.ScalarExpr {
	return &memo.IsNullExpr{Input: e}
}

func ifThen(cond, then, els memo.ScalarExpr) memo.ScalarExpr {
	return &memo.IfExpr{Cond: cond, Then: then, Else: els, Typ: then.DataType()}
}

func binary(op tree.BinaryOperator, l, r memo.ScalarExpr) memo.ScalarExpr {
	return &memo.BinaryExpr{Operator: op, Left: l, Right: r, Typ: tree.BinaryResultType(op, l.DataType(), r.DataType())}
}

func zero(typ *types.T) memo.ScalarExpr {
	switch typ {
	case types.Int:
		return memo.NewConst(tree.NewDInt(0))
	case types.Float:
		return memo.NewConst(tree.NewDFloat(0))
	default:
		return memo.NewConst(tree.NewDDecimalFromInt(0))
	}
}

func typedNull(typ *types.T) memo.ScalarExpr {
	return &memo.ConstExpr{Value: tree.DNull, Typ: typ}
}

func castTo(e memo.ScalarExpr, typ *types.T) memo.ScalarExpr {
	if e.DataType() == typ {
		return e
	}
	return &memo.CastExpr{Input: e, Typ: typ}
}

// nullSkippingSum returns the expression adding v to the running sum acc,
// ignoring NULL values of v. The sum stays NULL until a non-NULL value is
// added.
func nullSkippingSum(acc, v memo.ScalarExpr) memo.ScalarExpr {
	return ifThen(isNull(v), acc,
		binary(tree.Plus, &memo.CoalesceExpr{Args: []memo.ScalarExpr{acc, zero(acc.DataType())}, Typ: acc.DataType()}, v))
}

// nullSkippingPick returns the expression choosing between the running
// value acc and v, ignoring NULLs on either side. better is the comparison
// operator that v must satisfy against acc to replace it.
func nullSkippingPick(acc, v memo.ScalarExpr, better tree.ComparisonOperator) memo.ScalarExpr {
	return ifThen(isNull(v), acc,
		ifThen(isNull(acc), v,
			ifThen(&memo.ComparisonExpr{Operator: better, Left: v, Right: acc}, v, acc)))
}

// nullSkippingCombine is like nullSkippingPick for boolean connectives.
func nullSkippingCombine(acc, v memo.ScalarExpr, and bool) memo.ScalarExpr {
	var combined memo.ScalarExpr
	if and {
		combined = &memo.AndExpr{Left: acc, Right: v}
	} else {
		combined = &memo.OrExpr{Left: acc, Right: v}
	}
	return ifThen(isNull(v), acc, ifThen(isNull(acc), v, combined))
}

func initAggregateBuiltins() {
	// count_rows is count(*).
	aggregates["count_rows"] = []*AggregateOverload{{
		ReturnType:  types.Int,
		BufferTypes: []*types.T{types.Int},
		Initial:     tree.Datums{tree.NewDInt(0)},
		Update:      []memo.ScalarExpr{binary(tree.Plus, ord(0, types.Int), memo.NewConst(tree.NewDInt(1)))},
		Merge:       []memo.ScalarExpr{binary(tree.Plus, ord(0, types.Int), ord(1, types.Int))},
		Evaluate:    ord(0, types.Int),
	}}

	for _, typ := range types.Scalar {
		if typ == types.Unknown {
			continue
		}
		aggregates["count"] = append(aggregates["count"], &AggregateOverload{
			Types:       []*types.T{typ},
			ReturnType:  types.Int,
			BufferTypes: []*types.T{types.Int},
			Initial:     tree.Datums{tree.NewDInt(0)},
			Update: []memo.ScalarExpr{ifThen(isNull(ord(1, typ)), ord(0, types.Int),
				binary(tree.Plus, ord(0, types.Int), memo.NewConst(tree.NewDInt(1))))},
			Merge:    []memo.ScalarExpr{binary(tree.Plus, ord(0, types.Int), ord(1, types.Int))},
			Evaluate: ord(0, types.Int),
		})

		aggregates["min"] = append(aggregates["min"], minMax(typ, tree.LT))
		aggregates["max"] = append(aggregates["max"], minMax(typ, tree.GT))
	}

	for _, typ := range []*types.T{types.Int, types.Float, types.Decimal} {
		aggregates["sum"] = append(aggregates["sum"], &AggregateOverload{
			Types:       []*types.T{typ},
			ReturnType:  typ,
			BufferTypes: []*types.T{typ},
			Initial:     tree.Datums{tree.DNull},
			Update:      []memo.ScalarExpr{nullSkippingSum(ord(0, typ), ord(1, typ))},
			Merge:       []memo.ScalarExpr{nullSkippingSum(ord(0, typ), ord(1, typ))},
			Evaluate:    ord(0, typ),
		})

		// avg keeps a sum and a count. Integer averages are computed in
		// floating point.
		sumTyp := types.Float
		if typ == types.Decimal {
			sumTyp = types.Decimal
		}
		aggregates["avg"] = append(aggregates["avg"], &AggregateOverload{
			Types:       []*types.T{typ},
			ReturnType:  sumTyp,
			BufferTypes: []*types.T{sumTyp, types.Int},
			Initial:     tree.Datums{tree.DNull, tree.NewDInt(0)},
			Update: []memo.ScalarExpr{
				nullSkippingSum(ord(0, sumTyp), castTo(ord(2, typ), sumTyp)),
				ifThen(isNull(ord(2, typ)), ord(1, types.Int),
					binary(tree.Plus, ord(1, types.Int), memo.NewConst(tree.NewDInt(1)))),
			},
			Merge: []memo.ScalarExpr{
				nullSkippingSum(ord(0, sumTyp), ord(2, sumTyp)),
				binary(tree.Plus, ord(1, types.Int), ord(3, types.Int)),
			},
			Evaluate: ifThen(
				&memo.ComparisonExpr{Operator: tree.EQ, Left: ord(1, types.Int), Right: memo.NewConst(tree.NewDInt(0))},
				typedNull(sumTyp),
				binary(tree.Div, ord(0, sumTyp), castTo(ord(1, types.Int), sumTyp)),
			),
		})
	}

	for _, and := range []bool{true, false} {
		name := "bool_or"
		if and {
			name = "bool_and"
		}
		aggregates[name] = []*AggregateOverload{{
			Types:       []*types.T{types.Bool},
			ReturnType:  types.Bool,
			BufferTypes: []*types.T{types.Bool},
			Initial:     tree.Datums{tree.DNull},
			Update:      []memo.ScalarExpr{nullSkippingCombine(ord(0, types.Bool), ord(1, types.Bool), and)},
			Merge:       []memo.ScalarExpr{nullSkippingCombine(ord(0, types.Bool), ord(1, types.Bool), and)},
			Evaluate:    ord(0, types.Bool),
		}}
	}

	aggregates["string_agg"] = []*AggregateOverload{{
		Types:         []*types.T{types.String, types.String},
		ReturnType:    types.String,
		BufferTypes:   []*types.T{types.String},
		Initial:       tree.Datums{tree.DNull},
		NewImperative: func() ImperativeAggregate { return &stringAgg{} },
	}}

	for name, ovs := range aggregates {
		for _, ov := range ovs {
			ov.Name = name
		}
	}
}

func minMax(typ *types.T, better tree.ComparisonOperator) *AggregateOverload {
	return &AggregateOverload{
		Types:       []*types.T{typ},
		ReturnType:  typ,
		BufferTypes: []*types.T{typ},
		Initial:     tree.Datums{tree.DNull},
		Update:      []memo.ScalarExpr{nullSkippingPick(ord(0, typ), ord(1, typ), better)},
		Merge:       []memo.ScalarExpr{nullSkippingPick(ord(0, typ), ord(1, typ), better)},
		Evaluate:    ord(0, typ),
	}
}

// stringAgg concatenates non-NULL values, each preceded by its separator
// except for the first. The state is a list of (separator, value) pairs,
// serialized as a sequence of encoded strings.
type stringAgg struct {
	seps, vals []string
	size       int64
}

var _ ImperativeAggregate = &stringAgg{}

func (a *stringAgg) Add(args tree.Datums) error {
	if args[0] == tree.DNull {
		return nil
	}
	sep := ""
	if args[1] != tree.DNull {
		sep = string(*args[1].(*tree.DString))
	}
	a.append(sep, string(*args[0].(*tree.DString)))
	return nil
}

func (a *stringAgg) append(sep, val string) {
	a.seps = append(a.seps, sep)
	a.vals = append(a.vals, val)
	a.size += int64(len(sep) + len(val) + 32)
}

func (a *stringAgg) Merge(serialized tree.Datum) error {
	if serialized == tree.DNull {
		return nil
	}
	b := []byte(string(*serialized.(*tree.DString)))
	for len(b) > 0 {
		var sep, val string
		var err error
		if b, sep, err = encoding.DecodeStringAscending(b); err != nil {
			return errors.Wrap(err, "decoding string_agg state")
		}
		if b, val, err = encoding.DecodeStringAscending(b); err != nil {
			return errors.Wrap(err, "decoding string_agg state")
		}
		a.append(sep, val)
	}
	return nil
}

func (a *stringAgg) Serialize() tree.Datum {
	if len(a.vals) == 0 {
		return tree.DNull
	}
	var b []byte
	for i := range a.vals {
		b = encoding.EncodeStringAscending(b, a.seps[i])
		b = encoding.EncodeStringAscending(b, a.vals[i])
	}
	return tree.NewDString(string(b))
}

func (a *stringAgg) Result() (tree.Datum, error) {
	if len(a.vals) == 0 {
		return tree.DNull, nil
	}
	var sb strings.Builder
	for i := range a.vals {
		if i > 0 {
			sb.WriteString(a.seps[i])
		}
		sb.WriteString(a.vals[i])
	}
	return tree.NewDString(sb.String()), nil
}

func (a *stringAgg) Size() int64 { return a.size }
