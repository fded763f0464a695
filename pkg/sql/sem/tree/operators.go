// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package tree

import (
	"math"
	"strconv"

	"github.com/cockroachdb/apd/v3"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/relcore/pkg/sql/types"
)

// DecimalCtx is the default context for decimal operations. Any change in the
// exponent limits must still guarantee a safe conversion to the postgres
// binary decimal format in the wire protocol, which uses an int16 for the
// exponent.
var DecimalCtx = &apd.Context{
	Precision:   20,
	Rounding:    apd.RoundHalfUp,
	MaxExponent: 2000,
	MinExponent: -2000,
	Traps:       apd.DefaultTraps,
}

// ErrIntOutOfRange is reported when integer arithmetic overflows.
var ErrIntOutOfRange = errors.New("integer out of range")

// ErrDivByZero is reported when dividing by zero.
var ErrDivByZero = errors.New("division by zero")

// ComparisonOperator represents a binary comparison.
type ComparisonOperator int

// ComparisonOperator values.
const (
	EQ ComparisonOperator = iota
	NE
	LT
	LE
	GT
	GE
)

var comparisonOpName = [...]string{EQ: "=", NE: "!=", LT: "<", LE: "<=", GT: ">", GE: ">="}

func (o ComparisonOperator) String() string { return comparisonOpName[o] }

// Commute returns the operator such that (a op b) == (b op.Commute() a).
func (o ComparisonOperator) Commute() ComparisonOperator {
	switch o {
	case LT:
		return GT
	case LE:
		return GE
	case GT:
		return LT
	case GE:
		return LE
	}
	return o
}

// Negate returns the operator such that NOT (a op b) == (a op.Negate() b)
// for non-NULL operands.
func (o ComparisonOperator) Negate() ComparisonOperator {
	switch o {
	case EQ:
		return NE
	case NE:
		return EQ
	case LT:
		return GE
	case LE:
		return GT
	case GT:
		return LE
	default:
		return LT
	}
}

// BinaryOperator represents an arithmetic or string operator.
type BinaryOperator int

// BinaryOperator values.
const (
	Plus BinaryOperator = iota
	Minus
	Mult
	Div
	Mod
	Concat
)

var binaryOpName = [...]string{Plus: "+", Minus: "-", Mult: "*", Div: "/", Mod: "%", Concat: "||"}

func (o BinaryOperator) String() string { return binaryOpName[o] }

// Commutative returns true if the operands of the operator can be swapped.
func (o BinaryOperator) Commutative() bool {
	return o == Plus || o == Mult
}

// BinaryResultType returns the type of (left op right), or nil if the
// operator does not apply to the operand types.
func BinaryResultType(op BinaryOperator, left, right *types.T) *types.T {
	if op == Concat {
		if left.Equivalent(types.String) && right.Equivalent(types.String) {
			return types.String
		}
		return nil
	}
	t := types.CommonNumeric(left, right)
	if t == nil {
		return nil
	}
	if op == Div && t == types.Int {
		return types.Float
	}
	if t == types.Unknown {
		return nil
	}
	return t
}

// EvalComparison evaluates (left op right). The result is NULL if either
// operand is NULL.
func EvalComparison(op ComparisonOperator, left, right Datum) (Datum, error) {
	if left == DNull || right == DNull {
		return DNull, nil
	}
	c, err := CompareError(left, right)
	if err != nil {
		return nil, err
	}
	var res bool
	switch op {
	case EQ:
		res = c == 0
	case NE:
		res = c != 0
	case LT:
		res = c < 0
	case LE:
		res = c <= 0
	case GT:
		res = c > 0
	case GE:
		res = c >= 0
	}
	return MakeDBool(DBool(res)), nil
}

// EvalBinaryOp evaluates (left op right). The result is NULL if either
// operand is NULL. Operands of different numeric types are promoted.
func EvalBinaryOp(op BinaryOperator, left, right Datum) (Datum, error) {
	if left == DNull || right == DNull {
		return DNull, nil
	}
	if op == Concat {
		l, lok := left.(*DString)
		r, rok := right.(*DString)
		if !lok || !rok {
			return nil, errors.AssertionFailedf("unsupported binary operator: %s %s %s",
				left.ResolvedType(), op, right.ResolvedType())
		}
		return NewDString(string(*l) + string(*r)), nil
	}
	typ := types.CommonNumeric(left.ResolvedType(), right.ResolvedType())
	switch {
	case typ == types.Int && op == Div:
		typ = types.Float
	case typ == nil:
		return nil, errors.AssertionFailedf("unsupported binary operator: %s %s %s",
			left.ResolvedType(), op, right.ResolvedType())
	}
	switch typ {
	case types.Int:
		return evalIntOp(op, int64(*left.(*DInt)), int64(*right.(*DInt)))
	case types.Float:
		l, err := toFloat(left)
		if err != nil {
			return nil, err
		}
		r, err := toFloat(right)
		if err != nil {
			return nil, err
		}
		return evalFloatOp(op, l, r)
	default:
		return evalDecimalOp(op, toDecimal(left), toDecimal(right))
	}
}

func evalIntOp(op BinaryOperator, a, b int64) (Datum, error) {
	var r int64
	switch op {
	case Plus:
		r = a + b
		if (r < a) != (b < 0) {
			return nil, ErrIntOutOfRange
		}
	case Minus:
		r = a - b
		if (r < a) != (b > 0) {
			return nil, ErrIntOutOfRange
		}
	case Mult:
		if a != 0 && b != 0 {
			r = a * b
			if r/b != a || (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) {
				return nil, ErrIntOutOfRange
			}
		}
	case Mod:
		if b == 0 {
			return nil, ErrDivByZero
		}
		if b == -1 {
			return NewDInt(0), nil
		}
		r = a % b
	}
	return NewDInt(DInt(r)), nil
}

func evalFloatOp(op BinaryOperator, a, b float64) (Datum, error) {
	var r float64
	switch op {
	case Plus:
		r = a + b
	case Minus:
		r = a - b
	case Mult:
		r = a * b
	case Div:
		if b == 0 {
			return nil, ErrDivByZero
		}
		r = a / b
	case Mod:
		if b == 0 {
			return nil, ErrDivByZero
		}
		r = math.Mod(a, b)
	}
	return NewDFloat(DFloat(r)), nil
}

func evalDecimalOp(op BinaryOperator, a, b *apd.Decimal) (Datum, error) {
	res := &DDecimal{}
	var err error
	switch op {
	case Plus:
		_, err = DecimalCtx.Add(&res.Decimal, a, b)
	case Minus:
		_, err = DecimalCtx.Sub(&res.Decimal, a, b)
	case Mult:
		_, err = DecimalCtx.Mul(&res.Decimal, a, b)
	case Div:
		if b.IsZero() {
			return nil, ErrDivByZero
		}
		_, err = DecimalCtx.Quo(&res.Decimal, a, b)
	case Mod:
		if b.IsZero() {
			return nil, ErrDivByZero
		}
		_, err = DecimalCtx.Rem(&res.Decimal, a, b)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "decimal %s", op)
	}
	return res, nil
}

func toFloat(d Datum) (float64, error) {
	switch t := d.(type) {
	case *DInt:
		return float64(*t), nil
	case *DFloat:
		return float64(*t), nil
	case *DDecimal:
		return t.Float64()
	}
	return 0, errors.AssertionFailedf("cannot convert %s to float", d.ResolvedType())
}

func toDecimal(d Datum) *apd.Decimal {
	switch t := d.(type) {
	case *DInt:
		return apd.New(int64(*t), 0)
	case *DFloat:
		var dd apd.Decimal
		if _, err := dd.SetFloat64(float64(*t)); err != nil {
			return apd.New(0, 0)
		}
		return &dd
	case *DDecimal:
		return &t.Decimal
	}
	return apd.New(0, 0)
}

// UnaryMinus negates a numeric datum.
func UnaryMinus(d Datum) (Datum, error) {
	switch t := d.(type) {
	case *DInt:
		if *t == math.MinInt64 {
			return nil, ErrIntOutOfRange
		}
		return NewDInt(-*t), nil
	case *DFloat:
		return NewDFloat(-*t), nil
	case *DDecimal:
		res := &DDecimal{}
		res.Neg(&t.Decimal)
		return res, nil
	}
	if d == DNull {
		return DNull, nil
	}
	return nil, errors.AssertionFailedf("unsupported unary operator: -%s", d.ResolvedType())
}

// CanCast returns true if a value of type from can be cast to type to.
func CanCast(from, to *types.T) bool {
	if from == to || from == types.Unknown {
		return true
	}
	switch to.Family() {
	case types.StringFamily:
		return true
	case types.BoolFamily:
		return from == types.String || from == types.Int
	case types.IntFamily, types.FloatFamily, types.DecimalFamily:
		return from.IsNumeric() || from == types.String || from == types.Bool
	}
	return false
}

// PerformCast converts d to type to.
func PerformCast(d Datum, to *types.T) (Datum, error) {
	if d == DNull || d.ResolvedType() == to {
		return d, nil
	}
	switch to.Family() {
	case types.StringFamily:
		if s, ok := d.(*DString); ok {
			return s, nil
		}
		switch t := d.(type) {
		case *DFloat:
			return NewDString(strconv.FormatFloat(float64(*t), 'g', -1, 64)), nil
		case *DBool:
			return NewDString(strconv.FormatBool(bool(*t))), nil
		case *DInt:
			return NewDString(strconv.FormatInt(int64(*t), 10)), nil
		case *DDecimal:
			return NewDString(t.Decimal.String()), nil
		}
	case types.BoolFamily:
		switch t := d.(type) {
		case *DInt:
			return MakeDBool(*t != 0), nil
		case *DString:
			b, err := strconv.ParseBool(string(*t))
			if err != nil {
				return nil, errors.Wrapf(err, "could not parse %q as type bool", string(*t))
			}
			return MakeDBool(DBool(b)), nil
		}
	case types.IntFamily:
		switch t := d.(type) {
		case *DBool:
			if *t {
				return NewDInt(1), nil
			}
			return NewDInt(0), nil
		case *DFloat:
			f := math.Trunc(float64(*t))
			if math.IsNaN(f) || f <= math.MinInt64 || f >= math.MaxInt64 {
				return nil, ErrIntOutOfRange
			}
			return NewDInt(DInt(f)), nil
		case *DDecimal:
			var i apd.Decimal
			if _, err := DecimalCtx.RoundToIntegralValue(&i, &t.Decimal); err != nil {
				return nil, err
			}
			v, err := i.Int64()
			if err != nil {
				return nil, ErrIntOutOfRange
			}
			return NewDInt(DInt(v)), nil
		case *DString:
			v, err := strconv.ParseInt(string(*t), 10, 64)
			if err != nil {
				return nil, errors.Wrapf(err, "could not parse %q as type int", string(*t))
			}
			return NewDInt(DInt(v)), nil
		}
	case types.FloatFamily:
		switch t := d.(type) {
		case *DBool:
			if *t {
				return NewDFloat(1), nil
			}
			return NewDFloat(0), nil
		case *DInt, *DDecimal:
			f, err := toFloat(t)
			if err != nil {
				return nil, err
			}
			return NewDFloat(DFloat(f)), nil
		case *DString:
			f, err := strconv.ParseFloat(string(*t), 64)
			if err != nil {
				return nil, errors.Wrapf(err, "could not parse %q as type float", string(*t))
			}
			return NewDFloat(DFloat(f)), nil
		}
	case types.DecimalFamily:
		switch t := d.(type) {
		case *DBool:
			if *t {
				return NewDDecimalFromInt(1), nil
			}
			return NewDDecimalFromInt(0), nil
		case *DInt, *DFloat:
			res := &DDecimal{}
			res.Set(toDecimal(t))
			return res, nil
		case *DString:
			return ParseDDecimal(string(*t))
		}
	}
	return nil, errors.Newf("invalid cast: %s -> %s", d.ResolvedType(), to)
}
