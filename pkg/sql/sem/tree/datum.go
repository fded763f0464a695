// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package tree

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unsafe"

	"github.com/cockroachdb/apd/v3"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/relcore/pkg/sql/types"
)

// Datum represents a SQL value.
type Datum interface {
	// ResolvedType returns the type of the datum.
	ResolvedType() *types.T

	// Compare returns -1 if the receiver is less than other, 0 if receiver is
	// equal to other and +1 if receiver is greater than other. NULL sorts
	// before every other value. It panics if the two datums are not
	// comparable; use CompareError to get an error instead.
	Compare(other Datum) int

	// Size returns a lower bound on the total size of the receiver in bytes.
	Size() uintptr

	fmt.Stringer
}

// Datums is a slice of Datum values.
type Datums []Datum

func (d Datums) String() string {
	var sb strings.Builder
	sb.WriteByte('(')
	for i, v := range d {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(v.String())
	}
	sb.WriteByte(')')
	return sb.String()
}

// Compare compares two rows lexicographically.
func (d Datums) Compare(other Datums) int {
	for i := range d {
		if i >= len(other) {
			return 1
		}
		if c := d[i].Compare(other[i]); c != 0 {
			return c
		}
	}
	if len(d) < len(other) {
		return -1
	}
	return 0
}

// Size returns the estimated size of the row.
func (d Datums) Size() uintptr {
	sz := uintptr(len(d)) * unsafe.Sizeof(Datum(nil))
	for _, v := range d {
		sz += v.Size()
	}
	return sz
}

// DBool is the boolean Datum.
type DBool bool

// Boolean constants.
var (
	DBoolTrue  = &constDBoolTrue
	DBoolFalse = &constDBoolFalse

	constDBoolTrue  DBool = true
	constDBoolFalse DBool = false
)

// MakeDBool converts its argument to a *DBool, returning either DBoolTrue or
// DBoolFalse.
func MakeDBool(d DBool) *DBool {
	if d {
		return DBoolTrue
	}
	return DBoolFalse
}

// ResolvedType implements the Datum interface.
func (*DBool) ResolvedType() *types.T { return types.Bool }

// Compare implements the Datum interface.
func (d *DBool) Compare(other Datum) int { return mustCompare(d, other) }

// Size implements the Datum interface.
func (*DBool) Size() uintptr { return unsafe.Sizeof(DBool(false)) }

func (d *DBool) String() string { return strconv.FormatBool(bool(*d)) }

// DInt is the int Datum.
type DInt int64

// NewDInt is a helper routine to create a *DInt initialized from its
// argument.
func NewDInt(d DInt) *DInt { return &d }

// ResolvedType implements the Datum interface.
func (*DInt) ResolvedType() *types.T { return types.Int }

// Compare implements the Datum interface.
func (d *DInt) Compare(other Datum) int { return mustCompare(d, other) }

// Size implements the Datum interface.
func (*DInt) Size() uintptr { return unsafe.Sizeof(DInt(0)) }

func (d *DInt) String() string { return strconv.FormatInt(int64(*d), 10) }

// DFloat is the float Datum.
type DFloat float64

// NewDFloat is a helper routine to create a *DFloat initialized from its
// argument.
func NewDFloat(d DFloat) *DFloat { return &d }

// ResolvedType implements the Datum interface.
func (*DFloat) ResolvedType() *types.T { return types.Float }

// Compare implements the Datum interface.
func (d *DFloat) Compare(other Datum) int { return mustCompare(d, other) }

// Size implements the Datum interface.
func (*DFloat) Size() uintptr { return unsafe.Sizeof(DFloat(0)) }

func (d *DFloat) String() string {
	f := float64(*d)
	if math.Abs(f) < 1e16 && f == math.Trunc(f) {
		return strconv.FormatFloat(f, 'f', 1, 64)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// DDecimal is the decimal Datum.
type DDecimal struct {
	apd.Decimal
}

// ParseDDecimal parses and returns the *DDecimal Datum value represented by
// the provided string, or an error if parsing is unsuccessful.
func ParseDDecimal(s string) (*DDecimal, error) {
	dd := &DDecimal{}
	if _, _, err := dd.SetString(s); err != nil {
		return nil, errors.Wrapf(err, "could not parse %q as type decimal", s)
	}
	return dd, nil
}

// NewDDecimalFromInt returns a decimal datum with the given integer value.
func NewDDecimalFromInt(i int64) *DDecimal {
	dd := &DDecimal{}
	dd.SetInt64(i)
	return dd
}

// ResolvedType implements the Datum interface.
func (*DDecimal) ResolvedType() *types.T { return types.Decimal }

// Compare implements the Datum interface.
func (d *DDecimal) Compare(other Datum) int { return mustCompare(d, other) }

// Size implements the Datum interface.
func (d *DDecimal) Size() uintptr {
	return unsafe.Sizeof(*d) + uintptr(d.Coeff.BitLen()/8)
}

func (d *DDecimal) String() string { return d.Decimal.String() }

// DString is the string Datum.
type DString string

// NewDString is a helper routine to create a *DString initialized from its
// argument.
func NewDString(d string) *DString {
	r := DString(d)
	return &r
}

// ResolvedType implements the Datum interface.
func (*DString) ResolvedType() *types.T { return types.String }

// Compare implements the Datum interface.
func (d *DString) Compare(other Datum) int { return mustCompare(d, other) }

// Size implements the Datum interface.
func (d *DString) Size() uintptr { return unsafe.Sizeof(*d) + uintptr(len(*d)) }

func (d *DString) String() string { return strconv.Quote(string(*d)) }

type dNull struct{}

// DNull is the NULL Datum.
var DNull Datum = dNull{}

// ResolvedType implements the Datum interface.
func (dNull) ResolvedType() *types.T { return types.Unknown }

// Compare implements the Datum interface.
func (d dNull) Compare(other Datum) int { return mustCompare(d, other) }

// Size implements the Datum interface.
func (dNull) Size() uintptr { return 0 }

func (dNull) String() string { return "NULL" }

func mustCompare(a, b Datum) int {
	c, err := CompareError(a, b)
	if err != nil {
		panic(err)
	}
	return c
}

// CompareError compares two datums. Numeric datums of different types are
// compared by value. NULL sorts before every other value.
func CompareError(a, b Datum) (int, error) {
	if a == DNull || b == DNull {
		switch {
		case a == b:
			return 0, nil
		case a == DNull:
			return -1, nil
		default:
			return 1, nil
		}
	}
	switch l := a.(type) {
	case *DBool:
		if r, ok := b.(*DBool); ok {
			return compareBool(bool(*l), bool(*r)), nil
		}
	case *DString:
		if r, ok := b.(*DString); ok {
			return strings.Compare(string(*l), string(*r)), nil
		}
	case *DInt:
		switch r := b.(type) {
		case *DInt:
			return compareInt(int64(*l), int64(*r)), nil
		case *DFloat:
			return compareFloat(float64(*l), float64(*r)), nil
		case *DDecimal:
			return NewDDecimalFromInt(int64(*l)).Cmp(&r.Decimal), nil
		}
	case *DFloat:
		switch r := b.(type) {
		case *DInt:
			return compareFloat(float64(*l), float64(*r)), nil
		case *DFloat:
			return compareFloat(float64(*l), float64(*r)), nil
		case *DDecimal:
			f, err := r.Float64()
			if err != nil {
				return 0, errors.Wrap(err, "comparing float to decimal")
			}
			return compareFloat(float64(*l), f), nil
		}
	case *DDecimal:
		switch b.(type) {
		case *DInt, *DFloat:
			c, err := CompareError(b, a)
			return -c, err
		case *DDecimal:
			return l.Cmp(&b.(*DDecimal).Decimal), nil
		}
	}
	return 0, errors.AssertionFailedf("incompatible comparison between %s and %s",
		a.ResolvedType(), b.ResolvedType())
}

func compareBool(a, b bool) int {
	switch {
	case a == b:
		return 0
	case !a:
		return -1
	default:
		return 1
	}
}

func compareInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	case a == b:
		return 0
	}
	// NaN sorts before every other float, and equal to itself.
	if math.IsNaN(a) {
		if math.IsNaN(b) {
			return 0
		}
		return -1
	}
	return 1
}

// DatumFromGo converts a Go value (as produced by a YAML or JSON decoder) to
// a datum of the given type.
func DatumFromGo(typ *types.T, v interface{}) (Datum, error) {
	if v == nil {
		return DNull, nil
	}
	switch typ.Family() {
	case types.BoolFamily:
		if b, ok := v.(bool); ok {
			return MakeDBool(DBool(b)), nil
		}
	case types.IntFamily:
		switch t := v.(type) {
		case int:
			return NewDInt(DInt(t)), nil
		case int64:
			return NewDInt(DInt(t)), nil
		}
	case types.FloatFamily:
		switch t := v.(type) {
		case int:
			return NewDFloat(DFloat(t)), nil
		case int64:
			return NewDFloat(DFloat(t)), nil
		case float64:
			return NewDFloat(DFloat(t)), nil
		}
	case types.DecimalFamily:
		return ParseDDecimal(fmt.Sprint(v))
	case types.StringFamily:
		if s, ok := v.(string); ok {
			return NewDString(s), nil
		}
	}
	return nil, errors.Newf("cannot convert %v (%T) to %s", v, v, typ)
}
