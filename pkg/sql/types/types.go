// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package types defines the column types understood by the engine.
package types

import "github.com/cockroachdb/redact"

// Family is the type family of a column.
type Family int

// Family values.
const (
	// UnknownFamily is the type of an untyped NULL. Values of this family are
	// hashable but not orderable.
	UnknownFamily Family = iota
	BoolFamily
	IntFamily
	FloatFamily
	DecimalFamily
	StringFamily
)

// T is a column type. Types are interned: two types are the same iff the
// pointers are equal.
type T struct {
	family Family
}

// Interned types.
var (
	Unknown = &T{family: UnknownFamily}
	Bool    = &T{family: BoolFamily}
	Int     = &T{family: IntFamily}
	Float   = &T{family: FloatFamily}
	Decimal = &T{family: DecimalFamily}
	String  = &T{family: StringFamily}
)

// Scalar lists every type, in family order.
var Scalar = []*T{Unknown, Bool, Int, Float, Decimal, String}

// Family returns the type's family.
func (t *T) Family() Family { return t.family }

// Orderable returns true if values of the type have a total order usable by
// sort-based operators.
func (t *T) Orderable() bool { return t.family != UnknownFamily }

// IsNumeric returns true for Int, Float and Decimal.
func (t *T) IsNumeric() bool {
	switch t.family {
	case IntFamily, FloatFamily, DecimalFamily:
		return true
	}
	return false
}

// IsFixedWidth returns true if a value of the type fits in a single 8-byte
// slot of a fixed-layout row.
func (t *T) IsFixedWidth() bool {
	switch t.family {
	case BoolFamily, IntFamily, FloatFamily:
		return true
	}
	return false
}

// Width returns the estimated average size in bytes of a value of the type.
func (t *T) Width() int {
	switch t.family {
	case BoolFamily:
		return 1
	case IntFamily, FloatFamily:
		return 8
	case DecimalFamily:
		return 16
	case StringFamily:
		return 20
	}
	return 1
}

// Equivalent returns true if values of t and other can be compared without a
// cast. Unknown is equivalent to every type.
func (t *T) Equivalent(other *T) bool {
	return t == other || t.family == UnknownFamily || other.family == UnknownFamily
}

// String implements fmt.Stringer.
func (t *T) String() string {
	switch t.family {
	case BoolFamily:
		return "bool"
	case IntFamily:
		return "int"
	case FloatFamily:
		return "float"
	case DecimalFamily:
		return "decimal"
	case StringFamily:
		return "string"
	}
	return "unknown"
}

// SafeFormat implements redact.SafeFormatter. Type names are never
// sensitive.
func (t *T) SafeFormat(w redact.SafePrinter, _ rune) {
	w.SafeString(redact.SafeString(t.String()))
}

// FromString returns the type with the given name.
func FromString(s string) (*T, bool) {
	for _, t := range Scalar {
		if t.String() == s {
			return t, true
		}
	}
	switch s {
	case "int8", "bigint", "integer":
		return Int, true
	case "float8", "double":
		return Float, true
	case "numeric":
		return Decimal, true
	case "text", "varchar":
		return String, true
	case "boolean":
		return Bool, true
	}
	return nil, false
}

// CommonNumeric returns the type both numeric operands are promoted to, or
// nil if either operand is not numeric.
func CommonNumeric(a, b *T) *T {
	if a.family == UnknownFamily {
		return b
	}
	if b.family == UnknownFamily {
		return a
	}
	if !a.IsNumeric() || !b.IsNumeric() {
		return nil
	}
	if a.family == FloatFamily || b.family == FloatFamily {
		return Float
	}
	if a.family == DecimalFamily || b.family == DecimalFamily {
		return Decimal
	}
	return Int
}
