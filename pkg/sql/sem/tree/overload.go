// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package tree

import (
	"strings"

	"github.com/cockroachdb/relcore/pkg/sql/types"
)

// Overload is one implementation of a scalar function.
type Overload struct {
	Name       string
	Types      []*types.T
	ReturnType *types.T

	// Fn evaluates the function. Unless NullableArgs is set, Fn is never
	// called with a NULL argument: the result is NULL instead.
	Fn func(args Datums) (Datum, error)

	// NullableArgs is set for functions that handle NULL arguments.
	NullableArgs bool

	// Volatile is set for functions that may return different results for
	// the same arguments. Volatile calls are never constant folded.
	Volatile bool

	// CodegenTemplate is the expression emitted for the function by the code
	// generator, with {0}, {1}, ... standing for the (non-NULL) arguments. An
	// empty template means the function cannot be compiled and any
	// expression calling it is evaluated by the interpreter.
	CodegenTemplate string
}

// Signature returns a string like "lower(string) -> string".
func (o *Overload) Signature() string {
	var sb strings.Builder
	sb.WriteString(o.Name)
	sb.WriteByte('(')
	for i, t := range o.Types {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(t.String())
	}
	sb.WriteString(") -> ")
	sb.WriteString(o.ReturnType.String())
	return sb.String()
}

// Matches returns true if the overload accepts arguments of the given types.
func (o *Overload) Matches(argTypes []*types.T) bool {
	if len(argTypes) != len(o.Types) {
		return false
	}
	for i, t := range argTypes {
		if !t.Equivalent(o.Types[i]) {
			return false
		}
	}
	return true
}
