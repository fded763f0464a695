// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package builtins

import (
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/relcore/pkg/sql/sem/tree"
	"github.com/cockroachdb/relcore/pkg/sql/types"
)

// AllBuiltinNames is an array containing all the built-in scalar function
// names, sorted in alphabetical order. This can be used for a deterministic
// walk through the Builtins map.
var AllBuiltinNames []string

// Builtins maps a function name to its overloads.
var Builtins = map[string][]*tree.Overload{}

// AllAggregateNames lists the aggregate functions in alphabetical order.
var AllAggregateNames []string

func init() {
	initScalarBuiltins()
	initAggregateBuiltins()

	for name, ovs := range Builtins {
		for _, ov := range ovs {
			ov.Name = name
		}
		AllBuiltinNames = append(AllBuiltinNames, name)
	}
	sort.Strings(AllBuiltinNames)
	for name := range aggregates {
		AllAggregateNames = append(AllAggregateNames, name)
	}
	sort.Strings(AllAggregateNames)
}

// ErrUnknownFunction is the marker for references to functions that do not
// exist or have no overload for the argument types.
var ErrUnknownFunction = errors.New("unknown function")

// LookupScalar resolves a scalar function call.
func LookupScalar(name string, argTypes []*types.T) (*tree.Overload, error) {
	ovs, ok := Builtins[name]
	if !ok {
		return nil, errors.Mark(errors.Newf("unknown function: %s()", name), ErrUnknownFunction)
	}
	for _, ov := range ovs {
		if ov.Matches(argTypes) {
			return ov, nil
		}
	}
	return nil, errors.Mark(
		errors.Newf("unknown signature: %s(%s)", name, typeList(argTypes)), ErrUnknownFunction)
}

func typeList(ts []*types.T) string {
	s := ""
	for i, t := range ts {
		if i > 0 {
			s += ", "
		}
		s += t.String()
	}
	return s
}
