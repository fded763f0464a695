// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package execgen generates and compiles code for fused chains of
// row-at-a-time operators and for the update and merge steps of
// aggregations.
//
// A Program is a chain of filters and projections over rows of known
// types. Generate turns it into skylark source text in which every scalar
// expression is expanded into straight-line statements, so evaluating a row
// involves no dispatch on expression kinds. The constants of the program
// are not part of the text: they are bound when the compiled unit is
// instantiated, so programs that differ only in their constants share a
// compiled unit in the CodeCache.
//
// Code generation never fails a query. Programs that use expressions the
// generator does not support are reported with ErrIneligible, and programs
// that fail to compile with ErrCompile; in both cases the caller evaluates
// the program with the interpreter instead.
package execgen

import (
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/relcore/pkg/sql/opt/memo"
	"github.com/cockroachdb/relcore/pkg/sql/types"
)

// ErrIneligible marks errors returned by Generate for programs that cannot
// be compiled.
var ErrIneligible = errors.New("not eligible for code generation")

// ErrCompile marks errors returned by the Compiler when generated code
// cannot be compiled.
var ErrCompile = errors.New("code generation failed")

// Step is a filter or a projection. Exactly one of Filter and Projections
// is set. The expressions are bound: their ordinals refer to the columns
// produced by the previous step.
type Step struct {
	Filter      memo.ScalarExpr
	Projections []memo.ScalarExpr
}

// Program is a chain of steps applied to each input row.
type Program struct {
	InputTypes []*types.T
	Steps      []Step
}

// OutputTypes returns the types of the rows produced by the program.
func (p *Program) OutputTypes() []*types.T {
	for i := len(p.Steps) - 1; i >= 0; i-- {
		if projs := p.Steps[i].Projections; projs != nil {
			typs := make([]*types.T, len(projs))
			for j, e := range projs {
				typs[j] = e.DataType()
			}
			return typs
		}
	}
	return p.InputTypes
}

// Projection returns a program of a single projection.
func Projection(inputTypes []*types.T, exprs []memo.ScalarExpr) *Program {
	return &Program{InputTypes: inputTypes, Steps: []Step{{Projections: exprs}}}
}

// Config holds the code generation settings.
type Config struct {
	// Enabled turns code generation on.
	Enabled bool
	// MaxParams is the maximum number of parameters of a generated
	// sub-function. Expressions with more free variables are inlined.
	MaxParams int
	// SplitThreshold is the size in bytes of generated statements beyond
	// which an expression is moved into a sub-function.
	SplitThreshold int
	// HugeMethodWarning is the method size in bytes above which a warning is
	// logged.
	HugeMethodWarning int
	// HugeMethodLimit is the method size in bytes above which compilation
	// fails.
	HugeMethodLimit int
	// WholeStageMaxFields is the maximum number of columns of a row flowing
	// through a generated program.
	WholeStageMaxFields int
	// CacheCapacity is the number of compiled units kept in the cache.
	CacheCapacity int
}

// DefaultConfig returns the default code generation settings.
func DefaultConfig() Config {
	return Config{
		Enabled:             true,
		MaxParams:           255,
		SplitThreshold:      1024,
		HugeMethodWarning:   8000,
		HugeMethodLimit:     65535,
		WholeStageMaxFields: 100,
		CacheCapacity:       100,
	}
}
