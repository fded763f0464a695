// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package optional provides values that may be absent.
package optional

import "fmt"

// Float is a float64 that may be unknown. The zero value is unknown.
type Float struct {
	v     float64
	known bool
}

// MakeFloat returns a known Float.
func MakeFloat(v float64) Float {
	return Float{v: v, known: true}
}

// Known returns true if the value is set.
func (f Float) Known() bool { return f.known }

// Get returns the value and whether it is known.
func (f Float) Get() (float64, bool) { return f.v, f.known }

// Or returns the value if known, else def.
func (f Float) Or(def float64) float64 {
	if !f.known {
		return def
	}
	return f.v
}

// Map applies fn to a known value. An unknown value stays unknown.
func (f Float) Map(fn func(float64) float64) Float {
	if !f.known {
		return f
	}
	return MakeFloat(fn(f.v))
}

// Combine applies fn when both values are known and returns unknown otherwise.
func (f Float) Combine(o Float, fn func(a, b float64) float64) Float {
	if !f.known || !o.known {
		return Float{}
	}
	return MakeFloat(fn(f.v, o.v))
}

// Min returns the smaller of two known values. If only one of them is known,
// it bounds the result.
func (f Float) Min(o Float) Float {
	switch {
	case f.known && o.known:
		if o.v < f.v {
			return o
		}
		return f
	case f.known:
		return f
	default:
		return o
	}
}

func (f Float) String() string {
	if !f.known {
		return "unknown"
	}
	return fmt.Sprintf("%.2f", f.v)
}
