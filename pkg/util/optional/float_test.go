// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package optional

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFloat(t *testing.T) {
	var unknown Float
	require.False(t, unknown.Known())
	require.Equal(t, 7.0, unknown.Or(7))
	require.Equal(t, "unknown", unknown.String())

	ten := MakeFloat(10)
	require.Equal(t, 10.0, ten.Or(7))
	require.Equal(t, MakeFloat(20), ten.Map(func(v float64) float64 { return v * 2 }))
	require.False(t, unknown.Map(func(v float64) float64 { return v * 2 }).Known())

	add := func(a, b float64) float64 { return a + b }
	require.Equal(t, MakeFloat(20), ten.Combine(ten, add))
	require.False(t, ten.Combine(unknown, add).Known())

	require.Equal(t, MakeFloat(3), ten.Min(MakeFloat(3)))
	require.Equal(t, ten, ten.Min(unknown))
	require.Equal(t, ten, unknown.Min(ten))
}
