// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package types

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFromString(t *testing.T) {
	for _, typ := range Scalar {
		res, ok := FromString(typ.String())
		require.True(t, ok)
		require.Same(t, typ, res)
	}
	res, ok := FromString("bigint")
	require.True(t, ok)
	require.Same(t, Int, res)
	_, ok = FromString("jsonb")
	require.False(t, ok)
}

func TestCommonNumeric(t *testing.T) {
	require.Same(t, Int, CommonNumeric(Int, Int))
	require.Same(t, Decimal, CommonNumeric(Int, Decimal))
	require.Same(t, Float, CommonNumeric(Decimal, Float))
	require.Same(t, Int, CommonNumeric(Unknown, Int))
	require.Nil(t, CommonNumeric(String, Int))
}

func TestProperties(t *testing.T) {
	require.False(t, Unknown.Orderable())
	require.True(t, String.Orderable())
	require.True(t, Float.IsFixedWidth())
	require.False(t, Decimal.IsFixedWidth())
	require.True(t, Unknown.Equivalent(String))
	require.False(t, Int.Equivalent(Float))
}
