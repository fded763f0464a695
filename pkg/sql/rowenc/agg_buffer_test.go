// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package rowenc

import (
	"testing"

	"github.com/cockroachdb/relcore/pkg/sql/sem/builtins"
	"github.com/cockroachdb/relcore/pkg/sql/types"
	"github.com/stretchr/testify/require"
)

func lookupAgg(t *testing.T, name string, argTypes ...*types.T) *builtins.AggregateOverload {
	agg, err := builtins.LookupAggregate(name, argTypes)
	require.NoError(t, err)
	return agg
}

func TestAggBufferLayout(t *testing.T) {
	l := NewAggBufferLayout([]*builtins.AggregateOverload{
		lookupAgg(t, "sum", types.Int),
		lookupAgg(t, "avg", types.Int),
		lookupAgg(t, "count_rows"),
	})
	require.Equal(t, 3, l.NumFunctions())
	require.Equal(t, []*types.T{types.Int, types.Float, types.Int, types.Int}, l.Types())

	for i, want := range [][2]int{{0, 1}, {1, 3}, {3, 4}} {
		start, end := l.Slots(i)
		require.Equal(t, want, [2]int{start, end}, "function %d", i)
	}
	require.True(t, l.FixedWidth())
	require.Equal(t, "(NULL, NULL, 0, 0)", l.Initial().String())

	// The initial buffer is a fresh copy every time.
	buf := l.Initial()
	buf[0] = nil
	require.NotNil(t, l.Initial()[0])
}

func TestAggBufferLayoutNotFixedWidth(t *testing.T) {
	require.False(t, NewAggBufferLayout([]*builtins.AggregateOverload{
		lookupAgg(t, "min", types.String),
	}).FixedWidth())
	require.False(t, NewAggBufferLayout([]*builtins.AggregateOverload{
		lookupAgg(t, "count_rows"),
		lookupAgg(t, "string_agg", types.String, types.String),
	}).FixedWidth())
	require.False(t, NewAggBufferLayout([]*builtins.AggregateOverload{
		lookupAgg(t, "sum", types.Decimal),
	}).FixedWidth())
}
