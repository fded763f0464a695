// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package rowenc

import (
	"testing"

	"github.com/cockroachdb/relcore/pkg/sql/sem/tree"
	"github.com/cockroachdb/relcore/pkg/sql/types"
	"github.com/stretchr/testify/require"
)

func TestUnsafeRowRoundTrip(t *testing.T) {
	typs := []*types.T{types.Int, types.String, types.Bool, types.Float, types.Decimal, types.String}
	dec, err := tree.ParseDDecimal("-12.75")
	require.NoError(t, err)
	rows := []tree.Datums{
		{tree.NewDInt(7), tree.NewDString("hello"), tree.DBoolTrue, tree.NewDFloat(2.5), dec, tree.NewDString("")},
		{tree.DNull, tree.DNull, tree.DNull, tree.DNull, tree.DNull, tree.DNull},
		{tree.NewDInt(-1), tree.NewDString("a much longer string that forces the buffer to grow"),
			tree.DBoolFalse, tree.NewDFloat(-0.5), tree.NewDDecimalFromInt(3), tree.DNull},
	}

	w, err := NewUnsafeRowWriter(typs, 0)
	require.NoError(t, err)
	for _, row := range rows {
		r, err := w.WriteRow(row)
		require.NoError(t, err)
		require.Zero(t, len(r.Bytes())%8, "rows are word aligned")

		// Decode from a copy to check that the row is self-contained.
		cp := MakeUnsafeRow(typs)
		cp.PointTo(append([]byte(nil), r.Bytes()...))
		got, err := cp.Datums()
		require.NoError(t, err)
		require.Equal(t, 0, got.Compare(row), "%s != %s", got, row)
	}
}

func TestUnsafeRowSetDatum(t *testing.T) {
	typs := []*types.T{types.Int, types.Float, types.Bool}
	w, err := NewUnsafeRowWriter(typs, 0)
	require.NoError(t, err)
	r, err := w.WriteRow(tree.Datums{tree.DNull, tree.NewDFloat(1), tree.DBoolFalse})
	require.NoError(t, err)

	require.True(t, r.IsNullAt(0))
	require.NoError(t, r.SetDatum(0, tree.NewDInt(41)))
	require.False(t, r.IsNullAt(0))
	require.NoError(t, r.SetDatum(1, tree.DNull))
	require.NoError(t, r.SetDatum(2, tree.DBoolTrue))

	got, err := r.Datums()
	require.NoError(t, err)
	require.Equal(t, "(41, NULL, true)", got.String())
}

func TestUnsafeRowSetVariableLength(t *testing.T) {
	w, err := NewUnsafeRowWriter([]*types.T{types.String}, 0)
	require.NoError(t, err)
	r, err := w.WriteRow(tree.Datums{tree.NewDString("x")})
	require.NoError(t, err)
	require.Error(t, r.SetDatum(0, tree.NewDString("y")))
}
