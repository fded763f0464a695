// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package keyside_test

import (
	"bytes"
	"testing"

	"github.com/cockroachdb/relcore/pkg/sql/rowenc/keyside"
	"github.com/cockroachdb/relcore/pkg/sql/sem/tree"
	"github.com/cockroachdb/relcore/pkg/sql/types"
	"github.com/cockroachdb/relcore/pkg/util/encoding"
	"github.com/stretchr/testify/require"
)

func mustDecimal(t *testing.T, s string) tree.Datum {
	d, err := tree.ParseDDecimal(s)
	require.NoError(t, err)
	return d
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	testCases := []struct {
		typ  *types.T
		vals []tree.Datum
	}{
		{types.Bool, []tree.Datum{tree.DNull, tree.DBoolFalse, tree.DBoolTrue}},
		{types.Int, []tree.Datum{tree.DNull, tree.NewDInt(-100), tree.NewDInt(0), tree.NewDInt(42)}},
		{types.Float, []tree.Datum{tree.DNull, tree.NewDFloat(-2.5), tree.NewDFloat(0), tree.NewDFloat(1e9)}},
		{types.Decimal, []tree.Datum{
			tree.DNull, mustDecimal(t, "-12.5"), mustDecimal(t, "-0.001"), mustDecimal(t, "0"),
			mustDecimal(t, "0.5"), mustDecimal(t, "3"), mustDecimal(t, "1234.5678"),
		}},
		{types.String, []tree.Datum{
			tree.DNull, tree.NewDString(""), tree.NewDString("a"), tree.NewDString("a\x00b"),
			tree.NewDString("ab"), tree.NewDString("b"),
		}},
	}
	for _, tc := range testCases {
		for _, dir := range []encoding.Direction{encoding.Ascending, encoding.Descending} {
			var prev []byte
			for i, v := range tc.vals {
				enc, err := keyside.Encode(nil, v, dir)
				require.NoError(t, err)
				if i > 0 {
					want := -1
					if dir == encoding.Descending {
						want = 1
					}
					require.Equal(t, want, bytes.Compare(prev, enc), "dir %d: %s vs %s", dir, tc.vals[i-1], v)
				}
				// A trailing suffix must be left for the next value.
				dec, rest, err := keyside.Decode(tc.typ, append(enc, 0xAB), dir)
				require.NoError(t, err)
				require.Equal(t, []byte{0xAB}, rest)
				require.Equal(t, 0, dec.Compare(v), "%s: %s decoded as %s", tc.typ, v, dec)
				prev = enc
			}
		}
	}
}

func TestEncodeRowGroupsEqualDecimals(t *testing.T) {
	a, err := keyside.EncodeRow(nil, tree.Datums{tree.NewDString("k"), mustDecimal(t, "1.5")}, nil)
	require.NoError(t, err)
	b, err := keyside.EncodeRow(nil, tree.Datums{tree.NewDString("k"), mustDecimal(t, "1.50")}, nil)
	require.NoError(t, err)
	require.Equal(t, a, b)

	row, rest, err := keyside.DecodeRow([]*types.T{types.String, types.Decimal}, a, nil)
	require.NoError(t, err)
	require.Empty(t, rest)
	require.Equal(t, "k", string(*row[0].(*tree.DString)))
	require.Equal(t, 0, row[1].Compare(mustDecimal(t, "1.5")))
}

func TestEncodeRowMixedDirections(t *testing.T) {
	dirs := []encoding.Direction{encoding.Ascending, encoding.Descending}
	enc := func(a, b int64) []byte {
		k, err := keyside.EncodeRow(nil, tree.Datums{tree.NewDInt(tree.DInt(a)), tree.NewDInt(tree.DInt(b))}, dirs)
		require.NoError(t, err)
		return k
	}
	require.Equal(t, -1, bytes.Compare(enc(1, 9), enc(2, 0)))
	require.Equal(t, -1, bytes.Compare(enc(1, 9), enc(1, 3)))

	row, _, err := keyside.DecodeRow([]*types.T{types.Int, types.Int}, enc(1, 9), dirs)
	require.NoError(t, err)
	require.Equal(t, "1", row[0].String())
	require.Equal(t, "9", row[1].String())
}
