// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package rowflow

import (
	"context"
	"testing"

	"github.com/cockroachdb/relcore/pkg/sql/opt"
	"github.com/cockroachdb/relcore/pkg/sql/rowexec"
	"github.com/cockroachdb/relcore/pkg/sql/sem/tree"
	"github.com/stretchr/testify/require"
)

func intRows(vals ...[]int) []tree.Datums {
	rows := make([]tree.Datums, len(vals))
	for i, r := range vals {
		rows[i] = make(tree.Datums, len(r))
		for j, v := range r {
			rows[i][j] = tree.NewDInt(tree.DInt(v))
		}
	}
	return rows
}

func TestOrderedSync(t *testing.T) {
	layout := opt.ColList{1, 2, 3}
	asc := func(c opt.ColumnID) opt.OrderingColumn { return opt.MakeOrderingColumn(c, false) }
	desc := func(c opt.ColumnID) opt.OrderingColumn { return opt.MakeOrderingColumn(c, true) }

	testCases := []struct {
		sources  [][]tree.Datums
		ordering opt.Ordering
		expected []tree.Datums
	}{
		{
			sources: [][]tree.Datums{
				intRows([]int{0, 1, 4}, []int{0, 1, 2}, []int{0, 2, 3}, []int{1, 1, 3}),
				intRows([]int{1, 0, 4}),
				intRows([]int{0, 0, 0}, []int{4, 4, 4}),
			},
			ordering: opt.Ordering{asc(1), asc(2)},
			expected: intRows(
				[]int{0, 0, 0},
				[]int{0, 1, 4},
				[]int{0, 1, 2},
				[]int{0, 2, 3},
				[]int{1, 0, 4},
				[]int{1, 1, 3},
				[]int{4, 4, 4},
			),
		},
		{
			sources: [][]tree.Datums{
				{},
				intRows([]int{1, 0, 4}),
				intRows([]int{3, 4, 1}, []int{4, 4, 4}, []int{3, 2, 0}),
				intRows([]int{4, 4, 5}, []int{3, 3, 0}, []int{0, 0, 0}),
			},
			ordering: opt.Ordering{desc(2), asc(3)},
			expected: intRows(
				[]int{3, 4, 1},
				[]int{4, 4, 4},
				[]int{4, 4, 5},
				[]int{3, 3, 0},
				[]int{3, 2, 0},
				[]int{0, 0, 0},
				[]int{1, 0, 4},
			),
		},
	}
	for _, tc := range testCases {
		key, err := rowexec.MakeOrderingKey(layout, tc.ordering)
		require.NoError(t, err)
		rows, err := orderedSync(context.Background(), tc.sources, key)
		require.NoError(t, err)
		require.Equal(t, tc.expected, rows)
	}
}

func TestSerialSync(t *testing.T) {
	rows := serialSync([][]tree.Datums{intRows([]int{1}), nil, intRows([]int{2}, []int{3})})
	require.Equal(t, intRows([]int{1}, []int{2}, []int{3}), rows)
}
