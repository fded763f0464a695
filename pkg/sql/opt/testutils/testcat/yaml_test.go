// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package testcat

import (
	"testing"

	"github.com/cockroachdb/relcore/pkg/sql/sem/tree"
	"github.com/stretchr/testify/require"
)

func TestLoadYAML(t *testing.T) {
	catalog := New()
	require.NoError(t, catalog.LoadYAML([]byte(`
- name: u
  columns: [{name: y, type: int}, {name: n, type: string}, {name: b, type: bool}]
  rows: [[1, x, true], [2, y, false]]
  partitions: [[[3, n, null]], [[4, "yes", true]]]
  stats: {row-count: 4, columns: {n: {distinct: 4, min: n, max: "yes"}}}
`)))
	tab, err := catalog.Table("u")
	require.NoError(t, err)
	ord, ok := tab.ColumnOrdinal("y")
	require.True(t, ok)
	require.Equal(t, 0, ord)

	require.Len(t, tab.Partitions, 3)
	var rows []string
	for _, p := range tab.Partitions {
		for _, r := range p {
			rows = append(rows, r.String())
		}
	}
	require.Equal(t, []string{
		`(1, "x", true)`, `(2, "y", false)`, `(3, "n", NULL)`, `(4, "yes", true)`,
	}, rows)

	col := tab.Stats.Columns[1]
	require.Equal(t, tree.NewDString("n"), col.Min)
	require.Equal(t, tree.NewDString("yes"), col.Max)
}

func TestLoadYAMLErrors(t *testing.T) {
	testCases := []struct {
		def      string
		expected string
	}{
		{`[{columns: [{name: a, type: int}]}]`, "table name is required"},
		{`[{name: t, columns: [{name: a, type: blob}]}]`, "unknown type"},
		{`[{name: t, columns: [{name: a, type: int}], rows: [[1, 2]]}]`, "has 2 values"},
		{`[{name: t, columns: [{name: a, type: int}], rows: [[y]]}]`, "cannot convert"},
		{`[{name: t, columns: [{name: a, type: int, not-null: true}], rows: [[null]]}]`, "not-null"},
	}
	for _, tc := range testCases {
		t.Run(tc.expected, func(t *testing.T) {
			err := New().LoadYAML([]byte(tc.def))
			require.ErrorContains(t, err, tc.expected)
		})
	}
}
