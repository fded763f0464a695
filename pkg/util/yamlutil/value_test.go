// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package yamlutil

import (
	"testing"

	"github.com/stretchr/testify/require"
	yaml "gopkg.in/yaml.v2"
)

func TestUnmarshalScalars(t *testing.T) {
	testCases := []struct {
		in       string
		expected interface{}
	}{
		{`true`, true},
		{`False`, false},
		{`"true"`, "true"},
		{`y`, "y"},
		{`n`, "n"},
		{`yes`, "yes"},
		{`No`, "No"},
		{`on`, "on"},
		{`OFF`, "OFF"},
		{`'y'`, "y"},
		{`1`, 1},
		{`1.5`, 1.5},
		{`"1"`, "1"},
		{`null`, nil},
		{`~`, nil},
		{`abc`, "abc"},
	}
	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			v, err := Unmarshal([]byte(tc.in))
			require.NoError(t, err)
			require.Equal(t, tc.expected, v)
		})
	}
}

func TestUnmarshalNested(t *testing.T) {
	v, err := Unmarshal([]byte(`
join:
  left: {scan: t}
  on: [">", y, n]
  flags: [yes, true, null, 3]
`))
	require.NoError(t, err)
	require.Equal(t, map[interface{}]interface{}{
		"join": map[interface{}]interface{}{
			"left":  map[interface{}]interface{}{"scan": "t"},
			"on":    []interface{}{">", "y", "n"},
			"flags": []interface{}{"yes", true, nil, 3},
		},
	}, v)
}

func TestValueField(t *testing.T) {
	var s struct {
		Rows  [][]Value `yaml:"rows"`
		Query Value     `yaml:"query"`
		Unset Value     `yaml:"unset"`
	}
	require.NoError(t, yaml.UnmarshalStrict([]byte(`
rows: [[x, 1], [y, 2], [n, null]]
query: {scan: off}
`), &s))
	require.Equal(t, []interface{}{"y", 2}, Values(s.Rows[1]))
	require.Equal(t, []interface{}{"n", nil}, Values(s.Rows[2]))
	require.Equal(t, map[interface{}]interface{}{"scan": "off"}, s.Query.V)
	require.Nil(t, s.Unset.V)
}
