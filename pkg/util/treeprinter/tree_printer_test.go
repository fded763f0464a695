// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package treeprinter

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTreePrinter(t *testing.T) {
	tp := New()
	root := tp.Child("root")
	root.Child("child-1").Child("grandchild-1")
	c2 := root.Childf("child-%d", 2)
	c2.Child("grandchild-2")
	c2.Child("grandchild-3")

	exp := `root
 ├── child-1
 │    └── grandchild-1
 └── child-2
      ├── grandchild-2
      └── grandchild-3
`
	require.Equal(t, exp, tp.String())
}
