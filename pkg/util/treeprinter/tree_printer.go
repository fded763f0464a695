// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package treeprinter renders trees using box-drawing characters.
package treeprinter

import (
	"fmt"
	"strings"
)

const (
	edgeLink = "│"
	edgeMid  = "├── "
	edgeLast = "└── "
	indent   = "    "
)

// Node is a handle associated with a specific depth in a tree. See below for
// sample usage.
type Node struct {
	tree *tree
	idx  int
}

type tree struct {
	text     []string
	children [][]int
}

// New creates a tree printer and returns a sentinel node reference which
// should be used to add the root. Sample usage:
//
//	tp := New()
//	root := tp.Child("root")
//	root.Child("child-1")
//	root.Child("child-2").Child("grandchild")
//
// Result:
//
//	root
//	 ├── child-1
//	 └── child-2
//	      └── grandchild
func New() Node {
	t := &tree{text: []string{""}, children: [][]int{nil}}
	return Node{tree: t, idx: 0}
}

// Child adds a node as a child of the given node.
func (n Node) Child(text string) Node {
	t := n.tree
	idx := len(t.text)
	t.text = append(t.text, text)
	t.children = append(t.children, nil)
	t.children[n.idx] = append(t.children[n.idx], idx)
	return Node{tree: t, idx: idx}
}

// Childf adds a node as a child of the given node.
func (n Node) Childf(format string, args ...interface{}) Node {
	return n.Child(fmt.Sprintf(format, args...))
}

// String returns the rendered tree, starting at the sentinel's children.
func (n Node) String() string {
	var sb strings.Builder
	for _, c := range n.tree.children[n.idx] {
		n.tree.render(&sb, c, "", "")
	}
	return sb.String()
}

func (t *tree) render(sb *strings.Builder, idx int, first, rest string) {
	lines := strings.Split(t.text[idx], "\n")
	for i, l := range lines {
		if i == 0 {
			sb.WriteString(first)
		} else {
			sb.WriteString(rest)
			if len(t.children[idx]) > 0 {
				sb.WriteString(" " + edgeLink + "   ")
			}
		}
		sb.WriteString(l)
		sb.WriteByte('\n')
	}
	children := t.children[idx]
	for i, c := range children {
		if i == len(children)-1 {
			t.render(sb, c, rest+" "+edgeLast, rest+" "+indent)
		} else {
			t.render(sb, c, rest+" "+edgeMid, rest+" "+edgeLink+"   ")
		}
	}
}
