// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package optbuilder

import (
	"strings"

	"github.com/cockroachdb/relcore/pkg/sql/opt"
	"github.com/cockroachdb/relcore/pkg/sql/types"
)

// scopeColumn is a column visible by name in a scope.
type scopeColumn struct {
	name  string
	table string
	id    opt.ColumnID
	typ   *types.T
}

// scope maintains the columns that have been bound within the current
// relational expression. Columns bound in the parent scope are also visible
// in this scope; references to them are outer references.
type scope struct {
	parent *scope
	cols   []scopeColumn
}

func (s *scope) push() *scope {
	return &scope{parent: s}
}

func (s *scope) colList() opt.ColList {
	res := make(opt.ColList, len(s.cols))
	for i := range s.cols {
		res[i] = s.cols[i].id
	}
	return res
}

// resolve finds the column with the given name, which may be qualified by a
// table name. The innermost scope containing a match wins; more than one
// match within that scope is an error.
func (s *scope) resolve(name string) (*scopeColumn, error) {
	table, col := "", name
	if i := strings.IndexByte(name, '.'); i >= 0 {
		table, col = name[:i], name[i+1:]
	}
	for cur := s; cur != nil; cur = cur.parent {
		var found *scopeColumn
		for i := range cur.cols {
			c := &cur.cols[i]
			if c.name != col || (table != "" && c.table != table) {
				continue
			}
			if found != nil {
				return nil, unresolvedf("column reference %q is ambiguous", name)
			}
			found = c
		}
		if found != nil {
			return found, nil
		}
	}
	return nil, unresolvedf("column %q does not exist", name)
}

// isOuter returns true if the column is not bound by this scope.
func (s *scope) isOuter(id opt.ColumnID) bool {
	for i := range s.cols {
		if s.cols[i].id == id {
			return false
		}
	}
	return true
}
