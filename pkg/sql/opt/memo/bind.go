// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package memo

import (
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/relcore/pkg/sql/opt"
)

// BindScalar resolves the column references of a scalar expression against
// a concrete row layout, replacing each VariableExpr with an OrdinalExpr
// that indexes into the row. Subqueries must have been replaced by their
// values before binding.
func BindScalar(e ScalarExpr, layout opt.ColList) (ScalarExpr, error) {
	var err error
	res := TransformScalar(e, func(s ScalarExpr) ScalarExpr {
		switch t := s.(type) {
		case *VariableExpr:
			idx, ok := layout.Find(t.Col)
			if !ok {
				if err == nil {
					err = errors.Mark(
						errors.Newf("column reference @%d cannot be resolved against %s", t.Col, layout),
						ErrUnresolved)
				}
				return s
			}
			return &OrdinalExpr{Ordinal: idx, Typ: t.Typ}
		case *ExistsExpr, *SubqueryExpr:
			if err == nil {
				err = errors.AssertionFailedf("cannot bind unevaluated subquery")
			}
		}
		return s
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}
