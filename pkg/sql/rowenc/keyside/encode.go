// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package keyside

import (
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/relcore/pkg/sql/sem/tree"
	"github.com/cockroachdb/relcore/pkg/util/encoding"
)

// Encode encodes a datum into an order-preserving key and appends it to b.
func Encode(b []byte, val tree.Datum, dir encoding.Direction) ([]byte, error) {
	if (dir != encoding.Ascending) && (dir != encoding.Descending) {
		return nil, errors.Errorf("invalid direction: %d", dir)
	}
	start := len(b)
	if val == tree.DNull {
		b = encoding.EncodeNullAscending(b)
	} else {
		b = encoding.EncodeNotNullAscending(b)
		switch t := val.(type) {
		case *tree.DBool:
			b = encoding.EncodeBoolAscending(b, bool(*t))
		case *tree.DInt:
			b = encoding.EncodeInt64Ascending(b, int64(*t))
		case *tree.DFloat:
			b = encoding.EncodeFloatAscending(b, float64(*t))
		case *tree.DDecimal:
			b = encoding.EncodeDecimalAscending(b, &t.Decimal)
		case *tree.DString:
			b = encoding.EncodeStringAscending(b, string(*t))
		default:
			return nil, errors.AssertionFailedf("unable to encode table key: %T", val)
		}
	}
	if dir == encoding.Descending {
		encoding.OnesComplement(b[start:])
	}
	return b, nil
}

// EncodeRow encodes every datum of row in the direction given for its
// position, or ascending if dirs is nil.
func EncodeRow(b []byte, row tree.Datums, dirs []encoding.Direction) ([]byte, error) {
	var err error
	for i, d := range row {
		dir := encoding.Ascending
		if dirs != nil {
			dir = dirs[i]
		}
		if b, err = Encode(b, d, dir); err != nil {
			return nil, err
		}
	}
	return b, nil
}
