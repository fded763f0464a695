// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package valueside

import (
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/relcore/pkg/sql/sem/tree"
	"github.com/cockroachdb/relcore/pkg/util/encoding"
)

// Decode decodes a value encoded by Encode.
func Decode(b []byte) (_ tree.Datum, remaining []byte, _ error) {
	if len(b) == 0 {
		return nil, nil, errors.Errorf("insufficient bytes to decode value")
	}
	switch tag(b[0]) {
	case nullTag:
		return tree.DNull, b[1:], nil
	case boolTag:
		rb, v, err := encoding.DecodeBoolAscending(b[1:])
		return tree.MakeDBool(tree.DBool(v)), rb, err
	case intTag:
		rb, v, err := encoding.DecodeInt64Ascending(b[1:])
		return tree.NewDInt(tree.DInt(v)), rb, err
	case floatTag:
		rb, v, err := encoding.DecodeFloatAscending(b[1:])
		return tree.NewDFloat(tree.DFloat(v)), rb, err
	case decimalTag:
		rb, s, err := encoding.DecodeStringAscending(b[1:])
		if err != nil {
			return nil, nil, err
		}
		d, err := tree.ParseDDecimal(s)
		return d, rb, err
	case stringTag:
		rb, s, err := encoding.DecodeStringAscending(b[1:])
		return tree.NewDString(s), rb, err
	}
	return nil, nil, errors.Errorf("unknown value tag %#x", b[0])
}

// DecodeRow decodes a row encoded by EncodeRow.
func DecodeRow(b []byte) (_ tree.Datums, remaining []byte, _ error) {
	b, n, err := encoding.DecodeUint64Ascending(b)
	if err != nil {
		return nil, nil, err
	}
	if n > uint64(len(b)) {
		return nil, nil, errors.Errorf("corrupt row: %d values in %d bytes", n, len(b))
	}
	row := make(tree.Datums, n)
	for i := range row {
		if row[i], b, err = Decode(b); err != nil {
			return nil, nil, err
		}
	}
	return row, b, nil
}
