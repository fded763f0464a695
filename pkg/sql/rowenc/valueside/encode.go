// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package valueside encodes rows of datums into the private format used for
// spilled rows. Unlike keyside encodings, value encodings are not ordered
// and carry the type of each datum, so they can be decoded without a schema.
package valueside

import (
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/relcore/pkg/sql/sem/tree"
	"github.com/cockroachdb/relcore/pkg/util/encoding"
)

type tag byte

const (
	nullTag tag = iota
	boolTag
	intTag
	floatTag
	decimalTag
	stringTag
)

// Encode appends the encoding of d to b.
func Encode(b []byte, d tree.Datum) ([]byte, error) {
	switch t := d.(type) {
	case *tree.DBool:
		return encoding.EncodeBoolAscending(append(b, byte(boolTag)), bool(*t)), nil
	case *tree.DInt:
		return encoding.EncodeInt64Ascending(append(b, byte(intTag)), int64(*t)), nil
	case *tree.DFloat:
		return encoding.EncodeFloatAscending(append(b, byte(floatTag)), float64(*t)), nil
	case *tree.DDecimal:
		return encoding.EncodeStringAscending(append(b, byte(decimalTag)), t.Decimal.String()), nil
	case *tree.DString:
		return encoding.EncodeStringAscending(append(b, byte(stringTag)), string(*t)), nil
	}
	if d == tree.DNull {
		return append(b, byte(nullTag)), nil
	}
	return nil, errors.AssertionFailedf("unable to encode value: %T", d)
}

// EncodeRow appends the encoding of every datum of row, preceded by the
// number of datums.
func EncodeRow(b []byte, row tree.Datums) ([]byte, error) {
	b = encoding.EncodeUint64Ascending(b, uint64(len(row)))
	var err error
	for _, d := range row {
		if b, err = Encode(b, d); err != nil {
			return nil, err
		}
	}
	return b, nil
}
