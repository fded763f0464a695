// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package keyside

import (
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/relcore/pkg/sql/sem/tree"
	"github.com/cockroachdb/relcore/pkg/sql/types"
	"github.com/cockroachdb/relcore/pkg/util/encoding"
)

// Decode decodes a value encoded by Encode from a key.
func Decode(
	valType *types.T, key []byte, dir encoding.Direction,
) (_ tree.Datum, remainingKey []byte, _ error) {
	if (dir != encoding.Ascending) && (dir != encoding.Descending) {
		return nil, nil, errors.Errorf("invalid direction: %d", dir)
	}
	if dir == encoding.Descending {
		// Descending values are decoded from an inverted copy; the number of
		// bytes consumed is the same in both directions.
		tmp := append([]byte(nil), key...)
		encoding.OnesComplement(tmp)
		d, rest, err := decodeAscending(valType, tmp)
		if err != nil {
			return nil, nil, err
		}
		return d, key[len(key)-len(rest):], nil
	}
	return decodeAscending(valType, key)
}

func decodeAscending(valType *types.T, key []byte) (tree.Datum, []byte, error) {
	key, isNull, err := encoding.DecodeIfNull(key)
	if err != nil {
		return nil, nil, err
	}
	if isNull {
		return tree.DNull, key, nil
	}

	switch valType.Family() {
	case types.BoolFamily:
		rkey, v, err := encoding.DecodeBoolAscending(key)
		return tree.MakeDBool(tree.DBool(v)), rkey, err
	case types.IntFamily:
		rkey, i, err := encoding.DecodeInt64Ascending(key)
		return tree.NewDInt(tree.DInt(i)), rkey, err
	case types.FloatFamily:
		rkey, f, err := encoding.DecodeFloatAscending(key)
		return tree.NewDFloat(tree.DFloat(f)), rkey, err
	case types.DecimalFamily:
		rkey, d, err := encoding.DecodeDecimalAscending(key)
		if err != nil {
			return nil, nil, err
		}
		dd := &tree.DDecimal{}
		dd.Set(d)
		return dd, rkey, nil
	case types.StringFamily:
		rkey, r, err := encoding.DecodeStringAscending(key)
		return tree.NewDString(r), rkey, err
	}
	return nil, nil, errors.Errorf("unable to decode table key: %s", valType)
}

// DecodeRow decodes a key encoded by EncodeRow into datums of the given
// types.
func DecodeRow(
	typs []*types.T, key []byte, dirs []encoding.Direction,
) (_ tree.Datums, remainingKey []byte, _ error) {
	row := make(tree.Datums, len(typs))
	for i, typ := range typs {
		dir := encoding.Ascending
		if dirs != nil {
			dir = dirs[i]
		}
		var err error
		if row[i], key, err = Decode(typ, key, dir); err != nil {
			return nil, nil, err
		}
	}
	return row, key, nil
}
