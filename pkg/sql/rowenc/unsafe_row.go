// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package rowenc

import (
	"encoding/binary"
	"math"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/relcore/pkg/sql/sem/tree"
	"github.com/cockroachdb/relcore/pkg/sql/types"
	"github.com/cockroachdb/relcore/pkg/util/encoding"
)

// UnsafeRow is a row stored in a single byte slice:
//
//	[null bitset][8-byte slot per field][variable-length data]
//
// The null bitset is made of 64-bit words. A fixed-width field (bool, int,
// float) is stored in its slot. A variable-length field (string, decimal)
// stores offset<<32|size in its slot, where offset is relative to the start
// of the row and the data is padded to a multiple of 8 bytes.
type UnsafeRow struct {
	typs []*types.T
	data []byte
}

// MakeUnsafeRow returns a row of the given types that does not point to any
// data yet.
func MakeUnsafeRow(typs []*types.T) UnsafeRow {
	return UnsafeRow{typs: typs}
}

// PointTo makes the row read and write data.
func (r *UnsafeRow) PointTo(data []byte) { r.data = data }

// NumFields returns the number of fields.
func (r UnsafeRow) NumFields() int { return len(r.typs) }

// Bytes returns the encoded row.
func (r UnsafeRow) Bytes() []byte { return r.data }

func (r UnsafeRow) slotOffset(i int) int {
	return calculateBitSetWidthInBytes(len(r.typs)) + 8*i
}

// IsNullAt returns true if field i is NULL.
func (r UnsafeRow) IsNullAt(i int) bool {
	word := binary.LittleEndian.Uint64(r.data[(i/64)*8:])
	return word&(1<<(uint(i)%64)) != 0
}

func (r UnsafeRow) setNullBit(i int, null bool) {
	off := (i / 64) * 8
	word := binary.LittleEndian.Uint64(r.data[off:])
	if null {
		word |= 1 << (uint(i) % 64)
	} else {
		word &^= 1 << (uint(i) % 64)
	}
	binary.LittleEndian.PutUint64(r.data[off:], word)
}

// Datum decodes field i.
func (r UnsafeRow) Datum(i int) (tree.Datum, error) {
	if r.IsNullAt(i) {
		return tree.DNull, nil
	}
	slot := binary.LittleEndian.Uint64(r.data[r.slotOffset(i):])
	switch r.typs[i].Family() {
	case types.BoolFamily:
		return tree.MakeDBool(slot != 0), nil
	case types.IntFamily:
		return tree.NewDInt(tree.DInt(int64(slot))), nil
	case types.FloatFamily:
		return tree.NewDFloat(tree.DFloat(math.Float64frombits(slot))), nil
	}
	offset, size := int(slot>>32), int(uint32(slot))
	if offset+size > len(r.data) {
		return nil, errors.AssertionFailedf("field %d at [%d, %d) past the end of a row of %d bytes",
			i, offset, offset+size, len(r.data))
	}
	b := r.data[offset : offset+size]
	switch r.typs[i].Family() {
	case types.StringFamily:
		return tree.NewDString(string(b)), nil
	case types.DecimalFamily:
		_, d, err := encoding.DecodeDecimalAscending(b)
		if err != nil {
			return nil, err
		}
		dd := &tree.DDecimal{}
		dd.Set(d)
		return dd, nil
	}
	return nil, errors.AssertionFailedf("unsupported row field type %s", r.typs[i])
}

// Datums decodes every field.
func (r UnsafeRow) Datums() (tree.Datums, error) {
	row := make(tree.Datums, len(r.typs))
	for i := range row {
		var err error
		if row[i], err = r.Datum(i); err != nil {
			return nil, err
		}
	}
	return row, nil
}

// SetDatum overwrites fixed-width field i in place.
func (r UnsafeRow) SetDatum(i int, d tree.Datum) error {
	if !r.typs[i].IsFixedWidth() {
		return errors.AssertionFailedf("cannot update variable-length field %d of type %s in place", i, r.typs[i])
	}
	if d == tree.DNull {
		r.setNullBit(i, true)
		binary.LittleEndian.PutUint64(r.data[r.slotOffset(i):], 0)
		return nil
	}
	slot, err := fixedSlot(d)
	if err != nil {
		return err
	}
	r.setNullBit(i, false)
	binary.LittleEndian.PutUint64(r.data[r.slotOffset(i):], slot)
	return nil
}

func fixedSlot(d tree.Datum) (uint64, error) {
	switch t := d.(type) {
	case *tree.DBool:
		if *t {
			return 1, nil
		}
		return 0, nil
	case *tree.DInt:
		return uint64(*t), nil
	case *tree.DFloat:
		return math.Float64bits(float64(*t)), nil
	}
	return 0, errors.AssertionFailedf("%T is not a fixed-width datum", d)
}

// UnsafeRowWriter encodes rows of a fixed set of types into a reused
// buffer.
type UnsafeRowWriter struct {
	typs   []*types.T
	holder *BufferHolder
	row    UnsafeRow
	// scratch holds the encoding of a decimal field.
	scratch []byte
}

// NewUnsafeRowWriter creates a writer. initialVarSize is the initial room
// for variable-length data.
func NewUnsafeRowWriter(typs []*types.T, initialVarSize int) (*UnsafeRowWriter, error) {
	holder, err := NewBufferHolder(len(typs), initialVarSize)
	if err != nil {
		return nil, err
	}
	return &UnsafeRowWriter{typs: typs, holder: holder, row: MakeUnsafeRow(typs)}, nil
}

// Reset starts a new row.
func (w *UnsafeRowWriter) Reset() { w.holder.Reset() }

// Write sets field i of the current row. Every field must be written once
// per row.
func (w *UnsafeRowWriter) Write(i int, d tree.Datum) error {
	w.row.PointTo(w.holder.Bytes())
	if d == tree.DNull {
		w.row.setNullBit(i, true)
		binary.LittleEndian.PutUint64(w.row.data[w.row.slotOffset(i):], 0)
		return nil
	}
	if w.typs[i].IsFixedWidth() {
		return w.row.SetDatum(i, d)
	}
	var b []byte
	switch t := d.(type) {
	case *tree.DString:
		b = []byte(*t)
	case *tree.DDecimal:
		w.scratch = encoding.EncodeDecimalAscending(w.scratch[:0], &t.Decimal)
		b = w.scratch
	default:
		return errors.AssertionFailedf("cannot write %T into a field of type %s", d, w.typs[i])
	}
	padded := roundToWord(len(b))
	if err := w.holder.Grow(padded); err != nil {
		return err
	}
	buf := w.holder.Bytes()
	offset := w.holder.Cursor()
	n := copy(buf[offset:], b)
	for j := offset + n; j < offset+padded; j++ {
		buf[j] = 0
	}
	w.holder.IncreaseCursor(padded)
	w.row.PointTo(buf)
	w.row.setNullBit(i, false)
	binary.LittleEndian.PutUint64(buf[w.row.slotOffset(i):], uint64(offset)<<32|uint64(len(b)))
	return nil
}

// WriteRow encodes a whole row. The result is valid until the next call to
// the writer; callers that keep it must copy its bytes.
func (w *UnsafeRowWriter) WriteRow(row tree.Datums) (UnsafeRow, error) {
	w.Reset()
	for i, d := range row {
		if err := w.Write(i, d); err != nil {
			return UnsafeRow{}, err
		}
	}
	return w.Row(), nil
}

// Row returns the current row.
func (w *UnsafeRowWriter) Row() UnsafeRow {
	r := MakeUnsafeRow(w.typs)
	r.PointTo(w.holder.Row())
	return r
}

func roundToWord(n int) int {
	return (n + 7) &^ 7
}
