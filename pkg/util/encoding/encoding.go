// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package encoding implements order-preserving binary encodings. For every
// Encode*Ascending function, bytes.Compare on two encodings orders them the
// same way as the encoded values. Encodings are self-delimiting so that
// several of them can be concatenated into a composite key; applying
// OnesComplement to the bytes of one encoded value reverses its order.
package encoding

import (
	"bytes"
	"encoding/binary"
	"math"
	"strings"

	"github.com/cockroachdb/apd/v3"
	"github.com/cockroachdb/errors"
)

const (
	// NullMarker precedes a NULL value; it sorts before every non-NULL value.
	NullMarker byte = 0x00
	// NotNullMarker precedes a non-NULL value.
	NotNullMarker byte = 0x01

	// <term>     -> \x00\x01
	// \x00       -> \x00\xff
	escape      byte = 0x00
	escapedTerm byte = 0x01
	escaped00   byte = 0xff

	decimalNeg  byte = 0x01
	decimalZero byte = 0x02
	decimalPos  byte = 0x03
)

// Direction for ordering results.
type Direction int

// Direction values.
const (
	Ascending Direction = iota
	Descending
)

// Reverse returns the opposite direction.
func (d Direction) Reverse() Direction {
	if d == Ascending {
		return Descending
	}
	return Ascending
}

// OnesComplement inverts every bit of b in place.
func OnesComplement(b []byte) {
	for i := range b {
		b[i] = ^b[i]
	}
}

// EncodeUint64Ascending encodes the uint64 value using a big-endian 8 byte
// representation.
func EncodeUint64Ascending(b []byte, v uint64) []byte {
	return binary.BigEndian.AppendUint64(b, v)
}

// DecodeUint64Ascending decodes a uint64 from the input buffer, treating
// the input as a big-endian 8 byte uint64 representation.
func DecodeUint64Ascending(b []byte) ([]byte, uint64, error) {
	if len(b) < 8 {
		return nil, 0, errors.Errorf("insufficient bytes to decode uint64 int value")
	}
	return b[8:], binary.BigEndian.Uint64(b), nil
}

// EncodeInt64Ascending encodes an int64 in 8 bytes with the sign bit flipped
// so that negative values sort first.
func EncodeInt64Ascending(b []byte, v int64) []byte {
	return EncodeUint64Ascending(b, uint64(v)^(1<<63))
}

// DecodeInt64Ascending decodes a value encoded by EncodeInt64Ascending.
func DecodeInt64Ascending(b []byte) ([]byte, int64, error) {
	b, u, err := DecodeUint64Ascending(b)
	return b, int64(u ^ (1 << 63)), err
}

// EncodeFloatAscending encodes a float64 so that the encoding sorts in
// numeric order. Negative values have all bits inverted; non-negative values
// have only the sign bit set. -0 is encoded as +0.
func EncodeFloatAscending(b []byte, f float64) []byte {
	if f == 0 {
		f = 0
	}
	u := math.Float64bits(f)
	if u&(1<<63) != 0 {
		u = ^u
	} else {
		u |= 1 << 63
	}
	return EncodeUint64Ascending(b, u)
}

// DecodeFloatAscending decodes a value encoded by EncodeFloatAscending.
func DecodeFloatAscending(b []byte) ([]byte, float64, error) {
	b, u, err := DecodeUint64Ascending(b)
	if err != nil {
		return nil, 0, err
	}
	if u&(1<<63) != 0 {
		u &^= 1 << 63
	} else {
		u = ^u
	}
	return b, math.Float64frombits(u), nil
}

// EncodeBytesAscending encodes the []byte value using an escape-based
// encoding. The encoded value is terminated with the sequence "\x00\x01"
// which is guaranteed to not occur elsewhere in the encoded value.
func EncodeBytesAscending(b []byte, data []byte) []byte {
	for {
		i := bytes.IndexByte(data, escape)
		if i == -1 {
			break
		}
		b = append(b, data[:i]...)
		b = append(b, escape, escaped00)
		data = data[i+1:]
	}
	b = append(b, data...)
	return append(b, escape, escapedTerm)
}

// EncodeStringAscending is EncodeBytesAscending for strings.
func EncodeStringAscending(b []byte, s string) []byte {
	return EncodeBytesAscending(b, []byte(s))
}

// DecodeBytesAscending decodes a value encoded by EncodeBytesAscending. The
// decoded bytes are appended to r.
func DecodeBytesAscending(b []byte, r []byte) ([]byte, []byte, error) {
	for {
		i := bytes.IndexByte(b, escape)
		if i == -1 {
			return nil, nil, errors.Errorf("did not find terminator %#x in buffer %#x", escape, b)
		}
		if i+1 >= len(b) {
			return nil, nil, errors.Errorf("malformed escape in buffer %#x", b)
		}
		switch b[i+1] {
		case escapedTerm:
			return b[i+2:], append(r, b[:i]...), nil
		case escaped00:
			r = append(r, b[:i]...)
			r = append(r, 0)
		default:
			return nil, nil, errors.Errorf("unknown escape sequence: %#x %#x", escape, b[i+1])
		}
		b = b[i+2:]
	}
}

// DecodeStringAscending decodes a value encoded by EncodeStringAscending.
func DecodeStringAscending(b []byte) ([]byte, string, error) {
	b, r, err := DecodeBytesAscending(b, nil)
	return b, string(r), err
}

// EncodeDecimalAscending encodes a decimal so that numerically equal values
// (e.g. 1.5 and 1.50) have identical encodings. The layout is a class byte
// (negative, zero, positive) followed, for non-zero values, by the adjusted
// exponent and the significant digits, inverted for negative values.
func EncodeDecimalAscending(b []byte, d *apd.Decimal) []byte {
	if d.IsZero() {
		return append(b, decimalZero)
	}
	var r apd.Decimal
	r.Reduce(d)
	var coeff apd.Decimal
	coeff.Coeff.Set(&r.Coeff)
	digits := coeff.Text('f')
	adjExp := int64(r.Exponent) + int64(len(digits)) - 1
	class := decimalPos
	if r.Negative {
		class = decimalNeg
	}
	b = append(b, class)
	n := len(b)
	b = EncodeInt64Ascending(b, adjExp)
	b = EncodeStringAscending(b, digits)
	if r.Negative {
		OnesComplement(b[n:])
	}
	return b
}

// DecodeDecimalAscending decodes a value encoded by EncodeDecimalAscending.
func DecodeDecimalAscending(b []byte) ([]byte, *apd.Decimal, error) {
	if len(b) == 0 {
		return nil, nil, errors.Errorf("insufficient bytes to decode decimal")
	}
	class := b[0]
	b = b[1:]
	switch class {
	case decimalZero:
		return b, apd.New(0, 0), nil
	case decimalPos, decimalNeg:
	default:
		return nil, nil, errors.Errorf("unknown decimal class %#x", class)
	}
	if class == decimalNeg {
		if len(b) < 8 {
			return nil, nil, errors.Errorf("insufficient bytes to decode decimal")
		}
		end := bytes.Index(b[8:], []byte{^escape, ^escapedTerm})
		if end == -1 {
			return nil, nil, errors.Errorf("did not find decimal terminator in buffer %#x", b)
		}
		tmp := append([]byte(nil), b[:8+end+2]...)
		OnesComplement(tmp)
		_, d, err := decodeDecimalBody(tmp, true)
		return b[8+end+2:], d, err
	}
	return decodeDecimalBody(b, false)
}

func decodeDecimalBody(b []byte, neg bool) ([]byte, *apd.Decimal, error) {
	b, adjExp, err := DecodeInt64Ascending(b)
	if err != nil {
		return nil, nil, err
	}
	b, digits, err := DecodeStringAscending(b)
	if err != nil {
		return nil, nil, err
	}
	var sb strings.Builder
	if neg {
		sb.WriteByte('-')
	}
	sb.WriteString(digits)
	d, _, err := apd.NewFromString(sb.String())
	if err != nil {
		return nil, nil, errors.Wrap(err, "decoding decimal digits")
	}
	d.Exponent = int32(adjExp - int64(len(digits)) + 1)
	return b, d, nil
}

// EncodeBoolAscending encodes a bool in a single byte.
func EncodeBoolAscending(b []byte, v bool) []byte {
	if v {
		return append(b, 1)
	}
	return append(b, 0)
}

// DecodeBoolAscending decodes a value encoded by EncodeBoolAscending.
func DecodeBoolAscending(b []byte) ([]byte, bool, error) {
	if len(b) == 0 {
		return nil, false, errors.Errorf("insufficient bytes to decode bool")
	}
	return b[1:], b[0] != 0, nil
}

// EncodeNullAscending encodes a NULL value.
func EncodeNullAscending(b []byte) []byte {
	return append(b, NullMarker)
}

// EncodeNotNullAscending encodes the marker that precedes a non-NULL value.
func EncodeNotNullAscending(b []byte) []byte {
	return append(b, NotNullMarker)
}

// DecodeIfNull decodes a NULL marker. If the value is not NULL, the
// not-NULL marker is consumed and isNull is false.
func DecodeIfNull(b []byte) (_ []byte, isNull bool, _ error) {
	if len(b) == 0 {
		return nil, false, errors.Errorf("insufficient bytes to decode null marker")
	}
	switch b[0] {
	case NullMarker:
		return b[1:], true, nil
	case NotNullMarker:
		return b[1:], false, nil
	}
	return nil, false, errors.Errorf("unknown null marker %#x", b[0])
}
