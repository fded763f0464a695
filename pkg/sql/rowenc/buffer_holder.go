// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package rowenc

import (
	"math"

	"github.com/cockroachdb/errors"
)

// MaxArraySize is the largest byte buffer a row writer will allocate.
const MaxArraySize = math.MaxInt32 - 15

// ErrBufferLimit marks errors returned when a buffer cannot grow past
// MaxArraySize.
var ErrBufferLimit = errors.New("buffer size limitation exceeded")

// GrowableBuffer is a byte buffer with a write cursor. The bytes before the
// cursor are the contents of the buffer.
type GrowableBuffer struct {
	buf    []byte
	cursor int
	// limit is MaxArraySize unless overridden in tests.
	limit int
}

func (b *GrowableBuffer) init(initialSize int) {
	b.buf = make([]byte, initialSize)
	b.cursor = 0
	b.limit = MaxArraySize
}

// Grow makes room for at least needed more bytes after the cursor. The
// capacity doubles until it would exceed the size limit, at which point it
// is clamped to the limit.
func (b *GrowableBuffer) Grow(needed int) error {
	if needed < 0 {
		return errors.AssertionFailedf("cannot grow by negative size %d", needed)
	}
	if needed > b.limit-b.cursor {
		return errors.Mark(errors.Newf(
			"cannot grow internal buffer by %d bytes because the size after growing exceeds size limitation %d",
			needed, b.limit), ErrBufferLimit)
	}
	length := b.cursor + needed
	if len(b.buf) >= length {
		return nil
	}
	newLength := b.limit
	if length < b.limit/2 {
		newLength = length * 2
	}
	buf := make([]byte, newLength)
	copy(buf, b.buf[:b.cursor])
	b.buf = buf
	return nil
}

// Write appends p, growing the buffer as needed.
func (b *GrowableBuffer) Write(p []byte) (int, error) {
	if err := b.Grow(len(p)); err != nil {
		return 0, err
	}
	b.cursor += copy(b.buf[b.cursor:], p)
	return len(p), nil
}

// Cursor returns the write position.
func (b *GrowableBuffer) Cursor() int { return b.cursor }

// IncreaseCursor moves the cursor after bytes written directly into the
// slice returned by Bytes.
func (b *GrowableBuffer) IncreaseCursor(n int) { b.cursor += n }

// TotalSize returns the number of bytes written.
func (b *GrowableBuffer) TotalSize() int { return b.cursor }

// Bytes returns the whole backing slice, including the unused capacity past
// the cursor. It is invalidated by Grow.
func (b *GrowableBuffer) Bytes() []byte { return b.buf }

// BufferHolder is the growable buffer behind an UnsafeRow: a fixed-size
// region holding the null bitset and one 8-byte slot per field, followed by
// the variable-length data of the row.
type BufferHolder struct {
	GrowableBuffer
	fixedSize int
}

// NewBufferHolder creates a holder for rows of numFields fields, with
// initialSize bytes reserved for variable-length data.
func NewBufferHolder(numFields, initialSize int) (*BufferHolder, error) {
	bitset := calculateBitSetWidthInBytes(numFields)
	if numFields > (MaxArraySize-initialSize-bitset)/8 {
		return nil, errors.Newf(
			"cannot create a buffer holder for %d fields: the fixed region exceeds size limitation %d",
			numFields, MaxArraySize)
	}
	h := &BufferHolder{fixedSize: bitset + 8*numFields}
	h.init(h.fixedSize + initialSize)
	h.cursor = h.fixedSize
	return h, nil
}

// Reset rewinds the cursor to the end of the fixed region, discarding the
// variable-length data. The fixed region is cleared.
func (h *BufferHolder) Reset() {
	for i := 0; i < h.fixedSize; i++ {
		h.buf[i] = 0
	}
	h.cursor = h.fixedSize
}

// FixedSize returns the size of the null bitset and the field slots.
func (h *BufferHolder) FixedSize() int { return h.fixedSize }

// Row returns the bytes of the row written so far.
func (h *BufferHolder) Row() []byte { return h.buf[:h.cursor] }

// StringBuilder concatenates strings into a growable buffer with the same
// size limit as a row buffer.
type StringBuilder struct {
	GrowableBuffer
}

const defaultStringBuilderSize = 16

// MakeStringBuilder returns an empty builder.
func MakeStringBuilder() StringBuilder {
	var sb StringBuilder
	sb.init(defaultStringBuilderSize)
	return sb
}

// Append appends s.
func (sb *StringBuilder) Append(s string) error {
	if err := sb.Grow(len(s)); err != nil {
		return err
	}
	sb.cursor += copy(sb.buf[sb.cursor:], s)
	return nil
}

// Build returns the concatenated string.
func (sb *StringBuilder) Build() string {
	return string(sb.buf[:sb.cursor])
}

// calculateBitSetWidthInBytes returns the size of a null bitset of 64-bit
// words covering numFields fields.
func calculateBitSetWidthInBytes(numFields int) int {
	return ((numFields + 63) / 64) * 8
}
