// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package humanizeutil prints and parses the byte sizes and durations shown
// in plans, run summaries and engine flags.
package humanizeutil

import (
	"math"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"
)

// IBytes prints a signed size with binary suffixes, e.g. "2.4 MiB".
func IBytes(value int64) string {
	if value < 0 {
		return "-" + humanize.IBytes(uint64(-value))
	}
	return humanize.IBytes(uint64(value))
}

// ParseBytes reads a signed size such as "64MiB", "-1" or "10 KB".
func ParseBytes(s string) (int64, error) {
	if s == "" {
		return 0, errors.New("empty byte size")
	}
	abs, negative := s, s[0] == '-'
	if negative {
		abs = s[1:]
	}
	value, err := humanize.ParseBytes(abs)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid byte size %q", s)
	}
	if value > math.MaxInt64 {
		return 0, errors.Newf("byte size %q out of range", s)
	}
	if negative {
		return -int64(value), nil
	}
	return int64(value), nil
}

// BytesValue is a pflag.Value that stores a parsed size in an int64.
type BytesValue struct {
	val *int64
}

var _ pflag.Value = &BytesValue{}

// NewBytesValue binds a flag value to val.
func NewBytesValue(val *int64) *BytesValue {
	return &BytesValue{val: val}
}

// Set is part of the pflag.Value interface.
func (b *BytesValue) Set(s string) error {
	v, err := ParseBytes(s)
	if err != nil {
		return err
	}
	*b.val = v
	return nil
}

// Type is part of the pflag.Value interface.
func (b *BytesValue) Type() string {
	return "bytes"
}

// String is part of the pflag.Value interface. pflag calls it on a zero
// BytesValue to detect default values.
func (b *BytesValue) String() string {
	if b.val == nil {
		return IBytes(0)
	}
	return IBytes(*b.val)
}
