// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package keyside contains low-level primitives used to encode/decode SQL
// values into/from order-preserving keys. The keys of grouping columns are
// compared bytewise by the hash tables and the external sorter, so the
// encoding of a row of datums sorts the same way as the datums themselves.
//
// Each value is preceded by a NULL marker. Values encoded in descending
// direction have every byte of their encoding, marker included, inverted,
// which places NULLs last.
package keyside
