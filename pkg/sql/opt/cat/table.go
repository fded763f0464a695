// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package cat contains the narrow interfaces through which the engine sees
// the catalog: base tables, their columns, their partitioned data and their
// optional statistics.
package cat

import (
	"context"

	"github.com/cockroachdb/relcore/pkg/sql/sem/tree"
	"github.com/cockroachdb/relcore/pkg/sql/types"
)

// Column describes a single column of a table.
type Column struct {
	Name     string
	Type     *types.T
	Nullable bool
}

// Table is a base table whose rows are split into partitions.
type Table interface {
	// Name returns the unqualified name of the table.
	Name() string

	// ColumnCount returns the number of columns in the table.
	ColumnCount() int

	// Column returns the ith column of the table.
	Column(i int) Column

	// Statistics returns the table's statistics, or nil if the table has
	// never been analyzed. Absence is legal and degrades estimation to
	// defaults.
	Statistics() *TableStatistic

	// PartitionCount returns the number of data partitions.
	PartitionCount() int

	// NewReader returns a reader over the rows of one partition.
	NewReader(ctx context.Context, partition int) (RowReader, error)
}

// RowReader reads rows from a data source.
type RowReader interface {
	// Next returns the next row, or nil once the source is exhausted. The
	// returned row must not be modified.
	Next(ctx context.Context) (tree.Datums, error)
	Close(ctx context.Context)
}

// TableStatistic holds the statistics of a table.
type TableStatistic struct {
	// RowCount is the number of rows in the table.
	RowCount float64

	// SizeBytes is the total size of the table's data, or zero if it is
	// unknown and must be derived from the row count.
	SizeBytes float64

	// Columns holds per-column statistics, indexed by column ordinal. A nil
	// entry means the column was not analyzed.
	Columns []*ColumnStatistic
}

// ColumnStatistic holds the statistics of a single column.
type ColumnStatistic struct {
	DistinctCount float64
	NullCount     float64
	// Min and Max are nil when unknown.
	Min, Max tree.Datum
	// Histogram is nil when the column has no histogram.
	Histogram []HistogramBucket
}

// HistogramBucket contains the data for a single histogram bucket. Note
// that NumEq, NumRange, and DistinctRange are floats so the statistics
// builder can scale them as rows are filtered.
type HistogramBucket struct {
	// NumEq is the estimated number of values equal to UpperBound.
	NumEq float64

	// NumRange is the estimated number of values between the upper bound of
	// the previous bucket and UpperBound (both boundaries are exclusive).
	// The first bucket should always have NumRange=0.
	NumRange float64

	// DistinctRange is the estimated number of distinct values between the
	// upper bound of the previous bucket and UpperBound (both boundaries are
	// exclusive).
	DistinctRange float64

	// UpperBound is the upper bound of the bucket.
	UpperBound tree.Datum
}

// Catalog resolves table names.
type Catalog interface {
	// ResolveTable returns the table with the given name.
	ResolveTable(name string) (Table, error)
}
