// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package props contains the logical properties derived for relational
// expressions, chiefly the estimated statistics consumed by cost-based
// decisions.
package props

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/cockroachdb/relcore/pkg/sql/opt"
	"github.com/cockroachdb/relcore/pkg/sql/sem/tree"
	"github.com/cockroachdb/relcore/pkg/util/optional"
	"github.com/dustin/go-humanize"
)

// UnknownSizeBytes is the size assumed for an expression whose size cannot
// be estimated. It is large enough that no threshold comparison treats such
// an expression as small.
const UnknownSizeBytes = float64(math.MaxInt64)

// Statistics is a collection of measurable statistics about the rows
// produced by a relational expression.
type Statistics struct {
	// RowCount is the estimated number of rows returned by the expression.
	// An unknown row count means callers must assume the worst case.
	RowCount optional.Float

	// SizeBytes is the estimated size of the rows returned by the
	// expression. It is always present; when it cannot be derived it is
	// UnknownSizeBytes.
	SizeBytes float64

	// ColStats holds statistics of individual output columns. A column
	// without an entry has entirely unknown statistics.
	ColStats map[opt.ColumnID]*ColumnStatistic
}

// ColumnStatistic is a collection of statistics that applies to a
// particular column.
type ColumnStatistic struct {
	// DistinctCount is the estimated number of distinct values of the
	// column, including NULL as one value.
	DistinctCount optional.Float

	// NullCount is the estimated number of NULL values of the column.
	NullCount optional.Float

	// Min and Max bound the non-NULL values of the column; nil if unknown.
	Min, Max tree.Datum

	// Histogram is nil if the column has no histogram.
	Histogram *Histogram
}

// ColStat returns the statistics of the given column, or nil.
func (s *Statistics) ColStat(col opt.ColumnID) *ColumnStatistic {
	if s.ColStats == nil {
		return nil
	}
	return s.ColStats[col]
}

// EnsureColStat returns the statistics of the given column, creating an
// empty entry if there is none.
func (s *Statistics) EnsureColStat(col opt.ColumnID) *ColumnStatistic {
	if s.ColStats == nil {
		s.ColStats = make(map[opt.ColumnID]*ColumnStatistic)
	}
	cs, ok := s.ColStats[col]
	if !ok {
		cs = &ColumnStatistic{}
		s.ColStats[col] = cs
	}
	return cs
}

// SizeKnown returns true if the size was derived from known quantities.
func (s *Statistics) SizeKnown() bool {
	return s.SizeBytes < UnknownSizeBytes
}

// Copy returns a copy of the column statistic.
func (c *ColumnStatistic) Copy() *ColumnStatistic {
	r := *c
	return &r
}

func (s *Statistics) String() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "rows=%s", s.RowCount)
	if s.SizeKnown() {
		fmt.Fprintf(&buf, ", size=%s", humanize.IBytes(uint64(s.SizeBytes)))
	} else {
		buf.WriteString(", size=unknown")
	}
	cols := make([]opt.ColumnID, 0, len(s.ColStats))
	for c := range s.ColStats {
		cols = append(cols, c)
	}
	sort.Slice(cols, func(i, j int) bool { return cols[i] < cols[j] })
	for _, c := range cols {
		cs := s.ColStats[c]
		fmt.Fprintf(&buf, ", distinct(%d)=%s", c, cs.DistinctCount)
		if cs.NullCount.Known() {
			fmt.Fprintf(&buf, ", null(%d)=%s", c, cs.NullCount)
		}
		if cs.Min != nil && cs.Max != nil {
			fmt.Fprintf(&buf, ", range(%d)=[%s, %s]", c, cs.Min, cs.Max)
		}
	}
	return buf.String()
}
