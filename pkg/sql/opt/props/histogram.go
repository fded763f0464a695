// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package props

import (
	"bytes"
	"fmt"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/relcore/pkg/sql/opt"
	"github.com/cockroachdb/relcore/pkg/sql/opt/cat"
	"github.com/cockroachdb/relcore/pkg/sql/sem/tree"
	"github.com/cockroachdb/relcore/pkg/sql/types"
	"github.com/olekukonko/tablewriter"
)

// Histogram captures the distribution of values for a particular column
// within a relational expression.
// Histograms are immutable.
type Histogram struct {
	col     opt.ColumnID
	buckets []cat.HistogramBucket
}

func (h *Histogram) String() string {
	w := histogramWriter{}
	w.init(h.buckets)
	var buf bytes.Buffer
	w.write(&buf)
	return buf.String()
}

// Init initializes the histogram with data from the catalog.
func (h *Histogram) Init(col opt.ColumnID, buckets []cat.HistogramBucket) {
	h.col = col
	h.buckets = buckets
}

// Col returns the column described by the histogram.
func (h *Histogram) Col() opt.ColumnID { return h.col }

// BucketCount returns the number of buckets in the histogram.
func (h *Histogram) BucketCount() int {
	return len(h.buckets)
}

// Bucket returns a pointer to the ith bucket in the histogram.
// i must be greater than or equal to 0 and less than BucketCount.
func (h *Histogram) Bucket(i int) *cat.HistogramBucket {
	return &h.buckets[i]
}

// ValuesCount returns the total number of values in the histogram.
func (h *Histogram) ValuesCount() float64 {
	var count float64
	for i := range h.buckets {
		count += h.buckets[i].NumRange
		count += h.buckets[i].NumEq
	}
	return count
}

// DistinctValuesCount returns the estimated number of distinct values in the
// histogram.
func (h *Histogram) DistinctValuesCount() float64 {
	var count float64
	for i := range h.buckets {
		b := &h.buckets[i]
		count += b.DistinctRange
		if b.NumEq > 1 {
			count++
		} else {
			count += b.NumEq
		}
	}
	if maxCount := h.maxDistinctValuesCount(); maxCount < count {
		count = maxCount
	}
	return count
}

// maxDistinctValuesCount estimates the maximum number of distinct values in
// the histogram.
func (h *Histogram) maxDistinctValuesCount() float64 {
	if len(h.buckets) == 0 {
		return 0
	}

	// The first bucket always has a zero value for NumRange, so the lower bound
	// of the histogram is the upper bound of the first bucket.
	if h.Bucket(0).NumRange != 0 {
		panic(errors.AssertionFailedf("the first bucket should have NumRange=0"))
	}
	lowerBound := h.Bucket(0).UpperBound

	var count float64
	for i := range h.buckets {
		b := &h.buckets[i]
		rng, ok := maxDistinctValuesInRange(lowerBound, b.UpperBound)

		if ok && b.NumRange > rng {
			count += rng
		} else {
			count += b.NumRange
		}

		if b.NumEq > 1 {
			count++
		} else {
			count += b.NumEq
		}
		lowerBound = getNextLowerBound(b.UpperBound)
	}
	return count
}

// maxDistinctValuesInRange returns the maximum number of distinct values in
// the range [lowerBound, upperBound). It returns ok=false when it is not
// possible to determine a finite value (which is the case for all types other
// than integers).
func maxDistinctValuesInRange(lowerBound, upperBound tree.Datum) (_ float64, ok bool) {
	lower, lok := lowerBound.(*tree.DInt)
	upper, uok := upperBound.(*tree.DInt)
	if !lok || !uok {
		return 0, false
	}
	return float64(*upper) - float64(*lower), true
}

func getNextLowerBound(currentUpperBound tree.Datum) tree.Datum {
	if i, ok := currentUpperBound.(*tree.DInt); ok && *i < tree.DInt(1<<62) {
		return tree.NewDInt(*i + 1)
	}
	return currentUpperBound
}

// EqualsFraction estimates the fraction of values in the histogram that are
// equal to d.
func (h *Histogram) EqualsFraction(d tree.Datum) float64 {
	total := h.ValuesCount()
	if total == 0 || d == tree.DNull {
		return 0
	}
	var lowerBound tree.Datum
	for i := range h.buckets {
		b := &h.buckets[i]
		c := d.Compare(b.UpperBound)
		switch {
		case c == 0:
			return b.NumEq / total
		case c < 0:
			if lowerBound == nil || d.Compare(lowerBound) <= 0 || b.DistinctRange == 0 {
				return 0
			}
			return b.NumRange / b.DistinctRange / total
		}
		lowerBound = b.UpperBound
	}
	return 0
}

// LessThanFraction estimates the fraction of values in the histogram that
// are less than d (or less than or equal, if inclusive is set). Within a
// bucket, numeric values are interpolated linearly; other types are assumed
// to fall in the middle of the bucket.
func (h *Histogram) LessThanFraction(d tree.Datum, inclusive bool) float64 {
	total := h.ValuesCount()
	if total == 0 || d == tree.DNull {
		return 0
	}
	var count float64
	var lowerBound tree.Datum
	for i := range h.buckets {
		b := &h.buckets[i]
		c := d.Compare(b.UpperBound)
		if c > 0 {
			count += b.NumRange + b.NumEq
			lowerBound = b.UpperBound
			continue
		}
		if c == 0 {
			count += b.NumRange
			if inclusive {
				count += b.NumEq
			}
			break
		}
		if lowerBound != nil && d.Compare(lowerBound) > 0 {
			count += b.NumRange * rangeFraction(lowerBound, b.UpperBound, d)
		}
		break
	}
	return count / total
}

// rangeFraction returns the position of d within (lower, upper) as a number
// between 0 and 1.
func rangeFraction(lower, upper, d tree.Datum) float64 {
	l, lok := toFloat(lower)
	u, uok := toFloat(upper)
	v, vok := toFloat(d)
	if !lok || !uok || !vok || u <= l {
		return 0.5
	}
	f := (v - l) / (u - l)
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}

func toFloat(d tree.Datum) (float64, bool) {
	if !d.ResolvedType().IsNumeric() {
		return 0, false
	}
	f, err := tree.PerformCast(d, types.Float)
	if err != nil {
		return 0, false
	}
	return float64(*f.(*tree.DFloat)), true
}

// ApplySelectivity reduces the size of each histogram bucket according to
// the given selectivity, and returns a new histogram with the results.
func (h *Histogram) ApplySelectivity(selectivity float64) *Histogram {
	res := &Histogram{col: h.col, buckets: make([]cat.HistogramBucket, len(h.buckets))}
	for i, b := range h.buckets {
		b.NumEq *= selectivity
		b.NumRange *= selectivity
		// Each distinct value in the range survives with the given
		// probability, provided the range keeps enough rows.
		if b.DistinctRange > b.NumRange {
			b.DistinctRange = b.NumRange
		}
		res.buckets[i] = b
	}
	return res
}

// histogramWriter prints histograms with the following formatting:
//
//	NumRange1    NumEq1     NumRange2    NumEq2    ....
//
// <----------- UpperBound1 ----------- UpperBound2 ....
//
// For example:
//
//	0  1  90  10   0  20
//
// <--- 0 ---- 100 --- 200
//
// This describes a histogram with 3 buckets. The first bucket contains 1 value
// equal to 0. The second bucket contains 90 values between 0 and 100 and
// 10 values equal to 100. Finally, the third bucket contains 20 values equal
// to 200.
type histogramWriter struct {
	cells     [][]string
	colWidths []int
}

const (
	// These constants describe the two rows that are printed.
	counts = iota
	boundaries
)

func (w *histogramWriter) init(buckets []cat.HistogramBucket) {
	w.cells = [][]string{
		make([]string, len(buckets)*2),
		make([]string, len(buckets)*2),
	}
	w.colWidths = make([]int, len(buckets)*2)

	for i, b := range buckets {
		w.cells[counts][i*2] = fmt.Sprintf(" %.5g ", b.NumRange)
		w.cells[counts][i*2+1] = fmt.Sprintf("%.5g", b.NumEq)
		w.cells[boundaries][i*2+1] = fmt.Sprintf(" %s ", b.UpperBound.String())
		if width := tablewriter.DisplayWidth(w.cells[counts][i*2]); width > w.colWidths[i*2] {
			w.colWidths[i*2] = width
		}
		if width := tablewriter.DisplayWidth(w.cells[counts][i*2+1]); width > w.colWidths[i*2+1] {
			w.colWidths[i*2+1] = width
		}
		if width := tablewriter.DisplayWidth(w.cells[boundaries][i*2+1]); width > w.colWidths[i*2+1] {
			w.colWidths[i*2+1] = width
		}
	}
}

func (w *histogramWriter) write(out io.Writer) {
	if len(w.cells[counts]) == 0 {
		return
	}

	// Print a space to match up with the "<" character below.
	fmt.Fprint(out, " ")
	for i := range w.cells[counts] {
		fmt.Fprintf(out, "%s", tablewriter.Pad(w.cells[counts][i], " ", w.colWidths[i]))
	}
	fmt.Fprint(out, "\n")
	fmt.Fprint(out, "<")
	for i := range w.cells[boundaries] {
		fmt.Fprintf(out, "%s", tablewriter.Pad(w.cells[boundaries][i], "-", w.colWidths[i]))
	}
}
