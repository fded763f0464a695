// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package stats

import (
	"math"
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/relcore/pkg/sql/opt/cat"
	"github.com/cockroachdb/relcore/pkg/sql/sem/tree"
)

// EquiDepthHistogram creates a histogram where each bucket contains roughly
// the same number of samples (though it can vary when a boundary value has
// high frequency). The samples must not contain NULL values.
//
// numRows is the total number of rows from which the samples were taken;
// bucket counts are scaled accordingly. distinctCount is the estimated
// number of distinct non-NULL values, and is used to adjust the distinct
// counts of the bucket ranges.
func EquiDepthHistogram(
	samples tree.Datums, numRows int64, distinctCount float64, maxBuckets int,
) ([]cat.HistogramBucket, error) {
	h, err := equiDepthHistogramWithoutAdjustment(samples, numRows, maxBuckets)
	if err != nil {
		return nil, err
	}
	h.adjustCounts(float64(numRows), distinctCount)
	return h.buckets, nil
}

// histogram is a list of buckets. We use nil buckets for error cases, and
// non-nil zero-length buckets for histograms on empty tables.
type histogram struct {
	buckets []cat.HistogramBucket
}

func equiDepthHistogramWithoutAdjustment(
	samples tree.Datums, numRows int64, maxBuckets int,
) (histogram, error) {
	numSamples := len(samples)
	if maxBuckets < 2 {
		return histogram{}, errors.Errorf("histogram requires at least two buckets")
	}
	if numRows < int64(numSamples) {
		return histogram{}, errors.Errorf("more samples than rows")
	}
	if numSamples == 0 {
		return histogram{buckets: make([]cat.HistogramBucket, 0)}, nil
	}
	for _, d := range samples {
		if d == tree.DNull {
			return histogram{}, errors.Errorf("NULL values not allowed in histogram")
		}
	}

	var cmpErr error
	sort.SliceStable(samples, func(i, j int) bool {
		c, err := tree.CompareError(samples[i], samples[j])
		if err != nil {
			cmpErr = err
		}
		return c < 0
	})
	if cmpErr != nil {
		return histogram{}, cmpErr
	}
	numBuckets := maxBuckets
	if maxBuckets > numSamples {
		numBuckets = numSamples
	}
	h := histogram{buckets: make([]cat.HistogramBucket, 0, numBuckets)}
	lowerBound := samples[0]

	// i keeps track of the current sample and advances as we form buckets.
	for i, b := 0, 0; b < numBuckets && i < numSamples; b++ {
		// The first bucket has a single sample so the histogram has a clear
		// lower bound.
		numSamplesInBucket := (numSamples - i) / (numBuckets - b)
		if i == 0 || numSamplesInBucket < 1 {
			numSamplesInBucket = 1
		}
		upper := samples[i+numSamplesInBucket-1]
		// numLess is the number of samples less than upper (in this bucket).
		numLess := 0
		for ; numLess < numSamplesInBucket-1; numLess++ {
			c, err := tree.CompareError(samples[i+numLess], upper)
			if err != nil {
				return histogram{}, err
			}
			if c == 0 {
				break
			}
			if c > 0 {
				return histogram{}, errors.AssertionFailedf("samples not sorted")
			}
		}
		// Advance the boundary of the bucket to cover all samples equal to upper.
		for ; i+numSamplesInBucket < numSamples; numSamplesInBucket++ {
			if samples[i+numSamplesInBucket].Compare(upper) != 0 {
				break
			}
		}

		numEq := float64(numSamplesInBucket-numLess) * float64(numRows) / float64(numSamples)
		numRange := float64(numLess) * float64(numRows) / float64(numSamples)
		distinctRange := estimatedDistinctValuesInRange(numRange, lowerBound, upper)

		i += numSamplesInBucket
		h.buckets = append(h.buckets, cat.HistogramBucket{
			NumEq:         numEq,
			NumRange:      numRange,
			DistinctRange: distinctRange,
			UpperBound:    upper,
		})

		lowerBound = getNextLowerBound(upper)
	}

	return h, nil
}

// adjustCounts scales the buckets so they represent rowCountTotal rows and
// distinctCountTotal distinct values. Neither total includes NULLs.
func (h *histogram) adjustCounts(rowCountTotal, distinctCountTotal float64) {
	if rowCountTotal <= 0 || distinctCountTotal <= 0 {
		h.buckets = make([]cat.HistogramBucket, 0)
		return
	}

	var rowCountRange, rowCountEq, distinctCountRange, distinctCountEq float64
	for i := range h.buckets {
		rowCountRange += h.buckets[i].NumRange
		rowCountEq += h.buckets[i].NumEq
		distinctCountRange += h.buckets[i].DistinctRange
		if h.buckets[i].NumEq > 0 {
			distinctCountEq++
		}
	}
	if rowCountRange+rowCountEq <= 0 || distinctCountRange+distinctCountEq <= 0 {
		h.buckets = make([]cat.HistogramBucket, 0)
		return
	}

	// The upper bounds account for every distinct value, as is the case for
	// low-cardinality data.
	if distinctCountEq >= distinctCountTotal {
		adjustment := rowCountTotal / rowCountEq
		for i := range h.buckets {
			h.buckets[i].NumRange = 0
			h.buckets[i].DistinctRange = 0
			h.buckets[i].NumEq *= adjustment
		}
		return
	}

	// Spread the remaining distinct values over the ranges, capped by the
	// number of values each range can hold.
	remaining := distinctCountTotal - distinctCountEq
	if distinctCountRange > 0 {
		adjustment := remaining / distinctCountRange
		for i := range h.buckets {
			b := &h.buckets[i]
			b.DistinctRange *= adjustment
			if i > 0 {
				if maxDistinct, ok := maxDistinctRange(h.buckets[i-1].UpperBound, b.UpperBound); ok {
					b.DistinctRange = math.Min(b.DistinctRange, maxDistinct)
				}
			}
			b.DistinctRange = math.Min(b.DistinctRange, b.NumRange)
		}
	}

	adjustment := rowCountTotal / (rowCountRange + rowCountEq)
	for i := range h.buckets {
		h.buckets[i].NumRange *= adjustment
		h.buckets[i].NumEq *= adjustment
	}
}

// estimatedDistinctValuesInRange returns the estimated number of distinct
// values in the range [lowerBound, upperBound), given that it contains
// numRange rows.
func estimatedDistinctValuesInRange(numRange float64, lowerBound, upperBound tree.Datum) float64 {
	if numRange == 0 {
		return 0
	}
	lower, lok := lowerBound.(*tree.DInt)
	upper, uok := upperBound.(*tree.DInt)
	if lok && uok {
		return expectedDistinctCount(numRange, float64(*upper)-float64(*lower))
	}
	return numRange
}

func getNextLowerBound(currentUpperBound tree.Datum) tree.Datum {
	if i, ok := currentUpperBound.(*tree.DInt); ok && *i < math.MaxInt64 {
		return tree.NewDInt(*i + 1)
	}
	return currentUpperBound
}

// maxDistinctRange returns the maximum number of distinct values strictly
// between lowerBound and upperBound. Only integer ranges are countable.
func maxDistinctRange(lowerBound, upperBound tree.Datum) (_ float64, countable bool) {
	lower, lok := lowerBound.(*tree.DInt)
	upper, uok := upperBound.(*tree.DInt)
	if !lok || !uok {
		return math.MaxInt64, false
	}
	if n := float64(*upper) - float64(*lower) - 1; n > 0 {
		return n, true
	}
	return 0, true
}

// expectedDistinctCount returns the expected number of distinct values
// among k random selections from n possible values.
func expectedDistinctCount(k, n float64) float64 {
	if n == 0 || k == 0 {
		return 0
	}
	// The probability that a specific value does not appear in any of the k
	// selections is ((n-1)/n)^k, so the expected number of values that appear
	// at least once is n * (1 - ((n-1)/n)^k).
	count := n * (1 - math.Pow((n-1)/n, k))

	// Precision loss for very large n can produce 0.
	if count == 0 {
		count = math.Min(n, k)
	}
	return count
}
