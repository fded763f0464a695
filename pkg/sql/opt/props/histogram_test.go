// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package props

import (
	"math"
	"testing"

	"github.com/cockroachdb/relcore/pkg/sql/opt"
	"github.com/cockroachdb/relcore/pkg/sql/opt/cat"
	"github.com/cockroachdb/relcore/pkg/sql/sem/tree"
	"github.com/stretchr/testify/require"
)

func makeTestHistogram() *Histogram {
	//   0  1  3  3   4  5   0  0   40  35
	// <--- 1 --- 10 --- 25 --- 30 ---- 42
	histData := []cat.HistogramBucket{
		{NumRange: 0, DistinctRange: 0, NumEq: 1, UpperBound: tree.NewDInt(1)},
		{NumRange: 3, DistinctRange: 2, NumEq: 3, UpperBound: tree.NewDInt(10)},
		{NumRange: 4, DistinctRange: 2, NumEq: 5, UpperBound: tree.NewDInt(25)},
		{NumRange: 0, DistinctRange: 0, NumEq: 0, UpperBound: tree.NewDInt(30)},
		{NumRange: 40, DistinctRange: 7, NumEq: 35, UpperBound: tree.NewDInt(42)},
	}
	h := &Histogram{}
	h.Init(opt.ColumnID(1), histData)
	return h
}

func TestHistogram(t *testing.T) {
	h := makeTestHistogram()
	require.Equal(t, float64(91), h.ValuesCount())
	require.Equal(t, float64(22), h.maxDistinctValuesCount())
	require.Equal(t, float64(15), h.DistinctValuesCount())
	require.Equal(t, 5, h.BucketCount())

	expected := "  0  1  3  3   4  5   0  0   40  35 \n<--- 1 --- 10 --- 25 --- 30 ---- 42 "
	require.Equal(t, expected, h.String())
}

func TestHistogramFractions(t *testing.T) {
	h := makeTestHistogram()
	approx := func(expected, actual float64) {
		t.Helper()
		require.True(t, math.Abs(expected-actual) < 1e-9, "expected %f, got %f", expected, actual)
	}

	approx(5.0/91, h.EqualsFraction(tree.NewDInt(25)))
	// 15 is inside (10, 25): 4 rows spread over 2 distinct values.
	approx(2.0/91, h.EqualsFraction(tree.NewDInt(15)))
	approx(0, h.EqualsFraction(tree.NewDInt(0)))
	approx(0, h.EqualsFraction(tree.NewDInt(100)))

	approx(0, h.LessThanFraction(tree.NewDInt(1), false))
	approx(1.0/91, h.LessThanFraction(tree.NewDInt(1), true))
	approx(7.0/91, h.LessThanFraction(tree.NewDInt(10), true))
	approx(1, h.LessThanFraction(tree.NewDInt(50), false))
	// 36 is halfway between 30 and 42.
	approx((16+20)/91.0, h.LessThanFraction(tree.NewDInt(36), false))

	half := h.ApplySelectivity(0.5)
	approx(45.5, half.ValuesCount())
	require.Equal(t, float64(91), h.ValuesCount())
}
