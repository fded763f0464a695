// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package util

import (
	"fmt"
	"math/rand"
	"reflect"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFastIntSet(t *testing.T) {
	for _, mVal := range []int{1, 8, 30, smallCutoff, 2 * smallCutoff, 4 * smallCutoff} {
		m := mVal
		t.Run(fmt.Sprintf("%d", m), func(t *testing.T) {
			rng := rand.New(rand.NewSource(int64(m)))
			in := make([]bool, m)

			var s FastIntSet
			for i := 0; i < 1000; i++ {
				v := rng.Intn(m)
				if rng.Intn(2) == 0 {
					in[v] = true
					s.Add(v)
				} else {
					in[v] = false
					s.Remove(v)
				}
				empty := true
				var expected []int
				for j := 0; j < m; j++ {
					empty = empty && !in[j]
					require.Equal(t, in[j], s.Contains(j), "Contains(%d)", j)
					if in[j] {
						expected = append(expected, j)
					}
				}
				require.Equal(t, empty, s.Empty())
				require.Equal(t, len(expected), s.Len())

				var forEach []int
				s.ForEach(func(j int) { forEach = append(forEach, j) })
				if !reflect.DeepEqual(expected, forEach) {
					t.Fatalf("ForEach returned %v, expected %v", forEach, expected)
				}
				if !reflect.DeepEqual(expected, s.Ordered()) {
					t.Fatalf("Ordered returned %v, expected %v", s.Ordered(), expected)
				}

				// Next must visit the same elements as ForEach.
				var next []int
				for j, ok := s.Next(0); ok; j, ok = s.Next(j + 1) {
					next = append(next, j)
				}
				require.Equal(t, expected, next)

				s2 := s.Copy()
				require.True(t, s.Equals(s2))
				s2.Add(m + 1)
				require.False(t, s.Equals(s2))
				require.True(t, s.SubsetOf(s2))
				require.False(t, s2.SubsetOf(s))
			}
		})
	}
}

func TestFastIntSetTwoSetOps(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	// genSet creates a set of numElem values in [minVal, minVal + valRange)
	// It also adds and then removes numRemoved elements.
	genSet := func(numElem, numRemoved, minVal, valRange int) (FastIntSet, map[int]bool) {
		var s FastIntSet
		vals := rng.Perm(valRange)[:numElem+numRemoved]
		used := make(map[int]bool, len(vals))
		for _, i := range vals {
			used[i] = true
		}
		in := make(map[int]bool, numElem)
		for _, i := range vals[:numElem] {
			s.Add(minVal + i)
			in[minVal+i] = true
		}
		for _, i := range vals[numElem:] {
			s.Add(minVal + i)
			s.Remove(minVal + i)
		}
		return s, in
	}

	const iters = 200
	for i := 0; i < iters; i++ {
		n1, n2 := rng.Intn(40), rng.Intn(40)
		s1, in1 := genSet(n1, rng.Intn(10), rng.Intn(100), n1+100)
		s2, in2 := genSet(n2, rng.Intn(10), rng.Intn(100), n2+100)

		union := s1.Union(s2)
		intersection := s1.Intersection(s2)
		difference := s1.Difference(s2)
		for v := 0; v < 400; v++ {
			require.Equal(t, in1[v] || in2[v], union.Contains(v))
			require.Equal(t, in1[v] && in2[v], intersection.Contains(v))
			require.Equal(t, in1[v] && !in2[v], difference.Contains(v))
		}
		require.Equal(t, !intersection.Empty(), s1.Intersects(s2))
		require.True(t, intersection.SubsetOf(s1))
		require.True(t, s1.SubsetOf(union))
	}
}

func TestFastIntSetString(t *testing.T) {
	testCases := []struct {
		vals []int
		exp  string
	}{
		{vals: nil, exp: "()"},
		{vals: []int{1}, exp: "(1)"},
		{vals: []int{1, 2}, exp: "(1,2)"},
		{vals: []int{1, 2, 3, 5, 6, 10}, exp: "(1-3,5,6,10)"},
		{vals: []int{0, 63, 64, 65, 200}, exp: "(0,63-65,200)"},
	}
	for _, tc := range testCases {
		require.Equal(t, tc.exp, MakeFastIntSet(tc.vals...).String())
	}
}
