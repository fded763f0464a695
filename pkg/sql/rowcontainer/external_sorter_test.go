// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package rowcontainer

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"testing"

	"github.com/cockroachdb/pebble/vfs"
	"github.com/marusama/semaphore"
	"github.com/stretchr/testify/require"
)

type kv struct{ k, v string }

func drain(t *testing.T, it KVIterator) []kv {
	ctx := context.Background()
	var res []kv
	for {
		ok, err := it.Next(ctx)
		require.NoError(t, err)
		if !ok {
			break
		}
		res = append(res, kv{string(it.Key()), string(it.Value())})
	}
	require.NoError(t, it.Close())
	return res
}

func TestExternalSorter(t *testing.T) {
	ctx := context.Background()
	for _, limit := range []int64{0, 4 << 10} {
		t.Run(fmt.Sprintf("limit=%d", limit), func(t *testing.T) {
			fs := vfs.NewMem()
			sem := semaphore.New(1)
			acc := newAccount(limit)
			s := NewExternalSorter(fs, "spill", acc, sem)

			rng := rand.New(rand.NewSource(7))
			var want []kv
			for i := 0; i < 1000; i++ {
				r := kv{fmt.Sprintf("k%04d", rng.Intn(300)), fmt.Sprintf("v%d", i)}
				want = append(want, r)
				require.NoError(t, s.Add(ctx, []byte(r.k), []byte(r.v)))
			}
			// Records with equal keys stay in insertion order.
			sort.SliceStable(want, func(i, j int) bool { return want[i].k < want[j].k })

			if limit == 0 {
				require.Zero(t, s.NumRuns())
			} else {
				require.Greater(t, s.NumRuns(), 1)
				require.Greater(t, s.SpilledBytes(), int64(0))
				require.LessOrEqual(t, acc.Used(), limit)
			}
			it, err := s.NewIterator(ctx)
			require.NoError(t, err)
			require.Equal(t, want, drain(t, it))

			spilled := s.NumRuns() > 0
			require.NoError(t, s.Close(ctx))
			require.Zero(t, acc.Used())
			require.Zero(t, sem.GetCount())
			if spilled {
				files, err := fs.List("spill")
				require.NoError(t, err)
				require.Empty(t, files)
			}
		})
	}
}

func TestExternalSorterWriteSortedRun(t *testing.T) {
	ctx := context.Background()
	fs := vfs.NewMem()
	s := NewExternalSorter(fs, "spill", newAccount(0), nil)
	defer func() { require.NoError(t, s.Close(ctx)) }()

	m := NewBytesHashMap(newAccount(0), 128)
	defer m.Close(ctx)
	for _, k := range []string{"d", "b", "a"} {
		_, _, err := m.LookupOrInsert(ctx, []byte(k), []byte("1"))
		require.NoError(t, err)
	}
	require.NoError(t, s.WriteSortedRun(ctx, m.Sorted()))
	m.Reset(ctx)
	for _, k := range []string{"c", "a"} {
		_, _, err := m.LookupOrInsert(ctx, []byte(k), []byte("2"))
		require.NoError(t, err)
	}
	require.NoError(t, s.WriteSortedRun(ctx, m.Sorted()))
	require.NoError(t, s.Add(ctx, []byte("b"), []byte("3")))
	require.Equal(t, 2, s.NumRuns())

	it, err := s.NewIterator(ctx)
	require.NoError(t, err)
	require.Equal(t, []kv{
		{"a", "1"}, {"a", "2"}, {"b", "1"}, {"b", "3"}, {"c", "2"}, {"d", "1"},
	}, drain(t, it))
}

func TestExternalSorterDiskError(t *testing.T) {
	ctx := context.Background()
	fs := vfs.NewMem()
	// A regular file where the spill directory should be.
	f, err := fs.Create("spill", vfs.WriteCategoryUnspecified)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	s := NewExternalSorter(fs, "spill", newAccount(0), nil)
	require.NoError(t, s.Add(ctx, []byte("a"), nil))
	err = s.Spill(ctx)
	require.Error(t, err)
	require.Contains(t, err.Error(), "spilling sorted run")
}
