// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package rowcontainer

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"math/rand"
	"sort"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/relcore/pkg/util/mon"
	"github.com/stretchr/testify/require"
)

func newAccount(limit int64) *mon.BoundAccount {
	acc := mon.NewMonitor("test", limit, nil).MakeBoundAccount()
	return &acc
}

func TestBytesHashMap(t *testing.T) {
	ctx := context.Background()
	acc := newAccount(0)
	m := NewBytesHashMap(acc, 256)
	defer m.Close(ctx)

	rng := rand.New(rand.NewSource(42))
	want := make(map[string]uint64)
	for i := 0; i < 5000; i++ {
		key := []byte(fmt.Sprintf("key-%d", rng.Intn(800)))
		val, inserted, err := m.LookupOrInsert(ctx, key, make([]byte, 8))
		require.NoError(t, err)
		_, existed := want[string(key)]
		require.Equal(t, !existed, inserted)
		// Values are updated in place.
		binary.LittleEndian.PutUint64(val, binary.LittleEndian.Uint64(val)+1)
		want[string(key)]++
	}
	require.Equal(t, len(want), m.Len())
	require.Equal(t, acc.Used(), m.MemoryUsage())

	for k, n := range want {
		val, ok := m.Lookup([]byte(k))
		require.True(t, ok, k)
		require.Equal(t, n, binary.LittleEndian.Uint64(val), k)
	}
	_, ok := m.Lookup([]byte("missing"))
	require.False(t, ok)

	var count int
	require.NoError(t, m.ForEach(func(key, val []byte) error {
		require.Equal(t, want[string(key)], binary.LittleEndian.Uint64(val))
		count++
		return nil
	}))
	require.Equal(t, len(want), count)

	keys := make([]string, 0, len(want))
	for k := range want {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	it := m.Sorted()
	for _, k := range keys {
		ok, err := it.Next(ctx)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, k, string(it.Key()))
	}
	ok, err := it.Next(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	m.Reset(ctx)
	require.Zero(t, m.Len())
	require.Zero(t, acc.Used())
}

func TestBytesHashMapEmptyKeysAndLargeRecords(t *testing.T) {
	ctx := context.Background()
	m := NewBytesHashMap(newAccount(0), 64)
	defer m.Close(ctx)

	_, inserted, err := m.LookupOrInsert(ctx, nil, nil)
	require.NoError(t, err)
	require.True(t, inserted)
	big := bytes.Repeat([]byte("x"), 1000)
	val, inserted, err := m.LookupOrInsert(ctx, big, []byte("v"))
	require.NoError(t, err)
	require.True(t, inserted)
	require.Equal(t, "v", string(val))

	var keys [][]byte
	require.NoError(t, m.ForEach(func(key, _ []byte) error {
		keys = append(keys, key)
		return nil
	}))
	require.Equal(t, [][]byte{{}, big}, keys)
}

// When a page cannot be allocated, the map is left unchanged and keeps
// serving lookups.
func TestBytesHashMapBudgetExceeded(t *testing.T) {
	ctx := context.Background()
	acc := newAccount(4096)
	m := NewBytesHashMap(acc, 512)
	defer m.Close(ctx)

	var n int
	var err error
	for ; ; n++ {
		key := []byte(fmt.Sprintf("%08d", n))
		if _, _, err = m.LookupOrInsert(ctx, key, make([]byte, 16)); err != nil {
			break
		}
	}
	require.True(t, errors.Is(err, mon.ErrBudgetExceeded), "%v", err)
	require.Equal(t, n, m.Len())
	require.LessOrEqual(t, acc.Used(), int64(4096))
	for i := 0; i < n; i++ {
		_, ok := m.Lookup([]byte(fmt.Sprintf("%08d", i)))
		require.True(t, ok)
	}

	// Existing keys are still found without allocating.
	_, inserted, err := m.LookupOrInsert(ctx, []byte(fmt.Sprintf("%08d", 0)), make([]byte, 16))
	require.NoError(t, err)
	require.False(t, inserted)

	m.Reset(ctx)
	_, inserted, err = m.LookupOrInsert(ctx, []byte(fmt.Sprintf("%08d", n)), make([]byte, 16))
	require.NoError(t, err)
	require.True(t, inserted)
}

func TestObjectHashMap(t *testing.T) {
	ctx := context.Background()
	acc := newAccount(1000)
	m := NewObjectHashMap(acc)

	for _, k := range []string{"b", "c", "a"} {
		_, ok := m.Lookup([]byte(k))
		require.False(t, ok)
		require.NoError(t, m.Insert(ctx, []byte(k), "val-"+k, 10))
	}
	v, ok := m.Lookup([]byte("c"))
	require.True(t, ok)
	require.Equal(t, "val-c", v)
	require.Equal(t, int64(3*(1+10+objectEntryOverhead)), acc.Used())

	err := m.GrowValue(ctx, 1000)
	require.True(t, errors.Is(err, mon.ErrBudgetExceeded))

	var keys []string
	require.NoError(t, m.ForEachSorted(func(key []byte, val interface{}) error {
		keys = append(keys, string(key))
		require.Equal(t, "val-"+string(key), val)
		return nil
	}))
	require.Equal(t, []string{"a", "b", "c"}, keys)

	m.Reset(ctx)
	require.Zero(t, m.Len())
	require.Zero(t, acc.Used())
}
