// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package querycache

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/cockroachdb/relcore/pkg/sql/opt"
	"github.com/cockroachdb/relcore/pkg/sql/opt/memo"
	"github.com/cockroachdb/relcore/pkg/sql/opt/optbuilder"
	"github.com/cockroachdb/relcore/pkg/sql/opt/testutils/testcat"
	"github.com/cockroachdb/relcore/pkg/sql/physicalplan"
	"github.com/stretchr/testify/require"
)

const tables = `
- name: t
  columns: [{name: a, type: int}, {name: b, type: string}]
  rows: [[1, x], [2, y]]
`

type testBuilder struct {
	t       *testing.T
	catalog *testcat.Catalog
	md      *opt.Metadata
}

func newTestBuilder(t *testing.T) *testBuilder {
	catalog := testcat.New()
	require.NoError(t, catalog.LoadYAML([]byte(tables)))
	return &testBuilder{t: t, catalog: catalog, md: &opt.Metadata{}}
}

// build builds a query that filters t on a > n. Every call allocates new
// column ids.
func (tb *testBuilder) build(n int) memo.RelExpr {
	q, err := optbuilder.ParseQuery([]byte(fmt.Sprintf(`
filter: {input: {scan: t}, cond: [">", a, %d]}
`, n)))
	require.NoError(tb.t, err)
	e, err := optbuilder.New(tb.md, tb.catalog).Build(q)
	require.NoError(tb.t, err)
	return e
}

func (tb *testBuilder) plan(e memo.RelExpr) *physicalplan.Plan {
	p, err := physicalplan.New(tb.md, physicalplan.DefaultConfig()).Plan(context.Background(), e)
	require.NoError(tb.t, err)
	return p
}

func TestCacheFind(t *testing.T) {
	tb := newTestBuilder(t)
	metrics := MakeMetrics()
	c := New(4, &metrics)

	e := tb.build(1)
	_, ok := c.Find(e)
	require.False(t, ok)

	p := tb.plan(e)
	c.Add(e, p)
	require.Equal(t, 1, c.Len())

	// The same query with different column ids has the same canonical form.
	again := tb.build(1)
	require.NotEqual(t, e.OutputCols(), again.OutputCols())
	found, ok := c.Find(again)
	require.True(t, ok)
	require.Same(t, p, found)

	_, ok = c.Find(tb.build(2))
	require.False(t, ok)

	require.Equal(t, int64(1), metrics.Hits.Count())
	require.Equal(t, int64(2), metrics.Misses.Count())

	c.Clear()
	require.Zero(t, c.Len())
	_, ok = c.Find(e)
	require.False(t, ok)
}

func TestCacheCollision(t *testing.T) {
	c := New(4, nil)
	p := &physicalplan.Plan{}
	c.AddKey(1, "a", p)
	_, ok := c.FindKey(1, "b")
	require.False(t, ok)
	found, ok := c.FindKey(1, "a")
	require.True(t, ok)
	require.Same(t, p, found)

	// A plan with the same fingerprint replaces the previous one.
	c.AddKey(1, "b", p)
	require.Equal(t, 1, c.Len())
	_, ok = c.FindKey(1, "a")
	require.False(t, ok)
}

func TestCacheEviction(t *testing.T) {
	metrics := MakeMetrics()
	c := New(2, &metrics)
	plans := make([]*physicalplan.Plan, 3)
	for i := range plans {
		plans[i] = &physicalplan.Plan{}
	}
	key := func(i int) (uint64, string) { return uint64(i), fmt.Sprint(i) }

	c.AddKey(uint64(0), "0", plans[0])
	c.AddKey(uint64(1), "1", plans[1])
	// Use plan 0 so that plan 1 is the least recently used.
	_, ok := c.FindKey(key(0))
	require.True(t, ok)

	c.AddKey(uint64(2), "2", plans[2])
	require.Equal(t, 2, c.Len())
	require.Equal(t, int64(1), metrics.Evictions.Count())

	_, ok = c.FindKey(key(1))
	require.False(t, ok)
	for _, i := range []int{0, 2} {
		found, ok := c.FindKey(key(i))
		require.True(t, ok)
		require.Same(t, plans[i], found)
	}
}

func TestCacheConcurrent(t *testing.T) {
	c := New(8, nil)
	const workers = 8
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				k := uint64((w + i) % 16)
				if _, ok := c.FindKey(k, fmt.Sprint(k)); !ok {
					c.AddKey(k, fmt.Sprint(k), &physicalplan.Plan{})
				}
			}
		}(w)
	}
	wg.Wait()
	require.LessOrEqual(t, c.Len(), 8)
}
