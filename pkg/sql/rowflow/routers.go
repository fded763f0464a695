// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.
//
// Routers direct the rows produced by one partition of an exchange input to
// the partitions of the exchange output.

package rowflow

import (
	"context"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/relcore/pkg/sql/opt"
	"github.com/cockroachdb/relcore/pkg/sql/opt/props/physical"
	"github.com/cockroachdb/relcore/pkg/sql/rowenc/keyside"
	"github.com/cockroachdb/relcore/pkg/sql/sem/tree"
	"github.com/cockroachdb/relcore/pkg/util/encoding"
	"github.com/cockroachdb/relcore/pkg/util/mon"
)

type router interface {
	// push copies row to the buffer of its output partition.
	push(ctx context.Context, row tree.Datums) error
	// outputs returns the rows routed to every output partition.
	outputs() [][]tree.Datums
}

// routerBase holds the per-output buffers of a router. A router is owned
// by the goroutine of one input partition, so it needs no locking.
type routerBase struct {
	acc  *mon.BoundAccount
	bufs [][]tree.Datums
}

func (rb *routerBase) add(ctx context.Context, idx int, row tree.Datums) error {
	if err := rb.acc.Grow(ctx, int64(row.Size())); err != nil {
		return errors.Wrap(err, "buffering exchanged rows")
	}
	rb.bufs[idx] = append(rb.bufs[idx], append(tree.Datums(nil), row...))
	return nil
}

func (rb *routerBase) outputs() [][]tree.Datums { return rb.bufs }

// makeRouter creates the router of one input partition of an exchange. The
// router takes ownership of acc.
func makeRouter(target physical.Partitioning, inputCols opt.ColList, acc *mon.BoundAccount) (router, error) {
	switch target.Type {
	case physical.SinglePartition, physical.BroadcastPartitioning:
		return &mirrorRouter{routerBase{acc: acc, bufs: make([][]tree.Datums, 1)}}, nil

	case physical.HashPartitioning:
		if len(target.Cols) == 0 {
			return nil, errors.AssertionFailedf("no hash columns for hash exchange")
		}
		ords := make([]int, len(target.Cols))
		for i, c := range target.Cols {
			idx, ok := inputCols.Find(c)
			if !ok {
				return nil, errors.AssertionFailedf("hash column @%d is not produced by %s", c, inputCols)
			}
			ords[i] = idx
		}
		return &hashRouter{
			routerBase: routerBase{acc: acc, bufs: make([][]tree.Datums, target.NumPartitions())},
			hashCols:   ords,
		}, nil

	case physical.AnyPartitioning:
		return &roundRobinRouter{routerBase: routerBase{acc: acc, bufs: make([][]tree.Datums, target.NumPartitions())}}, nil

	default:
		return nil, errors.AssertionFailedf("exchange to %s not supported", target)
	}
}

// mirrorRouter sends every row to a single output, which is either the
// only partition of the consumer or replicated to all of them.
type mirrorRouter struct {
	routerBase
}

func (mr *mirrorRouter) push(ctx context.Context, row tree.Datums) error {
	return mr.add(ctx, 0, row)
}

// hashRouter sends rows with equal values of the hash columns to the same
// output.
type hashRouter struct {
	routerBase
	hashCols []int
	buffer   []byte
}

func (hr *hashRouter) push(ctx context.Context, row tree.Datums) error {
	idx, err := hr.computeDestination(row)
	if err != nil {
		return err
	}
	return hr.add(ctx, idx, row)
}

// computeDestination hashes a row and returns the index of the output on
// which it must be sent. Values are hashed in their key encoding, so that
// inputs hashed on columns of equal types are co-partitioned.
func (hr *hashRouter) computeDestination(row tree.Datums) (int, error) {
	hr.buffer = hr.buffer[:0]
	for _, col := range hr.hashCols {
		if col >= len(row) {
			return -1, errors.AssertionFailedf("hash column %d, row with only %d columns", col, len(row))
		}
		var err error
		if hr.buffer, err = keyside.Encode(hr.buffer, row[col], encoding.Ascending); err != nil {
			return -1, err
		}
	}
	return int(xxhash.Sum64(hr.buffer) % uint64(len(hr.bufs))), nil
}

// roundRobinRouter spreads rows evenly, without regard to their values.
type roundRobinRouter struct {
	routerBase
	next int
}

func (rr *roundRobinRouter) push(ctx context.Context, row tree.Datums) error {
	idx := rr.next
	rr.next = (rr.next + 1) % len(rr.bufs)
	return rr.add(ctx, idx, row)
}
