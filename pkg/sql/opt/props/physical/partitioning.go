// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package physical describes the physical properties of rows flowing out of
// a physical operator: how they are split across partitions and in what
// order they appear within a partition.
package physical

import (
	"fmt"

	"github.com/cockroachdb/relcore/pkg/sql/opt"
)

// PartitioningType enumerates the ways rows may be split across partitions.
type PartitioningType uint8

const (
	// AnyPartitioning means rows may be split arbitrarily. As a requirement
	// it is satisfied by every partitioning.
	AnyPartitioning PartitioningType = iota

	// SinglePartition means all rows are in one partition.
	SinglePartition

	// HashPartitioning means rows with equal values of the partitioning
	// columns are in the same partition, chosen by hashing those values.
	HashPartitioning

	// BroadcastPartitioning means every partition of the consumer sees all
	// rows.
	BroadcastPartitioning
)

// Partitioning describes how rows are distributed across partitions. As a
// provided property it describes an operator's output; as a required
// property it describes what an operator needs from one of its inputs.
type Partitioning struct {
	Type PartitioningType

	// Cols are the hashed columns of a HashPartitioning, in hashing order.
	// Two inputs hashed on columns of equal types in the same order and with
	// the same partition count are co-partitioned.
	Cols opt.ColList

	// Count is the number of partitions. It is zero for a requirement that
	// accepts any count.
	Count int
}

// Single returns the single-partition distribution.
func Single() Partitioning { return Partitioning{Type: SinglePartition, Count: 1} }

// Any returns an arbitrary partitioning with the given count.
func Any(count int) Partitioning { return Partitioning{Type: AnyPartitioning, Count: count} }

// Hash returns a hash partitioning on the given columns.
func Hash(cols opt.ColList, count int) Partitioning {
	return Partitioning{Type: HashPartitioning, Cols: cols, Count: count}
}

// Broadcast returns the broadcast requirement.
func Broadcast() Partitioning { return Partitioning{Type: BroadcastPartitioning} }

// NumPartitions returns the number of partitions, treating an unspecified
// count as one.
func (p Partitioning) NumPartitions() int {
	if p.Count <= 0 {
		return 1
	}
	return p.Count
}

// Satisfies returns true if rows partitioned according to p meet the
// requirement.
func (p Partitioning) Satisfies(required Partitioning) bool {
	switch required.Type {
	case AnyPartitioning:
		return true
	case SinglePartition:
		return p.Type == SinglePartition || p.NumPartitions() == 1 && p.Type != BroadcastPartitioning
	case HashPartitioning:
		if p.Type == SinglePartition || (p.NumPartitions() == 1 && p.Type != BroadcastPartitioning) {
			return required.Count <= 1
		}
		if p.Type != HashPartitioning {
			return false
		}
		if required.Count != 0 && required.Count != p.Count {
			return false
		}
		return p.Cols.Equals(required.Cols)
	case BroadcastPartitioning:
		return p.Type == BroadcastPartitioning
	}
	return false
}

// Remap returns a copy of p in which the partitioning columns are renamed
// according to the mapping. If a column has no mapping, the partitioning is
// lost and an arbitrary partitioning is returned.
func (p Partitioning) Remap(m map[opt.ColumnID]opt.ColumnID) Partitioning {
	if p.Type != HashPartitioning {
		return p
	}
	cols := make(opt.ColList, len(p.Cols))
	for i, c := range p.Cols {
		to, ok := m[c]
		if !ok {
			return Any(p.Count)
		}
		cols[i] = to
	}
	return Hash(cols, p.Count)
}

func (p Partitioning) String() string {
	switch p.Type {
	case SinglePartition:
		return "single"
	case HashPartitioning:
		return fmt.Sprintf("hash%s/%d", p.Cols, p.Count)
	case BroadcastPartitioning:
		return "broadcast"
	}
	return fmt.Sprintf("any/%d", p.NumPartitions())
}
