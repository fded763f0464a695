// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package base

const (
	// DefaultBroadcastThreshold is the estimated size under which a join
	// input is broadcast to every partition of the other input.
	DefaultBroadcastThreshold = 10 << 20

	// DefaultShuffleHashRatio is how many times smaller than the other input
	// the build side of a shuffle hash join must be.
	DefaultShuffleHashRatio = 3

	// DefaultShufflePartitions is the number of partitions produced by hash
	// exchanges.
	DefaultShufflePartitions = 4

	// DefaultUnknownSelectivity is the selectivity of predicates that cannot
	// be estimated.
	DefaultUnknownSelectivity = 0.5

	// DefaultMaxIterations bounds the passes of a fixed-point rule batch.
	DefaultMaxIterations = 100

	// DefaultWorkMem is the memory budget of a single memory-intensive
	// operator before it spills to disk.
	DefaultWorkMem = 64 << 20

	// DefaultPageSize is the size of the pages allocated by hash maps and
	// sorters.
	DefaultPageSize = 64 << 10

	// DefaultCancelCheckInterval is the number of rows processed between two
	// checks for cancellation.
	DefaultCancelCheckInterval = 1024

	// DefaultPlanCacheCapacity is the number of physical plans cached by an
	// engine.
	DefaultPlanCacheCapacity = 128

	// DefaultMaxSpillWriters is the number of operators of an engine that may
	// write spill files concurrently.
	DefaultMaxSpillWriters = 4

	// TempDirName is the name of the directory holding spill files, relative
	// to the engine's store directory.
	TempDirName = "relcore-temp"
)
