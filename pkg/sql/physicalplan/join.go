// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package physicalplan

import (
	"github.com/cockroachdb/relcore/pkg/sql/opt"
	"github.com/cockroachdb/relcore/pkg/sql/opt/memo"
	"github.com/cockroachdb/relcore/pkg/sql/opt/props"
	"github.com/cockroachdb/relcore/pkg/sql/opt/props/physical"
)

// JoinStrategy is a physical join algorithm.
type JoinStrategy uint8

const (
	BroadcastHashJoin JoinStrategy = iota
	ShuffleHashJoin
	SortMergeJoin
	BroadcastNestedLoopJoin
	CartesianProduct
)

var joinStrategyNames = [...]string{
	BroadcastHashJoin:       "broadcast-hash-join",
	ShuffleHashJoin:         "shuffle-hash-join",
	SortMergeJoin:           "sort-merge-join",
	BroadcastNestedLoopJoin: "broadcast-nested-loop-join",
	CartesianProduct:        "cartesian-product",
}

func (s JoinStrategy) String() string { return joinStrategyNames[s] }

// joinChoice is the outcome of join selection.
type joinChoice struct {
	strategy   JoinStrategy
	buildRight bool
}

// canBuildRight returns true if a hash join of the given type can build a
// hash table of its right input while streaming the left one.
func canBuildRight(t memo.JoinType) bool {
	switch t {
	case memo.InnerJoin, memo.LeftJoin, memo.SemiJoin, memo.AntiJoin:
		return true
	}
	return false
}

// canBuildLeft returns true if a hash join of the given type can build a
// hash table of its left input while streaming the right one.
func canBuildLeft(t memo.JoinType) bool {
	return t == memo.InnerJoin || t == memo.RightJoin
}

// canBroadcast returns true if the input may be replicated to every
// partition of the other input: it is named by a hint, or its estimated
// size is at most the broadcast threshold. An input of unknown size is
// never broadcast without a hint.
func (p *Planner) canBroadcast(s *props.Statistics, hinted bool) bool {
	if hinted {
		return true
	}
	if p.cfg.BroadcastThreshold < 0 || !s.SizeKnown() {
		return false
	}
	return s.SizeBytes <= float64(p.cfg.BroadcastThreshold)
}

// canBuildLocalHashMap returns true if the input is small enough for each
// of its shuffle partitions to fit in a hash table.
func (p *Planner) canBuildLocalHashMap(s *props.Statistics) bool {
	if !s.SizeKnown() {
		return false
	}
	return s.SizeBytes < float64(p.cfg.BroadcastThreshold)*float64(p.cfg.ShufflePartitions)
}

// muchSmaller returns true if a is at least ShuffleHashRatio times smaller
// than b.
func (p *Planner) muchSmaller(a, b *props.Statistics) bool {
	if !a.SizeKnown() {
		return false
	}
	return a.SizeBytes*p.cfg.ShuffleHashRatio <= b.SizeBytes
}

// selectJoin chooses the algorithm of a join. The rules are tried in order
// and the first match wins:
//
//  1. with equality keys, broadcast the right input if it can be built
//     and broadcast;
//  2. likewise for the left input;
//  3. shuffle-hash join if sort-merge joins are not preferred and a
//     buildable input fits a local hash table and is much smaller than the
//     other, or if the keys cannot be ordered;
//  4. sort-merge join on orderable keys;
//  5. without keys, broadcast nested loop join if an input can be
//     broadcast, else a cartesian product for inner joins, else a
//     broadcast nested loop join that builds the smaller input.
func (p *Planner) selectJoin(
	join *memo.JoinExpr, left, right *props.Statistics, leftKeys, rightKeys opt.ColList,
) joinChoice {
	t := join.Type
	hintLeft, hintRight := join.Hint == memo.BroadcastLeft, join.Hint == memo.BroadcastRight
	if len(leftKeys) > 0 {
		if canBuildRight(t) && p.canBroadcast(right, hintRight) {
			return joinChoice{strategy: BroadcastHashJoin, buildRight: true}
		}
		if canBuildLeft(t) && p.canBroadcast(left, hintLeft) {
			return joinChoice{strategy: BroadcastHashJoin}
		}
		ordered := orderable(p.md, leftKeys) && orderable(p.md, rightKeys)
		if !p.cfg.PreferSortMergeJoin || !ordered {
			if canBuildRight(t) && p.canBuildLocalHashMap(right) && p.muchSmaller(right, left) {
				return joinChoice{strategy: ShuffleHashJoin, buildRight: true}
			}
			if canBuildLeft(t) && p.canBuildLocalHashMap(left) && p.muchSmaller(left, right) {
				return joinChoice{strategy: ShuffleHashJoin}
			}
		}
		if ordered {
			return joinChoice{strategy: SortMergeJoin}
		}
		// Both inputs are partitioned by the keys, so the build side may be
		// preserved by the join.
		if canBuildLeft(t) && !canBuildRight(t) {
			return joinChoice{strategy: ShuffleHashJoin}
		}
		return joinChoice{strategy: ShuffleHashJoin, buildRight: true}
	}

	if nestedLoopBuildsRight(t) && p.canBroadcast(right, hintRight) {
		return joinChoice{strategy: BroadcastNestedLoopJoin, buildRight: true}
	}
	if nestedLoopBuildsLeft(t) && p.canBroadcast(left, hintLeft) {
		return joinChoice{strategy: BroadcastNestedLoopJoin}
	}
	if t == memo.InnerJoin {
		return joinChoice{strategy: CartesianProduct}
	}
	// Last resort: this may run out of memory if both inputs are large.
	buildRight := nestedLoopBuildsRight(t)
	if buildRight && nestedLoopBuildsLeft(t) {
		buildRight = right.SizeBytes <= left.SizeBytes
	}
	return joinChoice{strategy: BroadcastNestedLoopJoin, buildRight: buildRight}
}

// nestedLoopBuildsRight returns true if a nested loop join of the given
// type can broadcast its right input.
func nestedLoopBuildsRight(t memo.JoinType) bool {
	return canBuildRight(t) || t == memo.FullJoin
}

// nestedLoopBuildsLeft returns true if a nested loop join of the given type
// can broadcast its left input.
func nestedLoopBuildsLeft(t memo.JoinType) bool {
	return canBuildLeft(t) || t == memo.FullJoin
}

// buildPreserved returns true if the join emits the build rows that have no
// match. Such joins need to see every row of the stream side in the
// partition that holds a build row.
func buildPreserved(t memo.JoinType, buildRight bool) bool {
	if buildRight {
		return t.PreservesRight()
	}
	return t.PreservesLeft()
}

func (p *Planner) buildJoin(join *memo.JoinExpr) (Node, error) {
	left, err := p.build(join.Left)
	if err != nil {
		return nil, err
	}
	right, err := p.build(join.Right)
	if err != nil {
		return nil, err
	}
	if err := p.planSubqueries(join.On); err != nil {
		return nil, err
	}
	leftKeys, rightKeys, remaining := memo.ExtractEquiCols(
		join.On, join.Left.OutputCols().ToSet(), join.Right.OutputCols().ToSet(),
	)
	on := memo.MakeConjunction(remaining)
	choice := p.selectJoin(join, left.Statistics(), right.Statistics(), leftKeys, rightKeys)

	var n Node
	switch choice.strategy {
	case BroadcastHashJoin, ShuffleHashJoin:
		hj := &HashJoinNode{
			Type: join.Type, LeftKeys: leftKeys, RightKeys: rightKeys, On: on,
			BuildRight: choice.buildRight, Broadcast: choice.strategy == BroadcastHashJoin,
		}
		if hj.Broadcast {
			hj.Left, hj.Right = p.broadcastBuildSide(left, right, choice.buildRight)
		} else {
			hj.Left, hj.Right = p.coPartition(left, right, leftKeys, rightKeys)
		}
		hj.part, hj.ordering = joinedPartitioning(join.Type, hj.Left, hj.Right, choice.buildRight, hj.Broadcast)
		n = hj

	case SortMergeJoin:
		l, r := p.coPartition(left, right, leftKeys, rightKeys)
		mj := &MergeJoinNode{
			Type: join.Type, LeftKeys: leftKeys, RightKeys: rightKeys, On: on,
			Left:  p.ensureOrdering(l, ascending(leftKeys)),
			Right: p.ensureOrdering(r, ascending(rightKeys)),
		}
		mj.part, _ = joinedPartitioning(join.Type, mj.Left, mj.Right, true, false)
		switch join.Type {
		case memo.RightJoin:
			mj.ordering = mj.Right.Ordering()
		case memo.FullJoin:
		default:
			mj.ordering = mj.Left.Ordering()
		}
		n = mj

	case BroadcastNestedLoopJoin:
		nl := &NestedLoopJoinNode{Type: join.Type, On: join.On, BuildRight: choice.buildRight}
		if buildPreserved(join.Type, choice.buildRight) {
			// Unmatched build rows can only be found by a single stream
			// partition.
			if choice.buildRight {
				left = p.ensurePartitioning(left, physical.Single())
			} else {
				right = p.ensurePartitioning(right, physical.Single())
			}
		}
		nl.Left, nl.Right = p.broadcastBuildSide(left, right, choice.buildRight)
		nl.part, nl.ordering = joinedPartitioning(join.Type, nl.Left, nl.Right, choice.buildRight, true)
		n = nl

	case CartesianProduct:
		cp := &CartesianProductNode{Left: left, Right: right, On: join.On}
		cp.part = physical.Any(left.Partitioning().NumPartitions() * right.Partitioning().NumPartitions())
		n = cp
	}

	b := n.base()
	b.cols = join.OutputCols()
	b.stats = p.sb.Build(join)
	return n, nil
}

// broadcastBuildSide broadcasts the build input of a join.
func (p *Planner) broadcastBuildSide(left, right Node, buildRight bool) (Node, Node) {
	if buildRight {
		return left, p.ensurePartitioning(right, physical.Broadcast())
	}
	return p.ensurePartitioning(left, physical.Broadcast()), right
}

// coPartition hash partitions both inputs of a join on their keys, with the
// same number of partitions. An input that is already partitioned on its
// keys is not shuffled, and determines the partition count.
func (p *Planner) coPartition(left, right Node, leftKeys, rightKeys opt.ColList) (Node, Node) {
	count := p.cfg.ShufflePartitions
	lp, rp := left.Partitioning(), right.Partitioning()
	switch {
	case lp.Satisfies(physical.Hash(leftKeys, 0)) && lp.Type == physical.HashPartitioning:
		count = lp.Count
	case rp.Satisfies(physical.Hash(rightKeys, 0)) && rp.Type == physical.HashPartitioning:
		count = rp.Count
	}
	return p.ensurePartitioning(left, physical.Hash(leftKeys, count)),
		p.ensurePartitioning(right, physical.Hash(rightKeys, count))
}

// joinedPartitioning returns the partitioning and ordering of the output of
// a join. The rows of a partition are produced in the order of the stream
// side. Columns of a side that is null-extended no longer determine the
// partition of a row.
func joinedPartitioning(
	t memo.JoinType, left, right Node, buildRight, broadcast bool,
) (physical.Partitioning, opt.Ordering) {
	stream := left
	if !buildRight {
		stream = right
	}
	part := stream.Partitioning()
	if broadcast {
		if t == memo.FullJoin || (buildRight && t == memo.RightJoin) || (!buildRight && t == memo.LeftJoin) {
			part = physical.Any(part.NumPartitions())
		}
		if buildPreserved(t, buildRight) {
			return part, nil
		}
		return part, stream.Ordering()
	}
	switch t {
	case memo.RightJoin:
		part = right.Partitioning()
	case memo.FullJoin:
		part = physical.Any(part.NumPartitions())
	default:
		part = left.Partitioning()
	}
	var ordering opt.Ordering
	if t != memo.FullJoin && !buildPreserved(t, buildRight) {
		ordering = stream.Ordering()
	}
	return part, ordering
}
