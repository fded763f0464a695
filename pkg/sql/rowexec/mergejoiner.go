// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package rowexec

import (
	"bytes"
	"context"

	"github.com/cockroachdb/relcore/pkg/sql/opt"
	"github.com/cockroachdb/relcore/pkg/sql/opt/memo"
	"github.com/cockroachdb/relcore/pkg/sql/physicalplan"
	"github.com/cockroachdb/relcore/pkg/sql/sem/eval"
	"github.com/cockroachdb/relcore/pkg/sql/sem/tree"
	"github.com/cockroachdb/relcore/pkg/util/cancelchecker"
)

// mergeSide reads the groups of rows with equal keys of one sorted input
// of a merge join.
type mergeSide struct {
	input   RowSource
	keyOrds []int

	peeked    tree.Datums
	peekedKey []byte
	peekedOK  bool
	done      bool

	// has is set while group holds a group that has not been joined.
	has      bool
	group    []tree.Datums
	groupKey []byte
	// groupNull is set if the key of the group has a NULL value; such rows
	// never match.
	groupNull bool
}

func (s *mergeSide) peek(ctx context.Context) error {
	if s.peekedOK || s.done {
		return nil
	}
	row, err := s.input.Next(ctx)
	if err != nil {
		return err
	}
	if row == nil {
		s.done = true
		return nil
	}
	s.peeked = append(tree.Datums(nil), row...)
	var notNull bool
	if s.peekedKey, notNull, err = encodeJoinKey(s.peekedKey[:0], s.peeked, s.keyOrds); err != nil {
		return err
	}
	if !notNull {
		// Rows with NULL keys sort first and form groups of their own.
		s.peekedKey = s.peekedKey[:0]
	}
	s.peekedOK = true
	return nil
}

// nextGroup reads the next group of rows with equal keys, if there is one.
func (s *mergeSide) nextGroup(ctx context.Context) error {
	if err := s.peek(ctx); err != nil || !s.peekedOK {
		return err
	}
	s.group = append(s.group[:0], s.peeked)
	s.groupKey = append(s.groupKey[:0], s.peekedKey...)
	s.groupNull = hasNull(project(nil, s.peeked, s.keyOrds))
	s.peekedOK = false
	s.has = true
	if s.groupNull {
		return nil
	}
	for {
		if err := s.peek(ctx); err != nil {
			return err
		}
		if !s.peekedOK || !bytes.Equal(s.peekedKey, s.groupKey) ||
			hasNull(project(nil, s.peeked, s.keyOrds)) {
			return nil
		}
		s.group = append(s.group, s.peeked)
		s.peekedOK = false
	}
}

// mergeJoiner joins two inputs sorted in ascending order of their keys.
type mergeJoiner struct {
	evalCtx     *eval.Context
	typ         memo.JoinType
	left, right mergeSide
	on          memo.ScalarExpr
	leftWidth   int
	rightWidth  int

	pending      []tree.Datums
	matchedRight []bool
	cancel       cancelchecker.CancelChecker
}

var _ RowSource = &mergeJoiner{}

// NewMergeJoiner returns a source joining one partition of each input of
// n. Both inputs must be sorted on their keys.
func NewMergeJoiner(
	ctx context.Context, flowCtx *FlowCtx, n *physicalplan.MergeJoinNode, left, right RowSource,
) (RowSource, error) {
	leftCols, rightCols := n.Left.OutputCols(), n.Right.OutputCols()
	leftKeys, err := ordinals(leftCols, n.LeftKeys)
	if err != nil {
		return nil, err
	}
	rightKeys, err := ordinals(rightCols, n.RightKeys)
	if err != nil {
		return nil, err
	}
	layout := append(append(opt.ColList(nil), leftCols...), rightCols...)
	on, err := flowCtx.bind(n.On, layout)
	if err != nil {
		return nil, err
	}
	if on != nil && memo.IsTrue(on) {
		on = nil
	}
	return &mergeJoiner{
		evalCtx:    flowCtx.evalCtx(),
		typ:        n.Type,
		left:       mergeSide{input: left, keyOrds: leftKeys},
		right:      mergeSide{input: right, keyOrds: rightKeys},
		on:         on,
		leftWidth:  len(leftCols),
		rightWidth: len(rightCols),
		cancel:     flowCtx.cancelChecker(ctx),
	}, nil
}

func (m *mergeJoiner) Next(ctx context.Context) (tree.Datums, error) {
	for len(m.pending) == 0 {
		if err := m.cancel.Check(); err != nil {
			return nil, err
		}
		if !m.left.has {
			if err := m.left.nextGroup(ctx); err != nil {
				return nil, err
			}
		}
		if !m.right.has {
			if err := m.right.nextGroup(ctx); err != nil {
				return nil, err
			}
		}
		l, r := &m.left, &m.right
		switch {
		case !l.has && !r.has:
			return nil, nil
		case !r.has:
			m.leftUnmatched(l.group)
			l.has = false
		case !l.has:
			m.rightUnmatched(r.group)
			r.has = false
		default:
			c := bytes.Compare(l.groupKey, r.groupKey)
			switch {
			case c < 0 || l.groupNull:
				m.leftUnmatched(l.group)
				l.has = false
			case c > 0 || r.groupNull:
				m.rightUnmatched(r.group)
				r.has = false
			default:
				if err := m.joinGroups(ctx, l.group, r.group); err != nil {
					return nil, err
				}
				l.has, r.has = false, false
			}
		}
	}
	row := m.pending[0]
	m.pending = m.pending[1:]
	return row, nil
}

func (m *mergeJoiner) emit(left, right tree.Datums) {
	width := m.leftWidth + m.rightWidth
	if m.typ.IsSemiOrAnti() {
		width = m.leftWidth
	}
	row := make(tree.Datums, width)
	copyOrNull(row[:m.leftWidth], left)
	if !m.typ.IsSemiOrAnti() {
		copyOrNull(row[m.leftWidth:], right)
	}
	m.pending = append(m.pending, row)
}

func (m *mergeJoiner) leftUnmatched(rows []tree.Datums) {
	if m.typ == memo.AntiJoin || m.typ.PreservesLeft() {
		for _, row := range rows {
			m.emit(row, nil)
		}
	}
}

func (m *mergeJoiner) rightUnmatched(rows []tree.Datums) {
	if m.typ.PreservesRight() {
		for _, row := range rows {
			m.emit(nil, row)
		}
	}
}

// joinGroups joins groups of rows with equal keys.
func (m *mergeJoiner) joinGroups(ctx context.Context, left, right []tree.Datums) error {
	if cap(m.matchedRight) < len(right) {
		m.matchedRight = make([]bool, len(right))
	}
	matchedRight := m.matchedRight[:len(right)]
	for i := range matchedRight {
		matchedRight[i] = false
	}
	combined := make(tree.Datums, m.leftWidth+m.rightWidth)
	for _, l := range left {
		matched := false
		for j, r := range right {
			if m.on != nil {
				copy(combined, l)
				copy(combined[m.leftWidth:], r)
				ok, err := eval.Predicate(ctx, m.evalCtx, m.on, combined)
				if err != nil {
					return err
				}
				if !ok {
					continue
				}
			}
			matched = true
			matchedRight[j] = true
			if m.typ.IsSemiOrAnti() {
				break
			}
			m.emit(l, r)
		}
		switch {
		case matched && m.typ == memo.SemiJoin:
			m.emit(l, nil)
		case !matched:
			m.leftUnmatched([]tree.Datums{l})
		}
	}
	for j, r := range right {
		if !matchedRight[j] {
			m.rightUnmatched([]tree.Datums{r})
		}
	}
	return nil
}

func (m *mergeJoiner) Close(ctx context.Context) {
	m.left.input.Close(ctx)
	m.right.input.Close(ctx)
}
