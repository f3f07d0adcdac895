// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package colexecjoin

import (
	"github.com/cockroachdb/vexec/pkg/col/coldata"
	"github.com/cockroachdb/vexec/pkg/sql/colexec/colexeccmp"
	"github.com/cockroachdb/vexec/pkg/sql/execinfrapb"
)

// joinOutcome is the result of one call to joinWorker.doJoin.
type joinOutcome int

const (
	// batchReturned means the output batch is full.
	batchReturned joinOutcome = iota
	// schemaChanged means an input announced a new schema. The worker must be
	// rebuilt before the join continues.
	schemaChanged
	// noMoreData means the join is complete. The output batch may still hold
	// rows.
	noMoreData
	// failure means an input or the allocator returned an error.
	failure
	// waiting means an input is not ready yet. The join resumes from the same
	// point on the next call.
	waiting
)

// mergeState is the position of the join within the merge.
type mergeState int

const (
	// mergeCompare compares the rows under both cursors.
	mergeCompare mergeState = iota
	// mergeEmitGroup joins the current left row with the right rows from the
	// cursor onwards while their keys are equal.
	mergeEmitGroup
	// mergeNextInGroup checks whether the next left row joins with the group
	// of right rows starting at the mark.
	mergeNextInGroup
)

// joinStatus is the state of a merge join carried between calls to doJoin.
type joinStatus struct {
	outcome joinOutcome
	err     error
	// outPos is the number of rows in the output batch.
	outPos int
	state  mergeState

	left, right *sideIterator
}

// pull makes the current row of side available. When it returns false the
// returned status must be handed back to the caller of doJoin.
func (s joinStatus) pull(side *sideIterator) (joinStatus, bool) {
	ss, err := side.ensure()
	switch {
	case err != nil:
		s.outcome, s.err = failure, err
		return s, false
	case ss == sideWaiting:
		s.outcome = waiting
		return s, false
	case ss == sideSchemaChanged:
		s.outcome = schemaChanged
		return s, false
	}
	return s, true
}

// joinWorker holds the comparison and copy logic of one pair of input
// schemas.
type joinWorker struct {
	joinType  execinfrapb.JoinType
	keys      colexeccmp.KeyComparator
	leftWidth int
	output    coldata.Batch

	announced bool
	stale     bool
}

// doJoin fills the output batch starting at s.outPos until it is full or the
// join cannot make progress, and returns the new status.
func (w *joinWorker) doJoin(s joinStatus) joinStatus {
	if s.outPos == 0 {
		w.output.Reset()
	}
	var ok bool
	for s.outPos < w.output.Capacity() {
		switch s.state {
		case mergeCompare:
			if s, ok = s.pull(s.left); !ok {
				return s
			}
			if s, ok = s.pull(s.right); !ok {
				return s
			}
			switch {
			case s.left.exhausted() && s.right.exhausted():
				s.outcome = noMoreData
				return s
			case s.right.exhausted():
				if !w.joinType.EmitLeftUnmatched() {
					s.outcome = noMoreData
					return s
				}
				l, li := s.left.row()
				s.outPos = w.emit(s.outPos, l, li, nil, 0)
				s.left.advance()
			case s.left.exhausted():
				if !w.joinType.EmitRightUnmatched() {
					s.outcome = noMoreData
					return s
				}
				r, ri := s.right.row()
				s.outPos = w.emit(s.outPos, nil, 0, r, ri)
				s.right.advance()
			default:
				l, li := s.left.row()
				r, ri := s.right.row()
				switch c := w.keys.Compare(l, li, r, ri); {
				case c < 0:
					if w.joinType.EmitLeftUnmatched() {
						s.outPos = w.emit(s.outPos, l, li, nil, 0)
					}
					s.left.advance()
				case c > 0:
					if w.joinType.EmitRightUnmatched() {
						s.outPos = w.emit(s.outPos, nil, 0, r, ri)
					}
					s.right.advance()
				default:
					s.right.setMark()
					s.state = mergeEmitGroup
				}
			}

		case mergeEmitGroup:
			if s, ok = s.pull(s.right); !ok {
				return s
			}
			l, li := s.left.row()
			if !s.right.exhausted() {
				r, ri := s.right.row()
				if w.keys.Compare(l, li, r, ri) == 0 {
					s.outPos = w.emit(s.outPos, l, li, r, ri)
					s.right.advance()
					continue
				}
			}
			s.left.advance()
			s.state = mergeNextInGroup

		case mergeNextInGroup:
			if s, ok = s.pull(s.left); !ok {
				return s
			}
			if !s.left.exhausted() {
				l, li := s.left.row()
				r, ri := s.right.markRow()
				if w.keys.Compare(l, li, r, ri) == 0 {
					s.right.resetToMark()
					s.state = mergeEmitGroup
					continue
				}
			}
			s.right.clearMark()
			s.state = mergeCompare
		}
	}
	s.outcome = batchReturned
	return s
}

// emit writes the output row at outPos. A nil batch fills its side with
// NULLs. It returns the next output position.
func (w *joinWorker) emit(outPos int, l coldata.Batch, li int, r coldata.Batch, ri int) int {
	vecs := w.output.ColVecs()
	for i, vec := range vecs {
		src, srcIdx, col := l, li, i
		if i >= w.leftWidth {
			src, srcIdx, col = r, ri, i-w.leftWidth
		}
		if src == nil {
			vec.Nulls().SetNull(outPos)
			continue
		}
		vec.CopyValue(outPos, src.ColVec(col), srcIdx)
	}
	return outPos + 1
}
