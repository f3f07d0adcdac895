// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package colexecbase

import (
	"github.com/cockroachdb/vexec/pkg/col/coldata"
	"github.com/cockroachdb/vexec/pkg/sql/colexecop"
)

// limitOp skips the first offset rows of its input and then emits at most
// count rows.
type limitOp struct {
	colexecop.OneInputInitCloserHelper

	offset, count int64
	// skipped and emitted count the rows consumed by the offset and the rows
	// returned so far.
	skipped, emitted int64
	done             bool
}

var _ colexecop.Operator = &limitOp{}

// NewLimitOp returns a new limit operator with the given offset and count.
func NewLimitOp(input colexecop.Operator, offset, count int64) colexecop.Operator {
	return &limitOp{
		OneInputInitCloserHelper: colexecop.MakeOneInputInitCloserHelper(input),
		offset:                   offset,
		count:                    count,
	}
}

// Next implements the colexecop.Operator interface. The schema is announced
// even if the limit leaves nothing to return.
func (l *limitOp) Next() (coldata.Batch, colexecop.Outcome, error) {
	for {
		if l.Killed() || l.done {
			return coldata.ZeroBatch, colexecop.None, nil
		}
		bat, outcome, err := l.Input.Next()
		if err != nil || !outcome.HasBatch() {
			if outcome == colexecop.None {
				l.done = true
			}
			return bat, outcome, err
		}
		if l.skipped < l.offset && bat.Length() > 0 {
			toSkip := l.offset - l.skipped
			if n := int64(bat.Length()); n < toSkip {
				toSkip = n
			}
			coldata.Compact(bat, func(i int) bool { return int64(i) >= toSkip })
			l.skipped += toSkip
		}
		if remaining := l.count - l.emitted; int64(bat.Length()) >= remaining {
			bat.SetLength(int(remaining))
			l.done = true
		}
		l.emitted += int64(bat.Length())
		if bat.Length() > 0 || outcome == colexecop.OKNewSchema {
			return bat, outcome, nil
		}
	}
}
