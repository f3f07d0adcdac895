// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package colexecjoin

import (
	"github.com/cockroachdb/vexec/pkg/col/coldata"
	"github.com/cockroachdb/vexec/pkg/col/typeconv"
	"github.com/cockroachdb/vexec/pkg/sql/colexecop"
	"github.com/cockroachdb/vexec/pkg/sql/colmem"
	"github.com/cockroachdb/vexec/pkg/sql/execerror"
)

type sideStatus int

const (
	sideReady sideStatus = iota
	sideFinished
	sideWaiting
	sideSchemaChanged
)

type position struct {
	batch, row int
}

// sideIterator is a cursor over one input of the merge joiner. Input batches
// are copied as they are pulled, since the input may reuse a batch on the
// next call. Copies are kept until both the cursor and the mark have moved
// past them, which lets the joiner rewind to the start of a group of equal
// keys that spans several input batches.
type sideIterator struct {
	name   string
	input  colexecop.Operator
	alloc  *colmem.Allocator
	schema coldata.Schema

	batches  []coldata.Batch
	cur      position
	mark     position
	marked   bool
	finished bool

	tuples int64
	notYet int64
}

func newSideIterator(
	name string, input colexecop.Operator, alloc *colmem.Allocator,
) *sideIterator {
	return &sideIterator{name: name, input: input, alloc: alloc, schema: input.Schema()}
}

// ensure makes the row under the cursor available, pulling from the input if
// the cursor is past the buffered batches.
func (s *sideIterator) ensure() (sideStatus, error) {
	for s.cur.batch == len(s.batches) {
		if s.finished {
			return sideFinished, nil
		}
		b, outcome, err := s.input.Next()
		if err != nil {
			return 0, err
		}
		switch outcome {
		case colexecop.NotYet:
			s.notYet++
			return sideWaiting, nil
		case colexecop.None:
			s.finished = true
			continue
		}
		changed := outcome == colexecop.OKNewSchema && !s.input.Schema().Equals(s.schema)
		if changed {
			if s.marked && !sameFamilies(s.schema, s.input.Schema()) {
				return 0, execerror.NewUnsupportedConfigurationErrorf(
					"%s input changed types from %s to %s inside a group of equal keys",
					s.name, s.schema, s.input.Schema())
			}
			s.schema = s.input.Schema()
		}
		if b.Length() > 0 {
			if err := s.buffer(b); err != nil {
				return 0, err
			}
		}
		if changed {
			return sideSchemaChanged, nil
		}
	}
	return sideReady, nil
}

func (s *sideIterator) buffer(b coldata.Batch) error {
	n := b.Length()
	owned := coldata.NewMemBatchWithCapacity(s.schema, n)
	for i, vec := range owned.ColVecs() {
		vec.Copy(coldata.CopySliceArgs{Src: b.ColVec(i), SrcEndIdx: n})
	}
	owned.SetLength(n)
	if err := s.alloc.RetainBatch(owned); err != nil {
		return err
	}
	s.batches = append(s.batches, owned)
	s.tuples += int64(n)
	return nil
}

// exhausted returns whether there are no rows left under or after the cursor.
func (s *sideIterator) exhausted() bool {
	return s.finished && s.cur.batch == len(s.batches)
}

func (s *sideIterator) row() (coldata.Batch, int) {
	return s.batches[s.cur.batch], s.cur.row
}

func (s *sideIterator) markRow() (coldata.Batch, int) {
	return s.batches[s.mark.batch], s.mark.row
}

func (s *sideIterator) advance() {
	s.cur.row++
	if s.cur.row == s.batches[s.cur.batch].Length() {
		s.cur.batch++
		s.cur.row = 0
		s.release()
	}
}

func (s *sideIterator) setMark() {
	s.mark, s.marked = s.cur, true
}

func (s *sideIterator) resetToMark() {
	s.cur = s.mark
}

func (s *sideIterator) clearMark() {
	s.marked = false
	s.release()
}

// release drops the copies that are behind both the cursor and the mark.
func (s *sideIterator) release() {
	keep := s.cur.batch
	if s.marked && s.mark.batch < keep {
		keep = s.mark.batch
	}
	if keep == 0 {
		return
	}
	for i := 0; i < keep; i++ {
		s.alloc.ReleaseBatch(s.batches[i])
		s.batches[i] = nil
	}
	s.batches = append(s.batches[:0], s.batches[keep:]...)
	s.cur.batch -= keep
	if s.marked {
		s.mark.batch -= keep
	}
}

// clearInflightBatches releases every buffered copy. The iterator must not
// be used afterwards.
func (s *sideIterator) clearInflightBatches() {
	for _, b := range s.batches {
		s.alloc.ReleaseBatch(b)
	}
	s.batches = nil
	s.cur, s.mark, s.marked = position{}, position{}, false
}

func sameFamilies(a, b coldata.Schema) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if typeconv.CanonicalFamily(a[i].Type) != typeconv.CanonicalFamily(b[i].Type) {
			return false
		}
	}
	return true
}
