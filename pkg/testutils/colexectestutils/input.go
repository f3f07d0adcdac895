// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package colexectestutils

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/vexec/pkg/col/coldata"
	"github.com/cockroachdb/vexec/pkg/sql/colexecop"
)

// Segment is a run of tuples sharing one schema.
type Segment struct {
	Schema coldata.Schema
	Tuples Tuples
}

// OpTestInput is an Operator that replays tuples in batches of a fixed size.
// The first batch of every segment is returned with OKNewSchema.
type OpTestInput struct {
	colexecop.ZeroInputNode
	colexecop.InitHelper
	colexecop.KillHelper

	segments  []Segment
	batchSize int
	notYet    bool
	failAfter int
	failErr   error

	segIdx, tupleIdx int
	announced        bool
	pendingNotYet    bool
	batch            coldata.Batch
	schema           coldata.Schema
	batchesReturned  int

	// Closes counts calls to Close.
	Closes int
	// Kills counts calls to Kill.
	Kills int
}

var _ colexecop.Operator = &OpTestInput{}

// InputOption configures an OpTestInput.
type InputOption func(*OpTestInput)

// WithNotYet makes the input return NotYet before every batch.
func WithNotYet() InputOption {
	return func(in *OpTestInput) { in.notYet = true }
}

// WithError makes the input fail with err after returning n batches.
func WithError(n int, err error) InputOption {
	return func(in *OpTestInput) {
		in.failAfter = n
		in.failErr = err
	}
}

// NewOpTestInput returns an input producing tuples with the given schema.
func NewOpTestInput(
	schema coldata.Schema, batchSize int, tuples Tuples, opts ...InputOption,
) *OpTestInput {
	return NewOpTestInputWithSegments(batchSize, []Segment{{Schema: schema, Tuples: tuples}}, opts...)
}

// NewOpTestInputWithSegments returns an input that changes its schema at
// every segment boundary.
func NewOpTestInputWithSegments(
	batchSize int, segments []Segment, opts ...InputOption,
) *OpTestInput {
	in := &OpTestInput{segments: segments, batchSize: batchSize, failAfter: -1}
	for _, opt := range opts {
		opt(in)
	}
	in.pendingNotYet = in.notYet
	in.schema = segments[0].Schema
	return in
}

// Schema implements the colexecop.Operator interface.
func (in *OpTestInput) Schema() coldata.Schema { return in.schema }

// Init implements the colexecop.Operator interface.
func (in *OpTestInput) Init(ctx context.Context) error {
	in.InitHelper.Init(ctx)
	return nil
}

// Next implements the colexecop.Operator interface.
func (in *OpTestInput) Next() (coldata.Batch, colexecop.Outcome, error) {
	if in.Ctx == nil {
		return nil, 0, errors.AssertionFailedf("Next called before Init")
	}
	if in.Killed() || in.Closes > 0 {
		return coldata.ZeroBatch, colexecop.None, nil
	}
	if in.failAfter >= 0 && in.batchesReturned == in.failAfter {
		return nil, 0, in.failErr
	}
	if in.segIdx == len(in.segments) {
		return coldata.ZeroBatch, colexecop.None, nil
	}
	if in.pendingNotYet {
		in.pendingNotYet = false
		return coldata.ZeroBatch, colexecop.NotYet, nil
	}
	in.pendingNotYet = in.notYet

	seg := in.segments[in.segIdx]
	outcome := colexecop.OK
	if !in.announced {
		in.announced = true
		in.schema = seg.Schema
		in.batch = coldata.NewMemBatchWithCapacity(seg.Schema, in.batchSize)
		outcome = colexecop.OKNewSchema
	}
	in.batch.Reset()
	n := 0
	for ; n < in.batchSize && in.tupleIdx < len(seg.Tuples); n++ {
		tup := seg.Tuples[in.tupleIdx]
		for j, v := range tup {
			in.batch.ColVec(j).Set(n, v)
		}
		in.tupleIdx++
	}
	in.batch.SetLength(n)
	if in.tupleIdx == len(seg.Tuples) {
		in.segIdx++
		in.tupleIdx = 0
		in.announced = false
	}
	if n == 0 && outcome == colexecop.OK {
		return in.Next()
	}
	in.batchesReturned++
	return in.batch, outcome, nil
}

// Kill implements the colexecop.Operator interface.
func (in *OpTestInput) Kill() {
	in.Kills++
	in.MarkKilled()
}

// Close implements the colexecop.Operator interface.
func (in *OpTestInput) Close(context.Context) error {
	in.Closes++
	return nil
}
