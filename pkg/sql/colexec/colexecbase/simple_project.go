// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package colexecbase

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/vexec/pkg/col/coldata"
	"github.com/cockroachdb/vexec/pkg/sql/colexecop"
	"github.com/cockroachdb/vexec/pkg/sql/execerror"
	"github.com/cockroachdb/vexec/pkg/util/log"
)

// simpleProjectOp is an operator that implements "simple projection" - removal of
// columns that aren't needed by later operators.
type simpleProjectOp struct {
	colexecop.OneInputInitCloserHelper

	projection []int
	schema     coldata.Schema
	batches    map[coldata.Batch]*projectingBatch
	// numBatchesLoggingThreshold is the threshold on the number of items in
	// 'batches' map at which we will log a message when a new projectingBatch
	// is created. It is growing exponentially.
	numBatchesLoggingThreshold int
}

var _ colexecop.Operator = &simpleProjectOp{}

// projectingBatch is a Batch that applies a simple projection to another,
// underlying batch, discarding all columns but the ones in its projection
// slice, in order.
type projectingBatch struct {
	coldata.Batch

	projection []int
	schema     coldata.Schema
	// colVecs is a lazily populated slice of coldata.Vecs to support returning
	// these in ColVecs().
	colVecs []coldata.Vec
}

func (b *projectingBatch) Schema() coldata.Schema { return b.schema }

func (b *projectingBatch) ColVec(i int) coldata.Vec {
	return b.Batch.ColVec(b.projection[i])
}

func (b *projectingBatch) ColVecs() []coldata.Vec {
	if b.colVecs == nil || len(b.colVecs) != len(b.projection) {
		b.colVecs = make([]coldata.Vec, len(b.projection))
	}
	for i := range b.colVecs {
		b.colVecs[i] = b.Batch.ColVec(b.projection[i])
	}
	return b.colVecs
}

func (b *projectingBatch) Width() int {
	return len(b.projection)
}

func (b *projectingBatch) String() string {
	if b.Length() == 0 {
		return "[zero-length batch]"
	}
	rows := make([]string, b.Length())
	for i := range rows {
		rows[i] = coldata.RowString(b, i)
	}
	return strings.Join(rows, "\n")
}

// NewSimpleProjectOp returns a new simpleProjectOp that applies a simple
// projection on the columns in its input batch, returning a new batch with
// only the columns in the projection slice, in order. In a degenerate case
// when input already outputs batches that satisfy the projection, a
// simpleProjectOp is not planned and input is returned.
func NewSimpleProjectOp(input colexecop.Operator, projection []int) (colexecop.Operator, error) {
	inSchema := input.Schema()
	schema, err := project(inSchema, projection)
	if err != nil {
		return nil, err
	}
	if len(inSchema) == len(projection) {
		projectionIsRedundant := true
		for i := range projection {
			if projection[i] != i {
				projectionIsRedundant = false
			}
		}
		if projectionIsRedundant {
			return input, nil
		}
	}
	s := &simpleProjectOp{
		OneInputInitCloserHelper:   colexecop.MakeOneInputInitCloserHelper(input),
		projection:                 make([]int, len(projection)),
		schema:                     schema,
		batches:                    make(map[coldata.Batch]*projectingBatch),
		numBatchesLoggingThreshold: 128,
	}
	// We make a copy of projection to be safe.
	copy(s.projection, projection)
	return s, nil
}

func project(in coldata.Schema, projection []int) (coldata.Schema, error) {
	out := make(coldata.Schema, len(projection))
	for i, c := range projection {
		if c < 0 || c >= len(in) {
			return nil, execerror.NewSetupErrorf("projection column %d out of range [0, %d)", c, len(in))
		}
		out[i] = in[c]
	}
	return out, nil
}

// Schema implements the colexecop.Operator interface.
func (d *simpleProjectOp) Schema() coldata.Schema { return d.schema }

// Next implements the colexecop.Operator interface.
func (d *simpleProjectOp) Next() (coldata.Batch, colexecop.Outcome, error) {
	if d.Killed() {
		return coldata.ZeroBatch, colexecop.None, nil
	}
	batch, outcome, err := d.Input.Next()
	if err != nil || !outcome.HasBatch() {
		return batch, outcome, err
	}
	if outcome == colexecop.OKNewSchema {
		schema, err := project(d.Input.Schema(), d.projection)
		if err != nil {
			return nil, 0, errors.Wrap(err, "input schema changed")
		}
		d.schema = schema
		// Wrappers of batches with the previous schema are stale.
		for b := range d.batches {
			delete(d.batches, b)
		}
	}
	projBatch, found := d.batches[batch]
	if !found {
		projBatch = &projectingBatch{projection: d.projection, schema: d.schema}
		d.batches[batch] = projBatch
		if len(d.batches) == d.numBatchesLoggingThreshold {
			if log.V(1) {
				log.Infof(d.Ctx, "simpleProjectOp: size of 'batches' map = %d", len(d.batches))
			}
			d.numBatchesLoggingThreshold = d.numBatchesLoggingThreshold * 2
		}
	}
	projBatch.Batch = batch
	return projBatch, outcome, nil
}
