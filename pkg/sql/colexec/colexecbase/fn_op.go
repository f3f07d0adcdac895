// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package colexecbase

import (
	"github.com/cockroachdb/vexec/pkg/col/coldata"
	"github.com/cockroachdb/vexec/pkg/sql/colexecop"
)

// fnOp is an operator that executes an arbitrary function for its side-effects,
// once per input batch, passing the input batch unmodified along.
type fnOp struct {
	colexecop.OneInputInitCloserHelper

	fn func(coldata.Batch, colexecop.Outcome)
}

var _ colexecop.Operator = &fnOp{}

// NewFnOp returns an operator that calls fn with every batch and outcome of
// input before returning them. fn is not called on errors.
func NewFnOp(input colexecop.Operator, fn func(coldata.Batch, colexecop.Outcome)) colexecop.Operator {
	return &fnOp{
		OneInputInitCloserHelper: colexecop.MakeOneInputInitCloserHelper(input),
		fn:                       fn,
	}
}

// Next implements the colexecop.Operator interface.
func (f *fnOp) Next() (coldata.Batch, colexecop.Outcome, error) {
	batch, outcome, err := f.Input.Next()
	if err == nil {
		f.fn(batch, outcome)
	}
	return batch, outcome, err
}
