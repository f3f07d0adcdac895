// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package colexec

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/vexec/pkg/col/coldata"
	"github.com/cockroachdb/vexec/pkg/col/typeconv"
	"github.com/cockroachdb/vexec/pkg/sql/colexecop"
	"github.com/cockroachdb/vexec/pkg/sql/execerror"
	"github.com/cockroachdb/vexec/pkg/sql/execinfra"
)

// SerialUnorderedSynchronizer is an Operator that combines multiple Operator
// streams into one (UNION ALL). It reads its inputs one by one until each one
// is exhausted, at which point it moves to the next input.
//
// The output schema is the union of the input schemas: a column is nullable
// if it is nullable in any input. A schema announced by an input is
// forwarded as a schema change only if it differs from the output schema in
// its physical types; otherwise the announcement is absorbed.
type SerialUnorderedSynchronizer struct {
	colexecop.InitHelper
	colexecop.CloserHelper
	colexecop.KillHelper

	inputs []colexecop.Operator
	schema coldata.Schema
	// curSerialInputIdx indicates the index of the current input being consumed.
	curSerialInputIdx int
	announced         bool
}

var _ colexecop.Operator = &SerialUnorderedSynchronizer{}
var _ execinfra.OpNode = &SerialUnorderedSynchronizer{}

// ChildCount implements the execinfra.OpNode interface.
func (s *SerialUnorderedSynchronizer) ChildCount(verbose bool) int {
	return len(s.inputs)
}

// Child implements the execinfra.OpNode interface.
func (s *SerialUnorderedSynchronizer) Child(nth int, verbose bool) execinfra.OpNode {
	return s.inputs[nth]
}

// NewSerialUnorderedSynchronizer creates a new SerialUnorderedSynchronizer.
func NewSerialUnorderedSynchronizer(
	inputs []colexecop.Operator,
) (*SerialUnorderedSynchronizer, error) {
	if len(inputs) == 0 {
		return nil, execerror.NewSetupErrorf("union all without inputs")
	}
	schema, err := unionSchema(nil, inputs[0].Schema())
	if err != nil {
		return nil, err
	}
	for _, in := range inputs[1:] {
		if schema, err = unionSchema(schema, in.Schema()); err != nil {
			return nil, err
		}
	}
	return &SerialUnorderedSynchronizer{inputs: inputs, schema: schema}, nil
}

// unionSchema widens acc with s. A nil acc is the identity.
func unionSchema(acc, s coldata.Schema) (coldata.Schema, error) {
	if acc == nil {
		return append(coldata.Schema(nil), s...), nil
	}
	if !sameFamilies(acc, s) {
		return nil, execerror.NewSetupError(
			errors.Newf("%s is incompatible with %s", s, acc), "union all input types mismatch")
	}
	for i := range s {
		acc[i].Nullable = acc[i].Nullable || s[i].Nullable
	}
	return acc, nil
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

// Schema implements the colexecop.Operator interface.
func (s *SerialUnorderedSynchronizer) Schema() coldata.Schema { return s.schema }

// Init implements the colexecop.Operator interface.
func (s *SerialUnorderedSynchronizer) Init(ctx context.Context) error {
	if !s.InitHelper.Init(ctx) {
		return nil
	}
	return colexecop.InitAll(ctx, s.inputs...)
}

// Next implements the colexecop.Operator interface.
func (s *SerialUnorderedSynchronizer) Next() (coldata.Batch, colexecop.Outcome, error) {
	for {
		if s.Killed() || s.curSerialInputIdx == len(s.inputs) {
			return coldata.ZeroBatch, colexecop.None, nil
		}
		in := s.inputs[s.curSerialInputIdx]
		b, outcome, err := in.Next()
		if err != nil {
			return nil, 0, err
		}
		switch outcome {
		case colexecop.NotYet:
			return b, outcome, nil
		case colexecop.None:
			s.curSerialInputIdx++
			if s.curSerialInputIdx == len(s.inputs) && !s.announced {
				s.announced = true
				return coldata.NewMemBatchWithCapacity(s.schema, 0), colexecop.OKNewSchema, nil
			}
			continue
		case colexecop.OKNewSchema:
			if !sameFamilies(s.schema, in.Schema()) {
				s.schema = append(coldata.Schema(nil), in.Schema()...)
				s.announced = true
				return b, colexecop.OKNewSchema, nil
			}
			outcome = colexecop.OK
		}
		if !s.announced {
			s.announced = true
			return b, colexecop.OKNewSchema, nil
		}
		if b.Length() > 0 {
			return b, outcome, nil
		}
	}
}

// Kill implements the colexecop.Operator interface.
func (s *SerialUnorderedSynchronizer) Kill() {
	colexecop.KillAll(s.inputs...)
	s.MarkKilled()
}

// Close implements the colexecop.Operator interface.
func (s *SerialUnorderedSynchronizer) Close(ctx context.Context) error {
	if !s.CloserHelper.Close() {
		return nil
	}
	return colexecop.CloseAll(ctx, s.inputs...)
}
