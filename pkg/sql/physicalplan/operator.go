// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package physicalplan defines the tree of physical operators handed to the
// builder. Physical operators are immutable: the schema of each operator is
// derived from its children when it is constructed, and replacing children
// produces a new operator.
package physicalplan

import (
	"fmt"
	"iter"

	"github.com/cockroachdb/vexec/pkg/col/coldata"
	"github.com/cockroachdb/vexec/pkg/sql/execerror"
)

// OpProps are the properties shared by all physical operators.
type OpProps struct {
	// OperatorID identifies the operator within its plan.
	OperatorID int32
	// MemoryLimit is the memory budget of the operator, 0 means unlimited.
	MemoryLimit int64
}

// PhysicalOperator is a node of a physical plan.
type PhysicalOperator interface {
	fmt.Stringer

	// Children returns the inputs of the operator in order. The sequence can
	// be iterated any number of times.
	Children() iter.Seq[PhysicalOperator]
	// WithChildren returns a copy of the operator with its inputs replaced.
	// It fails with an arity error if the number of children is not the
	// number of inputs of the operator.
	WithChildren(children []PhysicalOperator) (PhysicalOperator, error)
	// Schema returns the output schema of the operator.
	Schema() coldata.Schema
	// Props returns the properties of the operator.
	Props() OpProps
}

// NewArityError returns the error for an operator that expected a different
// number of children.
func NewArityError(op PhysicalOperator, expected, actual int) error {
	return execerror.NewArityErrorf("%s expects %d children, got %d", op, expected, actual)
}

// NumChildren returns the number of children of op.
func NumChildren(op PhysicalOperator) int {
	n := 0
	for range op.Children() {
		n++
	}
	return n
}

// singleChild is implemented by operators with exactly one input.
type singleChild interface {
	PhysicalOperator
	withChild(child PhysicalOperator) (PhysicalOperator, error)
}

// SingleInput is embedded by operators with exactly one input.
type SingleInput struct {
	input PhysicalOperator
	props OpProps
}

// Input returns the only child.
func (s *SingleInput) Input() PhysicalOperator { return s.input }

// Children implements the PhysicalOperator interface.
func (s *SingleInput) Children() iter.Seq[PhysicalOperator] {
	return func(yield func(PhysicalOperator) bool) {
		yield(s.input)
	}
}

// Props implements the PhysicalOperator interface.
func (s *SingleInput) Props() OpProps { return s.props }

func withSingleChild(op singleChild, children []PhysicalOperator) (PhysicalOperator, error) {
	if len(children) != 1 {
		return nil, NewArityError(op, 1, len(children))
	}
	return op.withChild(children[0])
}

func noChildren(yield func(PhysicalOperator) bool) {}
