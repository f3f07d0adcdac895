// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package colexecop defines the contract of executable columnar operators
// and the helpers that implement its common parts.
package colexecop

import (
	"context"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/vexec/pkg/col/coldata"
	"github.com/cockroachdb/vexec/pkg/sql/execinfra"
)

// Outcome describes the result of a call to Operator.Next. A failure is not
// an outcome: it is reported through the error return value.
type Outcome int

const (
	// OK means that the returned batch has the schema that was previously
	// announced.
	OK Outcome = iota
	// OKNewSchema means that the returned batch, possibly empty, announces a
	// new schema. Every operator announces its schema once before OK.
	OKNewSchema
	// NotYet means that the operator cannot make progress right now. The
	// caller must call Next again later and must not treat this as the end
	// of the stream.
	NotYet
	// None means that the operator is exhausted.
	None
)

func (o Outcome) String() string {
	switch o {
	case OK:
		return "OK"
	case OKNewSchema:
		return "OK_NEW_SCHEMA"
	case NotYet:
		return "NOT_YET"
	case None:
		return "NONE"
	}
	return "UNKNOWN"
}

// SafeValue implements redact.SafeValue.
func (Outcome) SafeValue() {}

// HasBatch returns whether a batch returned with the outcome carries data or
// a schema.
func (o Outcome) HasBatch() bool {
	return o == OK || o == OKNewSchema
}

// Operator is a column vector operator that produces a Batch as output.
type Operator interface {
	execinfra.OpNode

	// Schema returns the schema of the batches produced by the operator. It
	// can change only with an OKNewSchema outcome.
	Schema() coldata.Schema

	// Init initializes this operator and its inputs. The context is used for
	// every subsequent Next call. Init must be called exactly once before
	// Next.
	Init(ctx context.Context) error

	// Next returns the next batch from this operator. The batch is only valid
	// until the next call to Next; operators that need to keep it must copy
	// it. When the outcome is NotYet or None, the batch is a zero-length
	// batch. A non-nil error is terminal; the operator releases its buffered
	// batches before returning it.
	//
	// Calling Next may invalidate the contents of the last Batch returned by
	// Next.
	Next() (coldata.Batch, Outcome, error)

	// Kill stops the operator: it forwards the kill to its inputs, drops the
	// batches it buffers, and makes every later Next return None. Kill may be
	// called from a different goroutine than the one calling Next.
	Kill()

	// Close releases the resources of the operator and its inputs. Close is
	// idempotent.
	Close(ctx context.Context) error
}

// ZeroInputNode is an execinfra.OpNode with no inputs.
type ZeroInputNode struct{}

// ChildCount implements the execinfra.OpNode interface.
func (ZeroInputNode) ChildCount(verbose bool) int {
	return 0
}

// Child implements the execinfra.OpNode interface.
func (ZeroInputNode) Child(nth int, verbose bool) execinfra.OpNode {
	panic(errors.AssertionFailedf("invalid index %d", nth))
}

// NewOneInputNode returns an execinfra.OpNode with a single Operator input.
func NewOneInputNode(input Operator) OneInputNode {
	return OneInputNode{Input: input}
}

// OneInputNode is an execinfra.OpNode with a single Operator input.
type OneInputNode struct {
	Input Operator
}

// ChildCount implements the execinfra.OpNode interface.
func (OneInputNode) ChildCount(verbose bool) int {
	return 1
}

// Child implements the execinfra.OpNode interface.
func (n OneInputNode) Child(nth int, verbose bool) execinfra.OpNode {
	if nth == 0 {
		return n.Input
	}
	panic(errors.AssertionFailedf("invalid index %d", nth))
}

// NewTwoInputNode returns an execinfra.OpNode with two Operator inputs.
func NewTwoInputNode(inputOne, inputTwo Operator) TwoInputNode {
	return TwoInputNode{InputOne: inputOne, InputTwo: inputTwo}
}

// TwoInputNode is an execinfra.OpNode with two Operator inputs.
type TwoInputNode struct {
	InputOne Operator
	InputTwo Operator
}

// ChildCount implements the execinfra.OpNode interface.
func (TwoInputNode) ChildCount(verbose bool) int {
	return 2
}

// Child implements the execinfra.OpNode interface.
func (n *TwoInputNode) Child(nth int, verbose bool) execinfra.OpNode {
	switch nth {
	case 0:
		return n.InputOne
	case 1:
		return n.InputTwo
	}
	panic(errors.AssertionFailedf("invalid index %d", nth))
}

// InitHelper is a simple struct that helps Operators implement Init.
type InitHelper struct {
	// Ctx is the context passed on the first Init call.
	Ctx context.Context
}

// Init does the necessary initialization of the helper. It returns true if
// this is the first Init call.
func (h *InitHelper) Init(ctx context.Context) bool {
	if h.Ctx != nil {
		return false
	}
	if ctx == nil {
		panic(errors.AssertionFailedf("nil context passed to Init"))
	}
	h.Ctx = ctx
	return true
}

// EnsureCtx returns the context which this component was initialized with, or
// the background context if not initialized.
func (h *InitHelper) EnsureCtx() context.Context {
	if h.Ctx == nil {
		return context.Background()
	}
	return h.Ctx
}

// CloserHelper is a simple helper that helps Operators implement Close. If
// close returns true, resources may be released, if it returns false,
// resources were already released.
type CloserHelper struct {
	closed bool
}

// Close marks the CloserHelper as closed. If true is returned, this is the
// first call to Close.
func (c *CloserHelper) Close() bool {
	if c.closed {
		return false
	}
	c.closed = true
	return true
}

// Closed returns whether Close has been called.
func (c *CloserHelper) Closed() bool {
	return c.closed
}

// KillHelper records whether an operator was killed.
type KillHelper struct {
	killed int32
}

// MarkKilled records the kill. It returns true if this is the first call.
func (k *KillHelper) MarkKilled() bool {
	return atomic.CompareAndSwapInt32(&k.killed, 0, 1)
}

// Killed returns whether MarkKilled has been called.
func (k *KillHelper) Killed() bool {
	return atomic.LoadInt32(&k.killed) == 1
}

// OneInputInitCloserHelper is a utility struct that implements Init, Kill and
// Close for operators with a single input. Operators embedding it that buffer
// batches should override Kill and Close and call into the helper.
type OneInputInitCloserHelper struct {
	OneInputNode
	InitHelper
	CloserHelper
	KillHelper
}

// MakeOneInputInitCloserHelper returns a new OneInputInitCloserHelper.
func MakeOneInputInitCloserHelper(input Operator) OneInputInitCloserHelper {
	return OneInputInitCloserHelper{OneInputNode: NewOneInputNode(input)}
}

// Init initializes the input exactly once.
func (h *OneInputInitCloserHelper) Init(ctx context.Context) error {
	if !h.InitHelper.Init(ctx) {
		return nil
	}
	return h.Input.Init(ctx)
}

// Kill forwards the kill to the input and then marks the operator killed.
func (h *OneInputInitCloserHelper) Kill() {
	h.Input.Kill()
	h.MarkKilled()
}

// Close closes the input exactly once.
func (h *OneInputInitCloserHelper) Close(ctx context.Context) error {
	if !h.CloserHelper.Close() {
		return nil
	}
	return h.Input.Close(ctx)
}

// Schema returns the schema of the input.
func (h *OneInputInitCloserHelper) Schema() coldata.Schema {
	return h.Input.Schema()
}

// InitAll initializes every operator, stopping at the first error.
func InitAll(ctx context.Context, ops ...Operator) error {
	for _, op := range ops {
		if err := op.Init(ctx); err != nil {
			return err
		}
	}
	return nil
}

// KillAll kills every operator in order.
func KillAll(ops ...Operator) {
	for _, op := range ops {
		op.Kill()
	}
}

// CloseAll closes every operator, even if some fail, and returns the
// combination of their errors.
func CloseAll(ctx context.Context, ops ...Operator) error {
	var retErr error
	for _, op := range ops {
		retErr = errors.CombineErrors(retErr, op.Close(ctx))
	}
	return retErr
}

// Walk calls fn on op and on all its descendants, parents first.
func Walk(op execinfra.OpNode, fn func(execinfra.OpNode)) {
	fn(op)
	for i := 0; i < op.ChildCount(true /* verbose */); i++ {
		Walk(op.Child(i, true /* verbose */), fn)
	}
}
