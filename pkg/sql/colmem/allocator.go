// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package colmem implements the memory contract between operators and the
// flow's BytesMonitor. Every operator owns one Allocator; everything acquired
// through it is released exactly once, either explicitly or by Close.
package colmem

import (
	"context"
	"unsafe"

	"github.com/cockroachdb/apd/v3"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/vexec/pkg/col/coldata"
	"github.com/cockroachdb/vexec/pkg/col/typeconv"
	"github.com/cockroachdb/vexec/pkg/sql/execerror"
	"github.com/cockroachdb/vexec/pkg/sql/types"
	"github.com/cockroachdb/vexec/pkg/util/mon"
)

// Buffer is a scratch allocation handed out by Allocator.Acquire.
type Buffer struct {
	buf      []byte
	released bool
}

// Bytes returns the backing memory of the buffer.
func (b *Buffer) Bytes() []byte { return b.buf }

// Len returns the size of the buffer.
func (b *Buffer) Len() int { return len(b.buf) }

// Allocator is a memory management tool for vectorized components. It
// provides new batches and scratch buffers and accounts for their memory
// against a BoundAccount drawn from a shared monitor.
//
// An Allocator is not thread-safe; concurrent use of one monitor by many
// allocators is.
type Allocator struct {
	ctx context.Context
	acc mon.BoundAccount

	buffers map[*Buffer]struct{}
	batches map[coldata.Batch]int64
	// other tracks memory registered through AdjustMemoryUsage.
	other  int64
	closed bool
}

// NewAllocator constructs a new Allocator drawing from the given monitor.
func NewAllocator(ctx context.Context, m *mon.BytesMonitor) *Allocator {
	return &Allocator{
		ctx:     ctx,
		acc:     m.MakeBoundAccount(),
		buffers: make(map[*Buffer]struct{}),
		batches: make(map[coldata.Batch]int64),
	}
}

func (a *Allocator) grow(ctx context.Context, sz int64, what string) error {
	if a.closed {
		return errors.AssertionFailedf("allocator used after Close")
	}
	if err := a.acc.Grow(ctx, sz); err != nil {
		return execerror.NewAllocationError(err, what)
	}
	return nil
}

// Acquire reserves and returns a buffer of sizeHint bytes. The buffer must be
// passed to Release exactly once, unless the allocator is closed first.
func (a *Allocator) Acquire(ctx context.Context, sizeHint int64) (*Buffer, error) {
	if sizeHint < 0 {
		return nil, errors.AssertionFailedf("negative size hint %d", sizeHint)
	}
	if err := a.grow(ctx, sizeHint, "acquiring buffer"); err != nil {
		return nil, err
	}
	b := &Buffer{buf: make([]byte, sizeHint)}
	a.buffers[b] = struct{}{}
	return b, nil
}

// Release returns a buffer obtained from Acquire. Releasing a buffer twice,
// or one that this allocator did not hand out, is an assertion failure.
func (a *Allocator) Release(ctx context.Context, b *Buffer) error {
	if b == nil {
		return nil
	}
	if b.released {
		return errors.AssertionFailedf("buffer of %d bytes released twice", len(b.buf))
	}
	if _, ok := a.buffers[b]; !ok {
		return errors.AssertionFailedf("buffer of %d bytes not owned by this allocator", len(b.buf))
	}
	delete(a.buffers, b)
	b.released = true
	a.acc.Shrink(ctx, int64(len(b.buf)))
	b.buf = nil
	return nil
}

// NewMemBatch allocates a new in-memory batch with the given schema and
// capacity, registering its memory with the account.
func (a *Allocator) NewMemBatch(schema coldata.Schema, capacity int) (coldata.Batch, error) {
	if err := typeconv.AreTypesSupported(schema.Types()); err != nil {
		return nil, err
	}
	sz := EstimateBatchSizeBytes(schema.Types(), capacity)
	if err := a.grow(a.ctx, sz, "allocating batch"); err != nil {
		return nil, err
	}
	b := coldata.NewMemBatchWithCapacity(schema, capacity)
	a.batches[b] = sz
	return b, nil
}

// RetainBatch registers the variable-size memory of a batch that was not
// allocated by this allocator, such as a copy handed over by another
// component. The batch is subsequently released by ReleaseBatch or Close.
func (a *Allocator) RetainBatch(b coldata.Batch) error {
	if _, ok := a.batches[b]; ok {
		return nil
	}
	sz := EstimateBatchSizeBytes(b.Schema().Types(), b.Capacity()) + varSizeFootprint(b.ColVecs())
	if err := a.grow(a.ctx, sz, "retaining batch"); err != nil {
		return err
	}
	a.batches[b] = sz
	return nil
}

// ReleaseBatch releases the memory registered for the batch. Releasing a
// batch that is not registered is a no-op.
func (a *Allocator) ReleaseBatch(b coldata.Batch) {
	sz, ok := a.batches[b]
	if !ok {
		return
	}
	delete(a.batches, b)
	a.acc.Shrink(a.ctx, sz)
}

// PerformOperation executes 'operation' (that somehow modifies 'destVecs')
// and updates the memory account accordingly. It should be used by
// operations that copy variable-length values, such as bytes, into vectors
// allocated by this allocator.
func (a *Allocator) PerformOperation(destVecs []coldata.Vec, operation func()) error {
	before := varSizeFootprint(destVecs)
	operation()
	after := varSizeFootprint(destVecs)
	return a.AdjustMemoryUsage(after - before)
}

// AdjustMemoryUsage adjusts the number of bytes currently allocated through
// this allocator by delta.
func (a *Allocator) AdjustMemoryUsage(delta int64) error {
	switch {
	case delta > 0:
		if err := a.grow(a.ctx, delta, "adjusting memory usage"); err != nil {
			return err
		}
	case delta < 0:
		if -delta > a.other {
			delta = -a.other
		}
		a.acc.Shrink(a.ctx, -delta)
	}
	a.other += delta
	return nil
}

// Used returns the number of bytes currently allocated through this
// allocator.
func (a *Allocator) Used() int64 {
	return a.acc.Used()
}

// Outstanding returns the number of buffers and batches that have not been
// released yet.
func (a *Allocator) Outstanding() int {
	return len(a.buffers) + len(a.batches)
}

// ReleaseAll releases every buffer and batch still held. The allocator stays
// usable.
func (a *Allocator) ReleaseAll(ctx context.Context) {
	for b := range a.buffers {
		b.released = true
		b.buf = nil
		delete(a.buffers, b)
	}
	for b := range a.batches {
		delete(a.batches, b)
	}
	a.other = 0
	a.acc.Clear(ctx)
}

// Close releases everything still held and detaches the allocator from the
// monitor. Close is idempotent.
func (a *Allocator) Close(ctx context.Context) {
	if a.closed {
		return
	}
	a.ReleaseAll(ctx)
	a.acc.Close(ctx)
	a.closed = true
}

const (
	sizeOfBool    = int64(unsafe.Sizeof(true))
	sizeOfInt64   = int64(unsafe.Sizeof(int64(0)))
	sizeOfFloat64 = int64(unsafe.Sizeof(float64(0)))
	sizeOfDecimal = int64(unsafe.Sizeof(apd.Decimal{}))
	sizeOfSlice   = int64(unsafe.Sizeof([]byte(nil)))
)

// EstimateBatchSizeBytes returns an estimated amount of bytes needed to store
// a batch in memory that has column types vecTypes. Variable-length values
// are not included.
func EstimateBatchSizeBytes(vecTypes []*types.T, batchLength int) int64 {
	if batchLength == 0 {
		return 0
	}
	var acc int64
	for _, t := range vecTypes {
		switch typeconv.CanonicalFamily(t) {
		case types.BoolFamily:
			acc += sizeOfBool
		case types.IntFamily:
			acc += sizeOfInt64
		case types.FloatFamily:
			acc += sizeOfFloat64
		case types.DecimalFamily:
			acc += sizeOfDecimal
		case types.BytesFamily:
			acc += sizeOfSlice
		}
	}
	nullsSize := int64((batchLength-1)/64+1) * 8 * int64(len(vecTypes))
	return acc*int64(batchLength) + nullsSize
}

// varSizeFootprint returns the memory held by variable-length values of the
// vectors.
func varSizeFootprint(vecs []coldata.Vec) int64 {
	var sz int64
	for _, v := range vecs {
		if v.CanonicalTypeFamily() != types.BytesFamily {
			continue
		}
		for _, b := range v.Bytes() {
			sz += int64(cap(b))
		}
	}
	return sz
}
