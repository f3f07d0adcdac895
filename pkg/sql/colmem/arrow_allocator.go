// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package colmem

import (
	"github.com/apache/arrow/go/v11/arrow/memory"
	"github.com/cockroachdb/vexec/pkg/util/syncutil"
)

// ArrowAllocator implements arrow's memory.Allocator on top of an Allocator,
// so that buffers allocated by arrow-based readers are accounted for. Arrow
// allocations cannot fail, so the first accounting failure is recorded and
// surfaced through Err; callers check it after each decoding step.
type ArrowAllocator struct {
	mu struct {
		syncutil.Mutex
		err error
	}
	a   *Allocator
	mem memory.Allocator
}

var _ memory.Allocator = &ArrowAllocator{}

// NewArrowAllocator returns an arrow allocator accounted by a.
func NewArrowAllocator(a *Allocator) *ArrowAllocator {
	return &ArrowAllocator{a: a, mem: memory.NewGoAllocator()}
}

func (aa *ArrowAllocator) adjust(delta int64) {
	aa.mu.Lock()
	defer aa.mu.Unlock()
	if err := aa.a.AdjustMemoryUsage(delta); err != nil && aa.mu.err == nil {
		aa.mu.err = err
	}
}

// Allocate implements memory.Allocator.
func (aa *ArrowAllocator) Allocate(size int) []byte {
	aa.adjust(int64(size))
	return aa.mem.Allocate(size)
}

// Reallocate implements memory.Allocator.
func (aa *ArrowAllocator) Reallocate(size int, b []byte) []byte {
	aa.adjust(int64(size - len(b)))
	return aa.mem.Reallocate(size, b)
}

// Free implements memory.Allocator.
func (aa *ArrowAllocator) Free(b []byte) {
	aa.adjust(-int64(len(b)))
	aa.mem.Free(b)
}

// Err returns the first accounting failure, if any.
func (aa *ArrowAllocator) Err() error {
	aa.mu.Lock()
	defer aa.mu.Unlock()
	return aa.mu.err
}
