// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package coldata

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/cockroachdb/errors"
)

// Batch is the type that columnar operators receive and produce. It
// represents a set of column vectors (partial data columns) of equal length
// together with the schema describing them.
type Batch interface {
	// Schema returns the schema of the batch.
	Schema() Schema
	// Length returns the number of values in the columns in the batch.
	Length() int
	// SetLength sets the number of values in the columns in the batch. Every
	// vector's length is updated as well.
	SetLength(int)
	// Capacity returns the maximum number of values that can be stored in the
	// columns in the batch.
	Capacity() int
	// Width returns the number of columns in the batch.
	Width() int
	// ColVec returns the ith Vec in this batch.
	ColVec(i int) Vec
	// ColVecs returns all of the underlying Vecs in this batch.
	ColVecs() []Vec
	// Reset prepares the batch for reuse: the length is set to zero and all
	// null bits are cleared.
	Reset()
	// String returns a pretty representation of this batch.
	String() string
}

// defaultBatchSize is the size of batches that is used in the non-test setting.
const defaultBatchSize = 1024

// MaxBatchSize is the maximum acceptable size of batches.
const MaxBatchSize = 4096

var batchSize int64 = defaultBatchSize

// BatchSize is the maximum number of tuples that fit in a column batch.
func BatchSize() int {
	return int(atomic.LoadInt64(&batchSize))
}

// SetBatchSizeForTests modifies batchSize variable. It should only be used in
// tests. batch sizes greater than MaxBatchSize will return an error.
func SetBatchSizeForTests(newBatchSize int) error {
	if newBatchSize > MaxBatchSize || newBatchSize < 1 {
		return errors.Errorf("batch size %d out of range [1, %d]", newBatchSize, MaxBatchSize)
	}
	atomic.SwapInt64(&batchSize, int64(newBatchSize))
	return nil
}

// ResetBatchSizeForTests resets the batchSize variable to the default batch
// size. It should only be used in tests.
func ResetBatchSizeForTests() {
	atomic.SwapInt64(&batchSize, defaultBatchSize)
}

// NewMemBatchWithCapacity allocates a new in-memory Batch with the given
// schema and capacity. Memory accounting is done by colmem.Allocator; this
// constructor is for callers that account for the batch themselves.
func NewMemBatchWithCapacity(schema Schema, capacity int) Batch {
	b := &MemBatch{schema: schema, capacity: capacity}
	b.b = make([]Vec, len(schema))
	for i := range schema {
		b.b[i] = NewVec(schema[i].Type, capacity)
	}
	return b
}

// ZeroBatch is a schema-less, immutable batch with zero length. It is
// returned by operators that have nothing left to produce.
var ZeroBatch = &zeroBatch{MemBatch: &MemBatch{}}

type zeroBatch struct {
	*MemBatch
}

var _ Batch = &zeroBatch{}

func (*zeroBatch) Length() int { return 0 }

func (*zeroBatch) SetLength(int) {
	panic("length should not be changed on zero batch")
}

func (*zeroBatch) Reset() {}

// MemBatch is an in-memory implementation of Batch.
type MemBatch struct {
	schema   Schema
	length   int
	capacity int
	b        []Vec
}

var _ Batch = &MemBatch{}

// Schema implements the Batch interface.
func (m *MemBatch) Schema() Schema { return m.schema }

// Length implements the Batch interface.
func (m *MemBatch) Length() int { return m.length }

// Capacity implements the Batch interface.
func (m *MemBatch) Capacity() int { return m.capacity }

// Width implements the Batch interface.
func (m *MemBatch) Width() int { return len(m.b) }

// ColVec implements the Batch interface.
func (m *MemBatch) ColVec(i int) Vec { return m.b[i] }

// ColVecs implements the Batch interface.
func (m *MemBatch) ColVecs() []Vec { return m.b }

// SetLength implements the Batch interface.
func (m *MemBatch) SetLength(length int) {
	if length > m.capacity {
		panic(fmt.Sprintf("length %d exceeds capacity %d", length, m.capacity))
	}
	m.length = length
	for _, v := range m.b {
		v.SetLength(length)
	}
}

// Reset implements the Batch interface.
func (m *MemBatch) Reset() {
	m.SetLength(0)
	for _, v := range m.b {
		v.Nulls().UnsetNulls()
	}
}

// String implements the Batch interface.
func (m *MemBatch) String() string {
	if m.Length() == 0 {
		return "[zero-length batch]"
	}
	var b strings.Builder
	for i := 0; i < m.length; i++ {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(RowString(m, i))
	}
	return b.String()
}

// RowString formats the row at index i of the batch as "[v1 v2 ...]".
func RowString(b Batch, i int) string {
	var sb strings.Builder
	sb.WriteByte('[')
	for j, v := range b.ColVecs() {
		if j > 0 {
			sb.WriteByte(' ')
		}
		switch val := v.Get(i).(type) {
		case nil:
			sb.WriteString("NULL")
		case string:
			sb.WriteString("'" + val + "'")
		case []byte:
			fmt.Fprintf(&sb, "%q", val)
		default:
			fmt.Fprintf(&sb, "%v", val)
		}
	}
	sb.WriteByte(']')
	return sb.String()
}

// Compact keeps, in place and in order, the rows i of b for which keep(i)
// returns true, and returns the number of rows removed.
func Compact(b Batch, keep func(i int) bool) int {
	n := b.Length()
	vecs := b.ColVecs()
	out := 0
	for i := 0; i < n; i++ {
		if !keep(i) {
			continue
		}
		if out != i {
			for _, v := range vecs {
				v.CopyValue(out, v, i)
			}
		}
		out++
	}
	if out != n {
		b.SetLength(out)
	}
	return n - out
}
