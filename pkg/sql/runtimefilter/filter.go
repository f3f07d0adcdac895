// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package runtimefilter implements the predicates that a join publishes to
// the scans below it once its build side is known. A Filter is
// immutable after Build and may be shared between goroutines.
package runtimefilter

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/cockroachdb/apd/v3"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/redact"
	"github.com/cockroachdb/vexec/pkg/col/coldata"
	"github.com/cockroachdb/vexec/pkg/col/typeconv"
	"github.com/cockroachdb/vexec/pkg/sql/types"
	"github.com/google/uuid"
	"github.com/spaolacci/murmur3"
)

// numHashes is the number of bloom hashes per value.
const numHashes = 3

// DefaultNumBits is the bloom filter size used when the caller passes zero.
const DefaultNumBits = 1 << 16

// Filter is a bloom filter over the values of a scan column, optionally
// narrowed by the min/max bounds of integer columns.
type Filter struct {
	// ID identifies the filter; readers apply a given ID at most once.
	ID uuid.UUID
	// SourceOperator is the ID of the operator that produced the filter.
	SourceOperator int32
	// Column is the name of the scan column the filter applies to.
	Column string

	family types.Family
	bits   []uint64
	count  int

	hasBounds bool
	min, max  int64
}

// Builder accumulates the build-side values of a Filter.
type Builder struct {
	f       Filter
	scratch []byte
}

// NewBuilder returns a Builder for a filter on column with values of
// type t. numBits is rounded up to a multiple of 64.
func NewBuilder(column string, t *types.T, numBits int) *Builder {
	if numBits <= 0 {
		numBits = DefaultNumBits
	}
	return &Builder{
		f: Filter{
			ID:     uuid.New(),
			Column: column,
			family: typeconv.CanonicalFamily(t),
			bits:   make([]uint64, (numBits+63)/64),
		},
	}
}

// Add inserts the first n values of vec. Nulls are skipped.
func (b *Builder) Add(vec coldata.Vec, n int) error {
	if fam := vec.CanonicalTypeFamily(); fam != b.f.family {
		return errors.AssertionFailedf(
			"runtime filter on %s cannot take values of type %s", b.f.family, vec.Type())
	}
	nulls := vec.Nulls()
	for i := 0; i < n; i++ {
		if nulls.NullAt(i) {
			continue
		}
		b.scratch = encodeValue(b.scratch[:0], vec, i)
		b.f.insert(b.scratch)
		if b.f.family == types.IntFamily {
			v := vec.Int64()[i]
			if !b.f.hasBounds {
				b.f.min, b.f.max, b.f.hasBounds = v, v, true
			} else if v < b.f.min {
				b.f.min = v
			} else if v > b.f.max {
				b.f.max = v
			}
		}
		b.f.count++
	}
	return nil
}

// Build returns the finished filter. The Builder must not be used afterwards.
func (b *Builder) Build(sourceOperator int32) *Filter {
	f := b.f
	f.SourceOperator = sourceOperator
	b.f.bits = nil
	return &f
}

// Count returns the number of non-null values the filter was built from.
func (f *Filter) Count() int { return f.count }

// Bounds returns the min/max of the build values of an integer filter.
func (f *Filter) Bounds() (min, max int64, ok bool) {
	return f.min, f.max, f.hasBounds
}

// MightContain returns false only if vec[i] is definitely not among the build
// values. Nulls never match. A vector of a different canonical family is
// never filtered.
func (f *Filter) MightContain(vec coldata.Vec, i int) bool {
	if vec.Nulls().NullAt(i) {
		return false
	}
	if vec.CanonicalTypeFamily() != f.family {
		return true
	}
	return f.mightContain(vec, i, nil)
}

func (f *Filter) mightContain(vec coldata.Vec, i int, scratch []byte) bool {
	if f.family == types.IntFamily && f.hasBounds {
		if v := vec.Int64()[i]; v < f.min || v > f.max {
			return false
		}
	}
	h1, h2 := murmur3.Sum128(encodeValue(scratch[:0], vec, i))
	m := uint64(len(f.bits) * 64)
	for k := uint64(0); k < numHashes; k++ {
		idx := (h1 + k*h2) % m
		if f.bits[idx/64]&(1<<(idx%64)) == 0 {
			return false
		}
	}
	return true
}

// Apply removes, in place, the rows of b whose filtered column cannot match and
// returns the number of rows removed. A batch without that column is
// left untouched.
func (f *Filter) Apply(b coldata.Batch) int {
	colIdx := b.Schema().ColumnIndex(f.Column)
	n := b.Length()
	if colIdx < 0 || n == 0 {
		return 0
	}
	vec := b.ColVec(colIdx)
	if vec.CanonicalTypeFamily() != f.family {
		return 0
	}
	var scratch []byte
	return coldata.Compact(b, func(i int) bool {
		return !vec.Nulls().NullAt(i) && f.mightContain(vec, i, scratch)
	})
}

func (f *Filter) insert(data []byte) {
	h1, h2 := murmur3.Sum128(data)
	m := uint64(len(f.bits) * 64)
	for k := uint64(0); k < numHashes; k++ {
		idx := (h1 + k*h2) % m
		f.bits[idx/64] |= 1 << (idx % 64)
	}
}

// SafeFormat implements the redact.SafeFormatter interface.
func (f *Filter) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Printf("runtime filter %s on %s from op %d (%d values)",
		redact.Safe(f.ID.String()), f.Column, redact.Safe(f.SourceOperator), redact.Safe(f.count))
}

func (f *Filter) String() string { return redact.StringWithoutMarkers(f) }

var _ fmt.Stringer = &Filter{}

// encodeValue appends the hashing key of vec[i] to buf. Equal values of one
// canonical family always produce equal keys.
func encodeValue(buf []byte, vec coldata.Vec, i int) []byte {
	switch vec.CanonicalTypeFamily() {
	case types.BoolFamily:
		if vec.Bool()[i] {
			return append(buf, 1)
		}
		return append(buf, 0)
	case types.IntFamily:
		return binary.LittleEndian.AppendUint64(buf, uint64(vec.Int64()[i]))
	case types.FloatFamily:
		v := vec.Float64()[i]
		if v == 0 {
			// -0 and +0 compare equal.
			v = 0
		}
		return binary.LittleEndian.AppendUint64(buf, math.Float64bits(v))
	case types.DecimalFamily:
		var d apd.Decimal
		d.Reduce(&vec.Decimal()[i])
		return append(buf, d.String()...)
	case types.BytesFamily:
		return append(buf, vec.Bytes()[i]...)
	}
	panic(errors.AssertionFailedf("unhandled family %s", vec.CanonicalTypeFamily()))
}
