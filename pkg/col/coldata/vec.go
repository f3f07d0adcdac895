// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package coldata

import (
	"fmt"

	"github.com/cockroachdb/apd/v3"
	"github.com/cockroachdb/vexec/pkg/col/typeconv"
	"github.com/cockroachdb/vexec/pkg/sql/types"
)

// Vec is an interface that represents a column vector that's accessible by
// Go native types.
type Vec interface {
	// Type returns the type of data stored in this Vec.
	Type() *types.T
	// CanonicalTypeFamily returns the canonical type family of data stored in
	// this Vec.
	CanonicalTypeFamily() types.Family

	// Bool returns a bool list.
	Bool() []bool
	// Int64 returns an int64 slice. All integer widths share it.
	Int64() []int64
	// Float64 returns a float64 slice.
	Float64() []float64
	// Bytes returns a [][]byte slice. STRING and BYTES share it.
	Bytes() [][]byte
	// Decimal returns an apd.Decimal slice.
	Decimal() []apd.Decimal

	// Col returns the raw, typeless backing storage for this Vec.
	Col() interface{}

	// Nulls returns the nulls vector for the column.
	Nulls() *Nulls
	// MaybeHasNulls returns true if the column possibly has any null values.
	MaybeHasNulls() bool

	// Length returns the number of values set in the vector. It always equals
	// the length of the batch that owns the vector.
	Length() int
	// SetLength sets the length. The batch is responsible for calling it.
	SetLength(int)
	// Capacity returns the maximum number of values that can be stored.
	Capacity() int

	// Copy copies src[SrcStartIdx:SrcEndIdx] into this Vec starting at
	// DestIdx, nulls included. Both vectors must share the canonical type
	// family.
	Copy(args CopySliceArgs)
	// CopyValue copies the single value src[srcIdx] into position destIdx.
	CopyValue(destIdx int, src Vec, srcIdx int)

	// Get returns the value at index i as a Go value, or nil for NULL. It is
	// not suitable for calling in hot paths.
	Get(i int) interface{}
	// Set sets the value at index i from a Go value; a nil value sets NULL.
	Set(i int, v interface{})
}

// CopySliceArgs represents the arguments passed in to Vec.Copy.
type CopySliceArgs struct {
	Src         Vec
	DestIdx     int
	SrcStartIdx int
	SrcEndIdx   int
}

// memColumn is a simple pass-through implementation of Vec that just casts
// a generic interface{} to the proper type when requested.
type memColumn struct {
	t                   *types.T
	canonicalTypeFamily types.Family
	col                 interface{}
	nulls               Nulls
	length              int
}

var _ Vec = &memColumn{}

// NewVec returns a new Vec of type t with the given capacity.
func NewVec(t *types.T, capacity int) Vec {
	m := &memColumn{
		t:                   t,
		canonicalTypeFamily: typeconv.CanonicalFamily(t),
		nulls:               NewNulls(capacity),
	}
	switch m.canonicalTypeFamily {
	case types.BoolFamily:
		m.col = make([]bool, capacity)
	case types.IntFamily:
		m.col = make([]int64, capacity)
	case types.FloatFamily:
		m.col = make([]float64, capacity)
	case types.DecimalFamily:
		m.col = make([]apd.Decimal, capacity)
	case types.BytesFamily:
		m.col = make([][]byte, capacity)
	default:
		panic(fmt.Sprintf("unhandled type %s", t))
	}
	return m
}

func (m *memColumn) Type() *types.T                    { return m.t }
func (m *memColumn) CanonicalTypeFamily() types.Family { return m.canonicalTypeFamily }
func (m *memColumn) Bool() []bool                      { return m.col.([]bool) }
func (m *memColumn) Int64() []int64                    { return m.col.([]int64) }
func (m *memColumn) Float64() []float64                { return m.col.([]float64) }
func (m *memColumn) Bytes() [][]byte                   { return m.col.([][]byte) }
func (m *memColumn) Decimal() []apd.Decimal            { return m.col.([]apd.Decimal) }
func (m *memColumn) Col() interface{}                  { return m.col }
func (m *memColumn) Nulls() *Nulls                     { return &m.nulls }
func (m *memColumn) MaybeHasNulls() bool               { return m.nulls.MaybeHasNulls() }
func (m *memColumn) Length() int                       { return m.length }

func (m *memColumn) SetLength(n int) {
	if n > m.Capacity() {
		panic(fmt.Sprintf("length %d exceeds capacity %d", n, m.Capacity()))
	}
	m.length = n
}

func (m *memColumn) Capacity() int {
	switch c := m.col.(type) {
	case []bool:
		return len(c)
	case []int64:
		return len(c)
	case []float64:
		return len(c)
	case []apd.Decimal:
		return len(c)
	case [][]byte:
		return len(c)
	}
	return 0
}

func (m *memColumn) Copy(args CopySliceArgs) {
	if args.SrcEndIdx <= args.SrcStartIdx {
		return
	}
	if args.Src.CanonicalTypeFamily() != m.canonicalTypeFamily {
		panic(fmt.Sprintf("cannot copy %s into %s", args.Src.Type(), m.t))
	}
	n := args.SrcEndIdx - args.SrcStartIdx
	switch m.canonicalTypeFamily {
	case types.BoolFamily:
		copy(m.Bool()[args.DestIdx:], args.Src.Bool()[args.SrcStartIdx:args.SrcEndIdx])
	case types.IntFamily:
		copy(m.Int64()[args.DestIdx:], args.Src.Int64()[args.SrcStartIdx:args.SrcEndIdx])
	case types.FloatFamily:
		copy(m.Float64()[args.DestIdx:], args.Src.Float64()[args.SrcStartIdx:args.SrcEndIdx])
	case types.DecimalFamily:
		dst, src := m.Decimal(), args.Src.Decimal()
		for i := 0; i < n; i++ {
			dst[args.DestIdx+i].Set(&src[args.SrcStartIdx+i])
		}
	case types.BytesFamily:
		dst, src := m.Bytes(), args.Src.Bytes()
		for i := 0; i < n; i++ {
			// Values are deep-copied so that the destination never aliases
			// memory owned by the source batch.
			dst[args.DestIdx+i] = append(dst[args.DestIdx+i][:0], src[args.SrcStartIdx+i]...)
		}
	}
	m.nulls.Copy(args.Src.Nulls(), args.DestIdx, args.SrcStartIdx, n)
}

func (m *memColumn) CopyValue(destIdx int, src Vec, srcIdx int) {
	if src.Nulls().NullAt(srcIdx) {
		m.nulls.SetNull(destIdx)
		return
	}
	m.nulls.UnsetNull(destIdx)
	switch m.canonicalTypeFamily {
	case types.BoolFamily:
		m.Bool()[destIdx] = src.Bool()[srcIdx]
	case types.IntFamily:
		m.Int64()[destIdx] = src.Int64()[srcIdx]
	case types.FloatFamily:
		m.Float64()[destIdx] = src.Float64()[srcIdx]
	case types.DecimalFamily:
		m.Decimal()[destIdx].Set(&src.Decimal()[srcIdx])
	case types.BytesFamily:
		dst := m.Bytes()
		dst[destIdx] = append(dst[destIdx][:0], src.Bytes()[srcIdx]...)
	}
}

func (m *memColumn) Get(i int) interface{} {
	if m.nulls.NullAt(i) {
		return nil
	}
	switch m.canonicalTypeFamily {
	case types.BoolFamily:
		return m.Bool()[i]
	case types.IntFamily:
		return m.Int64()[i]
	case types.FloatFamily:
		return m.Float64()[i]
	case types.DecimalFamily:
		return m.Decimal()[i].String()
	case types.BytesFamily:
		if m.t.Family() == types.StringFamily {
			return string(m.Bytes()[i])
		}
		return m.Bytes()[i]
	}
	return nil
}

func (m *memColumn) Set(i int, v interface{}) {
	if v == nil {
		m.nulls.SetNull(i)
		return
	}
	m.nulls.UnsetNull(i)
	switch m.canonicalTypeFamily {
	case types.BoolFamily:
		m.Bool()[i] = v.(bool)
	case types.IntFamily:
		switch t := v.(type) {
		case int:
			m.Int64()[i] = int64(t)
		case int16:
			m.Int64()[i] = int64(t)
		case int32:
			m.Int64()[i] = int64(t)
		case int64:
			m.Int64()[i] = t
		default:
			panic(fmt.Sprintf("cannot set %T in %s vector", v, m.t))
		}
	case types.FloatFamily:
		switch t := v.(type) {
		case float32:
			m.Float64()[i] = float64(t)
		case float64:
			m.Float64()[i] = t
		default:
			panic(fmt.Sprintf("cannot set %T in %s vector", v, m.t))
		}
	case types.DecimalFamily:
		switch t := v.(type) {
		case apd.Decimal:
			m.Decimal()[i].Set(&t)
		case *apd.Decimal:
			m.Decimal()[i].Set(t)
		case string:
			if _, _, err := m.Decimal()[i].SetString(t); err != nil {
				panic(err)
			}
		default:
			panic(fmt.Sprintf("cannot set %T in %s vector", v, m.t))
		}
	case types.BytesFamily:
		dst := m.Bytes()
		switch t := v.(type) {
		case string:
			dst[i] = append(dst[i][:0], t...)
		case []byte:
			dst[i] = append(dst[i][:0], t...)
		default:
			panic(fmt.Sprintf("cannot set %T in %s vector", v, m.t))
		}
	}
}
