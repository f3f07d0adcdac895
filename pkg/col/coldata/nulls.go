// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package coldata

import "math/bits"

// onesMask is a max uint64, where every bit is set to 1.
const onesMask = ^uint64(0)

// Nulls represents a list of potentially nullable values using a bitmap. A set
// bit at position i means that the i'th value is NULL.
type Nulls struct {
	nulls []uint64
	// maybeHasNulls is a conservative hint: when it is false, the bitmap is
	// guaranteed to be empty.
	maybeHasNulls bool
}

// NewNulls returns a new nulls vector, initialized with a length.
func NewNulls(n int) Nulls {
	return Nulls{nulls: make([]uint64, numWords(n))}
}

func numWords(n int) int {
	if n <= 0 {
		return 0
	}
	return (n-1)>>6 + 1
}

func (n *Nulls) ensure(i int) {
	if w := i >> 6; w >= len(n.nulls) {
		grown := make([]uint64, w+1)
		copy(grown, n.nulls)
		n.nulls = grown
	}
}

// MaybeHasNulls returns true if the column possibly has any null values, and
// returns false if the column definitely has no null values.
func (n *Nulls) MaybeHasNulls() bool {
	return n.maybeHasNulls
}

// NullAt returns true if the ith value of the column is null.
func (n *Nulls) NullAt(i int) bool {
	if !n.maybeHasNulls {
		return false
	}
	w := i >> 6
	if w >= len(n.nulls) {
		return false
	}
	return n.nulls[w]&(1<<(uint(i)&63)) != 0
}

// SetNull sets the ith value of the column to null.
func (n *Nulls) SetNull(i int) {
	n.ensure(i)
	n.maybeHasNulls = true
	n.nulls[i>>6] |= 1 << (uint(i) & 63)
}

// UnsetNull unsets the ith value of the column.
func (n *Nulls) UnsetNull(i int) {
	if w := i >> 6; w < len(n.nulls) {
		n.nulls[w] &^= 1 << (uint(i) & 63)
	}
}

// SetNullRange sets all the values in [start, end) to null.
func (n *Nulls) SetNullRange(start, end int) {
	if start >= end {
		return
	}
	n.ensure(end - 1)
	n.maybeHasNulls = true
	for i := start; i < end; {
		if i&63 == 0 && end-i >= 64 {
			n.nulls[i>>6] = onesMask
			i += 64
			continue
		}
		n.nulls[i>>6] |= 1 << (uint(i) & 63)
		i++
	}
}

// UnsetNullRange unsets all the values in [start, end).
func (n *Nulls) UnsetNullRange(start, end int) {
	if start >= end || !n.maybeHasNulls {
		return
	}
	if limit := len(n.nulls) << 6; end > limit {
		end = limit
	}
	for i := start; i < end; {
		if i&63 == 0 && end-i >= 64 {
			n.nulls[i>>6] = 0
			i += 64
			continue
		}
		n.nulls[i>>6] &^= 1 << (uint(i) & 63)
		i++
	}
}

// UnsetNulls sets the column to have no null values.
func (n *Nulls) UnsetNulls() {
	n.maybeHasNulls = false
	for i := range n.nulls {
		n.nulls[i] = 0
	}
}

// SetNulls sets the column to have only null values.
func (n *Nulls) SetNulls() {
	n.maybeHasNulls = true
	for i := range n.nulls {
		n.nulls[i] = onesMask
	}
}

// NullCount returns the number of nulls among the first length values.
func (n *Nulls) NullCount(length int) int {
	if !n.maybeHasNulls {
		return 0
	}
	count := 0
	full := length >> 6
	for w := 0; w < full && w < len(n.nulls); w++ {
		count += bits.OnesCount64(n.nulls[w])
	}
	for i := full << 6; i < length; i++ {
		if n.NullAt(i) {
			count++
		}
	}
	return count
}

// Copy copies count null bits from src, starting at srcStartIdx, into n
// starting at destStartIdx.
func (n *Nulls) Copy(src *Nulls, destStartIdx, srcStartIdx, count int) {
	if count <= 0 {
		return
	}
	if !src.MaybeHasNulls() {
		n.UnsetNullRange(destStartIdx, destStartIdx+count)
		return
	}
	for i := 0; i < count; i++ {
		if src.NullAt(srcStartIdx + i) {
			n.SetNull(destStartIdx + i)
		} else {
			n.UnsetNull(destStartIdx + i)
		}
	}
}

// swap swaps the null values at the argument indices.
func (n *Nulls) swap(i, j int) {
	iNull, jNull := n.NullAt(i), n.NullAt(j)
	if iNull == jNull {
		return
	}
	if iNull {
		n.UnsetNull(i)
		n.SetNull(j)
	} else {
		n.SetNull(i)
		n.UnsetNull(j)
	}
}

// Slice returns a new Nulls representing a slice of the current Nulls from
// [start, end).
func (n *Nulls) Slice(start, end int) Nulls {
	if end <= start {
		return NewNulls(0)
	}
	s := NewNulls(end - start)
	if !n.maybeHasNulls {
		return s
	}
	for i := start; i < end; i++ {
		if n.NullAt(i) {
			s.SetNull(i - start)
		}
	}
	return s
}
