// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package coldata

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

// nulls3 is a nulls vector with every third value set to null.
var nulls3 Nulls

// nulls5 is a nulls vector with every fifth value set to null.
var nulls5 Nulls

// pos is a collection of interesting boundary indices to use in tests.
var pos = []int{0, 1, 63, 64, 65, BatchSize() - 1, BatchSize()}

func init() {
	nulls3 = NewNulls(BatchSize())
	nulls5 = NewNulls(BatchSize())
	for i := 0; i < BatchSize(); i++ {
		if i%3 == 0 {
			nulls3.SetNull(i)
		}
		if i%5 == 0 {
			nulls5.SetNull(i)
		}
	}
}

func TestNullAt(t *testing.T) {
	for i := 0; i < BatchSize(); i++ {
		require.Equal(t, i%3 == 0, nulls3.NullAt(i))
	}
	// Indices beyond the bitmap are never null.
	require.False(t, nulls3.NullAt(BatchSize()*4))
}

func TestSetNullRange(t *testing.T) {
	for _, start := range pos {
		for _, end := range pos {
			n := NewNulls(BatchSize())
			n.SetNullRange(start, end)
			for i := 0; i < BatchSize(); i++ {
				expected := i >= start && i < end
				require.Equal(t, expected, n.NullAt(i),
					"NullAt(%d) should be %t after SetNullRange(%d, %d)", i, expected, start, end)
			}
		}
	}
}

func TestUnsetNullRange(t *testing.T) {
	for _, start := range pos {
		for _, end := range pos {
			n := NewNulls(BatchSize())
			n.SetNulls()
			n.UnsetNullRange(start, end)
			for i := 0; i < BatchSize(); i++ {
				notExpected := i >= start && i < end
				require.NotEqual(t, notExpected, n.NullAt(i),
					"NullAt(%d) saw %t, expected %t, after UnsetNullRange(%d, %d)", i, n.NullAt(i), !notExpected, start, end)
			}
		}
	}
}

func TestSwapNulls(t *testing.T) {
	n := NewNulls(BatchSize())
	swapPos := []int{0, 1, 63, 64, 65, BatchSize() - 1}
	idxInSwapPos := func(idx int) bool {
		for _, p := range swapPos {
			if p == idx {
				return true
			}
		}
		return false
	}

	t.Run("TestSwapNullWithNull", func(t *testing.T) {
		for _, p := range swapPos {
			n.SetNull(p)
		}
		for _, i := range swapPos {
			for _, j := range swapPos {
				n.swap(i, j)
				for k := 0; k < BatchSize(); k++ {
					require.Equal(t, idxInSwapPos(k), n.NullAt(k),
						"after swapping NULLS (%d, %d), NullAt(%d) saw %t", i, j, k, n.NullAt(k))
				}
			}
		}
	})

	t.Run("TestSwapNullWithNotNull", func(t *testing.T) {
		n.UnsetNulls()
		swaps := map[int]int{
			0:  BatchSize() - 1,
			1:  62,
			2:  3,
			63: 65,
			68: 120,
		}
		idxInSwaps := func(idx int) bool {
			for k, v := range swaps {
				if idx == k || idx == v {
					return true
				}
			}
			return false
		}
		for _, j := range swaps {
			n.SetNull(j)
		}
		for i, j := range swaps {
			n.swap(i, j)
			require.Truef(t, n.NullAt(i), "after swapping not null and null (%d, %d), found not null at %d", i, j, i)
			require.Falsef(t, n.NullAt(j), "after swapping not null and null (%d, %d), found null at %d", i, j, j)
			for k := 0; k < BatchSize(); k++ {
				if idxInSwaps(k) {
					continue
				}
				require.Falsef(t, n.NullAt(k), "after swapping (%d, %d), NullAt(%d) saw true", i, j, k)
			}
		}
	})
}

func TestSetAndUnsetNulls(t *testing.T) {
	n := NewNulls(BatchSize())
	require.False(t, n.MaybeHasNulls())
	for i := 0; i < BatchSize(); i++ {
		require.False(t, n.NullAt(i))
	}
	n.SetNulls()
	require.Equal(t, BatchSize(), n.NullCount(BatchSize()))

	for i := 0; i < BatchSize(); i += 3 {
		n.UnsetNull(i)
	}
	for i := 0; i < BatchSize(); i++ {
		require.Equal(t, i%3 != 0, n.NullAt(i))
	}

	n.UnsetNulls()
	require.False(t, n.MaybeHasNulls())
	require.Zero(t, n.NullCount(BatchSize()))
}

func TestNullsCopy(t *testing.T) {
	for _, destStartIdx := range pos {
		for _, srcStartIdx := range pos {
			for _, srcEndIdx := range pos {
				if destStartIdx > srcStartIdx || srcStartIdx > srcEndIdx {
					continue
				}
				count := srcEndIdx - srcStartIdx
				name := fmt.Sprintf("destStartIdx=%d,srcStartIdx=%d,count=%d", destStartIdx, srcStartIdx, count)
				t.Run(name, func(t *testing.T) {
					n := nulls3.Slice(0, BatchSize())
					n.Copy(&nulls5, destStartIdx, srcStartIdx, count)
					for i := 0; i < destStartIdx; i++ {
						require.Equal(t, nulls3.NullAt(i), n.NullAt(i))
					}
					for i := 0; i < count; i++ {
						require.Equal(t, nulls5.NullAt(srcStartIdx+i), n.NullAt(destStartIdx+i),
							"n.NullAt(%d)", destStartIdx+i)
					}
				})
			}
		}
	}
}

func TestNullsCopyFromNoNulls(t *testing.T) {
	n := nulls3.Slice(0, BatchSize())
	empty := NewNulls(BatchSize())
	n.Copy(&empty, 0, 0, 64)
	for i := 0; i < 64; i++ {
		require.False(t, n.NullAt(i))
	}
	require.True(t, n.NullAt(66))
}

func TestSlice(t *testing.T) {
	for _, start := range pos {
		for _, end := range pos {
			n := nulls3.Slice(start, end)
			for i := 0; i < 64*len(n.nulls); i++ {
				expected := start+i < end && nulls3.NullAt(start+i)
				require.Equal(t, expected, n.NullAt(i),
					"expected nulls3.Slice(%d, %d).NullAt(%d) to be %t", start, end, i, expected)
			}
		}
	}
	// Ensure we haven't modified the receiver.
	for i := 0; i < BatchSize(); i++ {
		require.Equal(t, i%3 == 0, nulls3.NullAt(i))
	}
}
