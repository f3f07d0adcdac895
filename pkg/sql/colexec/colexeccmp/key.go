// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package colexeccmp

import (
	"github.com/cockroachdb/vexec/pkg/col/coldata"
	"github.com/cockroachdb/vexec/pkg/sql/execerror"
)

// KeyColumn pairs a left column with a right column of a multi-column key.
type KeyColumn struct {
	Left, Right int
	// NullsEqual makes two NULLs compare equal. Otherwise a pair of NULLs is
	// a mismatch, as under SQL equality.
	NullsEqual bool
}

type keyColumn struct {
	KeyColumn
	fn CompareFunc
}

// KeyComparator orders rows of two batches by a list of key columns, with
// NULL greater than every value.
type KeyComparator struct {
	cols []keyColumn
}

// MakeKeyComparator resolves the comparators of the key columns between the
// left and right schemas.
func MakeKeyComparator(left, right coldata.Schema, cols []KeyColumn) (KeyComparator, error) {
	k := KeyComparator{cols: make([]keyColumn, len(cols))}
	for i, c := range cols {
		if c.Left < 0 || c.Left >= len(left) || c.Right < 0 || c.Right >= len(right) {
			return KeyComparator{}, execerror.NewSetupErrorf(
				"key column (%d, %d) out of range for widths (%d, %d)", c.Left, c.Right, len(left), len(right))
		}
		fn, err := MakeCompareFunc(left[c.Left].Type, right[c.Right].Type)
		if err != nil {
			return KeyComparator{}, err
		}
		k.cols[i] = keyColumn{KeyColumn: c, fn: fn}
	}
	return k, nil
}

// Compare compares row li of l with row ri of r. It stops at the first key
// column that differs; zero means every key column matched.
func (k KeyComparator) Compare(l coldata.Batch, li int, r coldata.Batch, ri int) int {
	for i := range k.cols {
		c := &k.cols[i]
		lv, rv := l.ColVec(c.Left), r.ColVec(c.Right)
		lNull, rNull := lv.Nulls().NullAt(li), rv.Nulls().NullAt(ri)
		var res int
		switch {
		case lNull && rNull:
			if !c.NullsEqual {
				res = 1
			}
		case lNull:
			res = 1
		case rNull:
			res = -1
		default:
			res = c.fn(lv, li, rv, ri)
		}
		if res != 0 {
			return res
		}
	}
	return 0
}
