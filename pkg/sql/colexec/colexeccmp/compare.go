// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package colexeccmp contains the value comparators shared by columnar
// operators. Comparators are chosen once per pair of column types and then
// called per row without any type switches.
package colexeccmp

import (
	"bytes"
	"math"

	"github.com/cockroachdb/apd/v3"
	"github.com/cockroachdb/vexec/pkg/col/coldata"
	"github.com/cockroachdb/vexec/pkg/col/typeconv"
	"github.com/cockroachdb/vexec/pkg/sql/execerror"
	"github.com/cockroachdb/vexec/pkg/sql/types"
)

// CompareFunc compares the non-null values l[li] and r[ri] and returns -1, 0
// or 1.
type CompareFunc func(l coldata.Vec, li int, r coldata.Vec, ri int) int

type familyPair struct {
	l, r types.Family
}

// comparators is keyed by the canonical families of both sides. Mixed numeric
// pairs compare after promotion to the wider representation.
var comparators = map[familyPair]CompareFunc{
	{types.BoolFamily, types.BoolFamily}: func(l coldata.Vec, li int, r coldata.Vec, ri int) int {
		return compareBools(l.Bool()[li], r.Bool()[ri])
	},
	{types.IntFamily, types.IntFamily}: func(l coldata.Vec, li int, r coldata.Vec, ri int) int {
		return compareInts(l.Int64()[li], r.Int64()[ri])
	},
	{types.FloatFamily, types.FloatFamily}: func(l coldata.Vec, li int, r coldata.Vec, ri int) int {
		return CompareFloats(l.Float64()[li], r.Float64()[ri])
	},
	{types.DecimalFamily, types.DecimalFamily}: func(l coldata.Vec, li int, r coldata.Vec, ri int) int {
		return l.Decimal()[li].Cmp(&r.Decimal()[ri])
	},
	{types.BytesFamily, types.BytesFamily}: func(l coldata.Vec, li int, r coldata.Vec, ri int) int {
		return bytes.Compare(l.Bytes()[li], r.Bytes()[ri])
	},
	{types.IntFamily, types.FloatFamily}: func(l coldata.Vec, li int, r coldata.Vec, ri int) int {
		return compareIntFloat(l.Int64()[li], r.Float64()[ri])
	},
	{types.FloatFamily, types.IntFamily}: func(l coldata.Vec, li int, r coldata.Vec, ri int) int {
		return -compareIntFloat(r.Int64()[ri], l.Float64()[li])
	},
	{types.IntFamily, types.DecimalFamily}: func(l coldata.Vec, li int, r coldata.Vec, ri int) int {
		var d apd.Decimal
		d.SetInt64(l.Int64()[li])
		return d.Cmp(&r.Decimal()[ri])
	},
	{types.DecimalFamily, types.IntFamily}: func(l coldata.Vec, li int, r coldata.Vec, ri int) int {
		var d apd.Decimal
		d.SetInt64(r.Int64()[ri])
		return l.Decimal()[li].Cmp(&d)
	},
	{types.FloatFamily, types.DecimalFamily}: func(l coldata.Vec, li int, r coldata.Vec, ri int) int {
		return compareFloatDecimal(l.Float64()[li], &r.Decimal()[ri])
	},
	{types.DecimalFamily, types.FloatFamily}: func(l coldata.Vec, li int, r coldata.Vec, ri int) int {
		return -compareFloatDecimal(r.Float64()[ri], &l.Decimal()[li])
	},
}

// MakeCompareFunc returns the comparator for values of types l and r. Pairs
// that cannot be ordered return a comparison error.
func MakeCompareFunc(l, r *types.T) (CompareFunc, error) {
	if !typeconv.Comparable(l, r) {
		return nil, execerror.NewComparisonErrorf("cannot compare %s with %s", l, r)
	}
	fn, ok := comparators[familyPair{typeconv.CanonicalFamily(l), typeconv.CanonicalFamily(r)}]
	if !ok {
		return nil, execerror.NewComparisonErrorf("cannot compare %s with %s", l, r)
	}
	return fn, nil
}

func compareBools(a, b bool) int {
	switch {
	case a == b:
		return 0
	case !a:
		return -1
	}
	return 1
}

func compareInts(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// CompareFloats orders floats with NaN below every other value and equal to
// itself.
func CompareFloats(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	case a == b:
		return 0
	}
	aNaN, bNaN := math.IsNaN(a), math.IsNaN(b)
	switch {
	case aNaN && bNaN:
		return 0
	case aNaN:
		return -1
	}
	return 1
}

func compareIntFloat(a int64, b float64) int {
	if math.IsNaN(b) {
		return 1
	}
	// Integers beyond 2^53 lose precision as floats, so compare exactly when
	// b is integral and in range.
	if b >= math.MinInt64 && b < math.MaxInt64 {
		if t := math.Trunc(b); t == b {
			return compareInts(a, int64(t))
		}
	}
	return CompareFloats(float64(a), b)
}

func compareFloatDecimal(a float64, b *apd.Decimal) int {
	if math.IsNaN(a) {
		return -1
	}
	if math.IsInf(a, 0) {
		if a > 0 {
			return 1
		}
		return -1
	}
	var d apd.Decimal
	if _, err := d.SetFloat64(a); err != nil {
		return CompareFloats(a, decimalToFloat(b))
	}
	return d.Cmp(b)
}

func decimalToFloat(d *apd.Decimal) float64 {
	f, err := d.Float64()
	if err != nil {
		return math.NaN()
	}
	return f
}
